// Command scoped is a CLI demonstrating the scoped and rendezvous packages:
// structured concurrency with configurable error policies, and a
// synchronous multi-channel pipeline built on rendezvous.Channel.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/baxromumarov/scoped"
	"github.com/baxromumarov/scoped/rendezvous"
)

const (
	policyKey  = "policy"
	workersKey = "workers"
)

func main() {
	cmd := &cli.Command{
		Name:  "scoped",
		Usage: "structured concurrency and synchronous channel demos",
		Commands: []*cli.Command{
			runCommand(),
			pipelineCommand(),
			poolCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// runCommand spawns a handful of tasks with one deliberate failure, under
// the requested error policy, and reports which tasks ran.
func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "run a small fan-out of tasks under a chosen error policy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  policyKey,
				Usage: "fail-fast or collect",
				Value: "fail-fast",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			policy := scoped.FailFast
			if cmd.String(policyKey) == "collect" {
				policy = scoped.Collect
			}

			start := time.Now()
			var ran []string
			err := scoped.Run(ctx, func(sp scoped.Spawner) {
				for i, task := range []func(context.Context) error{slowTask, slowTask, failingTask} {
					i, task := i, task
					name := fmt.Sprintf("task-%d", i)
					sp.Go(name, func(ctx context.Context) error {
						ran = append(ran, name)
						return task(ctx)
					})
				}
			}, scoped.WithPolicy(policy), scoped.WithPanicAsError())

			fmt.Printf("ran: %v\n", ran)
			fmt.Printf("elapsed: %v\n", time.Since(start).Round(time.Millisecond))
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			return nil
		},
	}
}

func slowTask(ctx context.Context) error {
	select {
	case <-time.After(50 * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func failingTask(context.Context) error {
	return fmt.Errorf("task failed")
}

// pipelineCommand wires a rendezvous source through Distinct, Buffer, and
// ForEach, printing every flushed batch as it arrives.
func pipelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "pipeline",
		Usage: "stream values through a rendezvous channel pipeline",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			values := []int{1, 1, 2, 3, 3, 4, 5, 5, 6, 7, 8, 8, 9, 10}

			return scoped.Run(ctx, func(sp scoped.Spawner) {
				src := rendezvous.From(sp, values...)
				distinct := rendezvous.Distinct[int](sp, src)
				batches := rendezvous.Buffer(sp, distinct, 3, 50*time.Millisecond)

				sp.Go("print-batches", func(ctx context.Context) error {
					return rendezvous.ForEach(ctx, batches, func(batch []int) error {
						fmt.Printf("batch: %v\n", batch)
						return nil
					})
				})
			}, scoped.WithPanicAsError())
		},
	}
}

// poolCommand submits synthetic work to a worker pool and renders the
// resulting stats as a table.
func poolCommand() *cli.Command {
	return &cli.Command{
		Name:  "pool",
		Usage: "submit work to a worker pool and print its stats",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  workersKey,
				Usage: "number of pool workers",
				Value: 4,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			n := int(cmd.Int(workersKey))
			pool := scoped.NewPool(ctx, n)

			const jobs = 40
			for i := range jobs {
				i := i
				if err := pool.Submit(func() error {
					time.Sleep(5 * time.Millisecond)
					if i%9 == 0 {
						return fmt.Errorf("job %d failed", i)
					}
					return nil
				}); err != nil {
					return err
				}
			}

			closeErr := pool.Close()
			stats := pool.Stats()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"metric", "value"})
			table.Append([]string{"workers", humanize.Comma(int64(stats.Workers))})
			table.Append([]string{"submitted", humanize.Comma(stats.Submitted)})
			table.Append([]string{"completed", humanize.Comma(stats.Completed)})
			table.Append([]string{"errored", humanize.Comma(stats.Errored)})
			table.Append([]string{"p50 latency", stats.LatencyP50.String()})
			table.Append([]string{"p99 latency", stats.LatencyP99.String()})
			table.Render()

			if closeErr != nil {
				fmt.Printf("pool errors: %v\n", closeErr)
			}
			return nil
		},
	}
}
