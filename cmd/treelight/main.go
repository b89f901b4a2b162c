package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/oklog/run"
	"github.com/peterbourgon/ff/v3"

	"github.com/fernworks/treelight/internal/engine"
)

func main() {
	if err := exec(context.Background(), os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func exec(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("treelight", flag.ContinueOnError)
	var (
		file     = fs.String("file", "", "log file to ingest (.gz and .zst are decompressed)")
		spanID   = fs.Uint64("span", 0, "render only this span subtree (0 = whole tree)")
		interval = fs.Duration("interval", 50*time.Millisecond, "status poll interval")
	)
	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("TREELIGHT")); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("-file is required")
	}

	store := engine.NewStore()
	proc := engine.NewProcessor(store)

	var g run.Group

	{
		// Ingestion worker.
		g.Add(func() error {
			proc.Run()
			return nil
		}, func(error) {
			proc.Close()
		})
	}

	{
		// Shell: submit the open request, poll status, report on a
		// terminal state.
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			proc.SubmitOpen(*file)
			ticker := time.NewTicker(*interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					switch proc.Status() {
					case engine.StatusNotStarted, engine.StatusReading:
						// Keep polling.
					case engine.StatusDone, engine.StatusCancelled:
						return report(store, proc, *spanID)
					case engine.StatusIoFailed:
						return fmt.Errorf("reading %s failed", *file)
					}
				case <-ctx.Done():
					return nil
				}
			}
		}, func(error) {
			cancel()
		})
	}

	{
		g.Add(run.SignalHandler(ctx, os.Interrupt))
	}

	return g.Run()
}

func report(store *engine.Store, proc *engine.Processor, spanID uint64) error {
	query := engine.QueryAll()
	if spanID != 0 {
		query = engine.QuerySpan(engine.SpanID(spanID))
	}

	stats := store.Stats()
	fmt.Fprintf(os.Stderr, "status=%s generation=%s spans=%d messages=%d strings=%d\n",
		proc.Status(), stats.Generation, stats.Spans, stats.Messages, stats.Strings)
	fmt.Print(store.Render(query))
	return nil
}
