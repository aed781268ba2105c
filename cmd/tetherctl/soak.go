package main

import (
	"context"
	"fmt"
	"maps"
	"os/signal"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/types"
)

type soakOptions struct {
	workers      int
	duration     time.Duration
	opsPerHandle int
	statement    string
}

// soakStats counts outcomes across workers.
type soakStats struct {
	acquires atomic.Int64
	ops      atomic.Int64

	mu     sync.Mutex
	errors map[types.ErrorCode]int64
}

func (s *soakStats) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.errors == nil {
		s.errors = make(map[types.ErrorCode]int64)
	}
	s.errors[types.CodeOf(err)]++
}

func newSoakCmd(c *cli) *cobra.Command {
	opts := soakOptions{}

	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Acquire, dispatch and release handles concurrently",
		Long: "Runs workers that repeatedly acquire a handle, dispatch operations on it and\n" +
			"release it, until the duration elapses or the process is interrupted.\n" +
			"With pooling enabled all workers share one session per origin.\n" +
			"Prints acquire and operation counts and errors by code.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSoak(cmd, c, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 8, "number of concurrent workers")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", time.Minute, "how long to run")
	cmd.Flags().IntVar(&opts.opsPerHandle, "ops-per-handle", 10, "operations dispatched per acquired handle")
	cmd.Flags().StringVar(&opts.statement, "statement", "", "CQL query to dispatch instead of ping")

	return cmd
}

func runSoak(cmd *cobra.Command, c *cli, opts soakOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	e, err := newEnv(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Registry.CloseTimeout+time.Second)
		defer cancel()
		e.close(shutdownCtx)
	}()

	op := tether.Ping()
	if opts.statement != "" {
		op = tether.Query(opts.statement)
	}

	c.logger.Info("soak started",
		"workers", opts.workers,
		"duration", opts.duration,
		"pooling", c.cfg.Registry.Pooling,
	)

	stats := &soakStats{}
	started := time.Now()

	var wg sync.WaitGroup
	for range max(opts.workers, 1) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			soakWorker(ctx, e, c.cfg, op, opts.opsPerHandle, stats)
		}()
	}
	wg.Wait()

	printSoakStats(cmd, stats, time.Since(started), e.registry)

	return nil
}

func soakWorker(ctx context.Context, e *env, cfg *Config, op tether.Operation, opsPerHandle int, stats *soakStats) {
	for ctx.Err() == nil {
		h, err := e.registry.Acquire(ctx, cfg.Origin.ConnectionString, cfg.OriginOptions(), 0)
		stats.acquires.Add(1)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			stats.fail(err)
			if h != nil {
				_ = e.registry.Release(h.ResourceID())
			}
			backoff(ctx, 100*time.Millisecond)

			continue
		}

		for range max(opsPerHandle, 1) {
			if _, err := e.registry.Dispatch(ctx, h.ResourceID(), op); err != nil {
				if ctx.Err() != nil {
					break
				}
				stats.fail(err)
			}
			stats.ops.Add(1)
		}

		if err := e.registry.Release(h.ResourceID()); err != nil {
			stats.fail(err)
		}
	}
}

func backoff(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func printSoakStats(cmd *cobra.Command, stats *soakStats, elapsed time.Duration, registry *tether.Registry) {
	out := cmd.OutOrStdout()
	ops := stats.ops.Load()

	fmt.Fprintf(out, "elapsed:   %s\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(out, "acquires:  %d\n", stats.acquires.Load())
	fmt.Fprintf(out, "ops:       %d (%.1f/s)\n", ops, float64(ops)/elapsed.Seconds())
	fmt.Fprintf(out, "live:      %d handles, %d sessions\n", registry.Len(), registry.Sessions())

	stats.mu.Lock()
	defer stats.mu.Unlock()

	for _, code := range slices.Sorted(maps.Keys(stats.errors)) {
		fmt.Fprintf(out, "error %-18s %d\n", code.String()+":", stats.errors[code])
	}
}
