package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/tether"
)

func newPingCmd(c *cli) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "ping [connection-string]",
		Short: "Open a handle and ping the cluster",
		Long: "Acquires a handle for the connection string (or origin.connection_string from the\n" +
			"config file), dispatches ping operations on it and releases it.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				c.cfg.Origin.ConnectionString = args[0]
			}

			return runPing(cmd, c, count)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of pings to send")

	return cmd
}

func runPing(cmd *cobra.Command, c *cli, count int) error {
	ctx := cmd.Context()

	e, err := newEnv(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Registry.CloseTimeout+time.Second)
		defer cancel()
		e.close(shutdownCtx)
	}()

	out := cmd.OutOrStdout()
	started := time.Now()
	h, err := e.registry.Acquire(ctx, c.cfg.Origin.ConnectionString, c.cfg.OriginOptions(), 0)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	fmt.Fprintf(out, "handle %d open to %s in %s (fingerprint %s)\n",
		h.ResourceID(), h.Origin(), time.Since(started).Round(time.Millisecond), h.Fingerprint().Short())

	for i := range max(count, 1) {
		started = time.Now()
		res, err := e.registry.Dispatch(ctx, h.ResourceID(), tether.Ping())
		if err != nil {
			return fmt.Errorf("ping %d: %w", i+1, err)
		}

		version := "?"
		if len(res.Rows) > 0 {
			if v, ok := res.Rows[0]["release_version"]; ok {
				version = fmt.Sprint(v)
			}
		}
		fmt.Fprintf(out, "ping %d: release_version=%s time=%s\n", i+1, version, time.Since(started).Round(time.Microsecond))
	}

	return e.registry.Release(h.ResourceID())
}
