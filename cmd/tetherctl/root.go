package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/arloliu/tether"
	"github.com/arloliu/tether/contrib/logging/zl"
)

// cli carries state shared by subcommands.
type cli struct {
	configPath string
	cfg        *Config
	logger     *zl.Logger
	logOutput  io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "tetherctl",
		Short: "Exercise a tether handle registry against a live cluster",
		Long: "tetherctl opens handles through a tether registry and dispatches operations on them.\n" +
			"It is used to check connectivity, to soak-test pooling and sweeping, and to edit the\n" +
			"NATS drain list that registries watch.\n\n" +
			"Set TETHER_LOG_LEVEL (debug, info, warn, error) to change verbosity and TETHER_PASSWORD\n" +
			"to supply the cluster password outside the config file.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML configuration file")

	root.AddCommand(
		newVersionCmd(),
		newPingCmd(c),
		newSoakCmd(c),
		newDrainCmd(c),
	)

	return root
}

// setup loads the configuration and the logger before any subcommand runs.
func (c *cli) setup(cmd *cobra.Command) error {
	out := c.logOutput
	if out == nil {
		out = cmd.ErrOrStderr()
		if out == os.Stderr {
			out = nil // console format
		}
	}

	logger, err := zl.FromEnv(out, "tetherctl")
	if err != nil {
		logger.Warn("ignoring log level override", "error", err)
	}
	c.logger = logger

	cfg, err := LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	c.cfg = cfg

	b := tether.BuildInfo()
	logger.Debug("starting",
		"version", b.Version,
		"go", b.GoVersion,
		"revision", shortRevision(b.Revision),
		"config", c.configPath,
	)

	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := tether.BuildInfo()
			modified := ""
			if b.Modified {
				modified = " (modified)"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tetherctl %s\ngo: %s\nrevision: %s%s\n",
				b.Version, b.GoVersion, shortRevision(b.Revision), modified)

			return err
		},
	}
}
