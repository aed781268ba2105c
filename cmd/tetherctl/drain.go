package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arloliu/tether/topology"
)

func newDrainCmd(c *cli) *cobra.Command {
	var (
		reason  string
		undrain bool
	)

	cmd := &cobra.Command{
		Use:   "drain <host|host:port>",
		Short: "Add a host to or remove it from the NATS drain list",
		Long: "Edits the drain list in the NATS KV bucket configured under drain.\n" +
			"Registries watching the bucket stop acquiring handles for origins whose\n" +
			"every address is draining and sweep their idle handles.\n" +
			"Use --clear to return the host to rotation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.Drain.NATSURL == "" {
				return errors.New("drain.nats_url is not configured")
			}

			ctx := cmd.Context()
			kv, nc, err := openDrainKV(ctx, c.cfg.Drain)
			if err != nil {
				return err
			}
			defer nc.Close()

			operator, err := topology.NewNATS(kv, topology.WithKey(c.cfg.Drain.Key))
			if err != nil {
				return err
			}
			defer operator.Close()

			if err := operator.SetDrain(ctx, args[0], !undrain, reason); err != nil {
				return err
			}

			state := "draining"
			if undrain {
				state = "in rotation"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", args[0], state)

			return err
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the drain")
	cmd.Flags().BoolVar(&undrain, "clear", false, "remove the host from the drain list")

	return cmd
}
