package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/internal/config"
	"github.com/systmms/edgesecrets/internal/logging"
)

func NewSetCommand(cfg *config.Config) *cobra.Command {
	var version string

	cmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Store a secret value in every layer",
		Long: `Store a secret through the configured chain. The write reaches the source of
truth first and then every layer above it, each encrypted with its own key.

An existing secret with the same name and version keeps its validity window.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openChain(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Client.SetSecretValue(ctx, args[0], args[1], version); err != nil {
				// Provider errors may quote the plaintext
				return errors.New(logging.Redact(err.Error(), []string{args[1]}))
			}
			cfg.Logger.Info("Stored secret %s in %d layer(s)", args[0], len(s.Layers))
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Version to store the value under")
	return cmd
}
