package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/internal/config"
	"github.com/systmms/edgesecrets/internal/logging"
	"github.com/systmms/edgesecrets/pkg/secret"
)

func NewListCommand(cfg *config.Config) *cobra.Command {
	var (
		showValues bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list <name>...",
		Short: "Resolve several secrets in one request",
		Long: `Resolve a batch of secrets. Names found nowhere in the chain are left out.
Values are redacted unless --show-values is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openChain(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			list, err := s.Client.GetSecretList(ctx, args...)
			if err != nil {
				return err
			}

			secrets := list.All()
			if !showValues {
				for i := range secrets {
					secrets[i].Value = logging.Secret(secrets[i].Value).String()
				}
			}

			if jsonOutput {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(secret.NewList(secrets...))
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tVERSION\tVALUE")
			for _, sec := range secrets {
				version := sec.Version
				if version == "" {
					version = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", sec.Name, version, sec.Value)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if missing := len(args) - list.Len(); missing > 0 {
				cfg.Logger.Warn("%d of %d secret(s) not found", missing, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showValues, "show-values", false, "Print secret values")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}
