package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/internal/config"
)

func NewClearCacheCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Empty every layer of the chain",
		Long: `Clear every layer of the configured chain, innermost first. File layers are
emptied; remote authorities ignore the request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openChain(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Client.ClearCache(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d layer(s)\n", len(s.Layers))
			return nil
		},
	}
}
