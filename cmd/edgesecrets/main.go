package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/cmd/edgesecrets/commands"
	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
	"github.com/systmms/edgesecrets/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "edgesecrets",
		Short: "Edge secret cache - layered, encrypted secret stores for devices",
		Long: `edgesecrets resolves secrets through a chain of cache layers (memory, file)
backed by a remote authority reached over a device channel, encrypting each
layer with its own key provider.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewGetCommand(cfg),
		commands.NewSetCommand(cfg),
		commands.NewListCommand(cfg),
		commands.NewClearCacheCommand(cfg),
		commands.NewDeliverCommand(cfg),
		commands.NewCompletionCommand(),
	)

	return rootCmd.Execute()
}
