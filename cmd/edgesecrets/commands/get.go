package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/edgesecrets/internal/config"
	dserrors "github.com/systmms/edgesecrets/internal/errors"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var (
		version    string
		dateStr    string
		refresh    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Get a single secret value",
		Long: `Resolve a secret through the configured chain and print its value.

Layers are consulted outermost first. A secret found in a deeper layer is
written back into every layer above it.

Examples:
  # Print the active value
  edgesecrets get db-password

  # Pin a version and check it is valid at a given time
  edgesecrets get db-password --version v2 --date 2026-01-01T00:00:00Z

  # Skip the caches and refresh them from the source of truth
  edgesecrets get db-password --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			var date time.Time
			if dateStr != "" {
				parsed, err := time.Parse(time.RFC3339, dateStr)
				if err != nil {
					return dserrors.UserError{
						Message:    fmt.Sprintf("Invalid date %q", dateStr),
						Suggestion: "Use RFC 3339, for example 2026-01-01T00:00:00Z",
						Err:        err,
					}
				}
				date = parsed
			}

			ctx := cmd.Context()
			s, err := openChain(ctx, cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			if !refresh && !jsonOutput {
				value, found, err := s.Client.GetSecretValue(ctx, name, version, date)
				if err != nil {
					return err
				}
				if !found {
					return notFound(name, version)
				}
				fmt.Fprint(cmd.OutOrStdout(), value)
				return nil
			}

			get := s.Client.GetSecret
			if refresh {
				get = s.Client.RefreshSecret
			}
			sec, err := get(ctx, name, version, date)
			if err != nil {
				return err
			}
			if sec == nil {
				return notFound(name, version)
			}

			if !jsonOutput {
				fmt.Fprint(cmd.OutOrStdout(), sec.Value)
				return nil
			}

			output := map[string]interface{}{
				"name":  sec.Name,
				"value": sec.Value,
			}
			if sec.Version != "" {
				output["version"] = sec.Version
			}
			if !sec.ActivationDate.IsZero() {
				output["activationDate"] = sec.ActivationDate
			}
			if !sec.ExpirationDate.IsZero() {
				output["expirationDate"] = sec.ExpirationDate
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(output); err != nil {
				return fmt.Errorf("failed to encode JSON: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&version, "version", "", "Pin a secret version")
	cmd.Flags().StringVar(&dateStr, "date", "", "Resolve the version active at this RFC 3339 time")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass caches and refresh them from the source of truth")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format with metadata")

	return cmd
}

func notFound(name, version string) error {
	what := name
	if version != "" {
		what = name + "@" + version
	}
	return dserrors.UserError{
		Message:    fmt.Sprintf("Secret '%s' not found", what),
		Suggestion: "Check the name and version, or use --refresh to bypass the caches",
	}
}
