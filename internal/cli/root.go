// Package cli holds the commands of the hyperctl binary.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tailbits/hypermedia/config"
	"github.com/tailbits/hypermedia/internal/logger"
)

// app is the state shared by the subcommands. It is filled in before any
// subcommand runs.
type app struct {
	configPath string
	cfg        *config.Config
	log        *slog.Logger
}

// NewRootCmd is the main command for the hyperctl binary.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "hyperctl",
		Short:        "`hyperctl` serves and traverses hypermedia APIs",
		Long:         "`hyperctl` serves resources as HAL and JSON:API documents, follows their links and checks documents against their formats.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			a.cfg = cfg
			a.log = logger.New(cfg.Server, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to the configuration file")

	root.AddCommand(
		a.serveCmd(),
		a.migrateCmd(),
		a.followCmd(),
		a.validateCmd(),
		a.openapiCmd(),
	)
	return root
}
