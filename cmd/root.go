package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

// RootCommand creates the paddyhealth command tree. Running it without a
// subcommand starts the server.
func RootCommand() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "paddyhealth",
		Short:         "Rice leaf disease prediction backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.DefaultPath = configPath
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return utils.InitLogger(cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the JSON config file")

	rootCmd.AddCommand(serveCommand(), migrateCommand())
	return rootCmd
}
