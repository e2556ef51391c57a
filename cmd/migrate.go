package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Lakshima2000/paddyHealth-backend/config"
	"github.com/Lakshima2000/paddyHealth-backend/models"
	"github.com/Lakshima2000/paddyHealth-backend/utils"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := config.OpenDatabase(config.Get(), models.All()...)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err == nil {
				defer sqlDB.Close()
			}
			utils.Sugar.Infow("schema migrated", "models", len(models.All()))
			return nil
		},
	}
}
