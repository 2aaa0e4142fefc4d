package main

import (
	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/mergebot/core/cmd"
	coreconfig "github.com/m3rciful/mergebot/core/config"
	"github.com/m3rciful/mergebot/core/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending history database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := corecmd.LoadEnvFiles(".env"); err != nil {
			return err
		}
		path := corecmd.ResolveConfigPath(configPath, "", defaultConfigPath)
		db, err := coreconfig.LoadDatabase(path)
		if err != nil {
			return err
		}
		return database.RunMigrations(cmd.Context(), db)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
