package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/mergebot/core/app"
	corecmd "github.com/m3rciful/mergebot/core/cmd"
	coreconfig "github.com/m3rciful/mergebot/core/config"
)

const defaultConfigPath = "config.yaml"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mergebot",
	Short:         "Telegram bot that pastes a reference image onto a main image and labels it",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runBot,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the Telegram bot (default)",
	RunE:  runBot,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or config.yaml)")
	rootCmd.AddCommand(runCmd)
}

func runBot(*cobra.Command, []string) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath:        configPath,
		DefaultConfigPath: defaultConfigPath,
		EnvFiles:          []string{".env"},
		Bootstrap: func(ctx context.Context, cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
			return app.New(ctx, cfg, app.Options{})
		},
	})
}
