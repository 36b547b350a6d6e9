package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/m3rciful/sellerbot/core/buildinfo"
	corecmd "github.com/m3rciful/sellerbot/core/cmd"
	coredatabase "github.com/m3rciful/sellerbot/core/database"
	"github.com/m3rciful/sellerbot/core/logger"
	"github.com/m3rciful/sellerbot/internal/app"
	"github.com/m3rciful/sellerbot/internal/config"
)

const defaultConfigPath = "config.yaml"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to read .env: %v", err)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	runOptions := func() corecmd.Options {
		return corecmd.Options{
			ConfigPath:        configPath,
			DefaultConfigPath: defaultConfigPath,
			LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
				return config.Load(path)
			},
			Bootstrap: app.Bootstrap,
		}
	}

	root := &cobra.Command{
		Use:          "sellerbot",
		Short:        "Telegram bot for seller portal login and organization switching",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(runOptions())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (env CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Start the bot and the web app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(runOptions())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := runOptions().ResolveConfigPath()
			if err != nil {
				return err
			}
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg.CoreConfig()); err != nil {
				return err
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cfg.Database)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sellerbot %s (%s) %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	})
	return root
}
