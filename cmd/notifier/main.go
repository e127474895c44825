package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serverrun "github.com/stellar-expert/operations-notifier/internal/cmd/server"
	"github.com/stellar-expert/operations-notifier/internal/config"
)

func main() {
	// optional .env in the working directory
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "notifier",
		Short: "Ledger operations notifier",
		Long:  "Watches the transaction stream and delivers signed webhook notifications for matching operations.",
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the notifier server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			config.FromEnv(&cfg)

			if v, _ := cmd.Flags().GetInt("port"); v > 0 {
				cfg.APIPort = v
			}
			if v, _ := cmd.Flags().GetString("horizon"); v != "" {
				cfg.Horizon = v
			}
			if v, _ := cmd.Flags().GetString("storage"); v != "" {
				cfg.StorageProvider = v
			}
			if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
				cfg.DataDir = v
			}
			if v, _ := cmd.Flags().GetString("log-level"); v != "" {
				cfg.LogLevel = v
			}

			if err := serverrun.Run(context.Background(), cfg); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("config", os.Getenv("NOTIFIER_CONFIG"), "Path to a JSON config file")
	serveCmd.Flags().Int("port", 0, "HTTP API listen port")
	serveCmd.Flags().String("horizon", "", "Transaction stream server base URL")
	serveCmd.Flags().String("storage", "", "Storage provider: memory|pebble")
	serveCmd.Flags().String("data-dir", "", "Data directory for the pebble provider")
	serveCmd.Flags().String("log-level", os.Getenv("NOTIFIER_LOG_LEVEL"), "Log level: debug|info|warn|error")
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the notifier version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(serverrun.Version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
