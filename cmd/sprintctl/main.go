package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sprintmail/internal/app"
	"sprintmail/internal/config"
	"sprintmail/pkg/logger"
)

var Version = "dev"

var (
	configDir string
	verbose   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "sprintctl",
		Short:         "Operate the sprint email learning system",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default $CONFIG_DIR or ./config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "development logging")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(assistCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(outboxCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if verbose {
		return logger.NewDevelopment()
	}
	return logger.NewLogger()
}

func loadConfig() (*config.Config, error) {
	return config.Load(configDir)
}

// openApp 加载配置并装配应用，调用方负责 Close
func openApp() (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg, newLogger(), "sprintctl")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
