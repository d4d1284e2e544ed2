package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/ScreenGuard/internal/config"
	"github.com/bryanchriswhite/ScreenGuard/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "screenguard",
		Short: "ScreenGuard - screen capture detection and screenshot prevention",
		Long: `ScreenGuard watches for screenshots and screen recordings of the focused
window and can cover it with an opaque shield while capture is unwanted.

Features:
  • Detect screenshots via screenshot folders or the desktop portal
  • Attach a PNG snapshot of the protected window to each detection
  • Raise an opaque shield over the protected window on demand
  • Report running screen recorders
  • REST API and WebSocket event stream for host applications`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/screenguard/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "server port (default is 8090)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human readable log output")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openConfig opens the config file with flag overrides bound
func openConfig(cmd *cobra.Command) (*config.Manager, error) {
	configMgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := configMgr.BindFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return configMgr, nil
}

// loadConfig opens and validates the configuration and initializes logging
// from it
func loadConfig(cmd *cobra.Command) (*config.Manager, *config.Config, error) {
	configMgr, err := openConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := configMgr.Get()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration in %s: %w", configMgr.GetConfigPath(), err)
	}

	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, cfg, nil
}
