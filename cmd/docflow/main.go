package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/altafino/docflow/internal/config"
	"github.com/altafino/docflow/internal/logger"
	"github.com/altafino/docflow/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgDir    string
	logLevel  string
	logFormat string
	log       *slog.Logger
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "Document extraction and classification",
	Long: `docflow saves the attachments of matching mails from a mail store into a
folder, and sorts documents into signed, unsigned and unmatched folders.`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func init() {
	// Setup default logger until we load config
	log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "", "config directory (default is ./config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (text, json, dev)")

	viper.SetEnvPrefix("docflow")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.SetDefault("config_dir", "./config")

	viper.BindPFlag("config_dir", rootCmd.PersistentFlags().Lookup("config-dir"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(
		newExtractCmd(),
		newClassifyCmd(),
		newRunCmd(),
		newFoldersCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newOAuth2Cmd(),
	)
}

func configDir() string {
	return viper.GetString("config_dir")
}

func initConfig(cmd *cobra.Command, args []string) error {
	config.InitLogger(log)
	dir := configDir()
	if err := config.LoadConfigs(dir); err != nil {
		return fmt.Errorf("failed to load configs from %s: %w", dir, err)
	}

	configs := config.ListConfigs()
	if len(configs) == 0 {
		return fmt.Errorf("no configurations found in %s", dir)
	}
	log.Debug("loaded configurations",
		"count", len(configs),
		"enabled", len(config.GetEnabledConfigs()),
	)
	return nil
}

// jobLogger builds the logger of cfg with the command line overrides
// applied. On the console, run events are already printed by the listener,
// so stdout logging moves to stderr and only warnings pass by default.
func jobLogger(cfg *types.Config, console bool) (*slog.Logger, error) {
	c := *cfg
	level := viper.GetString("logging.level")
	if level != "" {
		c.Logging.Level = level
	}
	if format := viper.GetString("logging.format"); format != "" {
		c.Logging.Format = format
	}

	var l *slog.Logger
	if console && c.Logging.Output != "file" {
		if level == "" {
			c.Logging.Level = "warn"
		}
		l = logger.New(os.Stderr, c.Logging.Level, c.Logging.Format, c.Logging.IncludeCaller)
	} else {
		var err error
		if l, err = logger.Setup(&c); err != nil {
			return nil, err
		}
	}
	config.InitLogger(l)
	return l, nil
}

// serviceLogger is the logger of the long running service: defaults plus
// the command line overrides.
func serviceLogger() (*slog.Logger, error) {
	cfg := &types.Config{}
	config.ApplyDefaults(cfg)
	return jobLogger(cfg, false)
}
