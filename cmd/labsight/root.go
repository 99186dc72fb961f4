// Package labsight implements the labsight command line.
package labsight

import (
	"fmt"
	"os"

	"github.com/kamilpajak/labsight/internal/config"
	"github.com/kamilpajak/labsight/internal/llm"
	"github.com/kamilpajak/labsight/internal/logging"
	"github.com/kamilpajak/labsight/internal/pipeline"
	"github.com/kamilpajak/labsight/internal/registry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configFile string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "labsight",
	Short: "AI interpretation of laboratory test reports",
	Long: `Labsight reads a lab report (PDF or image), extracts the numeric results
and asks a language model for a clinical interpretation.

Models that cannot read files are paired with a vision model that extracts
the values first.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./labsight.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads and validates configuration, applying global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.LoggingConfig())
}

// loadRegistry returns the configured model catalogue.
func loadRegistry(cfg *config.Config) (*registry.Registry, error) {
	var (
		reg *registry.Registry
		err error
	)
	if cfg.Pipeline.ModelsFile != "" {
		reg, err = registry.Load(cfg.Pipeline.ModelsFile)
	} else {
		reg, err = registry.Default()
	}
	if err != nil {
		return nil, err
	}
	if id := cfg.Pipeline.DefaultVisionModel; id != "" {
		if err := reg.SetDefaultVisionModel(id); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// newOrchestrator wires the registry and provider clients into a pipeline.
func newOrchestrator(cfg *config.Config, logger zerolog.Logger) (*pipeline.Orchestrator, *registry.Registry, error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}
	orch := pipeline.New(reg, llm.NewFactory(cfg.FactoryConfig()), pipeline.Config{
		StageTimeout: cfg.Pipeline.StageTimeout,
		MaxFileBytes: cfg.Pipeline.MaxUploadBytes,
	}, logger)
	return orch, reg, nil
}
