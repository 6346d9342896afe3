package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iwvelando/equity-waterfall/internal/analysis"
	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app carries the persistent flags and the state built from them.
type app struct {
	configPath   string
	logLevel     string
	outputFormat string

	conf    *config.Configuration
	logger  *zap.Logger
	service *analysis.Service
	printer *output.Printer
}

// initializeLogger creates a zap logger based on configuration and CLI override
func initializeLogger(loggingConfig config.LoggingConfig, logLevelOverride string) (*zap.Logger, error) {
	// CLI override takes precedence
	level := loggingConfig.Level
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	if level == "" {
		level = "info"
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	format := loggingConfig.Format
	if format == "" {
		format = "json"
	}

	var zapConfig zap.Config
	switch format {
	case "console":
		zapConfig = zap.NewDevelopmentConfig()
	case "json":
		zapConfig = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
	zapConfig.Level = zap.NewAtomicLevelAt(zapLevel)

	if loggingConfig.OutputFile != "" {
		if dir := filepath.Dir(loggingConfig.OutputFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory %s: %v", dir, err)
			}
		}

		file, err := os.OpenFile(loggingConfig.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %v", loggingConfig.OutputFile, err)
		}
		_ = file.Close()

		zapConfig.OutputPaths = []string{loggingConfig.OutputFile}
		zapConfig.ErrorOutputPaths = []string{loggingConfig.OutputFile}
	}

	return zapConfig.Build()
}

// setup loads the configuration, builds the logger and the service, and
// prepares a printer on the command's output.
func (a *app) setup(cmd *cobra.Command, opts ...analysis.Option) error {
	conf, err := config.LoadConfiguration(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration at %s: %w", a.configPath, err)
	}
	return a.setupWith(cmd, conf, opts...)
}

func (a *app) setupWith(cmd *cobra.Command, conf *config.Configuration, opts ...analysis.Option) error {
	logger, err := initializeLogger(conf.Logging, a.logLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// CLI override takes precedence over config
	outputFormat := conf.Output.Format
	if a.outputFormat != "" {
		outputFormat = a.outputFormat
	}
	if outputFormat == "" {
		outputFormat = constants.OutputFormatPretty
	}
	printer, err := output.NewPrinter(cmd.OutOrStdout(), outputFormat)
	if err != nil {
		return err
	}

	for _, warning := range conf.ValidateConfiguration() {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main"),
		)
	}

	a.conf = conf
	a.logger = logger
	a.printer = printer
	a.service = analysis.NewService(logger, conf, opts...)
	return nil
}

func (a *app) sync() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "equity-waterfall",
		Short:         "Cap table ownership, round modeling, and exit waterfalls",
		Long:          "Model venture cap tables: ownership, new rounds, liquidation preference waterfalls, exit sensitivity, and portfolio positions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRun: func(cmd *cobra.Command, argv []string) {
			a.sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", constants.DefaultConfigFile, "path to configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVar(&a.outputFormat, "output-format", "", "type of output override: pretty, csv, json")

	root.AddCommand(
		newOwnershipCmd(a),
		newRoundCmd(a),
		newWaterfallCmd(a),
		newSensitivityCmd(a),
		newPortfolioCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "{\"op\": \"main\", \"level\": \"fatal\", \"error\": %q}\n", err.Error())
		os.Exit(1)
	}
}
