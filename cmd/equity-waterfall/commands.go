package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iwvelando/equity-waterfall/internal/analysis"
	"github.com/iwvelando/equity-waterfall/internal/config"
	"github.com/iwvelando/equity-waterfall/internal/server"
	"github.com/iwvelando/equity-waterfall/pkg/constants"
	"github.com/iwvelando/equity-waterfall/pkg/rounds"
	"github.com/iwvelando/equity-waterfall/pkg/sensitivity"
	"github.com/iwvelando/equity-waterfall/pkg/waterfall"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func conversionOption(iterative bool) []analysis.Option {
	if iterative {
		return []analysis.Option{analysis.WithConversion(waterfall.ConversionIterative)}
	}
	return nil
}

func newOwnershipCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ownership <company>",
		Short: "Show who owns what in a company",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			company, err := a.service.Company(argv[0])
			if err != nil {
				return err
			}
			ct, err := a.service.Ownership(company.CapTable)
			if err != nil {
				return err
			}
			return a.printer.Ownership(ct)
		},
	}
}

func newRoundCmd(a *app) *cobra.Command {
	var p rounds.Params

	cmd := &cobra.Command{
		Use:   "round <company>",
		Short: "Model a new priced round and its dilution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			company, err := a.service.Company(argv[0])
			if err != nil {
				return err
			}
			result, ok, err := a.service.ModelRound(company.CapTable, p)
			if err != nil {
				return err
			}
			if !ok {
				a.logger.Warn("round is not computable; pre-money and round size must be positive",
					zap.String("op", "main.round"),
					zap.String("company", company.ID),
				)
			}
			return a.printer.Round(company.ID, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&p.Name, "name", "", "round name, e.g. \"Series B\"")
	flags.Float64Var(&p.PreMoney, "pre-money", 0, "pre-money valuation")
	flags.Float64Var(&p.RoundSize, "round-size", 0, "total amount raised in the round")
	flags.Float64Var(&p.OurAllocation, "our-allocation", 0, "portion of the round taken by the fund")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newWaterfallCmd(a *app) *cobra.Command {
	var exits []float64
	var iterative bool

	cmd := &cobra.Command{
		Use:   "waterfall <company>",
		Short: "Distribute exit proceeds through the preference stack",
		Long:  "Distribute one or more exit valuations across the share classes of a company. Without --exit, the company's configured exit scenarios are used.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := a.setup(cmd, conversionOption(iterative)...); err != nil {
				return err
			}
			company, err := a.service.Company(argv[0])
			if err != nil {
				return err
			}
			if len(exits) > 0 {
				company.ExitScenarios = exits
			}
			if len(company.ExitScenarios) == 0 {
				return fmt.Errorf("no exit valuation given for %s; pass --exit or configure exitScenarios", company.ID)
			}

			results, err := a.service.ExitScenarios(company)
			if err != nil {
				return err
			}
			for _, result := range results {
				if err := a.printer.Waterfall(company.ID, result); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.Float64SliceVar(&exits, "exit", nil, "exit valuation (repeatable)")
	flags.BoolVar(&iterative, "iterative", false, "re-evaluate conversion until no class wants to change")
	return cmd
}

func newSensitivityCmd(a *app) *cobra.Command {
	var opts sensitivity.Options
	var iterative bool

	cmd := &cobra.Command{
		Use:   "sensitivity <company>",
		Short: "Sweep exit valuations from zero to a maximum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := a.setup(cmd, conversionOption(iterative)...); err != nil {
				return err
			}
			company, err := a.service.Company(argv[0])
			if err != nil {
				return err
			}
			report, err := a.service.Sensitivity(cmd.Context(), company.CapTable, opts)
			if err != nil {
				return err
			}
			return a.printer.Sensitivity(company.ID, report.Classes, report.Points)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.Steps, "steps", 0, "number of intervals (default from config, else 20)")
	flags.Float64Var(&opts.MaxExit, "max-exit", 0, "maximum exit valuation (default ten times the last post-money)")
	flags.IntVar(&opts.Workers, "workers", 0, "concurrent evaluations (default GOMAXPROCS)")
	flags.BoolVar(&iterative, "iterative", false, "re-evaluate conversion until no class wants to change")
	return cmd
}

func newPortfolioCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Summarize the fund's positions across all companies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, argv []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			report, err := a.service.Portfolio(a.service.Companies())
			if err != nil {
				return err
			}
			return a.printer.Portfolio(report.Positions, report.Summary)
		},
	}
}

func newServeCmd(a *app) *cobra.Command {
	var serverConfigPath string
	var address string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, argv []string) error {
			serverCfg, err := server.LoadConfig(serverConfigPath)
			if err != nil {
				return err
			}
			if address != "" {
				serverCfg.Address = address
			}

			conf, err := loadServedConfiguration(serverCfg.CompaniesFile, a.configPath)
			if err != nil {
				return err
			}
			// The server's own logging section wins when it sets anything.
			if serverCfg.Logging != (config.LoggingConfig{}) {
				conf.Logging = serverCfg.Logging
			}
			if err := a.setupWith(cmd, conf); err != nil {
				return err
			}

			return serve(cmd.Context(), a.logger, serverCfg,
				server.NewHandler(a.logger, a.service, serverCfg.UploadSizeBytes(), version))
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&serverConfigPath, "server-config", constants.DefaultServerConfigFile, "path to server configuration file")
	flags.StringVar(&address, "address", "", "listen address override")
	return cmd
}

// loadServedConfiguration reads the companies the server answers for. A
// missing file leaves the server with inline cap tables only.
func loadServedConfiguration(companiesFile, fallback string) (*config.Configuration, error) {
	path := companiesFile
	if path == "" {
		path = fallback
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return &config.Configuration{}, nil
	}
	return config.LoadConfiguration(path)
}

func serve(ctx context.Context, logger *zap.Logger, cfg *server.Config, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeoutDuration(),
		ReadHeaderTimeout: cfg.ReadTimeoutDuration(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("op", "main.serve"),
			zap.String("address", cfg.Address),
			zap.Int64("maxUploadSize", cfg.UploadSizeBytes()),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down server", zap.String("op", "main.serve"))
	return srv.Shutdown(shutdownCtx)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, argv []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
