package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/aatumaykin/ecardcut/internal/metrics"
	"github.com/aatumaykin/ecardcut/internal/server"
	"github.com/aatumaykin/ecardcut/internal/version"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// dirStatsRefresh is how often the watched directory gauges are updated.
const dirStatsRefresh = "@every 1m"

var serveLogLevel string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and the retention sweeper",
	Long: `Start the HTTP API together with the background retention sweeper.
On SIGINT or SIGTERM the server stops accepting requests, waits for in-flight
requests up to the shutdown timeout and then stops the sweeper.`,
	RunE: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		fmt.Printf(constants.MsgConfigLoadError, err)
		return err
	}

	// Override log level if flag is set
	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Print(constants.MsgConfigValidationError)
		for _, e := range errs {
			fmt.Printf(constants.MsgConfigValidatePrefix, e)
		}
		return errors.New("invalid configuration")
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return err
	}
	defer log.Close()
	logger.SetDefault(log)

	log.Info(version.FormatStartupMessage(),
		logger.Field{Key: "config", Value: path},
		logger.Field{Key: "addr", Value: cfg.Server.Addr},
		logger.Field{Key: "storage_root", Value: cfg.Storage.Root},
		logger.Field{Key: "retention_minutes", Value: cfg.Retention.RetentionMinutes},
		logger.Field{Key: "sweeper_enabled", Value: cfg.Retention.Enabled})

	store, err := newStore(cfg)
	if err != nil {
		log.Error("Failed to initialize storage", err)
		return err
	}

	var (
		pm      *metrics.PrometheusMetrics
		rec     cleanup.Recorder
		srvOpts = []server.Option{server.WithLogger(log)}
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		pm = metrics.InitPrometheusMetrics(cfg.Metrics.Namespace, reg)
		rec = pm
		srvOpts = append(srvOpts, server.WithMetrics(pm, reg))
	}

	sweeper, err := newSweeper(cfg, store, log, rec)
	if err != nil {
		log.Error("Failed to initialize retention sweeper", err)
		return err
	}

	if pm != nil {
		stopRefresh, err := pm.RefreshDirStats(sweeper, dirStatsRefresh)
		if err != nil {
			log.Error("Failed to schedule directory stats refresh", err)
			return err
		}
		defer stopRefresh()
	}

	if cfg.Retention.Enabled {
		if err := startSweeper(sweeper, cfg.Retention); err != nil {
			log.Error("Failed to start retention sweeper", err)
			return err
		}
	} else {
		log.Warn("Retention sweeper is disabled, files will not expire")
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		AdminToken:      cfg.Server.AdminToken,
		MaxImagePixels:  cfg.Server.MaxImagePixels(),
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout(),
	}, store, sweeper, srvOpts...)
	if err != nil {
		sweeper.Stop()
		log.Error("Failed to initialize HTTP server", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("✅ ecardcut is running")
	runErr := srv.Run(ctx)

	// HTTP is drained first so no handler writes into a directory mid-sweep.
	log.Info("🛑 Stopping retention sweeper")
	sweeper.Stop()

	if runErr != nil {
		log.Error("HTTP server failed", runErr)
		return runErr
	}
	log.Info("👋 ecardcut stopped gracefully")
	return nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
