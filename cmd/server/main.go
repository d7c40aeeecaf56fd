package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/countclash/countclash-server-go/internal/config"
	"github.com/countclash/countclash-server-go/internal/gateway"
	"github.com/countclash/countclash-server-go/internal/session"
	"github.com/countclash/countclash-server-go/internal/store"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting counting server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	if cfg.Auth.AdapterTokenHash == "" {
		logger.Warn("adapter token not configured; gateway authentication disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	st, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}
	defer st.Close()

	doc, err := st.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load state", zap.Error(err))
	}

	mgr := session.NewManager(doc, st, cfg.Game.LeaderboardPageSize, logger)
	logger.Info("session manager initialized",
		zap.Int("active_games", len(mgr.ActiveChannels())),
	)

	hub := gateway.NewHub(mgr, cfg.Auth.AdapterTokenHash, logger)
	go hub.Run(ctx.Done())

	go func() {
		if serveErr := gateway.Serve(cfg.Server.Address, cfg.Server.Path, hub, logger); serveErr != nil {
			logger.Error("gateway server error", zap.Error(serveErr))
		}
	}()

	logger.Info("counting server initialized",
		zap.String("address", cfg.Server.Address),
		zap.String("storage_backend", cfg.Storage.Backend),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	logger.Info("counting server stopped")
}

func newStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Backend {
	case "postgres":
		return store.NewPGStore(ctx, cfg.DSN, logger)
	default:
		return store.NewFileStore(cfg.Path, logger)
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
