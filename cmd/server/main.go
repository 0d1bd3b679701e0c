package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/benbeisheim/unionchess-backend/internal/config"
	"github.com/benbeisheim/unionchess-backend/internal/controller"
	"github.com/benbeisheim/unionchess-backend/internal/middleware"
	"github.com/benbeisheim/unionchess-backend/internal/model"
	"github.com/benbeisheim/unionchess-backend/internal/service"
	"github.com/benbeisheim/unionchess-backend/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize services
	managerCfg := service.ManagerConfig{
		Store:             store.NewMemoryStore(),
		Logger:            logger.Named("matches"),
		SweepInterval:     cfg.SweepInterval,
		SaveTimeout:       cfg.SaveTimeout,
		FinishedRetention: cfg.FinishedRetention,
	}
	if cfg.Archive.Dir != "" {
		archive, err := store.NewArchive(cfg.Archive.Dir, cfg.Archive.Parallel)
		if err != nil {
			return err
		}
		managerCfg.Archive = archive
		logger.Info("archiving finished matches", zap.String("dir", archive.Dir()))
	}
	matchManager := service.NewMatchManager(managerCfg)
	matchService := service.NewMatchService(matchManager, model.Settings{
		Options:     cfg.Options(),
		TimeoutRule: model.TimeoutRule(cfg.Rules.TimeoutRule),
	})

	// Initialize controllers
	matchController := controller.NewMatchController(matchService, logger.Named("http"))
	wsController := controller.NewWebSocketController(matchService, logger.Named("ws"))

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, X-Party-ID",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: len(cfg.AllowedOrigins) > 0 && !slices.Contains(cfg.AllowedOrigins, "*"),
	}))
	app.Use(middleware.RequestLogger(logger.Named("access")))
	controller.RegisterRoutes(app, matchController, wsController, cfg.AllowedOrigins)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		return app.Listen(cfg.Addr)
	})
	g.Go(func() error {
		return matchManager.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})
	return g.Wait()
}
