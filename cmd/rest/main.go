package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-factcheck-be/internal/bootstrap"
	"ai-factcheck-be/internal/config"
	"ai-factcheck-be/internal/model"
	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/internal/server"
	"ai-factcheck-be/internal/tracer"
	"ai-factcheck-be/pkg/database"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.IsProduction())
	defer func() { _ = sysLogger.Sync() }()

	// 2. Initialize Tracer
	shutdownTracer := tracer.InitTracer(sysLogger)

	// 3. Initialize Database
	gormDB, err := database.NewGormDB(database.GormConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.Connection,
	})
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}
	if cfg.Database.Driver == database.DriverSQLite {
		if err := model.AutoMigrate(gormDB); err != nil {
			log.Panicf("Unable to migrate SQLite schema: %v", err)
		}
	}

	// 4. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg, sysLogger)
	srv := server.New(cfg, container)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Run the consumer and the server until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return container.ConsumerService.Consume(gctx)
	})
	g.Go(srv.Run)
	g.Go(func() error {
		<-gctx.Done()
		sysLogger.Info("MAIN", "Shutting down", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(
			srv.Shutdown(shutdownCtx),
			container.Close(shutdownCtx),
			shutdownTracer(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		sysLogger.Error("MAIN", "Server stopped with error", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}
