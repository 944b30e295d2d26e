// Package main is the entry point for the portfolio optimization service.
// It exposes Wasserstein-robust portfolio construction over HTTP and can
// re-optimize on a cron schedule.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ViniHorstFer/portfolio-sub000/internal/config"
	"github.com/ViniHorstFer/portfolio-sub000/internal/database"
	"github.com/ViniHorstFer/portfolio-sub000/internal/history"
	"github.com/ViniHorstFer/portfolio-sub000/internal/optimizer"
	optimizerhandlers "github.com/ViniHorstFer/portfolio-sub000/internal/optimizer/handlers"
	"github.com/ViniHorstFer/portfolio-sub000/internal/results"
	"github.com/ViniHorstFer/portfolio-sub000/internal/scheduler"
	"github.com/ViniHorstFer/portfolio-sub000/internal/server"
	"github.com/ViniHorstFer/portfolio-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting portfolio optimizer service")

	historyDB, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "history.db"),
		Name: "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	repo := history.NewRepository(historyDB.Conn(), log)
	if err := repo.InitSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history schema")
	}

	store, err := results.NewStore(filepath.Join(cfg.DataDir, "results"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize results store")
	}

	handlers := optimizerhandlers.NewHandler(repo, store, cfg.Optimizer, cfg.LookbackDays, log)

	srv := server.New(server.Config{
		Log:               log,
		Port:              cfg.Port,
		DevMode:           cfg.DevMode,
		OptimizerHandlers: handlers,
	})

	// Scheduled re-optimization keeps the latest snapshot fresh without a
	// caller having to hit /run.
	sched := scheduler.New(log)
	if cfg.Schedule != "" {
		job := func() {
			runScheduledOptimization(repo, store, cfg, log)
		}
		if err := sched.Add(cfg.Schedule, "reoptimize", job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register re-optimization job")
		}
		sched.Start()
		defer sched.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// runScheduledOptimization re-runs the default minimum-volatility construction
// over the full fund universe and persists the snapshot.
func runScheduledOptimization(repo *history.Repository, store *results.Store, cfg *config.Config, log zerolog.Logger) {
	symbols, err := repo.ListFunds()
	if err != nil {
		log.Error().Err(err).Msg("Scheduled optimization: failed to list funds")
		return
	}
	if len(symbols) == 0 {
		log.Warn().Msg("Scheduled optimization: no funds in universe")
		return
	}

	categories, err := repo.LoadCategories()
	if err != nil {
		log.Error().Err(err).Msg("Scheduled optimization: failed to load categories")
		return
	}

	returns, err := repo.LoadReturnMatrix(symbols, cfg.LookbackDays)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled optimization: failed to load returns")
		return
	}

	opt := optimizer.New(returns, categories, cfg.Optimizer, log)
	result := opt.Optimize(optimizer.ObjectiveMinVolatility, optimizer.PortfolioConstraints{}, optimizer.WeightConstraints{}, true)

	if _, err := store.Save(string(optimizer.ObjectiveMinVolatility), result); err != nil {
		log.Error().Err(err).Msg("Scheduled optimization: failed to persist result")
		return
	}
	log.Info().
		Bool("success", result.Success).
		Str("status", result.SolverStatus).
		Msg("Scheduled optimization complete")
}
