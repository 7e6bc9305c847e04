package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/streamtag/streamtag/internal/config"
	dbRedis "github.com/streamtag/streamtag/internal/db/redis"
	"github.com/streamtag/streamtag/internal/domain/rule"
	logpkg "github.com/streamtag/streamtag/internal/logger"
	"github.com/streamtag/streamtag/internal/pipeline"
	documentrepo "github.com/streamtag/streamtag/internal/repository/document"
	rulerepo "github.com/streamtag/streamtag/internal/repository/rule"
	chiTransport "github.com/streamtag/streamtag/internal/transport/chi"
	"github.com/streamtag/streamtag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting streamtag ingest daemon",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Strings("store_addrs", cfg.Store.Addrs),
		zap.String("index", cfg.Writer.Index),
		zap.Int("rules", len(cfg.Rules)),
	)

	// Valkey speaks the same protocol; one rueidis store covers both drivers.
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Store.Addrs,
		Password: cfg.Store.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Store.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Store not ready", zap.Error(err))
	}
	logger.Info("Connected to store")

	rules, err := buildRuleSet(cfg.Rules)
	if err != nil {
		logger.Fatal("Invalid rule configuration", zap.Error(err))
	}

	// Repositories
	docRepo := documentrepo.New(store, cfg.Store.KeyPrefix)
	ruleRepo := rulerepo.New(store, cfg.Store.KeyPrefix).WithLogger(logger)

	// Pipeline composition root
	executor := pipeline.NewExecutor(docRepo, pipeline.ExecutorConfig{
		MaxAttempts: cfg.Writer.RetryAttempts,
		BackoffBase: time.Duration(cfg.Writer.BackoffBaseMS) * time.Millisecond,
		CallTimeout: time.Duration(cfg.Writer.CallTimeoutSec) * time.Second,
	}, logger)

	pipe, err := pipeline.New(pipeline.Config{
		Index:         cfg.Writer.Index,
		DocType:       cfg.Writer.Type,
		BatchSize:     cfg.Writer.BatchSize,
		MaxBatchBytes: cfg.Writer.MaxBatchBytes,
		QueueDepth:    cfg.Writer.QueueDepth,
	}, executor, rules, ruleRepo, ruleRepo, logger)
	if err != nil {
		logger.Fatal("Failed to create pipeline", zap.Error(err))
	}

	if err := pipe.Prepare(ctx); err != nil {
		logger.Fatal("Failed to prepare pipeline", zap.Error(err))
	}
	logger.Info("Pipeline ready", zap.Int("batch_size", cfg.Writer.BatchSize))

	// Create chi server
	server := chiTransport.NewServer(pipe, store, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}

	// Final drain: flush whatever the buffer still holds before the store
	// handle goes away.
	if err := pipe.Close(); err != nil {
		logger.Error("Pipeline close", zap.Error(err))
	}

	logger.Info("Stopped",
		zap.Int64("written", pipe.Written()),
		zap.Int64("failed", pipe.Failed()),
	)
}

// buildRuleSet converts configured rules into the domain rule set.
func buildRuleSet(configured []config.RuleConfig) (rule.Set, error) {
	rules := make([]rule.Rule, 0, len(configured))
	for _, rc := range configured {
		policy, err := rule.ParsePolicy(rc.Policy)
		if err != nil {
			return nil, err
		}
		clause, err := rule.NewClause(rc.Query, policy, rc.Fields...)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.ID, err)
		}
		rl, err := rule.Compose(rc.ID, clause)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rl)
	}
	return rule.NewSet(rules...)
}
