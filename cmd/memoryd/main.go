package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/agent-memory/internal/api"
	"github.com/nidhogg/agent-memory/internal/config"
	"github.com/nidhogg/agent-memory/internal/curator"
	"github.com/nidhogg/agent-memory/internal/ingestion"
	"github.com/nidhogg/agent-memory/internal/provider"
	"github.com/nidhogg/agent-memory/internal/queue"
	"github.com/nidhogg/agent-memory/internal/retrieval"
	siglog "github.com/nidhogg/agent-memory/internal/signal"
	pgstore "github.com/nidhogg/agent-memory/internal/store"
	"github.com/nidhogg/agent-memory/internal/vectorstore"
)

const ingestionStream = "memory:ingestion"
const ingestionGroup = "memory:ingestion:consumers"

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting agent memory service...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/memoryd.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	pgStore, err := pgstore.New(cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("postgres unavailable", zap.Error(err))
	}
	if err := pgStore.Migrate(context.Background(), "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	vectors, err := vectorstore.NewClient(vectorstore.Config{
		Host: cfg.Database.Qdrant.Host,
		Port: cfg.Database.Qdrant.Port,
	})
	if err != nil {
		logger.Fatal("qdrant unavailable", zap.Error(err))
	}
	if err := vectors.EnsureCollection(context.Background(), retrieval.Collection, uint64(cfg.Embedding.Dimension)); err != nil {
		logger.Fatal("failed to ensure qdrant collection", zap.Error(err))
	}

	q, err := queue.New(cfg.Database.Redis.URL, ingestionStream, ingestionGroup, logger)
	if err != nil {
		logger.Fatal("redis unavailable", zap.Error(err))
	}
	if err := q.EnsureGroup(context.Background()); err != nil {
		logger.Fatal("failed to ensure consumer group", zap.Error(err))
	}

	gw, err := provider.NewGateway(logger)
	if err != nil {
		logger.Fatal("failed to build provider gateway", zap.Error(err))
	}
	for _, pc := range cfg.Providers {
		switch pc.Type {
		case "edge":
			edge, edgeErr := provider.NewEdgeBackend(provider.EdgeConfig{
				Host:           pc.Endpoint,
				ReasoningModel: pc.Models["reasoning"],
				StructureModel: pc.Models["structuring"],
			}, logger)
			if edgeErr != nil {
				logger.Warn("edge backend unavailable", zap.Error(edgeErr))
				continue
			}
			gw.Register(edge)
		case "openai":
			if pc.APIKey == "" {
				logger.Warn("skipping openai backend, no api key")
				continue
			}
			gw.Register(provider.NewOpenAIBackend(provider.OpenAIConfig{
				APIKey:     pc.APIKey,
				Endpoint:   pc.Endpoint,
				TextModel:  pc.Models["reasoning"],
				EmbedModel: pc.Models["embedding"],
			}, logger))
		case "gemini":
			if pc.APIKey == "" {
				logger.Warn("skipping gemini backend, no api key")
				continue
			}
			gemini, gemErr := provider.NewGeminiBackend(context.Background(), provider.GeminiConfig{
				APIKey:     pc.APIKey,
				TextModel:  pc.Models["reasoning"],
				EmbedModel: pc.Models["embedding"],
			}, logger)
			if gemErr != nil {
				logger.Warn("gemini backend unavailable", zap.Error(gemErr))
				continue
			}
			gw.Register(gemini)
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	logs := siglog.New(logger)

	frontDoor := ingestion.NewFrontDoor(q)
	consumer := ingestion.New(q, vectors, pgStore, gw, logs, ingestion.Config{
		Collection:  retrieval.Collection,
		ConsumerID:  "consumer-1",
		CallTimeout: config.DefaultCallTimeout,
	}, logger)
	engine := retrieval.New(vectors, pgStore, gw, logger)
	cur := curator.New(pgStore, vectors, gw, logs, curator.Config{
		Interval:            cfg.Curator.Interval.Dur(),
		BatchSize:           cfg.Curator.BatchSize,
		SimilarityThreshold: cfg.Embedding.SimilarityThreshold,
		MaxConsolidations:   cfg.Curator.MaxConsolidations,
		RunDeadline:         cfg.Curator.RunDeadline.Dur(),
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())

	go runConsumerLoop(ctx, consumer, logger)
	go runCuratorLoop(ctx, cur, cfg.Curator.Interval.Dur(), logger)

	handler := api.NewHandler(frontDoor, engine, gw, cur, logs, logger)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("agent memory service listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down agent memory service...")
	cancel()
	shutdownCtx := context.Background()
	srv.Shutdown(shutdownCtx)
	pgStore.Close()
	vectors.Close()
	q.Close()
}

func runConsumerLoop(ctx context.Context, consumer *ingestion.Consumer, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := consumer.RunOnce(ctx, 10, 5*time.Second); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("consumer run failed", zap.Error(err))
			time.Sleep(time.Second)
		}
	}
}

func runCuratorLoop(ctx context.Context, cur *curator.Curator, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = config.DefaultCuratorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			cur.OnTick(ctx, t)
		}
	}
}
