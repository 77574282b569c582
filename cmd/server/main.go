package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
	"github.com/suPer8Hu/jewelry-assistant/internal/assistant"
	"github.com/suPer8Hu/jewelry-assistant/internal/catalog"
	"github.com/suPer8Hu/jewelry-assistant/internal/chat"
	"github.com/suPer8Hu/jewelry-assistant/internal/config"
	"github.com/suPer8Hu/jewelry-assistant/internal/db"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi"
	"github.com/suPer8Hu/jewelry-assistant/internal/httpapi/handlers"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/knowledge"
	"github.com/suPer8Hu/jewelry-assistant/internal/logging"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/rabbitmq"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/redisstore"
	"github.com/suPer8Hu/jewelry-assistant/internal/tools"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.Debug)
	defer func() { _ = logger.Sync() }()
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	if err := rds.Ping(ctx); err != nil {
		logger.Warn("redis unavailable; wishlist and status cache will fail", zap.Error(err))
	}

	know := knowledge.NewService(knowledge.NewRepo(gdb), logger)
	if cfg.KnowledgeSeedPath != "" {
		rep, err := know.SyncSeedFile(ctx, cfg.KnowledgeSeedPath)
		if err != nil {
			logger.Fatal("knowledge seed", zap.String("path", cfg.KnowledgeSeedPath), zap.Error(err))
		}
		logger.Info("knowledge seeded", zap.Int("created", rep.Created), zap.Int("updated", rep.Updated))
		go func() {
			if err := know.WatchSeed(ctx, cfg.KnowledgeSeedPath); err != nil {
				logger.Error("knowledge seed watcher stopped", zap.Error(err))
			}
		}()
	}

	images, shutdownImages := newImageManager(ctx, cfg, gdb, rds, logger)
	defer shutdownImages()

	model, err := ai.DefaultRegistry(cfg.OllamaBaseURL, ai.OpenRouterSettings{
		BaseURL: cfg.OpenRouterBaseURL,
		APIKey:  cfg.OpenRouterAPIKey,
		Model:   cfg.OpenRouterModel,
		SiteURL: cfg.OpenRouterSiteURL,
		AppName: cfg.OpenRouterAppName,
	}).Get(ctx, cfg.AIProvider, chatModel(cfg))
	if err != nil {
		logger.Fatal("ai provider", zap.Error(err))
	}

	cat := catalog.NewRepo(gdb)
	sessions := chat.NewService(chat.NewRepo(gdb), logger, cfg.ChatContextWindowSize)
	reg := tools.NewRegistry(tools.Deps{
		Catalog:   cat,
		Wishlist:  rds,
		Knowledge: know,
		Images:    images,
		Logger:    logger,
	})
	loop := assistant.NewLoop(model, reg, sessions, assistant.Config{
		MaxSteps: cfg.AssistantMaxSteps,
		Logger:   logger,
	})

	h := handlers.NewHandler(handlers.Handler{
		Assistant: loop,
		Images:    images,
		Knowledge: know,
		Sessions:  sessions,
		Catalog:   cat,
		Wishlist:  rds,
		Logger:    logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, cfg.AdminJWTSecret, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("ai_provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
}

func chatModel(cfg config.Config) string {
	if strings.EqualFold(cfg.AIProvider, "openrouter") {
		return cfg.OpenRouterModel
	}
	return cfg.OllamaModel
}

// newImageManager publishes jobs to RabbitMQ for cmd/worker. When the broker
// is unreachable it falls back to an in-process pool plus a local
// reconcile loop, so a single binary still completes designs.
func newImageManager(ctx context.Context, cfg config.Config, gdb *gorm.DB, rds *redisstore.Store, logger *zap.Logger) (*imagegen.Manager, func()) {
	store := imagegen.NewGormStore(gdb)
	opts := imagegen.Options{Timeout: cfg.ImageTimeout, Cache: rds, Logger: logger}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err == nil {
		logger.Info("image jobs go to rabbitmq", zap.String("queue", cfg.RabbitQueue))
		return imagegen.NewManager(store, pub, nil, opts), func() { _ = pub.Close() }
	}
	logger.Warn("rabbitmq unavailable; running image jobs in-process", zap.Error(err))

	gen, err := ai.NewImageGenerator(ctx, cfg.ImageProvider, cfg.ImageAPIURL, cfg.GenAIAPIKey, cfg.GenAIImageModel)
	if err != nil {
		logger.Fatal("image generator", zap.Error(err))
	}
	local := imagegen.NewLocalQueue(cfg.WorkerConcurrent, cfg.WorkerConcurrent*4, logger)
	m := imagegen.NewManager(store, local, gen, opts)
	local.Start(ctx, m.Process)

	go func() {
		t := time.NewTicker(cfg.ReconcileEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if _, err := m.Reconcile(ctx, cfg.ImageStaleAfter); err != nil {
					logger.Error("reconcile", zap.Error(err))
				}
			}
		}
	}()
	return m, local.Close
}
