package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/jewelry-assistant/internal/ai"
	"github.com/suPer8Hu/jewelry-assistant/internal/config"
	"github.com/suPer8Hu/jewelry-assistant/internal/db"
	"github.com/suPer8Hu/jewelry-assistant/internal/imagegen"
	"github.com/suPer8Hu/jewelry-assistant/internal/logging"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/rabbitmq"
	"github.com/suPer8Hu/jewelry-assistant/internal/store/redisstore"
	"go.uber.org/zap"
)

const (
	maxAttempts = 3
	retryDelay  = 5 * time.Second
)

func main() {
	cfg := config.Load()
	logger := logging.Must(cfg.Debug).Named("worker")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDSN)
	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	gen, err := ai.NewImageGenerator(ctx, cfg.ImageProvider, cfg.ImageAPIURL, cfg.GenAIAPIKey, cfg.GenAIImageModel)
	if err != nil {
		logger.Fatal("image generator", zap.Error(err))
	}

	// retries and reconcile re-enqueues go through the same publisher
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("rabbit publisher", zap.Error(err))
	}
	defer pub.Close()

	manager := imagegen.NewManager(imagegen.NewGormStore(gdb), pub, gen, imagegen.Options{
		Timeout: cfg.ImageTimeout,
		Cache:   rds,
		Logger:  logger,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrent
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	logger.Info("worker started", zap.String("queue", cfg.RabbitQueue), zap.Int("concurrency", concurrency))

	go reconcileLoop(ctx, manager, cfg.ReconcileEvery, cfg.ImageStaleAfter, logger)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			log := logger.With(zap.Int("worker", workerID))
			for d := range jobs {
				handleDelivery(ctx, manager, pub, d, log)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Error("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, m *imagegen.Manager, pub *rabbitmq.Publisher, d amqp.Delivery, log *zap.Logger) {
	id, err := rabbitmq.DecodeMessage(d.Body)
	if err != nil {
		log.Warn("bad message", zap.Error(err))
		_ = d.Nack(false, false) // -> DLQ
		return
	}
	log = log.With(zap.String("tool_call_id", id))

	start := time.Now()
	if err := m.Process(ctx, id); err != nil {
		attempt := rabbitmq.Attempt(d.Headers) + 1
		log.Error("process failed", zap.Int("attempt", attempt), zap.Duration("cost", time.Since(start)), zap.Error(err))
		if attempt >= maxAttempts {
			_ = d.Nack(false, false)
			return
		}
		if err := pub.Retry(ctx, id, attempt, retryDelay*time.Duration(attempt)); err != nil {
			log.Error("retry publish failed", zap.Error(err))
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
	log.Debug("job handled", zap.Duration("cost", time.Since(start)))
}

// reconcileLoop fails jobs stranded in processing by a crashed worker and
// re-enqueues pending jobs whose publish was lost.
func reconcileLoop(ctx context.Context, m *imagegen.Manager, every, staleAfter time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rep, err := m.Reconcile(ctx, staleAfter)
			if err != nil {
				log.Error("reconcile", zap.Error(err))
				continue
			}
			if rep.Failed > 0 || rep.Requeued > 0 {
				log.Info("reconciled", zap.Int("failed", rep.Failed), zap.Int("requeued", rep.Requeued))
			}
		}
	}
}
