package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fundraising/pledge-service/config"
	"github.com/fundraising/pledge-service/internal/controller/restapi"
	"github.com/fundraising/pledge-service/internal/controller/worker/outboxpub"
	"github.com/fundraising/pledge-service/internal/controller/worker/scheduler"
	infrakafka "github.com/fundraising/pledge-service/internal/infrastructure/kafka"
	"github.com/fundraising/pledge-service/internal/repo/persistent"
	"github.com/fundraising/pledge-service/internal/usecase/pledge"
	"github.com/fundraising/pledge-service/internal/usecase/webhook"
	"github.com/fundraising/pledge-service/pkg/httpserver"
	"github.com/fundraising/pledge-service/pkg/kafka/producer"
	"github.com/fundraising/pledge-service/pkg/logger"
	"github.com/fundraising/pledge-service/pkg/postgres"
)

func Run(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Logger
	l := logger.New(cfg.Log.Level)

	// Repository
	pg, err := postgres.New(cfg.PG.URL, postgres.MaxPoolSize(cfg.PG.PoolMax))
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - postgres.New: %w", err))
	}
	defer pg.Close()

	// Use-Case

	// pledge command service
	pledgeUseCase := pledge.New(
		persistent.NewPledgeRepo(pg),
		persistent.NewOutboxRepo(pg),
		pg,
		cfg.Pledge.UpdateRetries,
		l,
	)

	// webhook idempotency gate
	webhookUseCase := webhook.New(
		pledgeUseCase,
		persistent.NewWebhookReceiptRepo(pg),
		pg,
		l,
	)

	// Kafka Producer
	kafkaProducer, err := producer.New(ctx, cfg.Kafka.Brokers)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - producer.New: %w", err))
	}

	// Outbox Publisher Worker
	publisherWorker := outboxpub.New(
		pledgeUseCase,
		infrakafka.NewEventProducer(kafkaProducer),
		l,
		cfg.Publisher.PollInterval,
		cfg.Publisher.MarkFailedInterval,
		cfg.Publisher.ProcessBatchTimeout,
		cfg.Publisher.BatchSize,
		cfg.Publisher.MaxAttempts,
	)

	// Due-Payment Scheduler Worker
	schedulerWorker := scheduler.New(
		pledgeUseCase,
		l,
		cfg.Scheduler.SweepInterval,
		cfg.Scheduler.SweepTimeout,
		cfg.Scheduler.BatchLimit,
	)

	// HTTP Server
	httpServer := httpserver.New(l, httpserver.Port(cfg.HTTP.Port), httpserver.Prefork(cfg.HTTP.UsePreforkMode))
	restapi.NewRouter(httpServer.App, pledgeUseCase, webhookUseCase, l)

	// Start Components
	err = publisherWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - publisherWorker.Start: %w", err))
	}
	err = schedulerWorker.Start(ctx)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - schedulerWorker.Start: %w", err))
	}
	httpServer.Start()

	// Waiting Signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: %s", s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	err = httpServer.Shutdown()
	if err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	schedShutdownCtx, schedShutdownCancel := context.WithTimeout(ctx, cfg.Scheduler.ShutdownTimeout)
	defer schedShutdownCancel()
	err = schedulerWorker.Shutdown(schedShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - schedulerWorker.Shutdown: %w", err))
	}

	pubShutdownCtx, pubShutdownCancel := context.WithTimeout(ctx, cfg.Publisher.ShutdownTimeout)
	defer pubShutdownCancel()
	err = publisherWorker.Shutdown(pubShutdownCtx)
	if err != nil {
		l.Error(fmt.Errorf("app - Run - publisherWorker.Shutdown: %w", err))
	}
}
