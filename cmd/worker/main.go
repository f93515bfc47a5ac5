package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/akimov/audiopipe/internal/blob"
	"github.com/akimov/audiopipe/internal/config"
	"github.com/akimov/audiopipe/internal/converter"
	"github.com/akimov/audiopipe/internal/queue"
	"github.com/akimov/audiopipe/internal/status"
	"github.com/akimov/audiopipe/internal/worker"
	"github.com/getsentry/sentry-go"
)

const file = "config.json"

func main() {
	cfg := config.NewConfig()
	if err := cfg.Read(file); err != nil {
		log.Fatal(err)
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.SentryDSN,
		Environment: cfg.Sentry.Environment,
		Release:     "v1",
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		sentry.CaptureException(err)
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	blobs, err := blob.NewStore(&cfg.Blob)
	if err != nil {
		return err
	}

	q, err := queue.New(cfg.Amqp.URL)
	if err != nil {
		return err
	}
	defer q.Close()

	for _, name := range []string{cfg.Amqp.VideoQueue, cfg.Amqp.Mp3Queue} {
		if err := q.Declare(name); err != nil {
			return err
		}
	}

	extractor := converter.NewExtractor(&cfg.Worker)
	if err := extractor.VerifyInstalled(ctx); err != nil {
		return err
	}

	statuses := status.NewStore(&cfg.Redis)
	defer statuses.Close()

	deliveries, err := q.Consume(cfg.Amqp.VideoQueue)
	if err != nil {
		return err
	}

	w := worker.New(worker.Config{
		VideoQueue:  cfg.Amqp.VideoQueue,
		Mp3Queue:    cfg.Amqp.Mp3Queue,
		MaxAttempts: cfg.Worker.MaxAttempts,
	}, blobs, q, extractor, statuses)

	return w.Run(ctx, deliveries)
}
