package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"renobroker/internal/mqhandler"
	"renobroker/internal/repository"
	"renobroker/pkg/config"
	"renobroker/pkg/db"
	"renobroker/pkg/logger"
	"renobroker/pkg/mq"
	"renobroker/pkg/outbox"
	redisclient "renobroker/pkg/redis"
	"renobroker/pkg/util"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}

	log.Info("Starting worker service...")

	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	rdb := redisclient.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduperWithLogger(rdb, time.Hour, log)

	// Outbox dispatcher: publishes the domain events the api recorded.
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("MQ publisher initialization failed", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.EnsureDLQ(); err != nil {
		log.Fatal("DLQ declaration failed", zap.Error(err))
	}

	outboxRepo := outbox.NewRepository(dbConn)
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Start(ctx)

	// Notification projections
	notiRepo := repository.NewNotificationRepository(dbConn, log)
	projectHandler := mqhandler.NewProjectNotificationHandler(notiRepo, deduper, log)
	bidHandler := mqhandler.NewBidNotificationHandler(notiRepo, deduper, log)
	paymentHandler := mqhandler.NewPaymentNotificationHandler(notiRepo, deduper, log)

	consumers := []struct {
		queue      string
		routingKey string
		handler    mq.MessageHandler
	}{
		{"project.events.q", "project.*", projectHandler.HandleProjectEvent},
		{"match.events.q", "match.*", projectHandler.HandleMatchRejected},
		{"bid.events.q", "bid.*", bidHandler.HandleBidEvent},
		{"escrow.events.q", "escrow.*", paymentHandler.HandleEscrowEvent},
		{"fee.events.q", "fee.*", paymentHandler.HandleFeeEvent},
	}

	for _, c := range consumers {
		log.Info("Initializing consumer",
			zap.String("queue", c.queue),
			zap.String("routing_key", c.routingKey),
		)
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, log)
		if err != nil {
			log.Fatal("Failed to init consumer",
				zap.String("queue", c.queue),
				zap.Error(err),
			)
		}
		consumer.SetHandler(c.handler)
		defer consumer.Close()

		go func(consumer *mq.Consumer, queue string) {
			if err := consumer.StartConsuming(); err != nil {
				log.Fatal("Consumer failed",
					zap.String("queue", queue),
					zap.Error(err),
				)
			}
		}(consumer, c.queue)
	}

	log.Info("All consumers started, worker is ready to process messages")

	// Keep worker running
	select {}
}
