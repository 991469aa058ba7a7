package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/clarity-chat/internal/config"
	"github.com/suPer8Hu/clarity-chat/internal/crm"
	"github.com/suPer8Hu/clarity-chat/internal/db"
	"github.com/suPer8Hu/clarity-chat/internal/leads"
	"github.com/suPer8Hu/clarity-chat/internal/logger"
	"github.com/suPer8Hu/clarity-chat/internal/store/rabbitmq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty}).
		With().Str("component", "worker").Logger()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	leadSvc := leads.NewService(gdb, nil, logger.Component("leads"))
	if cfg.CRMWebhookURL == "" {
		log.Warn().Msg("CRM_WEBHOOK_URL is empty, every lead event will dead-letter")
	}
	syncer := crm.NewSyncer(crm.NewWebhook(cfg.CRMWebhookURL, cfg.CRMTimeout), leadSvc, cfg.CRMMaxAttempts, log)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit dial")
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("rabbit channel")
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatal().Err(err).Msg("queue declare")
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatal().Err(err).Msg("qos")
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("consume")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.RabbitQueue).Int("concurrency", concurrency).Msg("worker started")

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With().Int("worker", workerID).Logger()
			for d := range jobs {
				handleDelivery(ctx, ch, cfg, syncer, d, wlog)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn().Msg("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, ch *amqp.Channel, cfg config.Config, syncer *crm.Syncer, d amqp.Delivery, log zerolog.Logger) {
	attempt := rabbitmq.Attempt(d.Headers)

	switch syncer.Handle(ctx, d.Body, attempt) {
	case crm.Ack:
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}

	case crm.Retry:
		// exponential backoff on the retry queue TTL
		delay := rabbitmq.Backoff(cfg.CRMRetryDelay, attempt, time.Hour)
		if err := rabbitmq.Retry(ctx, ch, cfg.RabbitQueue, d.Body, attempt+1, delay); err != nil {
			log.Error().Err(err).Msg("schedule retry failed")
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)

	default:
		// dead-letter to the DLQ
		_ = d.Nack(false, false)
	}
}
