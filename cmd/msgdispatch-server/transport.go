package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	nats "github.com/nats-io/nats.go"
	amqp091 "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/coregx/msgdispatch"
	amqpadapter "github.com/coregx/msgdispatch/adapters/amqp"
	kafkaadapter "github.com/coregx/msgdispatch/adapters/kafka"
	"github.com/coregx/msgdispatch/adapters/memory"
	natsadapter "github.com/coregx/msgdispatch/adapters/nats"
	redisadapter "github.com/coregx/msgdispatch/adapters/redis"
	"github.com/coregx/msgdispatch/adapters/relica"
	"github.com/coregx/msgdispatch/cmd/msgdispatch-server/internal/config"
	"github.com/coregx/msgdispatch/metric"
)

// transport is the wired broker together with its background loops.
type transport struct {
	broker        msgdispatch.Broker
	runners       []func(ctx context.Context) error
	closers       []func() error
	subscriptions *msgdispatch.SubscriptionManager
	worker        *msgdispatch.QueueWorker
}

func (t *transport) run(fn func(ctx context.Context) error) { t.runners = append(t.runners, fn) }
func (t *transport) onClose(fn func() error)                { t.closers = append(t.closers, fn) }

// Close releases connections in reverse order of creation.
func (t *transport) Close() error {
	var first error
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newTransport connects the configured broker and routes its destination to
// the listener.
func newTransport(
	ctx context.Context,
	cfg *config.Config,
	listener *msgdispatch.Listener,
	logger *msgdispatch.SlogLogger,
	metrics *metric.Metrics,
) (*transport, error) {
	t := &transport{}
	slogger := logger.Slog()
	destination := cfg.Broker.Destination
	handler := listener.AcceptFunc()

	switch cfg.Broker.Kind {
	case config.BrokerMemory:
		b := memory.NewBroker()
		if err := b.Subscribe(destination, handler); err != nil {
			return nil, err
		}
		t.broker = b
		t.onClose(b.Close)

	case config.BrokerOutbox:
		if err := t.wireOutbox(ctx, cfg, listener, logger, metrics); err != nil {
			_ = t.Close()
			return nil, err
		}

	case config.BrokerKafka:
		pub := kafkaadapter.NewPublisher(kafkaadapter.PublisherConfig{
			Brokers: cfg.Broker.Brokers,
			Logger:  slogger,
		})
		sub := kafkaadapter.NewSubscriber(kafkaadapter.SubscriberConfig{
			Brokers:       cfg.Broker.Brokers,
			Topics:        []string{destination},
			ConsumerGroup: cfg.Broker.ConsumerGroup,
			Logger:        slogger,
		}, handler)
		t.broker = pub
		t.run(sub.Run)
		t.onClose(pub.Close)
		t.onClose(sub.Close)

	case config.BrokerNATS:
		nc, err := nats.Connect(cfg.Broker.URL, nats.Name(cfg.Dispatch.ApplicationName))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		t.onClose(func() error { nc.Close(); return nil })
		t.broker = natsadapter.NewPublisher(nc, natsadapter.PublisherConfig{Logger: slogger})
		t.run(natsadapter.NewSubscriber(nc, natsadapter.SubscriberConfig{
			Subject: destination,
			Queue:   cfg.Broker.ConsumerGroup,
			Logger:  slogger,
		}, handler).Run)

	case config.BrokerAMQP:
		if err := t.wireAMQP(cfg, handler, slogger); err != nil {
			_ = t.Close()
			return nil, err
		}

	case config.BrokerRedis:
		opts, err := goredis.ParseURL(cfg.Broker.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := goredis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		t.onClose(client.Close)
		t.broker = redisadapter.NewPublisher(client, redisadapter.PublisherConfig{Logger: slogger})
		t.run(redisadapter.NewSubscriber(client, redisadapter.SubscriberConfig{
			Stream: destination,
			Group:  cfg.Broker.ConsumerGroup,
			Logger: slogger,
		}, handler).Run)

	default:
		return nil, fmt.Errorf("unsupported broker kind %q", cfg.Broker.Kind)
	}

	return t, nil
}

// wireOutbox opens the database, applies migrations and builds the outbox
// broker, the subscription manager and the worker. The listener is
// subscribed to the configured destination.
func (t *transport) wireOutbox(
	ctx context.Context,
	cfg *config.Config,
	listener *msgdispatch.Listener,
	logger *msgdispatch.SlogLogger,
	metrics *metric.Metrics,
) error {
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	t.onClose(db.Close)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.Migrate {
		if err := msgdispatch.ApplyMigrations(ctx, db, cfg.Database.Driver); err != nil {
			return err
		}
		logger.Info("Migrations applied")
	}

	repos := relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)

	var notifications msgdispatch.NotificationService = &msgdispatch.NoOpNotificationService{}
	if cfg.Worker.EnableNotifications {
		notifications = msgdispatch.NewLoggingNotificationService(logger)
	}

	outbox, err := msgdispatch.NewOutboxBroker(
		msgdispatch.WithOutboxRepositories(repos.Message, repos.Delivery, repos.Subscription),
		msgdispatch.WithOutboxLogger(logger),
	)
	if err != nil {
		return err
	}
	t.broker = outbox

	t.subscriptions, err = msgdispatch.NewSubscriptionManager(
		msgdispatch.WithSubscriptionManagerRepository(repos.Subscription),
		msgdispatch.WithSubscriptionManagerLogger(logger),
		msgdispatch.WithSubscriptionManagerNotifications(notifications),
	)
	if err != nil {
		return err
	}

	t.worker, err = msgdispatch.NewQueueWorker(
		msgdispatch.WithWorkerRepositories(repos.Delivery, repos.Message, repos.Subscription, repos.DeadLetter),
		msgdispatch.WithListeners(listener),
		msgdispatch.WithWorkerLogger(logger),
		msgdispatch.WithBatchSize(cfg.Worker.BatchSize),
		msgdispatch.WithNotifications(notifications),
		msgdispatch.WithWorkerObserver(metrics),
	)
	if err != nil {
		return err
	}

	if _, err := t.subscriptions.Subscribe(ctx, msgdispatch.SubscribeRequest{
		Destination: cfg.Broker.Destination,
		ListenerID:  listener.ID(),
	}); err != nil {
		return err
	}

	worker := t.worker
	t.run(func(ctx context.Context) error {
		logger.Infof("Starting queue worker (interval: %v, retry schedule: %s)",
			cfg.Worker.Interval, worker.GetRetrySchedule())
		worker.Run(ctx, cfg.Worker.Interval)
		return nil
	})
	return nil
}

// wireAMQP opens one channel for publishing and one for consuming.
func (t *transport) wireAMQP(cfg *config.Config, handler msgdispatch.MessageHandler, logger *slog.Logger) error {
	conn, err := amqp091.Dial(cfg.Broker.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	t.onClose(conn.Close)

	pubCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open publish channel: %w", err)
	}
	subCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consume channel: %w", err)
	}

	t.broker = amqpadapter.NewPublisher(pubCh, amqpadapter.PublisherConfig{
		Exchange: cfg.Broker.Exchange,
		Logger:   logger,
	})
	t.run(amqpadapter.NewSubscriber(subCh, amqpadapter.SubscriberConfig{
		Exchange:   cfg.Broker.Exchange,
		Queue:      cfg.Broker.ConsumerGroup,
		BindingKey: cfg.Broker.Destination,
		Durable:    true,
		Logger:     logger,
	}, handler).Run)
	return nil
}
