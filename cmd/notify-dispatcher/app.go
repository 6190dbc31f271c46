package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BearBump/Dekks/config"
	"github.com/BearBump/Dekks/internal/broker/kafka"
	"github.com/BearBump/Dekks/internal/cache/rediscache"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/BearBump/Dekks/internal/notify/queue"
	"github.com/BearBump/Dekks/internal/notify/smtpmail"
	"github.com/BearBump/Dekks/internal/notify/snssms"
	"github.com/redis/go-redis/v9"
)

type taskConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type dispatcherFactories struct {
	newConsumer func(cfg *config.Config) (consumer taskConsumer, closeFn func())
	// nil when redis is not configured: delivery then has no duplicate protection
	newRedis func(cfg *config.Config) *redis.Client
	newSinks func(ctx context.Context, cfg *config.Config) (map[string]notify.Sink, error)
}

func defaultDispatcherFactories() dispatcherFactories {
	return dispatcherFactories{
		newConsumer: func(cfg *config.Config) (taskConsumer, func()) {
			c := kafka.NewConsumer(cfg.Kafka.Brokers(), cfg.Kafka.NotificationTasksTopicName, cfg.Dispatcher.ConsumerGroup)
			return c, func() { _ = c.Close() }
		},
		newRedis: func(cfg *config.Config) *redis.Client {
			if !cfg.Redis.Enabled() {
				return nil
			}
			return rediscache.NewClient(cfg.Redis.Addr())
		},
		newSinks: defaultSinks,
	}
}

func defaultSinks(ctx context.Context, cfg *config.Config) (map[string]notify.Sink, error) {
	sinks := map[string]notify.Sink{}
	if cfg.SMTP.Enabled {
		sinks[notify.ChannelEmail] = smtpmail.New(smtpmail.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Timeout:  cfg.SMTP.Timeout(),
		})
	}
	if cfg.SNS.Enabled {
		s, err := snssms.New(ctx, cfg.SNS.Region, cfg.SNS.Endpoint)
		if err != nil {
			return nil, err
		}
		sinks[notify.ChannelSMS] = s
	}
	if len(sinks) == 0 {
		return nil, errors.New("no delivery channel configured: enable smtp and/or sns")
	}
	return sinks, nil
}

// RunNotifyDispatcher consumes notification tasks until ctx is done or the consumer fails.
// A consumer failure stops the process: the uncommitted task is redelivered after restart.
func RunNotifyDispatcher(ctx context.Context, cfg *config.Config, f dispatcherFactories, opts dispatcherHTTPOpts) error {
	sinks, err := f.newSinks(ctx, cfg)
	if err != nil {
		return err
	}

	var dedup queue.Deduper
	if rc := f.newRedis(cfg); rc != nil {
		defer func() { _ = rc.Close() }()
		dedup = rediscache.NewDedup(rc, "dekks:notif:")
		opts.redis = rc
	}

	d := queue.NewDispatcher(sinks, dedup).
		WithSettings(cfg.Dispatcher.Attempts, cfg.Dispatcher.SendTimeout(), cfg.Dispatcher.DedupTTL())

	consumer, closeFn := f.newConsumer(cfg)
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.dispatcher = d
	if opts.httpAddr == "" {
		opts.httpAddr = cfg.Dispatcher.HTTPAddr
	}
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runDispatcherHTTPServer(ctx, opts)
	}()

	consumeErr := make(chan error, 1)
	go func() {
		slog.Info("kafka consumer started", "topic", cfg.Kafka.NotificationTasksTopicName, "group", cfg.Dispatcher.ConsumerGroup)
		consumeErr <- consumer.Consume(ctx, func(key, value []byte) error {
			return d.Handle(ctx, key, value)
		})
	}()

	select {
	case <-ctx.Done():
		// дождаться задачи, которая сейчас в обработке
		<-consumeErr
		return ctx.Err()
	case err := <-consumeErr:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("notification consumer stopped", "error", err)
		return err
	case err := <-httpErr:
		cancel()
		<-consumeErr
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
