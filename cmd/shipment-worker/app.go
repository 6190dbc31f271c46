package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BearBump/Dekks/config"
	"github.com/BearBump/Dekks/internal/broker/kafka"
	"github.com/BearBump/Dekks/internal/cache/rediscache"
	"github.com/BearBump/Dekks/internal/integrations/tracking"
	trackingfake "github.com/BearBump/Dekks/internal/integrations/tracking/fake"
	"github.com/BearBump/Dekks/internal/integrations/tracking/jsoncargo"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/BearBump/Dekks/internal/integrations/vessel/datalastic"
	vesselfake "github.com/BearBump/Dekks/internal/integrations/vessel/fake"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/BearBump/Dekks/internal/notify/queue"
	"github.com/BearBump/Dekks/internal/notify/smtpmail"
	"github.com/BearBump/Dekks/internal/notify/snssms"
	"github.com/BearBump/Dekks/internal/services/reconciler"
	"github.com/BearBump/Dekks/internal/storage/pgshipment"
	"github.com/redis/go-redis/v9"
)

// workerStore is what the worker needs from storage: the engine's store plus Ping for readiness.
type workerStore interface {
	reconciler.Store
	Ping(ctx context.Context) error
}

type eventProducer interface {
	reconciler.Publisher
	Close() error
}

type workerFactories struct {
	newStorage        func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newTrackingClient func(cfg *config.Config) tracking.Client
	// nil disables vessel enrichment
	newVesselClient func(cfg *config.Config) vessel.Client
	// nil when kafka is not configured
	newProducer func(cfg *config.Config) eventProducer
	// nil when redis is not configured
	newRedis func(cfg *config.Config) *redis.Client
	newSinks func(ctx context.Context, cfg *config.Config, producer eventProducer) (email, sms notify.Sink, err error)
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgshipment.New(cfg.Database.DSN())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newTrackingClient: func(cfg *config.Config) tracking.Client {
			switch cfg.Worker.TrackingProvider {
			case "fake":
				return trackingfake.New()
			default:
				return jsoncargo.New(cfg.JSONCargo.BaseURL, cfg.JSONCargo.APIKey, cfg.Worker.FetchTimeout())
			}
		},
		newVesselClient: func(cfg *config.Config) vessel.Client {
			switch cfg.Worker.VesselProvider {
			case "datalastic":
				return datalastic.New(cfg.Datalastic.BaseURL, cfg.Datalastic.APIKey, cfg.Worker.VesselTimeout()).
					WithRateLimit(cfg.Datalastic.RatePerSecond, cfg.Datalastic.Burst)
			case "fake":
				return vesselfake.New()
			default:
				return nil
			}
		},
		newProducer: func(cfg *config.Config) eventProducer {
			if !cfg.Kafka.Enabled() {
				return nil
			}
			return kafka.NewProducer(cfg.Kafka.Brokers())
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

// defaultSinks sends directly over SMTP/SNS, or, in queue mode, enqueues tasks for notify-dispatcher.
func defaultSinks(ctx context.Context, cfg *config.Config, producer eventProducer) (notify.Sink, notify.Sink, error) {
	var email, sms notify.Sink

	if cfg.Worker.NotificationMode == config.NotificationModeQueue {
		if producer == nil {
			return nil, nil, errors.New("notification_mode=queue requires kafka")
		}
		topic := cfg.Kafka.NotificationTasksTopicName
		return queue.NewSink(producer, topic, notify.ChannelEmail), queue.NewSink(producer, topic, notify.ChannelSMS), nil
	}

	if cfg.SMTP.Enabled {
		email = smtpmail.New(smtpmail.Config{
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
			return nil, nil, err
		}
		sms = s
	}
	return email, sms, nil
}

func engineSettings(cfg *config.Config) reconciler.Settings {
	w := cfg.Worker
	return reconciler.Settings{
		Interval:           w.Interval(),
		BatchSize:          w.BatchSize,
		Concurrency:        w.Concurrency,
		FetchTimeout:       w.FetchTimeout(),
		VesselTimeout:      w.VesselTimeout(),
		NotifyTimeout:      w.NotifyTimeout(),
		LockTTL:            w.LockTTL(),
		RetryAttempts:      w.RetryAttempts,
		RetryInitial:       w.RetryInitial(),
		RateLimitPerMinute: int64(w.RateLimitPerMinute),
		VesselCacheTTL:     w.VesselCacheTTL(),
	}
}

type worker struct {
	engine *reconciler.Engine
	store  workerStore
	close  func()
}

// buildWorker wires every collaborator into the engine. close releases them in reverse order.
func buildWorker(ctx context.Context, cfg *config.Config, f workerFactories) (*worker, error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return nil, err
	}
	if closeFn != nil {
		closers = append(closers, closeFn)
	}

	engine := reconciler.New(store, f.newTrackingClient(cfg)).WithSettings(engineSettings(cfg))

	if vc := f.newVesselClient(cfg); vc != nil {
		engine.WithVessel(vc)
	}

	producer := f.newProducer(cfg)
	if producer != nil {
		closers = append(closers, func() { _ = producer.Close() })
		engine.WithPublisher(producer, cfg.Kafka.ShipmentUpdatedTopicName)
	}

	if rc := f.newRedis(cfg); rc != nil {
		closers = append(closers, func() { _ = rc.Close() })
		engine.
			WithLocker(rediscache.NewLocker(rc, "dekks:lock:")).
			WithRateLimiter(rediscache.NewRateLimiter(rc)).
			WithPositionCache(rediscache.New(rc, "dekks:"))
	}

	email, sms, err := f.newSinks(ctx, cfg, producer)
	if err != nil {
		closeAll()
		return nil, err
	}
	engine.WithSinks(email, sms)

	return &worker{engine: engine, store: store, close: closeAll}, nil
}

// RunShipmentWorker runs the scheduler and the ops HTTP server until ctx is done.
func RunShipmentWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerHTTPOpts) error {
	w, err := buildWorker(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer w.close()

	sched := reconciler.NewScheduler(w.engine, cfg.Worker.Interval())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts.engine = w.engine
	opts.scheduler = sched
	opts.store = w.store
	opts.cfg = cfg
	if opts.httpAddr == "" {
		opts.httpAddr = cfg.Worker.HTTPAddr
	}

	httpDone := make(chan error, 1)
	go func() {
		err := runWorkerHTTPServer(ctx, opts)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker http server", "error", err.Error())
			cancel()
		}
		httpDone <- err
	}()

	runErr := sched.Run(ctx)
	httpErr := <-httpDone
	if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
		return httpErr
	}
	return runErr
}

// RunReconcileOnce performs a single pass over all tracked shipments.
func RunReconcileOnce(ctx context.Context, cfg *config.Config, f workerFactories) (reconciler.Report, error) {
	w, err := buildWorker(ctx, cfg, f)
	if err != nil {
		return reconciler.Report{}, err
	}
	defer w.close()

	return w.engine.ReconcileAll(ctx)
}
