package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BearBump/Dekks/config"
	"github.com/BearBump/Dekks/internal/metrics"
	"github.com/BearBump/Dekks/internal/services/reconciler"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type workerHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	engine    *reconciler.Engine
	scheduler *reconciler.Scheduler
	store     pinger
	cfg       *config.Config
}

func runWorkerHTTPServer(ctx context.Context, opts workerHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8081"
	}
	if opts.swaggerPath != "" {
		if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
			return fmt.Errorf("worker swagger file not found: %s", opts.swaggerPath)
		}
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newWorkerRouter(opts), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newWorkerRouter(opts workerHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if opts.store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := opts.store.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		if opts.engine == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not wired"})
			return
		}
		out := map[string]any{"engine": opts.engine.Stats()}
		if opts.scheduler != nil {
			out["scheduler"] = opts.scheduler.Stats()
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "config not wired"})
			return
		}
		// без секретов: только рабочие настройки воркера
		wc := opts.cfg.Worker
		writeJSON(w, http.StatusOK, map[string]any{
			"intervalSeconds":       wc.IntervalSeconds,
			"batchSize":             wc.BatchSize,
			"concurrency":           wc.Concurrency,
			"fetchTimeoutSeconds":   wc.FetchTimeoutSeconds,
			"vesselTimeoutSeconds":  wc.VesselTimeoutSeconds,
			"notifyTimeoutSeconds":  wc.NotifyTimeoutSeconds,
			"lockTTLSeconds":        wc.LockTTLSeconds,
			"retryAttempts":         wc.RetryAttempts,
			"retryInitialMs":        wc.RetryInitialMillis,
			"rateLimitPerMinute":    wc.RateLimitPerMinute,
			"vesselCacheTTLSeconds": wc.VesselCacheTTLSeconds,
			"trackingProvider":      wc.TrackingProvider,
			"vesselProvider":        wc.VesselProvider,
			"notificationMode":      wc.NotificationMode,
			"kafkaEnabled":          opts.cfg.Kafka.Enabled(),
			"redisEnabled":          opts.cfg.Redis.Enabled(),
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.scheduler == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "scheduler not wired"})
			return
		}
		opts.scheduler.Trigger()
		writeJSON(w, http.StatusAccepted, map[string]bool{"triggered": true})
	})

	r.Handle("/metrics", metrics.Handler())

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})

		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}
