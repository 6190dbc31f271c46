package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/BearBump/Dekks/internal/broker/messages"
	"github.com/BearBump/Dekks/internal/metrics"
	"github.com/BearBump/Dekks/internal/notify"
)

// Deduper remembers which tasks were already delivered.
type Deduper interface {
	Delivered(ctx context.Context, key string) (bool, error)
	MarkDelivered(ctx context.Context, key string, ttl time.Duration) error
}

// Dispatcher delivers NotificationTasks through the sink registered for their channel.
// Handle returns nil for every task it is done with, delivered or dropped, so the
// consumer commits the offset; a task is redelivered only if the process dies mid-way.
// The event is marked delivered after the sink accepted it, never before: a crash
// mid-send costs at most one repeated message, not a lost one.
type Dispatcher struct {
	sinks map[string]notify.Sink
	dedup Deduper

	dedupTTL time.Duration
	attempts int
	timeout  time.Duration

	handled    atomic.Int64
	delivered  atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64
}

func NewDispatcher(sinks map[string]notify.Sink, dedup Deduper) *Dispatcher {
	return &Dispatcher{
		sinks:    sinks,
		dedup:    dedup,
		dedupTTL: 72 * time.Hour,
		attempts: 3,
		timeout:  15 * time.Second,
	}
}

func (d *Dispatcher) WithSettings(attempts int, timeout, dedupTTL time.Duration) *Dispatcher {
	if attempts > 0 {
		d.attempts = attempts
	}
	if timeout > 0 {
		d.timeout = timeout
	}
	if dedupTTL > 0 {
		d.dedupTTL = dedupTTL
	}
	return d
}

type Stats struct {
	Handled    int64 `json:"handled"`
	Delivered  int64 `json:"delivered"`
	Duplicates int64 `json:"duplicates"`
	Dropped    int64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Handled:    d.handled.Load(),
		Delivered:  d.delivered.Load(),
		Duplicates: d.duplicates.Load(),
		Dropped:    d.dropped.Load(),
	}
}

func (d *Dispatcher) Handle(ctx context.Context, key, value []byte) error {
	d.handled.Add(1)

	var task messages.NotificationTask
	if err := json.Unmarshal(value, &task); err != nil {
		d.dropped.Add(1)
		slog.Error("decode notification task", "key", string(key), "error", err.Error())
		return nil
	}
	log := slog.With("event_id", task.EventID, "channel", task.Channel)

	sink, ok := d.sinks[task.Channel]
	if !ok || sink == nil || task.Recipient == "" || task.EventID == "" {
		d.dropped.Add(1)
		log.Error("undeliverable notification task")
		return nil
	}

	if d.dedup != nil {
		seen, err := d.dedup.Delivered(ctx, task.EventID)
		switch {
		case err != nil:
			// без redis рискуем дублем, но не потерей
			log.Warn("notification dedup unavailable", "error", err.Error())
		case seen:
			d.duplicates.Add(1)
			metrics.NotificationsTotal.WithLabelValues(task.Channel, "duplicate").Inc()
			log.Info("notification task already delivered")
			return nil
		}
	}

	var sendErr error
	for i := 0; i < d.attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		sendErr = notify.Deliver(callCtx, sink, task.Channel, task.Recipient, notify.Message{Subject: task.Subject, Body: task.Body})
		cancel()
		if sendErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}

	if sendErr != nil {
		if ctx.Err() != nil {
			// остановка: не коммитим, задача придёт снова
			return ctx.Err()
		}
		d.dropped.Add(1)
		metrics.NotificationsTotal.WithLabelValues(task.Channel, "error").Inc()
		log.Error("notification delivery failed", "attempts", d.attempts, "error", sendErr.Error())
		return nil
	}

	if d.dedup != nil {
		if err := d.dedup.MarkDelivered(context.WithoutCancel(ctx), task.EventID, d.dedupTTL); err != nil {
			log.Warn("notification dedup mark", "error", err.Error())
		}
	}
	d.delivered.Add(1)
	metrics.NotificationsTotal.WithLabelValues(task.Channel, "ok").Inc()
	return nil
}
