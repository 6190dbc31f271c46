package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/BearBump/Dekks/internal/integrations/tracking"
	"github.com/BearBump/Dekks/internal/metrics"
	"github.com/BearBump/Dekks/internal/models"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
)

type Outcome int

const (
	OutcomeProcessed Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return metrics.ResultProcessed
	case OutcomeSkipped:
		return metrics.ResultSkipped
	default:
		return metrics.ResultFailed
	}
}

// Failure reasons, used as the metric label and in logs.
const (
	ReasonUpstreamUnavailable = "upstream_unavailable"
	ReasonMalformedPayload    = "malformed_payload"
	ReasonConflict            = "conflict"
	ReasonCanceled            = "canceled"
	ReasonStore               = "store"
)

func failureReason(err error) string {
	switch {
	case errors.Is(err, integrations.ErrMalformedPayload):
		return ReasonMalformedPayload
	case errors.Is(err, integrations.ErrUpstreamUnavailable):
		return ReasonUpstreamUnavailable
	case errors.Is(err, models.ErrConflict):
		return ReasonConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonStore
	}
}

type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	// Interrupted is set when shutdown stopped the run before every shipment was visited.
	Interrupted bool `json:"interrupted,omitempty"`
}

func (r *Report) add(o Outcome) {
	switch o {
	case OutcomeProcessed:
		r.Processed++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// ReconcileAll visits every shipment in the store in id order, batch by batch, with at most
// Settings.Concurrency shipments in flight. A failing shipment never stops the run.
// When ctx is cancelled no new shipments are started; those already running finish.
// The returned error is set only when the store cannot list shipments.
func (e *Engine) ReconcileAll(ctx context.Context) (Report, error) {
	timer := metrics.NewTimer()
	rep := Report{
		RunID:     ulid.Make().String(),
		StartedAt: e.now().UTC(),
	}
	e.lastRunUnixNano.Store(time.Now().UTC().UnixNano())
	e.totalRuns.Add(1)

	log := slog.With("run_id", rep.RunID)
	log.Info("reconciliation started")

	var (
		mu      sync.Mutex
		afterID uint64
		runErr  error
	)

	for {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}

		items, err := e.store.ListTrackedShipments(ctx, afterID, e.settings.BatchSize)
		if err != nil {
			runErr = errors.Wrap(err, "list tracked shipments")
			e.setLastError(runErr)
			log.Error("list tracked shipments", "after_id", afterID, "error", err.Error())
			break
		}
		if len(items) == 0 {
			break
		}
		afterID = items[len(items)-1].ID

		sem := make(chan struct{}, e.settings.Concurrency)
		var wg sync.WaitGroup
	batch:
		for _, sh := range items {
			select {
			case <-ctx.Done():
				rep.Interrupted = true
				break batch
			case sem <- struct{}{}:
			}
			wg.Add(1)
			shCopy := sh
			go func() {
				defer func() {
					<-sem
					wg.Done()
				}()
				// in-flight units are not interrupted by shutdown; per-call timeouts bound them
				o, _ := e.reconcileOne(context.WithoutCancel(ctx), rep.RunID, shCopy)
				mu.Lock()
				rep.add(o)
				mu.Unlock()
			}()
		}
		wg.Wait()
		// a short page is not the end: the store may cap the page below BatchSize
	}

	rep.FinishedAt = e.now().UTC()
	timer.ObserveDuration(metrics.RunDuration)

	e.mu.Lock()
	r := rep
	e.lastReport = &r
	e.mu.Unlock()

	log.Info("reconciliation finished",
		"processed", rep.Processed,
		"skipped", rep.Skipped,
		"failed", rep.Failed,
		"interrupted", rep.Interrupted,
		"duration", timer.Duration().String(),
	)
	return rep, runErr
}

// ReconcileOne runs a single fetch-merge-commit-notify cycle for sh.
// The returned error is non-nil only for OutcomeFailed.
func (e *Engine) ReconcileOne(ctx context.Context, sh *models.Shipment) (Outcome, error) {
	return e.reconcileOne(ctx, "", sh)
}

func (e *Engine) reconcileOne(ctx context.Context, runID string, sh *models.Shipment) (Outcome, error) {
	e.inFlight.Add(1)
	metrics.InFlight.Inc()
	defer func() {
		e.inFlight.Add(-1)
		metrics.InFlight.Dec()
	}()

	log := slog.With("run_id", runID, "shipment_id", sh.ID, "container_id", sh.ContainerID)

	o, err := e.cycle(ctx, runID, sh, log)
	metrics.ShipmentsTotal.WithLabelValues(o.String()).Inc()
	switch o {
	case OutcomeProcessed:
		e.totalProcessed.Add(1)
	case OutcomeSkipped:
		e.totalSkipped.Add(1)
	case OutcomeFailed:
		reason := failureReason(err)
		e.totalFailed.Add(1)
		e.setLastError(err)
		metrics.FailuresTotal.WithLabelValues(reason).Inc()
		log.Error("reconcile shipment", "reason", reason, "error", err.Error())
	}
	return o, err
}

func (e *Engine) throttled(sh *models.Shipment, now time.Time) bool {
	return sh.UpdatedAt != nil && now.Sub(*sh.UpdatedAt) < e.settings.Interval
}

func (e *Engine) cycle(ctx context.Context, runID string, listed *models.Shipment, log *slog.Logger) (Outcome, error) {
	if e.throttled(listed, e.now()) {
		log.Debug("skip recently updated shipment")
		return OutcomeSkipped, nil
	}

	if e.locker != nil {
		release, ok, err := e.locker.TryLock(ctx, "shipment:"+strconv.FormatUint(listed.ID, 10), e.settings.LockTTL)
		switch {
		case err != nil:
			// lock is advisory: the version check on commit still protects the row
			log.Warn("shipment lock unavailable", "error", err.Error())
		case !ok:
			log.Debug("shipment locked by another worker")
			return OutcomeSkipped, nil
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release shipment lock", "error", err.Error())
				}
			}()
		}
	}

	cur, err := e.store.LoadForUpdate(ctx, listed.ID)
	if errors.Is(err, models.ErrNotFound) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "load shipment")
	}
	// повторная проверка: строку мог обновить параллельный запуск
	if e.throttled(cur, e.now()) {
		return OutcomeSkipped, nil
	}

	e.waitRateLimit(ctx, cur.CarrierName, log)

	var snap tracking.Snapshot
	err = withRetry(ctx, e.settings.RetryAttempts, e.settings.RetryInitial, e.settings.FetchTimeout, func(ctx context.Context) error {
		var ferr error
		snap, ferr = e.tracking.FetchTracking(ctx, cur.ContainerID, cur.CarrierName, cur.CarrierLineID)
		return ferr
	})
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "fetch tracking")
	}

	oldStatus := cur.Status
	next := cur.Clone()
	mergeSnapshot(next, snap)

	if next.VesselIMO != nil && e.vessel != nil {
		pos, err := e.position(ctx, *next.VesselIMO)
		if err != nil {
			log.Warn("fetch vessel position", "imo", *next.VesselIMO, "error", err.Error())
		} else {
			mergePosition(next, pos)
		}
	}

	now := e.now().UTC()
	if cur.UpdatedAt != nil && !now.After(*cur.UpdatedAt) {
		now = cur.UpdatedAt.Add(time.Microsecond)
	}
	next.UpdatedAt = &now

	if next.CO2EmissionsKg == nil {
		kg := e.estimator.EstimateKg(next)
		next.CO2EmissionsKg = &kg
	}

	changed := next.Status != "" && next.Status != oldStatus
	var notifications []*models.Notification
	if changed {
		log.Info("status change detected", "old_status", oldStatus, "new_status", next.Status)
		notifications = append(notifications, &models.Notification{
			UserID:     next.UserID,
			ShipmentID: next.ID,
			Title:      notify.ShipmentUpdateSubject(next.ContainerID),
			Message:    notify.StatusChangeText(oldStatus, next.Status),
			Type:       models.NotificationTypeStatusChange,
			CreatedAt:  now,
		})
	}

	err = e.store.CommitShipmentUpdate(ctx, models.ShipmentUpdate{
		Shipment:        next,
		ExpectedVersion: cur.Version,
		History:         next.Snapshot(),
		Notifications:   notifications,
	})
	if err != nil {
		return OutcomeFailed, errors.Wrap(err, "commit shipment update")
	}

	// после коммита ошибки только логируем
	if changed {
		dctx := ctx
		if len(notifications) > 0 {
			dctx = notify.WithNotificationID(ctx, notifications[0].ID)
		}
		e.deliver(dctx, next, log)
	}
	e.publishUpdated(ctx, runID, next, oldStatus, changed, log)

	return OutcomeProcessed, nil
}

func (e *Engine) waitRateLimit(ctx context.Context, carrierName string, log *slog.Logger) {
	if e.rl == nil || e.settings.RateLimitPerMinute <= 0 {
		return
	}
	minuteKey := fmt.Sprintf("rl:carrier:%s:%s", carrierName, e.now().UTC().Format("200601021504"))
	allowed, n, err := e.rl.Allow(ctx, minuteKey, e.settings.RateLimitPerMinute, 70*time.Second)
	if err != nil {
		log.Warn("rate limiter", "error", err.Error())
		return
	}
	if !allowed {
		// Провайдер чувствителен к частоте запросов: немного притормозим.
		log.Warn("rate limit exceeded", "carrier", carrierName, "count", n)
		select {
		case <-ctx.Done():
		case <-time.After(500 * time.Millisecond):
		}
	}
}
