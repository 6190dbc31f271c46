package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/BearBump/Dekks/internal/broker/messages"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/BearBump/Dekks/internal/metrics"
	"github.com/BearBump/Dekks/internal/models"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/pkg/errors"
)

// deliver sends the status change of a committed shipment to the channels the user enabled.
// Failures are logged and counted; the commit is never undone.
func (e *Engine) deliver(ctx context.Context, sh *models.Shipment, log *slog.Logger) {
	if e.emailSink == nil && e.smsSink == nil {
		return
	}

	user, err := e.store.GetUser(ctx, sh.UserID)
	if err != nil {
		log.Error("load user for notification", "user_id", sh.UserID, "error", err.Error())
		return
	}

	if e.emailSink != nil && user.Preferences.NotifyViaEmail && user.Email != "" {
		e.send(ctx, e.emailSink, notify.ChannelEmail, user.Email, notify.ShipmentUpdateEmail(sh.ContainerID, sh.Status), log)
	}
	if e.smsSink != nil && user.Preferences.NotifyViaSMS && user.Phone != nil && *user.Phone != "" {
		e.send(ctx, e.smsSink, notify.ChannelSMS, *user.Phone, notify.ShipmentUpdateSMS(sh.ContainerID, sh.Status), log)
	}
}

func (e *Engine) send(ctx context.Context, s notify.Sink, channel, recipient string, m notify.Message, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, e.settings.NotifyTimeout)
	defer cancel()

	if err := notify.Deliver(ctx, s, channel, recipient, m); err != nil {
		metrics.NotificationsTotal.WithLabelValues(channel, "error").Inc()
		log.Error("notification delivery failed", "channel", channel, "error", err.Error())
		return
	}
	metrics.NotificationsTotal.WithLabelValues(channel, "ok").Inc()
}

func (e *Engine) publishUpdated(ctx context.Context, runID string, sh *models.Shipment, oldStatus string, changed bool, log *slog.Logger) {
	if e.publisher == nil || e.topic == "" {
		return
	}
	ev := messages.ShipmentUpdated{
		ShipmentID:     sh.ID,
		UserID:         sh.UserID,
		ContainerID:    sh.ContainerID,
		RunID:          runID,
		UpdatedAt:      *sh.UpdatedAt,
		OldStatus:      oldStatus,
		Status:         sh.Status,
		StatusChanged:  changed,
		LastLocation:   sh.LastLocation,
		NextLocation:   sh.NextLocation,
		VesselLat:      sh.VesselLat,
		VesselLon:      sh.VesselLon,
		CO2EmissionsKg: sh.CO2EmissionsKg,
	}
	key := strconv.FormatUint(sh.ID, 10)

	// Kafka может быть не готова сразу после старта: небольшой retry.
	var pubErr error
	for i := 0; i < e.settings.PublishAttempts; i++ {
		if pubErr = e.publisher.PublishJSON(ctx, e.topic, key, ev); pubErr == nil {
			return
		}
		select {
		case <-ctx.Done():
			log.Error("publish shipment updated", "error", ctx.Err().Error())
			return
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	log.Error("publish shipment updated", "error", pubErr.Error())
}

func positionKey(imo string) string { return "vessel:pos:" + imo }

// position returns the live position for imo, going through the cache when one is configured.
func (e *Engine) position(ctx context.Context, imo string) (vessel.Position, error) {
	if e.positions != nil {
		b, ok, err := e.positions.Get(ctx, positionKey(imo))
		if err == nil && ok {
			var p vessel.Position
			if json.Unmarshal(b, &p) == nil {
				return p, nil
			}
		}
	}

	var pos vessel.Position
	err := withRetry(ctx, e.settings.RetryAttempts, e.settings.RetryInitial, e.settings.VesselTimeout, func(ctx context.Context) error {
		var ferr error
		pos, ferr = e.vessel.FetchLivePosition(ctx, imo)
		return ferr
	})
	if err != nil {
		return vessel.Position{}, errors.Wrap(err, "fetch live position")
	}

	if e.positions != nil {
		if b, err := json.Marshal(pos); err == nil {
			if err := e.positions.Set(ctx, positionKey(imo), b, e.settings.VesselCacheTTL); err != nil {
				slog.Warn("cache vessel position", "imo", imo, "error", err.Error())
			}
		}
	}
	return pos, nil
}
