package pgshipment

import (
	"context"

	"github.com/BearBump/Dekks/internal/models"
	"github.com/pkg/errors"
)

// ListShipmentHistory returns snapshots of a shipment, newest first.
func (s *Storage) ListShipmentHistory(ctx context.Context, shipmentID uint64, limit, offset int) ([]models.ShipmentHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(ctx, `
SELECT id, shipment_id, status,
  last_location, last_location_terminal, next_location, next_location_terminal,
  current_vessel_name, current_voyage_number,
  vessel_lat, vessel_lon, vessel_speed, vessel_course,
  last_movement_at, recorded_at
FROM shipment_history
WHERE shipment_id = $1
ORDER BY recorded_at DESC, id DESC
LIMIT $2 OFFSET $3
`, shipmentID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "select shipment history")
	}
	defer rows.Close()

	out := make([]models.ShipmentHistory, 0)
	for rows.Next() {
		var h models.ShipmentHistory
		if err := rows.Scan(
			&h.ID, &h.ShipmentID, &h.Status,
			&h.LastLocation, &h.LastLocationTerminal, &h.NextLocation, &h.NextLocationTerminal,
			&h.CurrentVesselName, &h.CurrentVoyageNumber,
			&h.VesselLat, &h.VesselLon, &h.VesselSpeed, &h.VesselCourse,
			&h.LastMovementAt, &h.RecordedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan shipment history")
		}
		out = append(out, h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Storage) ListNotifications(ctx context.Context, userID uint64, unreadOnly bool, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, shipment_id, title, message, type, is_read, created_at
FROM notifications
WHERE user_id = $1
  AND ($2 = FALSE OR is_read = FALSE)
ORDER BY created_at DESC, id DESC
LIMIT $3
`, userID, unreadOnly, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	out := make([]models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.ShipmentID, &n.Title, &n.Message, &n.Type, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) MarkNotificationRead(ctx context.Context, userID, notificationID uint64) error {
	tag, err := s.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, notificationID, userID)
	if err != nil {
		return errors.Wrap(err, "mark notification read")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
