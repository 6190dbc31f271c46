package pgshipment

import (
	"context"
	"time"

	"github.com/BearBump/Dekks/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const pgUniqueViolation = "23505"

const maxPageSize = 1000

const shipmentColumns = `
  id, user_id, container_id, carrier_name, carrier_line_id,
  status, container_type, shipped_from, shipped_to,
  last_location, last_location_terminal, next_location, next_location_terminal,
  current_vessel_name, current_voyage_number, vessel_imo,
  eta_final_destination, last_movement_at,
  vessel_lat, vessel_lon, vessel_speed, vessel_course,
  co2_emissions_kg, updated_at, version, created_at`

func scanShipment(row pgx.Row) (*models.Shipment, error) {
	var s models.Shipment
	err := row.Scan(
		&s.ID, &s.UserID, &s.ContainerID, &s.CarrierName, &s.CarrierLineID,
		&s.Status, &s.ContainerType, &s.ShippedFrom, &s.ShippedTo,
		&s.LastLocation, &s.LastLocationTerminal, &s.NextLocation, &s.NextLocationTerminal,
		&s.CurrentVesselName, &s.CurrentVoyageNumber, &s.VesselIMO,
		&s.EtaFinalDestination, &s.LastMovementAt,
		&s.VesselLat, &s.VesselLon, &s.VesselSpeed, &s.VesselCourse,
		&s.CO2EmissionsKg, &s.UpdatedAt, &s.Version, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateShipment registers a container for a user in Pending state.
// A second registration of the same container by the same user returns models.ErrDuplicateShipment.
func (s *Storage) CreateShipment(ctx context.Context, in models.ShipmentCreateInput) (*models.Shipment, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO shipments (user_id, container_id, carrier_name, carrier_line_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING`+shipmentColumns,
		in.UserID, in.ContainerID, in.CarrierName, in.CarrierLineID, models.ShipmentStatusPending, time.Now().UTC())

	sh, err := scanShipment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, models.ErrDuplicateShipment
		}
		return nil, errors.Wrap(err, "insert shipment")
	}
	return sh, nil
}

// ListTrackedShipments returns up to limit shipments with id > afterID, ordered by id.
// Callers page through the table by passing the last id they saw.
func (s *Storage) ListTrackedShipments(ctx context.Context, afterID uint64, limit int) ([]*models.Shipment, error) {
	if limit <= 0 {
		limit = 100
	}
	limit = min(limit, maxPageSize)
	rows, err := s.db.Query(ctx, `
SELECT`+shipmentColumns+`
FROM shipments
WHERE id > $1
ORDER BY id ASC
LIMIT $2
`, afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select shipments")
	}
	defer rows.Close()

	out := make([]*models.Shipment, 0, limit)
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan shipment")
		}
		out = append(out, sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// LoadForUpdate reads the current row. The returned Version is the token
// CommitShipmentUpdate checks, so no row lock is held across upstream calls.
func (s *Storage) LoadForUpdate(ctx context.Context, shipmentID uint64) (*models.Shipment, error) {
	sh, err := scanShipment(s.db.QueryRow(ctx, `SELECT`+shipmentColumns+` FROM shipments WHERE id = $1`, shipmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select shipment")
	}
	return sh, nil
}

// CommitShipmentUpdate writes shipment fields, the history row and notifications in one transaction.
// It fails with models.ErrConflict if the row's version moved since it was loaded or
// if updated_at would not advance. Inserted notifications get their IDs filled in.
func (s *Storage) CommitShipmentUpdate(ctx context.Context, upd models.ShipmentUpdate) error {
	sh := upd.Shipment
	if sh == nil || sh.UpdatedAt == nil {
		return errors.New("shipment with updated_at is required")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var newVersion int64
	err = tx.QueryRow(ctx, `
UPDATE shipments
SET
  status = $3,
  container_type = $4,
  shipped_from = $5,
  shipped_to = $6,
  last_location = $7,
  last_location_terminal = $8,
  next_location = $9,
  next_location_terminal = $10,
  current_vessel_name = $11,
  current_voyage_number = $12,
  vessel_imo = $13,
  eta_final_destination = $14,
  last_movement_at = $15,
  vessel_lat = $16,
  vessel_lon = $17,
  vessel_speed = $18,
  vessel_course = $19,
  co2_emissions_kg = COALESCE(co2_emissions_kg, $20),
  updated_at = $21,
  version = version + 1
WHERE id = $1
  AND version = $2
  AND (updated_at IS NULL OR updated_at < $21)
RETURNING version
`,
		sh.ID, upd.ExpectedVersion,
		sh.Status, sh.ContainerType, sh.ShippedFrom, sh.ShippedTo,
		sh.LastLocation, sh.LastLocationTerminal, sh.NextLocation, sh.NextLocationTerminal,
		sh.CurrentVesselName, sh.CurrentVoyageNumber, sh.VesselIMO,
		sh.EtaFinalDestination, sh.LastMovementAt,
		sh.VesselLat, sh.VesselLon, sh.VesselSpeed, sh.VesselCourse,
		sh.CO2EmissionsKg, sh.UpdatedAt.UTC(),
	).Scan(&newVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrConflict
	}
	if err != nil {
		return errors.Wrap(err, "update shipment")
	}

	h := upd.History
	_, err = tx.Exec(ctx, `
INSERT INTO shipment_history (
  shipment_id, status,
  last_location, last_location_terminal, next_location, next_location_terminal,
  current_vessel_name, current_voyage_number,
  vessel_lat, vessel_lon, vessel_speed, vessel_course,
  last_movement_at, recorded_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		sh.ID, h.Status,
		h.LastLocation, h.LastLocationTerminal, h.NextLocation, h.NextLocationTerminal,
		h.CurrentVesselName, h.CurrentVoyageNumber,
		h.VesselLat, h.VesselLon, h.VesselSpeed, h.VesselCourse,
		h.LastMovementAt, h.RecordedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "insert shipment history")
	}

	for _, n := range upd.Notifications {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = sh.UpdatedAt.UTC()
		}
		err := tx.QueryRow(ctx, `
INSERT INTO notifications (user_id, shipment_id, title, message, type, is_read, created_at)
VALUES ($1,$2,$3,$4,$5,FALSE,$6)
RETURNING id
`, n.UserID, n.ShipmentID, n.Title, n.Message, n.Type, n.CreatedAt.UTC()).Scan(&n.ID)
		if err != nil {
			return errors.Wrap(err, "insert notification")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit tx")
	}
	sh.Version = newVersion
	return nil
}

func (s *Storage) DeleteShipment(ctx context.Context, userID, shipmentID uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM shipments WHERE id = $1 AND user_id = $2`, shipmentID, userID)
	if err != nil {
		return errors.Wrap(err, "delete shipment")
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
