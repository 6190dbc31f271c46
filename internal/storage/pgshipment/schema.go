package pgshipment

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  phone TEXT NULL,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  notify_on_arrival BOOLEAN NOT NULL DEFAULT TRUE,
  notify_on_departure BOOLEAN NOT NULL DEFAULT TRUE,
  notify_on_delay BOOLEAN NOT NULL DEFAULT TRUE,
  notify_via_email BOOLEAN NOT NULL DEFAULT TRUE,
  notify_via_sms BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS shipments (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  container_id TEXT NOT NULL,
  carrier_name TEXT NOT NULL,
  carrier_line_id TEXT NULL,
  status TEXT NOT NULL,
  container_type TEXT NULL,
  shipped_from TEXT NULL,
  shipped_to TEXT NULL,
  last_location TEXT NULL,
  last_location_terminal TEXT NULL,
  next_location TEXT NULL,
  next_location_terminal TEXT NULL,
  current_vessel_name TEXT NULL,
  current_voyage_number TEXT NULL,
  vessel_imo TEXT NULL,
  eta_final_destination TIMESTAMPTZ NULL,
  last_movement_at TIMESTAMPTZ NULL,
  vessel_lat DOUBLE PRECISION NULL,
  vessel_lon DOUBLE PRECISION NULL,
  vessel_speed DOUBLE PRECISION NULL,
  vessel_course DOUBLE PRECISION NULL,
  co2_emissions_kg DOUBLE PRECISION NULL,
  updated_at TIMESTAMPTZ NULL,
  version BIGINT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL,
  UNIQUE (user_id, container_id)
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_updated_at ON shipments(updated_at NULLS FIRST)`,
		`
CREATE TABLE IF NOT EXISTS shipment_history (
  id BIGSERIAL PRIMARY KEY,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  last_location TEXT NULL,
  last_location_terminal TEXT NULL,
  next_location TEXT NULL,
  next_location_terminal TEXT NULL,
  current_vessel_name TEXT NULL,
  current_voyage_number TEXT NULL,
  vessel_lat DOUBLE PRECISION NULL,
  vessel_lon DOUBLE PRECISION NULL,
  vessel_speed DOUBLE PRECISION NULL,
  vessel_course DOUBLE PRECISION NULL,
  last_movement_at TIMESTAMPTZ NULL,
  recorded_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shipment_history_shipment_id_recorded_at ON shipment_history(shipment_id, recorded_at DESC)`,
		`
CREATE TABLE IF NOT EXISTS notifications (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  shipment_id BIGINT NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  type TEXT NOT NULL,
  is_read BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user_id_created_at ON notifications(user_id, created_at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
