package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateShipment = errors.New("shipment with this container ID already exists for the user")
	// ErrConflict means the shipment row changed between load and commit.
	ErrConflict = errors.New("concurrent shipment modification")
)
