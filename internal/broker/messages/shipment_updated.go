package messages

import "time"

// ShipmentUpdated is published after a reconciliation cycle committed.
type ShipmentUpdated struct {
	ShipmentID  uint64    `json:"shipment_id"`
	UserID      uint64    `json:"user_id"`
	ContainerID string    `json:"container_id"`
	RunID       string    `json:"run_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`

	OldStatus     string `json:"old_status,omitempty"`
	Status        string `json:"status"`
	StatusChanged bool   `json:"status_changed"`

	LastLocation *string  `json:"last_location,omitempty"`
	NextLocation *string  `json:"next_location,omitempty"`
	VesselLat    *float64 `json:"vessel_lat,omitempty"`
	VesselLon    *float64 `json:"vessel_lon,omitempty"`

	CO2EmissionsKg *float64 `json:"co2_emissions_kg,omitempty"`
}
