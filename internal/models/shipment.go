package models

import "time"

// Статусы, которые выставляем сами. Остальные приходят от провайдера как есть.
const (
	ShipmentStatusPending   = "Pending"
	ShipmentStatusDelivered = "Delivered"
)

const NotificationTypeStatusChange = "STATUS_CHANGE"

type Shipment struct {
	ID     uint64
	UserID uint64

	// Identity/static: reconciliation never writes these.
	ContainerID   string
	CarrierName   string
	CarrierLineID *string

	Status               string
	ContainerType        *string
	ShippedFrom          *string
	ShippedTo            *string
	LastLocation         *string
	LastLocationTerminal *string
	NextLocation         *string
	NextLocationTerminal *string
	CurrentVesselName    *string
	CurrentVoyageNumber  *string
	VesselIMO            *string
	EtaFinalDestination  *time.Time
	LastMovementAt       *time.Time

	VesselLat    *float64
	VesselLon    *float64
	VesselSpeed  *float64
	VesselCourse *float64

	CO2EmissionsKg *float64

	// UpdatedAt is the reconciliation throttle gate. Nil until the first successful fetch.
	UpdatedAt *time.Time
	Version   int64
	CreatedAt time.Time
}

// ShipmentHistory is an append-only snapshot of the tracking-derived fields.
type ShipmentHistory struct {
	ID                   uint64
	ShipmentID           uint64
	Status               string
	LastLocation         *string
	LastLocationTerminal *string
	NextLocation         *string
	NextLocationTerminal *string
	CurrentVesselName    *string
	CurrentVoyageNumber  *string
	VesselLat            *float64
	VesselLon            *float64
	VesselSpeed          *float64
	VesselCourse         *float64
	LastMovementAt       *time.Time
	RecordedAt           time.Time
}

type Notification struct {
	ID         uint64
	UserID     uint64
	ShipmentID uint64
	Title      string
	Message    string
	Type       string
	IsRead     bool
	CreatedAt  time.Time
}

type NotificationPreferences struct {
	NotifyOnArrival   bool
	NotifyOnDeparture bool
	NotifyOnDelay     bool
	NotifyViaEmail    bool
	NotifyViaSMS      bool
}

type User struct {
	ID          uint64
	Email       string
	Phone       *string
	FirstName   string
	LastName    string
	Preferences NotificationPreferences
	CreatedAt   time.Time
}

type ShipmentCreateInput struct {
	UserID        uint64
	ContainerID   string
	CarrierName   string
	CarrierLineID *string
}

// ShipmentUpdate is everything one reconciliation cycle writes for a shipment.
// ExpectedVersion is the version the shipment had when it was loaded.
type ShipmentUpdate struct {
	Shipment        *Shipment
	ExpectedVersion int64
	History         ShipmentHistory
	Notifications   []*Notification
}

// Snapshot copies the tracking-derived fields of s into a history record.
func (s *Shipment) Snapshot() ShipmentHistory {
	h := ShipmentHistory{
		ShipmentID:           s.ID,
		Status:               s.Status,
		LastLocation:         s.LastLocation,
		LastLocationTerminal: s.LastLocationTerminal,
		NextLocation:         s.NextLocation,
		NextLocationTerminal: s.NextLocationTerminal,
		CurrentVesselName:    s.CurrentVesselName,
		CurrentVoyageNumber:  s.CurrentVoyageNumber,
		VesselLat:            s.VesselLat,
		VesselLon:            s.VesselLon,
		VesselSpeed:          s.VesselSpeed,
		VesselCourse:         s.VesselCourse,
		LastMovementAt:       s.LastMovementAt,
	}
	if s.UpdatedAt != nil {
		h.RecordedAt = *s.UpdatedAt
	}
	return h
}

// Clone returns a copy that does not share the struct with s.
// Pointer fields are shared; merges only ever replace pointers, never write through them.
func (s *Shipment) Clone() *Shipment {
	c := *s
	return &c
}
