package tracking

import (
	"context"
	"time"
)

// Snapshot is what a provider knows about one container right now.
// A nil field means the provider did not report it, never "clear the value".
type Snapshot struct {
	Status               *string
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
}

type Client interface {
	FetchTracking(ctx context.Context, containerID, carrierName string, carrierLineID *string) (Snapshot, error)
}
