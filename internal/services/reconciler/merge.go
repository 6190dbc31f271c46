package reconciler

import (
	"time"

	"github.com/BearBump/Dekks/internal/integrations/tracking"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/BearBump/Dekks/internal/models"
)

// mergeSnapshot overwrites tracking-derived fields of sh with the values present in snap.
// Absent fields keep their previous value; nothing is ever cleared.
func mergeSnapshot(sh *models.Shipment, snap tracking.Snapshot) {
	if snap.Status != nil && *snap.Status != "" {
		sh.Status = *snap.Status
	}
	keepString(&sh.ContainerType, snap.ContainerType)
	keepString(&sh.ShippedFrom, snap.ShippedFrom)
	keepString(&sh.ShippedTo, snap.ShippedTo)
	keepString(&sh.LastLocation, snap.LastLocation)
	keepString(&sh.LastLocationTerminal, snap.LastLocationTerminal)
	keepString(&sh.NextLocation, snap.NextLocation)
	keepString(&sh.NextLocationTerminal, snap.NextLocationTerminal)
	keepString(&sh.CurrentVesselName, snap.CurrentVesselName)
	keepString(&sh.CurrentVoyageNumber, snap.CurrentVoyageNumber)
	keepString(&sh.VesselIMO, snap.VesselIMO)
	keepTime(&sh.EtaFinalDestination, snap.EtaFinalDestination)
	keepTime(&sh.LastMovementAt, snap.LastMovementAt)
}

func mergePosition(sh *models.Shipment, p vessel.Position) {
	lat, lon, speed, course := p.Lat, p.Lon, p.SpeedKnots, p.CourseDegree
	sh.VesselLat = &lat
	sh.VesselLon = &lon
	sh.VesselSpeed = &speed
	sh.VesselCourse = &course
}

func keepString(dst **string, v *string) {
	if v != nil {
		s := *v
		*dst = &s
	}
}

func keepTime(dst **time.Time, v *time.Time) {
	if v != nil {
		t := v.UTC()
		*dst = &t
	}
}
