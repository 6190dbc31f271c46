package reconciler

import "github.com/BearBump/Dekks/internal/models"

// Estimator computes the CO2 estimate for a shipment in kilograms.
// The engine calls it only while the shipment has no estimate yet.
type Estimator interface {
	EstimateKg(sh *models.Shipment) float64
}

// EstimatorFunc adapts a function to Estimator.
type EstimatorFunc func(sh *models.Shipment) float64

func (f EstimatorFunc) EstimateKg(sh *models.Shipment) float64 { return f(sh) }

// RouteEstimator is the flat ocean-freight heuristic:
// distance_km * grams_per_km_per_teu * teu_factor / 1000.
// Distance, when set, supplies a per-shipment route length; a zero result falls back to DefaultDistanceKm.
type RouteEstimator struct {
	DefaultDistanceKm float64
	GramsPerKmPerTEU  float64
	TEUFactor         float64
	Distance          func(sh *models.Shipment) float64
}

// DefaultEstimator is 5000 km at 15 g/km for one TEU, i.e. 75 kg for every shipment.
func DefaultEstimator() *RouteEstimator {
	return &RouteEstimator{
		DefaultDistanceKm: 5000,
		GramsPerKmPerTEU:  15,
		TEUFactor:         1.0,
	}
}

func (r *RouteEstimator) EstimateKg(sh *models.Shipment) float64 {
	distance := r.DefaultDistanceKm
	if r.Distance != nil {
		if d := r.Distance(sh); d > 0 {
			distance = d
		}
	}
	return distance * r.GramsPerKmPerTEU * r.TEUFactor / 1000
}
