package fake

import (
	"context"
	"hash/fnv"

	"github.com/BearBump/Dekks/internal/integrations/vessel"
)

// FakeClient returns a stable position derived from the IMO number.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) FetchLivePosition(ctx context.Context, imo string) (vessel.Position, error) {
	if err := ctx.Err(); err != nil {
		return vessel.Position{}, err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(imo))
	v := h.Sum32()
	return vessel.Position{
		Lat:          float64(v%180) - 90,
		Lon:          float64(v%360) - 180,
		SpeedKnots:   float64(v % 25),
		CourseDegree: float64(v % 360),
	}, nil
}
