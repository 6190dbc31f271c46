package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BearBump/Dekks/internal/integrations/tracking"
)

// FakeClient: заглушка провайдера трекинга для локального запуска без API-ключа.
// Статус детерминирован по (carrier, container_id): часть контейнеров считается доставленной.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

var ports = []string{"Shanghai", "Singapore", "Rotterdam", "Busan", "Jebel Ali", "Antwerp"}

func (f *FakeClient) FetchTracking(ctx context.Context, containerID, carrierName string, _ *string) (tracking.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return tracking.Snapshot{}, err
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(carrierName))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(containerID))
	v := h.Sum32()

	status := "In Transit"
	if v%5 == 0 {
		status = "Delivered"
	}
	last := ports[int(v)%len(ports)]
	next := ports[int(v/7)%len(ports)]
	now := time.Now().UTC().Truncate(time.Minute)

	return tracking.Snapshot{
		Status:            &status,
		LastLocation:      &last,
		NextLocation:      &next,
		CurrentVesselName: ptr("FAKE VESSEL"),
		LastMovementAt:    &now,
	}, nil
}

func ptr(s string) *string { return &s }
