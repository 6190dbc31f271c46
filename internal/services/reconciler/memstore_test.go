package reconciler

import (
	"context"
	"sort"
	"sync"

	"github.com/BearBump/Dekks/internal/models"
)

// memStore mimics pgshipment: version check on commit, co2 written once, updated_at only advances.
type memStore struct {
	mu            sync.Mutex
	shipments     map[uint64]*models.Shipment
	users         map[uint64]*models.User
	history       []models.ShipmentHistory
	notifications []*models.Notification

	listErr error
	// maxPage caps ListTrackedShipments below the requested limit when set.
	maxPage   int
	commitErr error
	userErr   error
	// beforeCommit runs inside CommitShipmentUpdate before the version check.
	beforeCommit func()
}

func newMemStore() *memStore {
	return &memStore{
		shipments: map[uint64]*models.Shipment{},
		users:     map[uint64]*models.User{},
	}
}

func (m *memStore) put(sh *models.Shipment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments[sh.ID] = sh.Clone()
}

func (m *memStore) get(id uint64) *models.Shipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shipments[id].Clone()
}

func (m *memStore) historyFor(id uint64) []models.ShipmentHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ShipmentHistory
	for _, h := range m.history {
		if h.ShipmentID == id {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) notificationsFor(id uint64) []*models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.ShipmentID == id {
			out = append(out, n)
		}
	}
	return out
}

func (m *memStore) ListTrackedShipments(_ context.Context, afterID uint64, limit int) ([]*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]uint64, 0, len(m.shipments))
	for id := range m.shipments {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if m.maxPage > 0 && limit > m.maxPage {
		limit = m.maxPage
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]*models.Shipment, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.shipments[id].Clone())
	}
	return out, nil
}

func (m *memStore) LoadForUpdate(_ context.Context, id uint64) (*models.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shipments[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return sh.Clone(), nil
}

func (m *memStore) CommitShipmentUpdate(_ context.Context, upd models.ShipmentUpdate) error {
	if m.beforeCommit != nil {
		m.beforeCommit()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	cur, ok := m.shipments[upd.Shipment.ID]
	if !ok || cur.Version != upd.ExpectedVersion {
		return models.ErrConflict
	}
	if cur.UpdatedAt != nil && !upd.Shipment.UpdatedAt.After(*cur.UpdatedAt) {
		return models.ErrConflict
	}

	next := upd.Shipment.Clone()
	if cur.CO2EmissionsKg != nil {
		next.CO2EmissionsKg = cur.CO2EmissionsKg
	}
	next.Version = cur.Version + 1
	m.shipments[next.ID] = next
	upd.Shipment.Version = next.Version

	h := upd.History
	h.ID = uint64(len(m.history) + 1)
	m.history = append(m.history, h)
	for _, n := range upd.Notifications {
		n.ID = uint64(len(m.notifications) + 1)
		m.notifications = append(m.notifications, n)
	}
	return nil
}

func (m *memStore) GetUser(_ context.Context, id uint64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.userErr != nil {
		return nil, m.userErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	c := *u
	return &c, nil
}
