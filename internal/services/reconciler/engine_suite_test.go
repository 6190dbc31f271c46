package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/Dekks/internal/broker/messages"
	"github.com/BearBump/Dekks/internal/integrations"
	"github.com/BearBump/Dekks/internal/integrations/tracking"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/BearBump/Dekks/internal/models"
	"github.com/BearBump/Dekks/internal/notify"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type trackingMock struct{ mock.Mock }

func (m *trackingMock) FetchTracking(ctx context.Context, containerID, carrierName string, carrierLineID *string) (tracking.Snapshot, error) {
	args := m.Called(ctx, containerID, carrierName, carrierLineID)
	return args.Get(0).(tracking.Snapshot), args.Error(1)
}

type vesselMock struct{ mock.Mock }

func (m *vesselMock) FetchLivePosition(ctx context.Context, imo string) (vessel.Position, error) {
	args := m.Called(ctx, imo)
	return args.Get(0).(vessel.Position), args.Error(1)
}

type sent struct {
	channel   string
	recipient string
	subject   string
	body      string
	// notificationID is the committed notification row the delivery belongs to.
	notificationID uint64
}

type recordingSink struct {
	channel string
	err     error

	mu   sync.Mutex
	sent []sent
}

func (s *recordingSink) Send(ctx context.Context, recipient, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := notify.NotificationIDFrom(ctx)
	s.sent = append(s.sent, sent{channel: s.channel, recipient: recipient, subject: subject, body: body, notificationID: id})
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type publishedEvent struct {
	topic string
	key   string
	v     any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishJSON(_ context.Context, topic, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, key: key, v: v})
	return nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

func strp(s string) *string { return &s }

type EngineSuite struct {
	suite.Suite

	now      time.Time
	store    *memStore
	tracking *trackingMock
	email    *recordingSink
	sms      *recordingSink
	engine   *Engine
}

func (s *EngineSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.store = newMemStore()
	s.tracking = &trackingMock{}
	s.email = &recordingSink{channel: notify.ChannelEmail}
	s.sms = &recordingSink{channel: notify.ChannelSMS}

	s.store.users[1] = &models.User{
		ID:          1,
		Email:       "ops@example.com",
		Phone:       strp("+15550001"),
		Preferences: models.NotificationPreferences{NotifyViaEmail: true},
	}
	s.store.put(&models.Shipment{ID: 10, UserID: 1, ContainerID: "MEDU9091004", CarrierName: "MSC", Status: models.ShipmentStatusPending})

	s.engine = New(s.store, s.tracking).
		WithSettings(Settings{RetryInitial: time.Millisecond, FetchTimeout: time.Second}).
		WithSinks(s.email, s.sms).
		WithClock(func() time.Time { return s.now })
}

func (s *EngineSuite) reconcile(id uint64) (Outcome, error) {
	return s.engine.ReconcileOne(context.Background(), s.store.get(id))
}

func (s *EngineSuite) TestFirstCycle_PendingToInTransit() {
	s.tracking.On("FetchTracking", mock.Anything, "MEDU9091004", "MSC", mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), LastLocation: strp("Singapore")}, nil).
		Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)

	sh := s.store.get(10)
	s.Require().Equal("In Transit", sh.Status)
	s.Require().Equal("Singapore", *sh.LastLocation)
	s.Require().NotNil(sh.UpdatedAt)
	s.Require().Equal(s.now, *sh.UpdatedAt)
	s.Require().InDelta(75.0, *sh.CO2EmissionsKg, 1e-9)

	hist := s.store.historyFor(10)
	s.Require().Len(hist, 1)
	s.Require().Equal("In Transit", hist[0].Status)
	s.Require().Equal(s.now, hist[0].RecordedAt)

	ns := s.store.notificationsFor(10)
	s.Require().Len(ns, 1)
	s.Require().Equal("Shipment Update: MEDU9091004", ns[0].Title)
	s.Require().Equal("Status changed from Pending to In Transit", ns[0].Message)
	s.Require().Equal(models.NotificationTypeStatusChange, ns[0].Type)
	s.Require().Equal(uint64(1), ns[0].UserID)

	s.Require().Equal(1, s.email.count())
	s.Require().Equal("ops@example.com", s.email.sent[0].recipient)
	s.Require().Equal("Shipment Update: MEDU9091004", s.email.sent[0].subject)
	s.Require().Contains(s.email.sent[0].body, "In Transit")
	s.Require().NotZero(ns[0].ID)
	s.Require().Equal(ns[0].ID, s.email.sent[0].notificationID)
	s.Require().Zero(s.sms.count())
	s.tracking.AssertExpectations(s.T())
}

func (s *EngineSuite) TestSecondCycleWithinInterval_NoUpstreamCallNoMutation() {
	s.tracking.On("FetchTracking", mock.Anything, "MEDU9091004", "MSC", mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), LastLocation: strp("Singapore")}, nil).
		Once()
	_, err := s.reconcile(10)
	s.Require().NoError(err)
	before := s.store.get(10)

	s.now = s.now.Add(5 * time.Minute)
	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeSkipped, o)

	after := s.store.get(10)
	s.Require().Equal(before, after)
	s.Require().Len(s.store.historyFor(10), 1)
	s.tracking.AssertNumberOfCalls(s.T(), "FetchTracking", 1)
}

func (s *EngineSuite) TestStaleShipmentIsProcessedAgain() {
	prev := s.now.Add(-31 * time.Minute)
	sh := s.store.get(10)
	sh.UpdatedAt = &prev
	s.store.put(sh)

	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("Pending")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)
	s.Require().Equal(s.now, *s.store.get(10).UpdatedAt)
}

func (s *EngineSuite) TestAbsentFieldsKeepPriorValues() {
	sh := s.store.get(10)
	sh.Status = "In Transit"
	sh.LastLocation = strp("Singapore")
	sh.NextLocation = strp("Rotterdam")
	sh.CurrentVesselName = strp("MSC OSCAR")
	s.store.put(sh)

	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), NextLocation: strp("Hamburg")}, nil).Once()

	_, err := s.reconcile(10)
	s.Require().NoError(err)

	got := s.store.get(10)
	s.Require().Equal("In Transit", got.Status)
	s.Require().Equal("Singapore", *got.LastLocation)
	s.Require().Equal("Hamburg", *got.NextLocation)
	s.Require().Equal("MSC OSCAR", *got.CurrentVesselName)

	// статус не поменялся: история пишется, уведомлений нет
	s.Require().Len(s.store.historyFor(10), 1)
	s.Require().Empty(s.store.notificationsFor(10))
	s.Require().Zero(s.email.count())
}

func (s *EngineSuite) TestEmptyStatusProducesNoNotification() {
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{LastLocation: strp("Busan")}, nil).Once()

	_, err := s.reconcile(10)
	s.Require().NoError(err)

	got := s.store.get(10)
	s.Require().Equal(models.ShipmentStatusPending, got.Status)
	s.Require().Equal("Busan", *got.LastLocation)
	s.Require().Empty(s.store.notificationsFor(10))
	s.Require().Len(s.store.historyFor(10), 1)
}

func (s *EngineSuite) TestEmissionsSetOnceNeverRecomputed() {
	calls := 0
	s.engine.WithEstimator(EstimatorFunc(func(*models.Shipment) float64 {
		calls++
		return 42
	}))
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil)

	_, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().InDelta(42.0, *s.store.get(10).CO2EmissionsKg, 1e-9)

	s.now = s.now.Add(time.Hour)
	_, err = s.reconcile(10)
	s.Require().NoError(err)
	s.Require().InDelta(42.0, *s.store.get(10).CO2EmissionsKg, 1e-9)
	s.Require().Equal(1, calls)
	s.Require().Len(s.store.historyFor(10), 2)
}

func (s *EngineSuite) TestUpstreamErrorLeavesStateUntouched() {
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{}, integrations.Malformed("jsoncargo", "missing data object")).Once()

	before := s.store.get(10)
	o, err := s.reconcile(10)
	s.Require().Error(err)
	s.Require().Equal(OutcomeFailed, o)
	s.Require().Equal(ReasonMalformedPayload, failureReason(err))
	s.Require().Equal(before, s.store.get(10))
	s.Require().Empty(s.store.historyFor(10))
	// некорректный ответ не ретраим
	s.tracking.AssertNumberOfCalls(s.T(), "FetchTracking", 1)
}

func (s *EngineSuite) TestRetryableUpstreamErrorIsRetried() {
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{}, &integrations.HTTPError{Provider: "jsoncargo", StatusCode: http.StatusServiceUnavailable}).Twice()
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)
	s.tracking.AssertNumberOfCalls(s.T(), "FetchTracking", 3)
}

func (s *EngineSuite) TestRetriesExhausted() {
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{}, &integrations.HTTPError{Provider: "jsoncargo", StatusCode: http.StatusTooManyRequests})

	o, err := s.reconcile(10)
	s.Require().Equal(OutcomeFailed, o)
	s.Require().ErrorIs(err, integrations.ErrUpstreamUnavailable)
	s.Require().Equal(ReasonUpstreamUnavailable, failureReason(err))
	s.tracking.AssertNumberOfCalls(s.T(), "FetchTracking", 3)
}

func (s *EngineSuite) TestSinkFailureDoesNotUndoCommit() {
	s.email.err = errors.New("smtp down")
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)
	s.Require().Equal("In Transit", s.store.get(10).Status)
	s.Require().Len(s.store.notificationsFor(10), 1)
	s.Require().Equal(1, s.email.count())
}

func (s *EngineSuite) TestChannelsFollowUserPreferences() {
	s.store.users[1].Preferences = models.NotificationPreferences{NotifyViaEmail: false, NotifyViaSMS: true}
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("Delivered")}, nil).Once()

	_, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Zero(s.email.count())
	s.Require().Equal(1, s.sms.count())
	s.Require().Equal("+15550001", s.sms.sent[0].recipient)
	s.Require().Contains(s.sms.sent[0].body, "Delivered")
	// in-app запись создаётся независимо от каналов
	s.Require().Len(s.store.notificationsFor(10), 1)
}

func (s *EngineSuite) TestUserLookupFailureDoesNotFailCycle() {
	s.store.userErr = errors.New("db gone")
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)
	s.Require().Zero(s.email.count())
}

func (s *EngineSuite) TestCommitFailureLeavesNoPartialWrites() {
	s.store.commitErr = errors.New("tx aborted")
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	before := s.store.get(10)
	o, err := s.reconcile(10)
	s.Require().Error(err)
	s.Require().Equal(OutcomeFailed, o)
	s.Require().Equal(ReasonStore, failureReason(err))
	s.Require().Equal(before, s.store.get(10))
	s.Require().Empty(s.store.historyFor(10))
	s.Require().Empty(s.store.notificationsFor(10))
	s.Require().Zero(s.email.count())
}

func (s *EngineSuite) TestConcurrentWriterWinsLoserDiscarded() {
	// другой воркер успевает закоммитить между LoadForUpdate и нашим коммитом
	s.store.beforeCommit = func() {
		s.store.beforeCommit = nil
		other := s.store.get(10)
		ts := s.now.Add(-time.Second)
		other.Status = "Gate In"
		other.UpdatedAt = &ts
		other.Version++
		s.store.put(other)
	}
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().Equal(OutcomeFailed, o)
	s.Require().ErrorIs(err, models.ErrConflict)
	s.Require().Equal(ReasonConflict, failureReason(err))
	s.Require().Equal("Gate In", s.store.get(10).Status)
	s.Require().Empty(s.store.notificationsFor(10))
	s.Require().Zero(s.email.count())
}

func (s *EngineSuite) TestLockedShipmentIsSkipped() {
	s.engine.WithLocker(busyLocker{})

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeSkipped, o)
	s.tracking.AssertNotCalled(s.T(), "FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (s *EngineSuite) TestVesselEnrichmentUsesCache() {
	vm := &vesselMock{}
	vm.On("FetchLivePosition", mock.Anything, "9525338").
		Return(vessel.Position{Lat: 1.25, Lon: 103.8, SpeedKnots: 14.2, CourseDegree: 270}, nil).Once()
	s.engine.WithVessel(vm).WithPositionCache(&mapCache{data: map[string][]byte{}})

	s.store.put(&models.Shipment{ID: 11, UserID: 1, ContainerID: "MSCU1111111", CarrierName: "MSC", Status: models.ShipmentStatusPending})
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), VesselIMO: strp("9525338")}, nil)

	_, err := s.reconcile(10)
	s.Require().NoError(err)
	_, err = s.reconcile(11)
	s.Require().NoError(err)

	for _, id := range []uint64{10, 11} {
		got := s.store.get(id)
		s.Require().InDelta(1.25, *got.VesselLat, 1e-9)
		s.Require().InDelta(103.8, *got.VesselLon, 1e-9)
		s.Require().InDelta(14.2, *got.VesselSpeed, 1e-9)
		s.Require().InDelta(270.0, *got.VesselCourse, 1e-9)
		s.Require().InDelta(1.25, *s.store.historyFor(id)[0].VesselLat, 1e-9)
	}
	vm.AssertNumberOfCalls(s.T(), "FetchLivePosition", 1)
}

func (s *EngineSuite) TestVesselFailureKeepsPriorPosition() {
	lat, lon := 10.0, 20.0
	sh := s.store.get(10)
	sh.VesselLat, sh.VesselLon = &lat, &lon
	s.store.put(sh)

	vm := &vesselMock{}
	vm.On("FetchLivePosition", mock.Anything, "9525338").
		Return(vessel.Position{}, integrations.Malformed("datalastic", "no position"))
	s.engine.WithVessel(vm)

	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), VesselIMO: strp("9525338")}, nil).Once()

	o, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Equal(OutcomeProcessed, o)
	got := s.store.get(10)
	s.Require().InDelta(10.0, *got.VesselLat, 1e-9)
	s.Require().InDelta(20.0, *got.VesselLon, 1e-9)
}

func (s *EngineSuite) TestPublishesShipmentUpdated() {
	pub := &recordingPublisher{}
	s.engine.WithPublisher(pub, "shipment.updated")
	s.tracking.On("FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit")}, nil).Once()

	_, err := s.reconcile(10)
	s.Require().NoError(err)
	s.Require().Len(pub.events, 1)
	s.Require().Equal("shipment.updated", pub.events[0].topic)
	s.Require().Equal("10", pub.events[0].key)

	ev, ok := pub.events[0].v.(messages.ShipmentUpdated)
	s.Require().True(ok)
	s.Require().Equal("Pending", ev.OldStatus)
	s.Require().Equal("In Transit", ev.Status)
	s.Require().True(ev.StatusChanged)
	s.Require().Equal(s.now, ev.UpdatedAt)
}

func (s *EngineSuite) TestReconcileAll_FailureOfOneDoesNotAffectOthers() {
	s.store.put(&models.Shipment{ID: 20, UserID: 1, ContainerID: "B", CarrierName: "MSC", Status: models.ShipmentStatusPending})
	recent := s.now.Add(-time.Minute)
	s.store.put(&models.Shipment{ID: 30, UserID: 1, ContainerID: "C", CarrierName: "MSC", Status: "In Transit", UpdatedAt: &recent})

	s.tracking.On("FetchTracking", mock.Anything, "MEDU9091004", mock.Anything, mock.Anything).
		Return(tracking.Snapshot{}, integrations.Unavailable("jsoncargo", errors.New("connection refused")))
	s.tracking.On("FetchTracking", mock.Anything, "B", mock.Anything, mock.Anything).
		Return(tracking.Snapshot{Status: strp("In Transit"), LastLocation: strp("Busan")}, nil).Once()

	rep, err := s.engine.ReconcileAll(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(1, rep.Processed)
	s.Require().Equal(1, rep.Skipped)
	s.Require().Equal(1, rep.Failed)
	s.Require().NotEmpty(rep.RunID)
	s.Require().False(rep.Interrupted)

	s.Require().Equal(models.ShipmentStatusPending, s.store.get(10).Status)
	s.Require().Equal("Busan", *s.store.get(20).LastLocation)
	s.tracking.AssertNotCalled(s.T(), "FetchTracking", mock.Anything, "C", mock.Anything, mock.Anything)

	st := s.engine.Stats()
	s.Require().Equal(int64(1), st.TotalRuns)
	s.Require().Equal(int64(1), st.TotalFailed)
	s.Require().NotNil(st.LastReport)
	s.Require().Contains(st.LastError, "connection refused")
}

func (s *EngineSuite) TestReconcileAll_ListErrorIsReturned() {
	s.store.listErr = errors.New("pg down")
	_, err := s.engine.ReconcileAll(context.Background())
	s.Require().Error(err)
}

func (s *EngineSuite) TestReconcileAll_CancelledStartsNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := s.engine.ReconcileAll(ctx)
	s.Require().NoError(err)
	s.Require().True(rep.Interrupted)
	s.Require().Zero(rep.Processed + rep.Skipped + rep.Failed)
	s.tracking.AssertNotCalled(s.T(), "FetchTracking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

type trackingFunc func(ctx context.Context, containerID, carrierName string, carrierLineID *string) (tracking.Snapshot, error)

func (f trackingFunc) FetchTracking(ctx context.Context, containerID, carrierName string, carrierLineID *string) (tracking.Snapshot, error) {
	return f(ctx, containerID, carrierName, carrierLineID)
}

func TestReconcileAll_BatchesAndBoundsConcurrency(t *testing.T) {
	store := newMemStore()
	store.users[1] = &models.User{ID: 1, Email: "a@b.c"}
	for i := 1; i <= 250; i++ {
		store.put(&models.Shipment{ID: uint64(i), UserID: 1, ContainerID: fmt.Sprintf("C%03d", i), CarrierName: "MSC", Status: models.ShipmentStatusPending})
	}

	var cur, peak atomic.Int64
	client := trackingFunc(func(ctx context.Context, containerID, _ string, _ *string) (tracking.Snapshot, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return tracking.Snapshot{Status: strp("In Transit")}, nil
	})

	e := New(store, client).WithSettings(Settings{BatchSize: 100, Concurrency: 4})
	rep, err := e.ReconcileAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Processed != 250 {
		t.Fatalf("processed = %d, want 250", rep.Processed)
	}
	if p := peak.Load(); p > 4 {
		t.Fatalf("peak concurrency = %d, want <= 4", p)
	}
	if n := len(store.notifications); n != 250 {
		t.Fatalf("notifications = %d, want 250", n)
	}
}

func TestReconcileAll_PagesPastShortPages(t *testing.T) {
	store := newMemStore()
	store.maxPage = 100
	store.users[1] = &models.User{ID: 1, Email: "a@b.c"}
	for i := 1; i <= 300; i++ {
		store.put(&models.Shipment{ID: uint64(i), UserID: 1, ContainerID: fmt.Sprintf("C%03d", i), CarrierName: "MSC", Status: models.ShipmentStatusPending})
	}
	client := trackingFunc(func(context.Context, string, string, *string) (tracking.Snapshot, error) {
		return tracking.Snapshot{Status: strp("In Transit")}, nil
	})

	e := New(store, client).WithSettings(Settings{BatchSize: 2000, Concurrency: 8})
	if e.settings.BatchSize != maxBatchSize {
		t.Fatalf("batch size = %d, want %d", e.settings.BatchSize, maxBatchSize)
	}
	rep, err := e.ReconcileAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Processed != 300 {
		t.Fatalf("processed = %d, want 300", rep.Processed)
	}
}
