package reconciler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/Dekks/internal/cache"
	"github.com/BearBump/Dekks/internal/integrations/tracking"
	"github.com/BearBump/Dekks/internal/integrations/vessel"
	"github.com/BearBump/Dekks/internal/models"
	"github.com/BearBump/Dekks/internal/notify"
)

type Store interface {
	ListTrackedShipments(ctx context.Context, afterID uint64, limit int) ([]*models.Shipment, error)
	LoadForUpdate(ctx context.Context, shipmentID uint64) (*models.Shipment, error)
	CommitShipmentUpdate(ctx context.Context, upd models.ShipmentUpdate) error
	GetUser(ctx context.Context, userID uint64) (*models.User, error)
}

// Locker is an advisory per-shipment lock shared between worker instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

type Publisher interface {
	PublishJSON(ctx context.Context, topic, key string, v any) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Settings struct {
	// Interval is the throttle window: a shipment updated less than Interval ago is skipped.
	Interval    time.Duration
	BatchSize   int
	Concurrency int

	FetchTimeout  time.Duration
	VesselTimeout time.Duration
	NotifyTimeout time.Duration
	LockTTL       time.Duration

	RetryAttempts int
	RetryInitial  time.Duration

	RateLimitPerMinute int64
	VesselCacheTTL     time.Duration
	PublishAttempts    int
}

func DefaultSettings() Settings {
	return Settings{
		Interval:        30 * time.Minute,
		BatchSize:       100,
		Concurrency:     8,
		FetchTimeout:    30 * time.Second,
		VesselTimeout:   30 * time.Second,
		NotifyTimeout:   15 * time.Second,
		LockTTL:         2 * time.Minute,
		RetryAttempts:   3,
		RetryInitial:    500 * time.Millisecond,
		VesselCacheTTL:  5 * time.Minute,
		PublishAttempts: 5,
	}
}

const (
	minConcurrency = 1
	maxConcurrency = 16
	maxBatchSize   = 1000
)

type Engine struct {
	store    Store
	tracking tracking.Client
	vessel   vessel.Client

	emailSink notify.Sink
	smsSink   notify.Sink

	locker    Locker
	publisher Publisher
	topic     string
	rl        RateLimiter
	positions cache.BytesCache
	estimator Estimator

	now      func() time.Time
	settings Settings

	startedAtUnixNano int64
	lastRunUnixNano   atomic.Int64
	totalRuns         atomic.Int64
	totalProcessed    atomic.Int64
	totalSkipped      atomic.Int64
	totalFailed       atomic.Int64
	inFlight          atomic.Int64
	mu                sync.Mutex
	lastError         string
	lastReport        *Report
}

func New(store Store, trackingClient tracking.Client) *Engine {
	return &Engine{
		store:             store,
		tracking:          trackingClient,
		estimator:         DefaultEstimator(),
		now:               time.Now,
		settings:          DefaultSettings(),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

// WithSettings applies non-zero fields of s over the defaults.
func (e *Engine) WithSettings(s Settings) *Engine {
	if s.Interval > 0 {
		e.settings.Interval = s.Interval
	}
	if s.BatchSize > 0 {
		e.settings.BatchSize = min(s.BatchSize, maxBatchSize)
	}
	if s.Concurrency > 0 {
		e.settings.Concurrency = min(max(s.Concurrency, minConcurrency), maxConcurrency)
	}
	if s.FetchTimeout > 0 {
		e.settings.FetchTimeout = s.FetchTimeout
	}
	if s.VesselTimeout > 0 {
		e.settings.VesselTimeout = s.VesselTimeout
	}
	if s.NotifyTimeout > 0 {
		e.settings.NotifyTimeout = s.NotifyTimeout
	}
	if s.LockTTL > 0 {
		e.settings.LockTTL = s.LockTTL
	}
	if s.RetryAttempts > 0 {
		e.settings.RetryAttempts = s.RetryAttempts
	}
	if s.RetryInitial > 0 {
		e.settings.RetryInitial = s.RetryInitial
	}
	if s.RateLimitPerMinute > 0 {
		e.settings.RateLimitPerMinute = s.RateLimitPerMinute
	}
	if s.VesselCacheTTL > 0 {
		e.settings.VesselCacheTTL = s.VesselCacheTTL
	}
	if s.PublishAttempts > 0 {
		e.settings.PublishAttempts = s.PublishAttempts
	}
	return e
}

func (e *Engine) Settings() Settings { return e.settings }

func (e *Engine) WithVessel(c vessel.Client) *Engine {
	e.vessel = c
	return e
}

// WithSinks sets the delivery channels. A nil sink disables its channel.
func (e *Engine) WithSinks(email, sms notify.Sink) *Engine {
	e.emailSink = email
	e.smsSink = sms
	return e
}

func (e *Engine) WithLocker(l Locker) *Engine {
	e.locker = l
	return e
}

func (e *Engine) WithPublisher(p Publisher, topic string) *Engine {
	e.publisher = p
	e.topic = topic
	return e
}

func (e *Engine) WithRateLimiter(rl RateLimiter) *Engine {
	e.rl = rl
	return e
}

func (e *Engine) WithPositionCache(c cache.BytesCache) *Engine {
	e.positions = c
	return e
}

func (e *Engine) WithEstimator(est Estimator) *Engine {
	if est != nil {
		e.estimator = est
	}
	return e
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastRunAt      *time.Time `json:"lastRunAt,omitempty"`
	TotalRuns      int64      `json:"totalRuns"`
	TotalProcessed int64      `json:"totalProcessed"`
	TotalSkipped   int64      `json:"totalSkipped"`
	TotalFailed    int64      `json:"totalFailed"`
	InFlight       int64      `json:"inFlight"`
	LastError      string     `json:"lastError,omitempty"`
	LastReport     *Report    `json:"lastReport,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, e.startedAtUnixNano).UTC(),
		TotalRuns:      e.totalRuns.Load(),
		TotalProcessed: e.totalProcessed.Load(),
		TotalSkipped:   e.totalSkipped.Load(),
		TotalFailed:    e.totalFailed.Load(),
		InFlight:       e.inFlight.Load(),
	}
	if n := e.lastRunUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastRunAt = &t
	}
	e.mu.Lock()
	st.LastError = e.lastError
	if e.lastReport != nil {
		r := *e.lastReport
		st.LastReport = &r
	}
	e.mu.Unlock()
	return st
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
}
