package core

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/JonMunkholm/idlookup/internal/logging"
)

// DefaultStoreTimeout bounds a single store call when no timeout is configured.
const DefaultStoreTimeout = 5 * time.Second

// DefaultMaxRejectedSamples is how many rejected bulk entries are echoed back.
const DefaultMaxRejectedSamples = 5

// Service is the directory: a durable Store mirrored by an in-memory Index.
//
// Lookups read only the Index. Mutations are serialized by writeMu and update
// the Index only after the store write succeeded, so the Index never shows a
// state the store does not hold.
type Service struct {
	store   Store
	index   *Index
	metrics MetricsRecorder
	auditor AuditRecorder
	limiter *BulkLimiter

	storeTimeout time.Duration
	maxSamples   int

	writeMu sync.Mutex
	reloads singleflight.Group
}

// Option customizes a Service.
type Option func(*Service)

// WithMetricsRecorder routes operation metrics to r.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithAuditRecorder routes audit entries to r.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.auditor = r
		}
	}
}

// WithStoreTimeout bounds each store call. Non-positive values disable the bound.
func WithStoreTimeout(d time.Duration) Option {
	return func(s *Service) { s.storeTimeout = d }
}

// WithBulkLimits sets the rejected-sample cap and the bulk concurrency limiter.
func WithBulkLimits(maxSamples int, limiter *BulkLimiter) Option {
	return func(s *Service) {
		if maxSamples >= 0 {
			s.maxSamples = maxSamples
		}
		if limiter != nil {
			s.limiter = limiter
		}
	}
}

// NewService creates a Service over store. The Index starts empty; call
// Reload to populate it.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:        store,
		index:        NewIndex(),
		metrics:      noopMetricsRecorder{},
		auditor:      SlogAuditRecorder{},
		limiter:      NewBulkLimiter(DefaultMaxConcurrentBulk, DefaultBulkWaitTime),
		storeTimeout: DefaultStoreTimeout,
		maxSamples:   DefaultMaxRejectedSamples,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index exposes the in-memory index for read-only callers.
func (s *Service) Index() *Index { return s.index }

// BulkLimiter exposes the bulk limiter for health output and shutdown.
func (s *Service) BulkLimiter() *BulkLimiter { return s.limiter }

// Stats returns the current Index sizes.
func (s *Service) Stats() IndexStats { return s.index.Stats() }

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return storeErr("ping", s.store.Ping(ctx))
}

// Reload rebuilds the Index from the store. Concurrent calls share one store
// read. On failure the Index keeps its previous content.
func (s *Service) Reload(ctx context.Context) (IndexStats, error) {
	start := time.Now()

	v, err, _ := s.reloads.Do("reload", func() (any, error) {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()

		sctx, cancel := s.storeCtx(ctx)
		defer cancel()

		records, err := s.store.ListAll(sctx)
		if err != nil {
			return IndexStats{}, storeErr("list", err)
		}
		s.index.Rebuild(records)
		s.reportIndexSize()

		stats := s.index.Stats()
		s.audit(ctx, AuditEntry{Action: ActionReload, RowsAffected: int64(stats.Names)})
		return stats, nil
	})
	stats, _ := v.(IndexStats)

	if err := s.observe(ctx, OpReload, start, err); err != nil {
		logging.FromContext(ctx).Error("index reload failed", "error", err)
		return stats, err
	}
	return stats, nil
}

// storeCtx derives the context for one store call.
func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}
