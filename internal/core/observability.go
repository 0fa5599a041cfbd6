package core

import (
	"context"
	"time"
)

// Operation names reported to MetricsRecorder.
const (
	OpLookup    = "lookup"
	OpFind      = "find"
	OpList      = "list"
	OpUpsert    = "upsert"
	OpEdit      = "edit"
	OpDelete    = "delete"
	OpDeleteAll = "delete_all"
	OpBulk      = "bulk_upsert"
	OpReload    = "reload"
	OpImport    = "csv_import"
)

// MetricsRecorder receives the outcome and latency of every service operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, op string, success bool, duration time.Duration)
}

// IndexSizeRecorder is implemented by recorders that also track Index size.
// The service reports after every mutation and reload.
type IndexSizeRecorder interface {
	SetIndexSize(names, codes int)
}

// BulkRecorder is implemented by recorders that count bulk entries.
type BulkRecorder interface {
	ObserveBulk(accepted, rejected int)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

// observe reports one operation and returns err unchanged, so call sites can
// write `return rec, s.observe(ctx, OpX, start, err)`.
func (s *Service) observe(ctx context.Context, op string, start time.Time, err error) error {
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	return err
}

func (s *Service) reportIndexSize() {
	if r, ok := s.metrics.(IndexSizeRecorder); ok {
		st := s.index.Stats()
		r.SetIndexSize(st.Names, st.Codes)
	}
}

func (s *Service) reportBulk(res BulkResult) {
	if r, ok := s.metrics.(BulkRecorder); ok {
		r.ObserveBulk(res.Accepted, res.Rejected)
	}
}
