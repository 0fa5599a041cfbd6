package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memStore is an in-memory Store with the same code policy as the real
// adapters. Setting failWith makes every call fail.
type memStore struct {
	mu       sync.Mutex
	rows     map[string]Record
	failWith error
	calls    int
}

func newMemStore(records ...Record) *memStore {
	m := &memStore{rows: make(map[string]Record)}
	for _, r := range records {
		m.rows[r.Name] = r
	}
	return m
}

func (m *memStore) fail() error {
	m.calls++
	return m.failWith
}

func (m *memStore) EnsureSchema(context.Context) error { return nil }

func (m *memStore) Get(_ context.Context, name string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Record{}, err
	}
	rec, ok := m.rows[name]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *memStore) GetByCode(_ context.Context, code string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return Record{}, err
	}
	for _, rec := range m.rows {
		if rec.Code == code {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *memStore) upsertLocked(rec Record) {
	if rec.Code != "" {
		for name, other := range m.rows {
			if name != rec.Name && other.Code == rec.Code {
				other.Code = ""
				m.rows[name] = other
			}
		}
	}
	m.rows[rec.Name] = rec
}

func (m *memStore) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.upsertLocked(rec)
	return nil
}

func (m *memStore) Rename(_ context.Context, oldName string, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.rows, oldName)
	m.upsertLocked(rec)
	return nil
}

func (m *memStore) DeleteByName(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	_, ok := m.rows[name]
	delete(m.rows, name)
	return ok, nil
}

func (m *memStore) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	n := int64(len(m.rows))
	m.rows = make(map[string]Record)
	return n, nil
}

func (m *memStore) ListAll(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(m.rows))
	for _, rec := range m.rows {
		out = append(out, rec)
	}
	SortRecords(out)
	return out, nil
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fail()
}

func (m *memStore) Close() error { return nil }

func (m *memStore) setFailure(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *memStore) snapshot() map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Record, len(m.rows))
	for k, v := range m.rows {
		out[k] = v
	}
	return out
}

var errDiskGone = errors.New("disk I/O error")

// captureAudit records audit entries for assertions.
type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, e AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
}

func (c *captureAudit) actions() []AuditAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AuditAction, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Action
	}
	return out
}

type metricsCall struct {
	op      string
	success bool
}

// captureMetrics records Observe calls and the last reported index size.
type captureMetrics struct {
	mu           sync.Mutex
	calls        []metricsCall
	names, codes int
	accepted     int
	rejected     int
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
	c.mu.Unlock()
}

func (c *captureMetrics) SetIndexSize(names, codes int) {
	c.mu.Lock()
	c.names, c.codes = names, codes
	c.mu.Unlock()
}

func (c *captureMetrics) ObserveBulk(accepted, rejected int) {
	c.mu.Lock()
	c.accepted += accepted
	c.rejected += rejected
	c.mu.Unlock()
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}
