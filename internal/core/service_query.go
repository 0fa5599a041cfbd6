package core

import (
	"context"
	"time"
)

// Lookup resolves every term of query against the Index. It never touches
// the store, so it keeps answering while the store is down.
func (s *Service) Lookup(ctx context.Context, query string) []Record {
	start := time.Now()
	found := Resolve(s.index, query)
	s.metrics.Observe(ctx, OpLookup, true, time.Since(start))
	return found
}

// FindByKey returns the stored record whose canonical name, or failing that
// canonical code, matches key.
func (s *Service) FindByKey(ctx context.Context, key string) (Record, error) {
	start := time.Now()
	rec, err := s.findByKey(ctx, key)
	return rec, s.observe(ctx, OpFind, start, err)
}

// Records lists every stored record ordered by code (absent codes last),
// then name.
func (s *Service) Records(ctx context.Context) ([]Record, error) {
	start := time.Now()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	records, err := s.store.ListAll(sctx)
	if err != nil {
		return nil, s.observe(ctx, OpList, start, storeErr("list", err))
	}
	return records, s.observe(ctx, OpList, start, nil)
}
