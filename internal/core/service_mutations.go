package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Upsert validates and writes one record, replacing any record with the same
// canonical name. A different record holding the same code loses its code.
func (s *Service) Upsert(ctx context.Context, name, code, externalID string) (Record, error) {
	start := time.Now()

	rec, err := newRecord(name, code, externalID)
	if err != nil {
		return Record{}, s.observe(ctx, OpUpsert, start, err)
	}

	s.writeMu.Lock()
	err = s.upsertLocked(ctx, rec)
	s.writeMu.Unlock()
	if err != nil {
		return Record{}, s.observe(ctx, OpUpsert, start, err)
	}

	s.audit(ctx, AuditEntry{Action: ActionAdd, Key: rec.Name, After: recordPtr(rec)})
	return rec, s.observe(ctx, OpUpsert, start, nil)
}

// newRecord canonicalizes the inputs and applies the record invariants.
func newRecord(name, code, externalID string) (Record, error) {
	rec := Record{
		Name:       CanonicalName(name),
		Code:       CanonicalCode(code),
		ExternalID: strings.TrimSpace(externalID),
	}
	if !IsValidExternalID(rec.ExternalID) {
		return Record{}, invalidIDError(externalID)
	}
	if rec.Name == "" {
		return Record{}, ErrInvalidName
	}
	return rec, nil
}

// upsertLocked writes rec to the store and then mirrors it into the Index.
// The caller holds writeMu.
func (s *Service) upsertLocked(ctx context.Context, rec Record) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.store.Upsert(sctx, rec); err != nil {
		return storeErr("upsert", err)
	}
	s.index.Put(rec)
	s.reportIndexSize()
	return nil
}

// Edit replaces the fields of the record found by key. Nil or blank fields
// keep their current value. A name change moves the record atomically.
func (s *Service) Edit(ctx context.Context, key string, req EditRequest) (EditResult, error) {
	start := time.Now()

	var newID string
	if req.ExternalID != nil {
		newID = strings.TrimSpace(*req.ExternalID)
		if newID != "" && !IsValidExternalID(newID) {
			return EditResult{}, s.observe(ctx, OpEdit, start, invalidIDError(newID))
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	before, err := s.findByKey(ctx, key)
	if err != nil {
		return EditResult{}, s.observe(ctx, OpEdit, start, err)
	}

	after := before
	if req.Name != nil {
		if n := CanonicalName(*req.Name); n != "" {
			after.Name = n
		}
	}
	if req.Code != nil {
		if c := CanonicalCode(*req.Code); c != "" {
			after.Code = c
		}
	}
	if newID != "" {
		after.ExternalID = newID
	}
	// Rows written outside the service may carry an ID that never passed
	// validation; an edit must not persist it again.
	if !IsValidExternalID(after.ExternalID) {
		return EditResult{}, s.observe(ctx, OpEdit, start, invalidIDError(after.ExternalID))
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if after.Name != before.Name {
		if err := s.store.Rename(sctx, before.Name, after); err != nil {
			return EditResult{}, s.observe(ctx, OpEdit, start, storeErr("rename", err))
		}
		s.index.Move(before.Name, after)
	} else {
		if err := s.store.Upsert(sctx, after); err != nil {
			return EditResult{}, s.observe(ctx, OpEdit, start, storeErr("upsert", err))
		}
		s.index.Put(after)
	}
	s.reportIndexSize()

	s.audit(ctx, AuditEntry{
		Action: ActionEdit,
		Key:    key,
		Before: recordPtr(before),
		After:  recordPtr(after),
	})
	return EditResult{Before: before, After: after}, s.observe(ctx, OpEdit, start, nil)
}

// DeleteOne removes the record found by key and returns it.
func (s *Service) DeleteOne(ctx context.Context, key string) (Record, error) {
	start := time.Now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rec, err := s.findByKey(ctx, key)
	if err != nil {
		return Record{}, s.observe(ctx, OpDelete, start, err)
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	existed, err := s.store.DeleteByName(sctx, rec.Name)
	if err != nil {
		return Record{}, s.observe(ctx, OpDelete, start, storeErr("delete", err))
	}
	if !existed {
		return Record{}, s.observe(ctx, OpDelete, start, ErrNotFound)
	}
	s.index.RemoveByName(rec.Name)
	s.reportIndexSize()

	s.audit(ctx, AuditEntry{Action: ActionDelete, Key: key, Before: recordPtr(rec)})
	return rec, s.observe(ctx, OpDelete, start, nil)
}

// DeleteAll removes every record and empties the Index.
func (s *Service) DeleteAll(ctx context.Context) (int64, error) {
	start := time.Now()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	n, err := s.store.DeleteAll(sctx)
	if err != nil {
		return 0, s.observe(ctx, OpDeleteAll, start, storeErr("delete all", err))
	}
	s.index.Rebuild(nil)
	s.reportIndexSize()

	s.audit(ctx, AuditEntry{Action: ActionClear, RowsAffected: n})
	return n, s.observe(ctx, OpDeleteAll, start, nil)
}

// findByKey reads the store by canonical name, then by canonical code.
func (s *Service) findByKey(ctx context.Context, key string) (Record, error) {
	name, code := CanonicalName(key), CanonicalCode(key)
	if name == "" && code == "" {
		return Record{}, ErrNotFound
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if name != "" {
		rec, err := s.store.Get(sctx, name)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Record{}, storeErr("get", err)
		}
	}
	if code == "" {
		return Record{}, ErrNotFound
	}
	rec, err := s.store.GetByCode(sctx, code)
	if err != nil {
		return Record{}, storeErr("get by code", err)
	}
	return rec, nil
}
