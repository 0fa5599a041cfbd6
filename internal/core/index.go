package core

import (
	"sort"
	"sync"
)

// Index is the in-memory mirror of the store, keyed by canonical name and by
// canonical code. It is safe for concurrent use: both mappings for a record
// change under one write lock, so readers never observe half of an update.
type Index struct {
	mu     sync.RWMutex
	byName map[string]Record
	byCode map[string]Record
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byName: make(map[string]Record),
		byCode: make(map[string]Record),
	}
}

// Rebuild replaces the whole content of the Index with records.
func (ix *Index) Rebuild(records []Record) {
	byName := make(map[string]Record, len(records))
	byCode := make(map[string]Record, len(records))
	for _, rec := range records {
		rec = canonicalRecord(rec)
		byName[rec.Name] = rec
		if rec.HasCode() {
			byCode[rec.Code] = rec
		}
	}

	ix.mu.Lock()
	ix.byName = byName
	ix.byCode = byCode
	ix.mu.Unlock()
}

// Put inserts or replaces rec.
//
// A previous code of the same name is evicted, and a different record holding
// rec.Code loses its code (last writer wins), mirroring Store.Upsert.
func (ix *Index) Put(rec Record) {
	rec = canonicalRecord(rec)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.putLocked(rec)
}

func (ix *Index) putLocked(rec Record) {
	if prev, ok := ix.byName[rec.Name]; ok && prev.HasCode() && prev.Code != rec.Code {
		if holder, ok := ix.byCode[prev.Code]; ok && holder.Name == rec.Name {
			delete(ix.byCode, prev.Code)
		}
	}
	if rec.HasCode() {
		if holder, ok := ix.byCode[rec.Code]; ok && holder.Name != rec.Name {
			if detached, ok := ix.byName[holder.Name]; ok {
				detached.Code = ""
				ix.byName[holder.Name] = detached
			}
		}
		ix.byCode[rec.Code] = rec
	}
	ix.byName[rec.Name] = rec
}

// Move removes the entry under oldName and puts rec, as one atomic step.
func (ix *Index) Move(oldName string, rec Record) {
	rec = canonicalRecord(rec)
	oldName = CanonicalName(oldName)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if oldName != rec.Name {
		ix.removeNameLocked(oldName)
	}
	ix.putLocked(rec)
}

// RemoveByName evicts the record stored under name, with its code mapping.
func (ix *Index) RemoveByName(name string) {
	name = CanonicalName(name)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeNameLocked(name)
}

func (ix *Index) removeNameLocked(name string) {
	prev, ok := ix.byName[name]
	if !ok {
		return
	}
	delete(ix.byName, name)
	if prev.HasCode() {
		if holder, ok := ix.byCode[prev.Code]; ok && holder.Name == name {
			delete(ix.byCode, prev.Code)
		}
	}
}

// RemoveByCode evicts the code mapping for code. The by-name entry of the
// holder stays, with its code cleared.
func (ix *Index) RemoveByCode(code string) {
	code = CanonicalCode(code)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	holder, ok := ix.byCode[code]
	if !ok {
		return
	}
	delete(ix.byCode, code)
	if rec, ok := ix.byName[holder.Name]; ok && rec.Code == code {
		rec.Code = ""
		ix.byName[holder.Name] = rec
	}
}

// LookupExact returns the record whose canonical name matches term, falling
// back to a canonical code match.
func (ix *Index) LookupExact(term string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lookupLocked(term)
}

func (ix *Index) lookupLocked(term string) (Record, bool) {
	if rec, ok := ix.byName[CanonicalName(term)]; ok {
		return rec, true
	}
	if code := CanonicalCode(term); code != "" {
		if rec, ok := ix.byCode[code]; ok {
			return rec, true
		}
	}
	return Record{}, false
}

// view runs fn with the read lock held, so a multi-term lookup sees one
// consistent state.
func (ix *Index) view(fn func(lookup func(string) (Record, bool))) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	fn(ix.lookupLocked)
}

// Stats returns the number of entries in each mapping.
func (ix *Index) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return IndexStats{Names: len(ix.byName), Codes: len(ix.byCode)}
}

// Snapshot returns every record ordered like Store.ListAll.
func (ix *Index) Snapshot() []Record {
	ix.mu.RLock()
	out := make([]Record, 0, len(ix.byName))
	for _, rec := range ix.byName {
		out = append(out, rec)
	}
	ix.mu.RUnlock()

	SortRecords(out)
	return out
}

// SortRecords orders records by code with absent codes last, then by name.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.HasCode() != b.HasCode() {
			return a.HasCode()
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Name < b.Name
	})
}

func canonicalRecord(rec Record) Record {
	return Record{
		Name:       CanonicalName(rec.Name),
		Code:       CanonicalCode(rec.Code),
		ExternalID: rec.ExternalID,
	}
}
