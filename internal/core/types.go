// Package core provides the business logic for the ID directory.
// This package has no transport dependencies and can be used by any frontend.
package core

import (
	"context"
	"time"
)

// Record is one identity mapping. Name and Code are stored in canonical form.
type Record struct {
	Name       string `json:"name"`
	Code       string `json:"code,omitempty"` // empty when the record has no code
	ExternalID string `json:"id"`
}

// HasCode reports whether the record carries a code.
func (r Record) HasCode() bool { return r.Code != "" }

// Store is the durable relation behind the directory.
//
// Implementations keep one row per canonical name with a unique, nullable code.
// Upsert and Rename apply the last-writer-wins code policy: when the written code
// is held by a different name, that row's code is cleared in the same transaction.
type Store interface {
	// EnsureSchema creates the relation, migrating the legacy (name, user_id) shape if found.
	EnsureSchema(ctx context.Context) error

	// Get returns the record stored under a canonical name, or ErrNotFound.
	Get(ctx context.Context, name string) (Record, error)

	// GetByCode returns the record holding a canonical code, or ErrNotFound.
	GetByCode(ctx context.Context, code string) (Record, error)

	// Upsert inserts or fully replaces the row for rec.Name.
	Upsert(ctx context.Context, rec Record) error

	// Rename writes rec and removes the row under oldName atomically.
	Rename(ctx context.Context, oldName string, rec Record) error

	// DeleteByName removes one row and reports whether it existed.
	DeleteByName(ctx context.Context, name string) (bool, error)

	// DeleteAll truncates the relation and returns the number of rows removed.
	DeleteAll(ctx context.Context) (int64, error)

	// ListAll returns every row ordered by code (absent codes last), then name.
	ListAll(ctx context.Context) ([]Record, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection(s).
	Close() error
}

// EditRequest carries optional replacement values for Edit.
// Nil or blank fields keep the existing value.
type EditRequest struct {
	Name       *string `json:"name,omitempty"`
	Code       *string `json:"code,omitempty"`
	ExternalID *string `json:"id,omitempty"`
}

// EditResult holds the pre- and post-image of an edited record.
type EditResult struct {
	Before Record `json:"before"`
	After  Record `json:"after"`
}

// BulkResult summarizes a bulk upsert.
type BulkResult struct {
	BatchID         string        `json:"batchId"`
	Accepted        int           `json:"accepted"`
	Rejected        int           `json:"rejected"`
	RejectedSamples []string      `json:"rejectedSamples,omitempty"`
	Duration        time.Duration `json:"-"`
}

// IndexStats reports the sizes of the two Index mappings.
type IndexStats struct {
	Names int `json:"names"`
	Codes int `json:"codes"`
}
