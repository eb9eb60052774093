package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when adding a record whose (type, id) pair
	// already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// Record is an opaque blob partitioned by type, addressed by id, and
// carrying a flat tag map usable for equality-query filtering.
type Record struct {
	Type  string
	ID    string
	Value []byte
	Tags  map[string]string
}

// Store is the key-value storage engine contract. Implementations hold the
// records of exactly one profile (tenant).
type Store interface {
	// AddRecord writes a new record. A record with the same type and id
	// must fail with ErrDuplicate, never silently merge.
	AddRecord(ctx context.Context, rec Record) error

	// GetRecord retrieves a record, ErrNotFound if missing.
	GetRecord(ctx context.Context, recType, id string) (*Record, error)

	// UpdateRecord replaces a record's value and tags, ErrNotFound if missing.
	UpdateRecord(ctx context.Context, rec Record) error

	// DeleteRecord removes a record, ErrNotFound if missing.
	DeleteRecord(ctx context.Context, recType, id string) error

	// FindAllRecords returns records of one type whose tags contain every
	// entry of tagQuery (equality matching). A nil or empty query matches all.
	FindAllRecords(ctx context.Context, recType string, tagQuery map[string]string) ([]*Record, error)
}

// Provider opens per-profile stores against a shared backend.
type Provider interface {
	OpenStore(ctx context.Context, profileID string) (Store, error)
	Close() error
}

// MatchTags reports whether tags satisfy the equality query. Shared by
// backends that filter client-side.
func MatchTags(tags, tagQuery map[string]string) bool {
	for k, v := range tagQuery {
		if tags[k] != v {
			return false
		}
	}
	return true
}
