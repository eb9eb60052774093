package memory

import (
	"context"
	"sync"

	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
)

// Provider is an in-memory storage backend, used by default and in tests.
type Provider struct {
	mu       sync.Mutex
	profiles map[string]*profileStore
}

func NewProvider() *Provider {
	return &Provider{profiles: make(map[string]*profileStore)}
}

// OpenStore returns the store for a profile, creating it on first use.
func (p *Provider) OpenStore(ctx context.Context, profileID string) (storage.Store, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.profiles[profileID]
	if !ok {
		s = &profileStore{records: make(map[string]map[string]storage.Record)}
		p.profiles[profileID] = s
	}
	return s, nil
}

func (p *Provider) Close() error { return nil }

// profileStore holds one profile's records, partitioned by record type.
type profileStore struct {
	mu      sync.RWMutex
	records map[string]map[string]storage.Record
}

func (s *profileStore) AddRecord(ctx context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part, ok := s.records[rec.Type]
	if !ok {
		part = make(map[string]storage.Record)
		s.records[rec.Type] = part
	}
	if _, exists := part[rec.ID]; exists {
		return storage.ErrDuplicate
	}
	part[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *profileStore) GetRecord(ctx context.Context, recType, id string) (*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recType][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := cloneRecord(rec)
	return &out, nil
}

func (s *profileStore) UpdateRecord(ctx context.Context, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.records[rec.Type]
	if _, ok := part[rec.ID]; !ok {
		return storage.ErrNotFound
	}
	part[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *profileStore) DeleteRecord(ctx context.Context, recType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.records[recType]
	if _, ok := part[id]; !ok {
		return storage.ErrNotFound
	}
	delete(part, id)
	return nil
}

func (s *profileStore) FindAllRecords(
	ctx context.Context,
	recType string,
	tagQuery map[string]string,
) ([]*storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.Record
	for _, rec := range s.records[recType] {
		if storage.MatchTags(rec.Tags, tagQuery) {
			c := cloneRecord(rec)
			out = append(out, &c)
		}
	}
	return out, nil
}

func cloneRecord(rec storage.Record) storage.Record {
	out := storage.Record{Type: rec.Type, ID: rec.ID}
	out.Value = append([]byte(nil), rec.Value...)
	out.Tags = make(map[string]string, len(rec.Tags))
	for k, v := range rec.Tags {
		out.Tags[k] = v
	}
	return out
}
