// Package redis implements the storage engine contract on Redis, plus the
// advisory recovery lease. Records live as JSON values keyed by profile,
// type and id, with a per-type set for enumeration.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// Client wraps the Redis connection.
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks if redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// OpenStore implements storage.Provider.
func (c *Client) OpenStore(ctx context.Context, profileID string) (storage.Store, error) {
	return &store{rdb: c.rdb, profileID: profileID}, nil
}

// Key helpers
func recordKey(profileID, recType, id string) string {
	return fmt.Sprintf("record:%s:%s:%s", profileID, recType, id)
}

func indexKey(profileID, recType string) string {
	return fmt.Sprintf("records:%s:%s", profileID, recType)
}

type store struct {
	rdb       *redis.Client
	profileID string
}

// storedRecord is the persisted JSON shape of one record.
type storedRecord struct {
	Value []byte            `json:"value"`
	Tags  map[string]string `json:"tags"`
}

func (s *store) AddRecord(ctx context.Context, rec storage.Record) error {
	data, err := json.Marshal(storedRecord{Value: rec.Value, Tags: rec.Tags})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ok, err := s.rdb.SetNX(ctx, recordKey(s.profileID, rec.Type, rec.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return storage.ErrDuplicate
	}
	if err := s.rdb.SAdd(ctx, indexKey(s.profileID, rec.Type), rec.ID).Err(); err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	return nil
}

func (s *store) GetRecord(ctx context.Context, recType, id string) (*storage.Record, error) {
	data, err := s.rdb.Get(ctx, recordKey(s.profileID, recType, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return decodeStored(recType, id, data)
}

func (s *store) UpdateRecord(ctx context.Context, rec storage.Record) error {
	key := recordKey(s.profileID, rec.Type, rec.ID)
	exists, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("exists failed: %w", err)
	}
	if exists == 0 {
		return storage.ErrNotFound
	}

	data, err := json.Marshal(storedRecord{Value: rec.Value, Tags: rec.Tags})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.rdb.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set record: %w", err)
	}
	return nil
}

func (s *store) DeleteRecord(ctx context.Context, recType, id string) error {
	deleted, err := s.rdb.Del(ctx, recordKey(s.profileID, recType, id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if err := s.rdb.SRem(ctx, indexKey(s.profileID, recType), id).Err(); err != nil {
		return fmt.Errorf("failed to unindex record: %w", err)
	}
	if deleted == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *store) FindAllRecords(
	ctx context.Context,
	recType string,
	tagQuery map[string]string,
) ([]*storage.Record, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey(s.profileID, recType)).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	var out []*storage.Record
	for _, id := range ids {
		data, err := s.rdb.Get(ctx, recordKey(s.profileID, recType, id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Value gone but id still indexed, clean it up.
			s.rdb.SRem(ctx, indexKey(s.profileID, recType), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get record %s: %w", id, err)
		}
		rec, err := decodeStored(recType, id, data)
		if err != nil {
			return nil, err
		}
		if storage.MatchTags(rec.Tags, tagQuery) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func decodeStored(recType, id string, data []byte) (*storage.Record, error) {
	var sr storedRecord
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
	}
	tags := sr.Tags
	if tags == nil {
		tags = map[string]string{}
	}
	return &storage.Record{Type: recType, ID: id, Value: sr.Value, Tags: tags}, nil
}

// Lease is a SETNX-based advisory lock used to keep concurrent replicas
// from sweeping the same tenant's recovery at the same time.
type Lease struct {
	rdb *redis.Client
}

func NewLease(client *Client) *Lease {
	return &Lease{rdb: client.rdb}
}

func leaseKey(profileID string) string {
	return fmt.Sprintf("recovery_lease:%s", profileID)
}

// Acquire attempts to take the lease, false when another replica holds it.
func (l *Lease) Acquire(ctx context.Context, profileID string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, leaseKey(profileID), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release drops the lease.
func (l *Lease) Release(ctx context.Context, profileID string) error {
	return l.rdb.Del(ctx, leaseKey(profileID)).Err()
}
