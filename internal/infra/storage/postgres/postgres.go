// Package postgres implements the storage engine contract on PostgreSQL.
// All profiles share one records table partitioned by a profile_id column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx via database/sql
	"github.com/jmoiron/sqlx"

	"github.com/openwallet-foundation/agent-recovery/internal/infra/storage"
)

// Config holds PostgreSQL connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// DB wraps the PostgreSQL connection pool.
type DB struct {
	*sqlx.DB
}

// NewDB opens and pings a connection pool.
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	db, err := sqlx.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// Health checks if the database is reachable.
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Provider opens per-profile stores over the shared pool.
type Provider struct {
	db *DB
}

func NewProvider(db *DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) OpenStore(ctx context.Context, profileID string) (storage.Store, error) {
	return &store{db: p.db, profileID: profileID}, nil
}

func (p *Provider) Close() error {
	return p.db.Close()
}

type store struct {
	db        *DB
	profileID string
}

type recordRow struct {
	RecordID string `db:"record_id"`
	Value    []byte `db:"value"`
	Tags     []byte `db:"tags"`
}

func (s *store) AddRecord(ctx context.Context, rec storage.Record) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `
		INSERT INTO records (profile_id, record_type, record_id, value, tags)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = s.db.ExecContext(ctx, query, s.profileID, rec.Type, rec.ID, rec.Value, tags)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("failed to add record: %w", err)
	}
	return nil
}

func (s *store) GetRecord(ctx context.Context, recType, id string) (*storage.Record, error) {
	query := `
		SELECT record_id, value, tags FROM records
		WHERE profile_id = $1 AND record_type = $2 AND record_id = $3
	`
	var row recordRow
	err := s.db.GetContext(ctx, &row, query, s.profileID, recType, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rowToRecord(recType, row)
}

func (s *store) UpdateRecord(ctx context.Context, rec storage.Record) error {
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	query := `
		UPDATE records SET value = $4, tags = $5
		WHERE profile_id = $1 AND record_type = $2 AND record_id = $3
	`
	res, err := s.db.ExecContext(ctx, query, s.profileID, rec.Type, rec.ID, rec.Value, tags)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return requireRow(res)
}

func (s *store) DeleteRecord(ctx context.Context, recType, id string) error {
	query := `
		DELETE FROM records
		WHERE profile_id = $1 AND record_type = $2 AND record_id = $3
	`
	res, err := s.db.ExecContext(ctx, query, s.profileID, recType, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return requireRow(res)
}

func (s *store) FindAllRecords(
	ctx context.Context,
	recType string,
	tagQuery map[string]string,
) ([]*storage.Record, error) {
	if tagQuery == nil {
		tagQuery = map[string]string{}
	}
	filter, err := json.Marshal(tagQuery)
	if err != nil {
		return nil, fmt.Errorf("marshal tag query: %w", err)
	}
	query := `
		SELECT record_id, value, tags FROM records
		WHERE profile_id = $1 AND record_type = $2 AND tags @> $3::jsonb
	`
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, s.profileID, recType, filter); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}

	out := make([]*storage.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := rowToRecord(recType, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func rowToRecord(recType string, row recordRow) (*storage.Record, error) {
	tags := map[string]string{}
	if len(row.Tags) > 0 {
		if err := json.Unmarshal(row.Tags, &tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags for record %s: %w", row.RecordID, err)
		}
	}
	return &storage.Record{
		Type:  recType,
		ID:    row.RecordID,
		Value: row.Value,
		Tags:  tags,
	}, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
