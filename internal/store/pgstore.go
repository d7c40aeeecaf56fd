package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PGStore keeps the document as a single jsonb row in Postgres, for
// deployments that already run a database and want the state off the local
// disk. The whole-document contract is unchanged: every save replaces the
// row.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger

	mu sync.Mutex
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS counting_state (
    id         integer PRIMARY KEY CHECK (id = 1),
    doc        jsonb NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT now()
)`

// NewPGStore connects to Postgres and ensures the state table exists.
func NewPGStore(ctx context.Context, dsn string, logger *zap.Logger) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

// Load reads the document row. A missing row or an undecodable document
// yields an empty document, matching the file backend's behavior.
func (s *PGStore) Load(ctx context.Context) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM counting_state WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		s.logger.Warn("stored document corrupt, starting empty", zap.Error(err))
		return NewDocument(), nil
	}

	s.logger.Info("state loaded from postgres",
		zap.Int("guilds", len(doc.Stats.Guilds())),
		zap.Int("active_games", len(doc.Games)),
	)
	return doc, nil
}

// Save upserts the document row.
func (s *PGStore) Save(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO counting_state (id, doc, updated_at) VALUES (1, $1, now())
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		data,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}
