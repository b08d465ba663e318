package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateIndex allocates a fresh index_id and inserts a catalog row.
// Returns ErrDuplicateIndexName if name is already taken.
func (s *Store) CreateIndex(ctx context.Context, name, algorithm string) (Index, error) {
	idx := Index{
		IndexID:   uuid.New().String(),
		IndexName: name,
		Algorithm: algorithm,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexes (index_id, index_name, algorithm, created_at)
		VALUES (?, ?, ?, ?)`,
		idx.IndexID, idx.IndexName, idx.Algorithm, idx.CreatedAt.Format(time.RFC3339Nano),
	)
	if isUniqueViolation(err) {
		return Index{}, fmt.Errorf("index %q: %w", name, ErrDuplicateIndexName)
	}
	if err != nil {
		return Index{}, fmt.Errorf("inserting index row: %w", err)
	}
	return idx, nil
}

// GetIndex fetches a catalog entry by index_id.
// Returns ErrUnknownIndex if no such index exists.
func (s *Store) GetIndex(ctx context.Context, indexID string) (Index, error) {
	return s.getIndex(ctx, "index_id", indexID)
}

// GetIndexByName fetches a catalog entry by its human-facing name.
// Returns ErrUnknownIndex if no such index exists.
func (s *Store) GetIndexByName(ctx context.Context, name string) (Index, error) {
	return s.getIndex(ctx, "index_name", name)
}

func (s *Store) getIndex(ctx context.Context, column, value string) (Index, error) {
	var idx Index
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT index_id, index_name, algorithm, created_at
		FROM indexes WHERE `+column+` = ?`, value,
	).Scan(&idx.IndexID, &idx.IndexName, &idx.Algorithm, &createdAt)
	if err == sql.ErrNoRows {
		return Index{}, fmt.Errorf("index %q: %w", value, ErrUnknownIndex)
	}
	if err != nil {
		return Index{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Index{}, fmt.Errorf("parsing created_at: %w", err)
	}
	idx.CreatedAt = t
	return idx, nil
}

// ListIndexes returns all catalog entries, newest first.
func (s *Store) ListIndexes(ctx context.Context) ([]Index, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT index_id, index_name, algorithm, created_at
		FROM indexes ORDER BY created_at DESC, index_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Index
	for rows.Next() {
		var idx Index
		var createdAt string
		if err := rows.Scan(&idx.IndexID, &idx.IndexName, &idx.Algorithm, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		idx.CreatedAt = t
		results = append(results, idx)
	}
	return results, rows.Err()
}

// DeleteIndex removes a catalog entry. Link rows cascade away; the
// embedding rows they referenced remain, owned by other indexes or
// orphaned-but-retained.
func (s *Store) DeleteIndex(ctx context.Context, indexID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM indexes WHERE index_id = ?", indexID)
	if err != nil {
		return fmt.Errorf("deleting index %s: %w", indexID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("index %q: %w", indexID, ErrUnknownIndex)
	}
	return nil
}
