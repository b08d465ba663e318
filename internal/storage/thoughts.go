package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InsertThought persists a thought and links it to the target index inside
// a single transaction: one embeddings row (status active, raw vector
// bytes) and one index_embeddings row (status pending), returning the
// generated id64.
//
// The commit of this transaction is the durability boundary of ingestion.
// Once it returns, the thought's content and vector bytes survive any
// downstream vector-index failure; the pending link row is the repair
// signal for such failures.
func (s *Store) InsertThought(ctx context.Context, t Thought, embedding []byte, modelName, indexID string) (int64, error) {
	if strings.TrimSpace(t.Body) == "" {
		return 0, fmt.Errorf("thought body must be non-empty")
	}

	tags, err := json.Marshal(normalizeTags(t.Tags))
	if err != nil {
		return 0, fmt.Errorf("marshalling tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning insert transaction: %w", err)
	}

	// Verify the target index exists up front so the caller gets
	// ErrUnknownIndex rather than a bare FK violation.
	var one int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM indexes WHERE index_id = ?", indexID).Scan(&one)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return 0, fmt.Errorf("index %q: %w", indexID, ErrUnknownIndex)
	}
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("checking index: %w", err)
	}

	embeddingID := uuid.New().String()
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO embeddings (embedding_id, created_at, body, tags, model_name, status, embedding)
		VALUES (?, ?, ?, ?, ?, 'active', ?)`,
		embeddingID, createdAt, t.Body, string(tags), modelName, embedding,
	); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting embedding row: %w", err)
	}

	var id64 int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO index_embeddings (index_id, embedding_id, status)
		VALUES (?, ?, 'pending')
		RETURNING id64`,
		indexID, embeddingID,
	).Scan(&id64); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("inserting link row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing thought insert: %w", err)
	}
	return id64, nil
}

// CompleteLink marks a link row complete after the vector index has
// acknowledged the write for its id64.
func (s *Store) CompleteLink(ctx context.Context, id64 int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE index_embeddings SET status = 'complete' WHERE id64 = ?", id64)
	if err != nil {
		return fmt.Errorf("completing link %d: %w", id64, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("link %d: %w", id64, ErrNotFound)
	}
	return nil
}

// RetrieveByID64s fetches thought records for the given id64 values, scoped
// to one index and one thought status. id64 values with no matching row are
// simply absent from the result; callers treat that as a normal join miss.
func (s *Store) RetrieveByID64s(ctx context.Context, ids []int64, indexID string, status ThoughtStatus) ([]ThoughtRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, status, indexID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `
		SELECT e.embedding_id, ie.id64, e.body, e.tags, e.status, e.created_at
		FROM index_embeddings ie
		JOIN embeddings e ON e.embedding_id = ie.embedding_id
		WHERE e.status = ? AND ie.index_id = ?
		  AND ie.id64 IN (?` + strings.Repeat(",?", len(ids)-1) + `)`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying thoughts: %w", err)
	}
	defer rows.Close()

	var results []ThoughtRecord
	for rows.Next() {
		rec, err := scanThoughtRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// PendingLinks returns every link row still in pending state, each carrying
// the stored vector bytes needed to replay the vector-index write.
func (s *Store) PendingLinks(ctx context.Context) ([]PendingLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ie.id64, ie.index_id, ie.embedding_id, e.model_name, e.embedding
		FROM index_embeddings ie
		JOIN embeddings e ON e.embedding_id = ie.embedding_id
		WHERE ie.status = 'pending'
		ORDER BY ie.id64 ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending links: %w", err)
	}
	defer rows.Close()

	var results []PendingLink
	for rows.Next() {
		var p PendingLink
		if err := rows.Scan(&p.ID64, &p.IndexID, &p.EmbeddingID, &p.ModelName, &p.Embedding); err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// ArchiveThought flips an embedding row from active to archived. The
// thought disappears from query results in every index it belongs to; its
// vectors stay physically present in the vector index and are filtered at
// join time.
func (s *Store) ArchiveThought(ctx context.Context, embeddingID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE embeddings SET status = 'archived' WHERE embedding_id = ?", embeddingID)
	if err != nil {
		return fmt.Errorf("archiving thought %s: %w", embeddingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("embedding %q: %w", embeddingID, ErrNotFound)
	}
	return nil
}

// LinkStatusOf returns the replication status of a link row.
func (s *Store) LinkStatusOf(ctx context.Context, id64 int64) (LinkStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		"SELECT status FROM index_embeddings WHERE id64 = ?", id64).Scan(&status)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("link %d: %w", id64, ErrNotFound)
	}
	if err != nil {
		return "", err
	}
	return LinkStatus(status), nil
}

// CountThoughts returns the number of active thoughts linked to an index.
func (s *Store) CountThoughts(ctx context.Context, indexID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM index_embeddings ie
		JOIN embeddings e ON e.embedding_id = ie.embedding_id
		WHERE ie.index_id = ? AND e.status = 'active'`, indexID,
	).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThoughtRecord(row rowScanner) (ThoughtRecord, error) {
	var rec ThoughtRecord
	var tags, status, createdAt string
	if err := row.Scan(&rec.EmbeddingID, &rec.ID64, &rec.Body, &tags, &status, &createdAt); err != nil {
		return ThoughtRecord{}, fmt.Errorf("scanning thought record: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return ThoughtRecord{}, fmt.Errorf("parsing tags for %s: %w", rec.EmbeddingID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return ThoughtRecord{}, fmt.Errorf("parsing created_at for %s: %w", rec.EmbeddingID, err)
	}
	rec.Status = ThoughtStatus(status)
	rec.CreatedAt = t
	return rec, nil
}

// normalizeTags trims whitespace and drops empty entries, preserving order.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
