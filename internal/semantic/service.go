// Package semantic coordinates the two stores behind the thought API: the
// SQLite metadata store (authoritative for content, tags, and lifecycle)
// and the in-memory vector index (authoritative for similarity ranking).
// The two cannot be updated in one atomic transaction; the write protocol
// here makes the metadata commit the sole durability boundary and treats
// the vector index as a rebuildable cache keyed by id64.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/vecindex"
)

const defaultGuardTimeout = 5 * time.Second

// Embedder converts text into a fixed-width vector under one model name.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Service owns the dual-store ingestion and query protocols. The vector
// index is not safe for concurrent mutation, so every index access runs
// under a single-holder guard acquired with a deadline.
type Service struct {
	store    *storage.Store
	embedder Embedder
	index    *vecindex.Flat
	guard    *indexGuard
	snapshot string
	logger   *slog.Logger
}

// New creates a Service over an opened store and a loaded vector index.
// snapshotPath is where Flush persists the index; pass "" to disable
// persistence (tests).
func New(store *storage.Store, embedder Embedder, index *vecindex.Flat, snapshotPath string) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		index:    index,
		guard:    newIndexGuard(defaultGuardTimeout),
		snapshot: snapshotPath,
		logger:   slog.Default(),
	}
}

// CreateIndex adds a catalog entry. The algorithm label is advisory; every
// index is served by the same flat cosine implementation.
func (s *Service) CreateIndex(ctx context.Context, name, algorithm string) (storage.Index, error) {
	return s.store.CreateIndex(ctx, name, algorithm)
}

// ListIndexes returns the catalog, newest first.
func (s *Service) ListIndexes(ctx context.Context) ([]storage.Index, error) {
	return s.store.ListIndexes(ctx)
}

// ResolveIndex looks an index up by name.
func (s *Service) ResolveIndex(ctx context.Context, name string) (storage.Index, error) {
	return s.store.GetIndexByName(ctx, name)
}

// Archive soft-deletes a thought. Its vectors stay in the vector index;
// the query join filters archived rows out of every index's results.
func (s *Service) Archive(ctx context.Context, embeddingID string) error {
	return s.store.ArchiveThought(ctx, embeddingID)
}

// CountThoughts returns the number of active thoughts in an index.
func (s *Service) CountThoughts(ctx context.Context, indexID string) (int, error) {
	return s.store.CountThoughts(ctx, indexID)
}

// Flush persists the vector index snapshot. Anything written since the
// previous Flush was recoverable only via the metadata store's vector
// bytes; after Flush it is durable in the snapshot too.
func (s *Service) Flush(ctx context.Context) error {
	if s.snapshot == "" {
		return nil
	}
	release, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.index.SaveFile(s.snapshot); err != nil {
		return fmt.Errorf("persisting vector index: %w", err)
	}
	s.logger.Debug("vector index persisted", "path", s.snapshot, "vectors", s.index.Len())
	return nil
}
