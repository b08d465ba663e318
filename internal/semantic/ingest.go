package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kalambet/engram/internal/storage"
	"github.com/kalambet/engram/internal/vecindex"
)

// AddThought embeds a thought and runs the two-phase write:
//
//  1. One metadata transaction inserts the embedding row (active, with the
//     full vector bytes) and the link row (pending), yielding a fresh id64.
//     That commit is the durability boundary.
//  2. The vector is written into the vector index under id64.
//  3. The link row is flipped to complete.
//
// A failure after step 1 returns the underlying error together with the
// already-allocated id64: the thought is durable but temporarily
// unsearchable, and its pending link row is the signal the repair pass
// acts on. Only an error with id64 == 0 means nothing was stored.
func (s *Service) AddThought(ctx context.Context, t storage.Thought, indexID string) (int64, error) {
	// Validate input before paying for an embedding round-trip.
	if strings.TrimSpace(t.Body) == "" {
		return 0, fmt.Errorf("thought body must be non-empty")
	}
	if _, err := s.store.GetIndex(ctx, indexID); err != nil {
		return 0, err
	}

	vec, err := s.embedder.Embed(ctx, t.Body)
	if err != nil {
		return 0, err
	}

	id64, err := s.store.InsertThought(ctx, t, vecindex.EncodeVector(vec), s.embedder.ModelName(), indexID)
	if err != nil {
		return 0, err
	}

	release, err := s.guard.acquire(ctx)
	if err != nil {
		return id64, err
	}
	defer release()

	if err := s.index.Write([][]float32{vec}, []int64{id64}); err != nil {
		return id64, fmt.Errorf("writing vector for id64 %d: %w", id64, err)
	}
	if err := s.store.CompleteLink(ctx, id64); err != nil {
		return id64, err
	}
	return id64, nil
}

// Reconcile repairs the aftermath of crashes between the metadata commit
// and the vector-index write: every pending link row is replayed into the
// vector index from its stored vector bytes and marked complete. The pass
// is idempotent; an id64 already present in the index is only re-marked.
// Returns the number of links repaired.
func (s *Service) Reconcile(ctx context.Context) (int, error) {
	pending, err := s.store.PendingLinks(ctx)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	release, err := s.guard.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	repaired := 0
	for _, link := range pending {
		vec, err := vecindex.DecodeVector(link.Embedding)
		if err != nil {
			s.logger.Warn("pending link has malformed vector bytes, skipping",
				"id64", link.ID64, "embedding_id", link.EmbeddingID, "error", err)
			continue
		}
		if len(vec) != s.index.Dimensions() {
			s.logger.Warn("pending link vector width does not match index, skipping",
				"id64", link.ID64, "model", link.ModelName,
				"got", len(vec), "want", s.index.Dimensions())
			continue
		}

		if !s.index.Contains(link.ID64) {
			if err := s.index.Write([][]float32{vec}, []int64{link.ID64}); err != nil {
				return repaired, fmt.Errorf("replaying vector for id64 %d: %w", link.ID64, err)
			}
		}
		if err := s.store.CompleteLink(ctx, link.ID64); err != nil {
			return repaired, err
		}
		repaired++
	}

	if repaired > 0 {
		s.logger.Info("reconciled pending links", "repaired", repaired, "scanned", len(pending))
	}
	return repaired, nil
}
