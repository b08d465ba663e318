package semantic

import (
	"context"

	"github.com/kalambet/engram/internal/storage"
)

// SearchHit is one ranked query result. Rank is the zero-based position in
// the returned list: dense and contiguous, with no gaps where join misses
// were dropped.
type SearchHit struct {
	Record storage.ThoughtRecord
	Score  float32
	Rank   int
}

// Query embeds the query text and searches the given index.
func (s *Service) Query(ctx context.Context, query, indexID string, k int) ([]SearchHit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return s.QueryVector(ctx, vec, indexID, k)
}

// QueryVector searches the given index with an already-computed vector and
// re-joins the ranked id64 hits with their metadata rows.
//
// An id64 returned by the vector index may legitimately have no matching
// row: its thought was archived after indexing, its link never reached
// complete in the relational view, or it belongs to a different index.
// Such hits are skipped, not errors; surviving hits keep their relative
// order and are re-ranked densely from zero.
func (s *Service) QueryVector(ctx context.Context, vec []float32, indexID string, k int) ([]SearchHit, error) {
	if _, err := s.store.GetIndex(ctx, indexID); err != nil {
		return nil, err
	}

	release, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	matches, err := s.index.Query(vec, k)
	release()
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}

	records, err := s.store.RetrieveByID64s(ctx, ids, indexID, storage.ThoughtActive)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]storage.ThoughtRecord, len(records))
	for _, rec := range records {
		byID[rec.ID64] = rec
	}

	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		rec, ok := byID[m.ID]
		if !ok {
			continue
		}
		hits = append(hits, SearchHit{Record: rec, Score: m.Score, Rank: len(hits)})
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hits, nil
}
