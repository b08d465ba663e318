// Package embedding wraps a local model client into the embedding
// collaborator used by ingestion and query: text in, fixed-width float32
// vector out, tied to one model name.
package embedding

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// EmbedClient generates embeddings for text with a named model.
// *ollama.Client satisfies this.
type EmbedClient interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder binds an EmbedClient to a single model. Vectors produced under
// different model names are never comparable; keeping the model name here
// lets storage record provenance for every vector.
type Embedder struct {
	client EmbedClient
	model  string

	mu  sync.Mutex
	dim int // 0 until probed
}

// New creates an Embedder using the given client and model name.
func New(client EmbedClient, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// ModelName returns the model this embedder is bound to.
func (e *Embedder) ModelName() string {
	return e.model
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	e.recordDim(len(vec))
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the model server.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.client.Embed(gCtx, e.model, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.recordDim(len(results[0]))
	return results, nil
}

// Dimensions returns the vector width this model produces, probing the
// model with a constant input on first call and caching the answer.
func (e *Embedder) Dimensions(ctx context.Context) (int, error) {
	e.mu.Lock()
	dim := e.dim
	e.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	vec, err := e.client.Embed(ctx, e.model, "dimensionality probe")
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimensions: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("model %s produced an empty vector", e.model)
	}
	e.recordDim(len(vec))
	return len(vec), nil
}

func (e *Embedder) recordDim(dim int) {
	if dim == 0 {
		return
	}
	e.mu.Lock()
	if e.dim == 0 {
		e.dim = dim
	}
	e.mu.Unlock()
}
