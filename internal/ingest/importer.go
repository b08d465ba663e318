package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/engram/internal/storage"
)

const defaultMaxFragmentChars = 2000

// Adder stores one thought in one index.
type Adder interface {
	AddThought(ctx context.Context, t storage.Thought, indexID string) (int64, error)
}

// Importer turns files into thoughts. Each paragraph becomes one thought;
// paragraphs longer than the fragment limit are split at word boundaries.
type Importer struct {
	service          Adder
	maxFragmentChars int
	logger           *slog.Logger
}

// NewImporter creates an Importer. If maxFragmentChars <= 0, it defaults
// to 2000.
func NewImporter(service Adder, maxFragmentChars int) *Importer {
	if maxFragmentChars <= 0 {
		maxFragmentChars = defaultMaxFragmentChars
	}
	return &Importer{
		service:          service,
		maxFragmentChars: maxFragmentChars,
		logger:           slog.Default(),
	}
}

// Result reports what an import stored.
type Result struct {
	Fragments int
	ID64s     []int64
}

// ImportFile extracts the file's text and stores every fragment as a
// thought in the given index, all tagged with tags. A fragment that fails
// mid-import stops the run; the fragments already stored stay stored, and
// the returned Result covers them.
func (im *Importer) ImportFile(ctx context.Context, path, indexID string, tags []string) (Result, error) {
	text, err := Extract(path)
	if err != nil {
		return Result{}, err
	}

	fragments := im.Split(text)
	if len(fragments) == 0 {
		return Result{}, fmt.Errorf("file %s contains no text", path)
	}

	result := Result{ID64s: make([]int64, 0, len(fragments))}
	for i, fragment := range fragments {
		id64, err := im.service.AddThought(ctx, storage.Thought{Body: fragment, Tags: tags}, indexID)
		if err != nil {
			return result, fmt.Errorf("storing fragment %d of %d: %w", i+1, len(fragments), err)
		}
		result.Fragments++
		result.ID64s = append(result.ID64s, id64)
	}

	im.logger.Info("imported file", "path", path, "fragments", result.Fragments, "index_id", indexID)
	return result, nil
}

// Split breaks text into fragments: blank lines separate paragraphs, and
// paragraphs over the fragment limit are cut at the last word boundary
// before it.
func (im *Importer) Split(text string) []string {
	var fragments []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		for len(para) > im.maxFragmentChars {
			cut := strings.LastIndexByte(para[:im.maxFragmentChars], ' ')
			if cut <= 0 {
				cut = im.maxFragmentChars
			}
			fragments = append(fragments, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		if para != "" {
			fragments = append(fragments, para)
		}
	}
	return fragments
}
