// Package answer implements the ask path: recall the most relevant
// thoughts for a question and have a local chat model answer from them.
package answer

import (
	"context"
	"fmt"

	"github.com/kalambet/engram/internal/ollama"
	"github.com/kalambet/engram/internal/semantic"
)

const defaultTopK = 5

// Searcher runs a semantic query over one index.
type Searcher interface {
	Query(ctx context.Context, query, indexID string, k int) ([]semantic.SearchHit, error)
}

// Chatter sends a chat completion to a local model.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message) (string, error)
}

// Answer is the result of an ask call: the model's reply plus the hits it
// was shown, so callers can cite sources.
type Answer struct {
	Text string
	Hits []semantic.SearchHit
}

// Answerer wires retrieval and chat together.
type Answerer struct {
	search Searcher
	chat   Chatter
	model  string
	topK   int
	prompt *Prompt
}

// New creates an Answerer. If topK <= 0, it defaults to 5.
func New(search Searcher, chat Chatter, model string, topK, maxContextTokens int) *Answerer {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Answerer{
		search: search,
		chat:   chat,
		model:  model,
		topK:   topK,
		prompt: NewPrompt(maxContextTokens),
	}
}

// Ask recalls up to topK thoughts for the question and answers from them.
// With no recalled thoughts the model is still asked, without a context
// message, so the caller gets an honest "I don't know" style reply rather
// than an error.
func (a *Answerer) Ask(ctx context.Context, question, indexID string) (Answer, error) {
	hits, err := a.search.Query(ctx, question, indexID, a.topK)
	if err != nil {
		return Answer{}, fmt.Errorf("recalling thoughts: %w", err)
	}

	messages := make([]ollama.Message, 0, 2)
	if system := a.prompt.Build(hits); system != "" {
		messages = append(messages, ollama.Message{Role: "system", Content: system})
	}
	messages = append(messages, ollama.Message{Role: "user", Content: question})

	text, err := a.chat.Chat(ctx, a.model, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("chat completion: %w", err)
	}
	return Answer{Text: text, Hits: hits}, nil
}
