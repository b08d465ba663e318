package answer

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/engram/internal/ollama"
	"github.com/kalambet/engram/internal/semantic"
	"github.com/kalambet/engram/internal/storage"
)

type mockSearcher struct {
	hits []semantic.SearchHit
	err  error
}

func (m *mockSearcher) Query(_ context.Context, _, _ string, _ int) ([]semantic.SearchHit, error) {
	return m.hits, m.err
}

type mockChatter struct {
	reply    string
	err      error
	messages []ollama.Message
}

func (m *mockChatter) Chat(_ context.Context, _ string, messages []ollama.Message) (string, error) {
	m.messages = messages
	return m.reply, m.err
}

func hit(body string, score float32, rank int, tags ...string) semantic.SearchHit {
	return semantic.SearchHit{
		Record: storage.ThoughtRecord{Body: body, Tags: tags},
		Score:  score,
		Rank:   rank,
	}
}

func TestAsk_InjectsRecalledThoughts(t *testing.T) {
	search := &mockSearcher{hits: []semantic.SearchHit{
		hit("buy milk", 0.97, 0, "errand"),
		hit("call the dentist", 0.41, 1),
	}}
	chat := &mockChatter{reply: "You planned to buy milk."}
	a := New(search, chat, "test-model", 0, 0)

	got, err := a.Ask(context.Background(), "what did I plan to buy?", "idx-1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got.Text != "You planned to buy milk." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(got.Hits) != 2 {
		t.Errorf("got %d hits, want 2", len(got.Hits))
	}

	if len(chat.messages) != 2 {
		t.Fatalf("sent %d messages, want system + user", len(chat.messages))
	}
	system := chat.messages[0]
	if system.Role != "system" {
		t.Errorf("first message role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "buy milk") || !strings.Contains(system.Content, "call the dentist") {
		t.Errorf("system message missing thoughts: %s", system.Content)
	}
	if !strings.Contains(system.Content, "errand") {
		t.Errorf("system message missing tags: %s", system.Content)
	}
	if chat.messages[1].Role != "user" || chat.messages[1].Content != "what did I plan to buy?" {
		t.Errorf("user message = %+v", chat.messages[1])
	}
}

func TestAsk_NoHitsStillAnswers(t *testing.T) {
	search := &mockSearcher{}
	chat := &mockChatter{reply: "I don't know."}
	a := New(search, chat, "test-model", 3, 0)

	got, err := a.Ask(context.Background(), "anything?", "idx-1")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if got.Text != "I don't know." {
		t.Errorf("Text = %q", got.Text)
	}
	if len(chat.messages) != 1 || chat.messages[0].Role != "user" {
		t.Errorf("want a lone user message, got %+v", chat.messages)
	}
}

func TestAsk_SearchErrorPropagates(t *testing.T) {
	search := &mockSearcher{err: fmt.Errorf("index offline")}
	a := New(search, &mockChatter{}, "test-model", 3, 0)

	if _, err := a.Ask(context.Background(), "q", "idx-1"); err == nil {
		t.Error("expected error from failing searcher")
	}
}

func TestAsk_ChatErrorPropagates(t *testing.T) {
	search := &mockSearcher{hits: []semantic.SearchHit{hit("note", 0.5, 0)}}
	chat := &mockChatter{err: fmt.Errorf("model unavailable")}
	a := New(search, chat, "test-model", 3, 0)

	if _, err := a.Ask(context.Background(), "q", "idx-1"); err == nil {
		t.Error("expected error from failing chatter")
	}
}

func TestPromptBuild_TokenBudget(t *testing.T) {
	p := NewPrompt(80)

	hits := make([]semantic.SearchHit, 20)
	for i := range hits {
		hits[i] = hit(strings.Repeat("x", 100), float32(20-i)/20.0, i)
	}

	system := p.Build(hits)
	if tokens := EstimateTokens(system); tokens > 80 {
		t.Errorf("system message exceeds token budget: %d tokens", tokens)
	}
}

func TestPromptBuild_LowestRankedDroppedFirst(t *testing.T) {
	// Budget fits the preamble plus one entry but not two.
	p := NewPrompt(75)
	hits := []semantic.SearchHit{
		hit(strings.Repeat("A", 80), 0.9, 0),
		hit(strings.Repeat("B", 80), 0.5, 1),
	}

	system := p.Build(hits)
	if !strings.Contains(system, strings.Repeat("A", 80)) {
		t.Error("expected top-ranked thought to be kept")
	}
	if strings.Contains(system, strings.Repeat("B", 80)) {
		t.Error("expected lower-ranked thought to be dropped")
	}
}

func TestPromptBuild_NoHits(t *testing.T) {
	if got := NewPrompt(0).Build(nil); got != "" {
		t.Errorf("Build(nil) = %q, want empty", got)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"hello world", 3},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
