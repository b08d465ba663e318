package answer

import (
	"fmt"
	"strings"

	"github.com/kalambet/engram/internal/semantic"
)

const defaultMaxContextTokens = 4000

const systemPreamble = "You are a recall assistant over the user's stored thoughts. " +
	"Answer the question using only the thoughts below. " +
	"If the thoughts do not contain the answer, say you don't know."

// Prompt assembles the system message for an ask call from ranked search
// hits, keeping the injected context under a token budget.
type Prompt struct {
	MaxContextTokens int
}

// NewPrompt creates a Prompt with the given token budget for injected
// context. If maxContextTokens <= 0, the default (4000) is used.
func NewPrompt(maxContextTokens int) *Prompt {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Prompt{MaxContextTokens: maxContextTokens}
}

// Build renders the system message. Hits arrive already sorted by rank,
// best first; when the budget runs short, later (lower-scoring) hits are
// dropped first. Returns "" when no hit fits.
func (p *Prompt) Build(hits []semantic.SearchHit) string {
	var sb strings.Builder
	sb.WriteString(systemPreamble)

	header := "\n\n[Recalled Thoughts]\n"
	remaining := p.MaxContextTokens - EstimateTokens(sb.String()) - EstimateTokens(header)

	var entries []string
	for _, hit := range hits {
		entry := formatHit(hit)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		entries = append(entries, entry)
		remaining -= tokens
	}
	if len(entries) == 0 {
		return ""
	}

	sb.WriteString(header)
	for _, entry := range entries {
		sb.WriteString(entry)
	}
	return sb.String()
}

func formatHit(hit semantic.SearchHit) string {
	var tags string
	if len(hit.Record.Tags) > 0 {
		tags = ", tags: " + strings.Join(hit.Record.Tags, " ")
	}
	return fmt.Sprintf("(score %.2f%s)\n%s\n\n", hit.Score, tags, hit.Record.Body)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
