package storage

import "time"

// ThoughtStatus is the lifecycle state of a stored thought.
type ThoughtStatus string

const (
	ThoughtActive   ThoughtStatus = "active"
	ThoughtArchived ThoughtStatus = "archived"
)

// LinkStatus is the replication state of an (index, embedding) membership.
// A link is pending from creation until the vector index acknowledges the
// write for its id64; a row stuck in pending marks a crash between the
// metadata commit and the vector-index write.
type LinkStatus string

const (
	LinkPending  LinkStatus = "pending"
	LinkComplete LinkStatus = "complete"
)

// Thought is the ephemeral ingestion input: free text plus tags. It is
// consumed once by AddThought and never stored in this form.
type Thought struct {
	Body string
	Tags []string
}

// Index is a catalog entry for one logical semantic index. Algorithm is an
// advisory label only; every index is served by the same flat
// inner-product implementation.
type Index struct {
	IndexID   string
	IndexName string
	Algorithm string
	CreatedAt time.Time
}

// ThoughtRecord is a persisted thought joined with its link row for one
// index membership.
type ThoughtRecord struct {
	EmbeddingID string
	ID64        int64
	Body        string
	Tags        []string
	Status      ThoughtStatus
	CreatedAt   time.Time
}

// PendingLink is a link row that never reached complete, together with the
// stored vector bytes needed to replay the write into the vector index.
type PendingLink struct {
	ID64        int64
	IndexID     string
	EmbeddingID string
	ModelName   string
	Embedding   []byte
}
