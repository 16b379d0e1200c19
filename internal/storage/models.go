package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is a chat thread between a reader and the assistant.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn in a conversation. Sources holds the JSON-encoded
// source list attached to assistant turns; QueryType records the classified
// question type of the user turn that produced an assistant turn.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Sources        string
	QueryType      string
	CreatedAt      time.Time
}

// User is a registered reader.
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// ChapterProgress tracks a reader's completion state for one chapter.
type ChapterProgress struct {
	UserID    string
	ChapterID string
	Completed bool
	UpdatedAt time.Time
}

// Document records an ingested source file and how many chunks it produced.
type Document struct {
	FilePath   string
	Title      string
	Week       string
	ChunkCount int
	IngestedAt time.Time
}
