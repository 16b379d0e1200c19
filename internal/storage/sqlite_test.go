package storage

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("listing migrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("expected migration 1 applied, got %v", versions)
	}
}

func TestCreateConversation_MintsID(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateConversation("", "", "First question")
	if err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	c, err := s.GetConversation(id)
	if err != nil {
		t.Fatalf("getting conversation: %v", err)
	}
	if c.Title != "First question" {
		t.Errorf("Title = %q", c.Title)
	}
}

func TestCreateConversation_HonorsSuppliedID(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateConversation("client-chosen-id", "user-1", "t")
	if err != nil {
		t.Fatalf("creating conversation: %v", err)
	}
	if id != "client-chosen-id" {
		t.Errorf("id = %q, want client-chosen-id", id)
	}
	if _, err := s.GetConversation("client-chosen-id"); err != nil {
		t.Errorf("getting conversation: %v", err)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetConversation("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMessages_OrderedByInsertion(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateConversation("", "", "")

	turns := []struct{ role, content string }{
		{"user", "What is ZMP?"},
		{"assistant", "The zero moment point..."},
		{"user", "Give me an example."},
		{"assistant", "Consider a walking robot..."},
	}
	for _, turn := range turns {
		if _, err := s.AddMessage(Message{ConversationID: id, Role: turn.role, Content: turn.content}); err != nil {
			t.Fatalf("adding message: %v", err)
		}
	}

	msgs, err := s.ListMessages(id)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	for i, turn := range turns {
		if msgs[i].Role != turn.role || msgs[i].Content != turn.content {
			t.Errorf("message %d = %s %q, want %s %q", i, msgs[i].Role, msgs[i].Content, turn.role, turn.content)
		}
	}
}

func TestAddMessage_StoresSourcesAndQueryType(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateConversation("", "", "")

	sources := `[{"chapter":"Locomotion","section":"Weeks 3-4"}]`
	m, err := s.AddMessage(Message{
		ConversationID: id,
		Role:           "assistant",
		Content:        "answer",
		Sources:        sources,
		QueryType:      "conceptual",
	})
	if err != nil {
		t.Fatalf("adding message: %v", err)
	}
	if m.ID == "" {
		t.Error("expected minted message id")
	}

	msgs, err := s.ListMessages(id)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if msgs[0].Sources != sources {
		t.Errorf("Sources = %q", msgs[0].Sources)
	}
	if msgs[0].QueryType != "conceptual" {
		t.Errorf("QueryType = %q", msgs[0].QueryType)
	}
}

func TestAddMessage_BumpsConversationUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateConversation("", "", "")
	before, _ := s.GetConversation(id)

	if _, err := s.AddMessage(Message{ConversationID: id, Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("adding message: %v", err)
	}

	after, _ := s.GetConversation(id)
	if after.UpdatedAt.Before(before.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v -> %v", before.UpdatedAt, after.UpdatedAt)
	}
}

func TestClearConversation(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateConversation("", "", "title")
	s.AddMessage(Message{ConversationID: id, Role: "user", Content: "hi"})
	s.AddMessage(Message{ConversationID: id, Role: "assistant", Content: "hello"})

	if err := s.ClearConversation(id); err != nil {
		t.Fatalf("clearing conversation: %v", err)
	}

	msgs, err := s.ListMessages(id)
	if err != nil {
		t.Fatalf("listing messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after clear, got %d", len(msgs))
	}

	// The conversation record itself survives.
	if _, err := s.GetConversation(id); err != nil {
		t.Errorf("conversation should still exist: %v", err)
	}
}

func TestClearConversation_NotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.ClearConversation("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateConversationTitle(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.CreateConversation("", "", "old")

	if err := s.UpdateConversationTitle(id, "new"); err != nil {
		t.Fatalf("updating title: %v", err)
	}
	c, _ := s.GetConversation(id)
	if c.Title != "new" {
		t.Errorf("Title = %q", c.Title)
	}

	if err := s.UpdateConversationTitle("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUsersAndProgress(t *testing.T) {
	s := openTestStore(t)

	u, err := s.CreateUser("reader@example.com", "Reader")
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}

	got, err := s.GetUserByEmail("reader@example.com")
	if err != nil {
		t.Fatalf("getting user: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("ID = %q, want %q", got.ID, u.ID)
	}

	if _, err := s.GetUserByEmail("nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.SetChapterProgress(u.ID, "weeks-1-2", true); err != nil {
		t.Fatalf("setting progress: %v", err)
	}
	if err := s.SetChapterProgress(u.ID, "weeks-1-2", false); err != nil {
		t.Fatalf("updating progress: %v", err)
	}

	progress, err := s.ListChapterProgress(u.ID)
	if err != nil {
		t.Fatalf("listing progress: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("expected 1 progress record, got %d", len(progress))
	}
	if progress[0].Completed {
		t.Error("expected completed=false after update")
	}
}

func TestSaveDocument_Replaces(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveDocument(Document{FilePath: "docs/a.md", Title: "A", Week: "Weeks 1-2", ChunkCount: 3}); err != nil {
		t.Fatalf("saving document: %v", err)
	}
	if err := s.SaveDocument(Document{FilePath: "docs/a.md", Title: "A", Week: "Weeks 1-2", ChunkCount: 5}); err != nil {
		t.Fatalf("re-saving document: %v", err)
	}

	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("listing documents: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
	if docs[0].ChunkCount != 5 {
		t.Errorf("ChunkCount = %d, want 5", docs[0].ChunkCount)
	}
}
