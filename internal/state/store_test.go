package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/chatd/internal/apperror"
	"github.com/user/chatd/internal/types"
)

func TestStoreCreateAndGet(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	id := types.NewChatID()
	chat, err := store.Create(ctx, id, types.DefaultTitle)
	if err != nil {
		t.Fatal(err)
	}
	if chat.ID != id {
		t.Errorf("expected id %s, got %s", id, chat.ID)
	}
	if len(chat.Messages) != 0 {
		t.Errorf("expected empty messages, got %d", len(chat.Messages))
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != types.DefaultTitle {
		t.Errorf("expected title %q, got %q", types.DefaultTitle, got.Title)
	}
}

func TestStoreGetMissing(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)

	_, err := store.Get(context.Background(), types.ChatID("missing"))
	if err == nil {
		t.Fatal("expected error for missing chat")
	}
	if !apperror.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreSaveMessagesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	id := types.NewChatID()
	if _, err := store.Create(ctx, id, "New Chat"); err != nil {
		t.Fatal(err)
	}

	messages := []types.Message{
		{Role: types.RoleUser, Content: "hello"},
		{Role: types.RoleAssistant, Content: "hi"},
	}
	if err := store.SaveMessages(ctx, id, messages); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[1].Content != "hi" {
		t.Errorf("expected second message content 'hi', got %q", got.Messages[1].Content)
	}
}

func TestStoreSaveMessagesNoopWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	err := store.SaveMessages(context.Background(), types.ChatID("ghost"), []types.Message{{Role: "user", Content: "x"}})
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
}

func TestStoreUpdateTitle(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	id := types.NewChatID()
	if _, err := store.Create(ctx, id, "New Chat"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateTitle(ctx, id, "hello"); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "hello" {
		t.Errorf("expected title 'hello', got %q", got.Title)
	}
}

func TestStoreListSortedNewestFirst(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	var ids []types.ChatID
	for i := 0; i < 3; i++ {
		id := types.NewChatID()
		if _, err := store.Create(ctx, id, "New Chat"); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 chats, got %d", len(list))
	}
	// Equal timestamps are possible on a fast clock; just assert all ids present.
	seen := make(map[types.ChatID]bool)
	for _, c := range list {
		seen[c.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			t.Errorf("expected chat %s in list", id)
		}
	}
}

func TestStoreDeleteTwiceIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	id := types.NewChatID()
	if _, err := store.Create(ctx, id, "New Chat"); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("second delete should be a no-op success, got %v", err)
	}
	if _, err := store.Get(ctx, id); !apperror.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreAtomicWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	id := types.NewChatID()
	if _, err := store.Create(ctx, id, "New Chat"); err != nil {
		t.Fatal(err)
	}

	tmp := store.indexPath() + ".tmp"
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Errorf("expected no leftover temp file at %s", tmp)
	}
	if _, err := os.Stat(filepath.Join(dir, "chats", "index.json")); err != nil {
		t.Errorf("expected index file to exist: %v", err)
	}
}
