package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gitunderstand/gitunderstand-go/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "gitunderstand.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func TestSQLiteStore_HistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	messages := []storage.StoredMessage{
		{Role: "user", Content: "What does this repo do?"},
		{Role: "assistant", Content: "It ingests git repositories."},
		{Role: "user", Content: "Where is the entry point?"},
	}

	if err := store.SaveHistory(ctx, "digest-1", messages); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}

	got, err := store.History(ctx, "digest-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != len(messages) {
		t.Fatalf("History() returned %d messages, want %d", len(got), len(messages))
	}
	for i := range messages {
		if got[i] != messages[i] {
			t.Errorf("message %d = %+v, want %+v", i, got[i], messages[i])
		}
	}
}

func TestSQLiteStore_SaveHistoryReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveHistory(ctx, "digest-1", []storage.StoredMessage{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
	}); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}
	if err := store.SaveHistory(ctx, "digest-1", []storage.StoredMessage{
		{Role: "user", Content: "three"},
	}); err != nil {
		t.Fatalf("SaveHistory() error = %v", err)
	}

	got, err := store.History(ctx, "digest-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "three" {
		t.Errorf("History() = %+v", got)
	}
}

func TestSQLiteStore_HistoryIsolatedPerDigest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.SaveHistory(ctx, "digest-1", []storage.StoredMessage{{Role: "user", Content: "a"}})
	_ = store.SaveHistory(ctx, "digest-2", []storage.StoredMessage{{Role: "user", Content: "b"}})

	got, err := store.History(ctx, "digest-2")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "b" {
		t.Errorf("History(digest-2) = %+v", got)
	}

	if err := store.ClearHistory(ctx, "digest-1"); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	got, _ = store.History(ctx, "digest-2")
	if len(got) != 1 {
		t.Error("clearing one digest affected another")
	}
}

func TestSQLiteStore_DigestCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := &storage.DigestRecord{
		ID:           "6b86b273",
		RepoURL:      "https://github.com/octocat/hello-world",
		ShortRepoURL: "octocat/hello-world",
		Summary:      "Estimated tokens: 1.2k",
		DigestURL:    "/api/download/file/6b86b273",
	}
	if err := store.SaveDigest(ctx, rec); err != nil {
		t.Fatalf("SaveDigest() error = %v", err)
	}

	got, err := store.Digest(ctx, "6b86b273")
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	if got.RepoURL != rec.RepoURL || got.ShortRepoURL != rec.ShortRepoURL {
		t.Errorf("Digest() = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not persisted")
	}

	// Upsert keeps the row unique
	rec.Summary = "Estimated tokens: 2.4k"
	if err := store.SaveDigest(ctx, rec); err != nil {
		t.Fatalf("SaveDigest() upsert error = %v", err)
	}
	got, _ = store.Digest(ctx, "6b86b273")
	if got.Summary != "Estimated tokens: 2.4k" {
		t.Errorf("Summary after upsert = %q", got.Summary)
	}

	if _, err := store.Digest(ctx, "missing"); err == nil {
		t.Error("Digest(missing) should error")
	}
}

func TestSQLiteStore_ListDigestsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for i, id := range []string{"first", "second", "third"} {
		rec := &storage.DigestRecord{
			ID:        id,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveDigest(ctx, rec); err != nil {
			t.Fatalf("SaveDigest(%s) error = %v", id, err)
		}
	}

	got, err := store.ListDigests(ctx, 2)
	if err != nil {
		t.Fatalf("ListDigests() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListDigests(2) returned %d records", len(got))
	}
	if got[0].ID != "third" || got[1].ID != "second" {
		t.Errorf("order = %q, %q", got[0].ID, got[1].ID)
	}
}

func TestSQLiteStore_DeleteDigestDropsHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_ = store.SaveDigest(ctx, &storage.DigestRecord{ID: "digest-1", RepoURL: "r", ShortRepoURL: "s", DigestURL: "d"})
	_ = store.SaveHistory(ctx, "digest-1", []storage.StoredMessage{{Role: "user", Content: "hi"}})

	if err := store.DeleteDigest(ctx, "digest-1"); err != nil {
		t.Fatalf("DeleteDigest() error = %v", err)
	}
	if _, err := store.Digest(ctx, "digest-1"); err == nil {
		t.Error("Digest() after delete should error")
	}
	got, err := store.History(ctx, "digest-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("history survived digest deletion: %+v", got)
	}

	if err := store.DeleteDigest(ctx, "digest-1"); err == nil {
		t.Error("DeleteDigest() on missing digest should error")
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gitunderstand.db")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = store.SaveHistory(ctx, "digest-1", []storage.StoredMessage{{Role: "user", Content: "persisted"}})
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New() reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.History(ctx, "digest-1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "persisted" {
		t.Errorf("History() after reopen = %+v", got)
	}
}
