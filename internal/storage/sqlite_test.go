package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/wortnest/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage(t *testing.T) {
	runStorageSuite(t, newTestSQLite(t))
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	item := &models.Item{Type: models.TypeWord, Content: "Haus", Tags: []string{"Wohnen"}, Embedding: []byte{1, 2}}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	_ = store.Close()

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "Haus" || len(got.Embedding) != 2 || got.Tags[0] != "Wohnen" {
		t.Errorf("got %+v", got)
	}
}

func TestSQLiteStorage_EmptyLists(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()
	item := &models.Item{Type: models.TypeWord, Content: "Tür"}
	if err := store.CreateItem(ctx, item); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetItem(ctx, item.ID)
	if got.Tags == nil || len(got.Tags) != 0 || len(got.Lemma) != 0 {
		t.Errorf("got tags=%#v lemma=%#v", got.Tags, got.Lemma)
	}
	if got.HasEmbedding() {
		t.Error("new item should have no embedding")
	}
}
