package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/feedtray/feedtray/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "feedtray.db")
	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return NewStore(db)
}

func mustAddSource(t *testing.T, s *Store, title, feedURL string) Source {
	t.Helper()
	src := model.NewSource(title, feedURL, "")
	if err := s.AddSource(context.Background(), src); err != nil {
		t.Fatalf("add source: %v", err)
	}
	return src
}

func strPtr(v string) *string {
	return &v
}
