package chronos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	backend, err := NewSQLiteBackend(SQLiteBackendConfig{
		Path: filepath.Join(t.TempDir(), "snapshots.db"),
	})
	if err != nil {
		t.Fatalf("NewSQLiteBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestSQLiteBackendReadWrite(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	if _, err := backend.Read(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing = %v, want os.ErrNotExist", err)
	}

	if err := backend.Write(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Upsert overwrites.
	if err := backend.Write(ctx, "k", []byte("v2")); err != nil {
		t.Fatalf("second Write: %v", err)
	}
	got, err := backend.Read(ctx, "k")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "v2" {
		t.Errorf("Read = %q, want v2", got)
	}

	ok, err := backend.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := backend.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := backend.Exists(ctx, "k"); ok {
		t.Error("key still exists after delete")
	}
}

func TestSQLiteBackendList(t *testing.T) {
	ctx := context.Background()
	backend := newTestSQLiteBackend(t)

	for _, key := range []string{"daily/b", "daily/a", "weekly/a"} {
		if err := backend.Write(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Write %s: %v", key, err)
		}
	}

	keys, err := backend.List(ctx, "daily/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 || keys[0] != "daily/a" || keys[1] != "daily/b" {
		t.Errorf("List = %v", keys)
	}

	// Empty prefix lists everything.
	all, err := backend.List(ctx, "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("List(\"\") = %v", all)
	}
}

func TestSQLiteBackendCloseIdempotent(t *testing.T) {
	backend := newTestSQLiteBackend(t)
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
