package chronos

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sort"
	"testing"
)

func TestSnapshotStorePlain(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewSnapshotStore(backend, SnapshotConfig{})

	payload := []byte("hello snapshots")
	if err := store.Save(ctx, "k1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Load = %q, want %q", got, payload)
	}

	// The stored blob carries the envelope, not the raw payload.
	raw, _ := backend.Read(ctx, "k1")
	if bytes.Equal(raw, payload) {
		t.Error("backend holds raw payload without envelope")
	}
	if !bytes.HasPrefix(raw, snapshotMagic) {
		t.Error("blob does not start with magic bytes")
	}
}

func TestSnapshotStoreCompressed(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewSnapshotStore(backend, SnapshotConfig{Compress: true})

	payload := bytes.Repeat([]byte("abcdabcdabcd"), 1000)
	if err := store.Save(ctx, "k1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := backend.Read(ctx, "k1")
	if len(raw) >= len(payload) {
		t.Errorf("compressed blob is %d bytes, payload %d", len(raw), len(payload))
	}

	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip mismatch")
	}
}

func TestSnapshotStoreEncryptedPassword(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	cfg := SnapshotConfig{
		Compress:   true,
		Encryption: &EncryptionConfig{Enabled: true, KeyPassword: "correct horse"},
	}
	store := NewSnapshotStore(backend, cfg)

	payload := []byte("secret time series data")
	if err := store.Save(ctx, "k1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, _ := backend.Read(ctx, "k1")
	if bytes.Contains(raw, payload) {
		t.Error("plaintext visible in stored blob")
	}

	// A fresh store with the same password can open it; the salt rides
	// in the envelope.
	reader := NewSnapshotStore(backend, cfg)
	got, err := reader.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip mismatch")
	}

	// Wrong password fails as corruption.
	wrong := NewSnapshotStore(backend, SnapshotConfig{
		Compress:   true,
		Encryption: &EncryptionConfig{Enabled: true, KeyPassword: "battery staple"},
	})
	if _, err := wrong.Load(ctx, "k1"); !errors.Is(err, ErrCorruptedSnapshot) {
		t.Errorf("wrong password = %v, want ErrCorruptedSnapshot", err)
	}

	// No key configured at all fails before decryption.
	bare := NewSnapshotStore(backend, SnapshotConfig{Compress: true})
	if _, err := bare.Load(ctx, "k1"); err == nil {
		t.Error("Load without key succeeded on encrypted snapshot")
	}
}

func TestSnapshotStoreEncryptedRawKey(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	key := bytes.Repeat([]byte{0x42}, EncryptionKeySize)
	store := NewSnapshotStore(backend, SnapshotConfig{
		Encryption: &EncryptionConfig{Enabled: true, Key: key},
	})

	payload := []byte("raw key payload")
	if err := store.Save(ctx, "k1", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("round trip mismatch")
	}
}

func TestSnapshotStoreCorruptBlob(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewSnapshotStore(backend, SnapshotConfig{})

	cases := map[string][]byte{
		"short":       {'C', 'S'},
		"bad magic":   {'X', 'X', 'X', 'X', snapshotVersion, 0},
		"bad version": {'C', 'S', 'N', 'P', 99, 0},
	}
	for name, blob := range cases {
		if err := backend.Write(ctx, name, blob); err != nil {
			t.Fatalf("Write: %v", err)
		}
		if _, err := store.Load(ctx, name); !errors.Is(err, ErrCorruptedSnapshot) {
			t.Errorf("%s: Load = %v, want ErrCorruptedSnapshot", name, err)
		}
	}
}

func TestSnapshotStoreDeleteExistsList(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(NewMemoryBackend(), SnapshotConfig{})

	for _, key := range []string{"daily/a", "daily/b", "weekly/a"} {
		if err := store.Save(ctx, key, []byte(key)); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	keys, err := store.List(ctx, "daily/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "daily/a" || keys[1] != "daily/b" {
		t.Errorf("List = %v", keys)
	}

	ok, err := store.Exists(ctx, "weekly/a")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	if err := store.Delete(ctx, "weekly/a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, "weekly/a"); ok {
		t.Error("snapshot still exists after delete")
	}
}

func TestMemoryBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	if _, err := backend.Read(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read missing = %v, want os.ErrNotExist", err)
	}

	data := []byte{1, 2, 3}
	if err := backend.Write(ctx, "k", data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data[0] = 99
	got, err := backend.Read(ctx, "k")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got[0] != 1 {
		t.Error("backend aliases the caller's buffer")
	}
	if backend.Len() != 1 {
		t.Errorf("Len = %d, want 1", backend.Len())
	}
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	if err := backend.Write(ctx, "nested/snap.bin", []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := backend.Read(ctx, "nested/snap.bin")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "data" {
		t.Errorf("Read = %q", got)
	}

	keys, err := backend.List(ctx, "nested/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "nested/snap.bin" {
		t.Errorf("List = %v", keys)
	}

	if err := backend.Delete(ctx, "nested/snap.bin"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := backend.Exists(ctx, "nested/snap.bin"); ok {
		t.Error("file still exists after delete")
	}
}

func TestFileBackendPathTraversal(t *testing.T) {
	ctx := context.Background()
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	if err := backend.Write(ctx, "../escape", []byte("x")); err == nil {
		t.Error("Write outside base directory succeeded")
	}
	if _, err := backend.Read(ctx, "../../etc/passwd"); err == nil {
		t.Error("Read outside base directory succeeded")
	}
}
