package chronos

import "context"

// SnapshotBackend stores serialized series snapshots under string
// keys. Implementations cover the local filesystem, SQLite, S3
// compatible object stores and plain memory, so snapshots can live
// wherever the host keeps its durable state.
type SnapshotBackend interface {
	// Read returns the blob stored under key.
	Read(ctx context.Context, key string) ([]byte, error)

	// Write stores a blob under key, replacing any previous value.
	Write(ctx context.Context, key string, data []byte) error

	// Delete removes the blob stored under key.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any resources.
	Close() error
}

var (
	_ SnapshotBackend = (*MemoryBackend)(nil)
	_ SnapshotBackend = (*FileBackend)(nil)
	_ SnapshotBackend = (*SQLiteBackend)(nil)
	_ SnapshotBackend = (*S3Backend)(nil)
)
