package chronos

import (
	"bytes"
	"context"
	"fmt"

	"github.com/golang/snappy"
)

// Snapshot envelope: 4 magic bytes, a version byte and a flags byte,
// followed by the key derivation salt when the payload is encrypted.
// The payload is Snappy-compressed before encryption so ciphertext
// stays incompressible-agnostic.
var snapshotMagic = []byte{'C', 'S', 'N', 'P'}

const (
	snapshotVersion = 1

	snapshotFlagCompressed = 1 << 0
	snapshotFlagEncrypted  = 1 << 1
)

// SnapshotStore wraps a SnapshotBackend with the snapshot envelope:
// compression, optional encryption and integrity checks.
type SnapshotStore struct {
	backend SnapshotBackend
	cfg     SnapshotConfig
}

// NewSnapshotStore creates a snapshot store over a backend.
func NewSnapshotStore(backend SnapshotBackend, cfg SnapshotConfig) *SnapshotStore {
	return &SnapshotStore{backend: backend, cfg: cfg}
}

// Save envelopes the payload and writes it under key.
func (ss *SnapshotStore) Save(ctx context.Context, key string, payload []byte) error {
	var flags byte
	if ss.cfg.Compress {
		payload = snappy.Encode(nil, payload)
		flags |= snapshotFlagCompressed
	}

	var salt []byte
	if ss.encryptionEnabled() {
		enc, err := NewEncryptor(*ss.cfg.Encryption)
		if err != nil {
			return newSnapshotError(SnapshotErrorTypeWrite, "initializing encryption", key, err)
		}
		payload, err = enc.Encrypt(payload)
		if err != nil {
			return newSnapshotError(SnapshotErrorTypeWrite, "encrypting snapshot", key, err)
		}
		salt = enc.Salt()
		flags |= snapshotFlagEncrypted
	}

	blob := make([]byte, 0, len(snapshotMagic)+2+len(salt)+len(payload))
	blob = append(blob, snapshotMagic...)
	blob = append(blob, snapshotVersion, flags)
	blob = append(blob, salt...)
	blob = append(blob, payload...)

	if err := ss.backend.Write(ctx, key, blob); err != nil {
		return newSnapshotError(SnapshotErrorTypeWrite, "writing snapshot", key, err)
	}
	return nil
}

// Load reads the blob under key and unwraps the envelope.
func (ss *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	blob, err := ss.backend.Read(ctx, key)
	if err != nil {
		return nil, newSnapshotError(SnapshotErrorTypeRead, "reading snapshot", key, err)
	}

	if len(blob) < len(snapshotMagic)+2 || !bytes.Equal(blob[:len(snapshotMagic)], snapshotMagic) {
		return nil, newSnapshotError(SnapshotErrorTypeCorruption, "bad snapshot header", key, nil)
	}
	version := blob[len(snapshotMagic)]
	flags := blob[len(snapshotMagic)+1]
	payload := blob[len(snapshotMagic)+2:]
	if version != snapshotVersion {
		return nil, newSnapshotError(SnapshotErrorTypeCorruption,
			fmt.Sprintf("unsupported snapshot version %d", version), key, nil)
	}

	if flags&snapshotFlagEncrypted != 0 {
		if !ss.encryptionEnabled() {
			return nil, newSnapshotError(SnapshotErrorTypeRead, "snapshot is encrypted but no key is configured", key, nil)
		}
		if len(payload) < EncryptionSaltSize {
			return nil, newSnapshotError(SnapshotErrorTypeCorruption, "truncated snapshot salt", key, nil)
		}
		salt := payload[:EncryptionSaltSize]
		enc, err := ss.encryptorFor(salt)
		if err != nil {
			return nil, newSnapshotError(SnapshotErrorTypeRead, "initializing decryption", key, err)
		}
		payload, err = enc.Decrypt(payload[EncryptionSaltSize:])
		if err != nil {
			return nil, newSnapshotError(SnapshotErrorTypeCorruption, "decrypting snapshot", key, err)
		}
	}

	if flags&snapshotFlagCompressed != 0 {
		payload, err = snappy.Decode(nil, payload)
		if err != nil {
			return nil, newSnapshotError(SnapshotErrorTypeCorruption, "decompressing snapshot", key, err)
		}
	}
	return payload, nil
}

// Delete removes the snapshot stored under key.
func (ss *SnapshotStore) Delete(ctx context.Context, key string) error {
	if err := ss.backend.Delete(ctx, key); err != nil {
		return newSnapshotError(SnapshotErrorTypeWrite, "deleting snapshot", key, err)
	}
	return nil
}

// Exists reports whether a snapshot is stored under key.
func (ss *SnapshotStore) Exists(ctx context.Context, key string) (bool, error) {
	return ss.backend.Exists(ctx, key)
}

// List returns the snapshot keys starting with prefix.
func (ss *SnapshotStore) List(ctx context.Context, prefix string) ([]string, error) {
	return ss.backend.List(ctx, prefix)
}

func (ss *SnapshotStore) encryptionEnabled() bool {
	return ss.cfg.Encryption != nil && ss.cfg.Encryption.Enabled
}

// encryptorFor rebuilds the encryptor for an existing snapshot from
// its stored salt.
func (ss *SnapshotStore) encryptorFor(salt []byte) (*Encryptor, error) {
	cfg := ss.cfg.Encryption
	if len(cfg.Key) > 0 {
		owned := append([]byte(nil), salt...)
		return newEncryptorWithKey(cfg.Key, owned)
	}
	return NewEncryptorWithSalt(cfg.KeyPassword, salt)
}
