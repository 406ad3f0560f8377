package chronos

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptionNonceSize is the AES-GCM nonce size.
	encryptionNonceSize = 12
	// EncryptionSaltSize is the salt size for key derivation.
	EncryptionSaltSize = 32
	// EncryptionKeySize is the AES-256 key size.
	EncryptionKeySize = 32
	// pbkdf2Iterations is the key derivation work factor.
	pbkdf2Iterations = 100000
)

// EncryptionConfig configures encryption at rest for snapshots.
type EncryptionConfig struct {
	// Enabled turns on snapshot encryption.
	Enabled bool `yaml:"enabled"`

	// Key is a raw 32-byte AES-256 key. Takes precedence over
	// KeyPassword.
	Key []byte `yaml:"-"`

	// KeyPassword derives the key via PBKDF2 when Key is empty.
	KeyPassword string `yaml:"key_password"`
}

// Encryptor seals and opens snapshot payloads with AES-256-GCM. The
// salt used for password derivation travels in the snapshot envelope
// so the payload can be opened with the password alone.
type Encryptor struct {
	gcm  cipher.AEAD
	salt []byte
}

// NewEncryptor creates an encryptor from a raw key or a password,
// generating a fresh salt. Returns (nil, nil) when encryption is
// disabled.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	salt := make([]byte, EncryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}

	var key []byte
	switch {
	case len(cfg.Key) > 0:
		if len(cfg.Key) != EncryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		key = cfg.Key
	case cfg.KeyPassword != "":
		key = pbkdf2.Key([]byte(cfg.KeyPassword), salt, pbkdf2Iterations, EncryptionKeySize, sha256.New)
	default:
		return nil, errors.New("encryption enabled but no key or password provided")
	}

	return newEncryptorWithKey(key, salt)
}

// NewEncryptorWithSalt derives the key from a password and a known
// salt, for opening existing snapshots.
func NewEncryptorWithSalt(password string, salt []byte) (*Encryptor, error) {
	if len(salt) != EncryptionSaltSize {
		return nil, errors.New("invalid salt size")
	}
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, EncryptionKeySize, sha256.New)
	return newEncryptorWithKey(key, salt)
}

func newEncryptorWithKey(key, salt []byte) (*Encryptor, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encryptor{gcm: gcm, salt: salt}, nil
}

// Salt returns the key derivation salt.
func (e *Encryptor) Salt() []byte {
	return e.salt
}

// Encrypt seals plaintext, prepending the random nonce.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return e.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a sealed payload produced by Encrypt.
func (e *Encryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < encryptionNonceSize {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:encryptionNonceSize], ciphertext[encryptionNonceSize:]
	return e.gcm.Open(nil, nonce, sealed, nil)
}
