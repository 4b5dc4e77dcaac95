package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
)

// EncryptedPrefix marks a destination sealed by the encryption middleware.
const EncryptedPrefix = "enc:v1:"

// ErrInvalidKey is returned for keys that are not 32 bytes long.
var ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	ports.ParticipantStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals destination numbers with
// AES-GCM before they reach the store and opens them on reads.
// Answers are opaque recording references and are stored as is.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, ErrInvalidKey
	}
	for _, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key: %w", ErrInvalidKey)
		}
	}
	return func(next ports.ParticipantStore) ports.ParticipantStore {
		return &encryptionMiddleware{
			ParticipantStore: next,
			config:           config,
		}
	}, nil
}

func (m *encryptionMiddleware) Create(ctx context.Context, callID, destination string) error {
	if destination == "" {
		return m.ParticipantStore.Create(ctx, callID, destination)
	}
	ciphertext, err := encrypt([]byte(destination), m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt destination: %w", err)
	}
	return m.ParticipantStore.Create(ctx, callID, EncryptedPrefix+base64.StdEncoding.EncodeToString(ciphertext))
}

func (m *encryptionMiddleware) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	p, err := m.ParticipantStore.Find(ctx, callID)
	if err != nil {
		return nil, err
	}
	return m.open(p)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]*domain.Participant, error) {
	participants, err := m.ParticipantStore.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Participant, 0, len(participants))
	for _, p := range participants {
		opened, err := m.open(p)
		if err != nil {
			return nil, err
		}
		out = append(out, opened)
	}
	return out, nil
}

func (m *encryptionMiddleware) open(p *domain.Participant) (*domain.Participant, error) {
	if p.Destination == "" {
		return p, nil
	}
	sealed, ok := strings.CutPrefix(p.Destination, EncryptedPrefix)
	if !ok {
		// Fail secure: a plain destination means the store was written without encryption.
		return nil, fmt.Errorf("participant %s: destination is missing encrypted envelope", p.CallID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	// Try Active, then Fallback
	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("participant %s: failed to decrypt destination: %w", p.CallID, err)
	}

	cloned := *p
	cloned.Destination = string(plainText)
	return &cloned, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
