package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	"github.com/aretw0/voicesurvey/pkg/persistence/middleware"
	"github.com/aretw0/voicesurvey/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func newEncrypted(t *testing.T, next ports.ParticipantStore, active []byte, fallback ...[]byte) ports.ParticipantStore {
	mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunParticipantStoreContract(t, newEncrypted(t, memory.NewStore(), generateKey(t)))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := memory.NewStore()
	secureStore := newEncrypted(t, underlyingStore, generateKey(t))
	ctx := context.Background()

	if err := secureStore.Create(ctx, "abc", "+31612345678"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The underlying store only sees the sealed value.
	stored, err := underlyingStore.Find(ctx, "abc")
	if err != nil {
		t.Fatalf("Underlying find failed: %v", err)
	}
	if !strings.HasPrefix(stored.Destination, middleware.EncryptedPrefix) {
		t.Fatalf("Expected sealed destination, found: %v", stored.Destination)
	}
	if strings.Contains(stored.Destination, "612345678") {
		t.Fatal("Destination leaked into the store")
	}

	loaded, err := secureStore.Find(ctx, "abc")
	if err != nil {
		t.Fatalf("Find via middleware failed: %v", err)
	}
	if loaded.Destination != "+31612345678" {
		t.Errorf("Expected '+31612345678', got %v", loaded.Destination)
	}

	list, err := secureStore.List(ctx)
	if err != nil {
		t.Fatalf("List via middleware failed: %v", err)
	}
	if len(list) != 1 || list[0].Destination != "+31612345678" {
		t.Errorf("Expected one decrypted participant, got %+v", list)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	secureStoreOld := newEncrypted(t, underlyingStore, oldKey)
	if err := secureStoreOld.Create(ctx, "old", "111"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	secureStoreNew := newEncrypted(t, underlyingStore, newKey, oldKey)
	loaded, err := secureStoreNew.Find(ctx, "old")
	if err != nil {
		t.Fatalf("Find with rotated key failed: %v", err)
	}
	if loaded.Destination != "111" {
		t.Errorf("Decryption with fallback key failed")
	}

	if err := secureStoreNew.Create(ctx, "new", "222"); err != nil {
		t.Fatalf("Create with new key failed: %v", err)
	}

	// The old key alone cannot open data sealed with the new key.
	if _, err := secureStoreOld.Find(ctx, "new"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_PlainDestination(t *testing.T) {
	underlyingStore := memory.NewStore()
	ctx := context.Background()
	if err := underlyingStore.Create(ctx, "legacy", "555"); err != nil {
		t.Fatal(err)
	}

	secureStore := newEncrypted(t, underlyingStore, generateKey(t))
	if _, err := secureStore.Find(ctx, "legacy"); err == nil {
		t.Error("Expected plain destination to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey, got %v", err)
	}

	_, err = middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    generateKey(t),
		FallbackKeys: [][]byte{[]byte("short")},
	})
	if !errors.Is(err, middleware.ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for fallback, got %v", err)
	}
}
