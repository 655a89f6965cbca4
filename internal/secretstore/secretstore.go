// Package secretstore is the opaque secret-blob collaborator:
// get/put/delete of a blob by key. The
// credentials resolver uses it to stage and consume job-scoped ephemeral
// credentials (the chain's first link), and the Kubernetes cluster
// materializer reads staged platform kubeconfigs and bearer tokens from it.
package secretstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/epam/syndicate-rule-engine-sub000/internal/objectstore"
)

// ErrNotFound is returned by Get when key does not exist.
var ErrNotFound = objectstore.ErrNotFound

// SecretStore stores and retrieves opaque blobs, encrypted at rest.
type SecretStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// EnvelopeStore layers ChaCha20-Poly1305 envelope encryption over an
// ObjectStore so the backing bucket/filesystem never sees plaintext
// credential material.
type EnvelopeStore struct {
	Objects objectstore.ObjectStore
	aead    interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
}

// NewEnvelopeStore builds a store keyed by a 32-byte ChaCha20-Poly1305 key.
func NewEnvelopeStore(objects objectstore.ObjectStore, key []byte) (*EnvelopeStore, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("secretstore: %w", err)
	}
	return &EnvelopeStore{Objects: objects, aead: aead}, nil
}

// Get decrypts and returns the blob stored under key.
func (s *EnvelopeStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.Objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("secretstore get %s: %w", key, err)
	}
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("secretstore get %s: ciphertext too short", key)
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("secretstore get %s: decrypt: %w", key, err)
	}
	return plaintext, nil
}

// Put encrypts data with a freshly generated nonce and writes it under key.
func (s *EnvelopeStore) Put(ctx context.Context, key string, data []byte) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("secretstore put %s: nonce: %w", key, err)
	}
	sealed := s.aead.Seal(nonce, nonce, data, []byte(key))
	if err := s.Objects.Put(ctx, key, sealed); err != nil {
		return fmt.Errorf("secretstore put %s: %w", key, err)
	}
	return nil
}

func (s *EnvelopeStore) Delete(ctx context.Context, key string) error {
	if err := s.Objects.Delete(ctx, key); err != nil {
		return fmt.Errorf("secretstore delete %s: %w", key, err)
	}
	return nil
}

// Take reads key then deletes it: job-scoped ephemeral credentials are
// single-use, consumed by the first resolver that reads them.
func (s *EnvelopeStore) Take(ctx context.Context, key string) ([]byte, error) {
	data, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("secretstore take %s: %w", key, err)
	}
	return data, nil
}
