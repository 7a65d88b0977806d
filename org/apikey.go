package org

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	apiKeyPrefix      = "pk_"
	apiKeyRandomBytes = 32
)

// ErrProjectNotFound is returned when no active project matches an API key.
var ErrProjectNotFound = errors.New("org: project not found or inactive")

// GenerateAPIKey returns a fresh project API key and the SHA-256 hash to
// store alongside it. The plaintext key is returned exactly once — the
// caller is responsible for surfacing it to the client and persisting
// only the hash.
func GenerateAPIKey() (plaintext, hash string, err error) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("org: generate api key: %w", err)
	}
	plaintext = apiKeyPrefix + base64.RawURLEncoding.EncodeToString(buf)
	return plaintext, HashAPIKey(plaintext), nil
}

// HashAPIKey hashes a plaintext API key for comparison against a stored
// Project.APIKeyHash.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// ProjectLookup resolves a project by its API key hash, for
// Authenticate to call without depending on a concrete store.
type ProjectLookup interface {
	GetByAPIKeyHash(ctx context.Context, hash string) (*Project, error)
}

// Authenticate validates a Bearer-style plaintext API key against store
// and returns the matching active project (spec.md §6's ingestion auth
// contract). Inactive or unknown keys return ErrProjectNotFound.
func Authenticate(ctx context.Context, store ProjectLookup, plaintextKey string) (*Project, error) {
	hash := HashAPIKey(plaintextKey)
	proj, err := store.GetByAPIKeyHash(ctx, hash)
	if err != nil {
		return nil, ErrProjectNotFound
	}
	if proj == nil || !proj.Active {
		return nil, ErrProjectNotFound
	}
	// Constant-time compare even though GetByAPIKeyHash already matched
	// on the hash — guards against a lookup implementation that does a
	// prefix or indexed scan rather than an exact equality check.
	if subtle.ConstantTimeCompare([]byte(proj.APIKeyHash), []byte(hash)) != 1 {
		return nil, ErrProjectNotFound
	}
	return proj, nil
}
