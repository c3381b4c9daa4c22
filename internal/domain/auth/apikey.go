package auth

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"stockval/internal/core/apperror"
	appctx "stockval/internal/core/context"
)

// APIKeyStore looks up stored API key hashes by key id.
type APIKeyStore interface {
	// GetKeyHash returns the bcrypt hash and owning user for a key id,
	// or an error when the key id is unknown or revoked.
	GetKeyHash(ctx context.Context, keyID string) (hash string, userID string, err error)
}

// APIKeyService verifies API keys for machine callers (the resume worker,
// report export jobs). Keys are presented as "keyID:secret"; only the bcrypt
// hash of the secret is stored.
type APIKeyService struct {
	store APIKeyStore
}

// NewAPIKeyService creates a new API key service.
func NewAPIKeyService(store APIKeyStore) *APIKeyService {
	return &APIKeyService{store: store}
}

// HashSecret hashes an API key secret for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w", err)
	}
	return string(hash), nil
}

// Verify checks a presented key against the stored hash and returns the
// caller's user context.
func (s *APIKeyService) Verify(ctx context.Context, keyID, secret string) (*appctx.UserContext, error) {
	hash, userID, err := s.store.GetKeyHash(ctx, keyID)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid api key")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		return nil, apperror.NewUnauthorized("invalid api key")
	}

	return &appctx.UserContext{UserID: userID}, nil
}
