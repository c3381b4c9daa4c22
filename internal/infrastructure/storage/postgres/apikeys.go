package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockval/internal/core/apperror"
	"stockval/internal/domain/auth"
)

// Compile-time check.
var _ auth.APIKeyStore = (*APIKeyRepo)(nil)

const apiKeysTable = "sys_api_keys"

// APIKeyRepo looks up machine-caller API keys in sys_api_keys. Only the
// bcrypt hash of each secret is stored; revoked keys are soft-deleted via
// revoked_at.
type APIKeyRepo struct {
	txManager *TxManager
}

// NewAPIKeyRepo creates a new API key store.
func NewAPIKeyRepo(txManager *TxManager) *APIKeyRepo {
	return &APIKeyRepo{txManager: txManager}
}

// GetKeyHash implements auth.APIKeyStore.
func (r *APIKeyRepo) GetKeyHash(ctx context.Context, keyID string) (string, string, error) {
	q := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("secret_hash", "user_id").
		From(apiKeysTable).
		Where(squirrel.Eq{"key_id": keyID}).
		Where("revoked_at IS NULL").
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return "", "", fmt.Errorf("build query: %w", err)
	}

	var row struct {
		SecretHash string `db:"secret_hash"`
		UserID     string `db:"user_id"`
	}
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return "", "", apperror.NewUnauthorized("invalid api key")
		}
		return "", "", fmt.Errorf("query %s: %w", apiKeysTable, err)
	}

	return row.SecretHash, row.UserID, nil
}
