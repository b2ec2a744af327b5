package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golden-vcr/openapi-go/hmac"
)

// Execer is satisfied by both *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresStore records nonces in the openapi_nonce table (see db/schema.sql). A nonce
// whose record has expired may be recorded again.
type PostgresStore struct {
	db Execer
}

func NewPostgresStore(db Execer) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CheckAndRecord(ctx context.Context, appId, nonce string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO openapi_nonce (app_id, nonce, expires_at)
		VALUES ($1, $2, now() + $3::bigint * interval '1 millisecond')
		ON CONFLICT (app_id, nonce) DO UPDATE
			SET expires_at = EXCLUDED.expires_at
			WHERE openapi_nonce.expires_at <= now()
	`, appId, nonce, ttl.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record nonce: %w", err)
	}
	numRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get number of rows changed: %w", err)
	}
	if numRows == 0 {
		return hmac.ErrNonceReused
	}
	return nil
}

// Purge deletes all expired nonce records, returning the number of rows removed
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM openapi_nonce WHERE expires_at <= now()")
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired nonces: %w", err)
	}
	return res.RowsAffected()
}

var _ hmac.NonceStore = (*PostgresStore)(nil)
