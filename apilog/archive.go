package apilog

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer is satisfied by both *sql.DB and *sql.Tx
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Archive persists API call events to the openapi_call_log table (see db/schema.sql)
type Archive struct {
	db Execer
}

func NewArchive(db Execer) *Archive {
	return &Archive{db: db}
}

// Insert stores ev, keyed by the ID of the message it was delivered in. Redelivered
// messages are ignored, in which case Insert returns false.
func (a *Archive) Insert(ctx context.Context, messageId string, ev *Event) (bool, error) {
	if messageId == "" {
		return false, fmt.Errorf("API call event has no message ID")
	}
	res, err := a.db.ExecContext(ctx, `
		INSERT INTO openapi_call_log (
			message_id, request_id, app_id, method, path, status, outcome, error_code,
			nonce, signed_at, remote_addr, received_at, elapsed_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (message_id) DO NOTHING
	`,
		messageId,
		ev.RequestId,
		ev.AppId,
		ev.Method,
		ev.Path,
		ev.Status,
		string(ev.Outcome),
		ev.ErrorCode,
		ev.Nonce,
		ev.SignedAt,
		ev.RemoteAddr,
		ev.ReceivedAt,
		ev.ElapsedMs,
	)
	if err != nil {
		return false, fmt.Errorf("failed to archive API call event: %w", err)
	}
	numRows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get number of rows changed: %w", err)
	}
	return numRows == 1, nil
}
