package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore keeps records as JSONB documents in the openapi_entity table (see
// db/schema.sql)
type PostgresStore struct {
	db     Querier
	tables Tables
}

func NewPostgresStore(db Querier, tables Tables) *PostgresStore {
	return &PostgresStore{db: db, tables: tables}
}

// whereClause renders the conditions for table and filters, starting from $1. Filter
// keys are bound as parameters, never interpolated.
func whereClause(table string, filters map[string]string) (string, []any) {
	conds := []string{"table_code = $1"}
	args := []any{table}
	for _, k := range slices.Sorted(maps.Keys(filters)) {
		if k == FieldId {
			args = append(args, filters[k])
			conds = append(conds, fmt.Sprintf("id::text = $%d", len(args)))
			continue
		}
		args = append(args, k, filters[k])
		conds = append(conds, fmt.Sprintf("data ->> $%d::text = $%d", len(args)-1, len(args)))
	}
	return strings.Join(conds, " AND "), args
}

func (s *PostgresStore) List(ctx context.Context, table string, opts ListOptions) ([]Record, int64, error) {
	if err := s.tables.check(table); err != nil {
		return nil, 0, err
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}
	where, args := whereClause(table, opts.Filters)

	var total int64
	row := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM openapi_entity WHERE "+where, args...)
	if err := row.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	args = append(args, opts.PageSize, opts.offset())
	q := fmt.Sprintf(`
		SELECT id, data, created_at, updated_at FROM openapi_entity
		WHERE %s
		ORDER BY id
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, opts.PageSize)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return records, total, nil
}

func (s *PostgresStore) Get(ctx context.Context, table string, id int64) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, data, created_at, updated_at FROM openapi_entity
		WHERE table_code = $1 AND id = $2
	`, table, id)
	return scanRecord(row)
}

func (s *PostgresStore) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	data, err := json.Marshal(withoutReserved(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO openapi_entity (table_code, data)
		VALUES ($1, $2::jsonb)
		RETURNING id, data, created_at, updated_at
	`, table, string(data))
	return scanRecord(row)
}

func (s *PostgresStore) Update(ctx context.Context, table string, id int64, fields map[string]any) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	data, err := json.Marshal(withoutReserved(fields))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE openapi_entity SET
			data = data || $3::jsonb,
			updated_at = now()
		WHERE table_code = $1 AND id = $2
		RETURNING id, data, created_at, updated_at
	`, table, id, string(data))
	return scanRecord(row)
}

func (s *PostgresStore) Delete(ctx context.Context, table string, id int64) error {
	if err := s.tables.check(table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM openapi_entity WHERE table_code = $1 AND id = $2", table, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	numRows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get number of rows changed: %w", err)
	}
	if numRows == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var id int64
	var data []byte
	var createdAt, updatedAt time.Time
	if err := row.Scan(&id, &data, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode record %d: %w", id, err)
	}
	return newRecord(id, fields, createdAt, updatedAt), nil
}

var _ Store = (*PostgresStore)(nil)
