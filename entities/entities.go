package entities

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"time"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrUnknownTable   = errors.New("unknown table")
	ErrPageOutOfRange = errors.New("page out of range")
)

const (
	DefaultPageSize = 15
	MaxPageSize     = 100

	// MaxPage is the largest page whose offset can be computed at any page size
	MaxPage = math.MaxInt/MaxPageSize + 1
)

// Reserved field names, which are populated by the store and ignored in input
const (
	FieldId        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Record is a single entity, as returned to API callers
type Record map[string]any

// ListOptions controls which page of records List returns. Each filter requires the
// named field's value, rendered as a string, to equal the given value.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  map[string]string
}

// Normalize clamps the page to at least 1, and resets any page size outside of
// [1, MaxPageSize] to DefaultPageSize
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 || o.PageSize > MaxPageSize {
		o.PageSize = DefaultPageSize
	}
	return o
}

// Validate rejects a page too large to have an offset. It should be called on
// normalized options.
func (o ListOptions) Validate() error {
	if o.Page > MaxPage {
		return fmt.Errorf("%w: %d", ErrPageOutOfRange, o.Page)
	}
	return nil
}

func (o ListOptions) offset() int {
	return (o.Page - 1) * o.PageSize
}

type Store interface {
	// List returns a page of records from table, ordered by ID, along with the total
	// number of records that match the filters
	List(ctx context.Context, table string, opts ListOptions) ([]Record, int64, error)
	Get(ctx context.Context, table string, id int64) (Record, error)
	Create(ctx context.Context, table string, fields map[string]any) (Record, error)

	// Update merges fields into an existing record
	Update(ctx context.Context, table string, id int64, fields map[string]any) (Record, error)
	Delete(ctx context.Context, table string, id int64) error
}

var tableNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Tables restricts which table names a store will accept. An empty Tables accepts any
// lower-case identifier.
type Tables []string

func (t Tables) check(table string) error {
	if !tableNameRegex.MatchString(table) {
		return fmt.Errorf("%w: '%s'", ErrUnknownTable, table)
	}
	if len(t) > 0 && !slices.Contains(t, table) {
		return fmt.Errorf("%w: '%s'", ErrUnknownTable, table)
	}
	return nil
}

// withoutReserved returns a copy of fields with the store-managed fields removed
func withoutReserved(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == FieldId || k == FieldCreatedAt || k == FieldUpdatedAt {
			continue
		}
		out[k] = v
	}
	return out
}

func newRecord(id int64, fields map[string]any, createdAt, updatedAt time.Time) Record {
	r := make(Record, len(fields)+3)
	for k, v := range fields {
		r[k] = v
	}
	r[FieldId] = id
	r[FieldCreatedAt] = createdAt.UTC()
	r[FieldUpdatedAt] = updatedAt.UTC()
	return r
}
