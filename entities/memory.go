package entities

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"
	"time"
)

type memoryRow struct {
	fields    map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// MemoryStore keeps records in process memory. It's safe for concurrent use.
type MemoryStore struct {
	tables Tables
	now    func() time.Time

	mu     sync.RWMutex
	nextId int64
	rows   map[string]map[int64]*memoryRow
}

func NewMemoryStore(tables Tables) *MemoryStore {
	return &MemoryStore{
		tables: tables,
		now:    time.Now,
		rows:   make(map[string]map[int64]*memoryRow),
	}
}

func (s *MemoryStore) List(ctx context.Context, table string, opts ListOptions) ([]Record, int64, error) {
	if err := s.tables.check(table); err != nil {
		return nil, 0, err
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.rows[table]
	ids := slices.Sorted(maps.Keys(rows))
	matched := make([]Record, 0, len(ids))
	for _, id := range ids {
		row := rows[id]
		if !matchesFilters(id, row.fields, opts.Filters) {
			continue
		}
		matched = append(matched, newRecord(id, row.fields, row.createdAt, row.updatedAt))
	}

	total := int64(len(matched))
	start := min(max(opts.offset(), 0), len(matched))
	end := min(start+opts.PageSize, len(matched))
	return matched[start:end], total, nil
}

func (s *MemoryStore) Get(ctx context.Context, table string, id int64) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	return newRecord(id, row.fields, row.createdAt, row.updatedAt), nil
}

func (s *MemoryStore) Create(ctx context.Context, table string, fields map[string]any) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextId++
	now := s.now()
	row := &memoryRow{fields: withoutReserved(fields), createdAt: now, updatedAt: now}
	if s.rows[table] == nil {
		s.rows[table] = make(map[int64]*memoryRow)
	}
	s.rows[table][s.nextId] = row
	return newRecord(s.nextId, row.fields, row.createdAt, row.updatedAt), nil
}

func (s *MemoryStore) Update(ctx context.Context, table string, id int64, fields map[string]any) (Record, error) {
	if err := s.tables.check(table); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[table][id]
	if !ok {
		return nil, ErrNotFound
	}
	merged := maps.Clone(row.fields)
	maps.Copy(merged, withoutReserved(fields))
	row.fields = merged
	row.updatedAt = s.now()
	return newRecord(id, row.fields, row.createdAt, row.updatedAt), nil
}

func (s *MemoryStore) Delete(ctx context.Context, table string, id int64) error {
	if err := s.tables.check(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[table][id]; !ok {
		return ErrNotFound
	}
	delete(s.rows[table], id)
	return nil
}

func matchesFilters(id int64, fields map[string]any, filters map[string]string) bool {
	for k, want := range filters {
		if k == FieldId {
			if strconv.FormatInt(id, 10) != want {
				return false
			}
			continue
		}
		v, ok := fields[k]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

var _ Store = (*MemoryStore)(nil)
