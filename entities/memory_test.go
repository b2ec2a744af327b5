package entities

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ListOptions_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ListOptions
		want ListOptions
	}{
		{"zero values use defaults", ListOptions{}, ListOptions{Page: 1, PageSize: DefaultPageSize}},
		{"valid values are kept", ListOptions{Page: 3, PageSize: 10}, ListOptions{Page: 3, PageSize: 10}},
		{"oversized pages fall back to the default", ListOptions{Page: 1, PageSize: 101}, ListOptions{Page: 1, PageSize: DefaultPageSize}},
		{"negative pages are clamped", ListOptions{Page: -2, PageSize: MaxPageSize}, ListOptions{Page: 1, PageSize: MaxPageSize}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func Test_ListOptions_Validate(t *testing.T) {
	t.Run("the largest page still has an offset", func(t *testing.T) {
		opts := ListOptions{Page: MaxPage, PageSize: MaxPageSize}
		assert.NoError(t, opts.Validate())
		assert.GreaterOrEqual(t, opts.offset(), 0)
	})
	t.Run("pages beyond that are out of range", func(t *testing.T) {
		for _, page := range []int{MaxPage + 1, math.MaxInt} {
			err := ListOptions{Page: page, PageSize: DefaultPageSize}.Validate()
			assert.ErrorIs(t, err, ErrPageOutOfRange)
		}
	})
}

func Test_Tables(t *testing.T) {
	t.Run("empty set accepts any identifier", func(t *testing.T) {
		assert.NoError(t, Tables(nil).check("product"))
		assert.ErrorIs(t, Tables(nil).check("Product"), ErrUnknownTable)
		assert.ErrorIs(t, Tables(nil).check("product; DROP TABLE x"), ErrUnknownTable)
		assert.ErrorIs(t, Tables(nil).check(""), ErrUnknownTable)
	})
	t.Run("non-empty set accepts only its members", func(t *testing.T) {
		tables := Tables{"product", "supplier"}
		assert.NoError(t, tables.check("supplier"))
		assert.ErrorIs(t, tables.check("customer"), ErrUnknownTable)
	})
}

func Test_MemoryStore(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	newStore := func() *MemoryStore {
		s := NewMemoryStore(Tables{"product"})
		s.now = func() time.Time { return t0 }
		return s
	}

	t.Run("create assigns an ID and ignores reserved fields", func(t *testing.T) {
		s := newStore()
		r, err := s.Create(ctx, "product", map[string]any{"name": "Widget", "price": float64(10), "id": 99})
		require.NoError(t, err)
		assert.Equal(t, Record{
			"id":        int64(1),
			"name":      "Widget",
			"price":     float64(10),
			"createdAt": t0,
			"updatedAt": t0,
		}, r)

		got, err := s.Get(ctx, "product", 1)
		require.NoError(t, err)
		assert.Equal(t, r, got)
	})
	t.Run("update merges fields and bumps updatedAt", func(t *testing.T) {
		s := newStore()
		_, err := s.Create(ctx, "product", map[string]any{"name": "Widget", "price": float64(10)})
		require.NoError(t, err)

		t1 := t0.Add(time.Hour)
		s.now = func() time.Time { return t1 }
		r, err := s.Update(ctx, "product", 1, map[string]any{"price": float64(12)})
		require.NoError(t, err)
		assert.Equal(t, "Widget", r["name"])
		assert.Equal(t, float64(12), r["price"])
		assert.Equal(t, t0, r["createdAt"])
		assert.Equal(t, t1, r["updatedAt"])
	})
	t.Run("missing records are reported as not found", func(t *testing.T) {
		s := newStore()
		_, err := s.Get(ctx, "product", 42)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.Update(ctx, "product", 42, map[string]any{"name": "x"})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "product", 42), ErrNotFound)
	})
	t.Run("unknown tables are rejected", func(t *testing.T) {
		s := newStore()
		_, err := s.Create(ctx, "customer", map[string]any{})
		assert.ErrorIs(t, err, ErrUnknownTable)
		_, _, err = s.List(ctx, "customer", ListOptions{})
		assert.ErrorIs(t, err, ErrUnknownTable)
	})
	t.Run("delete removes the record", func(t *testing.T) {
		s := newStore()
		_, err := s.Create(ctx, "product", map[string]any{"name": "Widget"})
		require.NoError(t, err)
		assert.NoError(t, s.Delete(ctx, "product", 1))
		_, err = s.Get(ctx, "product", 1)
		assert.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("list pages through matching records in ID order", func(t *testing.T) {
		s := newStore()
		for i := 1; i <= 25; i++ {
			status := "active"
			if i%5 == 0 {
				status = "retired"
			}
			_, err := s.Create(ctx, "product", map[string]any{"name": fmt.Sprintf("p%d", i), "status": status})
			require.NoError(t, err)
		}

		records, total, err := s.List(ctx, "product", ListOptions{Page: 2, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		require.Len(t, records, 10)
		assert.Equal(t, int64(11), records[0]["id"])

		records, total, err = s.List(ctx, "product", ListOptions{Page: 3, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		assert.Len(t, records, 5)

		records, total, err = s.List(ctx, "product", ListOptions{Page: 9, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(25), total)
		assert.Empty(t, records)

		records, total, err = s.List(ctx, "product", ListOptions{Filters: map[string]string{"status": "retired"}})
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Equal(t, "p5", records[0]["name"])

		records, total, err = s.List(ctx, "product", ListOptions{Filters: map[string]string{"id": "7"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, "p7", records[0]["name"])
	})
	t.Run("pages too large to address are rejected without slicing", func(t *testing.T) {
		s := newStore()
		_, err := s.Create(ctx, "product", map[string]any{"name": "Widget"})
		require.NoError(t, err)

		_, _, err = s.List(ctx, "product", ListOptions{Page: math.MaxInt / 2, PageSize: 2})
		assert.ErrorIs(t, err, ErrPageOutOfRange)

		records, total, err := s.List(ctx, "product", ListOptions{Page: MaxPage, PageSize: MaxPageSize})
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Equal(t, int64(1), total)
	})
	t.Run("numeric fields match filters by their decimal form", func(t *testing.T) {
		s := newStore()
		_, err := s.Create(ctx, "product", map[string]any{"price": float64(10)})
		require.NoError(t, err)
		_, total, err := s.List(ctx, "product", ListOptions{Filters: map[string]string{"price": "10"}})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
	})
}
