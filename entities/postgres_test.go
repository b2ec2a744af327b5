package entities_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golden-vcr/openapi-go/entities"
	"github.com/golden-vcr/openapi-go/querytest"
)

func Test_PostgresStore(t *testing.T) {
	tx := querytest.PrepareTx(t)
	s := entities.NewPostgresStore(tx, entities.Tables{"product"})
	ctx := context.Background()

	_, err := tx.Exec("DELETE FROM openapi_entity WHERE table_code = 'product'")
	require.NoError(t, err)

	widget, err := s.Create(ctx, "product", map[string]any{"name": "Widget", "price": 10, "status": "active"})
	require.NoError(t, err)
	widgetId := widget["id"].(int64)
	assert.Equal(t, "Widget", widget["name"])
	assert.Equal(t, float64(10), widget["price"])
	querytest.AssertCount(t, tx, 1, "SELECT COUNT(*) FROM openapi_entity WHERE table_code = 'product'")

	_, err = s.Create(ctx, "product", map[string]any{"name": "Gadget", "price": 25, "status": "retired"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "product", widgetId)
	require.NoError(t, err)
	assert.Equal(t, widget["name"], got["name"])

	records, total, err := s.List(ctx, "product", entities.ListOptions{Filters: map[string]string{"status": "retired"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, "Gadget", records[0]["name"])

	records, total, err = s.List(ctx, "product", entities.ListOptions{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, records, 1)
	assert.Equal(t, widgetId, records[0]["id"])

	updated, err := s.Update(ctx, "product", widgetId, map[string]any{"price": 12})
	require.NoError(t, err)
	assert.Equal(t, "Widget", updated["name"])
	assert.Equal(t, float64(12), updated["price"])

	assert.NoError(t, s.Delete(ctx, "product", widgetId))
	_, err = s.Get(ctx, "product", widgetId)
	assert.ErrorIs(t, err, entities.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "product", widgetId), entities.ErrNotFound)
	_, err = s.Update(ctx, "product", widgetId, map[string]any{"price": 1})
	assert.ErrorIs(t, err, entities.ErrNotFound)

	_, err = s.Get(ctx, "supplier", 1)
	assert.ErrorIs(t, err, entities.ErrUnknownTable)
}
