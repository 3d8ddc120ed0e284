package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/pujcovna/internal/model"
)

func seedItem(t *testing.T, l *Loader) {
	t.Helper()
	item := model.Item{
		ID: "i1", Name: "Rifle", TotalQuantity: 1, AvailableQuantity: 1,
		Variants: []model.Variant{{ID: "v1", ItemID: "i1", Name: "A2", TotalQuantity: 2, AvailableQuantity: 2}},
	}
	_, err := Load(context.Background(), l, ItemKey("i1"), func(context.Context) (model.Item, error) {
		return item, nil
	})
	require.NoError(t, err)
}

func TestDropTarget(t *testing.T) {
	l := newTestLoader(t)
	seedItem(t, l)

	DropTarget(context.Background(), l, model.ItemTarget{ItemID: "i1"})

	fetched := false
	_, err := Load(context.Background(), l, ItemKey("i1"), func(context.Context) (model.Item, error) {
		fetched = true
		return model.Item{ID: "i1"}, nil
	})
	require.NoError(t, err)
	assert.True(t, fetched, "dropped key should be refetched")
}

func TestDropTargetClearsListings(t *testing.T) {
	l := newTestLoader(t)
	ctx := context.Background()
	seedItem(t, l)

	keys := append([]string{KeyItems}, ActiveLoanKeys()...)
	for _, key := range keys {
		_, err := Load(ctx, l, key, func(context.Context) ([]string, error) {
			return []string{"i1"}, nil
		})
		require.NoError(t, err)
	}

	DropTarget(ctx, l, model.VariantTarget{ItemID: "i1", VariantID: "v1"})

	for _, key := range append(keys, ItemKey("i1")) {
		fetched := false
		_, err := Load(ctx, l, key, func(context.Context) ([]string, error) {
			fetched = true
			return nil, nil
		})
		require.NoError(t, err)
		assert.True(t, fetched, "%s should be refetched", key)
	}
}
