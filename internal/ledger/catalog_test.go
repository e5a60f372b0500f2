package ledger

import (
	"context"
	"testing"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	item, err := h.svc.CreateItem(ctx, NewItem{
		Name:      "  Widget ",
		CostPrice: money("10"),
		SellPrice: money("15"),
		Quantity:  20,
	})
	require.NoError(t, err)
	assert.NotZero(t, item.ID)
	assert.Equal(t, "Widget", item.Name)
	assert.Equal(t, models.CategoryRetail, item.Category)
	assert.Equal(t, 5, item.LowStockThreshold)
	assert.Equal(t, 20, item.Quantity)

	moves, err := h.svc.Movements(ctx, item.ID, 0)
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, ReasonInitial, moves[0].Reason)
	assert.Equal(t, 0, moves[0].QuantityBefore)
	assert.Equal(t, 20, moves[0].QuantityAfter)
}

func TestCreateItem_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addItem(t, "Widget", "10", "15", 1)
	negative := -1

	tests := []struct {
		name string
		in   NewItem
		want error
	}{
		{"equal prices", NewItem{Name: "Gadget", CostPrice: money("10"), SellPrice: money("10")}, apperr.ErrPriceInversion},
		{"sell below cost", NewItem{Name: "Gadget", CostPrice: money("10"), SellPrice: money("9.99")}, apperr.ErrPriceInversion},
		{"negative cost", NewItem{Name: "Gadget", CostPrice: money("-1"), SellPrice: money("2")}, apperr.ErrInvalidInput},
		{"blank name", NewItem{Name: "   ", CostPrice: money("1"), SellPrice: money("2")}, apperr.ErrInvalidInput},
		{"negative quantity", NewItem{Name: "Gadget", CostPrice: money("1"), SellPrice: money("2"), Quantity: -3}, apperr.ErrInvalidInput},
		{"negative threshold", NewItem{Name: "Gadget", CostPrice: money("1"), SellPrice: money("2"), LowStockThreshold: &negative}, apperr.ErrInvalidInput},
		{"duplicate name", NewItem{Name: "Widget", CostPrice: money("1"), SellPrice: money("2")}, apperr.ErrDuplicateName},
		{"duplicate name other case", NewItem{Name: "WIDGET", CostPrice: money("1"), SellPrice: money("2")}, apperr.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.CreateItem(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	items, err := h.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestUpdateItem_ValidatesMergedPrices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 3)

	// Only cost supplied, but it would meet the stored sell price.
	cost := money("15")
	_, err := h.svc.UpdateItem(ctx, item.ID, ItemPatch{CostPrice: &cost})
	assert.ErrorIs(t, err, apperr.ErrPriceInversion)

	sell := money("20")
	updated, err := h.svc.UpdateItem(ctx, item.ID, ItemPatch{CostPrice: &cost, SellPrice: &sell})
	require.NoError(t, err)
	assertMoney(t, "15", updated.CostPrice)
	assertMoney(t, "20", updated.SellPrice)
	assert.Equal(t, 3, updated.Quantity)
}

func TestUpdateItem_NameAndNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addItem(t, "Widget", "1", "2", 0)
	h.addItem(t, "Gadget", "1", "2", 0)

	name := "gadget"
	_, err := h.svc.UpdateItem(ctx, a.ID, ItemPatch{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)

	same := "WIDGET"
	renamed, err := h.svc.UpdateItem(ctx, a.ID, ItemPatch{Name: &same})
	require.NoError(t, err)
	assert.Equal(t, "WIDGET", renamed.Name)

	_, err = h.svc.UpdateItem(ctx, 9999, ItemPatch{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAdjustQuantity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "1", "2", 4)

	got, err := h.svc.AdjustQuantity(ctx, item.ID, -4, "stock take", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)

	_, err = h.svc.AdjustQuantity(ctx, item.ID, -1, "stock take", 1)
	assert.ErrorIs(t, err, apperr.ErrNegativeStock)
	assert.Equal(t, apperr.KindInvariant, apperr.KindOf(err))
	assert.Equal(t, 0, h.quantity(t, item.ID))

	_, err = h.svc.AdjustQuantity(ctx, item.ID, 2, "", 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.svc.AdjustQuantity(ctx, 9999, 2, "found", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteItem_HardDeleteWithoutHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "1", "2", 4)

	out, err := h.svc.DeleteItem(ctx, item.ID)
	require.NoError(t, err)
	assert.False(t, out.Archived)

	var n int64
	require.NoError(t, h.db.Unscoped().Model(&models.StockItem{}).Where("id = ?", item.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = h.svc.DeleteItem(ctx, item.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// The name is free again.
	h.addItem(t, "Widget", "1", "2", 0)
}

func TestDeleteItem_ArchivesReferencedItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 4)
	_, err := h.svc.RecordSale(ctx, item.ID, 1, 1)
	require.NoError(t, err)

	out, err := h.svc.DeleteItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, out.Archived)

	_, err = h.svc.GetItem(ctx, item.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	items, err := h.svc.ListItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = h.svc.RecordSale(ctx, item.ID, 1, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = h.svc.RecordRestock(ctx, item.ID, 1, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.svc.CreateItem(ctx, NewItem{Name: "Widget", CostPrice: money("1"), SellPrice: money("2")})
	assert.ErrorIs(t, err, apperr.ErrDuplicateName)
}

func TestSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.svc.CreateItem(ctx, NewItem{Name: "Blue Pen", Description: "Ballpoint", CostPrice: money("1"), SellPrice: money("2")})
	require.NoError(t, err)
	_, err = h.svc.CreateItem(ctx, NewItem{Name: "Notebook", Description: "A5 ruled, pen loop", CostPrice: money("3"), SellPrice: money("5")})
	require.NoError(t, err)
	h.addItem(t, "Stapler", "4", "6", 1)
	h.addItem(t, "100% Cotton Rag", "1", "2", 1)

	names := func(items []models.StockItem) []string {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = it.Name
		}
		return out
	}

	got, err := h.svc.Search(ctx, "PEN")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Blue Pen", "Notebook"}, names(got))

	got, err = h.svc.Search(ctx, "ballp")
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue Pen"}, names(got))

	got, err = h.svc.Search(ctx, "0%")
	require.NoError(t, err)
	assert.Equal(t, []string{"100% Cotton Rag"}, names(got))

	got, err = h.svc.Search(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = h.svc.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestListLowStock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	three := 3
	_, err := h.svc.CreateItem(ctx, NewItem{Name: "Low", CostPrice: money("1"), SellPrice: money("2"), Quantity: 3, LowStockThreshold: &three})
	require.NoError(t, err)
	h.addItem(t, "AtDefault", "1", "2", 5)
	h.addItem(t, "Plenty", "1", "2", 50)

	got, err := h.svc.ListLowStock(ctx, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Low", got[0].Name)
	assert.Equal(t, "AtDefault", got[1].Name)

	override := 49
	got, err = h.svc.ListLowStock(ctx, &override)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	override = 50
	got, err = h.svc.ListLowStock(ctx, &override)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
