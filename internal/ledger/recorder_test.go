package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordSale_Widget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 20)

	line, err := h.svc.RecordSale(ctx, item.ID, 5, 7)
	require.NoError(t, err)
	assertMoney(t, "50", line.Entry.TotalCost)
	assertMoney(t, "75", line.Entry.TotalSell)
	assertMoney(t, "25", line.Entry.Profit)
	assert.Equal(t, 15, line.RemainingStock)
	assert.Equal(t, models.EntrySale, line.Entry.Kind)
	require.NotNil(t, line.Entry.AccountID)
	assert.Equal(t, uint(7), *line.Entry.AccountID)

	_, err = h.svc.RecordSale(ctx, item.ID, 20, 7)
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.EqualError(t, err, "Insufficient stock. Available: 15, Requested: 20")
	assert.Equal(t, 15, h.quantity(t, item.ID))

	entries, err := h.svc.ListEntries(ctx, EntryFilter{Kind: models.EntrySale})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRecordSale_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 2)

	_, err := h.svc.RecordSale(ctx, item.ID, 0, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = h.svc.RecordSale(ctx, 404, 1, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordSale_ConcurrentSalesNeverOversell(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.RecordSale(ctx, item.ID, 3, 1)
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.KindConflict:
			assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
			short++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, short)
	assert.Equal(t, 2, h.quantity(t, item.ID))
}

func TestRecordSale_PublishesLowStockOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 8)
	h.events.all = nil

	_, err := h.svc.RecordSale(ctx, item.ID, 3, 1) // 8 -> 5, crosses threshold 5
	require.NoError(t, err)
	_, err = h.svc.RecordSale(ctx, item.ID, 1, 1) // already low
	require.NoError(t, err)

	assert.Equal(t, []events.Kind{events.StockChanged, events.LowStock, events.StockChanged}, h.events.kinds())
}

func TestRecordRestock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 1)

	entry, err := h.svc.RecordRestock(ctx, item.ID, 4, 2)
	require.NoError(t, err)
	assertMoney(t, "40", entry.TotalCost)
	assertMoney(t, "0", entry.TotalSell)
	assertMoney(t, "-40", entry.Profit)
	assert.Equal(t, 5, h.quantity(t, item.ID))

	_, err = h.svc.RecordRestock(ctx, 404, 4, 2)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordDamage_AndDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 6)

	entry, err := h.svc.RecordDamage(ctx, item.ID, 2, "", 1)
	require.NoError(t, err)
	assert.Equal(t, DamageStatusDefault, entry.Status)
	assertMoney(t, "0", entry.TotalSell)
	assertMoney(t, "-20", entry.Profit)
	assert.Equal(t, 4, h.quantity(t, item.ID))

	_, err = h.svc.RecordDamage(ctx, item.ID, 5, "broken", 1)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	require.NoError(t, h.svc.DeleteDamage(ctx, entry.ID, 1))
	assert.Equal(t, 6, h.quantity(t, item.ID))

	assert.ErrorIs(t, h.svc.DeleteDamage(ctx, entry.ID, 1), apperr.ErrNotFound)

	sale, err := h.svc.RecordSale(ctx, item.ID, 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.DeleteDamage(ctx, sale.Entry.ID, 1), apperr.ErrWrongType)

	moves, err := h.svc.Movements(ctx, item.ID, 0)
	require.NoError(t, err)
	reasons := make([]string, len(moves))
	for i, m := range moves {
		reasons[i] = m.Reason
	}
	assert.Equal(t, []string{ReasonSale, ReasonDamageDelete, ReasonDamage, ReasonInitial}, reasons)
}

func TestRecordReturn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 10)
	sale, err := h.svc.RecordSale(ctx, item.ID, 3, 1)
	require.NoError(t, err)

	// Price changes after the sale do not affect the refund.
	sell := money("30")
	_, err = h.svc.UpdateItem(ctx, item.ID, ItemPatch{SellPrice: &sell})
	require.NoError(t, err)

	ret, err := h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: sale.Entry.ID, ItemID: item.ID, Quantity: 2, Reason: "faulty", ActorID: 1})
	require.NoError(t, err)
	assert.Equal(t, models.EntryReturn, ret.Kind)
	assertMoney(t, "30", ret.TotalSell)
	assertMoney(t, "20", ret.TotalCost)
	assertMoney(t, "-10", ret.Profit)
	require.NotNil(t, ret.OriginEntryID)
	assert.Equal(t, sale.Entry.ID, *ret.OriginEntryID)
	assert.Equal(t, 9, h.quantity(t, item.ID))

	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: sale.Entry.ID, Quantity: 2})
	assert.ErrorIs(t, err, apperr.ErrReturnExceedsSale)

	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: sale.Entry.ID, ItemID: item.ID + 1, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: 404, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	restock, err := h.svc.RecordRestock(ctx, item.ID, 1, 1)
	require.NoError(t, err)
	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: restock.ID, Quantity: 1})
	assert.ErrorIs(t, err, apperr.ErrWrongType)

	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: sale.Entry.ID, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 11, h.quantity(t, item.ID))
}

func TestCancelSale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 10)

	sale, err := h.svc.RecordSale(ctx, item.ID, 4, 1)
	require.NoError(t, err)
	h.clock.Advance(23 * time.Hour)

	require.NoError(t, h.svc.CancelSale(ctx, sale.Entry.ID, 2))
	assert.Equal(t, 10, h.quantity(t, item.ID))
	entries, err := h.svc.ListEntries(ctx, EntryFilter{ItemID: item.ID})
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, h.svc.CancelSale(ctx, sale.Entry.ID, 2), apperr.ErrNotFound)
}

func TestCancelSale_Rejects(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 10)

	restock, err := h.svc.RecordRestock(ctx, item.ID, 1, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.CancelSale(ctx, restock.ID, 1), apperr.ErrWrongType)

	returned, err := h.svc.RecordSale(ctx, item.ID, 2, 1)
	require.NoError(t, err)
	_, err = h.svc.RecordReturn(ctx, ReturnRequest{SaleEntryID: returned.Entry.ID, Quantity: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.CancelSale(ctx, returned.Entry.ID, 1), apperr.ErrHasReturns)

	receipt, err := h.svc.Checkout(ctx, CheckoutRequest{Lines: []Line{{ItemID: item.ID, Quantity: 1}}, CashierID: 1, Payment: Payment{AmountPaid: money("15")}})
	require.NoError(t, err)
	assert.ErrorIs(t, h.svc.CancelSale(ctx, receipt.Lines[0].EntryID, 1), apperr.ErrBelongsToSale)

	old, err := h.svc.RecordSale(ctx, item.ID, 1, 1)
	require.NoError(t, err)
	h.clock.Advance(24*time.Hour + time.Second)
	before := h.quantity(t, item.ID)
	assert.ErrorIs(t, h.svc.CancelSale(ctx, old.Entry.ID, 1), apperr.ErrTooOld)
	assert.Equal(t, before, h.quantity(t, item.ID))
}

func TestCancelSale_RestoresArchivedItem(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := h.addItem(t, "Widget", "10", "15", 5)
	sale, err := h.svc.RecordSale(ctx, item.ID, 2, 1)
	require.NoError(t, err)

	out, err := h.svc.DeleteItem(ctx, item.ID)
	require.NoError(t, err)
	require.True(t, out.Archived)

	require.NoError(t, h.svc.CancelSale(ctx, sale.Entry.ID, 1))
	assert.Equal(t, 5, h.quantity(t, item.ID))
}

func TestListEntries_Filters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.addItem(t, "A", "1", "2", 10)
	b := h.addItem(t, "B", "1", "2", 10)

	_, err := h.svc.RecordSale(ctx, a.ID, 1, 1)
	require.NoError(t, err)
	h.clock.Advance(time.Hour)
	_, err = h.svc.RecordSale(ctx, b.ID, 1, 1)
	require.NoError(t, err)
	_, err = h.svc.RecordRestock(ctx, b.ID, 1, 1)
	require.NoError(t, err)

	all, err := h.svc.ListEntries(ctx, EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	forB, err := h.svc.ListEntries(ctx, EntryFilter{ItemID: b.ID, Kind: models.EntrySale})
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, b.ID, forB[0].ItemID)

	early, err := h.svc.ListEntries(ctx, EntryFilter{To: h.clock.Now().Add(-30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, early, 1)
	assert.Equal(t, a.ID, early[0].ItemID)
}
