package ledger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvents struct {
	mu  sync.Mutex
	all []events.Event
}

func (r *recordedEvents) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, e)
}

func (r *recordedEvents) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Kind, len(r.all))
	for i, e := range r.all {
		out[i] = e.Kind
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc    *Service
	db     *gorm.DB
	events *recordedEvents
	clock  *fakeClock
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(config.Database{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "ledger.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := openTestDB(t)
	h := &harness{
		db:     db,
		events: &recordedEvents{},
		clock:  &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)},
	}
	h.svc = New(db,
		WithPublisher(h.events),
		WithClock(h.clock.Now),
		WithCancelWindow(24*time.Hour),
		WithDefaultThreshold(5),
	)
	return h
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, money(want).Equal(got), "want %s, got %s", want, got.String())
}

// addItem creates an item with the given prices and quantity.
func (h *harness) addItem(t *testing.T, name, cost, sell string, qty int) *models.StockItem {
	t.Helper()
	item, err := h.svc.CreateItem(context.Background(), NewItem{
		Name:      name,
		CostPrice: money(cost),
		SellPrice: money(sell),
		Quantity:  qty,
	})
	require.NoError(t, err)
	return item
}

func (h *harness) quantity(t *testing.T, id uint) int {
	t.Helper()
	var item models.StockItem
	require.NoError(t, h.db.Unscoped().First(&item, id).Error)
	return item.Quantity
}
