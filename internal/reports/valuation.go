package reports

import (
	"context"
	"sort"
	"time"

	"go-pos-ledger/internal/apperr"

	"github.com/shopspring/decimal"
)

const uncategorized = "Uncategorized"

// ValuationItem is one stocked item in the valuation table.
type ValuationItem struct {
	ID        uint            `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	Category  string          `db:"category" json:"-"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	CostPrice decimal.Decimal `db:"cost_price" json:"cost_price"`
	SellPrice decimal.Decimal `db:"sell_price" json:"sell_price"`
	CostValue decimal.Decimal `json:"cost_value"`
	SellValue decimal.Decimal `json:"sell_value"`
}

// CategoryGroup is the valuation of one category.
type CategoryGroup struct {
	Category      string          `json:"category"`
	Items         []ValuationItem `json:"items"`
	TotalQuantity int64           `json:"total_quantity"`
	CostValue     decimal.Decimal `json:"cost_value"`
	SellValue     decimal.Decimal `json:"sell_value"`
}

type Valuation struct {
	CostValue        decimal.Decimal `json:"cost_value"`
	SellValue        decimal.Decimal `json:"sell_value"`
	PotentialProfit  decimal.Decimal `json:"potential_profit"`
	TotalItems       int             `json:"total_items"`
	TotalQuantity    int64           `json:"total_quantity"`
	MarginPercentage decimal.Decimal `json:"margin_percentage"`
	Categories       []CategoryGroup `json:"categories"`
}

// InventoryValuation values the current stock of every active item at cost and at sell price.
func (e *Engine) InventoryValuation(ctx context.Context) (*Valuation, error) {
	var items []ValuationItem
	err := e.rdb.SelectContext(ctx, &items, `SELECT id, name, category, quantity, cost_price, sell_price
		FROM stock_items
		WHERE deleted_at IS NULL
		ORDER BY name`)
	if err != nil {
		return nil, apperr.Storage("inventory valuation", err)
	}

	v := &Valuation{
		CostValue:        decimal.Zero,
		SellValue:        decimal.Zero,
		MarginPercentage: decimal.Zero,
		TotalItems:       len(items),
		Categories:       []CategoryGroup{},
	}
	groups := make(map[string]*CategoryGroup)
	for _, it := range items {
		qty := decimal.NewFromInt(it.Quantity)
		it.CostValue = it.CostPrice.Mul(qty).Round(2)
		it.SellValue = it.SellPrice.Mul(qty).Round(2)

		cat := it.Category
		if cat == "" {
			cat = uncategorized
		}
		g, ok := groups[cat]
		if !ok {
			g = &CategoryGroup{Category: cat, Items: []ValuationItem{}, CostValue: decimal.Zero, SellValue: decimal.Zero}
			groups[cat] = g
		}
		g.Items = append(g.Items, it)
		g.TotalQuantity += it.Quantity
		g.CostValue = g.CostValue.Add(it.CostValue)
		g.SellValue = g.SellValue.Add(it.SellValue)

		v.TotalQuantity += it.Quantity
		v.CostValue = v.CostValue.Add(it.CostValue)
		v.SellValue = v.SellValue.Add(it.SellValue)
	}
	for _, g := range groups {
		v.Categories = append(v.Categories, *g)
	}
	sort.Slice(v.Categories, func(i, j int) bool { return v.Categories[i].Category < v.Categories[j].Category })

	v.PotentialProfit = v.SellValue.Sub(v.CostValue)
	if !v.SellValue.IsZero() {
		v.MarginPercentage = v.PotentialProfit.Div(v.SellValue).Mul(hundred).Round(2)
	}
	return v, nil
}

// RecentEntry is a ledger entry with its item name, for the dashboard feed.
type RecentEntry struct {
	ID        uint            `db:"id" json:"id"`
	ItemID    uint            `db:"item_id" json:"item_id"`
	ItemName  string          `db:"item_name" json:"item_name"`
	Kind      string          `db:"kind" json:"kind"`
	Quantity  int             `db:"quantity" json:"quantity"`
	TotalSell decimal.Decimal `db:"total_sell" json:"total_sell"`
	Profit    decimal.Decimal `db:"profit" json:"profit"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

type Dashboard struct {
	TodaySales         decimal.Decimal `json:"today_sales"`
	TodayTransactions  int64           `json:"today_transactions"`
	TotalStockValue    decimal.Decimal `json:"total_stock_value"`
	LowStockCount      int64           `json:"low_stock_count"`
	RecentTransactions []RecentEntry   `json:"recent_transactions"`
}

// DashboardSummary gathers the figures shown on the back-office landing page.
func (e *Engine) DashboardSummary(ctx context.Context) (*Dashboard, error) {
	now := e.now().In(e.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, e.loc)
	today, err := e.SalesSummary(ctx, start, now)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		TodaySales:        today.TotalSales,
		TodayTransactions: today.TotalTransactions,
	}

	var stock decimal.Decimal
	err = e.rdb.GetContext(ctx, &stock, `SELECT COALESCE(SUM(cost_price * quantity), 0)
		FROM stock_items WHERE deleted_at IS NULL`)
	if err != nil {
		return nil, apperr.Storage("stock value", err)
	}
	d.TotalStockValue = stock.Round(2)

	err = e.rdb.GetContext(ctx, &d.LowStockCount, `SELECT COUNT(*)
		FROM stock_items WHERE deleted_at IS NULL AND quantity <= low_stock_threshold`)
	if err != nil {
		return nil, apperr.Storage("low stock count", err)
	}

	d.RecentTransactions = []RecentEntry{}
	err = e.rdb.SelectContext(ctx, &d.RecentTransactions, `SELECT e.id, e.item_id, i.name AS item_name,
		e.kind, e.quantity, e.total_sell, e.profit, e.created_at
		FROM ledger_entries e
		JOIN stock_items i ON i.id = e.item_id
		ORDER BY e.created_at DESC, e.id DESC
		LIMIT 10`)
	if err != nil {
		return nil, apperr.Storage("recent transactions", err)
	}
	return d, nil
}

// DefaultRange returns the current local month up to now, used when a caller
// asks for a summary without dates.
func (e *Engine) DefaultRange() (time.Time, time.Time) {
	now := e.now().In(e.loc)
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, e.loc), now
}

