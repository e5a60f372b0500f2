// Package reports derives sales and stock figures from the persisted ledger.
// Figures are recomputed on every call; daily and monthly reports are also
// stored as snapshots.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const topProductsLimit = 10

var hundred = decimal.NewFromInt(100)

type Engine struct {
	db  *gorm.DB
	rdb *sqlx.DB
	loc *time.Location
	now func() time.Time
	log *zap.Logger
}

type Option func(*Engine)

// WithLocation sets the zone that defines "a day" and "a month".
func WithLocation(loc *time.Location) Option { return func(e *Engine) { e.loc = loc } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// New shares the gorm connection pool with a sqlx handle for the read queries.
func New(db *gorm.DB, driver string, opts ...Option) (*Engine, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("reports: sql handle: %w", err)
	}
	e := &Engine{
		db:  db,
		rdb: sqlx.NewDb(sqlDB, database.SQLXDriverName(driver)),
		loc: time.UTC,
		now: time.Now,
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Summary holds the sale figures for a period.
type Summary struct {
	Start             time.Time       `json:"start"`
	End               time.Time       `json:"end"`
	TotalSales        decimal.Decimal `json:"total_sales"`
	TotalProfit       decimal.Decimal `json:"total_profit"`
	TotalTransactions int64           `json:"total_transactions"`
	AverageSale       decimal.Decimal `json:"average_sale"`
	ProfitMargin      decimal.Decimal `json:"profit_margin"`
}

type summaryRow struct {
	Count  int64           `db:"cnt"`
	Sales  decimal.Decimal `db:"sales"`
	Profit decimal.Decimal `db:"profit"`
}

// SalesSummary totals sale entries created in [start, end].
func (e *Engine) SalesSummary(ctx context.Context, start, end time.Time) (*Summary, error) {
	if end.Before(start) {
		return nil, apperr.Validation("End date must not be before start date")
	}
	var row summaryRow
	q := e.rdb.Rebind(`SELECT COUNT(*) AS cnt,
		COALESCE(SUM(total_sell), 0) AS sales,
		COALESCE(SUM(profit), 0) AS profit
		FROM ledger_entries
		WHERE kind = ? AND created_at >= ? AND created_at <= ?`)
	if err := e.rdb.GetContext(ctx, &row, q, models.EntrySale, start.UTC(), end.UTC()); err != nil {
		return nil, apperr.Storage("sales summary", err)
	}
	return newSummary(start, end, row), nil
}

func newSummary(start, end time.Time, row summaryRow) *Summary {
	s := &Summary{
		Start:             start,
		End:               end,
		TotalSales:        row.Sales.Round(2),
		TotalProfit:       row.Profit.Round(2),
		TotalTransactions: row.Count,
		AverageSale:       decimal.Zero,
		ProfitMargin:      decimal.Zero,
	}
	if row.Count > 0 {
		s.AverageSale = s.TotalSales.Div(decimal.NewFromInt(row.Count)).Round(2)
	}
	if !s.TotalSales.IsZero() {
		s.ProfitMargin = s.TotalProfit.Div(s.TotalSales).Mul(hundred).Round(2)
	}
	return s
}

// KindTotal aggregates the entries of one kind in a period.
type KindTotal struct {
	Kind      string          `db:"kind" json:"kind"`
	Entries   int64           `db:"entries" json:"entries"`
	Quantity  int64           `db:"quantity" json:"quantity"`
	TotalCost decimal.Decimal `db:"total_cost" json:"total_cost"`
	TotalSell decimal.Decimal `db:"total_sell" json:"total_sell"`
}

// ProductSales is one row of the best-sellers table.
type ProductSales struct {
	ItemID   uint            `db:"item_id" json:"item_id"`
	Name     string          `db:"name" json:"name"`
	Quantity int64           `db:"units" json:"quantity"`
	Revenue  decimal.Decimal `db:"revenue" json:"revenue"`
}

func (e *Engine) kindTotals(ctx context.Context, start, end time.Time) ([]KindTotal, error) {
	var rows []KindTotal
	q := e.rdb.Rebind(`SELECT kind,
		COUNT(*) AS entries,
		COALESCE(SUM(quantity), 0) AS quantity,
		COALESCE(SUM(total_cost), 0) AS total_cost,
		COALESCE(SUM(total_sell), 0) AS total_sell
		FROM ledger_entries
		WHERE created_at >= ? AND created_at < ?
		GROUP BY kind
		ORDER BY kind`)
	if err := e.rdb.SelectContext(ctx, &rows, q, start.UTC(), end.UTC()); err != nil {
		return nil, apperr.Storage("entry totals", err)
	}
	return rows, nil
}

// TopProducts ranks items by units sold in [start, end), ties by item id.
func (e *Engine) TopProducts(ctx context.Context, start, end time.Time, limit int) ([]ProductSales, error) {
	if limit <= 0 {
		limit = topProductsLimit
	}
	var rows []ProductSales
	q := e.rdb.Rebind(`SELECT e.item_id, i.name,
		SUM(e.quantity) AS units,
		SUM(e.total_sell) AS revenue
		FROM ledger_entries e
		JOIN stock_items i ON i.id = e.item_id
		WHERE e.kind = ? AND e.created_at >= ? AND e.created_at < ?
		GROUP BY e.item_id, i.name
		ORDER BY units DESC, e.item_id ASC
		LIMIT ?`)
	if err := e.rdb.SelectContext(ctx, &rows, q, models.EntrySale, start.UTC(), end.UTC(), limit); err != nil {
		return nil, apperr.Storage("top products", err)
	}
	for i := range rows {
		rows[i].Revenue = rows[i].Revenue.Round(2)
	}
	return rows, nil
}

func (e *Engine) discounts(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	q := e.rdb.Rebind(`SELECT COALESCE(SUM(discount), 0) FROM sales
		WHERE status = ? AND sale_time >= ? AND sale_time < ?`)
	if err := e.rdb.GetContext(ctx, &total, q, models.SaleCompleted, start.UTC(), end.UTC()); err != nil {
		return decimal.Zero, apperr.Storage("sum discounts", err)
	}
	return total.Round(2), nil
}

// DailyReport summarises the given calendar day and stores the snapshot.
func (e *Engine) DailyReport(ctx context.Context, date time.Time) (*models.Report, error) {
	d := date.In(e.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, e.loc)
	return e.snapshot(ctx, models.ReportDaily, start, start.AddDate(0, 0, 1), false)
}

// MonthlyReport summarises a calendar month, including the best sellers, and stores the snapshot.
func (e *Engine) MonthlyReport(ctx context.Context, year int, month time.Month) (*models.Report, error) {
	if month < time.January || month > time.December {
		return nil, apperr.Validation("Month must be between 1 and 12")
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, e.loc)
	return e.snapshot(ctx, models.ReportMonthly, start, start.AddDate(0, 1, 0), true)
}

func (e *Engine) snapshot(ctx context.Context, kind string, start, end time.Time, withTop bool) (*models.Report, error) {
	// Reports cover [start, end); the last representable instant closes the summary range.
	sum, err := e.SalesSummary(ctx, start, end.Add(-time.Nanosecond))
	if err != nil {
		return nil, err
	}
	kinds, err := e.kindTotals(ctx, start, end)
	if err != nil {
		return nil, err
	}
	discount, err := e.discounts(ctx, start, end)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string]any, len(kinds))
	for _, k := range kinds {
		byKind[k.Kind] = map[string]any{
			"entries":    k.Entries,
			"quantity":   k.Quantity,
			"total_cost": k.TotalCost.StringFixed(2),
			"total_sell": k.TotalSell.StringFixed(2),
		}
	}
	meta := map[string]any{
		"total_transactions": sum.TotalTransactions,
		"average_sale":       sum.AverageSale.StringFixed(2),
		"profit_margin":      sum.ProfitMargin.StringFixed(2),
		"discounts":          discount.StringFixed(2),
		"entries_by_kind":    byKind,
	}
	if withTop {
		top, err := e.TopProducts(ctx, start, end, topProductsLimit)
		if err != nil {
			return nil, err
		}
		rows := make([]map[string]any, len(top))
		for i, p := range top {
			rows[i] = map[string]any{
				"item_id":  p.ItemID,
				"name":     p.Name,
				"quantity": p.Quantity,
				"revenue":  p.Revenue.StringFixed(2),
			}
		}
		meta["top_products"] = rows
	}

	report := &models.Report{
		Type:        kind,
		Date:        start.UTC(),
		TotalSales:  sum.TotalSales,
		TotalProfit: sum.TotalProfit,
		GeneratedAt: e.now().UTC(),
		Metadata:    meta,
	}
	if err := e.db.WithContext(ctx).Create(report).Error; err != nil {
		return nil, apperr.Storage("save report", err)
	}
	e.log.Info("report generated",
		zap.String("type", kind),
		zap.Time("date", start),
		zap.String("total_sales", sum.TotalSales.StringFixed(2)),
	)
	return report, nil
}

// ListReports returns stored snapshots newest first, optionally of one type.
func (e *Engine) ListReports(ctx context.Context, kind string, limit int) ([]models.Report, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := e.db.WithContext(ctx).Model(&models.Report{})
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	var out []models.Report
	if err := q.Order("generated_at DESC, id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, apperr.Storage("list reports", err)
	}
	return out, nil
}

func (e *Engine) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	var r models.Report
	if err := e.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Report %d not found", id)
		}
		return nil, apperr.Storage("get report", err)
	}
	return &r, nil
}

// DeleteReport removes a stored snapshot. Snapshots are otherwise never modified.
func (e *Engine) DeleteReport(ctx context.Context, id uint) error {
	res := e.db.WithContext(ctx).Delete(&models.Report{}, id)
	if res.Error != nil {
		return apperr.Storage("delete report", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Report %d not found", id)
	}
	return nil
}
