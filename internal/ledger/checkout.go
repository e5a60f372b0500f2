package ledger

import (
	"context"
	"errors"
	"time"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/models"
	"go-pos-ledger/internal/utils"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Payment struct {
	Method     models.PaymentMethod `json:"method"`
	Discount   decimal.Decimal      `json:"discount"`
	AmountPaid decimal.Decimal      `json:"amount_paid"`
}

type CheckoutRequest struct {
	Lines     []Line  `json:"lines" binding:"required"`
	Payment   Payment `json:"payment"`
	CashierID uint    `json:"-"`
}

type ReceiptLine struct {
	EntryID   uint            `json:"entry_id"`
	ItemID    uint            `json:"item_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// Receipt is everything the till prints after a checkout.
type Receipt struct {
	SaleID        uint                 `json:"sale_id"`
	InvoiceCode   string               `json:"invoice_code"`
	Lines         []ReceiptLine        `json:"lines"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Discount      decimal.Decimal      `json:"discount"`
	Total         decimal.Decimal      `json:"total"`
	Profit        decimal.Decimal      `json:"profit"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	Change        decimal.Decimal      `json:"change"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	CashierID     uint                 `json:"cashier_id"`
	Timestamp     time.Time            `json:"timestamp"`
}

func validMethod(m models.PaymentMethod) bool {
	switch m {
	case models.PaymentCash, models.PaymentMobileMoney, models.PaymentCard:
		return true
	}
	return false
}

// Checkout sells a whole cart as one sale. Either every line is applied or
// none is: lines are checked up front and again, atomically, at write time.
// Any failing line aborts the sale with a PartialFailure listing all of them.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*Receipt, error) {
	if len(req.Lines) == 0 {
		return nil, apperr.Validation("Cart is empty")
	}
	pay := req.Payment
	if pay.Method == "" {
		pay.Method = models.PaymentCash
	}
	if !validMethod(pay.Method) {
		return nil, apperr.Validation("Unknown payment method %q", pay.Method)
	}
	if pay.Discount.IsNegative() {
		return nil, apperr.Validation("Discount cannot be negative")
	}
	if pay.AmountPaid.IsNegative() {
		return nil, apperr.Validation("Amount paid cannot be negative")
	}

	av, err := s.CheckAvailability(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	if !av.AllAvailable {
		s.log.Info("checkout rejected", zap.Int("issues", len(av.Issues)))
		return nil, apperr.PartialFailure(av.Issues)
	}

	lines, _ := mergeLines(req.Lines)
	var receipt Receipt
	err = s.transact(ctx, "checkout", func(tx *gorm.DB, box *outbox) error {
		now := s.clock()

		items := make([]*models.StockItem, len(lines))
		var issues []apperr.Issue
		for i, l := range lines {
			item, err := s.applyDelta(tx, l.ItemID, -l.Quantity, false)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				issues = append(issues, apperr.Issue{ItemID: l.ItemID, Reason: IssueNotFound, Requested: l.Quantity})
			case errors.Is(err, apperr.ErrInsufficientStock):
				issues = append(issues, apperr.Issue{ItemID: l.ItemID, Reason: IssueInsufficient, Requested: l.Quantity, Available: item.Quantity})
			case err != nil:
				return err
			default:
				items[i] = item
			}
		}
		if len(issues) > 0 {
			return apperr.PartialFailure(issues)
		}

		entries := make([]models.LedgerEntry, len(lines))
		subtotal, lineProfit := decimal.Zero, decimal.Zero
		for i, l := range lines {
			entries[i] = newEntry(models.EntrySale, items[i], l.Quantity, req.CashierID)
			entries[i].CreatedAt = now
			subtotal = subtotal.Add(entries[i].TotalSell)
			lineProfit = lineProfit.Add(entries[i].Profit)
		}

		discount := pay.Discount.Round(2)
		if discount.GreaterThan(subtotal) {
			return apperr.Validation("Discount (%s) cannot exceed subtotal (%s)", discount.StringFixed(2), subtotal.StringFixed(2))
		}
		total := subtotal.Sub(discount)
		paid := pay.AmountPaid.Round(2)
		if paid.IsZero() && pay.Method != models.PaymentCash {
			paid = total
		}
		if paid.LessThan(total) {
			return apperr.Validation("Amount paid (%s) is less than total (%s)", paid.StringFixed(2), total.StringFixed(2))
		}

		sale := models.Sale{
			InvoiceCode:   utils.GenInvoiceCode(now),
			CashierID:     req.CashierID,
			Subtotal:      subtotal,
			Discount:      discount,
			Total:         total,
			Profit:        lineProfit.Sub(discount),
			AmountPaid:    paid,
			Change:        paid.Sub(total),
			PaymentMethod: pay.Method,
			Status:        models.SaleCompleted,
			SaleTime:      now,
		}
		if err := tx.Omit(clause.Associations).Create(&sale).Error; err != nil {
			return apperr.Storage("create sale", err)
		}

		for i := range entries {
			entries[i].SaleID = &sale.ID
		}
		if err := tx.Create(&entries).Error; err != nil {
			return apperr.Storage("create sale entries", err)
		}

		receipt = Receipt{
			SaleID:        sale.ID,
			InvoiceCode:   sale.InvoiceCode,
			Lines:         make([]ReceiptLine, len(entries)),
			Subtotal:      sale.Subtotal,
			Discount:      sale.Discount,
			Total:         sale.Total,
			Profit:        sale.Profit,
			AmountPaid:    sale.AmountPaid,
			Change:        sale.Change,
			PaymentMethod: sale.PaymentMethod,
			CashierID:     sale.CashierID,
			Timestamp:     now,
		}
		for i, e := range entries {
			receipt.Lines[i] = ReceiptLine{
				EntryID:   e.ID,
				ItemID:    e.ItemID,
				Name:      items[i].Name,
				Quantity:  e.Quantity,
				UnitPrice: e.UnitPrice,
				LineTotal: e.TotalSell,
			}
			mv := movement{reason: ReasonSale, entryID: &entries[i].ID, saleID: &sale.ID, actorID: optionalID(req.CashierID)}
			if err := s.record(tx, box, items[i], -e.Quantity, mv); err != nil {
				return err
			}
		}

		box.add(events.Event{Kind: events.SaleCompleted, SaleID: sale.ID, At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout completed",
		zap.Uint("sale_id", receipt.SaleID),
		zap.String("invoice", receipt.InvoiceCode),
		zap.Int("lines", len(receipt.Lines)),
		zap.String("total", receipt.Total.StringFixed(2)),
	)
	return &receipt, nil
}

// VoidSale reverses a whole checkout inside the cancel window: every line's
// units go back to stock, the line entries are removed and the sale header
// stays behind marked voided.
func (s *Service) VoidSale(ctx context.Context, saleID uint, userID uint) (*models.Sale, error) {
	var sale models.Sale
	err := s.transact(ctx, "void sale", func(tx *gorm.DB, box *outbox) error {
		if err := lockSale(tx, saleID, &sale); err != nil {
			return err
		}
		if sale.Status == models.SaleVoided {
			return apperr.New(apperr.KindConflict, apperr.CodeAlreadyVoided, "Sale %d is already voided", saleID)
		}
		if err := s.withinWindow(sale.SaleTime); err != nil {
			return err
		}

		var lines []models.LedgerEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sale_id = ? AND kind = ?", saleID, models.EntrySale).
			Order("id ASC").
			Find(&lines).Error; err != nil {
			return apperr.Storage("load sale lines", err)
		}
		ids := make([]uint, len(lines))
		for i, l := range lines {
			ids[i] = l.ID
		}

		if len(ids) > 0 {
			var returns int64
			if err := tx.Model(&models.LedgerEntry{}).
				Where("kind = ? AND origin_entry_id IN ?", models.EntryReturn, ids).
				Count(&returns).Error; err != nil {
				return apperr.Storage("count returns", err)
			}
			if returns > 0 {
				return apperr.New(apperr.KindConflict, apperr.CodeHasReturns,
					"Sale %d has returned items and cannot be voided", saleID)
			}
		}

		for i := range lines {
			l := &lines[i]
			item, err := s.applyDelta(tx, l.ItemID, l.Quantity, true)
			if err != nil {
				return err
			}
			mv := movement{reason: ReasonSaleVoid, entryID: &l.ID, saleID: &sale.ID, actorID: optionalID(userID)}
			if err := s.record(tx, box, item, l.Quantity, mv); err != nil {
				return err
			}
		}
		if len(ids) > 0 {
			if err := tx.Where("id IN ?", ids).Delete(&models.LedgerEntry{}).Error; err != nil {
				return apperr.Storage("delete sale lines", err)
			}
		}

		now := s.clock()
		if err := tx.Model(&sale).Updates(map[string]any{
			"status":       models.SaleVoided,
			"voided_at":    now,
			"voided_by_id": optionalID(userID),
		}).Error; err != nil {
			return apperr.Storage("mark sale voided", err)
		}
		sale.Status = models.SaleVoided
		sale.VoidedAt = &now
		sale.VoidedByID = optionalID(userID)

		box.add(events.Event{Kind: events.SaleVoided, SaleID: sale.ID, At: now})
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sale voided", zap.Uint("sale_id", saleID), zap.Uint("user_id", userID))
	return &sale, nil
}

// DeleteSale purges a voided sale header. Completed sales must be voided first
// so their stock is restored.
func (s *Service) DeleteSale(ctx context.Context, saleID uint) error {
	err := s.transact(ctx, "delete sale", func(tx *gorm.DB, box *outbox) error {
		var sale models.Sale
		if err := lockSale(tx, saleID, &sale); err != nil {
			return err
		}
		if sale.Status != models.SaleVoided {
			return apperr.New(apperr.KindConflict, apperr.CodeNotVoided, "Sale %d must be voided before it can be deleted", saleID)
		}
		if err := tx.Delete(&sale).Error; err != nil {
			return apperr.Storage("delete sale", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("sale deleted", zap.Uint("sale_id", saleID))
	return nil
}

func (s *Service) GetSale(ctx context.Context, saleID uint) (*models.Sale, error) {
	var sale models.Sale
	err := s.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&sale, saleID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Sale %d not found", saleID)
		}
		return nil, apperr.Storage("get sale", err)
	}
	return &sale, nil
}

// ListSales returns sale headers newest first.
func (s *Service) ListSales(ctx context.Context, limit int) ([]models.Sale, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var sales []models.Sale
	if err := s.db.WithContext(ctx).Order("sale_time DESC, id DESC").Limit(limit).Find(&sales).Error; err != nil {
		return nil, apperr.Storage("list sales", err)
	}
	return sales, nil
}

func lockSale(tx *gorm.DB, id uint, sale *models.Sale) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(sale, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("Sale %d not found", id)
		}
		return apperr.Storage("load sale", err)
	}
	return nil
}
