package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DamageStatusDefault is stored when RecordDamage gets no status.
const DamageStatusDefault = "damaged"

// SaleLine is the result of a single-item sale.
type SaleLine struct {
	Entry          models.LedgerEntry `json:"entry"`
	RemainingStock int                `json:"remaining_stock"`
}

// ReturnRequest brings sold units back into stock against the sale entry they came from.
type ReturnRequest struct {
	SaleEntryID uint   `json:"sale_entry_id" binding:"required"`
	ItemID      uint   `json:"item_id"`
	Quantity    int    `json:"quantity" binding:"required"`
	Reason      string `json:"reason"`
	ActorID     uint   `json:"-"`
}

// EntryFilter narrows ListEntries. Zero values match everything.
type EntryFilter struct {
	Kind   models.EntryKind
	ItemID uint
	SaleID uint
	From   time.Time
	To     time.Time
	Limit  int
}

// newEntry snapshots the item's prices into an entry. Restock and damage carry
// no revenue, so their profit is the negative cost.
func newEntry(kind models.EntryKind, item *models.StockItem, qty int, actorID uint) models.LedgerEntry {
	q := decimal.NewFromInt(int64(qty))
	e := models.LedgerEntry{
		ItemID:    item.ID,
		Kind:      kind,
		Quantity:  qty,
		UnitCost:  item.CostPrice,
		UnitPrice: item.SellPrice,
		TotalCost: item.CostPrice.Mul(q).Round(2),
		AccountID: optionalID(actorID),
	}
	if kind == models.EntrySale {
		e.TotalSell = item.SellPrice.Mul(q).Round(2)
	} else {
		e.TotalSell = decimal.Zero
	}
	e.Profit = e.TotalSell.Sub(e.TotalCost)
	return e
}

func requirePositive(qty int) error {
	if qty <= 0 {
		return apperr.Validation("Quantity must be greater than zero")
	}
	return nil
}

// RecordSale sells qty units of one item outside a checkout.
func (s *Service) RecordSale(ctx context.Context, itemID uint, qty int, cashierID uint) (*SaleLine, error) {
	if err := requirePositive(qty); err != nil {
		return nil, err
	}
	var out SaleLine
	err := s.transact(ctx, "record sale", func(tx *gorm.DB, box *outbox) error {
		item, err := s.applyDelta(tx, itemID, -qty, false)
		if err != nil {
			return err
		}
		entry := newEntry(models.EntrySale, item, qty, cashierID)
		entry.CreatedAt = s.clock()
		if err := tx.Create(&entry).Error; err != nil {
			return apperr.Storage("create sale entry", err)
		}
		out = SaleLine{Entry: entry, RemainingStock: item.Quantity}
		return s.record(tx, box, item, -qty, movement{reason: ReasonSale, entryID: &entry.ID, actorID: optionalID(cashierID)})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sale recorded",
		zap.Uint("entry_id", out.Entry.ID),
		zap.Uint("item_id", itemID),
		zap.Int("quantity", qty),
		zap.String("total", out.Entry.TotalSell.StringFixed(2)),
	)
	return &out, nil
}

func (s *Service) RecordRestock(ctx context.Context, itemID uint, qty int, userID uint) (*models.LedgerEntry, error) {
	if err := requirePositive(qty); err != nil {
		return nil, err
	}
	var entry models.LedgerEntry
	err := s.transact(ctx, "record restock", func(tx *gorm.DB, box *outbox) error {
		item, err := s.applyDelta(tx, itemID, qty, false)
		if err != nil {
			return err
		}
		entry = newEntry(models.EntryRestock, item, qty, userID)
		entry.CreatedAt = s.clock()
		if err := tx.Create(&entry).Error; err != nil {
			return apperr.Storage("create restock entry", err)
		}
		return s.record(tx, box, item, qty, movement{reason: ReasonRestock, entryID: &entry.ID, actorID: optionalID(userID)})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("restock recorded", zap.Uint("entry_id", entry.ID), zap.Uint("item_id", itemID), zap.Int("quantity", qty))
	return &entry, nil
}

// RecordDamage writes off qty units. status describes the damage (expired, broken, ...).
func (s *Service) RecordDamage(ctx context.Context, itemID uint, qty int, status string, actorID uint) (*models.LedgerEntry, error) {
	if err := requirePositive(qty); err != nil {
		return nil, err
	}
	status = strings.TrimSpace(status)
	if status == "" {
		status = DamageStatusDefault
	}
	var entry models.LedgerEntry
	err := s.transact(ctx, "record damage", func(tx *gorm.DB, box *outbox) error {
		item, err := s.applyDelta(tx, itemID, -qty, false)
		if err != nil {
			return err
		}
		entry = newEntry(models.EntryDamage, item, qty, actorID)
		entry.Status = status
		entry.CreatedAt = s.clock()
		if err := tx.Create(&entry).Error; err != nil {
			return apperr.Storage("create damage entry", err)
		}
		return s.record(tx, box, item, -qty, movement{reason: ReasonDamage, entryID: &entry.ID, actorID: optionalID(actorID), note: status})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("damage recorded", zap.Uint("entry_id", entry.ID), zap.Uint("item_id", itemID), zap.Int("quantity", qty))
	return &entry, nil
}

// DeleteDamage removes a damage entry and puts its units back on the shelf.
func (s *Service) DeleteDamage(ctx context.Context, entryID uint, actorID uint) error {
	return s.transact(ctx, "delete damage", func(tx *gorm.DB, box *outbox) error {
		entry, err := lockEntry(tx, entryID)
		if err != nil {
			return err
		}
		if entry.Kind != models.EntryDamage {
			return wrongType(entry, models.EntryDamage)
		}
		item, err := s.applyDelta(tx, entry.ItemID, entry.Quantity, true)
		if err != nil {
			return err
		}
		if err := s.record(tx, box, item, entry.Quantity, movement{reason: ReasonDamageDelete, entryID: &entry.ID, actorID: optionalID(actorID)}); err != nil {
			return err
		}
		if err := tx.Delete(entry).Error; err != nil {
			return apperr.Storage("delete damage entry", err)
		}
		return nil
	})
}

// RecordReturn refunds units of an earlier sale entry at the price they were sold for.
func (s *Service) RecordReturn(ctx context.Context, req ReturnRequest) (*models.LedgerEntry, error) {
	if err := requirePositive(req.Quantity); err != nil {
		return nil, err
	}
	var entry models.LedgerEntry
	err := s.transact(ctx, "record return", func(tx *gorm.DB, box *outbox) error {
		origin, err := lockEntry(tx, req.SaleEntryID)
		if err != nil {
			return err
		}
		if origin.Kind != models.EntrySale {
			return wrongType(origin, models.EntrySale)
		}
		if req.ItemID != 0 && req.ItemID != origin.ItemID {
			return apperr.Validation("Sale entry %d is for item %d, not item %d", origin.ID, origin.ItemID, req.ItemID)
		}

		returned, err := returnedQuantity(tx, origin.ID)
		if err != nil {
			return err
		}
		if left := origin.Quantity - returned; req.Quantity > left {
			return apperr.New(apperr.KindValidation, apperr.CodeReturnExceedsSale,
				"Return exceeds sale. Sold: %d, Already returned: %d, Requested: %d", origin.Quantity, returned, req.Quantity)
		}

		item, err := s.applyDelta(tx, origin.ItemID, req.Quantity, true)
		if err != nil {
			return err
		}

		q := decimal.NewFromInt(int64(req.Quantity))
		entry = models.LedgerEntry{
			ItemID:        origin.ItemID,
			Kind:          models.EntryReturn,
			Quantity:      req.Quantity,
			UnitCost:      origin.UnitCost,
			UnitPrice:     origin.UnitPrice,
			TotalCost:     origin.UnitCost.Mul(q).Round(2),
			TotalSell:     origin.UnitPrice.Mul(q).Round(2),
			AccountID:     optionalID(req.ActorID),
			OriginEntryID: &origin.ID,
			Reason:        strings.TrimSpace(req.Reason),
			CreatedAt:     s.clock(),
		}
		// A return gives back the margin the sale made.
		entry.Profit = entry.TotalCost.Sub(entry.TotalSell)
		if err := tx.Create(&entry).Error; err != nil {
			return apperr.Storage("create return entry", err)
		}
		return s.record(tx, box, item, req.Quantity, movement{
			reason:  ReasonReturn,
			entryID: &entry.ID,
			saleID:  origin.SaleID,
			actorID: optionalID(req.ActorID),
			note:    entry.Reason,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("return recorded", zap.Uint("entry_id", entry.ID), zap.Uint("origin_entry_id", req.SaleEntryID), zap.Int("quantity", req.Quantity))
	return &entry, nil
}

// CancelSale undoes a standalone sale entry created within the cancel window.
// Checkout lines are undone with VoidSale instead.
func (s *Service) CancelSale(ctx context.Context, entryID uint, userID uint) error {
	err := s.transact(ctx, "cancel sale", func(tx *gorm.DB, box *outbox) error {
		entry, err := lockEntry(tx, entryID)
		if err != nil {
			return err
		}
		if entry.Kind != models.EntrySale {
			return wrongType(entry, models.EntrySale)
		}
		if entry.SaleID != nil {
			return apperr.New(apperr.KindConflict, apperr.CodeBelongsToSale,
				"Entry %d is part of sale %d; void the sale instead", entry.ID, *entry.SaleID)
		}
		if err := s.withinWindow(entry.CreatedAt); err != nil {
			return err
		}
		returned, err := returnedQuantity(tx, entry.ID)
		if err != nil {
			return err
		}
		if returned > 0 {
			return apperr.New(apperr.KindConflict, apperr.CodeHasReturns,
				"Entry %d has %d returned unit(s) and cannot be cancelled", entry.ID, returned)
		}

		item, err := s.applyDelta(tx, entry.ItemID, entry.Quantity, true)
		if err != nil {
			return err
		}
		if err := s.record(tx, box, item, entry.Quantity, movement{reason: ReasonSaleCancel, entryID: &entry.ID, actorID: optionalID(userID)}); err != nil {
			return err
		}
		if err := tx.Delete(entry).Error; err != nil {
			return apperr.Storage("delete sale entry", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("sale cancelled", zap.Uint("entry_id", entryID), zap.Uint("user_id", userID))
	return nil
}

// ListEntries returns ledger entries newest first.
func (s *Service) ListEntries(ctx context.Context, f EntryFilter) ([]models.LedgerEntry, error) {
	q := s.db.WithContext(ctx).Model(&models.LedgerEntry{})
	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.ItemID != 0 {
		q = q.Where("item_id = ?", f.ItemID)
	}
	if f.SaleID != 0 {
		q = q.Where("sale_id = ?", f.SaleID)
	}
	if !f.From.IsZero() {
		q = q.Where("created_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("created_at <= ?", f.To.UTC())
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}

	var entries []models.LedgerEntry
	if err := q.Order("created_at DESC, id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, apperr.Storage("list entries", err)
	}
	return entries, nil
}

func (s *Service) withinWindow(created time.Time) error {
	age := s.clock().Sub(created)
	if age > s.cancelWindow {
		return apperr.New(apperr.KindConflict, apperr.CodeTooOld,
			"Sales older than %s cannot be cancelled", s.cancelWindow)
	}
	return nil
}

func lockEntry(tx *gorm.DB, id uint) (*models.LedgerEntry, error) {
	var e models.LedgerEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&e, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("Entry %d not found", id)
		}
		return nil, apperr.Storage("load entry", err)
	}
	return &e, nil
}

func returnedQuantity(tx *gorm.DB, originID uint) (int, error) {
	var n int64
	err := tx.Model(&models.LedgerEntry{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("kind = ? AND origin_entry_id = ?", models.EntryReturn, originID).
		Scan(&n).Error
	if err != nil {
		return 0, apperr.Storage("sum returns", err)
	}
	return int(n), nil
}

func wrongType(e *models.LedgerEntry, want models.EntryKind) *apperr.Error {
	return apperr.New(apperr.KindValidation, apperr.CodeWrongType,
		"Entry %d is a %s entry, expected %s", e.ID, e.Kind, want)
}
