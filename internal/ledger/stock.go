package ledger

import (
	"context"
	"errors"
	"strings"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Movement reasons written to the stock history.
const (
	ReasonInitial      = "initial"
	ReasonAdjustment   = "adjustment"
	ReasonSale         = "sale"
	ReasonRestock      = "restock"
	ReasonDamage       = "damage"
	ReasonReturn       = "return"
	ReasonSaleCancel   = "sale_cancel"
	ReasonDamageDelete = "damage_delete"
	ReasonSaleVoid     = "sale_void"
)

type movement struct {
	reason  string
	entryID *uint
	saleID  *uint
	actorID *uint
	note    string
}

// applyDelta is the only code path that changes StockItem.Quantity. A decrement
// is a conditional UPDATE guarded by quantity >= n, so the availability check
// and the write are one statement. On a shortfall the returned item carries the
// quantity that was actually available.
func (s *Service) applyDelta(tx *gorm.DB, itemID uint, delta int, includeArchived bool) (*models.StockItem, error) {
	if delta == 0 {
		return nil, apperr.Validation("Quantity change must not be zero")
	}

	scope := func() *gorm.DB {
		if includeArchived {
			return tx.Unscoped()
		}
		return tx
	}

	q := scope().Model(&models.StockItem{}).Where("id = ?", itemID)
	if delta < 0 {
		q = q.Where("quantity >= ?", -delta)
	}
	res := q.Updates(map[string]any{
		"quantity":   gorm.Expr("quantity + ?", delta),
		"updated_at": s.clock(),
	})
	if res.Error != nil {
		return nil, apperr.Storage("update stock", res.Error)
	}

	var item models.StockItem
	if err := scope().First(&item, itemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itemNotFound(itemID)
		}
		return nil, apperr.Storage("load item", err)
	}
	if res.RowsAffected == 0 {
		return &item, apperr.InsufficientStock(item.Quantity, -delta)
	}
	return &item, nil
}

// record appends the history row for a quantity change that already happened
// and queues the refresh events.
func (s *Service) record(tx *gorm.DB, box *outbox, item *models.StockItem, delta int, mv movement) error {
	m := models.StockMovement{
		ItemID:         item.ID,
		Delta:          delta,
		QuantityBefore: item.Quantity - delta,
		QuantityAfter:  item.Quantity,
		Reason:         mv.reason,
		EntryID:        mv.entryID,
		SaleID:         mv.saleID,
		ActorID:        mv.actorID,
		Note:           mv.note,
		CreatedAt:      s.clock(),
	}
	if err := tx.Create(&m).Error; err != nil {
		return apperr.Storage("record stock movement", err)
	}

	box.add(events.Event{
		Kind:     events.StockChanged,
		ItemID:   item.ID,
		Quantity: item.Quantity,
		Delta:    delta,
		Reason:   mv.reason,
	})
	if delta < 0 && m.QuantityAfter <= item.LowStockThreshold && m.QuantityBefore > item.LowStockThreshold {
		box.add(events.Event{
			Kind:      events.LowStock,
			ItemID:    item.ID,
			Quantity:  item.Quantity,
			Threshold: item.LowStockThreshold,
		})
	}
	return nil
}

// AdjustQuantity applies a manual stock correction (stock take, shrinkage found, etc).
func (s *Service) AdjustQuantity(ctx context.Context, id uint, delta int, reason string, actorID uint) (*models.StockItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validation("Adjustment reason is required")
	}

	var out *models.StockItem
	err := s.transact(ctx, "adjust quantity", func(tx *gorm.DB, box *outbox) error {
		item, err := s.applyDelta(tx, id, delta, false)
		if err != nil {
			if errors.Is(err, apperr.ErrInsufficientStock) {
				return apperr.New(apperr.KindInvariant, apperr.CodeNegativeStock,
					"Quantity cannot go below zero. Available: %d, Change: %d", item.Quantity, delta)
			}
			return err
		}
		out = item
		return s.record(tx, box, item, delta, movement{reason: ReasonAdjustment, actorID: optionalID(actorID), note: reason})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock adjusted", zap.Uint("item_id", id), zap.Int("delta", delta), zap.Int("quantity", out.Quantity))
	return out, nil
}

// Movements returns the newest stock history rows for an item.
func (s *Service) Movements(ctx context.Context, itemID uint, limit int) ([]models.StockMovement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows []models.StockMovement
	err := s.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Storage("list stock movements", err)
	}
	return rows, nil
}

func itemNotFound(id uint) *apperr.Error {
	return apperr.NotFound("Item %d not found", id)
}
