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

// NewItem is the input for CreateItem. A nil threshold uses the service default.
type NewItem struct {
	Name              string          `json:"name" binding:"required"`
	Category          string          `json:"category"`
	Description       string          `json:"description"`
	CostPrice         decimal.Decimal `json:"cost_price"`
	SellPrice         decimal.Decimal `json:"sell_price"`
	Quantity          int             `json:"quantity"`
	LowStockThreshold *int            `json:"low_stock_threshold"`
	ExpiryDate        *time.Time      `json:"expiry_date"`
}

// ItemPatch holds the fields UpdateItem may change; nil means unchanged.
// Quantity is deliberately absent: it only moves through the ledger.
type ItemPatch struct {
	Name              *string          `json:"name"`
	Category          *string          `json:"category"`
	Description       *string          `json:"description"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	SellPrice         *decimal.Decimal `json:"sell_price"`
	LowStockThreshold *int             `json:"low_stock_threshold"`
	ExpiryDate        *time.Time       `json:"expiry_date"`
}

// DeleteOutcome tells the caller whether the item was removed or archived.
type DeleteOutcome struct {
	ID       uint `json:"id"`
	Archived bool `json:"archived"`
}

func (s *Service) CreateItem(ctx context.Context, in NewItem) (*models.StockItem, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("Item name is required")
	}
	if in.Quantity < 0 {
		return nil, apperr.Validation("Quantity cannot be negative")
	}
	if err := validatePrices(in.CostPrice, in.SellPrice); err != nil {
		return nil, err
	}
	threshold := s.defaultThreshold
	if in.LowStockThreshold != nil {
		threshold = *in.LowStockThreshold
	}
	if threshold < 0 {
		return nil, apperr.Validation("Low stock threshold cannot be negative")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		category = models.CategoryRetail
	}

	item := &models.StockItem{
		Name:              name,
		Category:          category,
		Description:       strings.TrimSpace(in.Description),
		CostPrice:         in.CostPrice.Round(2),
		SellPrice:         in.SellPrice.Round(2),
		Quantity:          in.Quantity,
		LowStockThreshold: threshold,
		ExpiryDate:        in.ExpiryDate,
	}

	err := s.transact(ctx, "create item", func(tx *gorm.DB, box *outbox) error {
		if err := ensureNameFree(tx, name, 0); err != nil {
			return err
		}
		if err := tx.Create(item).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateName(name)
			}
			return apperr.Storage("create item", err)
		}
		if item.Quantity > 0 {
			return s.record(tx, box, item, item.Quantity, movement{reason: ReasonInitial})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("item created", zap.Uint("item_id", item.ID), zap.String("name", item.Name))
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, id uint, p ItemPatch) (*models.StockItem, error) {
	var out models.StockItem
	err := s.transact(ctx, "update item", func(tx *gorm.DB, box *outbox) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&out, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return itemNotFound(id)
			}
			return apperr.Storage("load item", err)
		}

		updates := map[string]any{}
		if p.Name != nil {
			name := strings.TrimSpace(*p.Name)
			if name == "" {
				return apperr.Validation("Item name is required")
			}
			if !strings.EqualFold(name, out.Name) {
				if err := ensureNameFree(tx, name, id); err != nil {
					return err
				}
			}
			updates["name"] = name
		}
		if p.Category != nil {
			category := strings.TrimSpace(*p.Category)
			if category == "" {
				category = models.CategoryRetail
			}
			updates["category"] = category
		}
		if p.Description != nil {
			updates["description"] = strings.TrimSpace(*p.Description)
		}

		cost, sell := out.CostPrice, out.SellPrice
		if p.CostPrice != nil {
			cost = p.CostPrice.Round(2)
		}
		if p.SellPrice != nil {
			sell = p.SellPrice.Round(2)
		}
		if p.CostPrice != nil || p.SellPrice != nil {
			if err := validatePrices(cost, sell); err != nil {
				return err
			}
			updates["cost_price"] = cost
			updates["sell_price"] = sell
		}
		if p.LowStockThreshold != nil {
			if *p.LowStockThreshold < 0 {
				return apperr.Validation("Low stock threshold cannot be negative")
			}
			updates["low_stock_threshold"] = *p.LowStockThreshold
		}
		if p.ExpiryDate != nil {
			updates["expiry_date"] = p.ExpiryDate
		}
		if len(updates) == 0 {
			return nil
		}
		updates["updated_at"] = s.clock()

		if err := tx.Model(&out).Updates(updates).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateName(*p.Name)
			}
			return apperr.Storage("update item", err)
		}
		return tx.First(&out, id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteItem removes an item that no ledger entry references. Items with
// history are archived instead so reports keep resolving their names.
func (s *Service) DeleteItem(ctx context.Context, id uint) (DeleteOutcome, error) {
	out := DeleteOutcome{ID: id}
	err := s.transact(ctx, "delete item", func(tx *gorm.DB, box *outbox) error {
		var item models.StockItem
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&item, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return itemNotFound(id)
			}
			return apperr.Storage("load item", err)
		}

		var refs int64
		if err := tx.Model(&models.LedgerEntry{}).Where("item_id = ?", id).Count(&refs).Error; err != nil {
			return apperr.Storage("count entries", err)
		}

		if refs > 0 {
			out.Archived = true
			if err := tx.Delete(&item).Error; err != nil {
				return apperr.Storage("archive item", err)
			}
			return nil
		}

		if err := tx.Where("item_id = ?", id).Delete(&models.StockMovement{}).Error; err != nil {
			return apperr.Storage("delete stock movements", err)
		}
		if err := tx.Unscoped().Delete(&item).Error; err != nil {
			return apperr.Storage("delete item", err)
		}
		return nil
	})
	if err != nil {
		return DeleteOutcome{}, err
	}
	s.log.Info("item deleted", zap.Uint("item_id", id), zap.Bool("archived", out.Archived))
	return out, nil
}

func (s *Service) GetItem(ctx context.Context, id uint) (*models.StockItem, error) {
	var item models.StockItem
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, itemNotFound(id)
		}
		return nil, apperr.Storage("get item", err)
	}
	return &item, nil
}

func (s *Service) ListItems(ctx context.Context) ([]models.StockItem, error) {
	var items []models.StockItem
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&items).Error; err != nil {
		return nil, apperr.Storage("list items", err)
	}
	return items, nil
}

// Search matches term case-insensitively anywhere in name or description.
// An empty term lists everything.
func (s *Service) Search(ctx context.Context, term string) ([]models.StockItem, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return s.ListItems(ctx)
	}
	like := "%" + escapeLike(term) + "%"

	var items []models.StockItem
	err := s.db.WithContext(ctx).
		Where("(LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!')", like, like).
		Order("name ASC").
		Find(&items).Error
	if err != nil {
		return nil, apperr.Storage("search items", err)
	}
	return items, nil
}

// ListLowStock returns items at or below their own threshold, or at or below
// override when one is given.
func (s *Service) ListLowStock(ctx context.Context, override *int) ([]models.StockItem, error) {
	q := s.db.WithContext(ctx).Model(&models.StockItem{})
	if override != nil {
		if *override < 0 {
			return nil, apperr.Validation("Threshold cannot be negative")
		}
		q = q.Where("quantity <= ?", *override)
	} else {
		q = q.Where("quantity <= low_stock_threshold")
	}

	var items []models.StockItem
	if err := q.Order("quantity ASC, name ASC").Find(&items).Error; err != nil {
		return nil, apperr.Storage("list low stock", err)
	}
	return items, nil
}

// ensureNameFree checks archived rows too: an archived item keeps its name.
func ensureNameFree(tx *gorm.DB, name string, exceptID uint) error {
	var n int64
	q := tx.Unscoped().Model(&models.StockItem{}).Where("LOWER(name) = ?", strings.ToLower(name))
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return apperr.Storage("check item name", err)
	}
	if n > 0 {
		return duplicateName(name)
	}
	return nil
}

func duplicateName(name string) *apperr.Error {
	return apperr.New(apperr.KindConflict, apperr.CodeDuplicateName, "An item named %q already exists", name)
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
