package ledger

import (
	"context"

	"go-pos-ledger/internal/apperr"
	"go-pos-ledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Issue reasons reported by CheckAvailability.
const (
	IssueNotFound        = "not found"
	IssueInsufficient    = "insufficient quantity"
	IssueInvalidQuantity = "invalid quantity"
)

// Line is one requested item and quantity, e.g. a cart row.
type Line struct {
	ItemID   uint `json:"item_id" binding:"required"`
	Quantity int  `json:"quantity"`
}

// Availability is the result of a pre-flight stock check.
type Availability struct {
	AllAvailable bool           `json:"all_available"`
	Issues       []apperr.Issue `json:"issues"`
}

// ValidatePricing reports whether sell is strictly greater than cost.
// Equal prices are rejected: zero-margin items are not allowed.
func ValidatePricing(cost, sell decimal.Decimal) bool {
	return sell.GreaterThan(cost)
}

func validatePrices(cost, sell decimal.Decimal) error {
	if cost.IsNegative() {
		return apperr.Validation("Cost price cannot be negative")
	}
	if !ValidatePricing(cost, sell) {
		return apperr.New(apperr.KindValidation, apperr.CodePriceInversion,
			"Sell price (%s) must be greater than cost price (%s)", sell.StringFixed(2), cost.StringFixed(2))
	}
	return nil
}

// CheckAvailability validates every line against current stock without changing anything.
// Lines for the same item are summed before comparing.
func (s *Service) CheckAvailability(ctx context.Context, lines []Line) (Availability, error) {
	av, err := checkAvailability(s.db.WithContext(ctx), lines)
	if err != nil {
		return Availability{}, apperr.From("check availability", err)
	}
	return av, nil
}

func checkAvailability(db *gorm.DB, lines []Line) (Availability, error) {
	merged, issues := mergeLines(lines)

	ids := make([]uint, 0, len(merged))
	for _, l := range merged {
		ids = append(ids, l.ItemID)
	}

	stock := make(map[uint]int, len(ids))
	if len(ids) > 0 {
		var items []models.StockItem
		if err := db.Select("id", "quantity").Where("id IN ?", ids).Find(&items).Error; err != nil {
			return Availability{}, apperr.Storage("load items", err)
		}
		for _, it := range items {
			stock[it.ID] = it.Quantity
		}
	}

	for _, l := range merged {
		available, ok := stock[l.ItemID]
		switch {
		case !ok:
			issues = append(issues, apperr.Issue{ItemID: l.ItemID, Reason: IssueNotFound, Requested: l.Quantity})
		case l.Quantity > available:
			issues = append(issues, apperr.Issue{ItemID: l.ItemID, Reason: IssueInsufficient, Requested: l.Quantity, Available: available})
		}
	}

	return Availability{AllAvailable: len(issues) == 0, Issues: issues}, nil
}

// mergeLines sums quantities per item, keeping first-seen order. Lines with a
// non-positive quantity are returned as issues instead.
func mergeLines(lines []Line) ([]Line, []apperr.Issue) {
	issues := []apperr.Issue{}
	merged := make([]Line, 0, len(lines))
	index := make(map[uint]int, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			issues = append(issues, apperr.Issue{ItemID: l.ItemID, Reason: IssueInvalidQuantity, Requested: l.Quantity})
			continue
		}
		if i, ok := index[l.ItemID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ItemID] = len(merged)
		merged = append(merged, l)
	}
	return merged, issues
}
