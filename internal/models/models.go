package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User - a person who can log in to the till or the back office
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string    `json:"-"`                        // Never return this in JSON
	Role         string    `gorm:"size:20;not null" json:"role"` // 'admin', 'manager', 'cashier'
	Email        *string   `gorm:"uniqueIndex;size:120" json:"email,omitempty"`
	Phone        *string   `gorm:"uniqueIndex;size:30" json:"phone,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

// Employee - staff record kept by the back office, optionally linked to a login
type Employee struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:120;not null" json:"name"`
	Phone       *string         `gorm:"uniqueIndex;size:30" json:"phone,omitempty"`
	Email       *string         `gorm:"uniqueIndex;size:120" json:"email,omitempty"`
	Designation string          `gorm:"size:60" json:"designation"`
	Salary      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"salary"`
	UserID      *uint           `json:"user_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	CategoryRetail    = "retail"
	CategoryWholesale = "wholesale"
)

// StockItem - the inventory. Quantity only moves through the ledger.
// DeletedAt set means the item is archived.
type StockItem struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"uniqueIndex;size:120;not null" json:"name"`
	Category          string          `gorm:"size:60;not null" json:"category"`
	Description       string          `gorm:"size:255" json:"description"`
	CostPrice         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"cost_price"`
	SellPrice         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"sell_price"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	LowStockThreshold int             `gorm:"not null" json:"low_stock_threshold"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

type EntryKind string

const (
	EntrySale    EntryKind = "sale"
	EntryRestock EntryKind = "restock"
	EntryDamage  EntryKind = "damage"
	EntryReturn  EntryKind = "return"
)

// LedgerEntry - one stock-affecting business event with its money snapshot
type LedgerEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ItemID        uint            `gorm:"index;not null" json:"item_id"`
	Kind          EntryKind       `gorm:"size:16;index;not null" json:"kind"`
	Quantity      int             `gorm:"not null" json:"quantity"`
	UnitCost      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_cost"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"unit_price"` // Snapshot of price at time of entry
	TotalCost     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_cost"`
	TotalSell     decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_sell"`
	Profit        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"profit"`
	AccountID     *uint           `json:"account_id,omitempty"`
	SaleID        *uint           `gorm:"index" json:"sale_id,omitempty"`
	OriginEntryID *uint           `gorm:"index" json:"origin_entry_id,omitempty"` // returns: the sale entry being returned
	Status        string          `gorm:"size:40" json:"status,omitempty"`
	Reason        string          `gorm:"size:255" json:"reason,omitempty"`
	CreatedAt     time.Time       `gorm:"index" json:"created_at"`
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile_money"
	PaymentCard        PaymentMethod = "card"
)

const (
	SaleCompleted = "completed"
	SaleVoided    = "voided"
)

// Sale - the checkout header; its lines are sale-kind ledger entries
type Sale struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	InvoiceCode   string          `gorm:"uniqueIndex;size:40;not null" json:"invoice_code"`
	CashierID     uint            `gorm:"index" json:"cashier_id"` // Who processed it
	Subtotal      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"subtotal"`
	Discount      decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"discount"`
	Total         decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`
	Profit        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"profit"`
	AmountPaid    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount_paid"`
	Change        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"change"`
	PaymentMethod PaymentMethod   `gorm:"size:20;not null" json:"payment_method"`
	Status        string          `gorm:"size:12;index;not null" json:"status"` // 'completed', 'voided'
	VoidedAt      *time.Time      `json:"voided_at,omitempty"`
	VoidedByID    *uint           `json:"voided_by_id,omitempty"`
	SaleTime      time.Time       `gorm:"index" json:"sale_time"`
	Lines         []LedgerEntry   `gorm:"foreignKey:SaleID" json:"lines,omitempty"`
}

// StockMovement - append-only history of every quantity change
type StockMovement struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ItemID         uint      `gorm:"index;not null" json:"item_id"`
	Delta          int       `gorm:"not null" json:"delta"`
	QuantityBefore int       `gorm:"not null" json:"quantity_before"`
	QuantityAfter  int       `gorm:"not null" json:"quantity_after"`
	Reason         string    `gorm:"size:30;not null" json:"reason"`
	EntryID        *uint     `json:"entry_id,omitempty"`
	SaleID         *uint     `json:"sale_id,omitempty"`
	ActorID        *uint     `json:"actor_id,omitempty"`
	Note           string    `gorm:"size:255" json:"note,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

const (
	ReportDaily   = "daily"
	ReportMonthly = "monthly"
)

// Report - persisted snapshot of a sales summary
type Report struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Type        string          `gorm:"size:10;index;not null" json:"type"`
	Date        time.Time       `gorm:"index" json:"date"`
	TotalSales  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_sales"`
	TotalProfit decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_profit"`
	GeneratedAt time.Time       `json:"generated_at"`
	Metadata    map[string]any  `gorm:"serializer:json;type:text" json:"metadata"`
}
