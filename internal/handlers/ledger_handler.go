package handlers

import (
	"net/http"
	"time"

	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/middleware"
	"go-pos-ledger/internal/models"

	"github.com/gin-gonic/gin"
)

type quantityRequest struct {
	ItemID   uint `json:"item_id" binding:"required"`
	Quantity int  `json:"quantity" binding:"required"`
}

// --- POST: /api/sales ---
// Single-item sale outside a cart.
func (h *Handler) RecordSale(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "item_id and quantity are required")
		return
	}
	line, err := h.ledger.RecordSale(c.Request.Context(), req.ItemID, req.Quantity, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, line)
}

// --- POST: /api/checkout ---
func (h *Handler) Checkout(c *gin.Context) {
	var req ledger.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	// The cashier is whoever holds the token, never the request body.
	req.CashierID = middleware.UserID(c)

	receipt, err := h.ledger.Checkout(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, receipt)
}

func (h *Handler) RecordRestock(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "item_id and quantity are required")
		return
	}
	entry, err := h.ledger.RecordRestock(c.Request.Context(), req.ItemID, req.Quantity, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, entry)
}

type damageRequest struct {
	quantityRequest
	Status string `json:"status"`
}

func (h *Handler) RecordDamage(c *gin.Context) {
	var req damageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "item_id and quantity are required")
		return
	}
	entry, err := h.ledger.RecordDamage(c.Request.Context(), req.ItemID, req.Quantity, req.Status, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, entry)
}

func (h *Handler) DeleteDamage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteDamage(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *Handler) RecordReturn(c *gin.Context) {
	var req ledger.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "sale_entry_id and quantity are required")
		return
	}
	req.ActorID = middleware.UserID(c)
	entry, err := h.ledger.RecordReturn(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, entry)
}

// --- POST: /api/entries/:id/cancel ---
func (h *Handler) CancelSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.CancelSale(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "cancelled": true})
}

func (h *Handler) ListSales(c *gin.Context) {
	limit, _, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "Invalid limit")
		return
	}
	sales, err := h.ledger.ListSales(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sales)
}

func (h *Handler) GetSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sale, err := h.ledger.GetSale(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sale)
}

func (h *Handler) VoidSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sale, err := h.ledger.VoidSale(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sale)
}

func (h *Handler) DeleteSale(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.ledger.DeleteSale(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

// --- GET: /api/entries?kind=&item_id=&sale_id=&from=&to=&limit= ---
// from and to are dates (YYYY-MM-DD) in the shop's time zone; to is inclusive.
func (h *Handler) ListEntries(c *gin.Context) {
	f := ledger.EntryFilter{Kind: models.EntryKind(c.Query("kind"))}
	switch f.Kind {
	case "", models.EntrySale, models.EntryRestock, models.EntryDamage, models.EntryReturn:
	default:
		badRequest(c, "Unknown entry kind")
		return
	}

	var err error
	var n int
	var set bool
	if n, set, err = queryInt(c, "item_id"); err != nil || n < 0 {
		badRequest(c, "Invalid item_id")
		return
	} else if set {
		f.ItemID = uint(n)
	}
	if n, set, err = queryInt(c, "sale_id"); err != nil || n < 0 {
		badRequest(c, "Invalid sale_id")
		return
	} else if set {
		f.SaleID = uint(n)
	}
	if f.Limit, _, err = queryInt(c, "limit"); err != nil {
		badRequest(c, "Invalid limit")
		return
	}
	if raw := c.Query("from"); raw != "" {
		if f.From, err = time.ParseInLocation(dateLayout, raw, h.loc); err != nil {
			badRequest(c, "from must be in YYYY-MM-DD format")
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		to, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			badRequest(c, "to must be in YYYY-MM-DD format")
			return
		}
		f.To = endOfDay(to)
	}

	entries, err := h.ledger.ListEntries(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, entries)
}
