package handlers

import (
	"net/http"

	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/middleware"

	"github.com/gin-gonic/gin"
)

// --- GET: /api/items?q= ---
// Without q this lists the whole catalog.
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.ledger.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (h *Handler) GetItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	item, err := h.ledger.GetItem(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *Handler) CreateItem(c *gin.Context) {
	var in ledger.NewItem
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	item, err := h.ledger.CreateItem(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, item)
}

// --- PUT: /api/items/:id ---
// Partial update; quantity is not accepted here.
func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var patch ledger.ItemPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	item, err := h.ledger.UpdateItem(c.Request.Context(), id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *Handler) DeleteItem(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	out, err := h.ledger.DeleteItem(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, out)
}

type adjustRequest struct {
	Delta  int    `json:"delta" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) AdjustQuantity(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "delta and reason are required")
		return
	}
	item, err := h.ledger.AdjustQuantity(c.Request.Context(), id, req.Delta, req.Reason, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *Handler) ListMovements(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "Invalid limit")
		return
	}
	moves, err := h.ledger.Movements(c.Request.Context(), id, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, moves)
}

// --- GET: /api/stock/low?threshold= ---
func (h *Handler) ListLowStock(c *gin.Context) {
	threshold, set, err := queryInt(c, "threshold")
	if err != nil {
		badRequest(c, "Invalid threshold")
		return
	}
	var override *int
	if set {
		override = &threshold
	}
	items, err := h.ledger.ListLowStock(c.Request.Context(), override)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

type availabilityRequest struct {
	Lines []ledger.Line `json:"lines" binding:"required"`
}

func (h *Handler) CheckAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid input")
		return
	}
	av, err := h.ledger.CheckAvailability(c.Request.Context(), req.Lines)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, av)
}
