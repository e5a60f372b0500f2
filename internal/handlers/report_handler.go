package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

func endOfDay(day time.Time) time.Time {
	return day.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// --- GET: /api/reports/summary?start=&end= ---
// Dates are inclusive calendar days; without them the current month so far is used.
func (h *Handler) SalesSummary(c *gin.Context) {
	start, end := h.reports.DefaultRange()
	var err error
	if raw := c.Query("start"); raw != "" {
		if start, err = time.ParseInLocation(dateLayout, raw, h.loc); err != nil {
			badRequest(c, "start must be in YYYY-MM-DD format")
			return
		}
	}
	if raw := c.Query("end"); raw != "" {
		day, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			badRequest(c, "end must be in YYYY-MM-DD format")
			return
		}
		end = endOfDay(day)
	}

	sum, err := h.reports.SalesSummary(c.Request.Context(), start, end)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, sum)
}

// --- GET: /api/reports/valuation ---
// GetStockValuation calculates the total monetary value of all physical inventory
func (h *Handler) InventoryValuation(c *gin.Context) {
	v, err := h.reports.InventoryValuation(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, v)
}

func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.reports.DashboardSummary(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, d)
}

type dailyRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handler) GenerateDaily(c *gin.Context) {
	var req dailyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "date is required")
		return
	}
	day, err := time.ParseInLocation(dateLayout, req.Date, h.loc)
	if err != nil {
		badRequest(c, "date must be in YYYY-MM-DD format")
		return
	}
	report, err := h.reports.DailyReport(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, report)
}

type monthlyRequest struct {
	Year  int `json:"year" binding:"required"`
	Month int `json:"month" binding:"required"`
}

func (h *Handler) GenerateMonthly(c *gin.Context) {
	var req monthlyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "year and month are required")
		return
	}
	report, err := h.reports.MonthlyReport(c.Request.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, report)
}

func (h *Handler) ListReports(c *gin.Context) {
	limit, _, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "Invalid limit")
		return
	}
	list, err := h.reports.ListReports(c.Request.Context(), c.Query("type"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, list)
}

func (h *Handler) GetReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	report, err := h.reports.GetReport(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, report)
}

func (h *Handler) DeleteReport(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.reports.DeleteReport(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}
