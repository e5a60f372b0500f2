// Package handlers exposes the ledger, reports and accounts over a JSON API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"go-pos-ledger/internal/accounts"
	"go-pos-ledger/internal/auth"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/middleware"
	"go-pos-ledger/internal/models"
	"go-pos-ledger/internal/reports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Assistant answers free-text back-office questions.
type Assistant interface {
	Ask(ctx context.Context, message string) (string, error)
}

type Deps struct {
	Ledger            *ledger.Service
	Reports           *reports.Engine
	Accounts          *accounts.Service
	Tokens            *auth.Issuer
	Events            *events.Bus
	Assistant         Assistant
	Log               *zap.Logger
	Location          *time.Location
	AllowRegistration bool
}

type Handler struct {
	ledger            *ledger.Service
	reports           *reports.Engine
	accounts          *accounts.Service
	tokens            *auth.Issuer
	events            *events.Bus
	assistant         Assistant
	log               *zap.Logger
	loc               *time.Location
	allowRegistration bool
}

func New(d Deps) *Handler {
	h := &Handler{
		ledger:            d.Ledger,
		reports:           d.Reports,
		accounts:          d.Accounts,
		tokens:            d.Tokens,
		events:            d.Events,
		assistant:         d.Assistant,
		log:               d.Log,
		loc:               d.Location,
		allowRegistration: d.AllowRegistration,
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	return h
}

// Routes mounts the API on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "online"}) })
	r.POST("/login", h.Login)
	if h.allowRegistration {
		r.POST("/register", h.Register)
		h.log.Warn("registration route is open; disable ALLOW_REGISTRATION in production")
	}

	staff := []string{models.RoleAdmin, models.RoleManager, models.RoleCashier}
	backOffice := []string{models.RoleAdmin, models.RoleManager}

	api := r.Group("/api", middleware.AuthMiddleware(h.tokens), middleware.RequireRole(staff...))
	{
		api.GET("/items", h.ListItems)
		api.GET("/items/:id", h.GetItem)
		api.GET("/items/:id/movements", h.ListMovements)
		api.GET("/stock/low", h.ListLowStock)
		api.POST("/availability", h.CheckAvailability)

		api.POST("/sales", h.RecordSale)
		api.POST("/checkout", h.Checkout)
		api.GET("/sales", h.ListSales)
		api.GET("/sales/:id", h.GetSale)
		api.POST("/returns", h.RecordReturn)
		api.GET("/entries", h.ListEntries)

		api.GET("/events", h.StreamEvents)
	}

	office := api.Group("", middleware.RequireRole(backOffice...))
	{
		office.POST("/items", h.CreateItem)
		office.PUT("/items/:id", h.UpdateItem)
		office.DELETE("/items/:id", h.DeleteItem)
		office.POST("/items/:id/adjust", h.AdjustQuantity)

		office.POST("/restocks", h.RecordRestock)
		office.POST("/damages", h.RecordDamage)
		office.DELETE("/damages/:id", h.DeleteDamage)
		office.POST("/entries/:id/cancel", h.CancelSale)
		office.POST("/sales/:id/void", h.VoidSale)

		office.GET("/reports", h.ListReports)
		office.GET("/reports/summary", h.SalesSummary)
		office.GET("/reports/valuation", h.InventoryValuation)
		office.GET("/reports/dashboard", h.Dashboard)
		office.POST("/reports/daily", h.GenerateDaily)
		office.POST("/reports/monthly", h.GenerateMonthly)
		office.GET("/reports/:id", h.GetReport)

		office.GET("/employees", h.ListEmployees)
		office.POST("/employees", h.CreateEmployee)
		office.PUT("/employees/:id", h.UpdateEmployee)
		office.DELETE("/employees/:id", h.DeleteEmployee)

		office.POST("/ask", h.AskAI)
	}

	admin := api.Group("", middleware.RequireRole(models.RoleAdmin))
	{
		admin.DELETE("/sales/:id", h.DeleteSale)
		admin.DELETE("/reports/:id", h.DeleteReport)
		admin.GET("/users", h.ListUsers)
		admin.POST("/users", h.CreateUser)
		admin.DELETE("/users/:id", h.DeleteUser)
	}
}
