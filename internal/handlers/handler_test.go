package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go-pos-ledger/internal/accounts"
	"go-pos-ledger/internal/auth"
	"go-pos-ledger/internal/config"
	"go-pos-ledger/internal/database"
	"go-pos-ledger/internal/events"
	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"
	"go-pos-ledger/internal/reports"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type apiServer struct {
	router   *gin.Engine
	accounts *accounts.Service
	tokens   *auth.Issuer
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Issues  []struct {
		ItemID    uint   `json:"item_id"`
		Reason    string `json:"reason"`
		Requested int    `json:"requested"`
		Available int    `json:"available"`
	} `json:"issues"`
}

func newAPIServer(t *testing.T, allowRegistration bool) *apiServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Connect(config.Database{
		Driver:   "sqlite",
		DSN:      filepath.Join(t.TempDir(), "api.db"),
		LogLevel: "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	rep, err := reports.New(db, "sqlite")
	require.NoError(t, err)

	s := &apiServer{
		router:   gin.New(),
		accounts: accounts.New(db, accounts.WithHashCost(bcrypt.MinCost)),
		tokens:   auth.NewIssuer("test-secret", time.Hour),
	}
	h := New(Deps{
		Ledger:            ledger.New(db),
		Reports:           rep,
		Accounts:          s.accounts,
		Tokens:            s.tokens,
		Events:            events.NewBus(8),
		AllowRegistration: allowRegistration,
	})
	h.Routes(s.router)
	return s
}

// login creates a user with role and returns a bearer token for it.
func (s *apiServer) login(t *testing.T, username, role string) string {
	t.Helper()
	u, err := s.accounts.CreateUser(context.Background(), accounts.NewUser{
		Username: username,
		Password: "secret123",
		Role:     role,
	})
	require.NoError(t, err)
	token, _, err := s.tokens.GenerateToken(u.ID, u.Username, u.Role)
	require.NoError(t, err)
	return token
}

func (s *apiServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (s *apiServer) createItem(t *testing.T, token, name, cost, sell string, qty int) uint {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/api/items", token, gin.H{
		"name": name, "cost_price": cost, "sell_price": sell, "quantity": qty,
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var item models.StockItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	return item.ID
}

func TestHealth(t *testing.T) {
	s := newAPIServer(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"online"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	s := newAPIServer(t, false)
	s.login(t, "alice", models.RoleManager)

	code, env := s.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "secret123"})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	var out struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.NotEmpty(t, out.Token)
	assert.Equal(t, models.RoleManager, out.Role)

	claims, err := s.tokens.ValidateToken(out.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)

	code, env = s.do(t, http.MethodPost, "/login", "", gin.H{"username": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid credentials", env.Error)
}

func TestRegister_FirstUserIsAdmin(t *testing.T) {
	s := newAPIServer(t, true)

	code, env := s.do(t, http.MethodPost, "/register", "", gin.H{"username": "owner", "password": "secret123"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var first models.User
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, models.RoleAdmin, first.Role)

	code, env = s.do(t, http.MethodPost, "/register", "", gin.H{"username": "clerk", "password": "secret123"})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var second models.User
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, models.RoleCashier, second.Role)
}

func TestRegister_ClosedByDefault(t *testing.T) {
	s := newAPIServer(t, false)
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoleGuards(t *testing.T) {
	s := newAPIServer(t, false)
	cashier := s.login(t, "till1", models.RoleCashier)
	manager := s.login(t, "boss", models.RoleManager)

	code, env := s.do(t, http.MethodGet, "/api/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthorized", env.Code)

	code, _ = s.do(t, http.MethodGet, "/api/items", cashier, nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, "/api/items", cashier, gin.H{"name": "Widget", "cost_price": "5", "sell_price": "10"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.False(t, env.Success)

	code, _ = s.do(t, http.MethodGet, "/api/users", manager, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCreateItem_PriceInversion(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)

	code, env := s.do(t, http.MethodPost, "/api/items", admin, gin.H{
		"name": "Widget", "cost_price": "10", "sell_price": "10", "quantity": 3,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "price_inversion", env.Code)

	s.createItem(t, admin, "Widget", "5", "10", 3)
	code, env = s.do(t, http.MethodPost, "/api/items", admin, gin.H{
		"name": "widget", "cost_price": "5", "sell_price": "10",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "duplicate_name", env.Code)
}

func TestCheckout(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)
	cashier := s.login(t, "till1", models.RoleCashier)
	id := s.createItem(t, admin, "Widget", "5", "10", 20)

	code, env := s.do(t, http.MethodPost, "/api/checkout", cashier, gin.H{
		"lines":   []gin.H{{"item_id": id, "quantity": 3}},
		"payment": gin.H{"method": "cash", "amount_paid": "50"},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var receipt struct {
		InvoiceCode string `json:"invoice_code"`
		Total       string `json:"total"`
		Change      string `json:"change"`
		CashierID   uint   `json:"cashier_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.NotEmpty(t, receipt.InvoiceCode)
	assert.Equal(t, "30", receipt.Total)
	assert.Equal(t, "20", receipt.Change)
	assert.NotZero(t, receipt.CashierID)

	code, env = s.do(t, http.MethodGet, "/api/items/"+itoa(id), cashier, nil)
	require.Equal(t, http.StatusOK, code)
	var item models.StockItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, 17, item.Quantity)
}

func TestCheckout_PartialFailure(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)
	id := s.createItem(t, admin, "Widget", "5", "10", 1)

	code, env := s.do(t, http.MethodPost, "/api/checkout", admin, gin.H{
		"lines": []gin.H{{"item_id": id, "quantity": 5}, {"item_id": 999, "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "partial_failure", env.Code)
	require.Len(t, env.Issues, 2)
	assert.Equal(t, 1, env.Issues[0].Available)
	assert.Equal(t, uint(999), env.Issues[1].ItemID)
}

func TestRecordSale_InsufficientStock(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)
	id := s.createItem(t, admin, "Widget", "5", "10", 2)

	code, env := s.do(t, http.MethodPost, "/api/sales", admin, gin.H{"item_id": id, "quantity": 3})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "insufficient_stock", env.Code)
	assert.Equal(t, "Insufficient stock. Available: 2, Requested: 3", env.Error)
}

func TestBadRequests(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)

	cases := []struct {
		name, method, path string
		body               any
	}{
		{"bad id", http.MethodGet, "/api/items/abc", nil},
		{"unknown entry kind", http.MethodGet, "/api/entries?kind=gift", nil},
		{"bad entry date", http.MethodGet, "/api/entries?from=14-03-2026", nil},
		{"bad summary date", http.MethodGet, "/api/reports/summary?start=yesterday", nil},
		{"bad daily date", http.MethodPost, "/api/reports/daily", gin.H{"date": "2026/03/14"}},
		{"missing sale fields", http.MethodPost, "/api/sales", gin.H{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, env := s.do(t, tc.method, tc.path, admin, tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
			assert.Equal(t, "invalid_input", env.Code)
		})
	}
}

func TestReports(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)
	id := s.createItem(t, admin, "Widget", "5", "10", 20)

	code, _ := s.do(t, http.MethodPost, "/api/sales", admin, gin.H{"item_id": id, "quantity": 4})
	require.Equal(t, http.StatusCreated, code)

	today := time.Now().UTC().Format(dateLayout)
	code, env := s.do(t, http.MethodGet, "/api/reports/summary?start="+today+"&end="+today, admin, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var sum struct {
		TotalSales  string `json:"total_sales"`
		TotalProfit string `json:"total_profit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, "40", sum.TotalSales)
	assert.Equal(t, "20", sum.TotalProfit)

	code, env = s.do(t, http.MethodPost, "/api/reports/daily", admin, gin.H{"date": today})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var report models.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, models.ReportDaily, report.Type)

	code, _ = s.do(t, http.MethodGet, "/api/reports/"+itoa(report.ID), admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodDelete, "/api/reports/"+itoa(report.ID), admin, nil)
	assert.Equal(t, http.StatusOK, code)
	code, env = s.do(t, http.MethodGet, "/api/reports/"+itoa(report.ID), admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "not_found", env.Code)
}

func TestAskAI_NotConfigured(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)

	code, env := s.do(t, http.MethodPost, "/api/ask", admin, gin.H{"message": "what is low?"})
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.False(t, env.Success)
}

func TestDeleteUser_NotSelf(t *testing.T) {
	s := newAPIServer(t, false)
	admin := s.login(t, "root", models.RoleAdmin)
	claims, err := s.tokens.ValidateToken(admin)
	require.NoError(t, err)

	code, env := s.do(t, http.MethodDelete, "/api/users/"+itoa(claims.UserID), admin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "You cannot delete your own account", env.Error)
}

func TestEndOfDay(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 14, 23, 59, 59, 999999999, time.UTC), endOfDay(day))
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
