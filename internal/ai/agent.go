// Package ai runs the back-office assistant: a Gemini chat whose tools read
// the catalog and reports and can reprice items through the price guard.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-pos-ledger/internal/ledger"
	"go-pos-ledger/internal/models"
	"go-pos-ledger/internal/reports"

	"github.com/google/generative-ai-go/genai"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const maxToolRounds = 5

var ErrNotConfigured = errors.New("assistant is not configured")

// Catalog is the part of the ledger the assistant may use.
type Catalog interface {
	ListItems(ctx context.Context) ([]models.StockItem, error)
	ListLowStock(ctx context.Context, override *int) ([]models.StockItem, error)
	UpdateItem(ctx context.Context, id uint, p ledger.ItemPatch) (*models.StockItem, error)
}

type Reporter interface {
	SalesSummary(ctx context.Context, start, end time.Time) (*reports.Summary, error)
	InventoryValuation(ctx context.Context) (*reports.Valuation, error)
}

type Agent struct {
	apiKey  string
	model   string
	catalog Catalog
	reports Reporter
	loc     *time.Location
	now     func() time.Time
	log     *zap.Logger
}

func NewAgent(apiKey, model string, catalog Catalog, rep Reporter, loc *time.Location, log *zap.Logger) *Agent {
	if model == "" {
		model = "gemini-2.0-flash-001"
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Agent{apiKey: apiKey, model: model, catalog: catalog, reports: rep, loc: loc, now: time.Now, log: log}
}

func (a *Agent) systemPrompt(userMessage string) string {
	today := a.now().In(a.loc).Format("2006-01-02")
	return fmt.Sprintf(`SYSTEM: Today is %s. You are the back-office assistant of a small shop's point of sale.

	RULES:
	1. UPDATE: If a user asks to change a price by item NAME, do NOT ask for the ID. Call 'check_inventory'
	   to find it, then call 'update_item_price'. Sell price must stay above cost price; report the error if the tool refuses.
	2. READ: For price, cost, stock or details of an item, call 'check_inventory' and read the result.
	3. STOCK: For items running out, call 'low_stock'.
	4. SALES: For sales, revenue or profit over dates, call 'get_sales_report'.
	5. VALUE: For what the stock is worth, call 'get_inventory_valuation'.
	Never invent numbers. Quantities only change through sales and restocks, which you cannot record.

	USER: %s`, today, userMessage)
}

func tools() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "check_inventory",
				Description: "Get the full inventory list. Use this to find ANY item details like ID, Name, Sell price, Cost price or Stock.",
			},
			{
				Name:        "low_stock",
				Description: "List items at or below their low-stock threshold.",
			},
			{
				Name:        "update_item_price",
				Description: "Change the sell price (and optionally the cost price) of an item by its ID.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"item_id":    {Type: genai.TypeInteger, Description: "ID of the item"},
						"sell_price": {Type: genai.TypeNumber, Description: "New sell price"},
						"cost_price": {Type: genai.TypeNumber, Description: "New cost price, if it changes too"},
					},
					Required: []string{"item_id", "sell_price"},
				},
			},
			{
				Name:        "get_sales_report",
				Description: "Get total sales, profit and transaction count for a date range.",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"start_date": {Type: genai.TypeString, Description: "Start date (YYYY-MM-DD)"},
						"end_date":   {Type: genai.TypeString, Description: "End date (YYYY-MM-DD)"},
					},
					Required: []string{"start_date", "end_date"},
				},
			},
			{
				Name:        "get_inventory_valuation",
				Description: "Get the value of all stock at cost and at sell price.",
			},
		},
	}}
}

// Ask runs one conversation turn, answering tool calls until the model replies with text.
func (a *Agent) Ask(ctx context.Context, message string) (string, error) {
	if a.apiKey == "" {
		return "", ErrNotConfigured
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(a.apiKey))
	if err != nil {
		return "", fmt.Errorf("gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(a.model)
	model.Tools = tools()
	session := model.StartChat()

	resp, err := session.SendMessage(ctx, genai.Text(a.systemPrompt(message)))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}

	for round := 0; round < maxToolRounds; round++ {
		calls := functionCalls(resp)
		if len(calls) == 0 {
			return printResponse(resp), nil
		}
		replies := make([]genai.Part, 0, len(calls))
		for _, call := range calls {
			a.log.Info("assistant tool call", zap.String("tool", call.Name))
			replies = append(replies, genai.FunctionResponse{
				Name:     call.Name,
				Response: a.executeTool(ctx, call.Name, call.Args),
			})
		}
		resp, err = session.SendMessage(ctx, replies...)
		if err != nil {
			return "", fmt.Errorf("gemini: %w", err)
		}
	}
	return printResponse(resp), nil
}

// executeTool runs one tool and returns the payload sent back to the model.
// Failures are reported to the model, not to the caller.
func (a *Agent) executeTool(ctx context.Context, name string, args map[string]any) map[string]any {
	switch name {
	case "check_inventory":
		items, err := a.catalog.ListItems(ctx)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{"inventory": toJSON(simplify(items))}

	case "low_stock":
		items, err := a.catalog.ListLowStock(ctx, nil)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{"items": toJSON(simplify(items))}

	case "update_item_price":
		id, ok := numberArg(args, "item_id")
		if !ok || id <= 0 {
			return map[string]any{"status": "error", "error": "item_id is required"}
		}
		sell, ok := numberArg(args, "sell_price")
		if !ok {
			return map[string]any{"status": "error", "error": "sell_price is required"}
		}
		patch := ledger.ItemPatch{SellPrice: ptr(decimal.NewFromFloat(sell).Round(2))}
		if cost, ok := numberArg(args, "cost_price"); ok {
			patch.CostPrice = ptr(decimal.NewFromFloat(cost).Round(2))
		}
		item, err := a.catalog.UpdateItem(ctx, uint(id), patch)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{"status": "success", "item": toJSON(simplify([]models.StockItem{*item})[0])}

	case "get_sales_report":
		start, err1 := time.ParseInLocation("2006-01-02", stringArg(args, "start_date"), a.loc)
		end, err2 := time.ParseInLocation("2006-01-02", stringArg(args, "end_date"), a.loc)
		if err1 != nil || err2 != nil {
			return map[string]any{"status": "error", "error": "Dates must be in YYYY-MM-DD format."}
		}
		sum, err := a.reports.SalesSummary(ctx, start, end.AddDate(0, 0, 1).Add(-time.Nanosecond))
		if err != nil {
			return toolError(err)
		}
		return map[string]any{
			"total_sales":        sum.TotalSales.StringFixed(2),
			"total_profit":       sum.TotalProfit.StringFixed(2),
			"total_transactions": sum.TotalTransactions,
			"average_sale":       sum.AverageSale.StringFixed(2),
			"profit_margin":      sum.ProfitMargin.StringFixed(2),
		}

	case "get_inventory_valuation":
		v, err := a.reports.InventoryValuation(ctx)
		if err != nil {
			return toolError(err)
		}
		return map[string]any{
			"cost_value":        v.CostValue.StringFixed(2),
			"sell_value":        v.SellValue.StringFixed(2),
			"potential_profit":  v.PotentialProfit.StringFixed(2),
			"total_items":       v.TotalItems,
			"total_quantity":    v.TotalQuantity,
			"margin_percentage": v.MarginPercentage.StringFixed(2),
		}
	}
	return map[string]any{"status": "error", "error": "unknown tool " + name}
}

type simpleItem struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Stock int    `json:"stock"`
	Cost  string `json:"cost_price"`
	Price string `json:"sell_price"`
}

func simplify(items []models.StockItem) []simpleItem {
	out := make([]simpleItem, len(items))
	for i, it := range items {
		out[i] = simpleItem{ID: it.ID, Name: it.Name, Stock: it.Quantity, Cost: it.CostPrice.StringFixed(2), Price: it.SellPrice.StringFixed(2)}
	}
	return out
}

// toJSON flattens rows to a string; function responses only carry plain JSON values.
func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func toolError(err error) map[string]any {
	return map[string]any{"status": "error", "error": err.Error()}
}

func numberArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func ptr[T any](v T) *T { return &v }

func functionCalls(resp *genai.GenerateContentResponse) []genai.FunctionCall {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	var calls []genai.FunctionCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if fc, ok := part.(genai.FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

func printResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "I completed the action."
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			return string(txt)
		}
	}
	return "I completed the action."
}
