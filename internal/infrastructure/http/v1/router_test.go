package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"larder/internal/core/types"
	"larder/internal/domain/costing"
	"larder/internal/domain/fulfillment"
	"larder/internal/domain/ledger"
	"larder/internal/domain/purchasing"
	"larder/internal/domain/recipe"
	v1 "larder/internal/infrastructure/http/v1"
	"larder/internal/infrastructure/http/v1/handlers"
	"larder/internal/infrastructure/storage/memory"
	"larder/pkg/logger"
)

type api struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T, checks map[string]handlers.Pinger) *api {
	t.Helper()
	mem := memory.New()
	store := ledger.NewStore(mem, mem)
	engine := costing.NewEngine(store, mem, mem)

	router := v1.NewRouter(v1.RouterConfig{
		Logger:       logger.NewNop(),
		Version:      "test",
		HealthChecks: checks,
		Ledger:       store,
		Fulfillment:  fulfillment.NewService(store, mem, mem, 3),
		Recipes:      recipe.NewService(mem, store, mem),
		Purchasing:   purchasing.NewService(mem, memory.NewSequence(), mem),
		Processor: purchasing.NewProcessor(mem, store, mem,
			purchasing.WithCostChangeHandler(&costing.InlineDispatcher{Engine: engine}),
		),
		Costing: engine,
	})
	return &api{t: t, router: router}
}

func (a *api) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Tenant-ID", "t1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestOrderLifecycle(t *testing.T) {
	a := newAPI(t, nil)

	rec := a.do(http.MethodPost, "/api/v1/locations/loc1/items", map[string]any{"name": "Milk", "unit": "l"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	milk := decode[struct {
		Item ledger.InventoryItem `json:"item"`
	}](t, rec).Item.ItemID
	require.NotEmpty(t, milk)

	rec = a.do(http.MethodPost, "/api/v1/locations/loc1/items", map[string]any{"name": " milk "})
	require.Equal(t, http.StatusOK, rec.Code, "same name resolves to the existing item")

	rec = a.do(http.MethodPost, "/api/v1/purchase-orders", map[string]any{
		"locationId": "loc1",
		"supplier":   "Dairy Co",
		"lines": []map[string]any{
			{"itemName": "Milk", "inventoryItemId": milk, "unit": "l", "orderedQty": 10, "unitPrice": "1.5"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	po := decode[purchasing.PurchaseOrder](t, rec)
	require.NotEmpty(t, po.POID)

	rec = a.do(http.MethodPost, "/api/v1/purchase-orders/"+po.POID+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/purchase-orders/"+po.POID+"/deliver", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code, "delivery needs an actor")

	rec = a.do(http.MethodPost, "/api/v1/purchase-orders/"+po.POID+"/deliver", nil, "X-Actor-ID", "chef")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/purchase-orders/"+po.POID+"/deliver", nil, "X-Actor-ID", "chef")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ALREADY_DELIVERED", decode[map[string]any](t, rec)["code"])

	rec = a.do(http.MethodGet, "/api/v1/locations/loc1/items/"+milk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decode[ledger.InventoryItem](t, rec)
	require.Equal(t, types.Qty(10), item.CurrentStock)

	rec = a.do(http.MethodPut, "/api/v1/locations/loc1/menu-items/latte", map[string]any{
		"name":  "Latte",
		"price": "4",
		"ingredients": []map[string]any{
			{"inventoryItemId": milk, "name": "Milk", "quantity": 0.25},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	order := map[string]any{"lines": []map[string]any{{"menuItemId": "latte", "quantity": 2}}}
	rec = a.do(http.MethodPost, "/api/v1/locations/loc1/orders/o-1/deductions", order)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/v1/locations/loc1/orders/o-1/deductions", order)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[fulfillment.DeductionResult](t, rec).Replayed)

	rec = a.do(http.MethodGet, "/api/v1/locations/loc1/items/"+milk, nil)
	item = decode[ledger.InventoryItem](t, rec)
	require.Equal(t, types.NewQuantityFromFloat64(9.5), item.CurrentStock)

	rec = a.do(http.MethodGet, "/api/v1/locations/loc1/items/"+milk+"/movements?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Count int `json:"count"`
	}](t, rec)
	require.Equal(t, 2, history.Count)

	rec = a.do(http.MethodGet, "/api/v1/locations/loc1/menu-items/latte/cost", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cost := decode[costing.MenuCost](t, rec)
	require.Equal(t, "latte", cost.MenuItemID)
}

func TestErrors(t *testing.T) {
	a := newAPI(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown item", http.MethodGet, "/api/v1/locations/loc1/items/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"unknown purchase order", http.MethodGet, "/api/v1/purchase-orders/nope", nil, http.StatusNotFound, "NOT_FOUND"},
		{"empty order", http.MethodPost, "/api/v1/locations/loc1/orders/o-1/deductions", map[string]any{"lines": []any{}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed body", http.MethodPost, "/api/v1/locations/loc1/items", "not an object", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad limit", http.MethodGet, "/api/v1/locations/loc1/items/milk/movements?limit=0x", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Equal(t, tt.code, decode[map[string]any](t, rec)["code"])
		})
	}
}

func TestTenantRequired(t *testing.T) {
	a := newAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/locations/loc1/items", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", decode[map[string]any](t, rec)["code"])
}

func TestHealth(t *testing.T) {
	healthy := newAPI(t, map[string]handlers.Pinger{
		"postgres": handlers.PingFunc(func(ctx context.Context) error { return nil }),
	})
	rec := healthy.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	down := newAPI(t, map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})
	rec = down.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")

	rec = down.do(http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
