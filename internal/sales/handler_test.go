package sales

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func (a *fakeAllocator) Peek(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("INV-2026-%06d", a.last+1), nil
}

func newTestRouter(store *fakeStore) chi.Router {
	allocator := &fakeAllocator{}
	service := NewService(store, store, allocator, nil, nil, nil)
	handler := NewHandler(slog.Default(), service, allocator)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSaleEndpoint(t *testing.T) {
	store := newFakeStore()
	store.seed(1, 100, 80, 5, 10, 2)
	router := newTestRouter(store)

	rec := postJSON(t, router, "/sales", map[string]any{
		"lines":          []map[string]any{{"product_id": 1, "quantity": 2}},
		"payment_method": "cash",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		ID            int64  `json:"id"`
		InvoiceNumber string `json:"invoice_number"`
		Total         string `json:"total"`
		Lines         []struct {
			UnitPrice string `json:"unit_price"`
		} `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "INV-2026-000001", resp.InvoiceNumber)
	require.Equal(t, "200", resp.Total)
	require.Equal(t, "100", resp.Lines[0].UnitPrice)
	require.Equal(t, 8, store.stockOf(1))
}

func TestCreateSaleShortageReturnsConflict(t *testing.T) {
	store := newFakeStore()
	store.seed(1, 100, 80, 5, 3, 2)
	router := newTestRouter(store)

	rec := postJSON(t, router, "/sales", map[string]any{
		"lines": []map[string]any{{"product_id": 1, "quantity": 5}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp struct {
		Title     string `json:"title"`
		Shortages []struct {
			ProductID int64 `json:"product_id"`
			Requested int   `json:"requested"`
			Available int   `json:"available"`
		} `json:"shortages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Insufficient Stock", resp.Title)
	require.Len(t, resp.Shortages, 1)
	require.Equal(t, 3, resp.Shortages[0].Available)
	require.Equal(t, 3, store.stockOf(1))
}

func TestCreateSaleRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(newFakeStore())
	req := httptest.NewRequest(http.MethodPost, "/sales", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSaleValidatesLines(t *testing.T) {
	router := newTestRouter(newFakeStore())
	rec := postJSON(t, router, "/sales", map[string]any{"lines": []map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefundEndpointIsIdempotent(t *testing.T) {
	store := newFakeStore()
	store.seed(1, 100, 80, 5, 10, 2)
	router := newTestRouter(store)

	rec := postJSON(t, router, "/sales", map[string]any{
		"lines": []map[string]any{{"product_id": 1, "quantity": 4}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, 6, store.stockOf(1))

	rec = postJSON(t, router, "/sales/1/refund", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 10, store.stockOf(1))

	rec = postJSON(t, router, "/sales/1/refund", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, 10, store.stockOf(1))
}

func TestPeekInvoiceEndpoint(t *testing.T) {
	router := newTestRouter(newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/sales/next-invoice", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "INV-2026-000001", resp["invoice_number"])
}

func TestGetSaleNotFound(t *testing.T) {
	router := newTestRouter(newFakeStore())
	req := httptest.NewRequest(http.MethodGet, "/sales/99", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
