package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/pricing"
	"github.com/stockline/stockline/internal/shared"
)

// PeekerPort previews the next invoice number without consuming it.
type PeekerPort interface {
	Peek(ctx context.Context) (string, error)
}

// Handler manages sales endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	peeker   PeekerPort
	validate *validator.Validate
	stats    singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, peeker PeekerPort) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		peeker:   peeker,
		validate: validator.New(),
	}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.handleCreate)
	r.Get("/sales", h.handleList)
	r.Get("/sales/stats/daily", h.handleDailyStats)
	r.Get("/sales/next-invoice", h.handlePeekInvoice)
	r.Get("/sales/{id}", h.handleGet)
	r.Post("/sales/{id}/refund", h.handleRefund)
}

type saleLineRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice *string `json:"unit_price,omitempty"`
}

type createSaleRequest struct {
	Lines           []saleLineRequest `json:"lines" validate:"required,min=1,dive"`
	DiscountType    string            `json:"discount_type" validate:"omitempty,oneof=none percentage fixed"`
	DiscountValue   string            `json:"discount_value"`
	PaymentMethod   string            `json:"payment_method"`
	PaymentStatus   string            `json:"payment_status" validate:"omitempty,oneof=paid pending"`
	CustomerName    string            `json:"customer_name"`
	CustomerContact string            `json:"customer_contact"`
	CustomerEmail   string            `json:"customer_email" validate:"omitempty,email"`
	CustomerAddress string            `json:"customer_address"`
	Notes           string            `json:"notes"`
}

type saleLineResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type saleResponse struct {
	ID              int64              `json:"id"`
	InvoiceNumber   string             `json:"invoice_number"`
	Lines           []saleLineResponse `json:"lines"`
	DiscountType    string             `json:"discount_type"`
	DiscountValue   string             `json:"discount_value"`
	Subtotal        string             `json:"subtotal"`
	DiscountAmount  string             `json:"discount_amount"`
	Total           string             `json:"total"`
	PaymentMethod   string             `json:"payment_method"`
	PaymentStatus   string             `json:"payment_status"`
	CustomerName    string             `json:"customer_name,omitempty"`
	CustomerContact string             `json:"customer_contact,omitempty"`
	CustomerEmail   string             `json:"customer_email,omitempty"`
	CustomerAddress string             `json:"customer_address,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	Refunded        bool               `json:"refunded"`
	CreatedAt       time.Time          `json:"created_at"`
}

func toSaleResponse(sale Sale) saleResponse {
	lines := make([]saleLineResponse, len(sale.Lines))
	for i, line := range sale.Lines {
		lines[i] = saleLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.String(),
			LineTotal: line.LineTotal.String(),
		}
	}
	return saleResponse{
		ID:              sale.ID,
		InvoiceNumber:   sale.InvoiceNumber,
		Lines:           lines,
		DiscountType:    string(sale.DiscountType),
		DiscountValue:   sale.DiscountValue.String(),
		Subtotal:        sale.Subtotal.String(),
		DiscountAmount:  sale.DiscountAmount.String(),
		Total:           sale.Total.String(),
		PaymentMethod:   sale.PaymentMethod,
		PaymentStatus:   sale.PaymentStatus,
		CustomerName:    sale.CustomerName,
		CustomerContact: sale.CustomerContact,
		CustomerEmail:   sale.CustomerEmail,
		CustomerAddress: sale.CustomerAddress,
		Notes:           sale.Notes,
		Refunded:        sale.Refunded,
		CreatedAt:       sale.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateSaleInput{
		DiscountType:    DiscountType(req.DiscountType),
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		CustomerName:    req.CustomerName,
		CustomerContact: req.CustomerContact,
		CustomerEmail:   req.CustomerEmail,
		CustomerAddress: req.CustomerAddress,
		Notes:           req.Notes,
	}
	if req.DiscountValue != "" {
		value, err := decimal.NewFromString(req.DiscountValue)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "discount_value is not a valid number")
			return
		}
		input.DiscountValue = value
	}
	for _, line := range req.Lines {
		in := LineInput{ProductID: line.ProductID, Quantity: line.Quantity}
		if line.UnitPrice != nil {
			price, err := decimal.NewFromString(*line.UnitPrice)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_price is not a valid number")
				return
			}
			in.UnitPrice = &price
		}
		input.Lines = append(input.Lines, in)
	}

	sale, err := h.service.CreateSale(r.Context(), input)
	if err != nil {
		h.respondSaleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSaleResponse(sale))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "sale id must be a positive integer")
		return
	}
	sale, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondSaleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
			return
		}
		// Inclusive end of day.
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}

	sales, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list sales", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]saleResponse, len(sales))
	for i, sale := range sales {
		items[i] = toSaleResponse(sale)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"meta":  shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "sale id must be a positive integer")
		return
	}
	sale, err := h.service.Refund(r.Context(), id)
	if err != nil {
		h.respondSaleError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSaleResponse(sale))
}

func (h *Handler) handlePeekInvoice(w http.ResponseWriter, r *http.Request) {
	number, err := h.peeker.Peek(r.Context())
	if err != nil {
		h.logger.Error("peek invoice number", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"invoice_number": number})
}

type dailyStatResponse struct {
	Day          string `json:"day"`
	Total        string `json:"total"`
	Transactions int    `json:"transactions"`
}

func (h *Handler) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	// Dashboards poll this; collapse concurrent identical queries.
	key := "daily:" + strconv.Itoa(limit)
	result, err, _ := h.stats.Do(key, func() (any, error) {
		return h.service.DailyStats(r.Context(), limit)
	})
	if err != nil {
		h.logger.Error("daily stats", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	stats := result.([]DailyStat)
	items := make([]dailyStatResponse, len(stats))
	for i, stat := range stats {
		items[i] = dailyStatResponse{
			Day:          stat.Day.Format("2006-01-02"),
			Total:        stat.Total.String(),
			Transactions: stat.Transactions,
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) respondSaleError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		shortages := make([]map[string]any, len(stockErr.Shortages))
		for i, s := range stockErr.Shortages {
			shortages[i] = map[string]any{
				"product_id": s.ProductID,
				"requested":  s.Requested,
				"available":  s.Available,
			}
		}
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":     "Insufficient Stock",
			"status":    http.StatusConflict,
			"detail":    err.Error(),
			"shortages": shortages,
		})
	case errors.Is(err, ErrEmptyCart), errors.Is(err, ErrInvalidLine), errors.Is(err, ErrInvalidDiscount),
		errors.Is(err, pricing.ErrInvalidPrice):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, ledger.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyRefunded):
		httpx.Problem(w, http.StatusConflict, "Already Refunded", err.Error())
	case errors.Is(err, ledger.ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "concurrent update conflict, retry the request")
	default:
		h.logger.Error("sale request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
