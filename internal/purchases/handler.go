package purchases

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// Handler manages purchase order endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/purchase-orders", h.handleCreate)
	r.Get("/purchase-orders", h.handleList)
	r.Get("/purchase-orders/pending", h.handlePending)
	r.Get("/purchase-orders/{id}", h.handleGet)
	r.Post("/purchase-orders/{id}/receive", h.handleReceive)
	r.Post("/purchase-orders/{id}/cancel", h.handleCancel)
}

type itemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	UnitCost  string `json:"unit_cost" validate:"required"`
}

type createOrderRequest struct {
	Reference       string        `json:"reference" validate:"required"`
	SupplierName    string        `json:"supplier_name" validate:"required"`
	SupplierContact string        `json:"supplier_contact"`
	Notes           string        `json:"notes"`
	ExpectedAt      *time.Time    `json:"expected_at,omitempty"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
}

type itemResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitCost  string `json:"unit_cost"`
}

type orderResponse struct {
	ID              int64          `json:"id"`
	Reference       string         `json:"reference"`
	SupplierName    string         `json:"supplier_name"`
	SupplierContact string         `json:"supplier_contact,omitempty"`
	Status          string         `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	Items           []itemResponse `json:"items,omitempty"`
	TotalCost       string         `json:"total_cost"`
	ExpectedAt      *time.Time     `json:"expected_at,omitempty"`
	ReceivedAt      *time.Time     `json:"received_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

func toOrderResponse(order PurchaseOrder) orderResponse {
	items := make([]itemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = itemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost.String(),
		}
	}
	return orderResponse{
		ID:              order.ID,
		Reference:       order.Reference,
		SupplierName:    order.SupplierName,
		SupplierContact: order.SupplierContact,
		Status:          string(order.Status),
		Notes:           order.Notes,
		Items:           items,
		TotalCost:       order.TotalCost.String(),
		ExpectedAt:      order.ExpectedAt,
		ReceivedAt:      order.ReceivedAt,
		CreatedAt:       order.CreatedAt,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateOrderInput{
		Reference:       req.Reference,
		SupplierName:    req.SupplierName,
		SupplierContact: req.SupplierContact,
		Notes:           req.Notes,
		ExpectedAt:      req.ExpectedAt,
	}
	for _, item := range req.Items {
		cost, err := decimal.NewFromString(item.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost is not a valid number")
			return
		}
		input.Items = append(input.Items, ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  cost,
		})
	}

	order, err := h.service.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))

	orders, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list purchase orders", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]orderResponse, len(orders))
	for i, order := range orders {
		items[i] = toOrderResponse(order)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"meta":  shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.Pending(r.Context())
	if err != nil {
		h.logger.Error("list pending purchase orders", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]orderResponse, len(orders))
	for i, order := range orders {
		items[i] = toOrderResponse(order)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	result, err := h.service.Receive(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"order":            toOrderResponse(result.Order),
		"skipped_products": result.SkippedProducts,
	})
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.respondOrderError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrEmptyOrder), errors.Is(err, ErrInvalidItem):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrAlreadyReceived):
		httpx.Problem(w, http.StatusConflict, "Already Received", err.Error())
	case errors.Is(err, ErrNotPending):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("purchase order request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
