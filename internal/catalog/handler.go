package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/products", h.handleCreateProduct)
	r.Get("/products", h.handleListProducts)
	r.Get("/products/low-stock", h.handleLowStock)
	r.Get("/products/barcode/{barcode}", h.handleGetByBarcode)
	r.Get("/products/{id}", h.handleGetProduct)
	r.Put("/products/{id}", h.handleUpdateProduct)
	r.Delete("/products/{id}", h.handleArchiveProduct)
	r.Get("/products/{id}/availability", h.handleCheckStock)

	r.Post("/categories", h.handleCreateCategory)
	r.Get("/categories", h.handleListCategories)
	r.Put("/categories/{id}", h.handleUpdateCategory)
	r.Delete("/categories/{id}", h.handleDeleteCategory)
}

type productRequest struct {
	Name               string `json:"name" validate:"required"`
	Barcode            string `json:"barcode"`
	CategoryID         int64  `json:"category_id"`
	RetailPrice        string `json:"retail_price" validate:"required"`
	WholesalePrice     string `json:"wholesale_price" validate:"required"`
	WholesaleThreshold int    `json:"wholesale_threshold" validate:"gte=0"`
	InitialStock       int    `json:"initial_stock" validate:"gte=0"`
	LowStockThreshold  int    `json:"low_stock_threshold" validate:"gte=0"`
}

type productResponse struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Barcode            string    `json:"barcode,omitempty"`
	CategoryID         int64     `json:"category_id,omitempty"`
	RetailPrice        string    `json:"retail_price"`
	WholesalePrice     string    `json:"wholesale_price"`
	WholesaleThreshold int       `json:"wholesale_threshold"`
	Stock              int       `json:"stock"`
	LowStockThreshold  int       `json:"low_stock_threshold"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func toProductResponse(p Product) productResponse {
	return productResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Slug:               p.Slug,
		Barcode:            p.Barcode,
		CategoryID:         p.CategoryID,
		RetailPrice:        p.RetailPrice.String(),
		WholesalePrice:     p.WholesalePrice.String(),
		WholesaleThreshold: p.WholesaleThreshold,
		Stock:              p.Stock,
		LowStockThreshold:  p.LowStockThreshold,
		Status:             string(p.Status),
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func (h *Handler) decodeProductInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var req productRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return ProductInput{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return ProductInput{}, false
	}
	retail, err := decimal.NewFromString(req.RetailPrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "retail_price is not a valid number")
		return ProductInput{}, false
	}
	wholesale, err := decimal.NewFromString(req.WholesalePrice)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "wholesale_price is not a valid number")
		return ProductInput{}, false
	}
	return ProductInput{
		Name:               req.Name,
		Barcode:            req.Barcode,
		CategoryID:         req.CategoryID,
		RetailPrice:        retail,
		WholesalePrice:     wholesale,
		WholesaleThreshold: req.WholesaleThreshold,
		InitialStock:       req.InitialStock,
		LowStockThreshold:  req.LowStockThreshold,
	}, true
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	input, ok := h.decodeProductInput(w, r)
	if !ok {
		return
	}
	product, err := h.service.UpdateProduct(r.Context(), id, input)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleArchiveProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.ArchiveProduct(r.Context(), id); err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.service.GetProduct(r.Context(), id)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleGetByBarcode(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProductByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Search: r.URL.Query().Get("search"),
		Status: ledger.Status(r.URL.Query().Get("status")),
	}
	filter.CategoryID, _ = strconv.ParseInt(r.URL.Query().Get("category_id"), 10, 64)
	filter.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Archived = r.URL.Query().Get("archived") == "true"

	products, total, err := h.service.ListProducts(r.Context(), filter)
	if err != nil {
		h.logger.Error("list products", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]productResponse, len(products))
	for i, product := range products {
		items[i] = toProductResponse(product)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": items,
		"meta":  shared.NewPagination(filter.Page, filter.Limit, total),
	})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListLowStock(r.Context())
	if err != nil {
		h.logger.Error("list low stock", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]productResponse, len(products))
	for i, product := range products {
		items[i] = toProductResponse(product)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) handleCheckStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	quantity, _ := strconv.Atoi(r.URL.Query().Get("quantity"))
	availability, err := h.service.CheckStock(r.Context(), id, quantity)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": availability.ProductID,
		"requested":  availability.Requested,
		"available":  availability.Available,
		"sufficient": availability.Sufficient,
	})
}

type categoryRequest struct {
	Name string `json:"name" validate:"required"`
}

type categoryResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Slug: c.Slug, CreatedAt: c.CreatedAt}
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	category, err := h.service.CreateCategory(r.Context(), req.Name)
	if err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCategoryResponse(category))
}

func (h *Handler) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req categoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.service.UpdateCategory(r.Context(), id, req.Name); err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteCategory(r.Context(), id); err != nil {
		h.respondCatalogError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.logger.Error("list categories", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	items := make([]categoryResponse, len(categories))
	for i, category := range categories {
		items[i] = toCategoryResponse(category)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrCategoryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBarcode), errors.Is(err, ErrDuplicateCategory):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrCategoryInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
