package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockline/stockline/internal/platform/httpx"
	"github.com/stockline/stockline/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Handler exposes the administrative stock correction endpoint. Regular
// stock movement happens through sales and purchase receipts; this path is
// for physical counts, breakage and similar manual fixes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    AuditPort
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit AuditPort) *Handler {
	return &Handler{logger: logger, service: service, audit: audit, validate: validator.New()}
}

// MountRoutes registers stock adjustment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/adjustments", h.handleAdjust)
}

type adjustRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason" validate:"required"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	level, err := h.service.Adjust(r.Context(), req.ProductID, req.Delta)
	if err != nil {
		h.respondAdjustError(w, r, err)
		return
	}

	if h.audit != nil {
		_ = h.audit.Record(r.Context(), shared.AuditLog{
			Action:   "STOCK_ADJUST",
			Entity:   "product",
			EntityID: fmt.Sprintf("%d", req.ProductID),
			Meta:     map[string]any{"delta": req.Delta, "reason": req.Reason, "stock": level.Stock},
		})
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"product_id": level.ProductID,
		"stock":      level.Stock,
		"status":     string(level.Status),
	})
}

func (h *Handler) respondAdjustError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *ShortageError
	switch {
	case errors.As(err, &shortage):
		httpx.JSON(w, http.StatusConflict, map[string]any{
			"title":     "Insufficient Stock",
			"status":    http.StatusConflict,
			"detail":    err.Error(),
			"requested": shortage.Requested,
			"available": shortage.Available,
		})
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", "concurrent update conflict, retry the request")
	default:
		h.logger.Error("stock adjustment failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
