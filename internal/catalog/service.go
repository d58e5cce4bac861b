package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stockline/stockline/internal/ledger"
	"github.com/stockline/stockline/internal/shared"
)

// Repository abstracts product and category persistence.
type Repository interface {
	CreateProduct(ctx context.Context, product Product) (Product, error)
	UpdateProduct(ctx context.Context, id int64, product Product) error
	ArchiveProduct(ctx context.Context, id int64) (bool, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (Product, error)
	ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error)
	ListLowStock(ctx context.Context) ([]Product, error)

	CreateCategory(ctx context.Context, category Category) (Category, error)
	UpdateCategory(ctx context.Context, id int64, name, slug string) error
	DeleteCategory(ctx context.Context, id int64) error
	ListCategories(ctx context.Context) ([]Category, error)
	CountProductsInCategory(ctx context.Context, categoryID int64) (int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service applies catalog business rules on top of the repository.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ProductInput carries the writable product fields.
type ProductInput struct {
	Name               string
	Barcode            string
	CategoryID         int64
	RetailPrice        decimal.Decimal
	WholesalePrice     decimal.Decimal
	WholesaleThreshold int
	InitialStock       int
	LowStockThreshold  int
}

// DefaultLowStockThreshold applies when a product does not set its own.
const DefaultLowStockThreshold = 5

func (s *Service) validateProduct(input ProductInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.RetailPrice.IsNegative() || input.WholesalePrice.IsNegative() {
		return fmt.Errorf("%w: prices must be >= 0", ErrValidation)
	}
	if input.WholesaleThreshold < 0 {
		return fmt.Errorf("%w: wholesale threshold must be >= 0", ErrValidation)
	}
	if input.InitialStock < 0 {
		return fmt.Errorf("%w: initial stock must be >= 0", ErrValidation)
	}
	if input.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low stock threshold must be >= 0", ErrValidation)
	}
	return nil
}

// CreateProduct registers a new product. The initial status is derived from
// the initial stock so a product created empty shows out-of-stock at once.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := s.validateProduct(input); err != nil {
		return Product{}, err
	}
	lowThreshold := input.LowStockThreshold
	if lowThreshold == 0 {
		lowThreshold = DefaultLowStockThreshold
	}
	product := Product{
		Name:               strings.TrimSpace(input.Name),
		Slug:               Slugify(input.Name),
		Barcode:            strings.TrimSpace(input.Barcode),
		CategoryID:         input.CategoryID,
		RetailPrice:        input.RetailPrice,
		WholesalePrice:     input.WholesalePrice,
		WholesaleThreshold: input.WholesaleThreshold,
		Stock:              input.InitialStock,
		LowStockThreshold:  lowThreshold,
		Status:             ledger.StatusFor(input.InitialStock, lowThreshold),
	}
	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "PRODUCT_CREATE", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// UpdateProduct changes name, pricing and thresholds. Stock is deliberately
// absent; stock moves only through ledger adjustments.
func (s *Service) UpdateProduct(ctx context.Context, id int64, input ProductInput) (Product, error) {
	if err := s.validateProduct(input); err != nil {
		return Product{}, err
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	existing.Name = strings.TrimSpace(input.Name)
	existing.Slug = Slugify(input.Name)
	existing.Barcode = strings.TrimSpace(input.Barcode)
	existing.CategoryID = input.CategoryID
	existing.RetailPrice = input.RetailPrice
	existing.WholesalePrice = input.WholesalePrice
	existing.WholesaleThreshold = input.WholesaleThreshold
	if input.LowStockThreshold > 0 {
		existing.LowStockThreshold = input.LowStockThreshold
	}
	if err := s.repo.UpdateProduct(ctx, id, existing); err != nil {
		return Product{}, err
	}
	s.recordAudit(ctx, "PRODUCT_UPDATE", id, map[string]any{"name": existing.Name})
	return existing, nil
}

// ArchiveProduct soft-deletes a product. Archived products stay referenced
// by historical sales but disappear from listings and reject new stock
// operations.
func (s *Service) ArchiveProduct(ctx context.Context, id int64) error {
	archived, err := s.repo.ArchiveProduct(ctx, id)
	if err != nil {
		return err
	}
	if !archived {
		return ErrProductNotFound
	}
	s.recordAudit(ctx, "PRODUCT_ARCHIVE", id, nil)
	return nil
}

// GetProduct returns one active product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, ErrProductNotFound
	}
	return s.repo.GetProduct(ctx, id)
}

// GetProductByBarcode looks a product up for POS scanning.
func (s *Service) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return Product{}, ErrProductNotFound
	}
	return s.repo.GetProductByBarcode(ctx, barcode)
}

// ListProducts returns active products matching the filter.
func (s *Service) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}
	return s.repo.ListProducts(ctx, filter)
}

// ListLowStock returns products at or below their low-stock threshold,
// including those fully out of stock.
func (s *Service) ListLowStock(ctx context.Context) ([]Product, error) {
	return s.repo.ListLowStock(ctx)
}

// CheckStock answers whether the requested quantity can currently be
// served. Advisory only: the answer can be stale by the time a sale runs.
func (s *Service) CheckStock(ctx context.Context, productID int64, quantity int) (Availability, error) {
	if quantity <= 0 {
		return Availability{}, fmt.Errorf("%w: quantity must be > 0", ErrValidation)
	}
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return Availability{}, err
	}
	return Availability{
		ProductID:  productID,
		Requested:  quantity,
		Available:  product.Stock,
		Sufficient: product.Stock >= quantity,
	}, nil
}

// CreateCategory registers a category.
func (s *Service) CreateCategory(ctx context.Context, name string) (Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Category{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	category, err := s.repo.CreateCategory(ctx, Category{Name: name, Slug: Slugify(name)})
	if err != nil {
		return Category{}, err
	}
	s.recordAudit(ctx, "CATEGORY_CREATE", category.ID, map[string]any{"name": name})
	return category, nil
}

// UpdateCategory renames a category.
func (s *Service) UpdateCategory(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := s.repo.UpdateCategory(ctx, id, name, Slugify(name)); err != nil {
		return err
	}
	s.recordAudit(ctx, "CATEGORY_UPDATE", id, map[string]any{"name": name})
	return nil
}

// DeleteCategory removes an empty category. Categories still holding
// products cannot be removed; reassign the products first.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	count, err := s.repo.CountProductsInCategory(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %d products attached", ErrCategoryInUse, count)
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, "CATEGORY_DELETE", id, nil)
	return nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) recordAudit(ctx context.Context, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := "product"
	if strings.HasPrefix(action, "CATEGORY_") {
		entity = "category"
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
	})
}
