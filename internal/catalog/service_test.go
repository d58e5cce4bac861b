package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/stockline/stockline/internal/ledger"
)

type memoryRepo struct {
	mu            sync.Mutex
	products      map[int64]Product
	categories    map[int64]Category
	nextProduct   int64
	nextCategory  int64
	barcodes      map[string]int64
	categoryNames map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:      make(map[int64]Product),
		categories:    make(map[int64]Category),
		barcodes:      make(map[string]int64),
		categoryNames: make(map[string]int64),
	}
}

func (m *memoryRepo) CreateProduct(ctx context.Context, product Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.Barcode != "" {
		if _, taken := m.barcodes[product.Barcode]; taken {
			return Product{}, ErrDuplicateBarcode
		}
	}
	m.nextProduct++
	product.ID = m.nextProduct
	product.CreatedAt = time.Now()
	product.UpdatedAt = product.CreatedAt
	m.products[product.ID] = product
	if product.Barcode != "" {
		m.barcodes[product.Barcode] = product.ID
	}
	return product, nil
}

func (m *memoryRepo) UpdateProduct(ctx context.Context, id int64, product Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.products[id]
	if !ok || existing.Archived {
		return ErrProductNotFound
	}
	if product.Barcode != "" {
		if owner, taken := m.barcodes[product.Barcode]; taken && owner != id {
			return ErrDuplicateBarcode
		}
	}
	delete(m.barcodes, existing.Barcode)
	product.ID = id
	product.Stock = existing.Stock
	m.products[id] = product
	if product.Barcode != "" {
		m.barcodes[product.Barcode] = id
	}
	return nil
}

func (m *memoryRepo) ArchiveProduct(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok || product.Archived {
		return false, nil
	}
	product.Archived = true
	m.products[id] = product
	return true, nil
}

func (m *memoryRepo) GetProduct(ctx context.Context, id int64) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok || product.Archived {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (m *memoryRepo) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.barcodes[barcode]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	product := m.products[id]
	if product.Archived {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (m *memoryRepo) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, product := range m.products {
		if product.Archived != filter.Archived {
			continue
		}
		if filter.CategoryID > 0 && product.CategoryID != filter.CategoryID {
			continue
		}
		if filter.Status != "" && product.Status != filter.Status {
			continue
		}
		out = append(out, product)
	}
	return out, len(out), nil
}

func (m *memoryRepo) ListLowStock(ctx context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Product
	for _, product := range m.products {
		if !product.Archived && product.Stock <= product.LowStockThreshold {
			out = append(out, product)
		}
	}
	return out, nil
}

func (m *memoryRepo) CreateCategory(ctx context.Context, category Category) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.categoryNames[category.Name]; taken {
		return Category{}, ErrDuplicateCategory
	}
	m.nextCategory++
	category.ID = m.nextCategory
	category.CreatedAt = time.Now()
	m.categories[category.ID] = category
	m.categoryNames[category.Name] = category.ID
	return category, nil
}

func (m *memoryRepo) UpdateCategory(ctx context.Context, id int64, name, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[id]
	if !ok {
		return ErrCategoryNotFound
	}
	delete(m.categoryNames, category.Name)
	category.Name = name
	category.Slug = slug
	m.categories[id] = category
	m.categoryNames[name] = id
	return nil
}

func (m *memoryRepo) DeleteCategory(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	category, ok := m.categories[id]
	if !ok {
		return ErrCategoryNotFound
	}
	delete(m.categoryNames, category.Name)
	delete(m.categories, id)
	return nil
}

func (m *memoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Category
	for _, category := range m.categories {
		out = append(out, category)
	}
	return out, nil
}

func (m *memoryRepo) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, product := range m.products {
		if !product.Archived && product.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func productInput(name string) ProductInput {
	return ProductInput{
		Name:               name,
		RetailPrice:        decimal.NewFromInt(100),
		WholesalePrice:     decimal.NewFromInt(80),
		WholesaleThreshold: 5,
		InitialStock:       10,
	}
}

func TestCreateProductDerivesStatusAndSlug(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	full := productInput("Café Rojo 250g")
	product, err := svc.CreateProduct(ctx, full)
	require.NoError(t, err)
	require.Equal(t, "cafe-rojo-250g", product.Slug)
	require.Equal(t, ledger.StatusInStock, product.Status)
	require.Equal(t, DefaultLowStockThreshold, product.LowStockThreshold)

	empty := productInput("Empty Shelf")
	empty.InitialStock = 0
	product, err = svc.CreateProduct(ctx, empty)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusOutOfStock, product.Status)

	low := productInput("Nearly Gone")
	low.InitialStock = 3
	product, err = svc.CreateProduct(ctx, low)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusLowStock, product.Status)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	input := productInput("  ")
	_, err := svc.CreateProduct(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = productInput("Negative")
	input.RetailPrice = decimal.NewFromInt(-1)
	_, err = svc.CreateProduct(ctx, input)
	require.ErrorIs(t, err, ErrValidation)

	input = productInput("Bad Stock")
	input.InitialStock = -1
	_, err = svc.CreateProduct(ctx, input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestDuplicateBarcodeRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	first := productInput("First")
	first.Barcode = "4006381333931"
	_, err := svc.CreateProduct(ctx, first)
	require.NoError(t, err)

	second := productInput("Second")
	second.Barcode = "4006381333931"
	_, err = svc.CreateProduct(ctx, second)
	require.ErrorIs(t, err, ErrDuplicateBarcode)
}

func TestBarcodeLookup(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	input := productInput("Scannable")
	input.Barcode = "5000112637922"
	created, err := svc.CreateProduct(ctx, input)
	require.NoError(t, err)

	found, err := svc.GetProductByBarcode(ctx, "5000112637922")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.GetProductByBarcode(ctx, "0000000000000")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestArchiveHidesProduct(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, productInput("Retired"))
	require.NoError(t, err)

	require.NoError(t, svc.ArchiveProduct(ctx, product.ID))
	_, err = svc.GetProduct(ctx, product.ID)
	require.ErrorIs(t, err, ErrProductNotFound)

	err = svc.ArchiveProduct(ctx, product.ID)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestCheckStock(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, productInput("Checked"))
	require.NoError(t, err)

	availability, err := svc.CheckStock(ctx, product.ID, 4)
	require.NoError(t, err)
	require.True(t, availability.Sufficient)
	require.Equal(t, 10, availability.Available)

	availability, err = svc.CheckStock(ctx, product.ID, 11)
	require.NoError(t, err)
	require.False(t, availability.Sufficient)

	_, err = svc.CheckStock(ctx, product.ID, 0)
	require.ErrorIs(t, err, ErrValidation)
}

func TestLowStockListing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	healthy := productInput("Healthy")
	_, err := svc.CreateProduct(ctx, healthy)
	require.NoError(t, err)

	low := productInput("Running Out")
	low.InitialStock = 2
	_, err = svc.CreateProduct(ctx, low)
	require.NoError(t, err)

	out := productInput("Gone")
	out.InitialStock = 0
	_, err = svc.CreateProduct(ctx, out)
	require.NoError(t, err)

	products, err := svc.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func TestCategoryLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	category, err := svc.CreateCategory(ctx, "Beverages")
	require.NoError(t, err)
	require.Equal(t, "beverages", category.Slug)

	_, err = svc.CreateCategory(ctx, "Beverages")
	require.ErrorIs(t, err, ErrDuplicateCategory)

	input := productInput("Cola")
	input.CategoryID = category.ID
	_, err = svc.CreateProduct(ctx, input)
	require.NoError(t, err)

	err = svc.DeleteCategory(ctx, category.ID)
	require.ErrorIs(t, err, ErrCategoryInUse)

	require.NoError(t, svc.UpdateCategory(ctx, category.ID, "Drinks"))

	empty, err := svc.CreateCategory(ctx, "Snacks")
	require.NoError(t, err)
	require.NoError(t, svc.DeleteCategory(ctx, empty.ID))
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Café Rojo":       "cafe-rojo",
		"  Spaced  Out  ": "spaced-out",
		"100% Juice (1L)": "100-juice-1l",
		"Überraschung":    "uberraschung",
		"already-slugged": "already-slugged",
	}
	for input, want := range cases {
		require.Equal(t, want, Slugify(input), "input %q", input)
	}
}
