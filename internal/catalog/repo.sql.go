package catalog

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline/stockline/internal/ledger"
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const productColumns = `id, name, slug, barcode, category_id, retail_price, wholesale_price,
	wholesale_threshold, stock, low_stock_threshold, status, archived, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var status string
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Barcode, &p.CategoryID, &p.RetailPrice,
		&p.WholesalePrice, &p.WholesaleThreshold, &p.Stock, &p.LowStockThreshold, &status,
		&p.Archived, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.Status = ledger.Status(status)
	return p, nil
}

func (r *repository) CreateProduct(ctx context.Context, product Product) (Product, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO products (name, slug, barcode, category_id, retail_price, wholesale_price,
	wholesale_threshold, stock, low_stock_threshold, status, archived, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW(), NOW())
RETURNING id, created_at, updated_at`,
		product.Name, product.Slug, product.Barcode, product.CategoryID, product.RetailPrice,
		product.WholesalePrice, product.WholesaleThreshold, product.Stock,
		product.LowStockThreshold, string(product.Status)).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return Product{}, mapDuplicate(err, ErrDuplicateBarcode)
	}
	return product, nil
}

func (r *repository) UpdateProduct(ctx context.Context, id int64, product Product) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE products SET name = $2, slug = $3, barcode = $4, category_id = $5, retail_price = $6,
	wholesale_price = $7, wholesale_threshold = $8, low_stock_threshold = $9,
	status = CASE WHEN stock = 0 THEN 'out-of-stock'
		WHEN stock <= $9 THEN 'low-stock'
		ELSE 'in-stock' END,
	updated_at = NOW()
WHERE id = $1 AND NOT archived`,
		id, product.Name, product.Slug, product.Barcode, product.CategoryID,
		product.RetailPrice, product.WholesalePrice, product.WholesaleThreshold,
		product.LowStockThreshold)
	if err != nil {
		return mapDuplicate(err, ErrDuplicateBarcode)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *repository) ArchiveProduct(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE products SET archived = TRUE, updated_at = NOW() WHERE id = $1 AND NOT archived`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	product, err := scanProduct(r.pool.QueryRow(ctx, `
SELECT `+productColumns+` FROM products WHERE id = $1 AND NOT archived`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return product, err
}

func (r *repository) GetProductByBarcode(ctx context.Context, barcode string) (Product, error) {
	product, err := scanProduct(r.pool.QueryRow(ctx, `
SELECT `+productColumns+` FROM products WHERE barcode = $1 AND NOT archived`, barcode))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrProductNotFound
	}
	return product, err
}

func (r *repository) ListProducts(ctx context.Context, filter ListFilter) ([]Product, int, error) {
	where := ` WHERE archived = $1`
	args := []any{filter.Archived}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (name ILIKE $` + n + ` OR barcode ILIKE $` + n + `)`
	}
	if filter.CategoryID > 0 {
		args = append(args, filter.CategoryID)
		where += ` AND category_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY name LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, filter.Limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	return products, total, rows.Err()
}

func (r *repository) ListLowStock(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+productColumns+` FROM products
WHERE NOT archived AND stock <= low_stock_threshold
ORDER BY stock ASC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (r *repository) CreateCategory(ctx context.Context, category Category) (Category, error) {
	err := r.pool.QueryRow(ctx, `
INSERT INTO categories (name, slug, created_at) VALUES ($1, $2, NOW())
RETURNING id, created_at`, category.Name, category.Slug).
		Scan(&category.ID, &category.CreatedAt)
	if err != nil {
		return Category{}, mapDuplicate(err, ErrDuplicateCategory)
	}
	return category, nil
}

func (r *repository) UpdateCategory(ctx context.Context, id int64, name, slug string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE categories SET name = $2, slug = $3 WHERE id = $1`, id, name, slug)
	if err != nil {
		return mapDuplicate(err, ErrDuplicateCategory)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *repository) DeleteCategory(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *repository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, slug, created_at FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *repository) CountProductsInCategory(ctx context.Context, categoryID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM products WHERE category_id = $1 AND NOT archived`, categoryID).
		Scan(&count)
	return count, err
}

func mapDuplicate(err error, sentinel error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return sentinel
	}
	return err
}
