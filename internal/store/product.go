package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/threadline/apiserver/types"
)

// ProductFilter narrows a catalog listing. Zero values mean no constraint.
// Only active products are eligible regardless of the filter.
type ProductFilter struct {
	// Category matches exactly when set.
	Category string
	// Brand matches as a case-insensitive substring when set.
	Brand string
	// Search runs a full-text query over name, description and brand.
	Search string
	// MinPrice and MaxPrice are inclusive bounds, independently optional.
	MinPrice *float64
	MaxPrice *float64
}

// ProductSort is a resolved sort key. Field must be one of the whitelisted
// columns; anything else falls back to created_at descending.
type ProductSort struct {
	Field     string
	Ascending bool
}

var sortableColumns = map[string]bool{
	"price":      true,
	"name":       true,
	"created_at": true,
}

// likeEscaper neutralizes LIKE/ILIKE pattern metacharacters so user input
// matches as a literal substring.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ProductRepository handles persistence for catalog products.
type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// buildProductWhere renders the WHERE clause for a filter. Placeholders are
// numbered from 1; the returned args line up with them.
func buildProductWhere(filter ProductFilter) (string, []any) {
	clauses := []string{"is_active = TRUE"}
	args := []any{}

	if filter.Category != "" {
		args = append(args, filter.Category)
		clauses = append(clauses, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Brand != "" {
		args = append(args, "%"+likeEscaper.Replace(filter.Brand)+"%")
		clauses = append(clauses, fmt.Sprintf("brand ILIKE $%d", len(args)))
	}
	if filter.MinPrice != nil {
		args = append(args, *filter.MinPrice)
		clauses = append(clauses, fmt.Sprintf("price >= $%d", len(args)))
	}
	if filter.MaxPrice != nil {
		args = append(args, *filter.MaxPrice)
		clauses = append(clauses, fmt.Sprintf("price <= $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, filter.Search)
		clauses = append(clauses, fmt.Sprintf(
			"to_tsvector('english', name || ' ' || description || ' ' || brand) @@ plainto_tsquery('english', $%d)",
			len(args)))
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

// orderByClause renders the ORDER BY for a resolved sort. Equal sort keys
// tie-break on id so identical queries page in a stable order.
func orderByClause(sort ProductSort) string {
	column := sort.Field
	if !sortableColumns[column] {
		return "ORDER BY created_at DESC, id DESC"
	}
	direction := "DESC"
	if sort.Ascending {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", column, direction, direction)
}

// List returns one page of active products matching the filter, plus the
// total match count computed with a separate query. The two reads are not a
// single snapshot; the total may drift under concurrent writes.
func (r *ProductRepository) List(ctx context.Context, filter ProductFilter, sort ProductSort, offset, limit int) ([]types.Product, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	where, args := buildProductWhere(filter)

	countQuery := "SELECT COUNT(1) FROM products " + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := fmt.Sprintf(`
		SELECT id, name, description, category, brand, price, stock, image_key, is_active, created_at, updated_at
		FROM products
		%s
		%s
		OFFSET $%d LIMIT $%d`, where, orderByClause(sort), len(args)+1, len(args)+2)
	listArgs := append(args, offset, limit)

	rows, err := r.db.QueryContext(ctx, listQuery, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]types.Product, 0, limit)
	for rows.Next() {
		var product types.Product
		if err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&product.Category,
			&product.Brand,
			&product.Price,
			&product.Stock,
			&product.ImageKey,
			&product.IsActive,
			&product.CreatedAt,
			&product.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

func (r *ProductRepository) Get(ctx context.Context, id int) (types.Product, error) {
	const query = `
		SELECT id, name, description, category, brand, price, stock, image_key, is_active, created_at, updated_at
		FROM products
		WHERE id = $1`
	var product types.Product
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Category,
		&product.Brand,
		&product.Price,
		&product.Stock,
		&product.ImageKey,
		&product.IsActive,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Product{}, ErrNotFound
		}
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Create(ctx context.Context, product types.Product) (types.Product, error) {
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now

	const query = `
		INSERT INTO products (name, description, category, brand, price, stock, image_key, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Category,
		product.Brand,
		product.Price,
		product.Stock,
		product.ImageKey,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	).Scan(&product.ID); err != nil {
		return types.Product{}, err
	}
	return product, nil
}

func (r *ProductRepository) Update(ctx context.Context, product types.Product) (types.Product, error) {
	product.UpdatedAt = time.Now()

	const query = `
		UPDATE products
		SET name = $1,
			description = $2,
			category = $3,
			brand = $4,
			price = $5,
			stock = $6,
			updated_at = $7
		WHERE id = $8`
	result, err := r.db.ExecContext(
		ctx,
		query,
		product.Name,
		product.Description,
		product.Category,
		product.Brand,
		product.Price,
		product.Stock,
		product.UpdatedAt,
		product.ID,
	)
	if err != nil {
		return types.Product{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Product{}, err
	}
	if affected == 0 {
		return types.Product{}, ErrNotFound
	}
	return product, nil
}

// SetImageKey records the object-storage key of the product image.
func (r *ProductRepository) SetImageKey(ctx context.Context, id int, key string) error {
	const query = `UPDATE products SET image_key = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, key, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a product so it no longer appears in listings.
func (r *ProductRepository) Deactivate(ctx context.Context, id int) error {
	const query = `UPDATE products SET is_active = FALSE, updated_at = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
