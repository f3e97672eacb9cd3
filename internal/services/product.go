package services

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/threadline/apiserver/internal/events"
	"github.com/threadline/apiserver/internal/storage"
	"github.com/threadline/apiserver/internal/store"
	"github.com/threadline/apiserver/types"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxLimit     = 100
)

// sortTokens maps the accepted client sort tokens onto column/direction
// pairs. Anything outside this set silently resolves to the default of
// newest-first; unknown tokens are not an error.
var sortTokens = map[string]store.ProductSort{
	"price_asc":  {Field: "price", Ascending: true},
	"price_desc": {Field: "price", Ascending: false},
	"name_asc":   {Field: "name", Ascending: true},
	"name_desc":  {Field: "name", Ascending: false},
}

var defaultSort = store.ProductSort{Field: "created_at", Ascending: false}

// ProductRepository defines persistence operations for products.
type ProductRepository interface {
	List(ctx context.Context, filter store.ProductFilter, sort store.ProductSort, offset, limit int) ([]types.Product, int, error)
	Get(ctx context.Context, id int) (types.Product, error)
	Create(ctx context.Context, product types.Product) (types.Product, error)
	Update(ctx context.Context, product types.Product) (types.Product, error)
	SetImageKey(ctx context.Context, id int, key string) error
	Deactivate(ctx context.Context, id int) error
}

// ListQuery carries untrusted listing parameters after permissive parsing.
// Zero values mean absent; the engine applies documented defaults.
type ListQuery struct {
	Page     int
	Limit    int
	Category string
	Brand    string
	Search   string
	Sort     string
	MinPrice *float64
	MaxPrice *float64
}

// ListResult is one page of the catalog plus pagination metadata.
type ListResult struct {
	Items []types.Product
	Total int
	Page  int
	Pages int
}

// ProductService encapsulates catalog use-cases. The events publisher is
// optional; when nil, product changes are not announced.
type ProductService struct {
	repo   ProductRepository
	images *storage.ImageStore
	events *events.Publisher
}

func NewProductService(repo ProductRepository, images *storage.ImageStore, publisher *events.Publisher) *ProductService {
	return &ProductService{repo: repo, images: images, events: publisher}
}

// resolveSort maps a client sort token to a column/direction pair.
func resolveSort(token string) store.ProductSort {
	if sort, ok := sortTokens[token]; ok {
		return sort
	}
	return defaultSort
}

// List builds a filtered, sorted, bounded page over active products and
// computes the total match count for pagination metadata.
func (s *ProductService) List(ctx context.Context, query ListQuery) (ListResult, error) {
	page := query.Page
	if page < 1 {
		page = defaultPage
	}
	limit := query.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := (page - 1) * limit

	filter := store.ProductFilter{
		Category: query.Category,
		Brand:    query.Brand,
		Search:   query.Search,
		MinPrice: query.MinPrice,
		MaxPrice: query.MaxPrice,
	}

	items, total, err := s.repo.List(ctx, filter, resolveSort(query.Sort), offset, limit)
	if err != nil {
		return ListResult{}, err
	}

	return ListResult{
		Items: items,
		Total: total,
		Page:  page,
		Pages: (total + limit - 1) / limit,
	}, nil
}

func (s *ProductService) Get(ctx context.Context, id int) (types.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProductService) Create(ctx context.Context, product types.Product) (types.Product, error) {
	product.IsActive = true
	created, err := s.repo.Create(ctx, product)
	if err != nil {
		return types.Product{}, err
	}
	s.publish(ctx, events.ProductCreated, created.ID)
	return created, nil
}

func (s *ProductService) Update(ctx context.Context, product types.Product) (types.Product, error) {
	updated, err := s.repo.Update(ctx, product)
	if err != nil {
		return types.Product{}, err
	}
	s.publish(ctx, events.ProductUpdated, updated.ID)
	return updated, nil
}

// Delete deactivates a product. The record is retained so existing orders
// and event consumers can still resolve it.
func (s *ProductService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.ProductDeleted, id)
	return nil
}

// AttachImage uploads a product image to object storage and records its key
// on the product. The product must exist.
func (s *ProductService) AttachImage(ctx context.Context, id int, filename string, data []byte) (string, error) {
	if s.images == nil {
		return "", errors.New("image storage is not configured")
	}
	if _, err := s.repo.Get(ctx, id); err != nil {
		return "", err
	}

	key, err := s.images.PutImage(ctx, id, filename, data)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetImageKey(ctx, id, key); err != nil {
		return "", err
	}
	s.publish(ctx, events.ProductImageUpdated, id)
	return key, nil
}

// GetImage opens the stored image for a product, returning the reader and
// its content type. Products without an image report store.ErrNotFound.
func (s *ProductService) GetImage(ctx context.Context, id int) (io.ReadCloser, string, error) {
	if s.images == nil {
		return nil, "", errors.New("image storage is not configured")
	}
	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if product.ImageKey == "" {
		return nil, "", store.ErrNotFound
	}
	return s.images.GetImage(ctx, product.ImageKey)
}

// publish announces a product change, best effort. A broker failure must
// not fail the request that triggered it.
func (s *ProductService) publish(ctx context.Context, eventType string, productID int) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishProduct(ctx, eventType, productID); err != nil {
		log.Printf("catalog event %s for product %d not published: %v", eventType, productID, err)
	}
}
