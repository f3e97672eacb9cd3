package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/threadline/apiserver/internal/services"
	"github.com/threadline/apiserver/internal/storage"
	"github.com/threadline/apiserver/internal/store"
	"github.com/threadline/apiserver/types"
)

const (
	maxMultipartMemory = 16 << 20
	maxImageBytes      = 8 << 20
	formFieldImage     = "image"
)

// ProductHandler provides HTTP handlers for the catalog.
type ProductHandler struct {
	productService *services.ProductService
}

// NewProductHandler constructs a handler with the provided service.
func NewProductHandler(productService *services.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

// ProductRouter registers catalog routes on the given router. Reads are
// public; writes require authentication plus the admin role.
func ProductRouter(
	r chi.Router,
	productService *services.ProductService,
	authMiddleware func(http.Handler) http.Handler,
	adminMiddleware func(http.Handler) http.Handler,
) {
	handler := NewProductHandler(productService)

	r.Get("/", handler.ListProducts)
	r.With(authMiddleware, adminMiddleware).Post("/", handler.CreateProduct)
	r.Route("/{productID}", func(r chi.Router) {
		r.Get("/", handler.GetProduct)
		r.Get("/image", handler.GetProductImage)
		r.With(authMiddleware, adminMiddleware).Put("/", handler.UpdateProduct)
		r.With(authMiddleware, adminMiddleware).Delete("/", handler.DeleteProduct)
		r.With(authMiddleware, adminMiddleware).Post("/image", handler.UploadProductImage)
	})
}

// ListProducts returns one filtered, sorted page of active products with
// pagination metadata.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	result, err := h.productService.List(r.Context(), parseListQuery(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{
		Success: true,
		Data:    result.Items,
		Pagination: &Pagination{
			Total: result.Total,
			Page:  result.Page,
			Pages: result.Pages,
		},
	})
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	product, err := h.productService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch product")
		return
	}

	writeData(w, http.StatusOK, product)
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	req, err := parseProductBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.productService.Create(r.Context(), types.Product{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Brand:       req.Brand,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	writeData(w, http.StatusCreated, created)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, err := parseProductBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.productService.Update(r.Context(), types.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Brand:       req.Brand,
		Price:       req.Price,
		Stock:       req.Stock,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	writeData(w, http.StatusOK, updated)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.productService.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadProductImage stores a product image from a multipart form and
// records its object key.
func (h *ProductHandler) UploadProductImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile(formFieldImage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	data, err := readFileLimited(file, maxImageBytes)
	_ = file.Close()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.productService.AttachImage(r.Context(), id, header.Filename, data)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, storage.ErrUnsupportedImageType):
			writeError(w, http.StatusBadRequest, "unsupported image type")
		default:
			writeError(w, http.StatusInternalServerError, "failed to store image")
		}
		return
	}

	writeData(w, http.StatusOK, map[string]string{"image_key": key})
}

// GetProductImage streams the stored image for a product.
func (h *ProductHandler) GetProductImage(w http.ResponseWriter, r *http.Request) {
	id, err := parseProductID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reader, contentType, err := h.productService.GetImage(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "image not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch image")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, reader)
}

// ProductUpsertRequest is the JSON payload for create and update.
type ProductUpsertRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Brand       string  `json:"brand"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

// parseListQuery extracts listing parameters permissively: values that do
// not parse are treated as absent and fall back to the documented defaults.
func parseListQuery(r *http.Request) services.ListQuery {
	values := r.URL.Query()

	query := services.ListQuery{
		Category: strings.TrimSpace(values.Get("category")),
		Brand:    strings.TrimSpace(values.Get("brand")),
		Search:   strings.TrimSpace(values.Get("search")),
		Sort:     strings.TrimSpace(values.Get("sort")),
	}

	if page, err := strconv.Atoi(strings.TrimSpace(values.Get("page"))); err == nil {
		query.Page = page
	}
	if limit, err := strconv.Atoi(strings.TrimSpace(values.Get("limit"))); err == nil {
		query.Limit = limit
	}
	if minPrice, err := strconv.ParseFloat(strings.TrimSpace(values.Get("minPrice")), 64); err == nil {
		query.MinPrice = &minPrice
	}
	if maxPrice, err := strconv.ParseFloat(strings.TrimSpace(values.Get("maxPrice")), 64); err == nil {
		query.MaxPrice = &maxPrice
	}

	return query
}

func parseProductID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "productID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid product id")
	}
	return id, nil
}

func parseProductBody(r *http.Request) (ProductUpsertRequest, error) {
	var req ProductUpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ProductUpsertRequest{}, errors.New("invalid request")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return ProductUpsertRequest{}, errors.New("name is required")
	}
	if req.Price < 0 {
		return ProductUpsertRequest{}, errors.New("price must not be negative")
	}
	if req.Stock < 0 {
		return ProductUpsertRequest{}, errors.New("stock must not be negative")
	}
	return req, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
