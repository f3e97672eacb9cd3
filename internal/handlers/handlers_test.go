package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/threadline/apiserver/internal/services"
	"github.com/threadline/apiserver/internal/storage"
	"github.com/threadline/apiserver/internal/store"
	"github.com/threadline/apiserver/internal/token"
	"github.com/threadline/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// memUserRepo is an in-memory services.UserRepository. Lookups counts how
// often the credential store was consulted.
type memUserRepo struct {
	users   map[int]types.User
	nextID  int
	lookups int
	failing bool
}

var errStoreDown = errors.New("store down")

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *memUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.lookups++
	if r.failing {
		return types.User{}, errStoreDown
	}
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	r.lookups++
	if r.failing {
		return types.User{}, errStoreDown
	}
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	user.ID = r.nextID
	r.nextID++
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// memProductRepo is an in-memory services.ProductRepository implementing the
// same filter semantics as the SQL store.
type memProductRepo struct {
	products map[int]types.Product
	nextID   int
	writes   int
}

func newMemProductRepo() *memProductRepo {
	return &memProductRepo{products: map[int]types.Product{}, nextID: 1}
}

func (r *memProductRepo) matches(product types.Product, filter store.ProductFilter) bool {
	if !product.IsActive {
		return false
	}
	if filter.Category != "" && product.Category != filter.Category {
		return false
	}
	if filter.Brand != "" && !strings.Contains(strings.ToLower(product.Brand), strings.ToLower(filter.Brand)) {
		return false
	}
	if filter.MinPrice != nil && product.Price < *filter.MinPrice {
		return false
	}
	if filter.MaxPrice != nil && product.Price > *filter.MaxPrice {
		return false
	}
	if filter.Search != "" {
		haystack := strings.ToLower(product.Name + " " + product.Description + " " + product.Brand)
		if !strings.Contains(haystack, strings.ToLower(filter.Search)) {
			return false
		}
	}
	return true
}

func (r *memProductRepo) List(ctx context.Context, filter store.ProductFilter, productSort store.ProductSort, offset, limit int) ([]types.Product, int, error) {
	matched := []types.Product{}
	for _, product := range r.products {
		if r.matches(product, filter) {
			matched = append(matched, product)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		switch productSort.Field {
		case "price":
			if productSort.Ascending {
				return a.Price < b.Price
			}
			return a.Price > b.Price
		case "name":
			if productSort.Ascending {
				return a.Name < b.Name
			}
			return a.Name > b.Name
		default:
			if productSort.Ascending {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
	})

	total := len(matched)
	if offset >= total {
		return []types.Product{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *memProductRepo) Get(ctx context.Context, id int) (types.Product, error) {
	product, ok := r.products[id]
	if !ok {
		return types.Product{}, store.ErrNotFound
	}
	return product, nil
}

func (r *memProductRepo) Create(ctx context.Context, product types.Product) (types.Product, error) {
	r.writes++
	product.ID = r.nextID
	r.nextID++
	now := time.Now()
	product.CreatedAt = now
	product.UpdatedAt = now
	r.products[product.ID] = product
	return product, nil
}

func (r *memProductRepo) Update(ctx context.Context, product types.Product) (types.Product, error) {
	r.writes++
	current, ok := r.products[product.ID]
	if !ok {
		return types.Product{}, store.ErrNotFound
	}
	product.IsActive = current.IsActive
	product.ImageKey = current.ImageKey
	product.CreatedAt = current.CreatedAt
	product.UpdatedAt = time.Now()
	r.products[product.ID] = product
	return product, nil
}

func (r *memProductRepo) SetImageKey(ctx context.Context, id int, key string) error {
	r.writes++
	product, ok := r.products[id]
	if !ok {
		return store.ErrNotFound
	}
	product.ImageKey = key
	r.products[id] = product
	return nil
}

func (r *memProductRepo) Deactivate(ctx context.Context, id int) error {
	r.writes++
	product, ok := r.products[id]
	if !ok {
		return store.ErrNotFound
	}
	product.IsActive = false
	r.products[id] = product
	return nil
}

// memObjectStore is an in-memory storage.ObjectStorage.
type memObjectStore struct {
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string][]byte{}}
}

func (s *memObjectStore) EnsureBucket(ctx context.Context) error { return nil }

func (s *memObjectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memObjectStore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *memObjectStore) Bucket() string { return "test-bucket" }

// testEnv is a fully wired router over in-memory collaborators.
type testEnv struct {
	router      *chi.Mux
	userRepo    *memUserRepo
	productRepo *memProductRepo
	objects     *memObjectStore
	tokens      *token.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	userRepo := newMemUserRepo()
	productRepo := newMemProductRepo()
	objects := newMemObjectStore()

	userService := services.NewUserService(userRepo)
	productService := services.NewProductService(productRepo, storage.NewImageStore(objects), nil)
	tokens := token.NewService("test-secret", time.Hour)

	router := chi.NewRouter()
	router.Route("/auth", func(r chi.Router) {
		AuthRouter(r, userService, tokens)
	})
	router.Route("/products", func(r chi.Router) {
		ProductRouter(r, productService, RequireAuth(tokens), RequireAdmin(userService))
	})

	return &testEnv{
		router:      router,
		userRepo:    userRepo,
		productRepo: productRepo,
		objects:     objects,
		tokens:      tokens,
	}
}

// addUser seeds a user directly and returns a valid token for it.
func (env *testEnv) addUser(t *testing.T, email, password, role string) (types.User, string) {
	t.Helper()

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := env.userRepo.Create(context.Background(), types.User{
		Email:        email,
		Name:         "Test User",
		Role:         role,
		PasswordHash: string(hashed),
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	signed, err := env.tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, signed
}

// addProduct seeds an active catalog product.
func (env *testEnv) addProduct(t *testing.T, product types.Product) types.Product {
	t.Helper()

	product.IsActive = true
	created, err := env.productRepo.Create(context.Background(), product)
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return created
}

func (env *testEnv) do(t *testing.T, method, target, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func buildRawAuthRequest(header string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req, httptest.NewRecorder()
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, value any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), value); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
}
