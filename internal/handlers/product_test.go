package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/threadline/apiserver/internal/services"
	"github.com/threadline/apiserver/internal/token"
	"github.com/threadline/apiserver/types"
)

type listResponse struct {
	Success    bool            `json:"success"`
	Data       []types.Product `json:"data"`
	Pagination *Pagination     `json:"pagination"`
}

func seedCatalog(t *testing.T, env *testEnv) {
	t.Helper()

	items := []types.Product{
		{Name: "Classic Tee", Description: "A plain cotton tee", Category: "Men", Brand: "Acme", Price: 19.99, Stock: 40},
		{Name: "Graphic Tee", Description: "Printed tee with logo", Category: "Men", Brand: "Northwind", Price: 24.99, Stock: 15},
		{Name: "Summer Dress", Description: "Light linen dress", Category: "Women", Brand: "Acme", Price: 59.99, Stock: 8},
		{Name: "Wool Scarf", Description: "Warm winter scarf", Category: "Accessories", Brand: "Highland", Price: 34.50, Stock: 22},
		{Name: "Denim Jacket", Description: "Heavy denim jacket", Category: "Men", Brand: "Northwind", Price: 89.00, Stock: 5},
	}
	for _, item := range items {
		env.addProduct(t, item)
	}
}

func listProducts(t *testing.T, env *testEnv, query string) listResponse {
	t.Helper()

	resp := env.do(t, http.MethodGet, "/products/"+query, "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list %q: expected 200, got %d: %s", query, resp.Code, resp.Body.String())
	}
	var body listResponse
	decodeBody(t, resp, &body)
	if !body.Success || body.Pagination == nil {
		t.Fatalf("list %q: malformed envelope: %s", query, resp.Body.String())
	}
	return body
}

func TestListDefaults(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	body := listProducts(t, env, "")
	if body.Pagination.Total != 5 || body.Pagination.Page != 1 || body.Pagination.Pages != 1 {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
	if len(body.Data) != 5 {
		t.Fatalf("expected 5 items, got %d", len(body.Data))
	}
	// Default order is newest-first.
	for i := 1; i < len(body.Data); i++ {
		if body.Data[i].CreatedAt.After(body.Data[i-1].CreatedAt) {
			t.Fatalf("items not in newest-first order")
		}
	}
}

func TestListPagination(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	body := listProducts(t, env, "?page=1&limit=2")
	if len(body.Data) != 2 || body.Pagination.Total != 5 || body.Pagination.Pages != 3 {
		t.Fatalf("unexpected first page: %d items, pagination %+v", len(body.Data), body.Pagination)
	}

	body = listProducts(t, env, "?page=3&limit=2")
	if len(body.Data) != 1 {
		t.Fatalf("expected 1 item on last page, got %d", len(body.Data))
	}

	// Page past the end is empty but keeps the metadata.
	body = listProducts(t, env, "?page=9&limit=2")
	if len(body.Data) != 0 || body.Pagination.Total != 5 || body.Pagination.Page != 9 {
		t.Fatalf("unexpected overrun page: %d items, pagination %+v", len(body.Data), body.Pagination)
	}
}

func TestListMalformedParamsFallBack(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	for _, query := range []string{
		"?page=banana&limit=banana",
		"?limit=0",
		"?limit=-5&page=-2",
		"?minPrice=cheap&maxPrice=expensive",
	} {
		body := listProducts(t, env, query)
		if body.Pagination.Page != 1 || body.Pagination.Total != 5 || len(body.Data) != 5 {
			t.Fatalf("query %q: expected full default page, got %d items, pagination %+v",
				query, len(body.Data), body.Pagination)
		}
	}
}

func TestListSortTokens(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	body := listProducts(t, env, "?sort=price_asc")
	for i := 1; i < len(body.Data); i++ {
		if body.Data[i].Price < body.Data[i-1].Price {
			t.Fatalf("price_asc: prices not non-decreasing: %+v", body.Data)
		}
	}

	body = listProducts(t, env, "?sort=price_desc")
	for i := 1; i < len(body.Data); i++ {
		if body.Data[i].Price > body.Data[i-1].Price {
			t.Fatalf("price_desc: prices not non-increasing: %+v", body.Data)
		}
	}

	// Unknown tokens do not error.
	body = listProducts(t, env, "?sort=sideways")
	if body.Pagination.Total != 5 {
		t.Fatalf("unknown sort token must fall back, got %+v", body.Pagination)
	}
}

func TestListConjunctiveFilters(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)

	body := listProducts(t, env, "?search=tee&category=Men")
	if body.Pagination.Total != 2 {
		t.Fatalf("expected 2 matches, got %+v", body.Pagination)
	}
	for _, item := range body.Data {
		if item.Category != "Men" {
			t.Fatalf("filter leaked category %q", item.Category)
		}
	}

	body = listProducts(t, env, "?brand=north&minPrice=50")
	if body.Pagination.Total != 1 || body.Data[0].Name != "Denim Jacket" {
		t.Fatalf("unexpected result: %+v", body.Data)
	}

	body = listProducts(t, env, "?minPrice=20&maxPrice=60")
	if body.Pagination.Total != 3 {
		t.Fatalf("expected 3 products between 20 and 60, got %+v", body.Pagination)
	}
}

func TestListExcludesInactive(t *testing.T) {
	env := newTestEnv(t)
	seedCatalog(t, env)
	_, adminToken := env.addUser(t, "admin@example.com", "password123", "admin")

	resp := env.do(t, http.MethodDelete, "/products/1", adminToken, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d: %s", resp.Code, resp.Body.String())
	}

	body := listProducts(t, env, "?search=tee")
	if body.Pagination.Total != 1 {
		t.Fatalf("deactivated product still listed: %+v", body.Data)
	}
}

func TestAdminGateOnWrites(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.addUser(t, "user@example.com", "password123", "user")

	payload := ProductUpsertRequest{Name: "Tee", Price: 10, Stock: 1}

	resp := env.do(t, http.MethodPost, "/products/", "", payload)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create: expected 401, got %d", resp.Code)
	}

	resp = env.do(t, http.MethodPost, "/products/", userToken, payload)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-admin create: expected 403, got %d", resp.Code)
	}
	if env.productRepo.writes != 0 {
		t.Fatalf("catalog store written %d times by rejected requests", env.productRepo.writes)
	}

	_, adminToken := env.addUser(t, "admin@example.com", "password123", "admin")
	resp = env.do(t, http.MethodPost, "/products/", adminToken, payload)
	if resp.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGateDeletedAccount(t *testing.T) {
	env := newTestEnv(t)
	admin, adminToken := env.addUser(t, "admin@example.com", "password123", "admin")

	// Token stays valid by signature after the account is removed.
	delete(env.userRepo.users, admin.ID)

	resp := env.do(t, http.MethodPost, "/products/", adminToken, ProductUpsertRequest{Name: "Tee", Price: 1})
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGateStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.addUser(t, "admin@example.com", "password123", "admin")
	env.userRepo.failing = true

	resp := env.do(t, http.MethodPost, "/products/", adminToken, ProductUpsertRequest{Name: "Tee", Price: 1})
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}

	var body ErrorResponse
	decodeBody(t, resp, &body)
	if body.Message == errStoreDown.Error() {
		t.Fatal("raw store error leaked to the caller")
	}
}

func TestRequireAdminAttachesUser(t *testing.T) {
	env := newTestEnv(t)
	admin, _ := env.addUser(t, "admin@example.com", "password123", "admin")

	var seen bool
	guarded := RequireAdmin(services.NewUserService(env.userRepo))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok || user.ID != admin.ID {
			t.Fatalf("expected user %d in context, got %+v (ok=%v)", admin.ID, user, ok)
		}
		seen = true
	}))

	subject, err := env.tokens.Verify(mustIssue(t, env.tokens, admin.ID))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), contextSubjectKey, subject))
	resp := httptest.NewRecorder()
	guarded.ServeHTTP(resp, req)
	if !seen {
		t.Fatalf("handler not reached, status %d", resp.Code)
	}
}

func mustIssue(t *testing.T, tokens *token.Service, userID int) string {
	t.Helper()
	signed, err := tokens.Issue(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return signed
}

func TestRequireAdminWithoutSubject(t *testing.T) {
	// RequireAdmin invoked without RequireAuth in front signals a wiring
	// error with a 401, never a panic.
	guarded := RequireAdmin(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a subject")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	guarded.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestProductImageUploadAndFetch(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct(t, types.Product{Name: "Classic Tee", Price: 19.99})
	_, adminToken := env.addUser(t, "admin@example.com", "password123", "admin")

	imageBytes := []byte("png-pixel-data")
	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreateFormFile(formFieldImage, "front.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(imageBytes); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close form: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/products/%d/image", product.ID), &form)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+adminToken)
	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	fetch := env.do(t, http.MethodGet, fmt.Sprintf("/products/%d/image", product.ID), "", nil)
	if fetch.Code != http.StatusOK {
		t.Fatalf("fetch: expected 200, got %d: %s", fetch.Code, fetch.Body.String())
	}
	if fetch.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected content type %q", fetch.Header().Get("Content-Type"))
	}
	if !bytes.Equal(fetch.Body.Bytes(), imageBytes) {
		t.Fatal("fetched image differs from upload")
	}
}

func TestProductImageMissing(t *testing.T) {
	env := newTestEnv(t)
	product := env.addProduct(t, types.Product{Name: "Classic Tee", Price: 19.99})

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/products/%d/image", product.ID), "", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
