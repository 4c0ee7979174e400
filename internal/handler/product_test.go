package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/pricepulse/internal/auth"
	"github.com/sakif/pricepulse/internal/handler"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/notifier"
	sqliteRepo "github.com/sakif/pricepulse/internal/repository/sqlite"
	"github.com/sakif/pricepulse/internal/scraper"
	"github.com/sakif/pricepulse/internal/service"
	"github.com/sakif/pricepulse/internal/tracker"
)

// These tests run the real router, middleware, services, and an in-memory
// store — only the scraper and the mail transport are faked. Requests go
// through the same code path a live client hits, bearer token and all.

// stubFetcher returns a canned page for every URL.
type stubFetcher struct {
	result scraper.Result
	err    error
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) (*scraper.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	result := s.result
	return &result, nil
}

// nopScheduler satisfies service.TrackingScheduler; handler tests don't
// exercise the cron clock.
type nopScheduler struct{}

func (nopScheduler) Schedule(string, time.Duration, func()) {}
func (nopScheduler) Cancel(string)                          {}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, notifier.Alert) error { return nil }

type testAPI struct {
	router  *chi.Mux
	fetcher *stubFetcher
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqliteRepo.New(":memory:")
	if err != nil {
		t.Fatalf("creating test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("test-secret-key-for-handler-tests")
	if err != nil {
		t.Fatalf("creating token service: %v", err)
	}

	fetcher := &stubFetcher{result: scraper.Result{
		Name:       "Mechanical Keyboard",
		Price:      129.99,
		PriceFound: true,
		ImageURL:   "https://img.example.com/kbd.jpg",
	}}

	trk := tracker.New(db, db, fetcher, nopNotifier{}, nil, logger)
	products := service.NewProductService(db, fetcher, nopScheduler{}, trk, time.Hour, logger)
	authService := service.NewAuthService(db, auth.NewPasswordServiceForTest(), tokens, logger)

	authHandler := handler.NewAuthHandler(authService, logger)
	productHandler := handler.NewProductHandler(products, logger)

	router := chi.NewRouter()
	router.Post("/register", authHandler.HandleRegister)
	router.Post("/token", authHandler.HandleToken)
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Get("/users/me", authHandler.HandleMe)
		r.Route("/api", func(r chi.Router) {
			r.Post("/products", productHandler.HandleCreate)
			r.Get("/products", productHandler.HandleList)
			r.Get("/products/{id}", productHandler.HandleGet)
			r.Delete("/products/{id}", productHandler.HandleDelete)
			r.Post("/products/{id}/refresh", productHandler.HandleRefresh)
		})
	})

	return &testAPI{router: router, fetcher: fetcher}
}

// do sends a request through the router, optionally with a bearer token,
// and returns the recorded response.
func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

// registerAndLogin creates an account and returns its bearer token.
func (a *testAPI) registerAndLogin(t *testing.T, email, username string) string {
	t.Helper()

	rr := a.do(t, http.MethodPost, "/register", "", map[string]string{
		"email": email, "username": username, "password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rr.Code, rr.Body.String())
	}

	rr = a.do(t, http.MethodPost, "/token", "", map[string]string{
		"email": email, "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("token returned %d: %s", rr.Code, rr.Body.String())
	}

	var res struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decoding token response: %v", err)
	}
	if res.TokenType != "bearer" {
		t.Fatalf("token_type = %q, want bearer", res.TokenType)
	}
	return res.AccessToken
}

// createProduct registers a product and returns the decoded response.
func (a *testAPI) createProduct(t *testing.T, token, url string, target *float64) model.Product {
	t.Helper()

	body := map[string]any{"url": url}
	if target != nil {
		body["targetPrice"] = *target
	}
	rr := a.do(t, http.MethodPost, "/api/products", token, body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create product returned %d: %s", rr.Code, rr.Body.String())
	}

	var product model.Product
	if err := json.NewDecoder(rr.Body).Decode(&product); err != nil {
		t.Fatalf("decoding product: %v", err)
	}
	return product
}

// =========================================================================
// AUTH ENDPOINTS
// =========================================================================

func TestRegisterEndpoint(t *testing.T) {
	api := newTestAPI(t)

	t.Run("creates account", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/register", "", map[string]string{
			"email": "alice@example.com", "username": "alice", "password": "password123",
		})
		assert.Equal(t, http.StatusCreated, rr.Code)

		var user model.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "alice@example.com", user.Email)
		// The hash must never appear in API responses.
		assert.NotContains(t, rr.Body.String(), "password")
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/register", "", map[string]string{
			"email": "alice@example.com", "username": "alice2", "password": "password123",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewBufferString(`{"email":`))
		rr := httptest.NewRecorder()
		api.router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("short password rejected", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/register", "", map[string]string{
			"email": "bob@example.com", "username": "bob", "password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestTokenEndpoint(t *testing.T) {
	api := newTestAPI(t)
	api.registerAndLogin(t, "alice@example.com", "alice")

	t.Run("wrong password", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/token", "", map[string]string{
			"email": "alice@example.com", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	})

	t.Run("unknown email", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/token", "", map[string]string{
			"email": "nobody@example.com", "password": "password123",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestMeEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerAndLogin(t, "alice@example.com", "alice")

	t.Run("with token", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/users/me", token, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var user model.User
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("without token", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/users/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/users/me", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// =========================================================================
// PRODUCT ENDPOINTS
// =========================================================================

func TestCreateProductEndpoint(t *testing.T) {
	api := newTestAPI(t)
	token := api.registerAndLogin(t, "alice@example.com", "alice")

	t.Run("creates from scraped page", func(t *testing.T) {
		target := 99.99
		product := api.createProduct(t, token, "https://example.com/kbd", &target)

		assert.NotEmpty(t, product.ID)
		assert.Equal(t, "Mechanical Keyboard", product.Name)
		assert.Equal(t, 129.99, product.CurrentPrice)
		if assert.NotNil(t, product.TargetPrice) {
			assert.Equal(t, 99.99, *product.TargetPrice)
		}
	})

	t.Run("rejects bad URL", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/products", token, map[string]any{"url": "not a url"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects unfetchable page", func(t *testing.T) {
		api.fetcher.err = fmt.Errorf("connection refused")
		defer func() { api.fetcher.err = nil }()

		rr := api.do(t, http.MethodPost, "/api/products", token, map[string]any{"url": "https://example.com/dead"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("requires auth", func(t *testing.T) {
		rr := api.do(t, http.MethodPost, "/api/products", "", map[string]any{"url": "https://example.com/kbd"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestListProductsEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.registerAndLogin(t, "alice@example.com", "alice")
	bob := api.registerAndLogin(t, "bob@example.com", "bob")

	api.createProduct(t, alice, "https://example.com/a", nil)
	api.createProduct(t, alice, "https://example.com/b", nil)
	api.createProduct(t, bob, "https://example.com/c", nil)

	t.Run("lists own products only", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/products", alice, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var products []model.Product
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&products))
		assert.Len(t, products, 2)
	})

	t.Run("empty list is [], not null", func(t *testing.T) {
		carol := api.registerAndLogin(t, "carol@example.com", "carol")
		rr := api.do(t, http.MethodGet, "/api/products", carol, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, "[]", rr.Body.String())
	})
}

func TestGetProductEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.registerAndLogin(t, "alice@example.com", "alice")
	bob := api.registerAndLogin(t, "bob@example.com", "bob")
	product := api.createProduct(t, alice, "https://example.com/kbd", nil)

	t.Run("returns product with history", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/products/"+product.ID, alice, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var detail struct {
			Product      model.Product        `json:"product"`
			PriceHistory []model.PriceHistory `json:"priceHistory"`
		}
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&detail))
		assert.Equal(t, product.ID, detail.Product.ID)
		assert.Len(t, detail.PriceHistory, 1) // the registration scrape
	})

	t.Run("someone else's product is 404", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/products/"+product.ID, bob, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		rr := api.do(t, http.MethodGet, "/api/products/nonexistent", alice, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDeleteProductEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.registerAndLogin(t, "alice@example.com", "alice")
	product := api.createProduct(t, alice, "https://example.com/kbd", nil)

	rr := api.do(t, http.MethodDelete, "/api/products/"+product.ID, alice, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	// Gone for real.
	rr = api.do(t, http.MethodGet, "/api/products/"+product.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// Deleting again is 404, not an error loop.
	rr = api.do(t, http.MethodDelete, "/api/products/"+product.ID, alice, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRefreshProductEndpoint(t *testing.T) {
	api := newTestAPI(t)
	alice := api.registerAndLogin(t, "alice@example.com", "alice")
	product := api.createProduct(t, alice, "https://example.com/kbd", nil)

	t.Run("returns freshly scraped price", func(t *testing.T) {
		api.fetcher.result.Price = 119.00

		rr := api.do(t, http.MethodPost, "/api/products/"+product.ID+"/refresh", alice, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		var refreshed model.Product
		assert.NoError(t, json.NewDecoder(rr.Body).Decode(&refreshed))
		assert.Equal(t, 119.00, refreshed.CurrentPrice)
	})

	t.Run("dead page is 400", func(t *testing.T) {
		api.fetcher.err = fmt.Errorf("connection refused")
		defer func() { api.fetcher.err = nil }()

		rr := api.do(t, http.MethodPost, "/api/products/"+product.ID+"/refresh", alice, nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
