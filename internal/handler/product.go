package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/auth"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/service"
)

// ProductHandler exposes the tracked-product API. Every route sits behind
// RequireAuth, so the userID is always present in the request context and
// ownership checks happen in the service layer.
type ProductHandler struct {
	products *service.ProductService
	logger   *slog.Logger
}

// NewProductHandler creates a ProductHandler.
func NewProductHandler(products *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: products, logger: logger}
}

// createProductRequest is the POST /api/products body.
// TargetPrice is optional — omit it to track without an alert threshold.
type createProductRequest struct {
	URL         string   `json:"url"`
	TargetPrice *float64 `json:"targetPrice,omitempty"`
}

// productDetailResponse is the GET /api/products/{id} response: the product
// plus its full price history, newest first.
type productDetailResponse struct {
	Product      *model.Product       `json:"product"`
	PriceHistory []model.PriceHistory `json:"priceHistory"`
}

// HandleCreate registers a new product for tracking.
//
// HTTP: POST /api/products
// BODY: {"url": "https://...", "targetPrice": 99.90}
//
// The page is scraped synchronously, so this call takes as long as the
// fetch does. 201 with the product on success; 400 when the URL is invalid
// or the page yields no name/price.
func (h *ProductHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := h.mustUserID(w, r)
	if userID == "" {
		return
	}

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid product JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	product, err := h.products.Register(r.Context(), userID, req.URL, req.TargetPrice)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, product)
}

// HandleList returns all of the caller's products.
//
// HTTP: GET /api/products
func (h *ProductHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := h.mustUserID(w, r)
	if userID == "" {
		return
	}

	products, err := h.products.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	// Encode [] rather than null for a user with no products — client code
	// iterating the response shouldn't need a nil check.
	if products == nil {
		products = []model.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

// HandleGet returns one product with its price history.
//
// HTTP: GET /api/products/{id}
func (h *ProductHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := h.mustUserID(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	product, history, err := h.products.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	if history == nil {
		history = []model.PriceHistory{}
	}
	writeJSON(w, http.StatusOK, productDetailResponse{
		Product:      product,
		PriceHistory: history,
	})
}

// HandleDelete stops tracking and removes the product with its history
// and alerts.
//
// HTTP: DELETE /api/products/{id}
// 204 on success, 404 when the product doesn't exist or isn't the caller's.
func (h *ProductHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := h.mustUserID(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.products.Delete(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleRefresh runs one tracking tick right now and returns the product.
//
// HTTP: POST /api/products/{id}/refresh
// 200 with the refreshed product; 400 when no current price could be
// fetched; 404 for a missing/foreign product.
func (h *ProductHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	userID := h.mustUserID(w, r)
	if userID == "" {
		return
	}

	id := chi.URLParam(r, "id")
	product, err := h.products.Refresh(r.Context(), userID, id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, product)
}

// mustUserID pulls the authenticated user from the context, writing a 401
// and returning "" if it's somehow absent (RequireAuth makes that a
// programming error, not a runtime condition).
func (h *ProductHandler) mustUserID(w http.ResponseWriter, r *http.Request) string {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return ""
	}
	return userID
}
