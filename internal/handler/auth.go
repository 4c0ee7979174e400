package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/auth"
	"github.com/sakif/pricepulse/internal/service"
)

// AuthHandler exposes registration, login, and the current-user endpoint.
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, logger: logger}
}

// registerRequest is the POST /register body.
type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenRequest is the POST /token body.
type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse mirrors the OAuth2 password-grant response shape, which is
// what API clients generally expect from a /token endpoint.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// HandleRegister creates a new account.
//
// HTTP: POST /register
// BODY: {"email": "...", "username": "...", "password": "..."}
// 201 on success, 400 on validation failure, 409 on duplicate email/username.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid register JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	// model.User's json tags hide the password hash, so encoding the whole
	// struct is safe here.
	writeJSON(w, http.StatusCreated, user)
}

// HandleToken exchanges credentials for an access token.
//
// HTTP: POST /token
// BODY: {"email": "...", "password": "..."}
// 200 with {"access_token", "token_type"} on success, 401 otherwise.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid token JSON", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	token, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

// HandleMe returns the authenticated user's account.
//
// HTTP: GET /users/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		// RequireAuth should make this unreachable; belt and braces.
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
