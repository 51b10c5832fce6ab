package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerdesk/api/internal/auth"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// AuthStore is the slice of the users table the session endpoints read.
// Both lookups skip deactivated accounts.
type AuthStore interface {
	GetUserByEmail(ctx context.Context, email string) (database.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// AuthHandler issues and renews ledger sessions for staff accounts.
type AuthHandler struct {
	store     AuthStore
	jwtSecret string
}

func NewAuthHandler(store AuthStore, jwtSecret string) *AuthHandler {
	return &AuthHandler{store: store, jwtSecret: jwtSecret}
}

// RegisterRoutes mounts the unauthenticated session endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/refresh", h.Refresh)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int            `json:"expires_in"`
	User         accountSummary `json:"user"`
}

type accountSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
}

func toAccountSummary(u database.User) accountSummary {
	return accountSummary{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role}
}

var (
	decoyOnce sync.Once
	decoyHash []byte
)

// compareDecoy burns a bcrypt comparison so unknown emails take as long to
// reject as wrong passwords.
func compareDecoy(password string) {
	decoyOnce.Do(func() {
		decoyHash, _ = bcrypt.GenerateFromPassword([]byte("ledger-decoy"), bcrypt.DefaultCost)
	})
	bcrypt.CompareHashAndPassword(decoyHash, []byte(password)) //nolint:errcheck
}

// Login handles POST /auth/login. Emails match case-insensitively.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			log.Error().Err(err).Msg("get user by email")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			return
		}
		compareDecoy(req.Password)
		log.Warn().Str("email", email).Msg("login rejected: unknown or inactive account")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Warn().Str("user_id", user.ID.String()).Msg("login rejected: wrong password")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	h.issueSession(w, user)
}

// Refresh handles POST /auth/refresh. The account is re-read so a
// deactivated user cannot renew and a changed role lands in the new token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.RefreshToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "refresh_token is required"})
		return
	}

	userID, err := auth.ValidateRefreshToken(h.jwtSecret, req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}

	user, ok := h.loadAccount(w, r, userID)
	if !ok {
		return
	}
	h.issueSession(w, user)
}

// Me handles GET /auth/me behind Authenticate.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	user, ok := h.loadAccount(w, r, claims.UserID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAccountSummary(user))
}

func (h *AuthHandler) loadAccount(w http.ResponseWriter, r *http.Request, id uuid.UUID) (database.User, bool) {
	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "account inactive"})
			return database.User{}, false
		}
		log.Error().Err(err).Str("user_id", id.String()).Msg("get user by id")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return database.User{}, false
	}
	return user, true
}

func (h *AuthHandler) issueSession(w http.ResponseWriter, user database.User) {
	accessToken, err := auth.GenerateToken(h.jwtSecret, user.ID, user.Role)
	if err != nil {
		log.Error().Err(err).Msg("generate access token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	refreshToken, err := auth.GenerateRefreshToken(h.jwtSecret, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("generate refresh token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		User:         toAccountSummary(user),
	})
}
