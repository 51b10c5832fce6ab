package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/ledgerdesk/api/internal/auth"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/rs/zerolog/log"
)

type contextKey string

const claimsKey contextKey = "claims"

// ErrInactiveUser is returned for a well-formed token whose user has been
// deactivated or removed.
var ErrInactiveUser = errors.New("user inactive or not found")

// UserLookup resolves the account behind a token. Satisfied by
// *database.Queries, whose GetUserByID skips inactive users.
type UserLookup interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error)
}

// ResolveToken validates an access token and loads its user. The returned
// claims carry the role stored on the account, not the one signed into the
// token, so a role change applies before the token expires.
func ResolveToken(ctx context.Context, jwtSecret string, users UserLookup, token string) (*auth.Claims, error) {
	claims, err := auth.ValidateToken(jwtSecret, token)
	if err != nil {
		return nil, auth.ErrInvalidToken
	}

	user, err := users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInactiveUser
		}
		return nil, err
	}
	claims.Role = user.Role
	return claims, nil
}

// Authenticate requires a bearer access token belonging to an active user.
func Authenticate(jwtSecret string, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, msg := bearerToken(r)
			if msg != "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg})
				return
			}

			claims, err := ResolveToken(r.Context(), jwtSecret, users, token)
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
				return
			case errors.Is(err, ErrInactiveUser):
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "account inactive"})
				return
			case err != nil:
				log.Error().Err(err).Msg("resolve token user")
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", "invalid authorization format"
	}
	return token, ""
}

// RequireRole lets through users holding any of roles. Ledger deletes and
// the admin surfaces sit behind it.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
				return
			}

			for _, role := range roles {
				if claims.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeJSON(w, http.StatusForbidden, map[string]string{"error": "insufficient permissions"})
		})
	}
}

// WithClaims stores claims on ctx. Handlers under test use it to skip the
// bearer header.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
