package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/ledgerdesk/api/internal/auth"
	"github.com/ledgerdesk/api/internal/database"
)

const testJWTSecret = "test-secret-for-ledger"

func testClaims(role string) *auth.Claims {
	return &auth.Claims{UserID: uuid.New(), Role: role}
}

// signedInUsers holds every user doAuthRequest has issued a token for, so
// Authenticate finds them active.
type signedInUsers struct {
	mu    sync.Mutex
	roles map[uuid.UUID]string
}

var testUsers = &signedInUsers{roles: make(map[uuid.UUID]string)}

func (s *signedInUsers) signIn(claims *auth.Claims) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[claims.UserID] = claims.Role
}

func (s *signedInUsers) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return database.User{ID: id, Role: role, IsActive: true}, nil
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	testUsers.signIn(claims)

	// Generate a real JWT token from claims
	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		var b []byte
		if s, ok := body.(string); ok {
			b = []byte(s)
		} else if b, err = json.Marshal(body); err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func testNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}
