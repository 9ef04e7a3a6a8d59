package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"marketplace-api/internal/services"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyTable(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		identity   *Identity
		wantStatus int
	}{
		// public routes pass without any identity
		{"register is public", "POST", "/api/auth/register", nil, http.StatusOK},
		{"login is public", "POST", "/api/auth/login", nil, http.StatusOK},
		{"hash-passwords is public", "POST", "/api/auth/hash-passwords", nil, http.StatusOK},
		{"error page is public", "GET", "/error", nil, http.StatusOK},
		{"product list is public", "GET", "/api/products", nil, http.StatusOK},
		{"product read is public", "GET", "/api/products/5", nil, http.StatusOK},
		{"reviews read is public", "GET", "/api/products/5/reviews", nil, http.StatusOK},

		// protected routes answer 403, not 401, when anonymous
		{"create product anonymous", "POST", "/api/products", nil, http.StatusForbidden},
		{"orders anonymous", "GET", "/api/orders", nil, http.StatusForbidden},
		{"create order anonymous", "POST", "/api/orders", nil, http.StatusForbidden},
		{"wishlist anonymous", "GET", "/api/wishlist", nil, http.StatusForbidden},
		{"delete product anonymous", "DELETE", "/api/products/5", nil, http.StatusForbidden},
		{"debug principal anonymous", "GET", "/api/products/debug/principal", nil, http.StatusForbidden},

		// role requirements
		{"create product needs USER role", "POST", "/api/products", &Identity{Email: "a@b.c", Roles: []string{"ADMIN"}}, http.StatusForbidden},
		{"create product with USER role", "POST", "/api/products", &Identity{Email: "a@b.c", Roles: []string{"USER"}}, http.StatusOK},
		{"debug principal with USER role", "GET", "/api/products/debug/principal", &Identity{Email: "a@b.c", Roles: []string{"USER"}}, http.StatusOK},

		// everything else just needs an authenticated caller
		{"orders authenticated", "GET", "/api/orders", &Identity{Email: "a@b.c", Roles: []string{"ADMIN"}}, http.StatusOK},
		{"wishlist authenticated", "POST", "/api/wishlist/5", &Identity{Email: "a@b.c", Roles: []string{"USER"}}, http.StatusOK},
	}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Authorize(zerolog.Nop())(next)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.identity != nil {
				req = req.WithContext(context.WithValue(req.Context(), identityKey, *tt.identity))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		name   string
		rule   policyRule
		method string
		path   string
		want   bool
	}{
		{"wildcard matches base", policyRule{pattern: "/auth/**"}, "POST", "/auth", true},
		{"wildcard matches children", policyRule{pattern: "/auth/**"}, "POST", "/auth/login", true},
		{"wildcard rejects siblings", policyRule{pattern: "/auth/**"}, "POST", "/authx", false},
		{"exact path", policyRule{pattern: "/error"}, "GET", "/error", true},
		{"exact path rejects children", policyRule{pattern: "/error"}, "GET", "/error/x", false},
		{"method mismatch", policyRule{method: "GET", pattern: "/products/**"}, "POST", "/products", false},
		{"any method", policyRule{pattern: "/auth/**"}, "DELETE", "/auth/login", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchRule(tt.rule, tt.method, tt.path))
		})
	}
}

func newGate(t *testing.T) (func(http.Handler) http.Handler, *services.TokenService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens := services.NewTokenService("gate-test-secret", zerolog.Nop())
	users := services.NewUserService(db, zerolog.Nop())
	return Authentication(tokens, users, zerolog.Nop()), tokens, mock
}

func expectUserLookup(mock sqlmock.Sqlmock, id int, email string) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?")).
		WithArgs(email).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}).
			AddRow(id, email, "$2a$10$hash", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles WHERE user_id = ?")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("USER"))
}

// The gate either establishes an identity or stays silent; it must never
// write a response itself.
func TestGateEstablishesIdentity(t *testing.T) {
	gate, tokens, mock := newGate(t)

	token, err := tokens.Issue("alice@example.com", []string{"USER"})
	require.NoError(t, err)
	expectUserLookup(mock, 1, "alice@example.com")

	var got Identity
	var ok bool
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetIdentity(r)
	}))

	req := httptest.NewRequest("GET", "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, []string{"USER"}, got.Roles)
}

func TestGatePassesThroughAnonymous(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, _, _ := newGate(t)

			var sawRequest, hasIdentity bool
			handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				sawRequest = true
				_, hasIdentity = GetIdentity(r)
			}))

			req := httptest.NewRequest("GET", "/api/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, sawRequest, "gate must always continue downstream")
			assert.False(t, hasIdentity)
		})
	}
}

func TestGateRejectsUnknownSubjectSilently(t *testing.T) {
	gate, tokens, mock := newGate(t)

	token, err := tokens.Issue("ghost@example.com", []string{"USER"})
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = ?")).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at", "updated_at"}))

	var hasIdentity bool
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasIdentity = GetIdentity(r)
	}))

	req := httptest.NewRequest("GET", "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, hasIdentity)
}

func TestGateSkipsAnonymousPaths(t *testing.T) {
	gate, _, mock := newGate(t)

	// A bad token on an auth route must not trigger any lookups.
	var sawRequest bool
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawRequest = true
	}))

	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, sawRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBasePath(t *testing.T) {
	assert.Equal(t, "/auth/login", basePath("/api/auth/login"))
	assert.Equal(t, "/error", basePath("/error"))
	assert.Equal(t, "/", basePath("/api"))
}
