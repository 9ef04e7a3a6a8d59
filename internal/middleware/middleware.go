package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketplace-api/internal/services"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the request-scoped security context established by the
// authentication gate. It lives in the request context only, so nothing
// leaks across concurrent requests.
type Identity struct {
	Email string
	Roles []string
}

func (id Identity) HasRole(role string) bool {
	for _, r := range id.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func GetIdentity(r *http.Request) (Identity, bool) {
	identity, ok := r.Context().Value(identityKey).(Identity)
	return identity, ok
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func CORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"*"},
		MaxAge:         86400,
	})
	return c.Handler
}

func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("X-XSS-Protection", "1; mode=block")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			w.Header().Set("Content-Security-Policy", "default-src 'self'")
			next.ServeHTTP(w, r)
		})
	}
}

type RateLimiter struct {
	limiter *rate.Limiter
}

func NewRateLimiter(r rate.Limit, b int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(r, b),
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.limiter.Allow() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(ErrorResponse{
					Error:   "rate_limit_exceeded",
					Message: "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func RequestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = generateRequestID()
			}

			ctx := context.WithValue(r.Context(), contextKey("request_id"), requestID)
			r = r.WithContext(ctx)

			logger.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("Incoming request")

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			logger.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapped.statusCode).
				Dur("duration", duration).
				Msg("Request completed")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}

// basePath strips the deployment prefix so policy patterns and the
// anonymous list match the logical route.
func basePath(requestPath string) string {
	path := strings.TrimPrefix(requestPath, "/api")
	if path == "" {
		path = "/"
	}
	return path
}

// anonymousPaths are routes the gate skips entirely: no identity is ever
// established for them.
var anonymousPaths = []string{"/auth/", "/error"}

func isAnonymousPath(path string) bool {
	for _, p := range anonymousPaths {
		if strings.HasSuffix(p, "/") {
			if strings.HasPrefix(path, p) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

// Authentication is the per-request gate. It never rejects: it either
// establishes the caller's Identity in the request context or passes the
// request through anonymous, leaving rejection to the authorization policy.
func Authentication(tokens *services.TokenService, users *services.UserService, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := basePath(r.URL.Path)
			if isAnonymousPath(path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			subject, err := tokens.ExtractSubject(tokenString)
			if err != nil {
				// Malformed or mis-signed tokens degrade to anonymous.
				logger.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to extract subject from token")
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.GetByEmail(subject)
			if err != nil {
				logger.Warn().Str("subject", subject).Msg("Token subject has no account")
				next.ServeHTTP(w, r)
				return
			}

			if !tokens.Validate(tokenString, user.Email) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, Identity{
				Email: user.Email,
				Roles: user.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type policyRule struct {
	method  string // empty matches any method
	pattern string // exact path, or prefix when it ends in "/**"
	public  bool
	role    string // non-empty: authenticated with this role
}

// policyRules is evaluated in order, first match wins. The debug principal
// route sits above the products wildcard so its role requirement is
// reachable. Anything unmatched requires an authenticated caller.
var policyRules = []policyRule{
	{pattern: "/auth/**", public: true},
	{pattern: "/error", public: true},
	{method: http.MethodGet, pattern: "/products/debug/principal", role: "USER"},
	{method: http.MethodGet, pattern: "/products/**", public: true},
	{method: http.MethodPost, pattern: "/products", role: "USER"},
}

func matchRule(rule policyRule, method, path string) bool {
	if rule.method != "" && rule.method != method {
		return false
	}
	if strings.HasSuffix(rule.pattern, "/**") {
		base := strings.TrimSuffix(rule.pattern, "/**")
		return path == base || strings.HasPrefix(path, base+"/")
	}
	return path == rule.pattern
}

// Authorize enforces the route policy table. Unauthenticated access to a
// protected route answers 403, not 401: preserved wire behavior.
func Authorize(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := basePath(r.URL.Path)

			rule := policyRule{} // default: authenticated, any role
			for _, candidate := range policyRules {
				if matchRule(candidate, r.Method, path) {
					rule = candidate
					break
				}
			}

			if rule.public {
				next.ServeHTTP(w, r)
				return
			}

			identity, ok := GetIdentity(r)
			if !ok {
				logger.Warn().Str("method", r.Method).Str("path", r.URL.Path).Msg("Unauthenticated access to protected route")
				respondWithError(w, http.StatusForbidden, "forbidden", "Forbidden: full authentication is required to access this resource")
				return
			}

			if rule.role != "" && !identity.HasRole(rule.role) {
				logger.Warn().Str("email", identity.Email).Str("path", r.URL.Path).Str("role", rule.role).Msg("Caller lacks required role")
				respondWithError(w, http.StatusForbidden, "forbidden", "Forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func RequestValidation() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == "POST" || r.Method == "PUT" {
				contentType := r.Header.Get("Content-Type")
				if !strings.Contains(contentType, "application/json") {
					respondWithError(w, http.StatusBadRequest, "invalid_content_type", "Content-Type must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ErrorHandling(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error().
						Interface("error", err).
						Str("path", r.URL.Path).
						Str("method", r.Method).
						Msg("Panic recovered")

					respondWithError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func PerformanceMonitoring(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			if duration > 1*time.Second {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Dur("duration", duration).
					Int("status", wrapped.statusCode).
					Msg("Slow request detected")
			}
		})
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
