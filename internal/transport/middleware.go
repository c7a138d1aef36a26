package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/workboard/authgate/internal/config"
	"github.com/workboard/authgate/internal/gate"
	"github.com/workboard/authgate/internal/observability"
	"github.com/workboard/authgate/model"
)

// Context keys for middleware-injected values.
type correlationIDKey struct{}
type claimsKey struct{}

// CorrelationIDFrom extracts the correlation ID from the request context.
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

// WithClaims stores JWT claims in the context. Used by the auth middleware.
func WithClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom extracts JWT claims from the context.
func ClaimsFrom(ctx context.Context) map[string]any {
	claims, _ := ctx.Value(claimsKey{}).(map[string]any)
	return claims
}

// Recovery catches panics in downstream handlers, logs them, and returns
// a 500 JSON error response. Panics inside the authorization path therefore
// fail closed.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				WriteError(w, model.NewInternalError())
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// CORS returns middleware that handles Cross-Origin Resource Sharing based
// on the provided configuration.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = true
	}
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	maxAge := fmt.Sprintf("%d", cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && origins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", methods)
				w.Header().Set("Access-Control-Allow-Headers", headers)
				w.Header().Set("Access-Control-Max-Age", maxAge)
				w.Header().Set("Access-Control-Expose-Headers", "X-Correlation-Id")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID reads X-Correlation-Id from the request header or generates a
// new one, then stores it in the context and sets the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-Id")
		if id == "" {
			id = generateID()
		}
		ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
		w.Header().Set("X-Correlation-Id", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SecurityHeaders sets standard security response headers on all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// BuildPrincipal constructs a model.Principal from JWT claims (stored in
// context by the auth middleware). A token without a subject is rejected;
// role_version and team_id are optional claims.
func BuildPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r.Context())
		p := &model.Principal{
			UserID:        claimString(claims, "sub"),
			Email:         claimString(claims, "email"),
			TeamID:        claimString(claims, "team_id"),
			RoleVersion:   claimRoleVersion(claims),
			Claims:        claims,
			CorrelationID: CorrelationIDFrom(r.Context()),
		}
		if err := p.Validate(); err != nil {
			WriteError(w, model.NewUnauthorizedError("Token has no subject"))
			return
		}
		ctx := model.WithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCapability returns middleware that runs the authorization pipeline
// for the given (resource, action) and attaches the resulting grant to the
// context. Refusals are written as their envelope's status and never reach
// the wrapped handler.
func RequireCapability(g *gate.Gate, resource, action string, attrs gate.AttributeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := model.PrincipalFrom(r.Context())
			if p == nil {
				WriteError(w, model.NewUnauthorizedError("Missing principal"))
				return
			}
			grant, env := g.Authorize(r.Context(), r, p, resource, action, attrs)
			if env != nil {
				env.TraceID = observability.TraceIDFromContext(r.Context())
				WriteError(w, env)
				return
			}
			ctx := model.WithGrant(r.Context(), grant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ResourceAttributes is the standard AttributeFunc for proxied resource
// routes: the calling service, which owns the resource data, forwards the
// attributes the scopes and conditions need.
func ResourceAttributes(r *http.Request, base model.AuthzContext) model.AuthzContext {
	base.ResourceOwnerID = r.Header.Get("X-Resource-Owner-Id")
	base.ResourceTeamID = r.Header.Get("X-Resource-Team-Id")
	base.ResourceStatus = r.Header.Get("X-Resource-Status")
	return base
}

// HandlerTimeout returns middleware that sets a context deadline on requests.
func HandlerTimeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogging logs each request with method, path, status, and duration.
func RequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration", time.Since(start),
			"correlation_id", CorrelationIDFrom(r.Context()),
		)
	})
}

// --- helpers ---

// statusWriter wraps http.ResponseWriter to capture the written status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

func claimString(claims map[string]any, key string) string {
	if claims == nil {
		return ""
	}
	v, _ := claims[key].(string)
	return v
}

// claimRoleVersion reads the optional role_version claim. JSON numbers decode
// as float64; json.Number appears when claims were decoded with UseNumber.
func claimRoleVersion(claims map[string]any) int64 {
	if claims == nil {
		return model.RoleVersionUnset
	}
	switch v := claims["role_version"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return model.RoleVersionUnset
	default:
		return model.RoleVersionUnset
	}
}

func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
