// Package integration provides a reusable test harness for end-to-end testing
// of the authorization gate. It starts a full HTTP server with a real JWT
// verifier backed by a test issuer, a Redis-backed capability cache on
// miniredis, and an in-memory role store.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/workboard/authgate/internal/capability"
	"github.com/workboard/authgate/internal/config"
	"github.com/workboard/authgate/internal/gate"
	"github.com/workboard/authgate/internal/policy"
	"github.com/workboard/authgate/internal/store"
	"github.com/workboard/authgate/internal/transport"
	"github.com/workboard/authgate/model"
)

// AdminToken authorizes calls to the invalidation endpoint in tests.
const AdminToken = "integration-admin-token"

// TestHarness encapsulates a fully wired gate instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Roles    *store.MemoryRoleStore
	Resolver *capability.Resolver
	Redis    *miniredis.Miniredis

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	policyFile     string
	cacheTTL       time.Duration
	handlerTimeout time.Duration
}

// WithPolicyFile sets the role policy YAML file. Relative paths are resolved
// from the testdata directory.
func WithPolicyFile(path string) HarnessOption {
	return func(c *harnessConfig) {
		c.policyFile = path
	}
}

// WithCacheTTL sets the capability cache entry TTL.
func WithCacheTTL(ttl time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.cacheTTL = ttl
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// NewTestHarness creates and starts a full gate test instance. The server and
// its backing miniredis are cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		cacheTTL:       5 * time.Minute,
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}
	if hc.policyFile == "" {
		hc.policyFile = filepath.Join(testdataDir(), "policy.yaml")
	}

	h := &TestHarness{
		t:     t,
		Roles: store.NewMemoryRoleStore(),
		Redis: miniredis.RunT(t),
	}

	pol, err := policy.NewPolicy(hc.policyFile)
	if err != nil {
		t.Fatalf("load policy file: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: h.Redis.Addr()})
	t.Cleanup(func() { client.Close() })

	h.Resolver = capability.NewResolver(
		capability.NewRedisCache(client), h.Roles, pol,
		capability.WithTTL(hc.cacheTTL))
	g := gate.New(h.Resolver, policy.NewEngine(pol))

	h.issuer = newTokenIssuer(t)

	h.cfg = config.Defaults()
	h.cfg.Server.HandlerTimeout = hc.handlerTimeout
	h.cfg.Identity = config.IdentityConfig{
		Issuer:       h.issuer.Issuer(),
		Audience:     h.issuer.Audience(),
		JWKSURL:      h.issuer.JWKSURL(),
		JWKSCacheTTL: 1 * time.Hour,
		Algorithms:   []string{"RS256"},
	}

	jwks := transport.NewJWKSClient(h.issuer.JWKSURL(), h.cfg.Identity.JWKSCacheTTL)
	router := transport.NewRouter(transport.Dependencies{
		Config:       h.cfg,
		Authenticate: transport.JWTAuthenticator(h.cfg.Identity, jwks),
		Gate:         g,
		Capabilities: h.Resolver,
		Invalidator:  h.Resolver,
		AdminToken:   AdminToken,
	})

	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// Invalidate bumps the capability version for the pair directly through the
// resolver, as a role mutation path inside the product would.
func (h *TestHarness) Invalidate(userID, workspaceID string) int64 {
	h.t.Helper()
	v, err := h.Resolver.Invalidate(context.Background(), userID, workspaceID)
	if err != nil {
		h.t.Fatalf("invalidate %s/%s: %v", userID, workspaceID, err)
	}
	return v
}

// --- HTTP client helpers ---

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, headers)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, headers)
}

// PATCH performs an authenticated PATCH request with a JSON body.
func (h *TestHarness) PATCH(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPatch, path, body, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// ParseError reads the standard error envelope from the response body.
func (h *TestHarness) ParseError(resp *http.Response) model.ErrorEnvelope {
	h.t.Helper()
	var out struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	h.ParseJSON(resp, &out)
	return out.Error
}

// --- Default memberships and claims ---

// SeedMember adds a plain role membership for the pair.
func (h *TestHarness) SeedMember(userID, workspaceID, role, teamID string) {
	h.Roles.Put(userID, workspaceID, store.Membership{Role: role, TeamID: teamID})
}

// EmployeeClaims returns TestClaims for a seeded employee on team-1.
func EmployeeClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-emp",
		Email:     "emp@workboard.example.com",
		TeamID:    "team-1",
	}
}

// ManagerClaims returns TestClaims for a seeded manager on team-1.
func ManagerClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-mgr",
		Email:     "mgr@workboard.example.com",
		TeamID:    "team-1",
	}
}

// AdminClaims returns TestClaims for a seeded workspace admin.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "user-adm",
		Email:     "adm@workboard.example.com",
	}
}

// --- Helpers ---

// testdataDir returns the absolute path to the testdata directory.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}
