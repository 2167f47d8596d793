package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var hmacKey = []byte("unit-test-hmac-key-do-not-deploy")

func signHS256(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func clinicianClaims(subject string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Roles: []string{RoleClinician},
	}
}

// invoke runs one request with the given Authorization header through
// the middleware and returns the handler outcome.
func invoke(t *testing.T, mw echo.MiddlewareFunc, header string, handler echo.HandlerFunc) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyze", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	c := e.NewContext(req, httptest.NewRecorder())
	if handler == nil {
		handler = func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	}
	return mw(handler)(c)
}

func wantUnauthorized(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected a 401, got nil")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_RejectsAnonymous(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: hmacKey})
	wantUnauthorized(t, invoke(t, mw, "", nil))
}

func TestJWTMiddleware_RejectsMalformedHeader(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: hmacKey})
	headers := []struct {
		name  string
		value string
	}{
		{"wrong scheme", "Token abc123"},
		{"scheme only", "Bearer"},
		{"empty credential", "Bearer "},
		{"basic auth", "Basic cGVyaW9wOnBlcmlvcA=="},
	}
	for _, h := range headers {
		t.Run(h.name, func(t *testing.T) {
			wantUnauthorized(t, invoke(t, mw, h.value, nil))
		})
	}
}

func TestJWTMiddleware_AcceptsValidToken(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: hmacKey})
	token := signHS256(t, clinicianClaims("dr-okafor"), hmacKey)

	var gotSubject string
	var gotRoles []string
	err := invoke(t, mw, "Bearer "+token, func(c echo.Context) error {
		gotSubject = UserIDFromContext(c.Request().Context())
		gotRoles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSubject != "dr-okafor" {
		t.Errorf("subject = %q, want dr-okafor", gotSubject)
	}
	if len(gotRoles) != 1 || gotRoles[0] != RoleClinician {
		t.Errorf("roles = %v, want [clinician]", gotRoles)
	}
}

func TestJWTMiddleware_RejectsExpiredToken(t *testing.T) {
	claims := clinicianClaims("dr-okafor")
	claims.IssuedAt = jwt.NewNumericDate(time.Now().Add(-2 * time.Hour))
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	mw := JWTMiddleware(JWTConfig{SigningKey: hmacKey})
	wantUnauthorized(t, invoke(t, mw, "Bearer "+signHS256(t, claims, hmacKey), nil))
}

func TestJWTMiddleware_RejectsForeignSignature(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{SigningKey: hmacKey})
	token := signHS256(t, clinicianClaims("dr-okafor"), []byte("a different key entirely"))
	wantUnauthorized(t, invoke(t, mw, "Bearer "+token, nil))
}

func TestJWTMiddleware_ChecksIssuerAndAudience(t *testing.T) {
	mw := JWTMiddleware(JWTConfig{
		SigningKey: hmacKey,
		Issuer:     "https://idp.hospital.example",
		Audience:   "periop-api",
	})

	good := clinicianClaims("dr-okafor")
	good.Issuer = "https://idp.hospital.example"
	good.Audience = jwt.ClaimStrings{"periop-api"}
	if err := invoke(t, mw, "Bearer "+signHS256(t, good, hmacKey), nil); err != nil {
		t.Fatalf("matching issuer and audience rejected: %v", err)
	}

	wrongIssuer := clinicianClaims("dr-okafor")
	wrongIssuer.Issuer = "https://somewhere-else.example"
	wrongIssuer.Audience = jwt.ClaimStrings{"periop-api"}
	wantUnauthorized(t, invoke(t, mw, "Bearer "+signHS256(t, wrongIssuer, hmacKey), nil))

	wrongAudience := clinicianClaims("dr-okafor")
	wrongAudience.Issuer = "https://idp.hospital.example"
	wrongAudience.Audience = jwt.ClaimStrings{"another-service"}
	wantUnauthorized(t, invoke(t, mw, "Bearer "+signHS256(t, wrongAudience, hmacKey), nil))
}

func TestJWTMiddleware_VerifiesAgainstJWKS(t *testing.T) {
	key := newRSAKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{testJWK(key, "signer-1")}})
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, clinicianClaims("dr-chen"))
	token.Header["kid"] = "signer-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign rs256 token: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})
	var gotSubject string
	err = invoke(t, mw, "Bearer "+signed, func(c echo.Context) error {
		gotSubject = UserIDFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotSubject != "dr-chen" {
		t.Errorf("subject = %q, want dr-chen", gotSubject)
	}
}

func TestJWTMiddleware_ReusesKeySetAcrossRequests(t *testing.T) {
	key := newRSAKey(t)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{testJWK(key, "signer-1")}})
	}))
	defer srv.Close()

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, clinicianClaims("dr-chen"))
	token.Header["kid"] = "signer-1"
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign rs256 token: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})
	for i := 0; i < 3; i++ {
		if err := invoke(t, mw, "Bearer "+signed, nil); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("jwks fetched %d times for 3 requests, want 1", got)
	}
}

func TestJWTMiddleware_JWKSPathRejectsHMAC(t *testing.T) {
	// An HS256 token must not pass verification that expects provider
	// keys, whatever bytes it was signed with.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwkSet{})
	}))
	defer srv.Close()

	mw := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})
	token := signHS256(t, clinicianClaims("dr-chen"), hmacKey)
	wantUnauthorized(t, invoke(t, mw, "Bearer "+token, nil))
}

func TestDevAuthMiddleware_StampsAdminIdentity(t *testing.T) {
	var subject string
	var roles []string
	err := invoke(t, DevAuthMiddleware(), "", func(c echo.Context) error {
		subject = UserIDFromContext(c.Request().Context())
		roles = RolesFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "dev-user" {
		t.Errorf("subject = %q, want dev-user", subject)
	}
	if len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("roles = %v, want [admin]", roles)
	}
}
