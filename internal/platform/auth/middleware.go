package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// JWTConfig selects how bearer tokens are verified. Setting SigningKey
// switches verification to HS256 against that key, for single-box
// deployments without an identity provider. Otherwise tokens must be
// RS256-signed by a key from JWKSURL, which is discovered from Issuer
// when left empty.
type JWTConfig struct {
	Issuer     string
	Audience   string
	JWKSURL    string
	SigningKey []byte
}

// keyfunc returns the key lookup for token verification and the
// signing algorithms that lookup accepts. The key store behind the
// RS256 path is shared across requests, so the provider is contacted
// only on expiry or rotation.
func (cfg JWTConfig) keyfunc() (jwt.Keyfunc, []string) {
	if len(cfg.SigningKey) > 0 {
		return func(*jwt.Token) (any, error) { return cfg.SigningKey, nil }, []string{"HS256"}
	}
	url := cfg.JWKSURL
	if url == "" && cfg.Issuer != "" {
		if discovered, err := discoverJWKSURL(cfg.Issuer); err == nil {
			url = discovered
		}
	}
	return newKeyStore(url, defaultKeyTTL).keyfunc(), []string{"RS256"}
}

// JWTMiddleware rejects any request that does not carry a valid bearer
// token, then stores the verified subject and roles on the request
// context for the rate limiter and the role checks downstream.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	keyFn, methods := cfg.keyfunc()

	opts := []jwt.ParserOption{jwt.WithValidMethods(methods)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c.Request())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFn, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			withIdentity(c, claims.Subject, claims.Roles)
			return next(c)
		}
	}
}

// bearerToken extracts the RFC 6750 bearer credential from the
// Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	scheme, credential, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") || credential == "" {
		return "", errors.New("authorization header is not a bearer token")
	}
	return credential, nil
}
