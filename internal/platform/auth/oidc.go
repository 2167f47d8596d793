package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// discoveryDocument is the slice of an OpenID Connect discovery
// response a resource server needs. Providers publish much more, but
// token verification only requires the key set location.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// discoverJWKSURL resolves the provider's JWKS endpoint from its
// .well-known/openid-configuration document. The issuer named inside
// the document must match the issuer that was queried.
func discoverJWKSURL(issuer string) (string, error) {
	trimmed := strings.TrimRight(issuer, "/")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(trimmed + "/.well-known/openid-configuration")
	if err != nil {
		return "", fmt.Errorf("fetch oidc discovery document: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oidc discovery endpoint returned %d", resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("decode oidc discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return "", errors.New("oidc discovery document has no jwks_uri")
	}
	if doc.Issuer != "" && strings.TrimRight(doc.Issuer, "/") != trimmed {
		return "", fmt.Errorf("oidc discovery issuer %q does not match %q", doc.Issuer, issuer)
	}
	return doc.JWKSURI, nil
}
