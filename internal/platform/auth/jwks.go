package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultKeyTTL bounds how long verification keys are trusted before
// the provider is asked again.
const defaultKeyTTL = 5 * time.Minute

// jwk is a single RSA verification key as published in a JWK Set
// (RFC 7517).
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// keyStore caches the provider's RSA public keys. The set is replaced
// wholesale when it expires or when a token names a kid the cache has
// never seen, which is how key rotation reaches a running server.
type keyStore struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

func newKeyStore(url string, ttl time.Duration) *keyStore {
	return &keyStore{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		keys:   map[string]*rsa.PublicKey{},
	}
}

// get returns the public key for kid, refreshing the cached set first
// when it is stale or does not contain the kid.
func (s *keyStore) get(kid string) (*rsa.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	fresh := time.Now().Before(s.expires)
	s.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another request may have refreshed the set while we waited.
	if key, ok := s.keys[kid]; ok && time.Now().Before(s.expires) {
		return key, nil
	}
	if err := s.refreshLocked(); err != nil {
		return nil, fmt.Errorf("refresh jwks: %w", err)
	}
	key, ok = s.keys[kid]
	if !ok {
		return nil, fmt.Errorf("no key %q in jwks", kid)
	}
	return key, nil
}

// refreshLocked replaces the key set from the endpoint. Callers hold mu.
func (s *keyStore) refreshLocked() error {
	resp, err := s.client.Get(s.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks endpoint returned %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			continue // tolerate malformed entries alongside usable ones
		}
		keys[k.Kid] = pub
	}
	s.keys = keys
	s.expires = time.Now().Add(s.ttl)
	return nil
}

// keyfunc adapts the store to the jwt parser. Tokens must name the
// key that signed them via the kid header.
func (s *keyStore) keyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return s.get(kid)
	}
}

// rsaPublicKey assembles an RSA public key from its base64url-encoded
// modulus and exponent.
func rsaPublicKey(k jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
