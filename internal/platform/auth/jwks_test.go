package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return key
}

// testJWK publishes the public half of key in JWK form under kid.
func testJWK(key *rsa.PrivateKey, kid string) jwk {
	pub := &key.PublicKey
	return jwk{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func TestKeyStore_FetchesAndCaches(t *testing.T) {
	key := newRSAKey(t)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{testJWK(key, "k1")}})
	}))
	defer srv.Close()

	store := newKeyStore(srv.URL, time.Minute)

	got, err := store.get("k1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if got.N.Cmp(key.PublicKey.N) != 0 || got.E != key.PublicKey.E {
		t.Error("fetched key does not match the published key")
	}

	if _, err := store.get("k1"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if got := fetches.Load(); got != 1 {
		t.Errorf("endpoint fetched %d times, want 1", got)
	}
}

func TestKeyStore_RefreshesAfterRotation(t *testing.T) {
	first := newRSAKey(t)
	second := newRSAKey(t)
	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := jwkSet{Keys: []jwk{testJWK(first, "gen-1")}}
		if fetches.Add(1) > 1 {
			set.Keys = append(set.Keys, testJWK(second, "gen-2"))
		}
		json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	store := newKeyStore(srv.URL, time.Millisecond)

	if _, err := store.get("gen-1"); err != nil {
		t.Fatalf("get gen-1: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	got, err := store.get("gen-2")
	if err != nil {
		t.Fatalf("get gen-2 after rotation: %v", err)
	}
	if got.N.Cmp(second.PublicKey.N) != 0 {
		t.Error("rotated key does not match")
	}
	if got := fetches.Load(); got < 2 {
		t.Errorf("endpoint fetched %d times, want at least 2", got)
	}
}

func TestKeyStore_UnknownKid(t *testing.T) {
	key := newRSAKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{testJWK(key, "known")}})
	}))
	defer srv.Close()

	store := newKeyStore(srv.URL, time.Minute)
	if _, err := store.get("never-published"); err == nil {
		t.Fatal("expected an error for a kid the provider never published")
	}
}

func TestKeyStore_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := newKeyStore(srv.URL, time.Minute)
	if _, err := store.get("any"); err == nil {
		t.Fatal("expected an error when the endpoint fails")
	}
}

func TestKeyStore_SkipsNonRSAKeys(t *testing.T) {
	key := newRSAKey(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := jwkSet{Keys: []jwk{
			{Kty: "EC", Kid: "ec-1"},
			testJWK(key, "rsa-1"),
		}}
		json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	store := newKeyStore(srv.URL, time.Minute)
	if _, err := store.get("rsa-1"); err != nil {
		t.Fatalf("rsa key not served: %v", err)
	}
	if _, err := store.get("ec-1"); err == nil {
		t.Error("ec key should not be served by an rsa-only store")
	}
}

func TestRSAPublicKey_RoundTrip(t *testing.T) {
	key := newRSAKey(t)
	pub, err := rsaPublicKey(testJWK(key, "round"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 {
		t.Error("modulus does not survive the round trip")
	}
	if pub.E != key.PublicKey.E {
		t.Error("exponent does not survive the round trip")
	}
}

func TestRSAPublicKey_RejectsBadEncoding(t *testing.T) {
	valid := base64.RawURLEncoding.EncodeToString(big.NewInt(65537).Bytes())
	bad := []struct {
		name string
		key  jwk
	}{
		{"modulus", jwk{Kty: "RSA", Kid: "bad-n", N: "!!!", E: valid}},
		{"exponent", jwk{Kty: "RSA", Kid: "bad-e", N: valid, E: "!!!"}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := rsaPublicKey(tt.key); err == nil {
				t.Fatalf("expected an error for an undecodable %s", tt.name)
			}
		})
	}
}

func TestKeyfunc_RequiresKid(t *testing.T) {
	fn := newKeyStore("http://127.0.0.1:1", time.Minute).keyfunc()

	if _, err := fn(&jwt.Token{Header: map[string]any{}}); err == nil {
		t.Fatal("expected an error for a token without kid")
	}
	if _, err := fn(&jwt.Token{Header: map[string]any{"kid": 42}}); err == nil {
		t.Fatal("expected an error for a non-string kid")
	}
}
