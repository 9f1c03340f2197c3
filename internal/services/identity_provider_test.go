package services

import (
	"context"
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
	"github.com/stretchr/testify/require"
)

const testKID = "kid-1"

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.requests.Add(1)
		set := jwkSet{Keys: []jwk{{
			Kty: "RSA",
			Kid: testKID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(f.key)
	require.NoError(t, err)
	return raw
}

func testGoogleProvider(f *jwksFixture) *OIDCProvider {
	p := NewGoogleProvider("client-123")
	p.jwks = NewJWKSClient(f.server.URL)
	return p
}

func validGoogleClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":            "https://accounts.google.com",
		"aud":            "client-123",
		"sub":            "google-sub-1",
		"email":          "Alice@Example.com",
		"email_verified": true,
		"name":           "Alice Liddell",
		"exp":            time.Now().Add(time.Hour).Unix(),
		"iat":            time.Now().Unix(),
	}
}

func TestOIDCProvider_Authenticate(t *testing.T) {
	f := newJWKSFixture(t)
	p := testGoogleProvider(f)
	require.Equal(t, "google", p.Name())

	ident, err := p.Authenticate(context.Background(), f.sign(t, testKID, validGoogleClaims()))
	require.NoError(t, err)
	require.Equal(t, "google", ident.Provider)
	require.Equal(t, "google-sub-1", ident.Subject)
	require.Equal(t, "alice@example.com", ident.Email)
	require.Equal(t, "Alice", ident.FirstName)
	require.Equal(t, "Liddell", ident.LastName)

	// Keys are cached between calls.
	_, err = p.Authenticate(context.Background(), f.sign(t, testKID, validGoogleClaims()))
	require.NoError(t, err)
	require.Equal(t, int32(1), f.requests.Load())
}

func TestOIDCProvider_Rejects(t *testing.T) {
	f := newJWKSFixture(t)
	p := testGoogleProvider(f)

	mutate := func(fn func(jwt.MapClaims)) jwt.MapClaims {
		c := validGoogleClaims()
		fn(c)
		return c
	}

	cases := map[string]string{
		"empty":          "",
		"wrong audience": f.sign(t, testKID, mutate(func(c jwt.MapClaims) { c["aud"] = "someone-else" })),
		"wrong issuer":   f.sign(t, testKID, mutate(func(c jwt.MapClaims) { c["iss"] = "https://evil.example" })),
		"expired":        f.sign(t, testKID, mutate(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() })),
		"unverified":     f.sign(t, testKID, mutate(func(c jwt.MapClaims) { c["email_verified"] = "false" })),
		"no subject":     f.sign(t, testKID, mutate(func(c jwt.MapClaims) { delete(c, "sub") })),
		"unknown kid":    f.sign(t, "kid-2", validGoogleClaims()),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := p.Authenticate(context.Background(), token)
			require.Error(t, err)
		})
	}
}

func TestOIDCProvider_RejectsHMACToken(t *testing.T) {
	f := newJWKSFixture(t)
	p := testGoogleProvider(f)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, validGoogleClaims())
	token.Header["kid"] = testKID
	raw, err := token.SignedString([]byte("shared"))
	require.NoError(t, err)

	_, err = p.Authenticate(context.Background(), raw)
	require.Error(t, err)
}

func TestJWKSClient_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewJWKSClient(srv.URL).PublicKey(context.Background(), testKID)
	require.Error(t, err)
}
