package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	googleJWKSURL   = "https://www.googleapis.com/oauth2/v3/certs"
	firebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// ExternalIdentity is what every identity provider resolves a credential to.
type ExternalIdentity struct {
	Provider  string
	Subject   string
	Email     string
	FirstName string
	LastName  string
}

// IdentityProvider turns a provider-issued credential into an ExternalIdentity.
type IdentityProvider interface {
	Name() string
	Authenticate(ctx context.Context, credential string) (*ExternalIdentity, error)
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKSClient fetches and caches RSA signing keys published as a JWK set.
type JWKSClient struct {
	url        string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
}

func NewJWKSClient(url string) *JWKSClient {
	return &JWKSClient{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ttl:        6 * time.Hour,
		keys:       make(map[string]*rsa.PublicKey),
	}
}

func (c *JWKSClient) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}

	c.mu.Lock()
	c.keys = keys
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return nil
}

func parseRSAPublicKey(nStr, eStr string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}, nil
}

// PublicKey returns the key for kid, refetching on a cache miss or expiry.
func (c *JWKSClient) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, ok := c.keys[kid]
	fresh := time.Now().Before(c.expiresAt)
	c.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.fetch(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if key, ok := c.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("public key with kid %s not found", kid)
}

type oidcClaims struct {
	Email         string      `json:"email"`
	EmailVerified interface{} `json:"email_verified"`
	GivenName     string      `json:"given_name"`
	FamilyName    string      `json:"family_name"`
	Name          string      `json:"name"`
	jwt.RegisteredClaims
}

func (c *oidcClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// OIDCProvider verifies RS256 ID tokens issued by Google or Firebase.
type OIDCProvider struct {
	name     string
	jwks     *JWKSClient
	issuers  []string
	audience string
}

func NewGoogleProvider(clientID string) *OIDCProvider {
	return &OIDCProvider{
		name:     "google",
		jwks:     NewJWKSClient(googleJWKSURL),
		issuers:  []string{"https://accounts.google.com", "accounts.google.com"},
		audience: clientID,
	}
}

func NewFirebaseProvider(projectID string) *OIDCProvider {
	return &OIDCProvider{
		name:     "firebase",
		jwks:     NewJWKSClient(firebaseJWKSURL),
		issuers:  []string{"https://securetoken.google.com/" + projectID},
		audience: projectID,
	}
}

func (p *OIDCProvider) Name() string {
	return p.name
}

func (p *OIDCProvider) Authenticate(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	if idToken == "" {
		return nil, errors.New("identity token is required")
	}

	claims := &oidcClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token has no kid header")
		}
		return p.jwks.PublicKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%s token verification failed: %w", p.name, err)
	}

	if !p.validIssuer(claims.Issuer) {
		return nil, fmt.Errorf("invalid issuer: %s", claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	if claims.Email == "" || !claims.emailVerified() {
		return nil, errors.New("token carries no verified email")
	}

	first, last := claims.GivenName, claims.FamilyName
	if first == "" && last == "" && claims.Name != "" {
		first, last, _ = strings.Cut(claims.Name, " ")
	}

	return &ExternalIdentity{
		Provider:  p.name,
		Subject:   claims.Subject,
		Email:     normalizeEmail(claims.Email),
		FirstName: first,
		LastName:  last,
	}, nil
}

func (p *OIDCProvider) validIssuer(iss string) bool {
	for _, allowed := range p.issuers {
		if iss == allowed {
			return true
		}
	}
	return false
}
