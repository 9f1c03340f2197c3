package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brightpath/agency-portal/internal/authz"
	"github.com/brightpath/agency-portal/internal/database/dbtest"
	"github.com/brightpath/agency-portal/internal/handlers"
	"github.com/brightpath/agency-portal/internal/middleware"
	"github.com/brightpath/agency-portal/internal/services"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testAPIKey    = "service-key"
	testJWTSecret = "routes-test-secret-0123456789"
)

type codeNotifier struct {
	mu   sync.Mutex
	code string
}

func (n *codeNotifier) Notify(_ context.Context, msg services.PushMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.code = msg.Data["code"]
	return nil
}

func (n *codeNotifier) lastCode() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.code
}

type testServer struct {
	app      *fiber.App
	db       *gorm.DB
	notifier *codeNotifier
}

func newTestServer(t *testing.T, bootstrapAdmins ...string) *testServer {
	t.Helper()
	return newTestServerWithStore(t, nil, bootstrapAdmins...)
}

// newTestServerWithStore uses store for revocations, or the database when nil.
func newTestServerWithStore(t *testing.T, store services.RevocationStore, bootstrapAdmins ...string) *testServer {
	t.Helper()
	db := dbtest.Open(t)
	if store == nil {
		store = services.NewGormRevocationStore(db)
	}

	issuer, err := services.NewTokenIssuer(testJWTSecret, time.Hour)
	require.NoError(t, err)
	hasher := services.NewPasswordHasher(services.MinBcryptCost)
	blacklist := services.NewTokenBlacklist(store, true, time.Second)
	mobile := services.NewMobileSessionService(db)
	notifier := &codeNotifier{}
	otp := services.NewOTPService(db, mobile, notifier, "999999", services.DefaultOTPTTL)
	roles := services.NewRoleService(db, bootstrapAdmins)
	auth := services.NewAuthService(db, hasher, issuer, blacklist, mobile, otp, roles)
	cookie := middleware.NewSessionCookie(false, issuer.DefaultTTL())

	app := fiber.New()
	Setup(app, Deps{
		Auth:             handlers.NewAuthHandler(auth, otp, cookie),
		Mobile:           handlers.NewMobileHandler(auth, mobile),
		Biometric:        handlers.NewBiometricHandler(services.NewBiometricService(db, hasher)),
		Admin:            handlers.NewAdminHandler(roles),
		Health:           handlers.NewHealthHandler(db),
		VerifyJWT:        middleware.VerifyJWT(issuer, blacklist, cookie),
		RefreshIdentity:  middleware.RefreshIdentity(auth),
		APIKey:           middleware.RequireAPIKey(testAPIKey),
		Policy:           authz.DefaultPolicy(),
		DisableRateLimit: true,
	})
	return &testServer{app: app, db: db, notifier: notifier}
}

type request struct {
	method  string
	path    string
	body    interface{}
	headers map[string]string
	cookie  *http.Cookie
}

type response struct {
	status int
	body   map[string]interface{}
	cookie *http.Cookie
}

func (s *testServer) do(t *testing.T, r request) response {
	t.Helper()
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(r.method, r.path, body)
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			out.cookie = c
		}
	}
	return out
}

func registerBody(email string) map[string]string {
	return map[string]string{"email": email, "password": "Secret1", "firstName": "Alice", "lastName": "Smith"}
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestBrowserSessionLifecycle(t *testing.T) {
	s := newTestServer(t)

	reg := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	require.Equal(t, http.StatusCreated, reg.status)
	require.NotNil(t, reg.cookie)
	user := reg.body["user"].(map[string]interface{})
	require.Equal(t, "customer", user["role"])
	require.NotContains(t, user, "passwordHash")

	login := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "Alice@X.com", "password": "Secret1"}})
	require.Equal(t, http.StatusOK, login.status)
	require.NotNil(t, login.cookie)
	require.True(t, login.cookie.HttpOnly)

	session := &http.Cookie{Name: middleware.SessionCookieName, Value: login.cookie.Value}
	me := s.do(t, request{method: http.MethodGet, path: "/api/auth/user", cookie: session})
	require.Equal(t, http.StatusOK, me.status)
	require.Equal(t, "alice@x.com", me.body["email"])

	out := s.do(t, request{method: http.MethodPost, path: "/api/auth/logout", cookie: session})
	require.Equal(t, http.StatusOK, out.status)
	require.Equal(t, true, out.body["ok"])
	require.NotNil(t, out.cookie)
	require.Empty(t, out.cookie.Value)

	after := s.do(t, request{method: http.MethodGet, path: "/api/auth/user", cookie: session})
	require.Equal(t, http.StatusUnauthorized, after.status)

	// Logout stays idempotent without a token.
	again := s.do(t, request{method: http.MethodPost, path: "/api/auth/logout"})
	require.Equal(t, http.StatusOK, again.status)
}

func TestLoginErrors(t *testing.T) {
	s := newTestServer(t)
	s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})

	invalid := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{"email": "bad"}})
	require.Equal(t, http.StatusBadRequest, invalid.status)
	require.Contains(t, invalid.body["fields"], "email")

	dup := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("ALICE@x.com")})
	require.Equal(t, http.StatusBadRequest, dup.status)

	wrong := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@x.com", "password": "nope123"}})
	unknown := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "bob@x.com", "password": "nope123"}})
	require.Equal(t, http.StatusUnauthorized, wrong.status)
	require.Equal(t, http.StatusUnauthorized, unknown.status)
	require.Equal(t, wrong.body["message"], unknown.body["message"])

	bad := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: nil, headers: map[string]string{"Content-Type": "application/json"}})
	require.Equal(t, http.StatusBadRequest, bad.status)
}

func TestDesktopLoginHandshake(t *testing.T) {
	s := newTestServer(t)
	s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	creds := map[string]string{"email": "alice@x.com", "password": "Secret1"}

	noMobile := s.do(t, request{method: http.MethodPost, path: "/api/auth/desktop-login-request", body: creds})
	require.Equal(t, http.StatusForbidden, noMobile.status)
	require.Equal(t, true, noMobile.body["requiresMobileLogin"])

	mobile := s.do(t, request{method: http.MethodPost, path: "/api/mobile/auth/login", body: map[string]string{
		"email": "alice@x.com", "password": "Secret1", "deviceToken": "dev1", "deviceType": "ios",
	}})
	require.Equal(t, http.StatusOK, mobile.status)
	require.NotEmpty(t, mobile.body["token"])
	require.NotEmpty(t, mobile.body["sessionToken"])

	requested := s.do(t, request{method: http.MethodPost, path: "/api/auth/desktop-login-request", body: creds})
	require.Equal(t, http.StatusOK, requested.status)
	require.Equal(t, float64(300), requested.body["expiresIn"])

	issued := s.notifier.lastCode()
	require.Len(t, issued, 6)
	wrongCode := "123456"
	if issued == wrongCode {
		wrongCode = "654321"
	}

	verify := func(code string) response {
		return s.do(t, request{method: http.MethodPost, path: "/api/auth/desktop-login-verify", body: map[string]string{
			"email": "alice@x.com", "password": "Secret1", "otpCode": code,
		}})
	}
	require.Equal(t, http.StatusUnauthorized, verify(wrongCode).status)

	ok := verify(issued)
	require.Equal(t, http.StatusOK, ok.status)
	require.NotNil(t, ok.cookie)

	require.Equal(t, http.StatusUnauthorized, verify(issued).status)

	master := verify("999999")
	require.Equal(t, http.StatusOK, master.status)
}

func TestMobileSessions(t *testing.T) {
	s := newTestServer(t)
	s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	login := func(device string) response {
		return s.do(t, request{method: http.MethodPost, path: "/api/mobile/auth/login", body: map[string]string{
			"email": "alice@x.com", "password": "Secret1", "deviceToken": device,
		}})
	}

	first := login("dev1")
	require.Equal(t, http.StatusOK, first.status)
	token := first.body["token"].(string)
	userID := first.body["user"].(map[string]interface{})["id"].(string)
	sessionToken := first.body["sessionToken"].(string)

	validate := func(key, sessionToken string) response {
		return s.do(t, request{
			method:  http.MethodPost,
			path:    "/api/mobile/validate-session",
			body:    map[string]string{"userId": userID, "deviceToken": "dev1", "sessionToken": sessionToken},
			headers: map[string]string{middleware.APIKeyHeader: key},
		})
	}
	require.Equal(t, http.StatusUnauthorized, validate("wrong", sessionToken).status)
	valid := validate(testAPIKey, sessionToken)
	require.Equal(t, http.StatusOK, valid.status)
	require.Equal(t, true, valid.body["valid"])

	second := login("dev1")
	require.Equal(t, http.StatusOK, second.status)
	require.NotEqual(t, sessionToken, second.body["sessionToken"])
	require.Equal(t, http.StatusUnauthorized, validate(testAPIKey, sessionToken).status)

	login("dev2")
	list := s.do(t, request{method: http.MethodGet, path: "/api/mobile/sessions", headers: bearer(token)})
	require.Equal(t, http.StatusOK, list.status)
	require.Len(t, list.body["sessions"], 2)

	all := s.do(t, request{method: http.MethodPost, path: "/api/auth/logout-all", headers: bearer(token)})
	require.Equal(t, http.StatusOK, all.status)
	require.Equal(t, float64(2), all.body["sessionsCleared"])

	require.Equal(t, http.StatusUnauthorized,
		s.do(t, request{method: http.MethodGet, path: "/api/mobile/sessions", headers: bearer(token)}).status)
}

func TestRoleGuards(t *testing.T) {
	s := newTestServer(t, "founder@x.com")
	customer := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	admin := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("founder@x.com")})
	require.Equal(t, "admin", admin.body["user"].(map[string]interface{})["role"])

	customerCookie := &http.Cookie{Name: middleware.SessionCookieName, Value: customer.cookie.Value}
	adminCookie := &http.Cookie{Name: middleware.SessionCookieName, Value: admin.cookie.Value}
	customerID := customer.body["user"].(map[string]interface{})["id"].(string)

	require.Equal(t, http.StatusUnauthorized, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants"}).status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", cookie: customerCookie}).status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/seo/access", cookie: customerCookie}).status)

	grants := s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", cookie: adminCookie})
	require.Equal(t, http.StatusOK, grants.status)

	provision := s.do(t, request{method: http.MethodPost, path: "/api/admin/team-members", cookie: adminCookie, body: map[string]interface{}{
		"userId": customerID, "role": "SEO Expert", "department": "Marketing",
	}})
	require.Equal(t, http.StatusCreated, provision.status)

	// Claims are refreshed at the next login.
	relogin := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{"email": "alice@x.com", "password": "Secret1"}})
	require.Equal(t, http.StatusOK, relogin.status)
	seoCookie := &http.Cookie{Name: middleware.SessionCookieName, Value: relogin.cookie.Value}
	require.Equal(t, http.StatusOK, s.do(t, request{method: http.MethodGet, path: "/api/seo/access", cookie: seoCookie}).status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", cookie: seoCookie}).status)
}

func TestLogoutDoesNotRecordForeignTokens(t *testing.T) {
	s := newTestServer(t)
	s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})

	foreign, err := services.NewTokenIssuer("some-other-secret-0123456789", time.Hour)
	require.NoError(t, err)
	user := &models.User{ID: uuid.New(), Email: "mallory@x.com", Role: models.RoleAdmin}
	forged, _, err := foreign.Issue(services.ClaimsFor(user, nil), time.Hour)
	require.NoError(t, err)

	for _, token := range []string{forged, "garbage", "a.b.c"} {
		out := s.do(t, request{method: http.MethodPost, path: "/api/auth/logout", headers: bearer(token)})
		require.Equal(t, http.StatusOK, out.status)
	}

	var count int64
	require.NoError(t, s.db.Model(&models.BlacklistEntry{}).Count(&count).Error)
	require.Zero(t, count)
}

type failingRevocationStore struct{}

func (failingRevocationStore) Insert(context.Context, *models.BlacklistEntry) error {
	return errors.New("revocation store unavailable")
}

func (failingRevocationStore) Exists(context.Context, string) (bool, error) { return false, nil }

func (failingRevocationStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func TestLogoutClearsCookieWhenRevocationFails(t *testing.T) {
	s := newTestServerWithStore(t, failingRevocationStore{})
	reg := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	require.Equal(t, http.StatusCreated, reg.status)

	session := &http.Cookie{Name: middleware.SessionCookieName, Value: reg.cookie.Value}
	out := s.do(t, request{method: http.MethodPost, path: "/api/auth/logout", cookie: session})
	require.Equal(t, http.StatusInternalServerError, out.status)
	require.NotNil(t, out.cookie)
	require.Empty(t, out.cookie.Value)
}

func TestPrivilegedRoutesRecheckAccount(t *testing.T) {
	s := newTestServer(t, "founder@x.com", "ops@x.com")
	founder := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("founder@x.com")})
	ops := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("ops@x.com")})
	other := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("ana@x.com")})
	require.Equal(t, "admin", ops.body["user"].(map[string]interface{})["role"])

	founderAuth := bearer(founder.cookie.Value)
	opsAuth := bearer(ops.cookie.Value)
	opsID := ops.body["user"].(map[string]interface{})["id"].(string)
	require.Equal(t, http.StatusOK, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", headers: opsAuth}).status)

	// Demotion applies to the token already issued.
	demote := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/" + opsID + "/role", headers: founderAuth,
		body: map[string]string{"role": "customer", "reason": "rotated off"}})
	require.Equal(t, http.StatusOK, demote.status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", headers: opsAuth}).status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/seo/access", headers: opsAuth}).status)

	// So does deactivation.
	promote := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/" + opsID + "/role", headers: founderAuth,
		body: map[string]string{"role": "admin"}})
	require.Equal(t, http.StatusOK, promote.status)
	require.Equal(t, http.StatusOK, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", headers: opsAuth}).status)

	deactivate := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/" + opsID + "/active", headers: founderAuth,
		body: map[string]bool{"active": false}})
	require.Equal(t, http.StatusOK, deactivate.status)
	require.Equal(t, http.StatusUnauthorized, s.do(t, request{method: http.MethodGet, path: "/api/admin/role-grants", headers: opsAuth}).status)

	otherID := other.body["user"].(map[string]interface{})["id"].(string)
	hijack := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/" + otherID + "/role", headers: opsAuth,
		body: map[string]string{"role": "admin"}})
	require.Equal(t, http.StatusUnauthorized, hijack.status)
}

func TestSEOAccessEndsWithTeamRole(t *testing.T) {
	s := newTestServer(t, "founder@x.com")
	admin := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("founder@x.com")})
	member := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("seo@x.com")})
	adminAuth := bearer(admin.cookie.Value)
	memberID := member.body["user"].(map[string]interface{})["id"].(string)

	provision := s.do(t, request{method: http.MethodPost, path: "/api/admin/team-members", headers: adminAuth, body: map[string]interface{}{
		"userId": memberID, "role": "SEO Expert",
	}})
	require.Equal(t, http.StatusCreated, provision.status)

	creds := map[string]string{"email": "seo@x.com", "password": "Secret1"}
	login := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: creds})
	require.Equal(t, http.StatusOK, login.status)
	seoAuth := bearer(login.cookie.Value)
	require.Equal(t, http.StatusOK, s.do(t, request{method: http.MethodGet, path: "/api/seo/access", headers: seoAuth}).status)

	demote := s.do(t, request{method: http.MethodPut, path: "/api/admin/users/" + memberID + "/role", headers: adminAuth,
		body: map[string]string{"role": "customer"}})
	require.Equal(t, http.StatusOK, demote.status)
	require.Equal(t, http.StatusForbidden, s.do(t, request{method: http.MethodGet, path: "/api/seo/access", headers: seoAuth}).status)

	relogin := s.do(t, request{method: http.MethodPost, path: "/api/auth/login", body: creds})
	require.Equal(t, http.StatusOK, relogin.status)
	require.Equal(t, http.StatusForbidden,
		s.do(t, request{method: http.MethodGet, path: "/api/seo/access", headers: bearer(relogin.cookie.Value)}).status)

	var members int64
	require.NoError(t, s.db.Model(&models.TeamMember{}).Where("user_id = ?", memberID).Count(&members).Error)
	require.Zero(t, members)
}

func TestBiometricFlow(t *testing.T) {
	s := newTestServer(t)
	reg := s.do(t, request{method: http.MethodPost, path: "/api/auth/register", body: registerBody("alice@x.com")})
	token := reg.cookie.Value

	headers := func(device string) map[string]string {
		h := bearer(token)
		if device != "" {
			h["X-Device-Token"] = device
		}
		return h
	}

	require.Equal(t, http.StatusBadRequest, s.do(t, request{method: http.MethodGet, path: "/api/mobile/biometric", headers: headers("")}).status)
	require.Equal(t, http.StatusNotFound, s.do(t, request{method: http.MethodGet, path: "/api/mobile/biometric", headers: headers("dev1")}).status)

	setup := s.do(t, request{method: http.MethodPost, path: "/api/mobile/biometric/setup", headers: headers("dev1"), body: map[string]interface{}{
		"biometricType": "face", "localPin": "4321",
	}})
	require.Equal(t, http.StatusOK, setup.status)
	require.Equal(t, true, setup.body["enabled"])
	require.Equal(t, true, setup.body["hasLocalPin"])

	pin := func(p string) int {
		return s.do(t, request{method: http.MethodPost, path: "/api/mobile/biometric/verify-pin", headers: headers("dev1"), body: map[string]string{"pin": p}}).status
	}
	require.Equal(t, http.StatusOK, pin("4321"))
	require.Equal(t, http.StatusUnauthorized, pin("0000"))

	toggled := s.do(t, request{method: http.MethodPut, path: "/api/mobile/biometric/toggle", headers: headers("dev1"), body: map[string]bool{"enabled": false}})
	require.Equal(t, http.StatusOK, toggled.status)
	require.Equal(t, false, toggled.body["enabled"])

	require.Equal(t, http.StatusNotFound, s.do(t, request{method: http.MethodGet, path: "/api/mobile/biometric", headers: headers("dev2")}).status)
	require.Equal(t, http.StatusOK, s.do(t, request{method: http.MethodDelete, path: "/api/mobile/biometric", headers: headers("dev1")}).status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, request{method: http.MethodGet, path: "/api/health"})
	require.Equal(t, http.StatusOK, resp.status)
	require.True(t, strings.EqualFold(resp.body["status"].(string), "ok"))
}
