package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/userauth"
	"github.com/MrEthical07/userauth/internal/sqlstore"
	"github.com/MrEthical07/userauth/metrics/export/prometheus"
)

type mailbox struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func (m *mailbox) NotifyPasswordChanged(string, string) {}

func (m *mailbox) NotifyVerification(email, _, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[email] = token
}

func (m *mailbox) NotifyPasswordReset(email, _, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[email] = token
}

func (m *mailbox) token(kind map[string]string, email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return kind[email]
}

type harness struct {
	router *gin.Engine
	mail   *mailbox
	engine *userauth.Engine
}

var dbSeq atomic.Int64

func newHarness(t *testing.T, mutate func(*userauth.Config)) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := sqlstore.Open(context.Background(), sqlstore.SQLite,
		fmt.Sprintf("file:httpapi_%d?mode=memory&cache=shared", dbSeq.Add(1)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := userauth.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Ephemeral.Backend = "redis"
	cfg.Throttle.MaxRequests = 0
	if mutate != nil {
		mutate(&cfg)
	}

	mail := &mailbox{verify: map[string]string{}, reset: map[string]string{}}
	engine, err := userauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(db.Credentials()).
		WithRefreshStore(db.RefreshTokens()).
		WithNotifier(mail).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	router := NewRouter(Options{
		Engine:  engine,
		Metrics: prometheus.NewExporter(engine).Handler(),
		Health: map[string]Checker{
			"db":    db,
			"redis": CheckerFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		},
	})
	return &harness{router: router, mail: mail, engine: engine}
}

func (h *harness) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBundle(t *testing.T, rec *httptest.ResponseRecorder) userauth.TokenBundle {
	t.Helper()
	var b userauth.TokenBundle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return b
}

func registerBody(email, username string) map[string]string {
	return map[string]string{"email": email, "username": username, "password": "correct horse", "firstName": "Ada"}
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodPost, "/api/auth/register", registerBody("ada@example.com", "ada"), "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decodeBundle(t, rec)
	assert.Equal(t, "Bearer", reg.TokenType)
	assert.Equal(t, "ada@example.com", reg.Subject.Email)
	assert.False(t, reg.Subject.EmailVerified)

	rec = h.do(t, http.MethodPost, "/api/auth/register", registerBody("ada@example.com", "other"), "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ada@example.com", "password": "correct horse"}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	login := decodeBundle(t, rec)
	assert.EqualValues(t, 900, login.ExpiresIn)

	// Login rotated the registration refresh token away.
	rec = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": reg.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, login.RefreshToken, decodeBundle(t, rec).RefreshToken)

	rec = h.do(t, http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)

	rec = h.do(t, http.MethodPost, "/api/auth/logout", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginLockout(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/auth/register", registerBody("lock@example.com", "lock"), "").Code)

	wrong := map[string]string{"email": "lock@example.com", "password": "wrong password"}
	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/login", wrong, "").Code)
	}
	assert.Equal(t, http.StatusLocked, h.do(t, http.MethodPost, "/api/auth/login", wrong, "").Code)

	right := map[string]string{"email": "lock@example.com", "password": "correct horse"}
	assert.Equal(t, http.StatusLocked, h.do(t, http.MethodPost, "/api/auth/login", right, "").Code)
}

func TestEmailVerificationRoutes(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/auth/register", registerBody("v@example.com", "v"), "").Code)

	token := h.mail.token(h.mail.verify, "v@example.com")
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/auth/verify-email", nil, "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/auth/verify-email?token="+token, nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodGet, "/api/auth/verify-email?token="+token, nil, "").Code)

	rec := h.do(t, http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "v@example.com"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "nobody@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPasswordResetRoutes(t *testing.T) {
	h := newHarness(t, nil)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/auth/register", registerBody("r@example.com", "r"), "").Code)

	rec := h.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "unknown@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	unknownBody := rec.Body.String()

	rec = h.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "r@example.com"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, unknownBody, rec.Body.String())

	token := h.mail.token(h.mail.reset, "r@example.com")
	require.NotEmpty(t, token)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/auth/reset-password?token="+token, nil, "").Code)

	weak := map[string]string{"token": token, "newPassword": "short"}
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/auth/reset-password", weak, "").Code)

	good := map[string]string{"token": token, "newPassword": "brand new secret"}
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/auth/reset-password", good, "").Code)
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/reset-password", good, "").Code)

	login := map[string]string{"email": "r@example.com", "password": "brand new secret"}
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/auth/login", login, "").Code)
}

func TestChangePasswordRoute(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/auth/register", registerBody("c@example.com", "c"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	access := decodeBundle(t, rec).AccessToken

	change := map[string]string{"currentPassword": "correct horse", "newPassword": "brand new secret"}
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/change-password", change, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/auth/change-password", map[string]string{}, access).Code)

	wrong := map[string]string{"currentPassword": "wrong password", "newPassword": "brand new secret"}
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/change-password", wrong, access).Code)

	reuse := map[string]string{"currentPassword": "correct horse", "newPassword": "correct horse"}
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/auth/change-password", reuse, access).Code)

	rec = h.do(t, http.MethodPost, "/api/auth/change-password", change, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	old := map[string]string{"email": "c@example.com", "password": "correct horse"}
	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/login", old, "").Code)
	next := map[string]string{"email": "c@example.com", "password": "brand new secret"}
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/auth/login", next, "").Code)
}

func TestChangePasswordRouteLocksOut(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/auth/register", registerBody("cl@example.com", "cl"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	access := decodeBundle(t, rec).AccessToken

	wrong := map[string]string{"currentPassword": "wrong password", "newPassword": "brand new secret"}
	for i := 0; i < 4; i++ {
		assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/auth/change-password", wrong, access).Code)
	}
	assert.Equal(t, http.StatusLocked, h.do(t, http.MethodPost, "/api/auth/change-password", wrong, access).Code)

	login := map[string]string{"email": "cl@example.com", "password": "correct horse"}
	assert.Equal(t, http.StatusLocked, h.do(t, http.MethodPost, "/api/auth/login", login, "").Code)
}

func TestDeleteAccountRoute(t *testing.T) {
	h := newHarness(t, nil)
	rec := h.do(t, http.MethodPost, "/api/auth/register", registerBody("d@example.com", "d"), "")
	require.Equal(t, http.StatusCreated, rec.Code)
	reg := decodeBundle(t, rec)

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodDelete, "/api/auth/me", nil, "").Code)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodDelete, "/api/auth/me", nil, reg.AccessToken).Code)

	rec = h.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": reg.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodDelete, "/api/auth/me", nil, reg.AccessToken).Code)

	// The address is free again.
	rec = h.do(t, http.MethodPost, "/api/auth/register", registerBody("d@example.com", "d"), "")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestThrottleReturns429(t *testing.T) {
	h := newHarness(t, func(cfg *userauth.Config) {
		cfg.Throttle.MaxRequests = 1
	})
	body := map[string]string{"email": "t@example.com"}
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/auth/forgot-password", body, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(t, http.MethodPost, "/api/auth/forgot-password", body, "").Code)
}

func TestBadJSONIs400(t *testing.T) {
	h := newHarness(t, nil)
	for _, path := range []string{"/api/auth/register", "/api/auth/login", "/api/auth/refresh", "/api/auth/forgot-password", "/api/auth/reset-password"} {
		assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, path, map[string]string{}, "").Code, path)
	}
	rec := h.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": "not-an-email", "username": "x", "password": "long enough"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthzMetricsAndRequestID(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"ok"`)
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	id := uuid.NewString()
	req.Header.Set(requestIDHeader, id)
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	assert.Equal(t, id, rr.Header().Get(requestIDHeader))

	h.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "whatever"}, "")
	rec = h.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "userauth_login_failure_total 1")
}

func TestHealthzReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Options{Health: map[string]Checker{
		"db": CheckerFunc(func(context.Context) error { return errors.New("down") }),
	}})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "down")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{userauth.ErrInvalidInput, http.StatusBadRequest},
		{userauth.ErrPasswordPolicy, http.StatusBadRequest},
		{userauth.ErrPasswordReuse, http.StatusBadRequest},
		{userauth.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("%w: expired", userauth.ErrInvalidOrExpiredToken), http.StatusUnauthorized},
		{userauth.ErrRefreshTokenInvalid, http.StatusUnauthorized},
		{userauth.ErrAccountDisabled, http.StatusForbidden},
		{userauth.ErrNotFound, http.StatusNotFound},
		{userauth.ErrAlreadyExists, http.StatusConflict},
		{userauth.ErrEmailAlreadyVerified, http.StatusConflict},
		{userauth.ErrAccountLocked, http.StatusLocked},
		{userauth.ErrRateLimited, http.StatusTooManyRequests},
		{userauth.ErrEngineNotReady, http.StatusServiceUnavailable},
		{errors.New("redis: connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		got, msg := statusFor(tc.err)
		assert.Equal(t, tc.want, got, tc.err.Error())
		assert.NotEmpty(t, msg)
	}
	_, msg := statusFor(errors.New("secret internal detail"))
	assert.NotContains(t, msg, "secret")
}

func TestRecovererReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Options{})
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
