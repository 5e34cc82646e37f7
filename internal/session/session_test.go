package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newManager(now time.Time, rev Revoker) *Manager {
	return NewManager(Options{Secret: testSecret, TTL: 24 * time.Hour, Revoker: rev, Clock: clock.NewFixed(now)}, zerolog.Nop())
}

func TestIssueAndParse(t *testing.T) {
	m := newManager(t0, nil)
	token, exp, err := m.Issue(&model.User{ID: 42, Role: model.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !exp.Equal(t0.Add(24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}

	claims, p, err := m.Parse(context.Background(), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.UserID != 42 || !p.IsAdmin() || claims.ID == "" {
		t.Fatalf("unexpected principal %+v claims %+v", p, claims)
	}
}

func TestParse_Rejects(t *testing.T) {
	m := newManager(t0, nil)
	valid, _, _ := m.Issue(&model.User{ID: 1, Role: model.RoleUser})

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             "admin",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ID: "x", ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "root",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ID: "x", ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour))},
	}).SignedString([]byte(testSecret))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             "user",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1", ID: "x"},
	}).SignedString([]byte(testSecret))

	tests := map[string]struct {
		m     *Manager
		token string
	}{
		"garbage":        {m: m, token: "not-a-jwt"},
		"tampered":       {m: m, token: valid[:len(valid)-2] + "xx"},
		"wrong secret":   {m: NewManager(Options{Secret: "another-secret-value", Clock: clock.NewFixed(t0)}, zerolog.Nop()), token: valid},
		"expired":        {m: newManager(t0.Add(25*time.Hour), nil), token: valid},
		"alg none":       {m: m, token: none},
		"unknown role":   {m: m, token: badRole},
		"missing expiry": {m: m, token: noExpiry},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, _, err := tt.m.Parse(context.Background(), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginMiddlewareLogout(t *testing.T) {
	rev := NewMemoryRevoker(clock.NewFixed(t0))
	m := newManager(t0, rev)

	rec := httptest.NewRecorder()
	if err := m.Login(rec, &model.User{ID: 5, Role: model.RoleUser}); err != nil {
		t.Fatalf("login: %v", err)
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.Path != "/" {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	var seen Principal
	var authed bool
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authed = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if !authed || seen.UserID != 5 {
		t.Fatalf("expected principal for user 5, got %+v (%v)", seen, authed)
	}

	out := httptest.NewRecorder()
	logoutReq := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logoutReq.AddCookie(cookie)
	if err := m.Logout(out, logoutReq); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c := sessionCookie(t, out); c.MaxAge >= 0 {
		t.Fatalf("expected cookie to be cleared, got %+v", c)
	}

	authed = false
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	h.ServeHTTP(rec, req)
	if authed {
		t.Fatal("expected revoked session to be anonymous")
	}
	if c := sessionCookie(t, rec); c.MaxAge >= 0 {
		t.Fatalf("expected revoked cookie to be cleared, got %+v", c)
	}
}

func TestMiddleware_NoCookie(t *testing.T) {
	m := newManager(t0, nil)
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := FromContext(r.Context()); ok {
			t.Fatal("expected anonymous request")
		}
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called || len(rec.Result().Cookies()) != 0 {
		t.Fatalf("expected pass-through without cookies")
	}
}

func TestRequireUserAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name     string
		mw       func(http.Handler) http.Handler
		ctx      context.Context
		method   string
		want     int
		location string
	}{
		{name: "user anonymous", mw: RequireUser, ctx: context.Background(), method: http.MethodGet, want: http.StatusSeeOther, location: "/login?next=%2Fme%2Fbookings"},
		{name: "user ok", mw: RequireUser, ctx: WithPrincipal(context.Background(), Principal{UserID: 1, Role: model.RoleUser}), method: http.MethodGet, want: http.StatusNoContent},
		{name: "admin anonymous post", mw: RequireAdmin, ctx: context.Background(), method: http.MethodPost, want: http.StatusSeeOther, location: "/login?next=%2F"},
		{name: "admin as user", mw: RequireAdmin, ctx: WithPrincipal(context.Background(), Principal{UserID: 1, Role: model.RoleUser}), method: http.MethodGet, want: http.StatusForbidden},
		{name: "admin ok", mw: RequireAdmin, ctx: WithPrincipal(context.Background(), Principal{UserID: 1, Role: model.RoleAdmin}), method: http.MethodGet, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/me/bookings", nil).WithContext(tt.ctx)
			tt.mw(ok).ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.location != "" && rec.Header().Get("Location") != tt.location {
				t.Fatalf("expected redirect to %s, got %s", tt.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	var id Identity
	if _, ok := id.CurrentUserID(context.Background()); ok {
		t.Fatal("expected anonymous")
	}
	ctx := WithPrincipal(context.Background(), Principal{UserID: 9, Role: model.RoleAdmin})
	if uid, ok := id.CurrentUserID(ctx); !ok || uid != 9 || !id.IsAdmin(ctx) {
		t.Fatalf("unexpected identity %d %v", uid, ok)
	}
}

func TestMemoryRevoker_Expires(t *testing.T) {
	r := NewMemoryRevoker(clock.NewFixed(t0))
	_ = r.Revoke(context.Background(), "a", time.Hour)
	_ = r.Revoke(context.Background(), "b", 0)

	if ok, _ := r.IsRevoked(context.Background(), "a"); !ok {
		t.Fatal("expected a to be revoked")
	}
	if ok, _ := r.IsRevoked(context.Background(), "b"); ok {
		t.Fatal("expected zero ttl to be ignored")
	}

	later := &MemoryRevoker{expires: r.expires, clock: clock.NewFixed(t0.Add(2 * time.Hour))}
	if ok, _ := later.IsRevoked(context.Background(), "a"); ok {
		t.Fatal("expected revocation to expire")
	}
}

func TestRedisRevoker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}

	r := NewRedisRevoker(rdb)
	jti := "test-" + strings.ReplaceAll(t.Name(), "/", "-") + time.Now().Format("150405.000000")
	if ok, err := r.IsRevoked(ctx, jti); err != nil || ok {
		t.Fatalf("expected not revoked, got %v %v", ok, err)
	}
	if err := r.Revoke(ctx, jti, time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, err := r.IsRevoked(ctx, jti); err != nil || !ok {
		t.Fatalf("expected revoked, got %v %v", ok, err)
	}
	ttl := rdb.TTL(ctx, revokedKeyPrefix+jti).Val()
	if ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}
