// Package session issues signed session cookies and resolves the caller of
// each request.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/clock"
	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// CookieName is the name of the session cookie.
const CookieName = "enjoycity_session"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrRevoked      = errors.New("session revoked")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Role   model.Role
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool { return p.Role == model.RoleAdmin }

// Claims is the JWT body. Subject carries the user id, ID the jti.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by Middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Identity resolves the caller from the request context.
type Identity struct{}

func (Identity) CurrentUserID(ctx context.Context) (int64, bool) {
	p, ok := FromContext(ctx)
	return p.UserID, ok
}

func (Identity) IsAdmin(ctx context.Context) bool {
	p, ok := FromContext(ctx)
	return ok && p.IsAdmin()
}

// Manager issues and validates session tokens.
type Manager struct {
	secret  []byte
	ttl     time.Duration
	secure  bool
	revoker Revoker
	clock   clock.Clock
	log     zerolog.Logger
}

// Options configures a Manager.
type Options struct {
	Secret       string
	TTL          time.Duration
	SecureCookie bool
	Revoker      Revoker
	Clock        clock.Clock
}

// NewManager builds a Manager. A nil Revoker falls back to an in-process one.
func NewManager(opts Options, log zerolog.Logger) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Revoker == nil {
		opts.Revoker = NewMemoryRevoker(opts.Clock)
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{
		secret:  []byte(opts.Secret),
		ttl:     opts.TTL,
		secure:  opts.SecureCookie,
		revoker: opts.Revoker,
		clock:   opts.Clock,
		log:     log.With().Str("component", "session").Logger(),
	}
}

// Issue signs a token for u.
func (m *Manager) Issue(u *model.User) (string, time.Time, error) {
	now := m.clock.Now()
	exp := now.Add(m.ttl)
	claims := Claims{
		Role: string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, exp, nil
}

// Parse validates token and returns its claims. Revoked tokens yield ErrRevoked.
func (m *Manager) Parse(ctx context.Context, token string) (*Claims, Principal, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.clock.Now),
	)
	if err != nil || !t.Valid {
		return nil, Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 || claims.ID == "" {
		return nil, Principal{}, ErrInvalidToken
	}
	role := model.Role(claims.Role)
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, Principal{}, ErrInvalidToken
	}

	revoked, err := m.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, Principal{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return nil, Principal{}, ErrRevoked
	}
	return claims, Principal{UserID: id, Role: role}, nil
}

// Login issues a token for u and sets it as the session cookie.
func (m *Manager) Login(w http.ResponseWriter, u *model.User) error {
	token, exp, err := m.Issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Logout revokes the request's token, if any, and clears the cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	defer m.clear(w)

	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	claims, _, err := m.Parse(r.Context(), c.Value)
	if err != nil {
		return nil
	}
	remaining := claims.ExpiresAt.Sub(m.clock.Now())
	if err := m.revoker.Revoke(r.Context(), claims.ID, remaining); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (m *Manager) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware attaches the Principal of a valid session cookie to the request
// context. Invalid cookies are cleared and the request continues anonymously.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(CookieName)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}
		_, p, err := m.Parse(r.Context(), c.Value)
		if err != nil {
			if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrRevoked) {
				m.log.Warn().Err(err).Msg("session lookup failed")
			}
			m.clear(w)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireUser redirects anonymous requests to the login page.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			http.Redirect(w, r, LoginURL(r), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin redirects anonymous requests and rejects non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := FromContext(r.Context())
		if !ok {
			http.Redirect(w, r, LoginURL(r), http.StatusSeeOther)
			return
		}
		if !p.IsAdmin() {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL returns the login page address that leads back to r after signing in.
// POST targets fall back to the referring page.
func LoginURL(r *http.Request) string {
	back := r.URL.RequestURI()
	if r.Method != http.MethodGet {
		back = "/"
		if ref, err := url.Parse(r.Referer()); err == nil && ref.Path != "" {
			back = ref.RequestURI()
		}
	}
	return "/login?next=" + url.QueryEscape(back)
}
