// Package auth issues and checks the optional bearer tokens that guard the
// API. A token is base64url(JSON payload) "." base64url(HMAC-SHA256 of the
// first part), with the payload {"u": user, "exp": unix millis}.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long an issued token stays valid.
const DefaultTTL = 14 * 24 * time.Hour

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrMissingToken   = errors.New("missing token")
	ErrBadToken       = errors.New("bad token")
	ErrBadSignature   = errors.New("bad signature")
	ErrExpired        = errors.New("token expired")
)

type payload struct {
	User string `json:"u"`
	Exp  int64  `json:"exp"`
}

// Authenticator holds the single configured credential pair.
type Authenticator struct {
	user   string
	pass   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New returns nil when user or password is empty, meaning auth is off.
func New(user, pass, secret string, ttl time.Duration) *Authenticator {
	if user == "" || pass == "" {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{user: user, pass: pass, secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Authenticator) Enabled() bool { return a != nil }

// Login checks the credentials and issues a token.
func (a *Authenticator) Login(user, pass string) (string, error) {
	okUser := subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) == 1
	okPass := subtle.ConstantTimeCompare([]byte(pass), []byte(a.pass)) == 1
	if !okUser || !okPass {
		return "", ErrBadCredentials
	}
	return a.Issue(user)
}

func (a *Authenticator) Issue(user string) (string, error) {
	body, err := json.Marshal(payload{User: user, Exp: a.now().Add(a.ttl).UnixMilli()})
	if err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(body)
	return p + "." + a.sign(p), nil
}

// Verify returns the token's user.
func (a *Authenticator) Verify(token string) (string, error) {
	p, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || p == "" || strings.Contains(sig, ".") {
		return "", ErrBadToken
	}
	if !hmac.Equal([]byte(sig), []byte(a.sign(p))) {
		return "", ErrBadSignature
	}
	raw, err := base64.RawURLEncoding.DecodeString(p)
	if err != nil {
		return "", ErrBadToken
	}
	var pl payload
	if err := json.Unmarshal(raw, &pl); err != nil {
		return "", ErrBadToken
	}
	if pl.Exp == 0 || a.now().UnixMilli() > pl.Exp {
		return "", ErrExpired
	}
	if pl.User == "" {
		pl.User = "user"
	}
	return pl.User, nil
}

func (a *Authenticator) sign(p string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(p))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

type userKey struct{}

// User returns the authenticated user stored by Middleware.
func User(ctx context.Context) (string, bool) {
	u, ok := ctx.Value(userKey{}).(string)
	return u, ok
}

// Middleware rejects requests without a valid token with 401. A disabled
// authenticator passes every request through.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r)
		if err == nil {
			var user string
			if user, err = a.Verify(token); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
				return
			}
		}
		slog.DebugContext(r.Context(), "Rejected request", "path", r.URL.Path, "reason", err)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
	})
}
