// Package auth resolves the caller's identity from a bearer token. Tokens are
// issued by the external account service; this package only validates them.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
	claimName    = "name"
	claimAvatar  = "avatar"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoUserID     = errors.New("token has no user id")
)

// User is the authenticated caller carried in the request context.
type User struct {
	ID     string
	Name   string
	Avatar string
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}

// CurrentUser returns the user & "found?" flag.
func CurrentUser(r *http.Request) (User, bool) {
	return UserFrom(r.Context())
}

// UserFrom is CurrentUser for a bare context.
func UserFrom(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(currentUserKey).(User)
	return u, ok && u.ID != ""
}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	log    *zap.Logger
}

// NewVerifier returns a Verifier. An empty secret is rejected.
func NewVerifier(secret string, logger *zap.Logger) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("jwt secret is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(secret) < 32 {
		logger.Warn("jwt secret is short; 32+ chars recommended", zap.Int("length", len(secret)))
	}
	return &Verifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
		log: logger,
	}, nil
}

// Verify parses a raw token and returns its user.
func (v *Verifier) Verify(raw string) (User, error) {
	token, err := v.parser.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return User{}, ErrInvalidToken
	}

	id := claimString(claims, claimUserID)
	if id == "" {
		id = claimString(claims, claimSubject)
	}
	if id == "" {
		return User{}, ErrNoUserID
	}
	return User{
		ID:     id,
		Name:   claimString(claims, claimName),
		Avatar: claimString(claims, claimAvatar),
	}, nil
}

// Issue signs a token for u. Used by tests and local tooling.
func (v *Verifier) Issue(u User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		claimSubject: u.ID,
		claimUserID:  u.ID,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	if u.Name != "" {
		claims[claimName] = u.Name
	}
	if u.Avatar != "" {
		claims[claimAvatar] = u.Avatar
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// RequireBearer rejects requests without a valid bearer token and injects
// the caller into the request context.
func (v *Verifier) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerToken(r)
		if err == nil {
			var u User
			if u, err = v.Verify(raw); err == nil {
				next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
				return
			}
		}
		v.log.Debug("rejected request", zap.String("path", r.URL.Path), zap.Error(err))
		unauthorized(w)
	})
}

// LoadBearer injects the caller when a valid bearer token is present and
// otherwise passes the request through anonymously.
func (v *Verifier) LoadBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw, err := bearerToken(r); err == nil {
			if u, err := v.Verify(raw); err == nil {
				r = r.WithContext(WithUser(r.Context(), u))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn ensures there is a user in context (set by RequireBearer
// or WithUser).
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

// helpers

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(h[len(prefix):]), nil
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="groupchat"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
