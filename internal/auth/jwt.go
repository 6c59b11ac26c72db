// Package auth resolves the owner of a request from a bearer token issued by
// the identity provider.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"fintrack/internal/core"
	flog "fintrack/internal/log"
)

type ctxKey string

const ownerKey ctxKey = "owner"

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid token")
	ErrNoOwner      = errors.New("user not authenticated")
)

// Claims carries the identity provider's email claim.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens. When secret is empty every request is
// attributed to the fallback owner.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	fallback string
}

func NewVerifier(secret, issuer, audience, fallbackOwner string) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		fallback: core.NormalizeOwner(fallbackOwner),
	}
}

// Enabled reports whether tokens are required.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify parses a raw token and returns the normalized owner email.
func (v *Verifier) Verify(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := core.ValidateOwner(claims.Email); err != nil {
		return "", fmt.Errorf("%w: email claim", ErrInvalidToken)
	}
	return core.NormalizeOwner(claims.Email), nil
}

// Middleware attaches the owner to the request context or answers 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.Enabled() {
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), v.fallback)))
			return
		}

		h := r.Header.Get("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			unauthorized(w, r, ErrMissingToken)
			return
		}

		owner, err := v.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			unauthorized(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	slog.WarnContext(r.Context(), "Rejected request",
		flog.FieldComponent, flog.ComponentAuth,
		flog.FieldPath, r.URL.Path,
		flog.FieldError, err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="fintrack"`)
	w.WriteHeader(http.StatusUnauthorized)
	msg := ErrInvalidToken.Error()
	if errors.Is(err, ErrMissingToken) {
		msg = ErrMissingToken.Error()
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// OwnerFromContext returns the owner set by Middleware.
func OwnerFromContext(ctx context.Context) (string, error) {
	owner, ok := ctx.Value(ownerKey).(string)
	if !ok || owner == "" {
		return "", ErrNoOwner
	}
	return owner, nil
}
