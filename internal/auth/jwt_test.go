package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const secret = "0123456789abcdef0123456789abcdef"

func sign(t *testing.T, key string, method jwt.SigningMethod, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func claims(email string, exp time.Duration) Claims {
	return Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://id.example.com",
			Audience:  jwt.ClaimStrings{"fintrack"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
		},
	}
}

func TestVerify(t *testing.T) {
	v := NewVerifier(secret, "https://id.example.com", "fintrack", "")

	tests := []struct {
		name    string
		token   string
		want    string
		wantErr bool
	}{
		{"valid", sign(t, secret, jwt.SigningMethodHS256, claims("Ada@Example.com", time.Hour)), "ada@example.com", false},
		{"expired", sign(t, secret, jwt.SigningMethodHS256, claims("ada@example.com", -time.Hour)), "", true},
		{"wrong key", sign(t, "another-secret-another-secret-xx", jwt.SigningMethodHS256, claims("ada@example.com", time.Hour)), "", true},
		{"wrong alg", sign(t, secret, jwt.SigningMethodHS512, claims("ada@example.com", time.Hour)), "", true},
		{"no email", sign(t, secret, jwt.SigningMethodHS256, claims("", time.Hour)), "", true},
		{"garbage", "not.a.token", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Verify(tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v, wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}

	c := claims("ada@example.com", time.Hour)
	c.Issuer = "https://evil.example.com"
	if _, err := v.Verify(sign(t, secret, jwt.SigningMethodHS256, c)); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestMiddleware(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := OwnerFromContext(r.Context())
		if err != nil {
			t.Errorf("owner missing: %v", err)
		}
		w.Write([]byte(owner))
	})

	t.Run("token required", func(t *testing.T) {
		h := NewVerifier(secret, "", "", "").Middleware(echo)

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
		if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "missing auth token") {
			t.Fatalf("expected 401 missing token, got %d %s", rec.Code, rec.Body.String())
		}

		req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, secret, jwt.SigningMethodHS256, claims("bob@example.com", time.Hour)))
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK || rec.Body.String() != "bob@example.com" {
			t.Fatalf("expected bob, got %d %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("single user mode", func(t *testing.T) {
		h := NewVerifier("", "", "", "Me@Example.com").Middleware(echo)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "me@example.com" {
			t.Fatalf("expected fallback owner, got %d %s", rec.Code, rec.Body.String())
		}
	})
}
