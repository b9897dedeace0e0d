package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authedEcho(secret string) http.Handler {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserIDFromContext(r.Context())))
	})
	return AuthJWT(secret)(next)
}

func TestAuthJWTAcceptsValidToken(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{
		Sub: "user-42",
		Exp: time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authedEcho("secret").ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "user-42" {
		t.Fatalf("user id in context = %q", rec.Body.String())
	}
}

func TestAuthJWTRejectsMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	rec := httptest.NewRecorder()
	authedEcho("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthJWTRejectsWrongSecret(t *testing.T) {
	token, _ := SignJWT("other-secret", TokenClaims{Sub: "user-42", Exp: time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authedEcho("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthJWTRejectsExpiredToken(t *testing.T) {
	token, _ := SignJWT("secret", TokenClaims{Sub: "user-42", Exp: time.Now().Add(-time.Minute).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authedEcho("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthJWTRejectsMalformedScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/x", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	authedEcho("secret").ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
