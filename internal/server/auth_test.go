package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMakeAndVerifyToken(t *testing.T) {
	cfg := AuthConfig{TokenSecret: "test-secret", TokenTTL: 1 * time.Hour}
	tok, exp, err := cfg.makeToken("alice")
	if err != nil {
		t.Fatalf("makeToken error: %v", err)
	}
	if exp.Before(time.Now()) {
		t.Fatalf("expected exp in the future")
	}

	sub, err := cfg.verifyToken(tok)
	if err != nil {
		t.Fatalf("verifyToken error: %v", err)
	}
	if sub != "alice" {
		t.Fatalf("unexpected subject: %s", sub)
	}
}

func TestVerifyTokenExpired(t *testing.T) {
	cfg := AuthConfig{TokenSecret: "test-secret", TokenTTL: -1 * time.Hour}
	tok, _, err := cfg.makeToken("alice")
	if err != nil {
		t.Fatalf("makeToken error: %v", err)
	}

	if _, err := cfg.verifyToken(tok); err != ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	minted := AuthConfig{TokenSecret: "secret-a", TokenTTL: time.Hour}
	tok, _, err := minted.makeToken("alice")
	if err != nil {
		t.Fatalf("makeToken error: %v", err)
	}

	verifier := AuthConfig{TokenSecret: "secret-b"}
	if _, err := verifier.verifyToken(tok); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenGarbage(t *testing.T) {
	cfg := AuthConfig{TokenSecret: "test-secret"}
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := cfg.verifyToken(tok); err != ErrInvalidToken {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestRequireAuth(t *testing.T) {
	auth := AuthConfig{TokenSecret: "test-secret", TokenTTL: time.Hour}

	var gotUser string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = currentUser(r)
		w.WriteHeader(http.StatusOK)
	})
	h := auth.requireAuth(inner)

	// No header
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/transfers", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no header: status=%d, want 401", rec.Code)
	}

	// Malformed scheme
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/transfers", nil)
	req.Header.Set("Authorization", "Basic abc")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("basic scheme: status=%d, want 401", rec.Code)
	}

	// Valid token
	tok, _, err := auth.makeToken("bob")
	if err != nil {
		t.Fatalf("makeToken error: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/transfers", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status=%d, want 200", rec.Code)
	}
	if gotUser != "bob" {
		t.Fatalf("currentUser = %q, want bob", gotUser)
	}
}

func TestRequireAuthExpiredMessage(t *testing.T) {
	auth := AuthConfig{TokenSecret: "test-secret", TokenTTL: -time.Minute}
	tok, _, err := auth.makeToken("alice")
	if err != nil {
		t.Fatalf("makeToken error: %v", err)
	}

	h := auth.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/transfers", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "token expired") {
		t.Fatalf("body %q should mention expiry", rec.Body.String())
	}
}
