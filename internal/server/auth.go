// auth.go - Bearer-token authentication for the transfer API.
//
// Implements the login handler, HS256 JWT mint/verify, and the
// requireAuth middleware that puts the authenticated username into the
// request context.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthConfig holds token-signing configuration and the user directory
// used to verify credentials. Unit tests construct this directly.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Users       UserDirectory
}

func (a AuthConfig) ttl() time.Duration {
	if a.TokenTTL <= 0 {
		return 12 * time.Hour
	}
	return a.TokenTTL
}

func (a AuthConfig) secretBytes() []byte {
	return []byte(a.TokenSecret)
}

// makeToken mints a signed token whose subject is the username.
func (a AuthConfig) makeToken(username string) (string, time.Time, error) {
	exp := time.Now().Add(a.ttl())
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(a.secretBytes())
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// verifyToken checks signature and expiry and returns the subject.
// Forged or altered tokens fail with ErrInvalidToken; well-formed but
// stale tokens fail with ErrTokenExpired.
func (a AuthConfig) verifyToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secretBytes(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResp struct {
	Token string `json:"token"`
}

// loginHandler handles POST /api/auth/login. Verifies username/password
// against the user directory and returns a bearer token on success.
func (cfg Config) loginHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		GetMetrics().RecordLoginAttempt()

		if err := cfg.Auth.Users.Authenticate(r.Context(), req.Username, req.Password); err != nil {
			GetMetrics().RecordLoginFailure()
			cfg.audit(r, AuditActionLogin, req.Username, "", false, "invalid credentials")
			// Same response for unknown user and wrong password.
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		token, exp, err := cfg.Auth.makeToken(req.Username)
		if err != nil {
			log.Printf("service=auth msg=%q err=%v", "token_sign_failed", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		GetMetrics().RecordLoginSuccess()
		cfg.audit(r, AuditActionLogin, req.Username, "", true, "")
		log.Printf("service=auth msg=%q user=%s exp=%s", "login_ok", req.Username, exp.UTC().Format(time.RFC3339))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResp{Token: token})
	})
}

type userCtxKey struct{}

// requireAuth verifies the Authorization bearer token and stores the
// subject in the request context.
func (a AuthConfig) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		subject, err := a.verifyToken(strings.TrimSpace(header[len(prefix):]))
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				http.Error(w, "token expired", http.StatusUnauthorized)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userCtxKey{}, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// currentUser returns the authenticated username set by requireAuth.
func currentUser(r *http.Request) string {
	if s, ok := r.Context().Value(userCtxKey{}).(string); ok {
		return s
	}
	return ""
}
