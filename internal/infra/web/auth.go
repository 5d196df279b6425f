package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthManager issues and validates operator session tokens. The static API
// key is the bootstrap credential; /auth/login exchanges it for a short-lived
// JWT so dashboards don't hold the key itself.
type AuthManager struct {
	apiKey string
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(apiKey, jwtSecret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AuthManager{apiKey: apiKey, secret: []byte(jwtSecret), ttl: ttl}
}

type operatorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Mint signs a fresh operator token.
func (a *AuthManager) Mint() (string, error) {
	now := time.Now()
	claims := operatorClaims{
		Role: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   "operator",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// CheckAPIKey validates the bootstrap credential.
func (a *AuthManager) CheckAPIKey(key string) bool {
	return a.apiKey != "" && key == a.apiKey
}

func (a *AuthManager) parse(tok string) (*operatorClaims, error) {
	claims := &operatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware accepts either the static API key or a minted JWT as a bearer
// token.
func (a *AuthManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if hdr == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		parts := strings.SplitN(hdr, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			http.Error(w, "Unauthorized: malformed token", http.StatusUnauthorized)
			return
		}
		tok := strings.TrimSpace(parts[1])
		if a.CheckAPIKey(tok) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := a.parse(tok); err != nil {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
