// Package web exposes the record operations over HTTP with chi. It is a thin
// transport: principals are resolved from bearer tokens, requests are parsed
// into the generic query shape, and the orchestrator does the rest.
package web

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cabinet-dev/cabinet/internal/acl"
)

// AuthService resolves principals from JWT bearer tokens. The runtime only
// consumes principals; token issuance lives with the identity collaborator.
type AuthService struct {
	secretKey string
}

// NewAuthService creates an AuthService for the given signing secret
func NewAuthService(secretKey string) *AuthService {
	return &AuthService{secretKey: secretKey}
}

// ResolvePrincipal validates the token and extracts the principal's role set
func (s *AuthService) ResolvePrincipal(tokenString string) (acl.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Verify exact signing method to prevent algorithm confusion
		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.secretKey), nil
	})
	if err != nil {
		return acl.Principal{}, err
	}
	if !token.Valid {
		return acl.Principal{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return acl.Principal{}, fmt.Errorf("invalid token claims")
	}

	p := acl.Principal{}
	if sub, ok := claims["sub"].(string); ok {
		p.ID = sub
	}
	if raw, ok := claims["roles"].([]interface{}); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				p.Roles = append(p.Roles, role)
			}
		}
	}
	return p, nil
}

// IssueToken signs a token carrying the principal's role set. Exposed for
// tests and local development; production deployments use their identity
// provider.
func (s *AuthService) IssueToken(p acl.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   p.ID,
		"roles": p.Roles,
		"exp":   now.Add(ttl).Unix(),
		"iat":   now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secretKey))
}

type contextKey int

const principalKey contextKey = iota

// PrincipalFromContext returns the request's principal
func PrincipalFromContext(ctx context.Context) acl.Principal {
	p, _ := ctx.Value(principalKey).(acl.Principal)
	return p
}

// withPrincipal stores the principal on the context
func withPrincipal(ctx context.Context, p acl.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Authenticate is the middleware resolving the principal for every request.
// A missing or invalid token yields an anonymous principal with no roles;
// the access control engine decides what that principal may see.
func (s *AuthService) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			if p, err := s.ResolvePrincipal(strings.TrimPrefix(header, "Bearer ")); err == nil {
				r = r.WithContext(withPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}
