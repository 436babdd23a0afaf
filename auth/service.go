// Package auth derives a caller namespace (account partition) from a JWT.
// Tokens are parsed without verification: the MCP middleware has already
// authenticated the caller; this only scopes stored credentials per identity.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/viant/mcp-protocol/authorization"
)

// Service extracts the namespace from a JWT carried in context or presented
// directly. It falls back to DefaultNamespace when no token is present or
// extraction fails.
type Service struct {
	// DefaultNamespace is returned when no token is present or extraction fails.
	DefaultNamespace string
	// Parse turns a token string into jwt.MapClaims (unverified parse by default).
	Parse func(token string) (jwt.MapClaims, error)
	// Extract returns the namespace from claims; bool indicates success.
	Extract func(jwt.MapClaims) (string, bool)
}

// Namespace extracts the subject/email from an auth token placed in context
// by the MCP auth middleware.
func (s *Service) Namespace(ctx context.Context) (string, error) {
	if s == nil {
		return "default", nil
	}
	tokenValue := ctx.Value(authorization.TokenKey)
	if tokenValue == nil {
		return s.DefaultNamespace, nil
	}
	var tokenString string
	switch tv := tokenValue.(type) {
	case string:
		tokenString = tv
	case *authorization.Token:
		tokenString = tv.Token
	default:
		return "", fmt.Errorf("unsupported token type %T", tokenValue)
	}
	if ns, ok := s.FromToken(tokenString); ok {
		return ns, nil
	}
	return s.DefaultNamespace, nil
}

// FromToken extracts the namespace directly from a bearer token string, for
// callers outside the MCP middleware (the REST API).
func (s *Service) FromToken(tokenString string) (string, bool) {
	if s == nil || s.Parse == nil || s.Extract == nil || tokenString == "" {
		return "", false
	}
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", false
	}
	ns, ok := s.Extract(claims)
	if !ok || ns == "" {
		return "", false
	}
	return ns, true
}

// New returns a default Service that extracts "email" or "sub" without
// verification.
func New() *Service {
	return &Service{
		DefaultNamespace: "default",
		Parse: func(tokenString string) (jwt.MapClaims, error) {
			var claimMap jwt.MapClaims
			_, _, err := new(jwt.Parser).ParseUnverified(tokenString, &claimMap)
			return claimMap, err
		},
		Extract: func(mc jwt.MapClaims) (string, bool) {
			if email, _ := mc["email"].(string); email != "" {
				return email, true
			}
			if sub, _ := mc["sub"].(string); sub != "" {
				return sub, true
			}
			return "", false
		},
	}
}
