// Package handlers provides HTTP and Lambda handlers for the payroll batch engine.
package handlers

import (
	"net/http"
	"strings"

	"payroll-batch-engine/internal/models"
)

// Identity is a resolved caller.
type Identity struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IdentityResolver resolves an inbound request to an identity. There is no
// built-in bypass; local setups inject a resolver of their own.
type IdentityResolver interface {
	Resolve(r *http.Request) (*Identity, error)
}

// TokenResolver resolves identities from a static bearer-token table.
type TokenResolver struct {
	tokens map[string]Identity
}

// NewTokenResolver builds a resolver from token -> identity entries.
func NewTokenResolver(tokens map[string]Identity) *TokenResolver {
	return &TokenResolver{tokens: tokens}
}

// ParseTokenTable parses "token:user:role" entries separated by commas,
// as carried in the AUTH_TOKENS environment variable.
func ParseTokenTable(raw string) map[string]Identity {
	tokens := make(map[string]Identity)
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		tokens[parts[0]] = Identity{UserID: parts[1], Role: parts[2]}
	}
	return tokens
}

// Resolve checks the Authorization bearer token against the table.
func (t *TokenResolver) Resolve(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, models.ErrNoCredentials
	}

	token := strings.TrimPrefix(header, "Bearer ")
	identity, ok := t.tokens[token]
	if !ok {
		return nil, models.ErrNoCredentials
	}

	return &identity, nil
}
