package authcore

import (
	"context"
	"fmt"
	"time"

	"github.com/complyward/authcore/jwt"
)

// TokenService issues, verifies, and revokes the signed bearer tokens
// backing sessions. Verification is stateless except for the revocation
// check against the blacklist.
type TokenService struct {
	manager   *jwt.Manager
	blacklist *Blacklist
}

// NewTokenService wires a jwt.Manager to a revocation list.
func NewTokenService(manager *jwt.Manager, blacklist *Blacklist) *TokenService {
	return &TokenService{manager: manager, blacklist: blacklist}
}

// Issue mints a signed token of the given kind bound to the principal
// and session.
func (t *TokenService) Issue(kind jwt.TokenKind, p *Principal, sessionID string) (jwt.Token, error) {
	return t.manager.Issue(kind, p.ID, sessionID, p.Username, p.Role)
}

// Verify validates signature, expiry, and kind, then checks the token
// identifier against the revocation list. A revocation-check failure is
// treated as not verified rather than silently accepting the token.
func (t *TokenService) Verify(ctx context.Context, token string, kind jwt.TokenKind) (*jwt.Claims, error) {
	claims, err := t.manager.Parse(token, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	revoked, err := t.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenRevoked, err)
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	return claims, nil
}

// Peek parses and validates the token without consulting the revocation
// list. Used where a revoked token must still identify its session, such
// as logout.
func (t *TokenService) Peek(token string, kind jwt.TokenKind) (*jwt.Claims, error) {
	claims, err := t.manager.Parse(token, kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	return claims, nil
}

// Degraded reports whether the revocation list has fallen back to its
// local set.
func (t *TokenService) Degraded() bool {
	return t.blacklist.Degraded()
}

// Revoke inserts the identifier into the revocation list for the token's
// remaining lifetime.
func (t *TokenService) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return t.blacklist.Revoke(ctx, tokenID, expiresAt)
}

// RevokeToken parses a presented token just enough to revoke it. Invalid
// or expired tokens are ignored; revocation is best-effort by design.
func (t *TokenService) RevokeToken(ctx context.Context, token string, kind jwt.TokenKind) {
	if token == "" {
		return
	}
	claims, err := t.manager.Parse(token, kind)
	if err != nil {
		return
	}
	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	_ = t.blacklist.Revoke(ctx, claims.ID, expiresAt)
}

// TTL exposes the configured lifetime for the given kind.
func (t *TokenService) TTL(kind jwt.TokenKind) time.Duration {
	return t.manager.TTL(kind)
}
