package filter

import (
	"context"

	"github.com/lwbtt0915/joyrpc/pkg/joyerr"
	"github.com/lwbtt0915/joyrpc/pkg/passhash"
)

// AuthFilter rejects calls whose Attachment carries no valid bearer
// token, reusing the teacher's passhash.JWTManager token validation as-is
// (HMAC-signed claims, issuer/expiry checked by the library). On success
// it attaches the validated claims' subject back into the Invocation for
// downstream filters (audit, authorization).
type AuthFilter struct {
	priority       int
	manager        *passhash.JWTManager
	tokenAttachKey string
	excludeMethods map[string]bool
}

func NewAuthFilter(priority int, manager *passhash.JWTManager, tokenAttachKey string, excludeMethods map[string]bool) *AuthFilter {
	if tokenAttachKey == "" {
		tokenAttachKey = "authorization"
	}
	return &AuthFilter{priority: priority, manager: manager, tokenAttachKey: tokenAttachKey, excludeMethods: excludeMethods}
}

func (f *AuthFilter) Name() string  { return "auth" }
func (f *AuthFilter) Priority() int { return f.priority }

func (f *AuthFilter) Invoke(ctx context.Context, inv *Invocation, next Next) (*Result, error) {
	if f.excludeMethods[inv.Method] {
		return next(ctx, inv)
	}

	token := inv.Attachment[f.tokenAttachKey]
	if token == "" {
		return nil, joyerr.New(joyerr.CodeRemote, "missing bearer token")
	}
	claims, err := f.manager.ValidateToken(token)
	if err != nil {
		return nil, joyerr.Wrap(joyerr.CodeRemote, "token validation failed", err)
	}

	if inv.Attachment == nil {
		inv.Attachment = make(map[string]string)
	}
	inv.Attachment["userId"] = claims.UserID
	inv.Attachment["role"] = claims.Role

	return next(ctx, inv)
}
