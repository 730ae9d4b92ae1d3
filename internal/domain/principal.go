package domain

import (
	"context"
	"errors"
)

// Role is a principal's access level. Authorization decisions are made at
// the edge; the ledger only records who acted.
type Role string

const (
	// RoleAdmin may manage accounts and allocation rules.
	RoleAdmin Role = "admin"

	// RoleOperator may record transactions and reconciliations.
	RoleOperator Role = "operator"

	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	return r == RoleAdmin || r == RoleOperator || r == RoleViewer
}

// Allows reports whether r satisfies the minimum role min.
func (r Role) Allows(min Role) bool {
	switch min {
	case RoleAdmin:
		return r == RoleAdmin
	case RoleOperator:
		return r == RoleAdmin || r == RoleOperator
	case RoleViewer:
		return r.IsValid()
	}
	return false
}

// Principal is an already-verified caller.
type Principal struct {
	ID   string
	Role Role
}

// SystemActor is recorded when no principal is attached to the context.
const SystemActor = "system"

// AllocationEngineActor is recorded for allocations triggered without a principal.
const AllocationEngineActor = "allocation_engine"

// Authentication errors
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInsufficientRole = errors.New("insufficient role for this operation")
)

// RequestMeta is request context copied onto audit rows.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

type principalKey struct{}
type requestMetaKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal attached to ctx, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ActorFromContext returns the principal id, or fallback when none is attached.
func ActorFromContext(ctx context.Context, fallback string) string {
	if p, ok := PrincipalFromContext(ctx); ok && p.ID != "" {
		return p.ID
	}
	return fallback
}

// WithRequestMeta attaches request metadata to ctx.
func WithRequestMeta(ctx context.Context, m RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// RequestMetaFromContext returns the request metadata attached to ctx.
func RequestMetaFromContext(ctx context.Context) RequestMeta {
	m, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return m
}
