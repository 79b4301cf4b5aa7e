/*
identity.go - Effective vs. real identity, with administrator impersonation

PURPOSE:
  Every operation executes as an "effective" identity: either an
  administrator-set impersonation override, or the authenticated caller's
  cached profile. The override lives for the process lifetime until
  explicitly cleared.

  Real() always returns the authenticated identity, regardless of any
  override. Audit fields (withdrawn-by) and the administrator check use
  Real(); impersonation must never grant admin privilege.

SEE ALSO:
  - service.go: Impersonate/StopImpersonate operations
*/
package governance

import (
	"context"
	"sync"
)

// CurrentUserSource reads the authenticated caller's cached profile.
// Implemented by the sqlite cache store.
type CurrentUserSource interface {
	CurrentUser(ctx context.Context) (*UserProfile, error)
}

// IdentityResolver determines the acting identity for each operation.
type IdentityResolver struct {
	source        CurrentUserSource
	adminUsername string

	mu           sync.Mutex
	impersonated *UserProfile
}

// NewIdentityResolver creates a resolver. adminUsername is the single
// warehouse username allowed to impersonate.
func NewIdentityResolver(source CurrentUserSource, adminUsername string) *IdentityResolver {
	return &IdentityResolver{source: source, adminUsername: adminUsername}
}

// Effective returns the identity the operation should execute as.
func (ir *IdentityResolver) Effective(ctx context.Context) (*UserProfile, error) {
	ir.mu.Lock()
	imp := ir.impersonated
	ir.mu.Unlock()
	if imp != nil {
		cp := *imp
		return &cp, nil
	}
	return ir.Real(ctx)
}

// Real returns the authenticated identity, ignoring impersonation.
func (ir *IdentityResolver) Real(ctx context.Context) (*UserProfile, error) {
	u, err := ir.source.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNoIdentity
	}
	return u, nil
}

// IsAdmin reports whether the real caller is the administrator.
func (ir *IdentityResolver) IsAdmin(ctx context.Context) bool {
	u, err := ir.Real(ctx)
	if err != nil {
		return false
	}
	return u.Username == ir.adminUsername
}

// Impersonate installs an override. Only the administrator (checked
// against the real identity) may set one.
func (ir *IdentityResolver) Impersonate(ctx context.Context, profile UserProfile) error {
	if !ir.IsAdmin(ctx) {
		return ErrForbidden
	}
	ir.mu.Lock()
	ir.impersonated = &profile
	ir.mu.Unlock()
	return nil
}

// StopImpersonate clears any override.
func (ir *IdentityResolver) StopImpersonate() {
	ir.mu.Lock()
	ir.impersonated = nil
	ir.mu.Unlock()
}

// Impersonating returns the override, or nil.
func (ir *IdentityResolver) Impersonating() *UserProfile {
	ir.mu.Lock()
	defer ir.mu.Unlock()
	if ir.impersonated == nil {
		return nil
	}
	cp := *ir.impersonated
	return &cp
}
