package rbac

import (
	"context"
	"fmt"

	"github.com/ZoloAi/zolo-zcli-sub008/internal/block"
	"github.com/ZoloAi/zolo-zcli-sub008/internal/session"
)

// Decision is the outcome of an access check, grounded on wizard_rbac.py's
// RBAC_ACCESS_GRANTED / RBAC_ACCESS_DENIED / RBAC_ACCESS_DENIED_ZGUEST.
type Decision string

const (
	Granted      Decision = "access_granted"
	Denied       Decision = "access_denied"
	DeniedZGuest Decision = "access_denied_zguest"
)

// Checker evaluates a step's zRBAC requirement against a session's auth
// snapshot. A nil Engine means no auth subsystem is wired: any requirement
// beyond public access fails safe to Denied (spec.md §4.2.4 check order,
// step 2: "No auth subsystem? → Access denied").
type Checker struct {
	Engine *Engine
}

// NewChecker wraps engine (may be nil) in a Checker.
func NewChecker(engine *Engine) *Checker {
	return &Checker{Engine: engine}
}

// Check evaluates req against auth for the named key, following the
// six-step short-circuit order wizard_rbac.py implements. reason is a
// human-readable explanation, populated only on Denied/DeniedZGuest.
func (c *Checker) Check(ctx context.Context, key string, req *block.RBACRequirement, auth session.Auth) (Decision, string, error) {
	if req == nil {
		return Granted, "", nil
	}

	if c.Engine == nil {
		return Denied, "no auth subsystem available", nil
	}

	if req.ZGuest && auth.Authenticated() {
		return DeniedZGuest, "this page is for unauthenticated users only", nil
	}

	if req.RequireAuth && !auth.Authenticated() {
		return Denied, "authentication required", nil
	}

	if len(req.RequireRole) > 0 {
		if !auth.Authenticated() {
			return Denied, "authentication required", nil
		}
		ok, err := c.Engine.HasAnyRole(ctx, auth.UserID, req.RequireRole)
		if err != nil {
			return Denied, "", fmt.Errorf("rbac: role check for %q: %w", key, err)
		}
		if !ok {
			return Denied, fmt.Sprintf("role required: %s", oneOf(req.RequireRole)), nil
		}
	}

	if len(req.RequirePermission) > 0 {
		if !auth.Authenticated() {
			return Denied, "authentication required", nil
		}
		ok, err := c.Engine.HasAnyPermission(ctx, auth.UserID, req.RequirePermission)
		if err != nil {
			return Denied, "", fmt.Errorf("rbac: permission check for %q: %w", key, err)
		}
		if !ok {
			return Denied, fmt.Sprintf("permission required: %s", oneOf(req.RequirePermission)), nil
		}
	}

	return Granted, "", nil
}

func oneOf(values []string) string {
	if len(values) == 1 {
		return values[0]
	}
	out := "one of "
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
