// Package gate decides per request whether a tenant's subscription state
// allows the request class to proceed.
package gate

import (
	"context"

	subscriptiondomain "github.com/storelane/storelane/internal/subscription/domain"
	"github.com/storelane/storelane/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RequestClass partitions inbound traffic for gating purposes.
type RequestClass string

const (
	ClassStorefront  RequestClass = "storefront"
	ClassTenantAdmin RequestClass = "tenant_admin"
	ClassPlatform    RequestClass = "platform"
)

// BlockReason tells a blocked caller why, so the response can distinguish
// contact-support (suspended) from renew-to-reactivate (expired).
type BlockReason string

const (
	BlockNone      BlockReason = ""
	BlockSuspended BlockReason = "suspended"
	BlockExpired   BlockReason = "expired"
)

// Decision is the advisory outcome of a gate check. A block is terminal for
// the request; it is never retried.
type Decision struct {
	Allowed bool
	Reason  BlockReason

	Status        subscriptiondomain.Status
	DaysRemaining int
	InGrace       bool

	// BillingViewOnly marks a blocked tenant-admin request that may still
	// reach the narrow "why am I blocked" billing surface.
	BillingViewOnly bool
}

type Gate struct {
	log *zap.Logger
	svc subscriptiondomain.Service
}

type Param struct {
	fx.In

	Log *zap.Logger
	Svc subscriptiondomain.Service
}

func New(p Param) *Gate {
	return &Gate{
		log: p.Log.Named("subscription.gate"),
		svc: p.Svc,
	}
}

// Check derives the tenant's current subscription status and maps it to an
// allow/block decision for the given request class. Platform requests carry
// no tenant context and never reach this check.
func (g *Gate) Check(ctx context.Context, tenant tenantctx.Tenant, class RequestClass) (Decision, error) {
	if class == ClassPlatform {
		return Decision{Allowed: true}, nil
	}

	info, err := g.svc.CurrentStatus(ctx, tenant.ID)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Status:        info.Status,
		DaysRemaining: info.DaysRemaining,
		InGrace:       info.InGrace,
	}

	switch info.Status {
	case subscriptiondomain.StatusSuspended:
		decision.Reason = BlockSuspended
	case subscriptiondomain.StatusExpired:
		decision.Reason = BlockExpired
	default:
		decision.Allowed = true
		return decision, nil
	}

	if class == ClassTenantAdmin {
		decision.BillingViewOnly = true
	}

	g.log.Debug("request blocked",
		zap.String("tenant_slug", tenant.Slug),
		zap.String("class", string(class)),
		zap.String("reason", string(decision.Reason)),
	)
	return decision, nil
}

// Module wires the subscription gate.
var Module = fx.Module("subscription.gate",
	fx.Provide(New),
)
