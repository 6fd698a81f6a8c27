// Package gateway submits single order intents to the upstream broker and
// normalizes the outcome. It makes no idempotency or retry guarantees; a
// failed submission is terminal for that account within its operation.
package gateway

import (
	"context"
	"fmt"

	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/registry"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Order is one order intent for one account.
type Order struct {
	Account    registry.Account
	Instrument market.Instrument
	Side       Side
	Quantity   int
}

// Gateway places a single order. A nil return means the broker accepted the
// order; any error is a per-account submission failure with a human-readable
// message, never a batch-level one.
type Gateway interface {
	PlaceOrder(ctx context.Context, ord Order) error
}

// Disabled returns a gateway that rejects every order. It backs deployments
// without an order worker configured, so a runtime switch to live mode fails
// per-account instead of crashing.
func Disabled() Gateway { return disabled{} }

type disabled struct{}

func (disabled) PlaceOrder(context.Context, Order) error {
	return fmt.Errorf("order worker not configured")
}
