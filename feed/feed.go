// Package feed subscribes to the broker's websocket price stream and hands
// ticks to a consumer in arrival order.
package feed

import "github.com/rustyeddy/optrade/market"

// Handler consumes one tick. The ticker invokes it synchronously from its
// read loop, so ticks for one instrument are always applied in feed order.
type Handler func(market.Tick)
