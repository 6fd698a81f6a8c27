package api

import (
	"github.com/rustyeddy/optrade/broadcast"
	"github.com/rustyeddy/optrade/engine"
	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/positions"
)

// Events forwards engine state changes onto the broadcast channel so every
// connected observer sees the same stream.
type Events struct {
	hub *broadcast.Hub
}

func NewEvents(hub *broadcast.Hub) *Events {
	return &Events{hub: hub}
}

func (e *Events) PublishPosition(token market.Token, accounts map[string]positions.Position) {
	e.hub.Publish(broadcast.EventPosition, map[string]any{
		"token":    token,
		"accounts": accounts,
	})
}

func (e *Events) PublishTrade(rec journal.TradeRecord) {
	e.hub.Publish(broadcast.EventTrade, rec)
}

func (e *Events) PublishAlert(a engine.Alert) {
	e.hub.Publish(broadcast.EventAlert, a)
}

// PublishTick streams a last-price update. Called from the feed path, not the
// engine, so it is not part of the Publisher interface.
func (e *Events) PublishTick(tk market.Tick) {
	e.hub.Publish(broadcast.EventLTP, map[string]any{
		"token": tk.Token,
		"price": tk.Price,
	})
}
