// Package monitor watches the price feed and triggers autonomous exits when
// a tick crosses an open position's stop-loss or take-profit threshold.
package monitor

import (
	"context"
	"log/slog"
	"sort"

	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/positions"
)

// Exiter is the engine's autonomous sell path.
type Exiter interface {
	SellAccount(ctx context.Context, token market.Token, account string, price float64, reason string) (bool, error)
}

// Monitor consumes ticks synchronously: each OnTick call caches the price and
// scans every open position on that instrument before returning, so two ticks
// for one instrument can never race two exits on the same account.
type Monitor struct {
	book   *positions.Store
	ticks  *market.LTPStore
	exits  Exiter
	logger *slog.Logger
}

func New(book *positions.Store, ticks *market.LTPStore, exits Exiter, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		book:   book,
		ticks:  ticks,
		exits:  exits,
		logger: logger.With("module", "monitor"),
	}
}

// OnTick applies one feed tick. Thresholds have no trigger memory: a position
// whose exit failed stays open and is simply re-evaluated here on the next
// tick, which is the intended retry mechanism.
func (m *Monitor) OnTick(ctx context.Context, t market.Tick) {
	m.ticks.Set(t.Token, t.Price)

	accounts := m.book.Get(t.Token)
	if len(accounts) == 0 {
		return
	}

	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pos := accounts[name]
		if !pos.Open {
			continue
		}

		// Stop-loss wins when a misconfigured position satisfies both.
		reason := ""
		switch {
		case pos.StopLoss > 0 && t.Price <= pos.StopLoss:
			reason = journal.ReasonStopLoss
		case pos.TakeProfit > 0 && t.Price >= pos.TakeProfit:
			reason = journal.ReasonTakeProfit
		}
		if reason == "" {
			continue
		}

		// SellAccount re-checks the position under the instrument lock, so a
		// concurrent operator sell just makes this trigger a no-op.
		if _, err := m.exits.SellAccount(ctx, t.Token, name, t.Price, reason); err != nil {
			m.logger.Error("trigger rejected",
				"token", uint32(t.Token), "account", name, "reason", reason, "err", err)
		}
	}
}
