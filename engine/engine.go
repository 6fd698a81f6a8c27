// Package engine coordinates buy and sell operations for one instrument
// across every configured account. It fans order submissions out in parallel,
// reconciles each account's outcome independently, and is (together with the
// exit monitor, which drives its sell path) the only writer of position state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/rustyeddy/optrade/gateway"
	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/pkg/id"
	"github.com/rustyeddy/optrade/positions"
	"github.com/rustyeddy/optrade/registry"
)

// Mode selects between paper-trading bookkeeping and real order submission.
// It is process-wide and read once at the start of each operation, so a
// mid-flight change only affects subsequent operations.
type Mode string

const (
	Simulated Mode = "SIMULATED"
	Live      Mode = "LIVE"
)

// ParseMode validates an execution mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Simulated, Live:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown execution mode %q (want SIMULATED|LIVE)", s)
}

// ErrUnknownInstrument reports a buy or sell against a token that is not
// under management. The operation performs no mutation.
var ErrUnknownInstrument = errors.New("unknown instrument")

// Per-account outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AccountOutcome is one account's result within a batch operation. Failures
// never aggregate into a batch failure; the caller always sees the breakdown.
type AccountOutcome struct {
	Account string `json:"account"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// CapitalWarning flags an account whose trade value exceeds its configured
// capital limit. Advisory only; it never blocks the buy.
type CapitalWarning struct {
	Account    string  `json:"account"`
	TradeValue float64 `json:"trade_value"`
	Limit      float64 `json:"capital_limit"`
	Message    string  `json:"message"`
}

type BuyResult struct {
	Token    market.Token     `json:"token"`
	Outcomes []AccountOutcome `json:"results"`
	Warnings []CapitalWarning `json:"warnings,omitempty"`
}

type SellResult struct {
	Token      market.Token     `json:"token"`
	NoPosition bool             `json:"no_position,omitempty"`
	Outcomes   []AccountOutcome `json:"results"`
}

// Alert is pushed to observers for events no caller is synchronously waiting
// on: autonomous exits and live order failures.
type Alert struct {
	Severity string       `json:"severity"`
	Message  string       `json:"message"`
	Token    market.Token `json:"token"`
	Account  string       `json:"account,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	PnL      *float64     `json:"pnl,omitempty"`
}

// Publisher receives state-change events after every successful mutation.
type Publisher interface {
	PublishPosition(token market.Token, accounts map[string]positions.Position)
	PublishTrade(rec journal.TradeRecord)
	PublishAlert(a Alert)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) PublishPosition(market.Token, map[string]positions.Position) {}
func (NopPublisher) PublishTrade(journal.TradeRecord)                            {}
func (NopPublisher) PublishAlert(Alert)                                          {}

// Config wires an Engine with its collaborators.
type Config struct {
	Mode      Mode
	Accounts  *registry.Accounts
	Selected  *registry.Selection
	Book      *positions.Store
	Ticks     *market.LTPStore
	Gateway   gateway.Gateway
	Journal   journal.Journal
	Publisher Publisher
	Logger    *slog.Logger
}

type Engine struct {
	mu   sync.RWMutex
	mode Mode

	accounts *registry.Accounts
	selected *registry.Selection
	book     *positions.Store
	ticks    *market.LTPStore
	gateway  gateway.Gateway
	journal  journal.Journal
	pub      Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = Simulated
	}
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		mode:     cfg.Mode,
		accounts: cfg.Accounts,
		selected: cfg.Selected,
		book:     cfg.Book,
		ticks:    cfg.Ticks,
		gateway:  cfg.Gateway,
		journal:  cfg.Journal,
		pub:      cfg.Publisher,
		logger:   cfg.Logger.With("module", "engine"),
		now:      time.Now,
	}
}

func (e *Engine) Mode() Mode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetMode switches the execution mode for subsequent operations. Positions
// opened under the previous mode keep settling under that mode's records.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	e.mode = m
	e.mu.Unlock()
	e.logger.Info("execution mode changed", "mode", string(m))
}

func (e *Engine) resolve(token market.Token) (market.Instrument, error) {
	inst, ok := e.selected.Find(token)
	if !ok {
		return market.Instrument{}, fmt.Errorf("%w: token %d", ErrUnknownInstrument, token)
	}
	return inst, nil
}

// Buy opens a position on every account (simulated) or on every account whose
// order the broker accepts (live). The entry price is the last traded price
// at submission time, 0 if the feed has not ticked this instrument yet.
func (e *Engine) Buy(ctx context.Context, token market.Token, stopLoss, takeProfit float64) (*BuyResult, error) {
	inst, err := e.resolve(token)
	if err != nil {
		return nil, err
	}

	accts := e.accounts.List()
	mode := e.Mode()
	res := &BuyResult{Token: token}

	e.book.Update(token, func(state map[string]positions.Position) {
		ltp := e.ticks.Last(token)

		for _, acc := range accts {
			qty := inst.Lot * acc.Multiplier()
			value := float64(qty) * ltp
			if acc.CapitalLimit > 0 && value > acc.CapitalLimit {
				res.Warnings = append(res.Warnings, CapitalWarning{
					Account:    acc.Name,
					TradeValue: value,
					Limit:      acc.CapitalLimit,
					Message: fmt.Sprintf("trade value %.2f exceeds capital limit %.2f for %s",
						value, acc.CapitalLimit, acc.Name),
				})
			}
		}

		open := func(acc registry.Account) positions.Position {
			return positions.Position{
				Open:       true,
				Entry:      ltp,
				StopLoss:   stopLoss,
				TakeProfit: takeProfit,
				Lots:       acc.Multiplier(),
				Quantity:   inst.Lot * acc.Multiplier(),
			}
		}

		if mode == Simulated {
			for _, acc := range accts {
				state[acc.Name] = open(acc)
				res.Outcomes = append(res.Outcomes, AccountOutcome{Account: acc.Name, Status: StatusSuccess})
			}
			return
		}

		// Live: fire all submissions, then await all. No account blocks
		// another; each outcome stands on its own.
		outcomes := make([]AccountOutcome, len(accts))
		var wg conc.WaitGroup
		for i, acc := range accts {
			i, acc := i, acc
			wg.Go(func() {
				err := e.gateway.PlaceOrder(ctx, gateway.Order{
					Account:    acc,
					Instrument: inst,
					Side:       gateway.Buy,
					Quantity:   inst.Lot * acc.Multiplier(),
				})
				if err != nil {
					outcomes[i] = AccountOutcome{Account: acc.Name, Status: StatusError, Message: err.Error()}
					return
				}
				outcomes[i] = AccountOutcome{Account: acc.Name, Status: StatusSuccess}
			})
		}
		wg.Wait()

		for i, acc := range accts {
			if outcomes[i].Status == StatusSuccess {
				state[acc.Name] = open(acc)
			}
		}
		res.Outcomes = outcomes
	})

	e.pub.PublishPosition(token, e.book.Get(token))
	e.logger.Info("buy processed",
		"token", uint32(token), "symbol", inst.Symbol, "mode", string(mode),
		"accounts", len(accts), "warnings", len(res.Warnings))
	return res, nil
}

// Sell closes the instrument's open positions. Simulated mode closes every
// open account atomically and logs one aggregated trade; live mode submits a
// sell per open account in parallel and settles each independently, so
// partial success is the expected steady state.
func (e *Engine) Sell(ctx context.Context, token market.Token) (*SellResult, error) {
	inst, err := e.resolve(token)
	if err != nil {
		return nil, err
	}

	accts := e.accounts.List()
	mode := e.Mode()
	res := &SellResult{Token: token}
	var closed []journal.TradeRecord
	var failures []Alert

	e.book.Update(token, func(state map[string]positions.Position) {
		open := openAccounts(accts, state)
		if len(open) == 0 {
			res.NoPosition = true
			return
		}

		// Missing price means the position closes at the degenerate default
		// of 0, mirroring the entry-side rule.
		exit := e.ticks.Last(token)

		if mode == Simulated {
			// All simulated accounts are assumed identical, so one
			// aggregated record is logged using the first open account's
			// entry and quantity.
			first := open[0]
			closed = append(closed, e.record(inst, first.pos, exit, journal.AggregatedAccount, journal.ReasonManual, mode))
			for _, tgt := range open {
				state[tgt.name] = positions.Position{}
				res.Outcomes = append(res.Outcomes, AccountOutcome{Account: tgt.name, Status: StatusSuccess})
			}
			return
		}

		outcomes := make([]AccountOutcome, len(open))
		var wg conc.WaitGroup
		for i, tgt := range open {
			i, tgt := i, tgt
			wg.Go(func() {
				err := e.gateway.PlaceOrder(ctx, gateway.Order{
					Account:    tgt.account,
					Instrument: inst,
					Side:       gateway.Sell,
					Quantity:   tgt.pos.Quantity,
				})
				if err != nil {
					outcomes[i] = AccountOutcome{Account: tgt.name, Status: StatusError, Message: err.Error()}
					return
				}
				outcomes[i] = AccountOutcome{Account: tgt.name, Status: StatusSuccess}
			})
		}
		wg.Wait()

		for i, tgt := range open {
			if outcomes[i].Status != StatusSuccess {
				// Nothing changed for this account; its position stays open.
				failures = append(failures, Alert{
					Severity: "error",
					Message:  fmt.Sprintf("sell failed for %s on %s: %s", tgt.name, inst.Symbol, outcomes[i].Message),
					Token:    token,
					Account:  tgt.name,
				})
				continue
			}
			closed = append(closed, e.record(inst, tgt.pos, exit, tgt.name, journal.ReasonManual, mode))
			state[tgt.name] = positions.Position{}
		}
		res.Outcomes = outcomes
	})

	if res.NoPosition {
		return res, nil
	}

	e.pub.PublishPosition(token, e.book.Get(token))
	for _, rec := range closed {
		e.pub.PublishTrade(rec)
	}
	for _, a := range failures {
		e.pub.PublishAlert(a)
	}
	e.logger.Info("sell processed",
		"token", uint32(token), "symbol", inst.Symbol, "mode", string(mode),
		"closed", len(closed), "failed", len(failures))
	return res, nil
}

// SellAccount closes a single account's position at the given price. It is
// the autonomous exit path: the exit monitor calls it with the triggering
// tick's price and reason. A failed live submission leaves the position open
// and raises an alert; the next tick re-evaluates the threshold, which is the
// retry mechanism.
func (e *Engine) SellAccount(ctx context.Context, token market.Token, account string, price float64, reason string) (bool, error) {
	inst, err := e.resolve(token)
	if err != nil {
		return false, err
	}

	mode := e.Mode()
	var rec journal.TradeRecord
	var failure *Alert
	done := false

	e.book.Update(token, func(state map[string]positions.Position) {
		pos, ok := state[account]
		if !ok || !pos.Open {
			// Already closed by a racing operator sell; the trigger is stale.
			return
		}

		if mode == Live {
			acc, ok := e.findAccount(account)
			if !ok {
				failure = &Alert{
					Severity: "error",
					Message:  fmt.Sprintf("autonomous exit for %s on %s: account no longer configured", account, inst.Symbol),
					Token:    token,
					Account:  account,
					Reason:   reason,
				}
				return
			}
			if err := e.gateway.PlaceOrder(ctx, gateway.Order{
				Account:    acc,
				Instrument: inst,
				Side:       gateway.Sell,
				Quantity:   pos.Quantity,
			}); err != nil {
				failure = &Alert{
					Severity: "error",
					Message:  fmt.Sprintf("autonomous exit failed for %s on %s: %v", account, inst.Symbol, err),
					Token:    token,
					Account:  account,
					Reason:   reason,
				}
				return
			}
		}

		attribution := account
		if mode == Simulated {
			attribution = journal.AggregatedAccount
		}
		rec = e.record(inst, pos, price, attribution, reason, mode)
		state[account] = positions.Position{}
		done = true
	})

	if failure != nil {
		e.pub.PublishAlert(*failure)
		e.logger.Warn("autonomous exit failed",
			"token", uint32(token), "account", account, "reason", reason)
		return false, nil
	}
	if !done {
		return false, nil
	}

	e.pub.PublishPosition(token, e.book.Get(token))
	e.pub.PublishTrade(rec)
	pnl := rec.PnL
	e.pub.PublishAlert(Alert{
		Severity: "info",
		Message:  fmt.Sprintf("%s exit for %s on %s at %.2f (pnl %.2f)", reason, account, inst.Symbol, price, pnl),
		Token:    token,
		Account:  account,
		Reason:   reason,
		PnL:      &pnl,
	})
	e.logger.Info("autonomous exit",
		"token", uint32(token), "account", account, "reason", reason,
		"price", price, "pnl", pnl)
	return true, nil
}

// record appends one trade to the ledger and returns it. Realized P&L is
// (exit − entry) × quantity with the sign preserved. A ledger write error is
// logged rather than propagated; the close itself already happened.
func (e *Engine) record(inst market.Instrument, pos positions.Position, exit float64, account, reason string, mode Mode) journal.TradeRecord {
	rec := journal.TradeRecord{
		ID:       id.New(),
		Symbol:   inst.Symbol,
		Entry:    pos.Entry,
		Exit:     exit,
		Quantity: pos.Quantity,
		PnL:      (exit - pos.Entry) * float64(pos.Quantity),
		Mode:     string(mode),
		Account:  account,
		Reason:   reason,
		Time:     e.now().UTC(),
	}
	if err := e.journal.RecordTrade(rec); err != nil {
		e.logger.Error("ledger append failed", "trade", rec.ID, "err", err)
	}
	return rec
}

func (e *Engine) findAccount(name string) (registry.Account, bool) {
	for _, acc := range e.accounts.List() {
		if acc.Name == name {
			return acc, true
		}
	}
	return registry.Account{}, false
}

type target struct {
	name    string
	account registry.Account
	pos     positions.Position
}

// openAccounts lists accounts holding an open position, in registry order so
// the simulated-mode aggregation pick is deterministic.
func openAccounts(accts []registry.Account, state map[string]positions.Position) []target {
	var out []target
	for _, acc := range accts {
		if pos, ok := state[acc.Name]; ok && pos.Open {
			out = append(out, target{name: acc.Name, account: acc, pos: pos})
		}
	}
	return out
}
