// Package journal is the append-only ledger of closed trades.
package journal

import "time"

// Exit reasons recorded on trades.
const (
	ReasonManual     = "manual"
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// AggregatedAccount is the account attribution used for simulated-mode
// records, where all accounts are assumed identical and a single trade is
// logged per close.
const AggregatedAccount = "aggregated"

// TradeRecord is one closed trade. Records are created exactly once per close
// event and never mutated afterwards.
type TradeRecord struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Entry    float64   `json:"entry"`
	Exit     float64   `json:"exit"`
	Quantity int       `json:"quantity"`
	PnL      float64   `json:"pnl"`
	Mode     string    `json:"mode"`
	Account  string    `json:"account"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"timestamp"`
}

type Journal interface {
	RecordTrade(TradeRecord) error
	ListTrades() ([]TradeRecord, error)
	Close() error
}
