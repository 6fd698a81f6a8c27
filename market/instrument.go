// Package market holds instrument reference data and last-traded-price state
// shared by the execution engine, exit monitor, and price feed.
package market

// Token uniquely identifies an instrument on the exchange feed.
type Token uint32

// Instrument is immutable reference data for one tradable options contract.
type Instrument struct {
	Token    Token   `json:"token"`
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Lot      int     `json:"lot"`
	Type     string  `json:"type"`
	Expiry   string  `json:"expiry"`
	Strike   float64 `json:"strike"`
}
