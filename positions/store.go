// Package positions is the authoritative store of per-account position state,
// keyed by instrument token then account name. The execution engine and exit
// monitor are its only writers.
package positions

import (
	"sync"

	"github.com/rustyeddy/optrade/market"
)

// Position is one account's exposure to one instrument. A closed position has
// every field at its zero value; thresholds use 0 for "unset".
type Position struct {
	Open       bool    `json:"buyposition"`
	Entry      float64 `json:"entry"`
	StopLoss   float64 `json:"stoploss,omitempty"`
	TakeProfit float64 `json:"takeprofit,omitempty"`
	Lots       int     `json:"lots,omitempty"`
	Quantity   int     `json:"quantity,omitempty"`
}

// Store serializes get-modify-set cycles at instrument granularity: Update
// calls for the same token never interleave, while different tokens proceed
// concurrently. This is what keeps a tick-triggered exit and an operator sell
// for the same token from losing each other's writes.
type Store struct {
	mu     sync.Mutex
	tokens map[market.Token]*book
}

// book is the per-instrument slot. Its mutex is held for the full duration of
// an Update, including any order submission the caller performs inside it.
type book struct {
	mu       sync.Mutex
	accounts map[string]Position
}

func NewStore() *Store {
	return &Store{tokens: make(map[market.Token]*book)}
}

func (s *Store) slot(token market.Token) *book {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.tokens[token]
	if !ok {
		b = &book{accounts: make(map[string]Position)}
		s.tokens[token] = b
	}
	return b
}

// Update runs fn with exclusive access to the token's account map. fn may
// read and mutate the map freely; no other Update for the same token runs
// until fn returns. The map must not be retained after fn returns.
func (s *Store) Update(token market.Token, fn func(accounts map[string]Position)) {
	b := s.slot(token)
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b.accounts)
}

// Get returns a copy of the token's per-account positions. The copy is safe
// to hand to observers; mutating it does not touch the store.
func (s *Store) Get(token market.Token) map[string]Position {
	b := s.slot(token)
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyAccounts(b.accounts)
}

// Snapshot returns a copy of the full state across all tokens.
func (s *Store) Snapshot() map[market.Token]map[string]Position {
	s.mu.Lock()
	tokens := make([]market.Token, 0, len(s.tokens))
	for t := range s.tokens {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	out := make(map[market.Token]map[string]Position, len(tokens))
	for _, t := range tokens {
		out[t] = s.Get(t)
	}
	return out
}

func copyAccounts(accounts map[string]Position) map[string]Position {
	out := make(map[string]Position, len(accounts))
	for name, pos := range accounts {
		out[name] = pos
	}
	return out
}
