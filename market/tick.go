package market

import (
	"sync"
	"time"
)

// Tick is one last-traded-price update from the feed.
type Tick struct {
	Token Token
	Price float64
	Time  time.Time
}

// LTPStore caches the most recent traded price per instrument. A token that
// has never ticked reads as 0, which the engine treats as the explicit
// "no price observed yet" default rather than an error.
type LTPStore struct {
	mu     sync.RWMutex
	prices map[Token]float64
}

func NewLTPStore() *LTPStore {
	return &LTPStore{prices: make(map[Token]float64)}
}

func (s *LTPStore) Set(token Token, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[token] = price
}

// Last returns the most recent price for token, or 0 if none has arrived.
func (s *LTPStore) Last(token Token) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices[token]
}

// Snapshot returns a copy of every cached price.
func (s *LTPStore) Snapshot() map[Token]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Token]float64, len(s.prices))
	for t, p := range s.prices {
		out[t] = p
	}
	return out
}
