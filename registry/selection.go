package registry

import (
	"sync"

	"github.com/rustyeddy/optrade/market"
)

// Selection is the set of instruments currently under management, backed by a
// JSON file. Instruments enter the set through catalog lookup and leave only
// via an explicit replace.
type Selection struct {
	mu          sync.RWMutex
	path        string
	instruments []market.Instrument
}

// OpenSelection loads the selected-instrument set from path, falling back to
// an empty set when the file is missing.
func OpenSelection(path string) (*Selection, error) {
	s := &Selection{path: path}
	if err := loadJSON(path, &s.instruments); err != nil {
		return nil, err
	}
	return s, nil
}

// List returns a copy of the selected instruments.
func (s *Selection) List() []market.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]market.Instrument, len(s.instruments))
	copy(out, s.instruments)
	return out
}

// Find returns the selected instrument for token, if any.
func (s *Selection) Find(token market.Token) (market.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instruments {
		if inst.Token == token {
			return inst, true
		}
	}
	return market.Instrument{}, false
}

// Add selects an instrument. It reports whether the instrument was newly
// added; re-selecting an existing token is a no-op.
func (s *Selection) Add(inst market.Instrument) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.instruments {
		if have.Token == inst.Token {
			return false, nil
		}
	}
	s.instruments = append(s.instruments, inst)
	return true, saveJSON(s.path, s.instruments)
}

// Replace swaps the whole selection and persists it.
func (s *Selection) Replace(instruments []market.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments = make([]market.Instrument, len(instruments))
	copy(s.instruments, instruments)
	return saveJSON(s.path, s.instruments)
}
