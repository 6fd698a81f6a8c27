// Package registry persists the operator-managed collections: brokerage
// accounts, the selected instrument set, and runtime settings. Each collection
// is a pretty-printed JSON file so it can be inspected and edited by hand.
// Registries are read-mostly; writes happen out-of-band of in-flight
// operations, so a plain RWMutex per registry is enough.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Account is one brokerage account the engine trades on. Credentials are
// opaque here; only the order gateway interprets them.
type Account struct {
	Name         string  `json:"name"`
	APIKey       string  `json:"api_key"`
	AccessToken  string  `json:"access_token"`
	CapitalLimit float64 `json:"capital_limit,omitempty"`
	Lots         int     `json:"lots,omitempty"`
}

// Multiplier returns the account's lot multiplier, defaulting to 1 when the
// field is unset.
func (a Account) Multiplier() int {
	if a.Lots < 1 {
		return 1
	}
	return a.Lots
}

// Accounts is the account registry backed by a JSON file.
type Accounts struct {
	mu       sync.RWMutex
	path     string
	accounts []Account
}

// OpenAccounts loads the registry from path. A missing or unreadable file
// yields an empty registry, matching the load-with-fallback behavior the rest
// of the storage layer uses.
func OpenAccounts(path string) (*Accounts, error) {
	r := &Accounts{path: path}
	if err := loadJSON(path, &r.accounts); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns a copy of the configured accounts in registry order.
func (r *Accounts) List() []Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Account, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// Append adds one account and persists the registry.
func (r *Accounts) Append(a Account) error {
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = append(r.accounts, a)
	return saveJSON(r.path, r.accounts)
}

// Replace swaps the whole account list and persists it.
func (r *Accounts) Replace(accounts []Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts = make([]Account, len(accounts))
	copy(r.accounts, accounts)
	return saveJSON(r.path, r.accounts)
}

// loadJSON reads a JSON file into v. Missing and empty files are not errors;
// v is left at its zero value so callers start from a clean fallback.
func loadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func saveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
