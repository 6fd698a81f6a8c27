package market

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Catalog is the full instrument dump from the exchange, filtered to option
// contracts (CE/PE). It is loaded once at startup and read-only afterwards.
type Catalog struct {
	instruments []Instrument
	byToken     map[Token]Instrument
}

// LoadCatalog reads an exchange instrument dump in CSV form. Expected columns
// include instrument_token, tradingsymbol, exchange, lot_size, instrument_type,
// expiry and strike; extra columns are ignored. Rows that are not CE or PE
// contracts are dropped.
func LoadCatalog(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open instrument dump: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse instrument dump: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("instrument dump %q is empty", path)
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.TrimSpace(h)] = i
	}
	for _, want := range []string{"instrument_token", "tradingsymbol", "exchange", "lot_size", "instrument_type"} {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("instrument dump missing column %q", want)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	c := &Catalog{byToken: make(map[Token]Instrument)}
	for _, row := range rows[1:] {
		typ := field(row, "instrument_type")
		if typ != "CE" && typ != "PE" {
			continue
		}

		token, err := strconv.ParseUint(field(row, "instrument_token"), 10, 32)
		if err != nil {
			continue
		}
		lot, _ := strconv.Atoi(field(row, "lot_size"))
		strike, _ := strconv.ParseFloat(field(row, "strike"), 64)

		inst := Instrument{
			Token:    Token(token),
			Symbol:   field(row, "tradingsymbol"),
			Exchange: field(row, "exchange"),
			Lot:      lot,
			Type:     typ,
			Expiry:   field(row, "expiry"),
			Strike:   strike,
		}
		c.instruments = append(c.instruments, inst)
		c.byToken[inst.Token] = inst
	}

	return c, nil
}

// Search returns every instrument whose trading symbol contains q,
// case-insensitively.
func (c *Catalog) Search(q string) []Instrument {
	q = strings.ToUpper(strings.TrimSpace(q))
	out := []Instrument{}
	for _, inst := range c.instruments {
		if strings.Contains(inst.Symbol, q) {
			out = append(out, inst)
		}
	}
	return out
}

// FindByToken returns the instrument for a token, if present in the dump.
func (c *Catalog) FindByToken(token Token) (Instrument, bool) {
	inst, ok := c.byToken[token]
	return inst, ok
}

// Len reports how many option contracts the catalog holds.
func (c *Catalog) Len() int {
	return len(c.instruments)
}
