package market

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
101,1,NIFTY2481524500CE,NIFTY,0,2024-08-15,24500,0.05,50,CE,NFO-OPT,NFO
102,2,NIFTY2481524500PE,NIFTY,0,2024-08-15,24500,0.05,50,PE,NFO-OPT,NFO
103,3,BANKNIFTY24815CE,BANKNIFTY,0,2024-08-15,51000,0.05,15,CE,NFO-OPT,NFO
104,4,RELIANCE,RELIANCE,0,,0,0.05,1,EQ,NSE,NSE
`

func writeDump(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.csv")
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestLoadCatalogFiltersOptions(t *testing.T) {
	t.Parallel()

	c, err := LoadCatalog(writeDump(t, sampleDump))
	require.NoError(t, err)

	// The EQ row is dropped.
	assert.Equal(t, 3, c.Len())

	inst, ok := c.FindByToken(101)
	require.True(t, ok)
	assert.Equal(t, "NIFTY2481524500CE", inst.Symbol)
	assert.Equal(t, "NFO", inst.Exchange)
	assert.Equal(t, 50, inst.Lot)
	assert.Equal(t, "CE", inst.Type)
	assert.Equal(t, 24500.0, inst.Strike)

	_, ok = c.FindByToken(104)
	assert.False(t, ok)
}

func TestCatalogSearch(t *testing.T) {
	t.Parallel()

	c, err := LoadCatalog(writeDump(t, sampleDump))
	require.NoError(t, err)

	hits := c.Search("banknifty")
	require.Len(t, hits, 1)
	assert.Equal(t, Token(103), hits[0].Token)

	assert.Len(t, c.Search("NIFTY"), 3)
	assert.Empty(t, c.Search("TCS"))
}

func TestLoadCatalogMissingColumn(t *testing.T) {
	t.Parallel()

	_, err := LoadCatalog(writeDump(t, "a,b,c\n1,2,3\n"))
	assert.ErrorContains(t, err, "missing column")
}

func TestLTPStoreDefaultsToZero(t *testing.T) {
	t.Parallel()

	s := NewLTPStore()
	assert.Equal(t, 0.0, s.Last(999))

	s.Set(101, 120.5)
	assert.Equal(t, 120.5, s.Last(101))

	snap := s.Snapshot()
	snap[101] = 0
	assert.Equal(t, 120.5, s.Last(101))
}
