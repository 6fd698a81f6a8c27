package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "trades.db")

	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='trades'`).Scan(&name)
	assert.NoError(t, err)
	assert.Equal(t, "trades", name)
}

func TestSQLiteRecordAndList(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	t0 := time.Date(2024, 8, 1, 10, 15, 0, 0, time.UTC)
	first := TradeRecord{
		ID:       "01TRADE1",
		Symbol:   "NIFTY2481524500CE",
		Entry:    120,
		Exit:     150,
		Quantity: 100,
		PnL:      3000,
		Mode:     "SIMULATED",
		Account:  AggregatedAccount,
		Reason:   ReasonTakeProfit,
		Time:     t0,
	}
	second := TradeRecord{
		ID:       "01TRADE2",
		Symbol:   "NIFTY2481524500CE",
		Entry:    120,
		Exit:     110,
		Quantity: 50,
		PnL:      -500,
		Mode:     "LIVE",
		Account:  "beta",
		Reason:   ReasonManual,
		Time:     t0.Add(time.Minute),
	}

	require.NoError(t, j.RecordTrade(first))
	require.NoError(t, j.RecordTrade(second))

	trades, err := j.ListTrades()
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, first.ID, trades[0].ID)
	assert.Equal(t, first.PnL, trades[0].PnL)
	assert.Equal(t, AggregatedAccount, trades[0].Account)
	assert.True(t, trades[0].Time.Equal(t0))

	assert.Equal(t, second.ID, trades[1].ID)
	assert.Equal(t, -500.0, trades[1].PnL, "losing exits keep their sign")
	assert.Equal(t, ReasonManual, trades[1].Reason)
}

func TestSQLiteDuplicateIDRejected(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	rec := TradeRecord{ID: "01DUP", Symbol: "X", Time: time.Now().UTC()}
	require.NoError(t, j.RecordTrade(rec))
	assert.Error(t, j.RecordTrade(rec), "ledger rows are append-only and unique")
}
