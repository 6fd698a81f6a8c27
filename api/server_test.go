package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/optrade/broadcast"
	"github.com/rustyeddy/optrade/engine"
	"github.com/rustyeddy/optrade/journal"
	"github.com/rustyeddy/optrade/market"
	"github.com/rustyeddy/optrade/positions"
	"github.com/rustyeddy/optrade/registry"
)

const catalogDump = `instrument_token,exchange_token,tradingsymbol,name,expiry,strike,tick_size,lot_size,instrument_type,segment,exchange
101,1,NIFTY2481524500CE,NIFTY,2024-08-15,24500,0.05,50,CE,NFO-OPT,NFO
202,2,NIFTY2481524500PE,NIFTY,2024-08-15,24500,0.05,50,PE,NFO-OPT,NFO
303,3,NIFTY24AUGFUT,NIFTY,2024-08-29,0,0.05,25,FUT,NFO-FUT,NFO
`

type fakeFeed struct {
	subscribed []market.Token
	resubErr   error
}

func (f *fakeFeed) Subscribe(tokens ...market.Token) error {
	f.subscribed = append(f.subscribed, tokens...)
	return nil
}

func (f *fakeFeed) Resubscribe() (int, error) {
	if f.resubErr != nil {
		return 0, f.resubErr
	}
	return len(f.subscribed), nil
}

type fixture struct {
	server *Server
	eng    *engine.Engine
	ticks  *market.LTPStore
	feed   *fakeFeed
	ledger journal.Journal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	dump := filepath.Join(dir, "instruments.csv")
	require.NoError(t, os.WriteFile(dump, []byte(catalogDump), 0o644))
	catalog, err := market.LoadCatalog(dump)
	require.NoError(t, err)

	accounts, err := registry.OpenAccounts(filepath.Join(dir, "accounts.json"))
	require.NoError(t, err)
	require.NoError(t, accounts.Append(registry.Account{Name: "alpha", Lots: 2}))

	selected, err := registry.OpenSelection(filepath.Join(dir, "selected.json"))
	require.NoError(t, err)
	inst, _ := catalog.FindByToken(101)
	_, err = selected.Add(inst)
	require.NoError(t, err)

	settings, err := registry.OpenSettings(filepath.Join(dir, "settings.json"), "SIMULATED")
	require.NoError(t, err)

	ledger, err := journal.NewSQLite(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	book := positions.NewStore()
	ticks := market.NewLTPStore()
	hub := broadcast.NewHub(nil)
	t.Cleanup(hub.Close)

	eng := engine.New(engine.Config{
		Mode:      engine.Simulated,
		Accounts:  accounts,
		Selected:  selected,
		Book:      book,
		Ticks:     ticks,
		Journal:   ledger,
		Publisher: NewEvents(hub),
	})

	feed := &fakeFeed{}
	srv := NewServer(Config{
		Addr:     ":0",
		Engine:   eng,
		Accounts: accounts,
		Selected: selected,
		Settings: settings,
		Catalog:  catalog,
		Ticks:    ticks,
		Book:     book,
		Journal:  ledger,
		Hub:      hub,
		Feed:     feed,
	})
	return &fixture{server: srv, eng: eng, ticks: ticks, feed: feed, ledger: ledger}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAccountEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]registry.Account](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/accounts", registry.Account{Name: "beta", APIKey: "k"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]registry.Account](t, rec), 2)

	rec = f.do(t, http.MethodPost, "/accounts", registry.Account{APIKey: "nameless"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/accounts/update", []registry.Account{{Name: "gamma"}})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]registry.Account](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, "gamma", got[0].Name)
}

func TestSearchFiltersAndBounds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/instruments/search?q=24500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	matches := decode[[]market.Instrument](t, rec)
	assert.Len(t, matches, 2, "futures rows are not in the option catalog")

	rec = f.do(t, http.MethodGet, "/instruments/search?q=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectInstrumentSubscribesFeed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/instruments/select", map[string]any{"token": 202})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []market.Token{202}, f.feed.subscribed)

	// Re-selecting is a no-op and must not resubscribe.
	rec = f.do(t, http.MethodPost, "/instruments/select", map[string]any{"token": 202})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, f.feed.subscribed, 1)

	rec = f.do(t, http.MethodPost, "/instruments/select", map[string]any{"token": 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuySellRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ticks.Set(101, 120)

	rec := f.do(t, http.MethodPost, "/buy", map[string]any{"token": 101, "stoploss": 100, "takeprofit": 150})
	require.Equal(t, http.StatusOK, rec.Code)
	buyRes := decode[engine.BuyResult](t, rec)
	require.Len(t, buyRes.Outcomes, 1)
	assert.Equal(t, engine.StatusSuccess, buyRes.Outcomes[0].Status)

	f.ticks.Set(101, 130)
	rec = f.do(t, http.MethodPost, "/sell", map[string]any{"token": 101})
	require.Equal(t, http.StatusOK, rec.Code)
	sellRes := decode[engine.SellResult](t, rec)
	assert.False(t, sellRes.NoPosition)

	rec = f.do(t, http.MethodGet, "/trades", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trades := decode[[]journal.TradeRecord](t, rec)
	require.Len(t, trades, 1)
	assert.Equal(t, journal.AggregatedAccount, trades[0].Account)
	assert.InDelta(t, 1000.0, trades[0].PnL, 1e-9)
}

func TestBuyUnknownToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/buy", map[string]any{"token": 202})
	assert.Equal(t, http.StatusNotFound, rec.Code, "202 is in the catalog but not selected")
}

func TestSellWithoutPosition(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/sell", map[string]any{"token": 101})
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[engine.SellResult](t, rec)
	assert.True(t, res.NoPosition)
}

func TestModeEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"execution_mode":"SIMULATED"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/mode", map[string]string{"mode": "LIVE"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, engine.Live, f.eng.Mode())

	rec = f.do(t, http.MethodPost, "/mode", map[string]string{"mode": "paper"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, engine.Live, f.eng.Mode(), "a rejected mode leaves the engine untouched")
}

func TestSnapshotMergesPricesAndPositions(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.ticks.Set(101, 125.5)
	f.do(t, http.MethodPost, "/buy", map[string]any{"token": 101})

	rec := f.do(t, http.MethodGet, "/ltp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[[]instrumentState](t, rec)
	require.Len(t, state, 1)
	assert.Equal(t, 125.5, state[0].LTP)
	require.Contains(t, state[0].Positions, "alpha")
	assert.True(t, state[0].Positions["alpha"].Open)
	assert.Equal(t, 100, state[0].Positions["alpha"].Quantity)
}

func TestResubscribe(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	require.NoError(t, f.feed.Subscribe(101))

	rec := f.do(t, http.MethodPost, "/instruments/resubscribe", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resubscribed":1}`, rec.Body.String())

	f.feed.resubErr = fmt.Errorf("feed not connected")
	rec = f.do(t, http.MethodPost, "/instruments/resubscribe", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResubscribeWithoutFeed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.server.cfg.Feed = nil

	rec := f.do(t, http.MethodPost, "/instruments/resubscribe", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
