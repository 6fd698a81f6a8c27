package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

var _ Journal = (*SQLite)(nil)

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(id, symbol, entry_price, exit_price, quantity, pnl, mode, account, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Symbol, t.Entry, t.Exit, t.Quantity,
		t.PnL, t.Mode, t.Account, t.Reason, t.Time,
	)
	return err
}

// ListTrades returns every recorded trade, oldest first.
func (j *SQLite) ListTrades() ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, symbol, entry_price, exit_price, quantity, pnl, mode, account, reason, time
		FROM trades ORDER BY time, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Entry, &t.Exit, &t.Quantity,
			&t.PnL, &t.Mode, &t.Account, &t.Reason, &t.Time); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
