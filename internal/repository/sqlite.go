package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smacross/types"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assets (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ticker      TEXT    NOT NULL UNIQUE,
	name        TEXT    NOT NULL DEFAULT '',
	type        TEXT    NOT NULL,
	created_at  INTEGER NOT NULL,
	modified_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS candles (
	asset_id INTEGER NOT NULL REFERENCES assets(id),
	interval TEXT    NOT NULL,
	ts       INTEGER NOT NULL,
	open     TEXT    NOT NULL,
	high     TEXT    NOT NULL,
	low      TEXT    NOT NULL,
	close    TEXT    NOT NULL,
	volume   TEXT    NOT NULL,
	PRIMARY KEY (asset_id, interval, ts)
);`

// SQLiteStore keeps candles in a local SQLite file at their native interval.
// Decimals are stored as text so no precision is lost.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error) {
	var (
		a                   types.Asset
		assetType           string
		createdAt, modified int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, ticker, name, type, created_at, modified_at FROM assets WHERE ticker = ?`, ticker,
	).Scan(&a.Id, &a.Ticker, &a.Name, &assetType, &createdAt, &modified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	a.Type = types.AssetType(assetType)
	a.CreatedAt = time.UnixMilli(createdAt).UTC()
	a.ModifiedAt = time.UnixMilli(modified).UTC()
	return &a, nil
}

// UpsertAsset creates the asset or refreshes its name and type.
func (s *SQLiteStore) UpsertAsset(ctx context.Context, ticker, name string, assetType types.AssetType) (*types.Asset, error) {
	now := time.Now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO assets (ticker, name, type, created_at, modified_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(ticker) DO UPDATE SET name = excluded.name, type = excluded.type, modified_at = excluded.modified_at`,
		ticker, name, string(assetType), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert asset %s: %w", ticker, err)
	}
	return s.GetAssetByTicker(ctx, ticker)
}

// InsertCandles writes candles for assetId, replacing bars with the same open time.
func (s *SQLiteStore) InsertCandles(ctx context.Context, assetId int, candles []types.Candle) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO candles (asset_id, interval, ts, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err = stmt.ExecContext(ctx, assetId, string(c.Interval), c.Timestamp.UnixMilli(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String()); err != nil {
			return fmt.Errorf("insert candle %s: %w", c.Timestamp.Format(time.RFC3339), err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCandles(ctx context.Context, assetId int, ticker string, interval types.Interval, start, end time.Time) ([]types.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT ts, open, high, low, close, volume
FROM candles
WHERE asset_id = ? AND interval = ? AND ts >= ? AND ts <= ?
ORDER BY ts`, assetId, string(interval), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []types.Candle
	for rows.Next() {
		var (
			ts                            int64
			open, high, low, closing, vol string
		)
		if err := rows.Scan(&ts, &open, &high, &low, &closing, &vol); err != nil {
			return nil, err
		}
		c := types.Candle{
			AssetId:   assetId,
			Ticker:    ticker,
			Interval:  interval,
			Timestamp: time.UnixMilli(ts).UTC(),
		}
		if c.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("%w: open %q", ErrMalformedRow, open)
		}
		if c.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("%w: high %q", ErrMalformedRow, high)
		}
		if c.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("%w: low %q", ErrMalformedRow, low)
		}
		if c.Close, err = decimal.NewFromString(closing); err != nil {
			return nil, fmt.Errorf("%w: close %q", ErrMalformedRow, closing)
		}
		if c.Volume, err = decimal.NewFromString(vol); err != nil {
			return nil, fmt.Errorf("%w: volume %q", ErrMalformedRow, vol)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, ErrNoCandles
	}
	return candles, nil
}
