package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type assetRow struct {
	ID         int32
	Ticker     string
	Name       string
	Type       string
	CreatedAt  *time.Time
	ModifiedAt *time.Time
}

type aggregatesParams struct {
	TimeBucket string
	AssetID    int32
	Starttime  *time.Time
	Endtime    *time.Time
}

type aggregateRow struct {
	Bucket  *time.Time
	AssetID int32
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	Volume  decimal.Decimal
}

const getAssetByTicker = `
SELECT id, ticker, name, type, created_at, modified_at
FROM assets
WHERE ticker = $1
LIMIT 1`

const getAggregates = `
SELECT time_bucket($1::interval, time) AS bucket,
       asset_id,
       first(open, time) AS open,
       max(high)         AS high,
       min(low)          AS low,
       last(close, time) AS close,
       sum(volume)       AS volume
FROM candles
WHERE asset_id = $2
  AND time >= $3
  AND time < $4
GROUP BY bucket, asset_id
ORDER BY bucket`

type pgQueries struct {
	db *pgxpool.Pool
}

func (q *pgQueries) GetAssetByTicker(ctx context.Context, ticker string) (assetRow, error) {
	var a assetRow
	err := q.db.QueryRow(ctx, getAssetByTicker, ticker).Scan(
		&a.ID, &a.Ticker, &a.Name, &a.Type, &a.CreatedAt, &a.ModifiedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, errNoRows
	}
	return a, err
}

func (q *pgQueries) GetAggregates(ctx context.Context, arg aggregatesParams) ([]aggregateRow, error) {
	rows, err := q.db.Query(ctx, getAggregates, arg.TimeBucket, arg.AssetID, arg.Starttime, arg.Endtime)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []aggregateRow
	for rows.Next() {
		var r aggregateRow
		if err := rows.Scan(&r.Bucket, &r.AssetID, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}
