package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"smacross/types"
)

// errNoRows is what both query layers report for an empty single-row lookup.
var errNoRows = sql.ErrNoRows

// GetAssetByTicker retrieves a types.Asset by its ticker.
func (db *Database) GetAssetByTicker(ctx context.Context, ticker string) (*types.Asset, error) {
	asset, err := db.assets.GetAssetByTicker(ctx, ticker)
	if err != nil {
		if errors.Is(err, errNoRows) {
			return nil, fmt.Errorf("ticker %s %w", ticker, ErrAssetNotFound)
		}
		return nil, err
	}
	return convertAsset(asset), nil
}

func convertAsset(row assetRow) *types.Asset {
	asset := &types.Asset{
		Id:     int(row.ID),
		Ticker: row.Ticker,
		Name:   row.Name,
		Type:   types.AssetType(row.Type),
	}
	if row.CreatedAt != nil {
		asset.CreatedAt = *row.CreatedAt
	}
	if row.ModifiedAt != nil {
		asset.ModifiedAt = *row.ModifiedAt
	}
	return asset
}
