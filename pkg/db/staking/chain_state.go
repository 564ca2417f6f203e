package staking

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	core "github.com/manta-network/stakingx/pkg/staking"
)

// InsertChainState writes the live row or a permanent snapshot.
func (db *DB) InsertChainState(ctx context.Context, state *core.ChainState) error {
	row := chainStateRow(state)

	batch, err := db.PrepareBatch(ctx, stakingmodels.InsertSQL(db.Name, entities.ChainStates.TableName(), stakingmodels.ChainStateColumns))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	if err := batch.Append(row.ID, row.DelegatorCount, row.ActiveCollatorCount, row.TotalStaked, row.Timestamp,
		row.BlockNumber, row.RoundNumber, row.RoundStartBlock, row.IsLive); err != nil {
		return err
	}
	return batch.Send()
}

func (db *DB) latestChainStateRow(ctx context.Context, live bool) (*stakingmodels.ChainState, error) {
	var isLive uint8
	if live {
		isLive = 1
	}
	var rows []*stakingmodels.ChainState
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE is_live = ? ORDER BY block_number DESC LIMIT 1`,
		db.Name, entities.ChainStates.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, isLive); err != nil {
		return nil, fmt.Errorf("latest chain state: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// LatestChainState returns the newest permanent snapshot, or the live row when permanent is false.
func (db *DB) LatestChainState(ctx context.Context, permanent bool) (*core.ChainState, error) {
	row, err := db.latestChainStateRow(ctx, !permanent)
	if err != nil || row == nil {
		return nil, err
	}
	return chainStateFromRow(row), nil
}

// GetLiveChainState returns the live row as stored.
func (db *DB) GetLiveChainState(ctx context.Context) (*stakingmodels.ChainState, error) {
	return db.latestChainStateRow(ctx, true)
}

// ListChainStates pages permanent snapshots backwards from beforeBlock (0 = newest).
func (db *DB) ListChainStates(ctx context.Context, beforeBlock uint64, limit int) ([]*stakingmodels.ChainState, error) {
	rows := make([]*stakingmodels.ChainState, 0)
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE is_live = 0 AND (? = 0 OR block_number < ?) ORDER BY block_number DESC LIMIT ?`,
		db.Name, entities.ChainStates.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, beforeBlock, beforeBlock, limit); err != nil {
		return nil, fmt.Errorf("list chain states: %w", err)
	}
	return rows, nil
}
