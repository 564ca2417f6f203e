package staking

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	core "github.com/manta-network/stakingx/pkg/staking"
)

// InsertRoundRecords writes settled records of one round. Re-inserting a (collator, round)
// pair replaces it.
func (db *DB) InsertRoundRecords(ctx context.Context, records []*core.RoundRecord) error {
	if len(records) == 0 {
		return nil
	}
	rows, err := roundRecordRows(db.Codec, records)
	if err != nil {
		return err
	}

	columns := stakingmodels.RoundRecordColumns[:len(stakingmodels.RoundRecordColumns)-1]
	batch, err := db.PrepareBatch(ctx, stakingmodels.InsertSQL(db.Name, entities.RoundRecords.TableName(), columns))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rows {
		if err := batch.Append(r.CollatorID, r.RoundNumber, r.BlockNumber, r.StakingRewards); err != nil {
			return err
		}
	}
	return batch.Send()
}

// LatestRoundRecord returns a record of the highest settled round, or nil.
func (db *DB) LatestRoundRecord(ctx context.Context) (*core.RoundRecord, error) {
	var rows []*stakingmodels.RoundRecord
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL ORDER BY round_number DESC, block_number DESC LIMIT 1`,
		db.Name, entities.RoundRecords.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("latest round record: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return roundRecordFromRow(db.Codec, rows[0])
}

// ListRoundRecords returns every collator record of a round ordered by reward.
func (db *DB) ListRoundRecords(ctx context.Context, round uint32) ([]*stakingmodels.RoundRecord, error) {
	rows := make([]*stakingmodels.RoundRecord, 0)
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE round_number = ? ORDER BY staking_rewards DESC, collator_id`,
		db.Name, entities.RoundRecords.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, round); err != nil {
		return nil, fmt.Errorf("list round %d records: %w", round, err)
	}
	return rows, nil
}

// ListCollatorRounds pages a collator's records backwards from beforeRound (0 = newest).
func (db *DB) ListCollatorRounds(ctx context.Context, address string, beforeRound uint32, limit int) ([]*stakingmodels.RoundRecord, error) {
	rows := make([]*stakingmodels.RoundRecord, 0)
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE collator_id = ? AND (? = 0 OR round_number < ?) ORDER BY round_number DESC LIMIT ?`,
		db.Name, entities.RoundRecords.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, address, beforeRound, beforeRound, limit); err != nil {
		return nil, fmt.Errorf("list collator %s rounds: %w", address, err)
	}
	return rows, nil
}
