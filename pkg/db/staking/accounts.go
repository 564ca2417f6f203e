package staking

import (
	"context"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	core "github.com/manta-network/stakingx/pkg/staking"
	"go.uber.org/zap"
)

// ApplyAccounts writes one reconciliation as a logical unit: every row (upserts and
// tombstones) is staged first, then each entity is promoted. A failure reports the
// entities already promoted in *core.PersistenceError.Applied. Retrying the same batch is
// idempotent because rows are versioned by the checkpoint height.
func (db *DB) ApplyAccounts(ctx context.Context, batch *core.AccountBatch) error {
	collators, err := collatorRows(db.Codec, batch)
	if err != nil {
		return &core.PersistenceError{Entity: entities.CollatorAccounts, Err: err}
	}
	delegators, err := delegatorRows(db.Codec, batch)
	if err != nil {
		return &core.PersistenceError{Entity: entities.DelegatorAccounts, Err: err}
	}

	if err := db.insertCollatorAccounts(ctx, entities.CollatorAccounts.StagingTableName(), collators); err != nil {
		return &core.PersistenceError{Entity: entities.CollatorAccounts, Err: err}
	}
	if err := db.insertDelegatorAccounts(ctx, entities.DelegatorAccounts.StagingTableName(), delegators); err != nil {
		return &core.PersistenceError{Entity: entities.DelegatorAccounts, Err: err}
	}

	var applied []entities.Entity
	staged := []struct {
		entity entities.Entity
		rows   int
	}{
		{entities.CollatorAccounts, len(collators)},
		{entities.DelegatorAccounts, len(delegators)},
	}
	for _, s := range staged {
		if s.rows == 0 {
			continue
		}
		if err := db.PromoteEntity(ctx, s.entity, batch.Height); err != nil {
			return &core.PersistenceError{Entity: s.entity, Applied: applied, Err: err}
		}
		applied = append(applied, s.entity)
	}

	var cleanErr error
	for _, entity := range applied {
		cleanErr = errors.Join(cleanErr, db.CleanEntityStaging(ctx, entity, batch.Height))
	}
	if cleanErr != nil {
		// promoted rows are already visible; leftovers are overwritten by the next promotion
		db.Logger.Warn("Failed to clean staging data", zap.Uint64("height", batch.Height), zap.Error(cleanErr))
	}

	db.Logger.Debug("Applied account batch",
		zap.Uint64("height", batch.Height),
		zap.Int("collatorUpserts", len(batch.CollatorUpserts)),
		zap.Int("collatorRemovals", len(batch.CollatorRemovals)),
		zap.Int("delegatorUpserts", len(batch.DelegatorUpserts)),
		zap.Int("delegatorRemovals", len(batch.DelegatorRemovals)),
	)
	return nil
}

func (db *DB) insertCollatorAccounts(ctx context.Context, table string, rows []*stakingmodels.CollatorAccount) error {
	if len(rows) == 0 {
		return nil
	}
	columns := stakingmodels.CollatorAccountColumns[:len(stakingmodels.CollatorAccountColumns)-1] // inserted_at is defaulted
	batch, err := db.PrepareBatch(ctx, stakingmodels.InsertSQL(db.Name, table, columns))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rows {
		if err := batch.Append(r.ID, r.SelfBond, r.DelegationCount, r.TotalBond, r.Status, r.UpdatedAtBlock, r.IsDeleted); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (db *DB) insertDelegatorAccounts(ctx context.Context, table string, rows []*stakingmodels.DelegatorAccount) error {
	if len(rows) == 0 {
		return nil
	}
	columns := stakingmodels.DelegatorAccountColumns[:len(stakingmodels.DelegatorAccountColumns)-1]
	batch, err := db.PrepareBatch(ctx, stakingmodels.InsertSQL(db.Name, table, columns))
	if err != nil {
		return err
	}
	defer func(batch driver.Batch) {
		_ = batch.Abort()
	}(batch)

	for _, r := range rows {
		if err := batch.Append(r.ID, r.DelegationOwners, r.DelegationAmounts, r.TotalStaked, r.Status, r.UpdatedAtBlock, r.IsDeleted); err != nil {
			return err
		}
	}
	return batch.Send()
}

// CountDelegators counts live delegator rows.
func (db *DB) CountDelegators(ctx context.Context) (uint64, error) {
	var count uint64
	query := fmt.Sprintf(`SELECT count() FROM "%s"."%s" FINAL WHERE is_deleted = 0`, db.Name, entities.DelegatorAccounts.TableName())
	if err := db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count delegators: %w", err)
	}
	return count, nil
}

// GetCollator returns the live row of a collator or nil when it has none.
func (db *DB) GetCollator(ctx context.Context, address string) (*stakingmodels.CollatorAccount, error) {
	var rows []*stakingmodels.CollatorAccount
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE id = ? AND is_deleted = 0 LIMIT 1`,
		db.Name, entities.CollatorAccounts.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, address); err != nil {
		return nil, fmt.Errorf("get collator %s: %w", address, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListCollators returns live collators ordered by total bond.
func (db *DB) ListCollators(ctx context.Context, limit int) ([]*stakingmodels.CollatorAccount, error) {
	rows := make([]*stakingmodels.CollatorAccount, 0)
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE is_deleted = 0 ORDER BY total_bond DESC, id LIMIT ?`,
		db.Name, entities.CollatorAccounts.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("list collators: %w", err)
	}
	return rows, nil
}

// GetDelegator returns the live row of a delegator or nil when it has none.
func (db *DB) GetDelegator(ctx context.Context, address string) (*stakingmodels.DelegatorAccount, error) {
	var rows []*stakingmodels.DelegatorAccount
	query := fmt.Sprintf(`SELECT * FROM "%s"."%s" FINAL WHERE id = ? AND is_deleted = 0 LIMIT 1`,
		db.Name, entities.DelegatorAccounts.TableName())
	if err := db.SelectWithFinal(ctx, &rows, query, address); err != nil {
		return nil, fmt.Errorf("get delegator %s: %w", address, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}
