package staking

import (
	"context"
	"fmt"

	"github.com/manta-network/stakingx/pkg/db/clickhouse"
	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	"github.com/manta-network/stakingx/pkg/ss58"
	"go.uber.org/zap"
)

// DB is the ClickHouse database of one network. It implements Store.
type DB struct {
	clickhouse.Client
	Name    string
	Network string
	Codec   ss58.Codec
}

// New connects to ClickHouse and initializes the network database.
func New(ctx context.Context, logger *zap.Logger, network string, codec ss58.Codec, poolConfig *clickhouse.PoolConfig) (*DB, error) {
	dbName := clickhouse.SanitizeName(network + "_staking")

	client, err := clickhouse.New(ctx, logger.With(
		zap.String("db", dbName),
		zap.String("network", network),
	), dbName, poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client, Name: dbName, Network: network, Codec: codec}
	if err := db.InitializeDB(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// DatabaseName returns the sanitized database name.
func (db *DB) DatabaseName() string {
	return db.Name
}

// InitializeDB creates the database and its tables if they do not already exist.
//
// Schema design:
//   - Account tables use ReplacingMergeTree(updated_at_block, is_deleted): the row of the
//     latest reconciliation wins and a tombstone at that height removes the account.
//   - chain_states uses ReplacingMergeTree(block_number) ordered by id, so the live row
//     (id "0") keeps only its newest version while snapshots are kept per block identity.
//   - round_records is ordered by (collator_id, round_number) to retain every round.
func (db *DB) InitializeDB(ctx context.Context) error {
	if err := db.CreateDbIfNotExists(ctx, db.Name); err != nil {
		return fmt.Errorf("create database %s: %w", db.Name, err)
	}

	tables := []struct {
		entity  entities.Entity
		columns []stakingmodels.ColumnDef
		engine  string
		orderBy string
	}{
		{entities.CollatorAccounts, stakingmodels.CollatorAccountColumns, db.Engine(clickhouse.ReplacingMergeTree, "updated_at_block, is_deleted"), "id"},
		{entities.DelegatorAccounts, stakingmodels.DelegatorAccountColumns, db.Engine(clickhouse.ReplacingMergeTree, "updated_at_block, is_deleted"), "id"},
		{entities.ChainStates, stakingmodels.ChainStateColumns, db.Engine(clickhouse.ReplacingMergeTree, "block_number"), "id"},
		{entities.RoundRecords, stakingmodels.RoundRecordColumns, db.Engine(clickhouse.ReplacingMergeTree, "inserted_at"), "(collator_id, round_number)"},
	}

	for _, t := range tables {
		query := createTableSQL(db.Name, t.entity.TableName(), db.OnCluster(), t.columns, t.engine, t.orderBy)
		if err := db.Exec(ctx, query); err != nil {
			return fmt.Errorf("create %s: %w", t.entity.TableName(), err)
		}
		if !t.entity.Staged() {
			continue
		}
		// staging rows are grouped by checkpoint height for promotion and cleanup
		staging := createTableSQL(db.Name, t.entity.StagingTableName(), db.OnCluster(), t.columns,
			db.Engine(clickhouse.MergeTree, ""), "(updated_at_block, id)")
		if err := db.Exec(ctx, staging); err != nil {
			return fmt.Errorf("create %s: %w", t.entity.StagingTableName(), err)
		}
	}

	db.Logger.Info("Staking database initialized", zap.String("database", db.Name))
	return nil
}

func createTableSQL(database, table, onCluster string, columns []stakingmodels.ColumnDef, engine, orderBy string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s"."%s" %s (
			%s
		) ENGINE = %s
		ORDER BY %s
		SETTINGS index_granularity = 8192
	`, database, table, onCluster, stakingmodels.ColumnsToSchemaSQL(columns), engine, orderBy)
}

// PromoteEntity promotes the staging rows of one checkpoint height to the production table.
// The operation is idempotent - safe to retry if it fails.
func (db *DB) PromoteEntity(ctx context.Context, entity entities.Entity, height uint64) error {
	if !entity.Staged() {
		return fmt.Errorf("entity %q has no staging table", entity)
	}

	query := fmt.Sprintf(
		`INSERT INTO "%s"."%s" SELECT * FROM "%s"."%s" WHERE updated_at_block = ?`,
		db.Name, entity.TableName(),
		db.Name, entity.StagingTableName(),
	)
	if err := db.Exec(ctx, query, height); err != nil {
		return fmt.Errorf("promote %s at height %d: %w", entity, height, err)
	}

	db.Logger.Debug("Promoted entity data",
		zap.String("entity", entity.String()),
		zap.Uint64("height", height),
		zap.String("database", db.Name))
	return nil
}

// CleanEntityStaging removes promoted rows from the staging table using a lightweight DELETE.
func (db *DB) CleanEntityStaging(ctx context.Context, entity entities.Entity, height uint64) error {
	if !entity.Staged() {
		return fmt.Errorf("entity %q has no staging table", entity)
	}

	query := fmt.Sprintf(`DELETE FROM "%s"."%s" %s WHERE updated_at_block = ?`,
		db.Name, entity.StagingTableName(), db.OnCluster())
	if err := db.Exec(ctx, query, height); err != nil {
		return fmt.Errorf("clean %s staging at height %d: %w", entity, height, err)
	}
	return nil
}

// Compact forces the merges that collapse replaced and tombstoned rows of the given entities
// (all of them when none are given). Missing tables are skipped.
func (db *DB) Compact(ctx context.Context, only ...entities.Entity) ([]entities.Entity, error) {
	if len(only) == 0 {
		only = entities.All()
	}

	compacted := make([]entities.Entity, 0, len(only))
	for _, entity := range only {
		exists, err := db.TableExists(ctx, db.Name, entity.TableName())
		if err != nil {
			return compacted, err
		}
		if !exists {
			db.Logger.Warn("Skipping compaction of missing table",
				zap.String("database", db.Name),
				zap.String("table", entity.TableName()))
			continue
		}
		if err := db.OptimizeTable(ctx, db.Name, entity.TableName(), true); err != nil {
			return compacted, err
		}
		compacted = append(compacted, entity)
	}
	return compacted, nil
}
