// Package entities provides type-safe constants and helpers for the persisted staking entities.
//
// This package is the single source of truth for entity names used by the ClickHouse store,
// persistence errors and logs.
//
// Usage Example:
//
//	query := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s WHERE updated_at_block = ?",
//	    entities.CollatorAccounts.TableName(),
//	    entities.CollatorAccounts.StagingTableName())
//
// Thread Safety:
//
//	All functions and methods in this package are safe for concurrent use.
package entities

import (
	"fmt"
	"sort"
	"strings"
)

// Entity represents a persisted entity kind (e.g., collator accounts, round records).
//
// Entity values should be treated as immutable constants. Use the package-level
// constants rather than constructing Entity values directly.
type Entity string

// When adding a new entity, add it here and update the allEntities slice below.
const (
	// CollatorAccounts holds the latest bond breakdown of every collator with a non-zero total bond.
	// Production table: collator_accounts
	// Staging table: collator_accounts_staging
	CollatorAccounts Entity = "collator_accounts"

	// DelegatorAccounts holds the delegations of every delegator with a non-zero stake.
	// Production table: delegator_accounts
	// Staging table: delegator_accounts_staging
	DelegatorAccounts Entity = "delegator_accounts"

	// ChainStates holds the chain-wide staking summaries (live record + permanent snapshots).
	ChainStates Entity = "chain_states"

	// RoundRecords holds the settled staking rewards per collator per round.
	RoundRecords Entity = "round_records"
)

// allEntities contains the complete list of all valid entities in the system.
//
// IMPORTANT: When adding a new entity constant above, you MUST also add it to this slice.
var allEntities = []Entity{
	CollatorAccounts,
	DelegatorAccounts,
	ChainStates,
	RoundRecords,
}

// stagedEntities are written through a staging table and promoted per checkpoint.
var stagedEntities = map[Entity]bool{
	CollatorAccounts:  true,
	DelegatorAccounts: true,
}

// entitySet is a pre-computed map for O(1) validation lookups.
var entitySet map[Entity]bool

func init() {
	entitySet = make(map[Entity]bool, len(allEntities))
	for _, e := range allEntities {
		entitySet[e] = true
	}

	// Catch developer errors at startup rather than in production
	for _, e := range allEntities {
		if e == "" {
			panic("entities: empty entity name detected in allEntities")
		}
		if strings.Contains(string(e), "_staging") {
			panic(fmt.Sprintf("entities: entity name %q contains '_staging' - use base name only", e))
		}
		if strings.Contains(string(e), " ") {
			panic(fmt.Sprintf("entities: entity name %q contains whitespace", e))
		}
	}
	for e := range stagedEntities {
		if !entitySet[e] {
			panic(fmt.Sprintf("entities: staged entity %q is not registered", e))
		}
	}
}

// String returns the entity name as a string.
func (e Entity) String() string {
	return string(e)
}

// TableName returns the production table name for this entity.
func (e Entity) TableName() string {
	return string(e)
}

// StagingTableName returns the staging table name for this entity.
//
// Naming Convention: {entity}_staging
func (e Entity) StagingTableName() string {
	return string(e) + "_staging"
}

// Staged reports whether the entity is written through a staging table.
func (e Entity) Staged() bool {
	return stagedEntities[e]
}

// IsValid returns true if this entity is in the list of known entities.
func (e Entity) IsValid() bool {
	return entitySet[e]
}

// MarshalText implements encoding.TextMarshaler for JSON/YAML serialization.
func (e Entity) MarshalText() ([]byte, error) {
	return []byte(e), nil
}

// UnmarshalText implements encoding.TextUnmarshaler and rejects unknown entities.
func (e *Entity) UnmarshalText(text []byte) error {
	entity := Entity(text)
	if !entity.IsValid() {
		return fmt.Errorf("invalid entity: %q", text)
	}
	*e = entity
	return nil
}

// FromString converts a string to an Entity and validates it.
func FromString(s string) (Entity, error) {
	entity := Entity(s)
	if !entity.IsValid() {
		return "", fmt.Errorf("unknown entity %q, valid entities: %s", s, validEntitiesString())
	}
	return entity, nil
}

// All returns a copy of all valid entities.
func All() []Entity {
	result := make([]Entity, len(allEntities))
	copy(result, allEntities)
	return result
}

// AllStrings returns all entity names as strings.
func AllStrings() []string {
	result := make([]string, len(allEntities))
	for i, e := range allEntities {
		result[i] = e.String()
	}
	return result
}

func validEntitiesString() string {
	names := AllStrings()
	sort.Strings(names)
	return strings.Join(names, ", ")
}
