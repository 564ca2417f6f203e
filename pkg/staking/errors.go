package staking

import (
	"errors"
	"fmt"

	"github.com/manta-network/stakingx/pkg/db/entities"
)

var (
	// ErrSchemaAbsent is returned by Storage when the queried item does not exist in the
	// runtime at that height. Callers decide whether absence is tolerable.
	ErrSchemaAbsent = errors.New("storage schema absent at height")

	// ErrLedgerOverflow means accumulated rewards no longer fit in 256 bits.
	ErrLedgerOverflow = errors.New("reward ledger overflow")

	// ErrSnapshotRegression is returned when a permanent chain state would go back in time.
	ErrSnapshotRegression = errors.New("chain state snapshot regression")

	// ErrOutOfOrder is returned when blocks are not delivered in ascending height.
	ErrOutOfOrder = errors.New("block delivered out of order")

	// ErrMalformedEvent is returned when a supported event lacks a field or carries an
	// unparsable value.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrRoundRegression is returned when a round transition does not advance the round number.
	ErrRoundRegression = errors.New("round regression")
)

// SchemaVersionError reports an event or storage item in a version this indexer cannot interpret.
type SchemaVersionError struct {
	Item    string
	Version string
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("unsupported schema version %q for %s", e.Version, e.Item)
}

// StorageUnavailableError reports a point lookup that produced no usable value at a height.
type StorageUnavailableError struct {
	Item   string
	Key    string
	Height uint64
	Err    error
}

func (e *StorageUnavailableError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s unavailable at height %d: %v", e.Item, e.Height, e.Err)
	}
	return fmt.Sprintf("storage %s[%s] unavailable at height %d: %v", e.Item, e.Key, e.Height, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed checkpoint write. Applied lists the entities whose
// writes were confirmed before the failure.
type PersistenceError struct {
	Entity  entities.Entity
	Applied []entities.Entity
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s (applied: %v): %v", e.Entity, e.Applied, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Partial reports whether some entities were written before the failure.
func (e *PersistenceError) Partial() bool {
	return len(e.Applied) > 0
}

// IsFatal reports whether err must halt processing instead of being retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var schemaErr *SchemaVersionError
	if errors.As(err, &schemaErr) {
		return true
	}
	for _, fatal := range []error{ErrLedgerOverflow, ErrSnapshotRegression, ErrOutOfOrder, ErrMalformedEvent, ErrRoundRegression} {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}

// unavailable wraps err as a StorageUnavailableError unless it is a schema version error.
func unavailable(item, key string, height uint64, err error) error {
	var schemaErr *SchemaVersionError
	if errors.As(err, &schemaErr) {
		return err
	}
	var unavailableErr *StorageUnavailableError
	if errors.As(err, &unavailableErr) {
		return err
	}
	return &StorageUnavailableError{Item: item, Key: key, Height: height, Err: err}
}
