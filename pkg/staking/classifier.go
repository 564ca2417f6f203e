package staking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// V3402 is the ParachainStaking event schema introduced with runtime 3402.
const V3402 = "v3402"

// Pallet is the runtime pallet whose events are classified.
const Pallet = "ParachainStaking"

// EffectKind enumerates the effect variants.
type EffectKind uint8

const (
	EffectMarkDirty EffectKind = iota + 1
	EffectReward
	EffectRoundTransition
)

func (k EffectKind) String() string {
	switch k {
	case EffectMarkDirty:
		return "mark_dirty"
	case EffectReward:
		return "reward"
	case EffectRoundTransition:
		return "round_transition"
	default:
		return "unknown"
	}
}

// Effect is the classification of one event. Only the fields of Kind are populated.
type Effect struct {
	Kind EffectKind

	// EffectMarkDirty
	Collators  []AccountID
	Delegators []AccountID

	// EffectReward
	Account AccountID
	Amount  *uint256.Int

	// EffectRoundTransition
	Round RoundInfo
}

type classifyFunc func(ev Event) (Effect, error)

// eventSchemas is the closed set of supported (event, version) pairs.
var eventSchemas = map[string]map[string]classifyFunc{
	// collator lifecycle
	"JoinedCollatorCandidates":   {V3402: collatorField("account")},
	"CollatorChosen":             {V3402: collatorField("collatorAccount")},
	"CandidateBondLessRequested": {V3402: collatorField("candidate")},
	"CandidateBondedMore":        {V3402: collatorField("candidate")},
	"CandidateBondedLess":        {V3402: collatorField("candidate")},
	"CandidateWentOffline":       {V3402: collatorField("candidate")},
	"CandidateBackOnline":        {V3402: collatorField("candidate")},
	"CandidateScheduledExit":     {V3402: collatorField("candidate")},
	"CancelledCandidateExit":     {V3402: collatorField("candidate")},
	"CancelledCandidateBondLess": {V3402: collatorField("candidate")},
	"CandidateLeft":              {V3402: collatorField("exCandidate")},

	// delegation lifecycle
	"DelegationDecreaseScheduled":   {V3402: delegationFields("delegator", "candidate")},
	"DelegationIncreased":           {V3402: delegationFields("delegator", "candidate")},
	"DelegationDecreased":           {V3402: delegationFields("delegator", "candidate")},
	"DelegationRevocationScheduled": {V3402: delegationFields("delegator", "candidate")},
	"DelegationRevoked":             {V3402: delegationFields("delegator", "candidate")},
	"DelegationKicked":              {V3402: delegationFields("delegator", "candidate")},
	"Delegation":                    {V3402: delegationFields("delegator", "candidate")},
	"DelegatorLeftCandidate":        {V3402: delegationFields("delegator", "candidate")},
	"CancelledDelegationRequest":    {V3402: delegationFields("delegator", "collator")},
	"DelegatorExitScheduled":        {V3402: delegatorField("delegator")},
	"DelegatorLeft":                 {V3402: delegatorField("delegator")},
	"DelegatorExitCancelled":        {V3402: delegatorField("delegator")},

	// payouts and rounds
	"Rewarded": {V3402: classifyRewarded},
	"NewRound": {V3402: classifyNewRound},
}

// EventNames returns the supported event names in lexical order.
func EventNames() []string {
	names := make([]string, 0, len(eventSchemas))
	for name := range eventSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Classify maps a decoded event to its effect. Unsupported names or versions fail with
// *SchemaVersionError, never silently.
func Classify(ev Event) (Effect, error) {
	versions, ok := eventSchemas[ev.Name]
	if !ok {
		return Effect{}, &SchemaVersionError{Item: Pallet + "." + ev.Name, Version: ev.Version}
	}
	fn, ok := versions[ev.Version]
	if !ok {
		return Effect{}, &SchemaVersionError{Item: Pallet + "." + ev.Name, Version: ev.Version}
	}
	return fn(ev)
}

// CheckCoverage verifies that every event version the decoder advertises can be classified.
func CheckCoverage(advertised map[string][]string) error {
	for name, versions := range advertised {
		for _, version := range versions {
			if _, ok := eventSchemas[name][version]; !ok {
				return &SchemaVersionError{Item: Pallet + "." + name, Version: version}
			}
		}
	}
	return nil
}

func collatorField(field string) classifyFunc {
	return func(ev Event) (Effect, error) {
		id, err := accountField(ev, field)
		if err != nil {
			return Effect{}, err
		}
		return Effect{Kind: EffectMarkDirty, Collators: []AccountID{id}}, nil
	}
}

func delegatorField(field string) classifyFunc {
	return func(ev Event) (Effect, error) {
		id, err := accountField(ev, field)
		if err != nil {
			return Effect{}, err
		}
		return Effect{Kind: EffectMarkDirty, Delegators: []AccountID{id}}, nil
	}
}

func delegationFields(delegatorName, collatorName string) classifyFunc {
	return func(ev Event) (Effect, error) {
		delegator, err := accountField(ev, delegatorName)
		if err != nil {
			return Effect{}, err
		}
		collator, err := accountField(ev, collatorName)
		if err != nil {
			return Effect{}, err
		}
		return Effect{
			Kind:       EffectMarkDirty,
			Collators:  []AccountID{collator},
			Delegators: []AccountID{delegator},
		}, nil
	}
}

func classifyRewarded(ev Event) (Effect, error) {
	account, err := accountField(ev, "account")
	if err != nil {
		return Effect{}, err
	}
	amount, err := amountField(ev, "rewards")
	if err != nil {
		return Effect{}, err
	}
	return Effect{Kind: EffectReward, Account: account, Amount: amount}, nil
}

func classifyNewRound(ev Event) (Effect, error) {
	start, err := uintField(ev, "startingBlock", 64)
	if err != nil {
		return Effect{}, err
	}
	round, err := uintField(ev, "round", 32)
	if err != nil {
		return Effect{}, err
	}
	return Effect{Kind: EffectRoundTransition, Round: RoundInfo{Number: uint32(round), StartBlock: start}}, nil
}

func accountField(ev Event, field string) (AccountID, error) {
	raw, ok := ev.Fields[field]
	if !ok || raw == "" {
		return "", missingField(ev, field)
	}
	return NormalizeAccountID(raw), nil
}

func amountField(ev Event, field string) (*uint256.Int, error) {
	raw, ok := ev.Fields[field]
	if !ok {
		return nil, missingField(ev, field)
	}
	v, err := ParseAmount(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: field %q: %v", ErrMalformedEvent, Pallet, ev.Name, field, err)
	}
	return v, nil
}

func uintField(ev Event, field string, bits int) (uint64, error) {
	raw, ok := ev.Fields[field]
	if !ok {
		return 0, missingField(ev, field)
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		return 0, fmt.Errorf("%w: %s.%s: field %q: %v", ErrMalformedEvent, Pallet, ev.Name, field, err)
	}
	return v, nil
}

func missingField(ev Event, field string) error {
	return fmt.Errorf("%w: %s.%s: missing field %q", ErrMalformedEvent, Pallet, ev.Name, field)
}

// ParseAmount parses a base-10 or 0x-hex balance.
func ParseAmount(raw string) (*uint256.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty amount")
	}
	if len(raw) > 2 && (raw[:2] == "0x" || raw[:2] == "0X") {
		// FromHex rejects leading zeros
		digits := strings.TrimLeft(raw[2:], "0")
		if digits == "" {
			return new(uint256.Int), nil
		}
		v, err := uint256.FromHex("0x" + digits)
		if err != nil {
			return nil, fmt.Errorf("parse amount %q: %w", raw, err)
		}
		return v, nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
