package staking

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	collatorA  = AccountID("0xaa00000000000000000000000000000000000000000000000000000000000001")
	collatorB  = AccountID("0xbb00000000000000000000000000000000000000000000000000000000000002")
	delegatorX = AccountID("0xcc00000000000000000000000000000000000000000000000000000000000003")
	delegatorY = AccountID("0xdd00000000000000000000000000000000000000000000000000000000000004")
)

func ev(name string, fields map[string]string) Event {
	return Event{Name: name, Version: V3402, Fields: fields}
}

func rewarded(account AccountID, amount string) Event {
	return ev("Rewarded", map[string]string{"account": string(account), "rewards": amount})
}

func newRound(start, round string) Event {
	return ev("NewRound", map[string]string{"startingBlock": start, "round": round})
}

func TestClassify_CollatorEvents(t *testing.T) {
	cases := map[string]string{
		"JoinedCollatorCandidates": "account",
		"CollatorChosen":           "collatorAccount",
		"CandidateBondedMore":      "candidate",
		"CandidateWentOffline":     "candidate",
		"CandidateLeft":            "exCandidate",
	}
	for name, field := range cases {
		t.Run(name, func(t *testing.T) {
			effect, err := Classify(ev(name, map[string]string{field: "0xAA00000000000000000000000000000000000000000000000000000000000001"}))
			require.NoError(t, err)
			assert.Equal(t, EffectMarkDirty, effect.Kind)
			assert.Equal(t, []AccountID{collatorA}, effect.Collators)
			assert.Empty(t, effect.Delegators)
		})
	}
}

func TestClassify_DelegationEvents(t *testing.T) {
	effect, err := Classify(ev("DelegationRevoked", map[string]string{
		"delegator":      string(delegatorX),
		"candidate":      string(collatorA),
		"unstakedAmount": "10",
	}))
	require.NoError(t, err)
	assert.Equal(t, []AccountID{collatorA}, effect.Collators)
	assert.Equal(t, []AccountID{delegatorX}, effect.Delegators)

	// CancelledDelegationRequest names the collator differently
	effect, err = Classify(ev("CancelledDelegationRequest", map[string]string{
		"delegator": string(delegatorY),
		"collator":  string(collatorB),
	}))
	require.NoError(t, err)
	assert.Equal(t, []AccountID{collatorB}, effect.Collators)
	assert.Equal(t, []AccountID{delegatorY}, effect.Delegators)

	for _, name := range []string{"DelegatorExitScheduled", "DelegatorLeft", "DelegatorExitCancelled"} {
		effect, err = Classify(ev(name, map[string]string{"delegator": string(delegatorX)}))
		require.NoError(t, err, name)
		assert.Empty(t, effect.Collators, name)
		assert.Equal(t, []AccountID{delegatorX}, effect.Delegators, name)
	}
}

func TestClassify_RewardAndRound(t *testing.T) {
	effect, err := Classify(rewarded(collatorA, "340282366920938463463374607431768211455"))
	require.NoError(t, err)
	assert.Equal(t, EffectReward, effect.Kind)
	assert.Equal(t, collatorA, effect.Account)
	assert.Equal(t, "340282366920938463463374607431768211455", effect.Amount.Dec())

	effect, err = Classify(newRound("1000", "7"))
	require.NoError(t, err)
	assert.Equal(t, EffectRoundTransition, effect.Kind)
	assert.Equal(t, RoundInfo{Number: 7, StartBlock: 1000}, effect.Round)
}

func TestClassify_UnknownVersionIsFatal(t *testing.T) {
	e := rewarded(collatorA, "1")
	e.Version = "v4000"

	_, err := Classify(e)
	var schemaErr *SchemaVersionError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "ParachainStaking.Rewarded", schemaErr.Item)
	assert.Equal(t, "v4000", schemaErr.Version)
	assert.True(t, IsFatal(err))

	_, err = Classify(ev("CompoundSet", map[string]string{}))
	require.True(t, errors.As(err, &schemaErr))
}

func TestClassify_MalformedFieldsAreFatal(t *testing.T) {
	cases := map[string]Event{
		"missing candidate":  ev("Delegation", map[string]string{"delegator": string(delegatorX)}),
		"missing rewards":    ev("Rewarded", map[string]string{"account": string(collatorA)}),
		"bad starting block": newRound("abc", "1"),
		"round overflow":     newRound("10", "4294967296"),
		"negative reward":    rewarded(collatorA, "-5"),
	}
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Classify(e)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedEvent))
			assert.True(t, IsFatal(err))
		})
	}
}

func TestCheckCoverage(t *testing.T) {
	advertised := map[string][]string{}
	for _, name := range EventNames() {
		advertised[name] = []string{V3402}
	}
	require.NoError(t, CheckCoverage(advertised))

	advertised["NewRound"] = append(advertised["NewRound"], "v4100")
	err := CheckCoverage(advertised)
	var schemaErr *SchemaVersionError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "v4100", schemaErr.Version)
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("0x00ff")
	require.NoError(t, err)
	assert.Equal(t, uint64(255), v.Uint64())

	v, err = ParseAmount("1000000000000")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), v.Uint64())

	v, err = ParseAmount("0x0")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = ParseAmount("0007")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v.Uint64())

	_, err = ParseAmount("")
	require.Error(t, err)

	_, err = ParseAmount("12ab")
	require.Error(t, err)

	// 2^256
	_, err = ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639936")
	require.Error(t, err)
	_, err = ParseAmount("0x1" + strings.Repeat("0", 64))
	require.Error(t, err)
}
