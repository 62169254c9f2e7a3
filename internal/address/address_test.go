package address_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
)

var program = address.FromSeed("cfd-ledger-test-program")

func TestDerive_DeterministicAndOffCurve(t *testing.T) {
	a1, bump1, err := address.Derive(program, []byte("market"))
	require.NoError(t, err)
	a2, bump2, err := address.Derive(program, []byte("market"))
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, bump1, bump2)
	assert.False(t, address.OnCurve(a1[:]))

	again, err := address.CreateWithBump(program, bump1, []byte("market"))
	require.NoError(t, err)
	assert.Equal(t, a1, again)
}

func TestDerive_SeedLimits(t *testing.T) {
	long := make([]byte, address.MaxSeedSize+1)
	_, _, err := address.Derive(program, long)
	assert.ErrorIs(t, err, address.ErrSeedTooLong)

	seeds := make([][]byte, address.MaxSeeds)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, _, err = address.Derive(program, seeds...)
	assert.ErrorIs(t, err, address.ErrTooManySeeds)
}

func TestDeriver_DistinctKeys(t *testing.T) {
	d := address.NewDeriver(program)
	alice := address.FromSeed("alice")
	bob := address.FromSeed("bob")

	keys := []address.Address{
		d.Market(), d.Oracle(), d.SpotOracle(), d.Aggregator(), d.Pool(), d.Governance(), d.Heatmap(),
		d.Position(alice), d.Position(bob),
		d.LPPosition(alice),
		d.Slot(1), d.Slot(2),
		d.Bet(alice, 1), d.Bet(bob, 1),
		d.Proposal(0), d.Proposal(1),
		d.Vote(0, alice), d.Vote(1, alice), d.Vote(0, bob),
		d.StakingPosition(alice),
		d.Vault(address.VaultFees), d.Vault(address.VaultBuyback),
	}
	seen := make(map[address.Address]int)
	for i, k := range keys {
		if j, dup := seen[k]; dup {
			t.Errorf("key %d collides with key %d: %s", i, j, k)
		}
		seen[k] = i
	}
}

func TestParseRoundTrip(t *testing.T) {
	a := address.FromSeed("alice")
	parsed, err := address.Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)

	_, err = address.Parse("not-base58-0OIl")
	assert.Error(t, err)

	_, err = address.Parse("3mJr7AoUXx2Wqd")
	assert.Error(t, err, "short key must be rejected")
}

func TestJSONText(t *testing.T) {
	type wrapper struct {
		Owner address.Address `json:"owner"`
	}
	in := wrapper{Owner: address.FromSeed("bob")}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), in.Owner.String())

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
