package event_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CfdLedger/internal/address"
	"CfdLedger/internal/amm"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/oracle"
	"CfdLedger/internal/state"
)

var (
	requestID = uuid.MustParse("0f7d1c9e-52a4-4b8e-9f36-1d2c3b4a5e6f")
	signer    = address.FromSeed("alice")
)

func meta() event.Meta {
	return event.Meta{RequestID: requestID, Signer: signer}
}

// ===================================
// Decode
// ===================================

func TestDecode_OpenPosition(t *testing.T) {
	payload := []byte(`{"request_id":"` + requestID.String() + `","signer":"` + signer.String() +
		`","side":"short","size":300000000,"leverage":3}`)

	cmd, err := event.Decode(event.CommandOpenPosition, payload)
	require.NoError(t, err)

	open, ok := cmd.(*event.OpenPosition)
	require.True(t, ok)
	assert.Equal(t, requestID, open.RequestID)
	assert.Equal(t, signer, open.Signer)
	assert.Equal(t, state.SideShort, open.Side)
	assert.Equal(t, uint64(300_000_000), open.Size)
	assert.Equal(t, uint8(3), open.Leverage)
}

func TestDecode_UpdateFeedEnums(t *testing.T) {
	payload := []byte(`{"request_id":"` + requestID.String() + `","signer":"` + signer.String() +
		`","symbol":"BTC","asset_class":"Crypto","slot":"C","source":"Binance","price":101,"price_sequence":7}`)

	cmd, err := event.Decode(event.CommandUpdateFeed, payload)
	require.NoError(t, err)

	u := cmd.(*event.UpdateFeed)
	assert.Equal(t, oracle.AssetClassCrypto, u.Class)
	assert.Equal(t, oracle.SlotC, u.Slot)
	assert.Equal(t, oracle.SourceBinance, u.Source)
	assert.Equal(t, uint64(7), u.PriceSequence)
}

func TestDecode_UnknownAssetClassIsFault(t *testing.T) {
	payload := []byte(`{"request_id":"` + requestID.String() + `","signer":"` + signer.String() +
		`","symbol":"BTC","asset_class":"Tulips","price":1}`)

	_, err := event.Decode(event.CommandUpdateAssetPrice, payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.InvalidAssetType))
}

func TestDecode_RejectsMissingHeader(t *testing.T) {
	_, err := event.Decode(event.CommandClaimFees, []byte(`{"signer":"`+signer.String()+`"}`))
	assert.ErrorContains(t, err, "missing request_id")

	_, err = event.Decode(event.CommandClaimFees, []byte(`{"request_id":"`+requestID.String()+`"}`))
	assert.ErrorContains(t, err, "missing signer")
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := event.Decode("fund_market", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown command type")
	assert.False(t, event.Known("fund_market"))
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := event.Decode(event.CommandSwap, []byte(`{"amount_in":`))
	assert.Error(t, err)
}

// ===================================
// Encode and keys
// ===================================

func TestEncodeDecode_Swap(t *testing.T) {
	in := &event.Swap{Meta: meta(), AmountIn: 1000, MinAmountOut: 900, Direction: amm.ShortToLong}

	data, err := event.Encode(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"direction":"short_to_long"`)

	out, err := event.Decode(event.CommandSwap, data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnvelope_DecodesPayload(t *testing.T) {
	cmd := &event.CreateProposal{Meta: meta(), Kind: governance.TreasurySpend, Title: "fund audit"}
	data, err := event.Encode(cmd)
	require.NoError(t, err)

	env := event.Envelope{CommandType: cmd.Type(), Payload: data}
	decoded, err := env.Decode()
	require.NoError(t, err)
	assert.Equal(t, cmd, decoded)
}

func TestIdempotencyKey(t *testing.T) {
	cmd := &event.Stake{Meta: meta(), Amount: 5}
	assert.Equal(t, "stake:"+requestID.String(), event.IdempotencyKey(cmd))
}

func TestTypes_SortedAndConstructible(t *testing.T) {
	types := event.Types()
	require.Len(t, types, 35)
	for i := 1; i < len(types); i++ {
		assert.Less(t, types[i-1], types[i])
	}
	for _, ct := range types {
		cmd, err := event.New(ct)
		require.NoError(t, err)
		assert.Equal(t, ct, cmd.Type())
	}
}
