package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"CfdLedger/internal/fault"
)

func TestErrorMatchesCode(t *testing.T) {
	err := fault.New(fault.SlippageExceeded, "out %d < min %d", 10, 11)
	wrapped := fmt.Errorf("swap: %w", err)

	assert.True(t, errors.Is(wrapped, fault.SlippageExceeded))
	assert.False(t, errors.Is(wrapped, fault.InsufficientOutputAmount))
	assert.Equal(t, fault.KindEconomic, fault.KindOf(wrapped))
	assert.Equal(t, "SlippageExceeded: out 10 < min 11", err.Error())
}

func TestBareCode(t *testing.T) {
	var err error = fault.Unauthorized
	code, ok := fault.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, fault.Unauthorized, code)
	assert.Equal(t, fault.KindAuthorization, fault.KindOf(err))
}

func TestKinds(t *testing.T) {
	cases := map[fault.Code]fault.Kind{
		fault.Unauthorized:              fault.KindAuthorization,
		fault.MarketNotActive:           fault.KindState,
		fault.PositionAlreadyLiquidated: fault.KindState,
		fault.InvalidLeverage:           fault.KindValidation,
		fault.TitleTooLong:              fault.KindValidation,
		fault.PositionHealthy:           fault.KindEconomic,
		fault.NoFeesToClaim:             fault.KindEconomic,
		fault.MathOverflow:              fault.KindArithmetic,
	}
	for code, want := range cases {
		if got := code.Kind(); got != want {
			t.Errorf("%s: expected kind %s, got %s", code, want, got)
		}
	}
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.OK, fault.GRPCCode(nil))
	assert.Equal(t, codes.Internal, fault.GRPCCode(errors.New("db down")))
	assert.Equal(t, codes.PermissionDenied, fault.GRPCCode(fault.Unauthorized))
	assert.Equal(t, codes.FailedPrecondition, fault.GRPCCode(fault.MarketNotSettled))
	assert.Equal(t, codes.InvalidArgument, fault.GRPCCode(fault.InvalidFeeRate))
	assert.Equal(t, codes.Aborted, fault.GRPCCode(fault.SlippageExceeded))
	assert.Equal(t, codes.OutOfRange, fault.GRPCCode(fault.MathOverflow))
	assert.Equal(t, codes.AlreadyExists, fault.GRPCCode(fault.New(fault.RecordExists, "vote")))
	assert.Equal(t, codes.NotFound, fault.GRPCCode(fault.AssetNotFound))
}

func TestIsFault(t *testing.T) {
	assert.True(t, fault.IsFault(fault.New(fault.ZeroAmount, "")))
	assert.False(t, fault.IsFault(errors.New("plain")))
}
