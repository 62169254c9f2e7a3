// Package fault defines the typed, operation-aborting failures raised by the
// clearing components. A fault is never retried inside the core: the command
// that raised it is discarded with no state change.
package fault

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Kind classifies a fault for callers and transports.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindState
	KindValidation
	KindEconomic
	KindArithmetic
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindEconomic:
		return "economic"
	case KindArithmetic:
		return "arithmetic"
	default:
		return "unknown"
	}
}

// Code names a single fault condition. Codes are comparable with errors.Is.
type Code uint16

const (
	codeInvalid Code = iota

	// Authorization
	Unauthorized

	// State
	MarketAlreadySettled
	MarketNotActive
	MarketNotSettled
	PositionAlreadyLiquidated
	SlotNotTradable
	SlotExpired
	BetAlreadySettled
	PoolInactive
	ProposalNotActive
	VotingPeriodEnded
	VotingPeriodNotEnded
	ProposalNotPassed
	ProposalAlreadyExecuted
	ExecutionDelayNotMet
	NotInstantSettlement
	StalePrice
	RecordExists
	RecordNotFound

	// Validation
	InvalidLeverage
	InvalidAssetSymbol
	InvalidAssetType
	InvalidSettlementTime
	InvalidSettlementSlot
	InvalidBetId
	InvalidFeeRate
	InvalidPriceSource
	InvalidPriceData
	TitleTooLong
	DescriptionTooLong
	ZeroAmount
	AssetNotFound
	InvalidAddress
	InvalidParameter

	// Economic
	PositionHealthy
	SlippageExceeded
	InsufficientOutputAmount
	NoFeesToClaim
	BetAmountTooSmall
	InsufficientStakeForProposal
	NoVotingPower
	InsufficientBalance

	// Arithmetic
	MathOverflow

	codeCount
)

type codeInfo struct {
	name    string
	kind    Kind
	message string
}

var codeTable = [codeCount]codeInfo{
	Unauthorized: {"Unauthorized", KindAuthorization, "caller is not authorized for this record"},

	MarketAlreadySettled:      {"MarketAlreadySettled", KindState, "market already settled"},
	MarketNotActive:           {"MarketNotActive", KindState, "market is not active"},
	MarketNotSettled:          {"MarketNotSettled", KindState, "market is not settled"},
	PositionAlreadyLiquidated: {"PositionAlreadyLiquidated", KindState, "position already liquidated"},
	SlotNotTradable:           {"SlotNotTradable", KindState, "settlement slot is not tradable"},
	SlotExpired:               {"SlotExpired", KindState, "settlement slot is expired or inactive"},
	BetAlreadySettled:         {"BetAlreadySettled", KindState, "bet already settled"},
	PoolInactive:              {"PoolInactive", KindState, "pool is not active"},
	ProposalNotActive:         {"ProposalNotActive", KindState, "proposal is not active"},
	VotingPeriodEnded:         {"VotingPeriodEnded", KindState, "voting period has ended"},
	VotingPeriodNotEnded:      {"VotingPeriodNotEnded", KindState, "voting period has not ended"},
	ProposalNotPassed:         {"ProposalNotPassed", KindState, "proposal has not passed"},
	ProposalAlreadyExecuted:   {"ProposalAlreadyExecuted", KindState, "proposal already executed"},
	ExecutionDelayNotMet:      {"ExecutionDelayNotMet", KindState, "execution delay not met"},
	NotInstantSettlement:      {"NotInstantSettlement", KindState, "slot is not an instant settlement slot"},
	StalePrice:                {"StalePrice", KindState, "price feed is stale"},
	RecordExists:              {"RecordExists", KindState, "record already exists"},
	RecordNotFound:            {"RecordNotFound", KindState, "record not found"},

	InvalidLeverage:       {"InvalidLeverage", KindValidation, "leverage must be between 1 and 3"},
	InvalidAssetSymbol:    {"InvalidAssetSymbol", KindValidation, "asset symbol too long"},
	InvalidAssetType:      {"InvalidAssetType", KindValidation, "unknown asset class"},
	InvalidSettlementTime: {"InvalidSettlementTime", KindValidation, "settlement offset out of range"},
	InvalidSettlementSlot: {"InvalidSettlementSlot", KindValidation, "settlement slot does not match"},
	InvalidBetId:          {"InvalidBetId", KindValidation, "bet id does not match"},
	InvalidFeeRate:        {"InvalidFeeRate", KindValidation, "fee rate out of range"},
	InvalidPriceSource:    {"InvalidPriceSource", KindValidation, "price source not accepted"},
	InvalidPriceData:      {"InvalidPriceData", KindValidation, "price data is invalid"},
	TitleTooLong:          {"TitleTooLong", KindValidation, "proposal title too long"},
	DescriptionTooLong:    {"DescriptionTooLong", KindValidation, "proposal description too long"},
	ZeroAmount:            {"ZeroAmount", KindValidation, "amount must be positive"},
	AssetNotFound:         {"AssetNotFound", KindValidation, "asset not found in price table"},
	InvalidAddress:        {"InvalidAddress", KindValidation, "address is not valid base58"},
	InvalidParameter:      {"InvalidParameter", KindValidation, "request parameter is invalid"},

	PositionHealthy:              {"PositionHealthy", KindEconomic, "position is healthy"},
	SlippageExceeded:             {"SlippageExceeded", KindEconomic, "slippage tolerance exceeded"},
	InsufficientOutputAmount:     {"InsufficientOutputAmount", KindEconomic, "insufficient output amount"},
	NoFeesToClaim:                {"NoFeesToClaim", KindEconomic, "no fees to claim"},
	BetAmountTooSmall:            {"BetAmountTooSmall", KindEconomic, "bet amount below minimum"},
	InsufficientStakeForProposal: {"InsufficientStakeForProposal", KindEconomic, "insufficient stake to create proposal"},
	NoVotingPower:                {"NoVotingPower", KindEconomic, "no voting power"},
	InsufficientBalance:          {"InsufficientBalance", KindEconomic, "insufficient balance"},

	MathOverflow: {"MathOverflow", KindArithmetic, "arithmetic overflow"},
}

func (c Code) info() codeInfo {
	if c == codeInvalid || c >= codeCount {
		return codeInfo{name: fmt.Sprintf("Code(%d)", uint16(c)), kind: KindUnknown, message: "unknown fault"}
	}
	return codeTable[c]
}

// String returns the fault name, e.g. "SlippageExceeded".
func (c Code) String() string { return c.info().name }

// Kind returns the classification of the code.
func (c Code) Kind() Kind { return c.info().kind }

// Error implements error so a bare code can be returned and matched.
func (c Code) Error() string { return c.info().message }

// Error is a fault with call-site detail.
type Error struct {
	Code   Code
	Detail string
}

// New builds a fault with a formatted detail message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Code.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Code }

// Kind returns the classification of the wrapped code.
func (e *Error) Kind() Kind { return e.Code.Kind() }

// CodeOf extracts the fault code from err, if any.
func CodeOf(err error) (Code, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code, true
	}
	var c Code
	if errors.As(err, &c) {
		return c, true
	}
	return codeInvalid, false
}

// KindOf classifies err. Non-fault errors are KindUnknown.
func KindOf(err error) Kind {
	code, ok := CodeOf(err)
	if !ok {
		return KindUnknown
	}
	return code.Kind()
}

// IsFault reports whether err carries a fault code. Errors that are not
// faults are infrastructure failures and may be retried by the transport.
func IsFault(err error) bool {
	_, ok := CodeOf(err)
	return ok
}

// GRPCCode maps a fault to the status code transports report.
func GRPCCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	code, ok := CodeOf(err)
	if !ok {
		return codes.Internal
	}
	if code == RecordNotFound || code == AssetNotFound {
		return codes.NotFound
	}
	if code == RecordExists {
		return codes.AlreadyExists
	}
	switch code.Kind() {
	case KindAuthorization:
		return codes.PermissionDenied
	case KindState:
		return codes.FailedPrecondition
	case KindValidation:
		return codes.InvalidArgument
	case KindEconomic:
		return codes.Aborted
	case KindArithmetic:
		return codes.OutOfRange
	default:
		return codes.Unknown
	}
}
