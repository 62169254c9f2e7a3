// Package oracle maintains the price inputs of the clearing engine: a
// single-price mock, a multi-asset spot table and a three-source median
// aggregator.
package oracle

import (
	"fmt"
	"strings"

	"CfdLedger/internal/fault"
)

// MaxSymbolLength bounds asset symbols.
const MaxSymbolLength = 10

// AssetClass categorizes an asset symbol.
type AssetClass uint8

const (
	AssetClassStock AssetClass = iota
	AssetClassCrypto
	AssetClassBond
	AssetClassCommodity
	AssetClassForex
	assetClassCount
)

var assetClassNames = [...]string{"Stock", "Crypto", "Bond", "Commodity", "Forex"}

func (c AssetClass) String() string {
	if c < assetClassCount {
		return assetClassNames[c]
	}
	return fmt.Sprintf("AssetClass(%d)", uint8(c))
}

func (c AssetClass) Valid() bool { return c < assetClassCount }

func (c AssetClass) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fault.New(fault.InvalidAssetType, "asset class %d", uint8(c))
	}
	return []byte(c.String()), nil
}

func (c *AssetClass) UnmarshalText(text []byte) error {
	parsed, err := ParseAssetClass(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseAssetClass accepts a class name, case-insensitively.
func ParseAssetClass(s string) (AssetClass, error) {
	for i, name := range assetClassNames {
		if strings.EqualFold(s, name) {
			return AssetClass(i), nil
		}
	}
	return 0, fault.New(fault.InvalidAssetType, "unknown asset class %q", s)
}

// PriceSource names where an observation came from.
type PriceSource uint8

const (
	SourcePyth PriceSource = iota
	SourceSwitchboard
	SourceChainlink
	SourceCoinGecko
	SourceTwelveData
	SourceBinance
	SourceManual
	SourceAggregated
	priceSourceCount
)

var priceSourceNames = [...]string{
	"Pyth", "Switchboard", "Chainlink", "CoinGecko", "TwelveData", "Binance", "Manual", "Aggregated",
}

func (s PriceSource) String() string {
	if s < priceSourceCount {
		return priceSourceNames[s]
	}
	return fmt.Sprintf("PriceSource(%d)", uint8(s))
}

func (s PriceSource) MarshalText() ([]byte, error) {
	if s >= priceSourceCount {
		return nil, fault.New(fault.InvalidPriceSource, "price source %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *PriceSource) UnmarshalText(text []byte) error {
	parsed, err := ParsePriceSource(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParsePriceSource accepts a source name, case-insensitively.
func ParsePriceSource(s string) (PriceSource, error) {
	for i, name := range priceSourceNames {
		if strings.EqualFold(s, name) {
			return PriceSource(i), nil
		}
	}
	return 0, fault.New(fault.InvalidPriceSource, "unknown price source %q", s)
}

// IsExternal reports whether s may feed the external (third) aggregator slot.
func (s PriceSource) IsExternal() bool {
	return s == SourceCoinGecko || s == SourceTwelveData || s == SourceBinance
}

// AssetKey identifies a priced asset.
type AssetKey struct {
	Symbol string
	Class  AssetClass
}

func (k AssetKey) String() string { return k.Class.String() + ":" + k.Symbol }

// ValidateAsset checks a symbol and class.
func ValidateAsset(symbol string, class AssetClass) error {
	if symbol == "" || len(symbol) > MaxSymbolLength {
		return fault.New(fault.InvalidAssetSymbol, "symbol %q must be 1-%d bytes", symbol, MaxSymbolLength)
	}
	if !class.Valid() {
		return fault.New(fault.InvalidAssetType, "asset class %d", uint8(class))
	}
	return nil
}
