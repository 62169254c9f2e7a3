package oracle

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/store"
)

const KindSpotTable = "multi_oracle"

// AssetPrice is one row of the spot table.
type AssetPrice struct {
	Symbol        string      `json:"symbol"`
	Class         AssetClass  `json:"asset_class"`
	Price         uint64      `json:"price"`
	UpdatedHeight uint64      `json:"updated_height"`
	Source        PriceSource `json:"source"`
	Confidence    uint64      `json:"confidence"`
}

// SpotTable is the admin-maintained multi-asset price table read by the
// betting subsystem. Rows are unique per (symbol, class) and kept in
// insertion order.
type SpotTable struct {
	Admin         address.Address `json:"admin"`
	Entries       []AssetPrice    `json:"entries"`
	UpdatedHeight uint64          `json:"updated_height"`

	index map[AssetKey]int
}

func (t *SpotTable) Kind() string { return KindSpotTable }

func (t *SpotTable) Clone() store.Record {
	cp := *t
	cp.Entries = append([]AssetPrice(nil), t.Entries...)
	cp.index = nil
	return &cp
}

func NewSpotTable(admin address.Address, height uint64) *SpotTable {
	return &SpotTable{Admin: admin, UpdatedHeight: height}
}

func (t *SpotTable) lookup(key AssetKey) (int, bool) {
	if t.index == nil || len(t.index) != len(t.Entries) {
		t.index = make(map[AssetKey]int, len(t.Entries))
		for i, e := range t.Entries {
			k := AssetKey{Symbol: e.Symbol, Class: e.Class}
			if _, dup := t.index[k]; !dup {
				t.index[k] = i
			}
		}
	}
	i, ok := t.index[key]
	return i, ok
}

// Upsert updates the row for (symbol, class) or appends one. Only the admin
// may write.
func (t *SpotTable) Upsert(caller address.Address, symbol string, class AssetClass, price, height uint64) (AssetPrice, error) {
	if caller != t.Admin {
		return AssetPrice{}, fault.New(fault.Unauthorized, "spot oracle admin is %s", t.Admin)
	}
	if err := ValidateAsset(symbol, class); err != nil {
		return AssetPrice{}, err
	}

	key := AssetKey{Symbol: symbol, Class: class}
	if i, ok := t.lookup(key); ok {
		t.Entries[i].Price = price
		t.Entries[i].UpdatedHeight = height
		t.UpdatedHeight = height
		return t.Entries[i], nil
	}

	row := AssetPrice{
		Symbol:        symbol,
		Class:         class,
		Price:         price,
		UpdatedHeight: height,
		Source:        SourceManual,
	}
	t.Entries = append(t.Entries, row)
	t.index[key] = len(t.Entries) - 1
	t.UpdatedHeight = height
	return row, nil
}

// Lookup returns the row for (symbol, class) or AssetNotFound.
func (t *SpotTable) Lookup(symbol string, class AssetClass) (AssetPrice, error) {
	i, ok := t.lookup(AssetKey{Symbol: symbol, Class: class})
	if !ok {
		return AssetPrice{}, fault.New(fault.AssetNotFound, "%s %s", class, symbol)
	}
	return t.Entries[i], nil
}
