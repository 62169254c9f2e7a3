package oracle

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/store"
)

const (
	KindMock = "oracle"

	// DefaultMockPrice is the price a fresh mock oracle starts at.
	DefaultMockPrice uint64 = 50_000
)

// Mock is the single-asset price record used when the market is not wired
// to the aggregator.
type Mock struct {
	Admin         address.Address `json:"admin"`
	Price         uint64          `json:"price"`
	UpdatedHeight uint64          `json:"updated_height"`
}

func (m *Mock) Kind() string { return KindMock }

func (m *Mock) Clone() store.Record {
	cp := *m
	return &cp
}

// NewMock creates a mock oracle owned by admin.
func NewMock(admin address.Address, height uint64) *Mock {
	return &Mock{Admin: admin, Price: DefaultMockPrice, UpdatedHeight: height}
}

// Update sets the price. Only the admin may update.
func (m *Mock) Update(caller address.Address, price, height uint64) error {
	if caller != m.Admin {
		return fault.New(fault.Unauthorized, "oracle admin is %s", m.Admin)
	}
	m.Price = price
	m.UpdatedHeight = height
	return nil
}
