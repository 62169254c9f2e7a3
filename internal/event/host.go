package event

import "CfdLedger/internal/address"

// Deposit credits an external deposit to Owner by minting Asset.
// Operator only.
type Deposit struct {
	Meta
	Owner  address.Address `json:"owner"`
	Asset  string          `json:"asset"`
	Amount uint64          `json:"amount"`
}

func (*Deposit) Type() CommandType { return CommandDeposit }

// Withdraw burns Asset from the signer for an external withdrawal.
type Withdraw struct {
	Meta
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

func (*Withdraw) Type() CommandType { return CommandWithdraw }
