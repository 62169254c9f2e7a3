package core

import (
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
)

// BalanceOutput is returned for deposit and withdraw.
type BalanceOutput struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// externalAsset resolves an asset that may cross the ledger boundary.
// Position, LP and staking receipt tokens only exist inside the ledger.
func externalAsset(name string) (ledger.AssetID, error) {
	id, ok := ledger.GetAssetID(name)
	if !ok {
		return 0, fault.New(fault.InvalidAssetType, "unknown asset %q", name)
	}
	switch id {
	case ledger.AssetUSDC, ledger.AssetCaden, ledger.AssetSlot:
		return id, nil
	default:
		return 0, fault.New(fault.InvalidAssetType, "%s cannot be deposited or withdrawn", id)
	}
}

func (c *DeterministicCore) handleDeposit(x *execution, e *event.Deposit) (any, error) {
	if err := c.requireOperator(x); err != nil {
		return nil, err
	}
	asset, err := externalAsset(e.Asset)
	if err != nil {
		return nil, err
	}
	if e.Amount == 0 {
		return nil, fault.New(fault.ZeroAmount, "deposit")
	}
	to := ledger.UserAccount(e.Owner, asset)
	if err := x.ledger.Mint(to, e.Amount, x.signer); err != nil {
		return nil, err
	}
	return BalanceOutput{Account: to.AccountPath(), Balance: x.ledger.Balance(to)}, nil
}

func (c *DeterministicCore) handleWithdraw(x *execution, e *event.Withdraw) (any, error) {
	asset, err := externalAsset(e.Asset)
	if err != nil {
		return nil, err
	}
	if e.Amount == 0 {
		return nil, fault.New(fault.ZeroAmount, "withdrawal")
	}
	from := ledger.UserAccount(x.signer, asset)
	if err := x.ledger.Burn(from, e.Amount, x.signer); err != nil {
		return nil, err
	}
	return BalanceOutput{Account: from.AccountPath(), Balance: x.ledger.Balance(from)}, nil
}
