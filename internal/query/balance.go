package query

import (
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/store"
)

// BalanceResponse is an owner's wallet balance in one asset.
type BalanceResponse struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// GetBalance reads a wallet balance from the balance tracker.
func (qs *QueryService) GetBalance(owner, asset string) (Response[BalanceResponse], error) {
	var resp Response[BalanceResponse]
	key, err := parseOwner(owner)
	if err != nil {
		return resp, fault.New(fault.InvalidAddress, "owner %q", owner)
	}
	assetID, ok := ledger.GetAssetID(asset)
	if !ok {
		return resp, fault.New(fault.InvalidAssetType, "asset %q", asset)
	}

	qs.state.ViewAsOf(func(seq int64, _ *store.Store, balances *ledger.BalanceTracker) {
		resp.AsOfSequence = seq
		resp.Data = BalanceResponse{
			Owner:   key.String(),
			Asset:   asset,
			Balance: balances.UserBalance(key, assetID),
		}
	})
	return resp, nil
}

// GetBalances returns every non-zero wallet balance of an owner.
func (qs *QueryService) GetBalances(owner string) (Response[[]BalanceResponse], error) {
	var resp Response[[]BalanceResponse]
	key, err := parseOwner(owner)
	if err != nil {
		return resp, fault.New(fault.InvalidAddress, "owner %q", owner)
	}

	qs.state.ViewAsOf(func(seq int64, _ *store.Store, balances *ledger.BalanceTracker) {
		resp.AsOfSequence = seq
		resp.Data = []BalanceResponse{}
		for _, id := range assetIDs() {
			bal := balances.UserBalance(key, id)
			if bal == 0 {
				continue
			}
			name, _ := ledger.GetAssetName(id)
			resp.Data = append(resp.Data, BalanceResponse{Owner: key.String(), Asset: name, Balance: bal})
		}
	})
	return resp, nil
}
