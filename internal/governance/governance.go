// Package governance implements CADEN staking, the proposal lifecycle and
// protocol fee distribution.
package governance

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/ledger"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindGovernance      = "governance"
	KindStakingPosition = "staking_position"

	DefaultTotalSupply     uint64 = 1_000_000_000 * math.MicroScale
	DefaultStakingAPYBps   uint64 = 1_420
	DefaultQuorumThreshold uint64 = 10_000_000 * math.MicroScale
	DefaultVotingPeriod    uint64 = 172_800
	DefaultExecutionDelay  uint64 = 43_200
)

// Governance is the singleton governance record. Key is the authority of
// its vaults and of the receipt-token mint.
type Governance struct {
	Key                address.Address `json:"key"`
	Admin              address.Address `json:"admin"`
	TokenVault         address.Address `json:"token_vault"`
	FeeVault           address.Address `json:"fee_vault"`
	BuybackVault       address.Address `json:"buyback_vault"`
	TotalSupply        uint64          `json:"total_supply"`
	StakedSupply       uint64          `json:"staked_supply"`
	TotalFeesCollected uint64          `json:"total_fees_collected"`
	TotalBoughtBack    uint64          `json:"total_bought_back"`
	StakingAPYBps      uint64          `json:"staking_apy_bps"`
	ProposalCount      uint64          `json:"proposal_count"`
	QuorumThreshold    uint64          `json:"quorum_threshold"`
	VotingPeriod       uint64          `json:"voting_period"`
	ExecutionDelay     uint64          `json:"execution_delay"`
}

func (g *Governance) Kind() string { return KindGovernance }

func (g *Governance) Clone() store.Record {
	cp := *g
	return &cp
}

// Vaults names the accounts governance holds value in.
type Vaults struct {
	Token   address.Address
	Fees    address.Address
	Buyback address.Address
}

// New returns a governance record with the default parameters.
func New(key, admin address.Address, vaults Vaults) *Governance {
	return &Governance{
		Key:             key,
		Admin:           admin,
		TokenVault:      vaults.Token,
		FeeVault:        vaults.Fees,
		BuybackVault:    vaults.Buyback,
		TotalSupply:     DefaultTotalSupply,
		StakingAPYBps:   DefaultStakingAPYBps,
		QuorumThreshold: DefaultQuorumThreshold,
		VotingPeriod:    DefaultVotingPeriod,
		ExecutionDelay:  DefaultExecutionDelay,
	}
}

// StakingPosition is an owner's stake and fee-claim history.
type StakingPosition struct {
	Owner            address.Address `json:"owner"`
	StakedAmount     uint64          `json:"staked_amount"`
	ReceiptTokens    uint64          `json:"receipt_token_amount"`
	StakedHeight     uint64          `json:"staked_height"`
	LastClaimHeight  uint64          `json:"last_claim_height"`
	TotalFeesClaimed uint64          `json:"total_fees_claimed"`
}

func (s *StakingPosition) Kind() string { return KindStakingPosition }

func (s *StakingPosition) Clone() store.Record {
	cp := *s
	return &cp
}

// Stake locks amount CADEN in the token vault and mints the same amount of
// STK_CADEN to owner.
func (g *Governance) Stake(host ledger.Host, pos *StakingPosition, owner address.Address, amount, height uint64) error {
	if amount == 0 {
		return fault.New(fault.ZeroAmount, "stake amount")
	}
	staked, err := math.CheckedAdd(pos.StakedAmount, amount)
	if err != nil {
		return err
	}
	receipts, err := math.CheckedAdd(pos.ReceiptTokens, amount)
	if err != nil {
		return err
	}
	supply, err := math.CheckedAdd(g.StakedSupply, amount)
	if err != nil {
		return err
	}

	if err := host.Transfer(ledger.UserAccount(owner, ledger.AssetCaden), ledger.VaultAccount(g.TokenVault, ledger.AssetCaden), amount, owner); err != nil {
		return err
	}
	if err := host.Mint(ledger.UserAccount(owner, ledger.AssetStakedCaden), amount, g.Key); err != nil {
		return err
	}

	pos.Owner = owner
	pos.StakedAmount = staked
	pos.ReceiptTokens = receipts
	pos.StakedHeight = height
	pos.LastClaimHeight = height
	g.StakedSupply = supply
	return nil
}

// DepositFees moves USDC protocol revenue into the fee vault.
func (g *Governance) DepositFees(host ledger.Host, payer address.Address, amount uint64) error {
	if amount == 0 {
		return fault.New(fault.ZeroAmount, "fee deposit")
	}
	total, err := math.CheckedAdd(g.TotalFeesCollected, amount)
	if err != nil {
		return err
	}
	if err := host.Transfer(ledger.UserAccount(payer, ledger.AssetUSDC), ledger.VaultAccount(g.FeeVault, ledger.AssetUSDC), amount, payer); err != nil {
		return err
	}
	g.TotalFeesCollected = total
	return nil
}

// FeesOwed returns the staker's unclaimed share of all fees collected:
// floor(receipts * collected / staked_supply) - claimed, or zero.
func (g *Governance) FeesOwed(pos *StakingPosition) (uint64, error) {
	if g.StakedSupply == 0 {
		return 0, nil
	}
	share, err := math.MulDiv(pos.ReceiptTokens, g.TotalFeesCollected, g.StakedSupply)
	if err != nil {
		return 0, err
	}
	if share <= pos.TotalFeesClaimed {
		return 0, nil
	}
	return share - pos.TotalFeesClaimed, nil
}

// ClaimFees pays the staker's owed fees out of the fee vault.
func (g *Governance) ClaimFees(host ledger.Host, pos *StakingPosition, height uint64) (uint64, error) {
	owed, err := g.FeesOwed(pos)
	if err != nil {
		return 0, err
	}
	if owed == 0 {
		return 0, fault.New(fault.NoFeesToClaim, "%s", pos.Owner)
	}
	if err := host.Transfer(ledger.VaultAccount(g.FeeVault, ledger.AssetUSDC), ledger.UserAccount(pos.Owner, ledger.AssetUSDC), owed, g.Key); err != nil {
		return 0, err
	}
	pos.TotalFeesClaimed += owed
	pos.LastClaimHeight = height
	return owed, nil
}

// Buyback moves amount USDC from the fee vault to the buyback vault and
// books the same amount of CADEN as bought back.
func (g *Governance) Buyback(host ledger.Host, caller address.Address, amount uint64) error {
	if caller != g.Admin {
		return fault.New(fault.Unauthorized, "governance admin is %s", g.Admin)
	}
	total, err := math.CheckedAdd(g.TotalBoughtBack, amount)
	if err != nil {
		return err
	}
	if err := host.Transfer(ledger.VaultAccount(g.FeeVault, ledger.AssetUSDC), ledger.VaultAccount(g.BuybackVault, ledger.AssetUSDC), amount, g.Key); err != nil {
		return err
	}
	g.TotalBoughtBack = total
	return nil
}
