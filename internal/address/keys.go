package address

// Deriver computes the record keys of one deployment. All keys are
// functions of fixed tags plus identifying fields.
type Deriver struct {
	Program Address
}

func NewDeriver(program Address) Deriver {
	return Deriver{Program: program}
}

func (d Deriver) must(seeds ...[]byte) Address {
	a, _, err := Derive(d.Program, seeds...)
	if err != nil {
		// Only reachable with oversized seeds, which the helpers below never build.
		panic(err)
	}
	return a
}

func (d Deriver) Market() Address           { return d.must([]byte("market")) }
func (d Deriver) Oracle() Address           { return d.must([]byte("oracle")) }
func (d Deriver) SpotOracle() Address       { return d.must([]byte("multi_oracle")) }
func (d Deriver) Aggregator() Address       { return d.must([]byte("oracle_aggregator")) }
func (d Deriver) Pool() Address             { return d.must([]byte("amm_pool")) }
func (d Deriver) Governance() Address       { return d.must([]byte("governance")) }
func (d Deriver) Heatmap() Address          { return d.must([]byte("heatmap")) }
func (d Deriver) Vault(name string) Address { return d.must([]byte("vault"), []byte(name)) }

// RecordVault is a vault owned by a non-singleton record, one per leg.
func (d Deriver) RecordVault(record Address, leg string) Address {
	return d.must([]byte("vault"), record[:], []byte(leg))
}

func (d Deriver) Position(owner Address) Address {
	return d.must([]byte("position"), owner[:])
}

func (d Deriver) LPPosition(owner Address) Address {
	return d.must([]byte("lp_position"), owner[:])
}

func (d Deriver) SlotPool(creator Address, poolID uint64) Address {
	return d.must([]byte("settlement_pool"), creator[:], U64Seed(poolID))
}

func (d Deriver) Slot(id uint64) Address {
	return d.must([]byte("settlement_slot"), U64Seed(id))
}

func (d Deriver) Bet(owner Address, id uint64) Address {
	return d.must([]byte("bet"), owner[:], U64Seed(id))
}

func (d Deriver) Proposal(id uint64) Address {
	return d.must([]byte("proposal"), U64Seed(id))
}

func (d Deriver) Vote(proposalID uint64, voter Address) Address {
	return d.must([]byte("vote"), U64Seed(proposalID), voter[:])
}

func (d Deriver) StakingPosition(owner Address) Address {
	return d.must([]byte("staking_position"), owner[:])
}

// Vault names.
const (
	VaultMarketCollateral = "market_collateral"
	VaultPoolLong         = "pool_long"
	VaultPoolShort        = "pool_short"
	VaultFees             = "fees"
	VaultBuyback          = "buyback"
	VaultGovernanceToken  = "governance_token"
	LegUSDC               = "usdc"
	LegSlot               = "slot"
)
