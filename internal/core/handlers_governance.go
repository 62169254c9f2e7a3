package core

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/event"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/governance"
	"CfdLedger/internal/store"
)

func (c *DeterministicCore) handleInitGovernance(x *execution, _ *event.InitGovernance) (any, error) {
	g := governance.New(c.keys.Governance(), x.signer, governance.Vaults{
		Token:   c.keys.Vault(address.VaultGovernanceToken),
		Fees:    c.keys.Vault(address.VaultFees),
		Buyback: c.keys.Vault(address.VaultBuyback),
	})
	if err := x.records.Create(g.Key, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (c *DeterministicCore) loadGovernance(x *execution) (*governance.Governance, error) {
	return store.Load[*governance.Governance](x.records, c.keys.Governance())
}

// stakeOf returns the signer's staking position, or an empty one.
func (c *DeterministicCore) stakeOf(x *execution, owner address.Address) (*governance.StakingPosition, address.Address) {
	key := c.keys.StakingPosition(owner)
	pos, ok := store.Lookup[*governance.StakingPosition](x.records, key)
	if !ok {
		pos = &governance.StakingPosition{Owner: owner}
	}
	return pos, key
}

func (c *DeterministicCore) handleStake(x *execution, e *event.Stake) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	pos, key := c.stakeOf(x, x.signer)
	if err := g.Stake(x.ledger, pos, x.signer, e.Amount, x.height); err != nil {
		return nil, err
	}
	x.records.Put(g.Key, g)
	x.records.Put(key, pos)
	return pos, nil
}

func (c *DeterministicCore) handleCreateProposal(x *execution, e *event.CreateProposal) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	pos, _ := c.stakeOf(x, x.signer)
	p, err := g.CreateProposal(pos, x.signer, e.Kind, e.Title, e.Description, x.height)
	if err != nil {
		return nil, err
	}
	if err := x.records.Create(c.keys.Proposal(p.ID), p); err != nil {
		return nil, err
	}
	x.records.Put(g.Key, g)
	if c.metrics != nil {
		c.metrics.ProposalsCreated.WithLabelValues(p.Type.String()).Inc()
	}
	return p, nil
}

func (c *DeterministicCore) handleCastVote(x *execution, e *event.CastVote) (any, error) {
	key := c.keys.Proposal(e.ProposalID)
	p, err := store.Load[*governance.Proposal](x.records, key)
	if err != nil {
		return nil, err
	}
	pos, _ := c.stakeOf(x, x.signer)
	v, err := p.CastVote(pos, x.signer, e.Choice, x.height)
	if err != nil {
		return nil, err
	}
	if err := x.records.Create(c.keys.Vote(e.ProposalID, x.signer), v); err != nil {
		return nil, err
	}
	x.records.Put(key, p)
	if c.metrics != nil {
		c.metrics.VotesCast.WithLabelValues(v.Choice.String()).Inc()
	}
	return v, nil
}

func (c *DeterministicCore) handleFinalizeProposal(x *execution, e *event.FinalizeProposal) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	key := c.keys.Proposal(e.ProposalID)
	p, err := store.Load[*governance.Proposal](x.records, key)
	if err != nil {
		return nil, err
	}
	if err := g.Finalize(p, x.height); err != nil {
		return nil, err
	}
	x.records.Put(key, p)
	if c.metrics != nil {
		c.metrics.ProposalsFinalized.WithLabelValues(p.Status.String()).Inc()
	}
	c.log.Info().
		Uint64("proposal", p.ID).
		Str("status", p.Status.String()).
		Uint64("votes_for", p.VotesFor).
		Uint64("votes_against", p.VotesAgainst).
		Msg("proposal finalized")
	return p, nil
}

func (c *DeterministicCore) handleExecuteProposal(x *execution, e *event.ExecuteProposal) (any, error) {
	key := c.keys.Proposal(e.ProposalID)
	p, err := store.Load[*governance.Proposal](x.records, key)
	if err != nil {
		return nil, err
	}
	if err := p.Execute(c.cfg.Handlers, x.height); err != nil {
		return nil, err
	}
	x.records.Put(key, p)
	if c.metrics != nil {
		c.metrics.ProposalsFinalized.WithLabelValues(p.Status.String()).Inc()
	}
	return p, nil
}

// ClaimOutput is returned for claim_fees.
type ClaimOutput struct {
	Claimed uint64 `json:"claimed"`
}

func (c *DeterministicCore) handleClaimFees(x *execution, _ *event.ClaimFees) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	key := c.keys.StakingPosition(x.signer)
	pos, ok := store.Lookup[*governance.StakingPosition](x.records, key)
	if !ok {
		return nil, fault.New(fault.NoFeesToClaim, "%s has no stake", x.signer)
	}
	claimed, err := g.ClaimFees(x.ledger, pos, x.height)
	if err != nil {
		return nil, err
	}
	x.records.Put(key, pos)
	if c.metrics != nil {
		c.metrics.FeesClaimed.Add(float64(claimed))
	}
	return ClaimOutput{Claimed: claimed}, nil
}

func (c *DeterministicCore) handleBuyback(x *execution, e *event.Buyback) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	if err := g.Buyback(x.ledger, x.signer, e.Amount); err != nil {
		return nil, err
	}
	x.records.Put(g.Key, g)
	if c.metrics != nil {
		c.metrics.TokensBoughtBack.Add(float64(e.Amount))
	}
	return g, nil
}

func (c *DeterministicCore) handleDepositFees(x *execution, e *event.DepositFees) (any, error) {
	g, err := c.loadGovernance(x)
	if err != nil {
		return nil, err
	}
	if err := g.DepositFees(x.ledger, x.signer, e.Amount); err != nil {
		return nil, err
	}
	x.records.Put(g.Key, g)
	return g, nil
}
