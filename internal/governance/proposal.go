package governance

import (
	"CfdLedger/internal/address"
	"CfdLedger/internal/fault"
	"CfdLedger/internal/math"
	"CfdLedger/internal/store"
)

const (
	KindProposal = "proposal"
	KindVote     = "vote"

	MaxTitleLength       = 100
	MaxDescriptionLength = 500

	// MinProposalStake is the stake a proposer needs: 1M CADEN.
	MinProposalStake uint64 = 1_000_000 * math.MicroScale
)

// Proposal is one governance proposal.
type Proposal struct {
	ID              uint64          `json:"id"`
	Proposer        address.Address `json:"proposer"`
	Type            ProposalKind    `json:"kind"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	VotesFor        uint64          `json:"votes_for"`
	VotesAgainst    uint64          `json:"votes_against"`
	TotalVotes      uint64          `json:"total_votes"`
	Status          ProposalStatus  `json:"status"`
	CreatedHeight   uint64          `json:"created_height"`
	VotingEndHeight uint64          `json:"voting_end_height"`
	ExecutionHeight uint64          `json:"execution_height"`
	Executed        bool            `json:"executed"`
}

func (p *Proposal) Kind() string { return KindProposal }

func (p *Proposal) Clone() store.Record {
	cp := *p
	return &cp
}

// Vote is one voter's ballot on one proposal.
type Vote struct {
	ProposalID  uint64          `json:"proposal_id"`
	Voter       address.Address `json:"voter"`
	Power       uint64          `json:"power"`
	Choice      VoteChoice      `json:"choice"`
	VotedHeight uint64          `json:"voted_height"`
}

func (v *Vote) Kind() string { return KindVote }

func (v *Vote) Clone() store.Record {
	cp := *v
	return &cp
}

// CreateProposal opens a proposal with the next sequential id. The
// proposer's stake must be at least MinProposalStake.
func (g *Governance) CreateProposal(pos *StakingPosition, proposer address.Address, kind ProposalKind, title, description string, height uint64) (*Proposal, error) {
	if pos.StakedAmount < MinProposalStake {
		return nil, fault.New(fault.InsufficientStakeForProposal, "staked %d < %d", pos.StakedAmount, MinProposalStake)
	}
	if n := len(title); n > MaxTitleLength {
		return nil, fault.New(fault.TitleTooLong, "%d > %d bytes", n, MaxTitleLength)
	}
	if n := len(description); n > MaxDescriptionLength {
		return nil, fault.New(fault.DescriptionTooLong, "%d > %d bytes", n, MaxDescriptionLength)
	}
	if !kind.Valid() {
		return nil, fault.New(fault.InvalidAssetType, "proposal kind %d", uint8(kind))
	}
	end, err := math.CheckedAdd(height, g.VotingPeriod)
	if err != nil {
		return nil, err
	}
	next, err := math.CheckedAdd(g.ProposalCount, 1)
	if err != nil {
		return nil, err
	}

	p := &Proposal{
		ID:              g.ProposalCount,
		Proposer:        proposer,
		Type:            kind,
		Title:           title,
		Description:     description,
		Status:          ProposalActive,
		CreatedHeight:   height,
		VotingEndHeight: end,
	}
	g.ProposalCount = next
	return p, nil
}

// CastVote records a ballot weighted by the voter's stake. Storing the
// returned Vote under its (proposal, voter) key is what rejects a second
// ballot.
func (p *Proposal) CastVote(pos *StakingPosition, voter address.Address, choice VoteChoice, height uint64) (*Vote, error) {
	if p.Status != ProposalActive {
		return nil, fault.New(fault.ProposalNotActive, "proposal %d is %s", p.ID, p.Status)
	}
	if height >= p.VotingEndHeight {
		return nil, fault.New(fault.VotingPeriodEnded, "proposal %d voting ended at %d", p.ID, p.VotingEndHeight)
	}
	power := pos.StakedAmount
	if power == 0 {
		return nil, fault.New(fault.NoVotingPower, "%s has no stake", voter)
	}

	total, err := math.CheckedAdd(p.TotalVotes, power)
	if err != nil {
		return nil, err
	}
	switch choice {
	case VoteFor:
		if p.VotesFor, err = math.CheckedAdd(p.VotesFor, power); err != nil {
			return nil, err
		}
	case VoteAgainst:
		if p.VotesAgainst, err = math.CheckedAdd(p.VotesAgainst, power); err != nil {
			return nil, err
		}
	case VoteAbstain:
	default:
		return nil, fault.New(fault.InvalidAssetType, "vote choice %d", uint8(choice))
	}
	p.TotalVotes = total

	return &Vote{
		ProposalID:  p.ID,
		Voter:       voter,
		Power:       power,
		Choice:      choice,
		VotedHeight: height,
	}, nil
}

// Finalize closes voting. Below quorum or without a strict majority for,
// the proposal is Defeated; otherwise it Passes and becomes executable
// after the execution delay.
func (g *Governance) Finalize(p *Proposal, height uint64) error {
	if height < p.VotingEndHeight {
		return fault.New(fault.VotingPeriodNotEnded, "proposal %d voting ends at %d", p.ID, p.VotingEndHeight)
	}
	if p.Status != ProposalActive {
		return fault.New(fault.ProposalNotActive, "proposal %d is %s", p.ID, p.Status)
	}
	if p.TotalVotes < g.QuorumThreshold || p.VotesFor <= p.VotesAgainst {
		p.Status = ProposalDefeated
		return nil
	}
	at, err := math.CheckedAdd(height, g.ExecutionDelay)
	if err != nil {
		return err
	}
	p.Status = ProposalPassed
	p.ExecutionHeight = at
	return nil
}

// Handler applies the parameter change of an executed proposal.
type Handler func(p *Proposal) error

// Handlers maps proposal kinds to their handlers. A kind without a handler
// executes as a no-op.
type Handlers map[ProposalKind]Handler

// Execute runs a passed proposal once its execution delay has elapsed.
func (p *Proposal) Execute(handlers Handlers, height uint64) error {
	if p.Status != ProposalPassed {
		return fault.New(fault.ProposalNotPassed, "proposal %d is %s", p.ID, p.Status)
	}
	if p.Executed {
		return fault.New(fault.ProposalAlreadyExecuted, "proposal %d", p.ID)
	}
	if height < p.ExecutionHeight {
		return fault.New(fault.ExecutionDelayNotMet, "proposal %d executable at %d", p.ID, p.ExecutionHeight)
	}
	if h, ok := handlers[p.Type]; ok && h != nil {
		if err := h(p); err != nil {
			return err
		}
	}
	p.Executed = true
	p.Status = ProposalExecuted
	return nil
}
