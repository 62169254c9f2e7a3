package event

import "CfdLedger/internal/governance"

type InitGovernance struct {
	Meta
}

func (*InitGovernance) Type() CommandType { return CommandInitGovernance }

type Stake struct {
	Meta
	Amount uint64 `json:"amount"`
}

func (*Stake) Type() CommandType { return CommandStake }

type CreateProposal struct {
	Meta
	Kind        governance.ProposalKind `json:"kind"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
}

func (*CreateProposal) Type() CommandType { return CommandCreateProposal }

type CastVote struct {
	Meta
	ProposalID uint64                `json:"proposal_id"`
	Choice     governance.VoteChoice `json:"choice"`
}

func (*CastVote) Type() CommandType { return CommandCastVote }

type FinalizeProposal struct {
	Meta
	ProposalID uint64 `json:"proposal_id"`
}

func (*FinalizeProposal) Type() CommandType { return CommandFinalizeProposal }

type ExecuteProposal struct {
	Meta
	ProposalID uint64 `json:"proposal_id"`
}

func (*ExecuteProposal) Type() CommandType { return CommandExecuteProposal }

type ClaimFees struct {
	Meta
}

func (*ClaimFees) Type() CommandType { return CommandClaimFees }

// Buyback burns governance tokens from the buyback vault. Admin only.
type Buyback struct {
	Meta
	Amount uint64 `json:"amount"`
}

func (*Buyback) Type() CommandType { return CommandBuyback }

// DepositFees moves USDC from the signer into the staker fee vault.
type DepositFees struct {
	Meta
	Amount uint64 `json:"amount"`
}

func (*DepositFees) Type() CommandType { return CommandDepositFees }
