package governance

import "fmt"

// ProposalKind selects the parameter change a proposal carries.
type ProposalKind uint8

const (
	ChangeSettlementFee ProposalKind = iota
	ChangeOracleSource
	ChangePoolFee
	ChangeStakingAPY
	AddNewAssetType
	TreasurySpend
	UpgradeProgram
	EmergencyPause
	proposalKindCount
)

var proposalKindNames = [...]string{
	"ChangeSettlementFee",
	"ChangeOracleSource",
	"ChangePoolFee",
	"ChangeStakingAPY",
	"AddNewAssetType",
	"TreasurySpend",
	"UpgradeProgram",
	"EmergencyPause",
}

func (k ProposalKind) String() string {
	if k < proposalKindCount {
		return proposalKindNames[k]
	}
	return "Unknown"
}

func (k ProposalKind) Valid() bool { return k < proposalKindCount }

func (k ProposalKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ProposalKind) UnmarshalText(text []byte) error {
	for i, name := range proposalKindNames {
		if name == string(text) {
			*k = ProposalKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown proposal kind %q", text)
}

// ProposalStatus is the proposal lifecycle state.
type ProposalStatus uint8

const (
	ProposalActive ProposalStatus = iota
	ProposalPassed
	ProposalExecuted
	ProposalDefeated
	ProposalCancelled
	ProposalExpired
)

var proposalStatusNames = [...]string{"Active", "Passed", "Executed", "Defeated", "Cancelled", "Expired"}

func (s ProposalStatus) String() string {
	if int(s) < len(proposalStatusNames) {
		return proposalStatusNames[s]
	}
	return "Unknown"
}

// CanTransitionTo validates status transitions:
// Active -> Passed|Defeated|Cancelled|Expired, Passed -> Executed.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case ProposalActive:
		return next == ProposalPassed || next == ProposalDefeated ||
			next == ProposalCancelled || next == ProposalExpired
	case ProposalPassed:
		return next == ProposalExecuted
	default:
		return false
	}
}

func (s ProposalStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ProposalStatus) UnmarshalText(text []byte) error {
	for i, name := range proposalStatusNames {
		if name == string(text) {
			*s = ProposalStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown proposal status %q", text)
}

// VoteChoice is a voter's position on a proposal.
type VoteChoice uint8

const (
	VoteFor VoteChoice = iota
	VoteAgainst
	VoteAbstain
)

var voteChoiceNames = [...]string{"For", "Against", "Abstain"}

func (c VoteChoice) String() string {
	if int(c) < len(voteChoiceNames) {
		return voteChoiceNames[c]
	}
	return "Unknown"
}

func (c VoteChoice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *VoteChoice) UnmarshalText(text []byte) error {
	for i, name := range voteChoiceNames {
		if name == string(text) {
			*c = VoteChoice(i)
			return nil
		}
	}
	return fmt.Errorf("unknown vote choice %q", text)
}
