package governance

import (
	"math/big"
	"time"
)

// ProposalState represents the lifecycle state of a proposal
type ProposalState int

const (
	StateActive ProposalState = iota
	StateQueued
	StateExecuted
	StateCancelled
)

// String returns a human-readable state name
func (s ProposalState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateQueued:
		return "queued"
	case StateExecuted:
		return "executed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible from s
func (s ProposalState) Terminal() bool {
	return s == StateExecuted || s == StateCancelled
}

// VoteDirection represents the direction of a cast vote. VoteNone means the
// account either never voted or is abstaining after a previous vote.
type VoteDirection int

const (
	VoteNone VoteDirection = iota
	VoteNo
	VoteYes
)

// String returns a human-readable direction name
func (d VoteDirection) String() string {
	switch d {
	case VoteNo:
		return "no"
	case VoteYes:
		return "yes"
	default:
		return "abstain"
	}
}

// Kind tags a proposal with the subsystem-specific effect it carries. The
// engine never interprets kinds; it routes them to the registered handler
// when a proposal executes.
type Kind uint8

// KindText is a proposal with no on-execution effect, used for signalling
const KindText Kind = 0

// Proposal represents a governance proposal
type Proposal struct {
	ID           uint64
	Creator      string
	Kind         Kind
	State        ProposalState
	StateStart   time.Time
	Checkpoint   uint64
	Voters       map[string]VoteDirection
	NetVotes     *big.Int
	EngagedPower *big.Int

	// Corrections records, per yes-voter, the stale-power deficit already
	// charged against NetVotes by Cancel. Deficits are one-way; they survive
	// cancellations that fail to flip the outcome.
	Corrections map[string]*big.Int
}

// Params represents the governance engine configuration
type Params struct {
	VotingPeriod      time.Duration `json:"voting_period"`
	ExecutionDelay    time.Duration `json:"execution_delay"`
	QuorumNumerator   int64         `json:"quorum_numerator"`
	QuorumDenominator int64         `json:"quorum_denominator"`
}

// DefaultParams returns the default governance parameters
func DefaultParams() *Params {
	return &Params{
		VotingPeriod:      72 * time.Hour,
		ExecutionDelay:    12 * time.Hour,
		QuorumNumerator:   1,
		QuorumDenominator: 10,
	}
}
