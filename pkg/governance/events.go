package governance

import (
	"math/big"

	"github.com/fractional-finance/frabric-protocol/pkg/event"
)

const (
	ProposalCreatedEventType event.EventType = "governance.proposal.created"
	StateChangedEventType    event.EventType = "governance.proposal.state"
	VoteCastEventType        event.EventType = "governance.vote.cast"
)

// ProposalCreatedEvent carries the caller-supplied proposal metadata. It is
// emitted separately from the state-change record so indexers can follow
// state transitions without replaying metadata.
type ProposalCreatedEvent struct {
	ID          uint64
	Creator     string
	Kind        Kind
	Title       string
	Description string
	Checkpoint  uint64
}

// StateChangedEvent records a proposal entering a new state
type StateChangedEvent struct {
	ID    uint64
	State ProposalState
}

// VoteCastEvent records a vote with the power it carried
type VoteCastEvent struct {
	ID        uint64
	Voter     string
	Direction VoteDirection
	Power     *big.Int
}
