package governance

import (
	"math/big"

	"github.com/fractional-finance/frabric-protocol/pkg/event"
)

// PowerSource supplies voting power for the governed asset. PowerAt answers
// for a fixed historical checkpoint; CurrentPower and CurrentTotalSupply
// answer for the present moment. The engine only reads from it.
type PowerSource interface {
	// PowerAt returns the power an account held at the given checkpoint
	PowerAt(account string, checkpoint uint64) *big.Int

	// CurrentPower returns the power an account holds now
	CurrentPower(account string) *big.Int

	// CurrentTotalSupply returns the circulating supply now
	CurrentTotalSupply() *big.Int

	// IsHalted reports whether the governed asset is halted
	IsHalted() bool
}

// ChainReader defines methods for reading chain progression
type ChainReader interface {
	Height() uint64
}

// ProposalStore defines methods for storing proposals. Create assigns the
// next monotonically increasing identifier. Implementations must return
// copies so callers cannot mutate stored state.
type ProposalStore interface {
	Create(proposal *Proposal) (uint64, error)
	Get(id uint64) (*Proposal, error)
	Update(proposal *Proposal) error
	List() ([]*Proposal, error)
	ListByState(state ProposalState) ([]*Proposal, error)
}

// Dispatcher routes an executed proposal to its kind-specific effect.
// OnExecute is invoked exactly once per proposal, after the executed state
// is committed.
type Dispatcher interface {
	OnExecute(id uint64, kind Kind) error
}

// EventSink receives observable governance records. A nil sink disables
// record emission without affecting the lifecycle.
type EventSink interface {
	Publish(eventType event.EventType, data any)
}
