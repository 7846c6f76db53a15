package governance

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/fractional-finance/frabric-protocol/pkg/event"
)

// Engine drives the proposal lifecycle: snapshot-based weighted voting, the
// quorum-and-timelock gate, stale-power cancellation and creator withdrawal.
// Every operation runs to completion under one mutex, so operations on the
// same proposal are totally ordered and none observes a partial effect of
// another.
type Engine struct {
	chain    ChainReader
	power    PowerSource
	store    ProposalStore
	dispatch Dispatcher
	events   EventSink
	params   *Params
	logger   *slog.Logger
	mutex    sync.Mutex
}

// NewEngine creates a new governance engine
func NewEngine(
	chain ChainReader,
	power PowerSource,
	store ProposalStore,
	dispatch Dispatcher,
	events EventSink,
	params *Params,
	logger *slog.Logger,
) *Engine {
	if params == nil {
		params = DefaultParams()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		chain:    chain,
		power:    power,
		store:    store,
		dispatch: dispatch,
		events:   events,
		params:   params,
		logger:   logger,
	}
}

// Params returns the engine configuration
func (e *Engine) Params() Params {
	return *e.params
}

// Submit creates a new proposal. The voting-power checkpoint is fixed one
// block before the current height, so power acquired in the same block the
// proposal lands in cannot be used to judge it. If the creator holds power
// at that checkpoint, a yes vote is cast on their behalf.
func (e *Engine) Submit(creator string, kind Kind, title, description string) (uint64, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if creator == "" {
		return 0, fmt.Errorf("proposal creator is required")
	}

	checkpoint := e.chain.Height()
	if checkpoint > 0 {
		checkpoint--
	}

	proposal := &Proposal{
		Creator:      creator,
		Kind:         kind,
		State:        StateActive,
		StateStart:   time.Now(),
		Checkpoint:   checkpoint,
		Voters:       make(map[string]VoteDirection),
		NetVotes:     big.NewInt(0),
		EngagedPower: big.NewInt(0),
		Corrections:  make(map[string]*big.Int),
	}

	power := e.power.PowerAt(creator, checkpoint)
	if power.Sign() > 0 {
		applyVote(proposal, VoteNone, VoteYes, power)
		proposal.Voters[creator] = VoteYes
	}

	id, err := e.store.Create(proposal)
	if err != nil {
		return 0, fmt.Errorf("failed to save proposal: %w", err)
	}

	e.publish(ProposalCreatedEventType, ProposalCreatedEvent{
		ID:          id,
		Creator:     creator,
		Kind:        kind,
		Title:       title,
		Description: description,
		Checkpoint:  checkpoint,
	})
	e.publish(StateChangedEventType, StateChangedEvent{ID: id, State: StateActive})
	if power.Sign() > 0 {
		e.publish(VoteCastEventType, VoteCastEvent{
			ID:        id,
			Voter:     creator,
			Direction: VoteYes,
			Power:     power,
		})
	}

	return id, nil
}

// Vote records a vote on an active proposal. The voter's power is always
// read at the proposal checkpoint. Re-casting the currently recorded
// direction is rejected rather than ignored, and zero-power accounts cannot
// vote, including to abstain.
func (e *Engine) Vote(voter string, id uint64, direction VoteDirection) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	proposal, err := e.getProposal(id)
	if err != nil {
		return err
	}

	if !e.isActive(proposal) {
		return ErrNotActive
	}

	prev := proposal.Voters[voter]
	if direction == prev {
		return ErrDuplicateVote
	}

	power := e.power.PowerAt(voter, proposal.Checkpoint)
	if power.Sign() == 0 {
		return ErrNoVotingPower
	}

	applyVote(proposal, prev, direction, power)
	proposal.Voters[voter] = direction

	if err := e.store.Update(proposal); err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	e.publish(VoteCastEventType, VoteCastEvent{
		ID:        id,
		Voter:     voter,
		Direction: direction,
		Power:     power,
	})
	return nil
}

// Queue moves a proposal whose voting window has elapsed into the timelock.
// Quorum requires a strictly positive net tally and engaged power strictly
// above the configured fraction of the present total supply. Anyone may
// call it.
func (e *Engine) Queue(id uint64) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	proposal, err := e.getProposal(id)
	if err != nil {
		return err
	}

	if proposal.State != StateActive {
		return ErrNotActive
	}
	if time.Now().Before(proposal.StateStart.Add(e.params.VotingPeriod)) {
		return ErrVotingOpen
	}
	if !e.quorumMet(proposal) {
		return ErrQuorumNotMet
	}

	proposal.State = StateQueued
	proposal.StateStart = time.Now()

	if err := e.store.Update(proposal); err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	e.publish(StateChangedEventType, StateChangedEvent{ID: id, State: StateQueued})
	return nil
}

// Cancel applies stale-power corrections to a queued proposal. Every cited
// account must currently be a yes-voter; for each, the shortfall between its
// checkpoint power and its present power is subtracted from the net tally.
// Corrections are one-way: they stay committed even when the call fails
// because the tally did not turn negative, so repeated partial calls can
// accumulate toward the flip threshold. A deficit already charged for an
// account is not charged again.
func (e *Engine) Cancel(id uint64, staleYesVoters []string) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	proposal, err := e.getProposal(id)
	if err != nil {
		return err
	}

	if proposal.State != StateQueued {
		return ErrNotQueued
	}

	// Reject the whole call before writing anything if any cited account is
	// not a yes-voter. This keeps cancellation from being turned against
	// no-voters or abstainers.
	for _, account := range staleYesVoters {
		if proposal.Voters[account] != VoteYes {
			return fmt.Errorf("%w: %s", ErrNotStaleVoter, account)
		}
	}

	seen := make(map[string]bool, len(staleYesVoters))
	for _, account := range staleYesVoters {
		if seen[account] {
			continue
		}
		seen[account] = true

		then := e.power.PowerAt(account, proposal.Checkpoint)
		current := e.power.CurrentPower(account)
		if current.Cmp(then) >= 0 {
			continue
		}

		deficit := new(big.Int).Sub(then, current)
		charged := proposal.Corrections[account]
		if charged == nil {
			charged = big.NewInt(0)
		}
		if deficit.Cmp(charged) <= 0 {
			continue
		}

		delta := new(big.Int).Sub(deficit, charged)
		proposal.NetVotes.Sub(proposal.NetVotes, delta)
		proposal.Corrections[account] = deficit
	}

	if proposal.NetVotes.Sign() < 0 {
		proposal.State = StateCancelled
		proposal.StateStart = time.Now()
		if err := e.store.Update(proposal); err != nil {
			return fmt.Errorf("failed to save proposal: %w", err)
		}
		e.publish(StateChangedEventType, StateChangedEvent{ID: id, State: StateCancelled})
		return nil
	}

	// The deficits applied above persist even though the outcome stands.
	if err := e.store.Update(proposal); err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return ErrCancellationIneffective
}

// Execute finalizes a queued proposal once the timelock has elapsed, then
// dispatches its kind-specific effect. The executed state is committed
// before the dispatcher runs, so a handler that calls back into the engine
// finds the proposal already terminal. If the handler fails, the proposal
// stays executed with its effect unapplied; recovery is a follow-up
// proposal of the same kind.
func (e *Engine) Execute(id uint64) error {
	e.mutex.Lock()

	proposal, err := e.getProposal(id)
	if err != nil {
		e.mutex.Unlock()
		return err
	}

	if proposal.State != StateQueued {
		e.mutex.Unlock()
		return ErrNotQueued
	}
	if time.Now().Before(proposal.StateStart.Add(e.params.ExecutionDelay)) {
		e.mutex.Unlock()
		return ErrTimelockNotElapsed
	}
	if e.power.IsHalted() {
		e.mutex.Unlock()
		return ErrLedgerHalted
	}

	proposal.State = StateExecuted
	proposal.StateStart = time.Now()

	if err := e.store.Update(proposal); err != nil {
		e.mutex.Unlock()
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	e.publish(StateChangedEventType, StateChangedEvent{ID: id, State: StateExecuted})

	// Commit, then notify. The lock is released so the handler can read
	// engine state; a reentrant Execute fails on the state check above.
	e.mutex.Unlock()

	if err := e.dispatch.OnExecute(id, proposal.Kind); err != nil {
		e.logger.Warn("proposal effect failed after execution",
			"id", id, "kind", proposal.Kind, "error", err)
		return fmt.Errorf("execute proposal %d: %w", id, err)
	}
	return nil
}

// Withdraw lets the creator cancel their own proposal while it is inside
// the active window or queued.
func (e *Engine) Withdraw(caller string, id uint64) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	proposal, err := e.getProposal(id)
	if err != nil {
		return err
	}

	if caller != proposal.Creator {
		return ErrUnauthorized
	}
	if !e.isActive(proposal) && proposal.State != StateQueued {
		return ErrNotActive
	}

	proposal.State = StateCancelled
	proposal.StateStart = time.Now()

	if err := e.store.Update(proposal); err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	e.publish(StateChangedEventType, StateChangedEvent{ID: id, State: StateCancelled})
	return nil
}

// GetProposal returns a proposal by ID
func (e *Engine) GetProposal(id uint64) (*Proposal, error) {
	proposal, err := e.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}

// ListProposals returns all proposals
func (e *Engine) ListProposals() ([]*Proposal, error) {
	return e.store.List()
}

// ListProposalsByState returns proposals in the given state
func (e *Engine) ListProposalsByState(state ProposalState) ([]*Proposal, error) {
	return e.store.ListByState(state)
}

func (e *Engine) getProposal(id uint64) (*Proposal, error) {
	proposal, err := e.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	return proposal, nil
}

// isActive reports whether the proposal still accepts votes
func (e *Engine) isActive(proposal *Proposal) bool {
	return proposal.State == StateActive &&
		time.Now().Before(proposal.StateStart.Add(e.params.VotingPeriod))
}

// quorumMet requires net yes power strictly above zero and engaged power
// strictly above quorumNumerator/quorumDenominator of the current supply.
// The supply is read now, not at the checkpoint, so the participation floor
// tracks the present community size.
func (e *Engine) quorumMet(proposal *Proposal) bool {
	if proposal.NetVotes.Sign() <= 0 {
		return false
	}
	supply := e.power.CurrentTotalSupply()
	lhs := new(big.Int).Mul(proposal.EngagedPower, big.NewInt(e.params.QuorumDenominator))
	rhs := new(big.Int).Mul(supply, big.NewInt(e.params.QuorumNumerator))
	return lhs.Cmp(rhs) > 0
}

func (e *Engine) publish(eventType event.EventType, data any) {
	if e.events != nil {
		e.events.Publish(eventType, data)
	}
}
