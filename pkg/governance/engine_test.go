package governance_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/dispatch"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/store"
	"github.com/fractional-finance/frabric-protocol/pkg/token"
)

const kindNoop governance.Kind = 0x42

// fixture wires an engine against a real ledger, store and registry
type fixture struct {
	ledger   *token.Ledger
	registry *dispatch.Registry
	engine   *governance.Engine
	executed map[uint64]int
}

// newFixture funds the given balances, seals them into ledger history and
// builds an engine with a counting no-op handler registered
func newFixture(t *testing.T, params *governance.Params, balances map[string]int64) *fixture {
	t.Helper()

	ledger := token.NewLedger()
	for address, balance := range balances {
		require.NoError(t, ledger.Mint(address, big.NewInt(balance)))
	}
	ledger.AdvanceBlock()

	f := &fixture{
		ledger:   ledger,
		registry: dispatch.NewRegistry(),
		executed: make(map[uint64]int),
	}
	require.NoError(t, f.registry.Register(kindNoop, func(id uint64, _ governance.Kind) error {
		f.executed[id]++
		return nil
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = governance.NewEngine(
		ledger, ledger, store.NewMemoryStore(), f.registry, nil, params, logger)
	return f
}

func quickParams() *governance.Params {
	return &governance.Params{
		VotingPeriod:      0,
		ExecutionDelay:    0,
		QuorumNumerator:   1,
		QuorumDenominator: 10,
	}
}

func TestSubmitAutoVote(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{
		"creator": 100,
		"bob":     50,
		"whale":   850,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "A test proposal")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateActive, proposal.State)
	assert.Equal(t, f.ledger.Height()-1, proposal.Checkpoint)
	assert.Equal(t, governance.VoteYes, proposal.Voters["creator"])
	assert.Equal(t, "100", proposal.NetVotes.String())
	assert.Equal(t, "100", proposal.EngagedPower.String())
}

func TestSubmitPowerlessCreator(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{"whale": 1000})

	id, err := f.engine.Submit("pauper", kindNoop, "Test", "No power behind it")
	require.NoError(t, err)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Empty(t, proposal.Voters)
	assert.Equal(t, "0", proposal.NetVotes.String())
	assert.Equal(t, "0", proposal.EngagedPower.String())
}

// Power acquired in the block a proposal lands in lies past the checkpoint
// and carries no votes
func TestSubmitExcludesFlashAcquisition(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{"creator": 100})

	require.NoError(t, f.ledger.Mint("latecomer", big.NewInt(500)))

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Flash acquisition")
	require.NoError(t, err)

	err = f.engine.Vote("latecomer", id, governance.VoteYes)
	assert.ErrorIs(t, err, governance.ErrNoVotingPower)
}

func TestVoteTransitions(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{
		"creator": 100,
		"bob":     50,
		"whale":   850,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Scenario A")
	require.NoError(t, err)

	// None -> No
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))
	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "50", proposal.NetVotes.String())
	assert.Equal(t, "150", proposal.EngagedPower.String())

	// No -> Yes
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteYes))
	proposal, err = f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "150", proposal.NetVotes.String())
	assert.Equal(t, "150", proposal.EngagedPower.String())

	// Yes -> None
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNone))
	proposal, err = f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "100", proposal.NetVotes.String())
	assert.Equal(t, "100", proposal.EngagedPower.String())

	// None -> No again, then Yes -> No for the creator
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))
	require.NoError(t, f.engine.Vote("creator", id, governance.VoteNo))
	proposal, err = f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "-150", proposal.NetVotes.String())
	assert.Equal(t, "150", proposal.EngagedPower.String())
}

func TestVoteDuplicateDirection(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{
		"creator": 100,
		"bob":     50,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Duplicate votes")
	require.NoError(t, err)

	// Auto-cast yes repeated
	err = f.engine.Vote("creator", id, governance.VoteYes)
	assert.ErrorIs(t, err, governance.ErrDuplicateVote)

	// Abstain without a prior vote is also a no-op re-cast
	err = f.engine.Vote("bob", id, governance.VoteNone)
	assert.ErrorIs(t, err, governance.ErrDuplicateVote)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "100", proposal.NetVotes.String())
	assert.Equal(t, "100", proposal.EngagedPower.String())
}

func TestVoteNoPower(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{"creator": 100})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "No power")
	require.NoError(t, err)

	err = f.engine.Vote("stranger", id, governance.VoteYes)
	assert.ErrorIs(t, err, governance.ErrNoVotingPower)
}

func TestVoteOutsideWindow(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 100,
		"bob":     50,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Window closes")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))

	time.Sleep(300 * time.Millisecond)

	err = f.engine.Vote("bob", id, governance.VoteYes)
	assert.ErrorIs(t, err, governance.ErrNotActive)
}

func TestVoteUnknownProposal(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{"creator": 100})

	err := f.engine.Vote("creator", 99, governance.VoteYes)
	assert.ErrorIs(t, err, governance.ErrProposalNotFound)
}

func TestQueueQuorum(t *testing.T) {
	// Supply 1000: the floor is engaged power strictly above 100
	f := newFixture(t, quickParams(), map[string]int64{
		"creator": 100,
		"whale":   900,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "At the floor")
	require.NoError(t, err)

	// Engaged power of exactly 100 does not clear a strict floor of 100
	err = f.engine.Queue(id)
	assert.ErrorIs(t, err, governance.ErrQuorumNotMet)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateActive, proposal.State)
}

func TestQueueScenario(t *testing.T) {
	// Scenario B: supply 1000, engaged 150, net 50
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 100,
		"bob":     50,
		"whale":   850,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Scenario B")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))

	time.Sleep(300 * time.Millisecond)

	require.NoError(t, f.engine.Queue(id))

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateQueued, proposal.State)
}

func TestQueueWhileVotingOpen(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = time.Hour
	f := newFixture(t, params, map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Too early")
	require.NoError(t, err)

	err = f.engine.Queue(id)
	assert.ErrorIs(t, err, governance.ErrVotingOpen)
}

func TestQueueNegativeNet(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 100,
		"whale":   900,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Outvoted")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("whale", id, governance.VoteNo))

	time.Sleep(300 * time.Millisecond)

	err = f.engine.Queue(id)
	assert.ErrorIs(t, err, governance.ErrQuorumNotMet)
}

func TestExecuteLifecycle(t *testing.T) {
	// Scenario C: timelock gates execution, and execution happens once
	params := quickParams()
	params.ExecutionDelay = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Scenario C")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))

	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrTimelockNotElapsed)

	time.Sleep(300 * time.Millisecond)

	require.NoError(t, f.engine.Execute(id))
	assert.Equal(t, 1, f.executed[id])

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateExecuted, proposal.State)

	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrNotQueued)
	assert.Equal(t, 1, f.executed[id])
}

func TestExecuteWhileHalted(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Halted asset")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))

	f.ledger.Halt()
	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrLedgerHalted)

	f.ledger.Resume()
	require.NoError(t, f.engine.Execute(id))
}

func TestExecuteUnknownKind(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", governance.Kind(0x99), "Test", "No handler")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))

	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrUnknownProposalKind)

	// The state transition is committed before dispatch and stands
	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateExecuted, proposal.State)
}

func TestExecuteHandlerFailure(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	failing := governance.Kind(0x50)
	require.NoError(t, f.registry.Register(failing, func(uint64, governance.Kind) error {
		return fmt.Errorf("effect unavailable")
	}))

	id, err := f.engine.Submit("creator", failing, "Test", "Failing effect")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))

	err = f.engine.Execute(id)
	assert.Error(t, err)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateExecuted, proposal.State)

	// The handler is never re-invoked
	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrNotQueued)
}

func TestCancelFlipsOutcome(t *testing.T) {
	// Scenario D: a yes-voter's power drains after queuing
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 100,
		"bob":     40,
		"whale":   860,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Scenario D")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, f.engine.Queue(id))

	// Creator's checkpoint power was 100; drain to 20. The deficit of 80
	// drives the net tally of 60 to -20.
	require.NoError(t, f.ledger.Transfer("creator", "whale", big.NewInt(80)))

	require.NoError(t, f.engine.Cancel(id, []string{"creator"}))

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateCancelled, proposal.State)
	assert.Equal(t, "-20", proposal.NetVotes.String())

	// Terminal: execution is permanently impossible
	err = f.engine.Execute(id)
	assert.ErrorIs(t, err, governance.ErrNotQueued)
}

func TestCancelRejectsNonYesVoter(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 200,
		"bob":     40,
		"whale":   760,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Protected no-voter")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, f.engine.Queue(id))

	require.NoError(t, f.ledger.Transfer("creator", "whale", big.NewInt(190)))

	// Citing a no-voter fails the whole call, even alongside a genuinely
	// stale yes-voter, and applies nothing
	err = f.engine.Cancel(id, []string{"creator", "bob"})
	assert.ErrorIs(t, err, governance.ErrNotStaleVoter)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateQueued, proposal.State)
	assert.Equal(t, "160", proposal.NetVotes.String())
}

func TestCancelAccumulatesDeficits(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = 200 * time.Millisecond
	f := newFixture(t, params, map[string]int64{
		"creator": 100,
		"alice":   100,
		"sink":    800,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Incremental attrition")
	require.NoError(t, err)
	require.NoError(t, f.engine.Vote("alice", id, governance.VoteYes))

	time.Sleep(300 * time.Millisecond)
	require.NoError(t, f.engine.Queue(id))

	// Net is 200. Drain both yes-voters fully; each deficit alone cannot
	// flip it, together they drive it to -... the corrections persist
	// across the failed first call.
	require.NoError(t, f.ledger.Transfer("creator", "sink", big.NewInt(100)))
	require.NoError(t, f.ledger.Transfer("alice", "sink", big.NewInt(100)))
	// Single fully-drained voter: 200 - 100 = 100, not negative
	err = f.engine.Cancel(id, []string{"creator"})
	assert.ErrorIs(t, err, governance.ErrCancellationIneffective)

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateQueued, proposal.State)
	assert.Equal(t, "100", proposal.NetVotes.String())

	// Re-citing the same voter charges nothing new
	err = f.engine.Cancel(id, []string{"creator", "creator"})
	assert.ErrorIs(t, err, governance.ErrCancellationIneffective)
	proposal, err = f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "100", proposal.NetVotes.String())

	// The second voter's deficit lands on top of the persisted one... but
	// 200 total deficit against net 200 is exactly zero, still not negative
	err = f.engine.Cancel(id, []string{"alice"})
	assert.ErrorIs(t, err, governance.ErrCancellationIneffective)
	proposal, err = f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, "0", proposal.NetVotes.String())
	assert.Equal(t, governance.StateQueued, proposal.State)
}

func TestCancelRequiresQueued(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = time.Hour
	f := newFixture(t, params, map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Still active")
	require.NoError(t, err)

	err = f.engine.Cancel(id, []string{"creator"})
	assert.ErrorIs(t, err, governance.ErrNotQueued)
}

func TestWithdraw(t *testing.T) {
	params := quickParams()
	params.VotingPeriod = time.Hour
	f := newFixture(t, params, map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Changed my mind")
	require.NoError(t, err)

	err = f.engine.Withdraw("whale", id)
	assert.ErrorIs(t, err, governance.ErrUnauthorized)

	require.NoError(t, f.engine.Withdraw("creator", id))

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateCancelled, proposal.State)

	// Second withdrawal hits the terminal state
	err = f.engine.Withdraw("creator", id)
	assert.ErrorIs(t, err, governance.ErrNotActive)
}

func TestWithdrawWhileQueued(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Queued withdrawal")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))

	require.NoError(t, f.engine.Withdraw("creator", id))

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)
	assert.Equal(t, governance.StateCancelled, proposal.State)
}

func TestWithdrawAfterExecute(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Too late")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(id))
	require.NoError(t, f.engine.Execute(id))

	err = f.engine.Withdraw("creator", id)
	assert.ErrorIs(t, err, governance.ErrNotActive)
}

// The engaged tally always equals the checkpoint power of the non-abstaining
// voters, regardless of the path taken to reach the final directions
func TestEngagedPowerInvariant(t *testing.T) {
	f := newFixture(t, governance.DefaultParams(), map[string]int64{
		"creator": 100,
		"alice":   30,
		"bob":     70,
		"whale":   800,
	})

	id, err := f.engine.Submit("creator", kindNoop, "Test", "Invariant")
	require.NoError(t, err)

	require.NoError(t, f.engine.Vote("alice", id, governance.VoteYes))
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteNo))
	require.NoError(t, f.engine.Vote("alice", id, governance.VoteNone))
	require.NoError(t, f.engine.Vote("bob", id, governance.VoteYes))
	require.NoError(t, f.engine.Vote("alice", id, governance.VoteNo))

	proposal, err := f.engine.GetProposal(id)
	require.NoError(t, err)

	engaged := big.NewInt(0)
	for voter, direction := range proposal.Voters {
		if direction != governance.VoteNone {
			engaged.Add(engaged, f.ledger.PowerAt(voter, proposal.Checkpoint))
		}
	}
	assert.Equal(t, engaged.String(), proposal.EngagedPower.String())
	assert.LessOrEqual(t, proposal.NetVotes.CmpAbs(proposal.EngagedPower), 0)
}

func TestListProposalsByState(t *testing.T) {
	f := newFixture(t, quickParams(), map[string]int64{"creator": 500, "whale": 500})

	first, err := f.engine.Submit("creator", kindNoop, "First", "")
	require.NoError(t, err)
	second, err := f.engine.Submit("creator", kindNoop, "Second", "")
	require.NoError(t, err)
	require.NoError(t, f.engine.Queue(second))

	queued, err := f.engine.ListProposalsByState(governance.StateQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, second, queued[0].ID)

	all, err := f.engine.ListProposals()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].ID)
	assert.True(t, errors.Is(f.engine.Vote("creator", 3, governance.VoteYes), governance.ErrProposalNotFound))
}
