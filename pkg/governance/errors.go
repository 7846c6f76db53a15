package governance

import "errors"

var (
	// ErrProposalNotFound indicates the proposal was not found
	ErrProposalNotFound = errors.New("proposal not found")

	// ErrNotActive indicates the proposal is outside its active voting window
	ErrNotActive = errors.New("proposal is not active")

	// ErrDuplicateVote indicates the vote direction is unchanged
	ErrDuplicateVote = errors.New("vote direction unchanged")

	// ErrNoVotingPower indicates the voter held no power at the proposal checkpoint
	ErrNoVotingPower = errors.New("no voting power at checkpoint")

	// ErrVotingOpen indicates the voting window has not elapsed yet
	ErrVotingOpen = errors.New("voting window still open")

	// ErrQuorumNotMet indicates insufficient participation or a non-positive tally
	ErrQuorumNotMet = errors.New("quorum not met")

	// ErrNotQueued indicates the proposal is not in the queued state
	ErrNotQueued = errors.New("proposal is not queued")

	// ErrTimelockNotElapsed indicates the execution delay has not passed
	ErrTimelockNotElapsed = errors.New("timelock not elapsed")

	// ErrNotStaleVoter indicates a cited account did not vote yes
	ErrNotStaleVoter = errors.New("account did not vote yes")

	// ErrCancellationIneffective indicates the stale-power correction did not
	// flip the net tally negative; deficits applied so far remain committed
	ErrCancellationIneffective = errors.New("cancellation did not flip outcome")

	// ErrUnauthorized indicates the caller is not allowed to perform the operation
	ErrUnauthorized = errors.New("caller is not the proposal creator")

	// ErrLedgerHalted indicates the governed asset is halted
	ErrLedgerHalted = errors.New("governed ledger is halted")

	// ErrUnknownProposalKind indicates no handler is registered for a kind
	ErrUnknownProposalKind = errors.New("unknown proposal kind")
)
