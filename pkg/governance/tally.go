package governance

import "math/big"

// applyVote moves a voter's tally contribution from prev to next using the
// power the voter held at the proposal checkpoint. NetVotes moves by the
// signed difference of the two directions; EngagedPower only moves when the
// voter enters or leaves abstention.
func applyVote(proposal *Proposal, prev, next VoteDirection, power *big.Int) {
	// Remove the previous direction's effect
	switch prev {
	case VoteYes:
		proposal.NetVotes.Sub(proposal.NetVotes, power)
	case VoteNo:
		proposal.NetVotes.Add(proposal.NetVotes, power)
	}

	// Apply the new direction's effect
	switch next {
	case VoteYes:
		proposal.NetVotes.Add(proposal.NetVotes, power)
	case VoteNo:
		proposal.NetVotes.Sub(proposal.NetVotes, power)
	}

	if prev == VoteNone && next != VoteNone {
		proposal.EngagedPower.Add(proposal.EngagedPower, power)
	} else if prev != VoteNone && next == VoteNone {
		proposal.EngagedPower.Sub(proposal.EngagedPower, power)
	}
}
