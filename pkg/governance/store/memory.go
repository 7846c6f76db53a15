package store

import (
	"math/big"
	"sort"
	"sync"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
)

// MemoryStore is an in-memory implementation of ProposalStore. Identifiers
// are assigned monotonically starting at 1 and never reused. All reads and
// writes go through deep copies so callers cannot mutate stored state.
type MemoryStore struct {
	proposals map[uint64]*governance.Proposal
	nextID    uint64
	mutex     sync.RWMutex
}

// NewMemoryStore creates a new memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals: make(map[uint64]*governance.Proposal),
		nextID:    1,
	}
}

// Create assigns the next identifier and stores the proposal
func (s *MemoryStore) Create(proposal *governance.Proposal) (uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.nextID
	s.nextID++

	proposal.ID = id
	s.proposals[id] = clone(proposal)
	return id, nil
}

// Get retrieves a proposal by ID; a missing proposal yields (nil, nil)
func (s *MemoryStore) Get(id uint64) (*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if proposal, exists := s.proposals[id]; exists {
		return clone(proposal), nil
	}
	return nil, nil
}

// Update replaces a stored proposal
func (s *MemoryStore) Update(proposal *governance.Proposal) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.proposals[proposal.ID]; !exists {
		return governance.ErrProposalNotFound
	}
	s.proposals[proposal.ID] = clone(proposal)
	return nil
}

// List returns all proposals ordered by ID
func (s *MemoryStore) List() ([]*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	proposals := make([]*governance.Proposal, 0, len(s.proposals))
	for _, proposal := range s.proposals {
		proposals = append(proposals, clone(proposal))
	}
	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID < proposals[j].ID
	})
	return proposals, nil
}

// ListByState returns proposals in the given state ordered by ID
func (s *MemoryStore) ListByState(state governance.ProposalState) ([]*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	proposals := make([]*governance.Proposal, 0)
	for _, proposal := range s.proposals {
		if proposal.State == state {
			proposals = append(proposals, clone(proposal))
		}
	}
	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].ID < proposals[j].ID
	})
	return proposals, nil
}

// clone deep-copies a proposal, including its tally integers and maps
func clone(proposal *governance.Proposal) *governance.Proposal {
	copied := *proposal
	copied.Voters = make(map[string]governance.VoteDirection, len(proposal.Voters))
	for voter, direction := range proposal.Voters {
		copied.Voters[voter] = direction
	}
	copied.Corrections = make(map[string]*big.Int, len(proposal.Corrections))
	for voter, deficit := range proposal.Corrections {
		copied.Corrections[voter] = new(big.Int).Set(deficit)
	}
	copied.NetVotes = new(big.Int).Set(proposal.NetVotes)
	copied.EngagedPower = new(big.Int).Set(proposal.EngagedPower)
	return &copied
}
