package membership

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/dispatch"
)

// Proposal kinds owned by the membership subsystem
const (
	KindAdmitMember  governance.Kind = 0x01
	KindRemoveMember governance.Kind = 0x02
)

var (
	// ErrAlreadyMember indicates the candidate is already admitted
	ErrAlreadyMember = fmt.Errorf("already a member")

	// ErrNotMember indicates the address is not a member
	ErrNotMember = fmt.Errorf("not a member")
)

// Member represents an admitted participant
type Member struct {
	Address string
	Name    string
	Joined  time.Time
}

// admission is the payload the manager stores at proposal-creation time and
// consumes when the proposal executes
type admission struct {
	Address string
	Name    string
}

// Manager runs participant admission and removal through the governance
// engine. It owns the payload tables for its proposal kinds, keyed by
// proposal ID; the shared engine never sees them.
type Manager struct {
	engine     *governance.Engine
	members    map[string]*Member
	admissions map[uint64]*admission
	removals   map[uint64]string
	logger     *slog.Logger
	mutex      sync.RWMutex
}

// NewManager creates a new membership manager
func NewManager(engine *governance.Engine, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine:     engine,
		members:    make(map[string]*Member),
		admissions: make(map[uint64]*admission),
		removals:   make(map[uint64]string),
		logger:     logger,
	}
}

// RegisterHandlers binds the membership proposal kinds to the registry
func (m *Manager) RegisterHandlers(registry *dispatch.Registry) error {
	if err := registry.Register(KindAdmitMember, m.executeAdmission); err != nil {
		return err
	}
	return registry.Register(KindRemoveMember, m.executeRemoval)
}

// ProposeAdmission creates an admission proposal for a candidate and stores
// its payload under the new proposal's ID
func (m *Manager) ProposeAdmission(creator, candidate, name string) (uint64, error) {
	if candidate == "" {
		return 0, fmt.Errorf("candidate address is required")
	}
	if m.IsMember(candidate) {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyMember, candidate)
	}

	id, err := m.engine.Submit(creator, KindAdmitMember,
		fmt.Sprintf("Admit %s", name),
		fmt.Sprintf("Admit %s (%s) as a member", name, candidate))
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	m.admissions[id] = &admission{Address: candidate, Name: name}
	m.mutex.Unlock()
	return id, nil
}

// ProposeRemoval creates a removal proposal for an existing member
func (m *Manager) ProposeRemoval(creator, member string) (uint64, error) {
	if !m.IsMember(member) {
		return 0, fmt.Errorf("%w: %s", ErrNotMember, member)
	}

	id, err := m.engine.Submit(creator, KindRemoveMember,
		fmt.Sprintf("Remove %s", member),
		fmt.Sprintf("Remove member %s", member))
	if err != nil {
		return 0, err
	}

	m.mutex.Lock()
	m.removals[id] = member
	m.mutex.Unlock()
	return id, nil
}

// IsMember checks if an address is an admitted member
func (m *Manager) IsMember(address string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, exists := m.members[address]
	return exists
}

// Member returns a member by address
func (m *Manager) Member(address string) *Member {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if member, exists := m.members[address]; exists {
		copied := *member
		return &copied
	}
	return nil
}

// Members returns all admitted members
func (m *Manager) Members() []*Member {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	members := make([]*Member, 0, len(m.members))
	for _, member := range m.members {
		copied := *member
		members = append(members, &copied)
	}
	return members
}

// executeAdmission consumes the admission payload and admits the member
func (m *Manager) executeAdmission(id uint64, _ governance.Kind) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	payload, exists := m.admissions[id]
	if !exists {
		return fmt.Errorf("no admission payload for proposal %d", id)
	}

	m.members[payload.Address] = &Member{
		Address: payload.Address,
		Name:    payload.Name,
		Joined:  time.Now(),
	}
	delete(m.admissions, id)

	m.logger.Info("member admitted", "address", payload.Address, "proposal", id)
	return nil
}

// executeRemoval consumes the removal payload and removes the member
func (m *Manager) executeRemoval(id uint64, _ governance.Kind) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	address, exists := m.removals[id]
	if !exists {
		return fmt.Errorf("no removal payload for proposal %d", id)
	}

	delete(m.members, address)
	delete(m.removals, id)

	m.logger.Info("member removed", "address", address, "proposal", id)
	return nil
}
