package dispatch

import (
	"fmt"
	"sync"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
)

// Handler performs the kind-specific effect of an executed proposal. The
// payload it consumes is owned by the registering subsystem and keyed by
// the proposal ID.
type Handler func(id uint64, kind governance.Kind) error

// Registry routes executed proposals to the handler registered for their
// kind. Each subsystem registers its kinds at wiring time; the engine never
// inspects payloads.
type Registry struct {
	handlers map[governance.Kind]Handler
	mutex    sync.RWMutex
}

// NewRegistry creates a new handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[governance.Kind]Handler),
	}
}

// Register binds a handler to a proposal kind. Registering a kind twice is
// an error; kinds are owned by exactly one subsystem.
func (r *Registry) Register(kind governance.Kind, handler Handler) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if handler == nil {
		return fmt.Errorf("handler for kind %d is nil", kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("kind %d already registered", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// OnExecute invokes the handler registered for the proposal's kind
func (r *Registry) OnExecute(id uint64, kind governance.Kind) error {
	r.mutex.RLock()
	handler, exists := r.handlers[kind]
	r.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %d", governance.ErrUnknownProposalKind, kind)
	}
	return handler(id, kind)
}
