package token

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
)

var (
	// ErrInsufficientBalance represents insufficient token balance error
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrHalted indicates the ledger is halted and rejects transfers
	ErrHalted = errors.New("ledger is halted")

	// ErrInvalidAmount indicates a non-positive amount
	ErrInvalidAmount = errors.New("amount must be positive")
)

// checkpointValue is an account balance as of the end of a block height
type checkpointValue struct {
	height uint64
	value  *big.Int
}

// Ledger is a checkpointed token ledger. Every balance write records the
// new balance against the current block height, so the balance an account
// held at any past height can be recovered. Historical lookups at height h
// see only writes made at or before h; writes in the current block are not
// visible to checkpoints below it.
type Ledger struct {
	height   uint64
	balances map[string]*big.Int
	history  map[string][]checkpointValue
	supply   *big.Int
	halted   bool
	mutex    sync.RWMutex
}

// NewLedger creates a new ledger at height zero
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]*big.Int),
		history:  make(map[string][]checkpointValue),
		supply:   big.NewInt(0),
	}
}

// Height returns the current block height
func (l *Ledger) Height() uint64 {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.height
}

// AdvanceBlock moves the ledger to the next block height and returns it
func (l *Ledger) AdvanceBlock() uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.height++
	return l.height
}

// Mint credits newly issued tokens to an address
func (l *Ledger) Mint(address string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance := l.currentBalance(address)
	l.setBalance(address, new(big.Int).Add(balance, amount))
	l.supply = new(big.Int).Add(l.supply, amount)
	return nil
}

// Transfer transfers tokens from one address to another
func (l *Ledger) Transfer(from, to string, amount *big.Int) error {
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.halted {
		return ErrHalted
	}

	fromBalance := l.currentBalance(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s",
			ErrInsufficientBalance, from, fromBalance, amount)
	}

	l.setBalance(from, new(big.Int).Sub(fromBalance, amount))
	l.setBalance(to, new(big.Int).Add(l.currentBalance(to), amount))
	return nil
}

// CurrentPower returns the power an address holds now
func (l *Ledger) CurrentPower(address string) *big.Int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return new(big.Int).Set(l.currentBalance(address))
}

// Balance returns the current balance of an address
func (l *Ledger) Balance(address string) *big.Int {
	return l.CurrentPower(address)
}

// PowerAt returns the power an address held at the given checkpoint height
func (l *Ledger) PowerAt(address string, checkpoint uint64) *big.Int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	history := l.history[address]
	// Latest entry at or below the checkpoint
	result := big.NewInt(0)
	lo, hi := 0, len(history)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		if history[mid].height <= checkpoint {
			result = history[mid].value
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return new(big.Int).Set(result)
}

// CurrentTotalSupply returns the circulating supply now
func (l *Ledger) CurrentTotalSupply() *big.Int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return new(big.Int).Set(l.supply)
}

// Halt stops all transfers until Resume is called
func (l *Ledger) Halt() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.halted = true
}

// Resume lifts a halt
func (l *Ledger) Resume() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.halted = false
}

// IsHalted reports whether the ledger is halted
func (l *Ledger) IsHalted() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.halted
}

// currentBalance must be called with the mutex held
func (l *Ledger) currentBalance(address string) *big.Int {
	if balance, exists := l.balances[address]; exists {
		return balance
	}
	return big.NewInt(0)
}

// setBalance must be called with the mutex held. It records the write in
// the address's checkpoint history, collapsing repeated writes within the
// same block into one entry.
func (l *Ledger) setBalance(address string, balance *big.Int) {
	l.balances[address] = balance

	history := l.history[address]
	if n := len(history); n > 0 && history[n-1].height == l.height {
		history[n-1].value = balance
		return
	}
	l.history[address] = append(history, checkpointValue{
		height: l.height,
		value:  balance,
	})
}
