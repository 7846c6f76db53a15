package treasury

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/fractional-finance/frabric-protocol/pkg/governance"
	"github.com/fractional-finance/frabric-protocol/pkg/governance/dispatch"
	"github.com/fractional-finance/frabric-protocol/pkg/token"
)

// KindDisbursement is the treasury transfer proposal kind
const KindDisbursement governance.Kind = 0x10

// disbursement is the payload stored at proposal-creation time
type disbursement struct {
	Recipient string
	Amount    *big.Int
}

// Treasury runs community-fund disbursements through the governance engine.
// An executed disbursement proposal transfers tokens from the treasury
// account on the ledger to the recipient.
type Treasury struct {
	account  string
	ledger   *token.Ledger
	engine   *governance.Engine
	payloads map[uint64]*disbursement
	logger   *slog.Logger
	mutex    sync.RWMutex
}

// New creates a treasury bound to an account on the ledger
func New(account string, ledger *token.Ledger, engine *governance.Engine, logger *slog.Logger) *Treasury {
	if logger == nil {
		logger = slog.Default()
	}
	return &Treasury{
		account:  account,
		ledger:   ledger,
		engine:   engine,
		payloads: make(map[uint64]*disbursement),
		logger:   logger,
	}
}

// RegisterHandlers binds the disbursement kind to the registry
func (t *Treasury) RegisterHandlers(registry *dispatch.Registry) error {
	return registry.Register(KindDisbursement, t.execute)
}

// Account returns the treasury account address
func (t *Treasury) Account() string {
	return t.account
}

// Balance returns the treasury's current holdings
func (t *Treasury) Balance() *big.Int {
	return t.ledger.Balance(t.account)
}

// ProposeDisbursement creates a proposal to pay the recipient from the
// treasury and stores its payload under the new proposal's ID. The balance
// is checked at execution time, not here; holdings can change during the
// voting window.
func (t *Treasury) ProposeDisbursement(creator, recipient string, amount *big.Int) (uint64, error) {
	if recipient == "" {
		return 0, fmt.Errorf("recipient address is required")
	}
	if amount == nil || amount.Sign() <= 0 {
		return 0, token.ErrInvalidAmount
	}

	id, err := t.engine.Submit(creator, KindDisbursement,
		fmt.Sprintf("Disburse %s to %s", amount, recipient),
		fmt.Sprintf("Transfer %s tokens from the treasury to %s", amount, recipient))
	if err != nil {
		return 0, err
	}

	t.mutex.Lock()
	t.payloads[id] = &disbursement{
		Recipient: recipient,
		Amount:    new(big.Int).Set(amount),
	}
	t.mutex.Unlock()
	return id, nil
}

// execute consumes the payload and performs the transfer
func (t *Treasury) execute(id uint64, _ governance.Kind) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	payload, exists := t.payloads[id]
	if !exists {
		return fmt.Errorf("no disbursement payload for proposal %d", id)
	}

	if err := t.ledger.Transfer(t.account, payload.Recipient, payload.Amount); err != nil {
		return fmt.Errorf("disburse proposal %d: %w", id, err)
	}
	delete(t.payloads, id)

	t.logger.Info("treasury disbursement",
		"recipient", payload.Recipient, "amount", payload.Amount, "proposal", id)
	return nil
}
