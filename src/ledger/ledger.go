package ledger

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"strategyvault/src/model"
)

// Well-known internal accounts.
const (
	VaultAccount = "vault"
	FeeAccount   = "protocol_fees"
)

// GasAsset is the currency gas-station fulfilments are paid in.
const GasAsset = "ETH"

// AssetLedger is the trusted token-custody collaborator. Every call is
// atomic and fails closed: a debit that cannot be covered moves nothing.
type AssetLedger interface {
	Debit(account, asset string, amount decimal.Decimal) error
	Credit(account, asset string, amount decimal.Decimal) error
	Balance(account, asset string) decimal.Decimal
}

// InMemoryLedger is the in-process implementation backing tests and the
// default deployment. Balances are keyed by account then asset.
type InMemoryLedger struct {
	mu       sync.Mutex
	balances map[string]map[string]decimal.Decimal
}

func NewInMemoryLedger() *InMemoryLedger {
	return &InMemoryLedger{balances: make(map[string]map[string]decimal.Decimal)}
}

// SetBalance seeds an account, mostly for tests and bootstrap.
func (l *InMemoryLedger) SetBalance(account, asset string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.set(account, asset, amount)
}

func (l *InMemoryLedger) set(account, asset string, amount decimal.Decimal) {
	if l.balances[account] == nil {
		l.balances[account] = make(map[string]decimal.Decimal)
	}
	l.balances[account][asset] = amount
}

func (l *InMemoryLedger) get(account, asset string) decimal.Decimal {
	if l.balances[account] == nil {
		return decimal.Zero
	}
	return l.balances[account][asset]
}

// Debit removes amount from the account's balance, failing closed when the
// balance cannot cover it.
func (l *InMemoryLedger) Debit(account, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative debit amount", model.ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.get(account, asset)
	if balance.LessThan(amount) {
		logger.WithFields(map[string]interface{}{
			"ledger":  "InMemoryLedger",
			"op":      "Debit",
			"account": account,
			"asset":   asset,
			"balance": balance.String(),
			"amount":  amount.String(),
		}).Warn("Debit rejected, insufficient balance")

		return fmt.Errorf("insufficient balance for %s/%s: have %s, need %s",
			account, asset, balance.String(), amount.String())
	}

	l.set(account, asset, balance.Sub(amount))
	return nil
}

// Credit adds amount to the account's balance.
func (l *InMemoryLedger) Credit(account, asset string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative credit amount", model.ErrInvalidParameter)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.set(account, asset, l.get(account, asset).Add(amount))
	return nil
}

// Balance returns the current balance of account/asset.
func (l *InMemoryLedger) Balance(account, asset string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.get(account, asset)
}
