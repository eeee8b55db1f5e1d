package access

import (
	"fmt"
	"sync"

	logger "github.com/sirupsen/logrus"

	"strategyvault/src/model"
)

// MaxProtocolFeeBps caps the protocol fee at 1%.
const MaxProtocolFeeBps = 100

// AccessControl is the authorization gate: a single owner, an executor
// allow-list, the protocol fee and the oracle reference. It is explicit
// injected state, never package-global, and safe for concurrent use.
type AccessControl struct {
	mu        sync.RWMutex
	owner     string
	executors map[string]bool
	feeBps    int64
	oracleRef string
}

func NewAccessControl(owner string) *AccessControl {
	return &AccessControl{
		owner:     owner,
		executors: make(map[string]bool),
	}
}

// Owner returns the privileged principal.
func (a *AccessControl) Owner() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

// IsAuthorizedExecutor reports whether caller may trigger settlement:
// caller must be allow-listed or be the owner.
func (a *AccessControl) IsAuthorizedExecutor(caller string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return caller == a.owner || a.executors[caller]
}

// RequireExecutor returns ErrUnauthorized unless caller may settle.
func (a *AccessControl) RequireExecutor(caller string) error {
	if !a.IsAuthorizedExecutor(caller) {
		return fmt.Errorf("%w: %s", model.ErrUnauthorized, caller)
	}
	return nil
}

func (a *AccessControl) requireOwner(caller string) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if caller != a.owner {
		return fmt.Errorf("%w: owner required", model.ErrUnauthorized)
	}
	return nil
}

// AddExecutor allow-lists an address. Owner only.
func (a *AccessControl) AddExecutor(caller, addr string) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("%w: empty executor address", model.ErrInvalidParameter)
	}

	a.mu.Lock()
	a.executors[addr] = true
	a.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component": "AccessControl",
		"executor":  addr,
	}).Info("Executor authorized")

	return nil
}

// RemoveExecutor drops an address from the allow-list. Owner only.
func (a *AccessControl) RemoveExecutor(caller, addr string) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.executors, addr)
	a.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component": "AccessControl",
		"executor":  addr,
	}).Info("Executor removed")

	return nil
}

// Executors lists the current allow-list, owner excluded.
func (a *AccessControl) Executors() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.executors))
	for addr := range a.executors {
		out = append(out, addr)
	}
	return out
}

// SetProtocolFee updates the fee taken on settlement payouts, bounded at
// MaxProtocolFeeBps. Owner only.
func (a *AccessControl) SetProtocolFee(caller string, bps int64) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if bps < 0 || bps > MaxProtocolFeeBps {
		return fmt.Errorf("%w: protocol fee %d bps out of range", model.ErrInvalidParameter, bps)
	}

	a.mu.Lock()
	a.feeBps = bps
	a.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component": "AccessControl",
		"fee_bps":   bps,
	}).Info("Protocol fee updated")

	return nil
}

// FeeBps returns the current protocol fee.
func (a *AccessControl) FeeBps() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.feeBps
}

// SetOracle updates the oracle reference. Owner only.
func (a *AccessControl) SetOracle(caller, ref string) error {
	if err := a.requireOwner(caller); err != nil {
		return err
	}

	a.mu.Lock()
	a.oracleRef = ref
	a.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"component":  "AccessControl",
		"oracle_ref": ref,
	}).Info("Oracle reference updated")

	return nil
}

// OracleRef returns the configured oracle reference.
func (a *AccessControl) OracleRef() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.oracleRef
}

// Seed loads persisted principals into the allow-list at startup.
func (a *AccessControl) Seed(keys []model.ExecutorKey) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, k := range keys {
		if !k.Active {
			continue
		}
		switch k.Role {
		case model.RoleOwner:
			a.owner = k.Address
		case model.RoleExecutor:
			a.executors[k.Address] = true
		}
	}
}
