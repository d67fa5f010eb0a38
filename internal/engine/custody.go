package engine

import (
	"fmt"
	"time"

	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/address"
)

// Custody is the escrow record for one asset. Principal and collected
// fees are disjoint sub-balances; neither may go negative.
type Custody struct {
	Key       string        `json:"key"`
	Asset     string        `json:"asset"`
	Decimals  uint8         `json:"decimals"`
	OracleRef string        `json:"oracle_ref"`
	Oracle    oracle.Config `json:"-"`
	Principal uint64        `json:"principal"`
	Fees      uint64        `json:"fees"`
}

func (c *Custody) credit(amount uint64) {
	c.Principal += amount
}

func (c *Custody) debit(amount uint64) error {
	if c.Principal < amount {
		return fmt.Errorf("%w: custody %s holds %d, need %d",
			ErrInsufficientFunds, c.Asset, c.Principal, amount)
	}
	c.Principal -= amount
	return nil
}

// InitCustodyParams creates the escrow record for one asset.
type InitCustodyParams struct {
	Asset        string        `json:"asset"`
	Decimals     uint8         `json:"decimals"`
	OracleRef    string        `json:"oracle_ref"`
	MaxStaleness time.Duration `json:"max_staleness,omitempty"`
	MaxConfBps   uint64        `json:"max_conf_bps,omitempty"`
}

// InitCustody is governance-gated. The existence check runs at execution
// time so a custody created while the proposal gathered approvals still
// fails with AlreadyExists.
func (e *Engine) InitCustody(adminID string, p InitCustodyParams) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Asset == "" || p.OracleRef == "" {
		return "", fmt.Errorf("%w: asset and oracle_ref are required", ErrInvalidParams)
	}
	key := address.Custody(p.Asset)
	if _, ok := e.custodies[key]; ok {
		return "", fmt.Errorf("%w: custody for %s", ErrAlreadyExists, p.Asset)
	}

	done, err := e.approve(adminID, opInitCustody, p)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}

	cfg := e.oracleDefaults
	if p.MaxStaleness > 0 {
		cfg.MaxStaleness = p.MaxStaleness
	}
	if p.MaxConfBps > 0 {
		cfg.MaxConfBps = p.MaxConfBps
	}
	e.custodies[key] = &Custody{
		Key:       key,
		Asset:     p.Asset,
		Decimals:  p.Decimals,
		OracleRef: p.OracleRef,
		Oracle:    cfg,
	}
	e.clearProposal(opInitCustody)
	return GovExecuted, nil
}

// SetOracleConfigParams retargets a custody's price oracle and bounds.
type SetOracleConfigParams struct {
	Asset        string        `json:"asset"`
	OracleRef    string        `json:"oracle_ref"`
	MaxStaleness time.Duration `json:"max_staleness"`
	MaxConfBps   uint64        `json:"max_conf_bps"`
}

func (e *Engine) SetOracleConfig(adminID string, p SetOracleConfigParams) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.custodies[address.Custody(p.Asset)]
	if !ok {
		return "", fmt.Errorf("%w: no custody for %s", ErrInvalidParams, p.Asset)
	}
	if p.OracleRef == "" {
		return "", fmt.Errorf("%w: oracle_ref is required", ErrInvalidParams)
	}
	if p.MaxStaleness < 0 {
		return "", fmt.Errorf("%w: negative max_staleness", ErrInvalidParams)
	}

	done, err := e.approve(adminID, opSetOracleConfig, p)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}

	// Zero bounds fall back to the engine defaults, same as InitCustody;
	// a bound of zero would otherwise reject every quote.
	cfg := e.oracleDefaults
	if p.MaxStaleness > 0 {
		cfg.MaxStaleness = p.MaxStaleness
	}
	if p.MaxConfBps > 0 {
		cfg.MaxConfBps = p.MaxConfBps
	}
	c.OracleRef = p.OracleRef
	c.Oracle = cfg
	e.clearProposal(opSetOracleConfig)
	return GovExecuted, nil
}

// WithdrawFeesParams moves collected fees out to an external account.
// Auction is set to draw from an auction's dispense escrow instead of
// the asset's top-level custody.
type WithdrawFeesParams struct {
	Asset       string `json:"asset"`
	Auction     string `json:"auction,omitempty"`
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
}

// WithdrawFees is governance-gated and draws from the fee accumulator
// only; principal is never touched.
func (e *Engine) WithdrawFees(adminID string, p WithdrawFeesParams) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if p.Amount == 0 || p.Destination == "" {
		return "", fmt.Errorf("%w: amount and destination are required", ErrInvalidParams)
	}
	key := address.Custody(p.Asset)
	if p.Auction != "" {
		key = address.Dispense(p.Asset, address.Auction(p.Auction))
	}
	c, ok := e.custodies[key]
	if !ok {
		return "", fmt.Errorf("%w: no custody for %s", ErrInvalidParams, p.Asset)
	}
	if c.Fees < p.Amount {
		return "", fmt.Errorf("%w: fee balance %d, need %d", ErrInsufficientFunds, c.Fees, p.Amount)
	}

	done, err := e.approve(adminID, opWithdrawFees, p)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}

	// Re-check at execution time; fees may have been spent since the
	// proposal was opened.
	if c.Fees < p.Amount {
		return "", fmt.Errorf("%w: fee balance %d, need %d", ErrInsufficientFunds, c.Fees, p.Amount)
	}
	// A failed transfer keeps the proposal and its approvals so the
	// withdrawal can be retried.
	if err := e.bank.Credit(p.Destination, p.Amount); err != nil {
		return "", err
	}
	c.Fees -= p.Amount
	e.clearProposal(opWithdrawFees)
	return GovExecuted, nil
}

// GetCustody returns a copy of the custody record for an asset.
func (e *Engine) GetCustody(asset string) (Custody, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	c, ok := e.custodies[address.Custody(asset)]
	if !ok {
		return Custody{}, fmt.Errorf("%w: no custody for %s", ErrInvalidParams, asset)
	}
	return *c, nil
}
