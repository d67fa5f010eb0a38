package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// GovStatus is the observable outcome of one governance call.
type GovStatus string

const (
	// GovPending means the approval was recorded but the threshold has
	// not been reached; the call had no effect beyond bookkeeping.
	GovPending GovStatus = "pending"
	// GovExecuted means this approval reached the threshold and the
	// operation's effect was applied atomically.
	GovExecuted GovStatus = "executed"
)

// multisig is the governance record: the ordered administrator set, the
// approval threshold, and one pending record per operation slot.
type multisig struct {
	Admins        []string
	MinSignatures int
	Pending       map[string]*pendingOp
}

// pendingOp tracks approvals for one privileged call. Approvals are an
// explicit per-admin set on the record, not ambient state; approving
// twice counts once, and order does not matter.
type pendingOp struct {
	Kind        string
	PayloadHash string
	Approvals   map[string]bool
}

func (m *multisig) isAdmin(id string) bool {
	for _, a := range m.Admins {
		if a == id {
			return true
		}
	}
	return false
}

// hashPayload fingerprints a governance payload so resubmissions of the
// same call are idempotent and conflicting ones are detected.
func hashPayload(kind string, payload interface{}) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf("%+v", payload))
	}
	sum := sha256.Sum256(append([]byte(kind+"|"), raw...))
	return hex.EncodeToString(sum[:])
}

// approve records one administrator approval for (kind, payload) and
// reports whether this call crossed the threshold. The threshold is read
// here, at execution time, so a proposal can never execute against a
// stale MinSignatures. Callers hold the engine lock.
func (e *Engine) approve(adminID, kind string, payload interface{}) (bool, error) {
	if e.multisig == nil {
		return false, fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	if !e.multisig.isAdmin(adminID) {
		return false, fmt.Errorf("%w: %s is not an administrator", ErrUnauthorized, adminID)
	}

	hash := hashPayload(kind, payload)
	p := e.multisig.Pending[kind]
	if p == nil {
		p = &pendingOp{
			Kind:        kind,
			PayloadHash: hash,
			Approvals:   make(map[string]bool),
		}
		e.multisig.Pending[kind] = p
	} else if p.PayloadHash != hash {
		return false, fmt.Errorf("%w: a different %s payload is pending", ErrStaleMismatch, kind)
	}

	p.Approvals[adminID] = true
	// Admins removed since their approval must not keep counting.
	count := 0
	for id := range p.Approvals {
		if e.multisig.isAdmin(id) {
			count++
		}
	}
	return count >= e.multisig.MinSignatures, nil
}

// clearProposal destroys a governance record. Called only after the
// operation's effect has fully applied, so a failed effect keeps its
// approvals and any later approval call retries it. Callers hold the
// engine lock.
func (e *Engine) clearProposal(kind string) {
	delete(e.multisig.Pending, kind)
}

// CancelProposal drops a pending governance record without executing it.
// Any administrator may cancel.
func (e *Engine) CancelProposal(adminID, kind string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.multisig == nil {
		return fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	if !e.multisig.isAdmin(adminID) {
		return fmt.Errorf("%w: %s is not an administrator", ErrUnauthorized, adminID)
	}
	if _, ok := e.multisig.Pending[kind]; !ok {
		return fmt.Errorf("%w: no pending %s proposal", ErrInvalidState, kind)
	}
	delete(e.multisig.Pending, kind)
	return nil
}

// Governance operation slots.
const (
	opSetAdminSigners = "set_admin_signers"
	opSetFees         = "set_fees"
	opSetPermissions  = "set_permissions"
	opSetOracleConfig = "set_oracle_config"
	opInitCustody     = "init_custody"
	opWithdrawFees    = "withdraw_fees"
	opDeleteAuction   = "delete_auction"
)

// InitParams seeds the governance record and the global config.
type InitParams struct {
	Admins        []string    `json:"admins"`
	MinSignatures int         `json:"min_signatures"`
	Fees          Fees        `json:"fees"`
	Permissions   Permissions `json:"permissions"`
}

// Init creates the multisig and launchpad config records. It runs once;
// later calls fail with AlreadyExists.
func (e *Engine) Init(p InitParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.multisig != nil {
		return fmt.Errorf("%w: launchpad already initialized", ErrAlreadyExists)
	}
	if len(p.Admins) == 0 || p.MinSignatures < 1 || p.MinSignatures > len(p.Admins) {
		return fmt.Errorf("%w: threshold %d over %d admins", ErrInvalidParams, p.MinSignatures, len(p.Admins))
	}
	seen := make(map[string]bool, len(p.Admins))
	for _, a := range p.Admins {
		if a == "" || seen[a] {
			return fmt.Errorf("%w: empty or duplicate admin id", ErrInvalidParams)
		}
		seen[a] = true
	}
	if err := p.Fees.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	e.multisig = &multisig{
		Admins:        append([]string(nil), p.Admins...),
		MinSignatures: p.MinSignatures,
		Pending:       make(map[string]*pendingOp),
	}
	e.launchpad = &launchpadConfig{
		Fees:        p.Fees,
		Permissions: p.Permissions,
	}
	return nil
}

// SetAdminSignersParams replaces the threshold and, when Admins is
// non-empty, the administrator set.
type SetAdminSignersParams struct {
	Admins        []string `json:"admins,omitempty"`
	MinSignatures int      `json:"min_signatures"`
}

// SetAdminSigners is multisig-gated like every other privileged call.
// On execution every other pending record is dropped: approvals gathered
// under the old set or threshold do not carry over.
func (e *Engine) SetAdminSigners(adminID string, p SetAdminSignersParams) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	newAdmins := p.Admins
	if len(newAdmins) == 0 && e.multisig != nil {
		newAdmins = e.multisig.Admins
	}
	if p.MinSignatures < 1 || p.MinSignatures > len(newAdmins) {
		return "", fmt.Errorf("%w: threshold %d over %d admins", ErrInvalidParams, p.MinSignatures, len(newAdmins))
	}

	done, err := e.approve(adminID, opSetAdminSigners, p)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}

	e.multisig.Admins = append([]string(nil), newAdmins...)
	e.multisig.MinSignatures = p.MinSignatures
	e.multisig.Pending = make(map[string]*pendingOp)
	return GovExecuted, nil
}

// SetFees replaces the global fee schedule.
func (e *Engine) SetFees(adminID string, fees Fees) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := fees.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	done, err := e.approve(adminID, opSetFees, fees)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}
	e.launchpad.Fees = fees
	e.clearProposal(opSetFees)
	return GovExecuted, nil
}

// SetPermissions replaces the global permission flags.
func (e *Engine) SetPermissions(adminID string, perms Permissions) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	done, err := e.approve(adminID, opSetPermissions, perms)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}
	e.launchpad.Permissions = perms
	e.clearProposal(opSetPermissions)
	return GovExecuted, nil
}

// AdminInfo is a read-only view of the governance record.
type AdminInfo struct {
	Admins        []string `json:"admins"`
	MinSignatures int      `json:"min_signatures"`
	PendingKinds  []string `json:"pending_kinds"`
}

func (e *Engine) Admins() (AdminInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.multisig == nil {
		return AdminInfo{}, fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	info := AdminInfo{
		Admins:        append([]string(nil), e.multisig.Admins...),
		MinSignatures: e.multisig.MinSignatures,
	}
	for kind := range e.multisig.Pending {
		info.PendingKinds = append(info.PendingKinds, kind)
	}
	return info, nil
}
