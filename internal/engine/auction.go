package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/terminal-bench/launchpad/pkg/address"
	"github.com/terminal-bench/launchpad/pkg/fraction"
)

// AuctionState is the lifecycle state. Deletion removes the record, so
// there is no stored "deleted" state; the address simply stops resolving.
type AuctionState string

const (
	StateCreated  AuctionState = "created"
	StateEnabled  AuctionState = "enabled"
	StateDisabled AuctionState = "disabled"
)

// Dispenser tracks one dispensable asset's remaining inventory. The
// matching escrow record lives in the custody map under CustodyKey and
// its principal always equals Inventory.
type Dispenser struct {
	Asset      string `json:"asset"`
	Decimals   uint8  `json:"decimals"`
	CustodyKey string `json:"custody_key"`
	Inventory  uint64 `json:"inventory"`
	Dispensed  uint64 `json:"dispensed"`
}

// Auction is one sale: lifecycle flags, pricing parameters, per-asset
// inventory and a fee schedule snapshot taken at creation.
type Auction struct {
	Key              string       `json:"key"`
	Name             string       `json:"name"`
	Owner            string       `json:"owner"`
	State            AuctionState `json:"state"`
	PricingAsset     string       `json:"pricing_asset"`
	PaymentAsset     string       `json:"payment_asset"`
	Dispensers       []Dispenser  `json:"dispensers"`
	Fees             Fees         `json:"fees"`
	EnforceWhitelist bool         `json:"enforce_whitelist"`
	SlippageBps      uint64       `json:"slippage_bps"`
	StartTime        time.Time    `json:"start_time"`
	EndTime          time.Time    `json:"end_time"`
	Curve            CurveParams  `json:"curve"`

	Funded           bool   `json:"funded"`
	UpdateFeePending bool   `json:"update_fee_pending"`
	BidCount         uint64 `json:"bid_count"`
	Proceeds         uint64 `json:"proceeds"`
}

func (a *Auction) dispenser(asset string) *Dispenser {
	for i := range a.Dispensers {
		if a.Dispensers[i].Asset == asset {
			return &a.Dispensers[i]
		}
	}
	return nil
}

// AssetMeta names a dispensable asset and its decimal scale.
type AssetMeta struct {
	Asset    string `json:"asset"`
	Decimals uint8  `json:"decimals"`
}

// InitAuctionParams creates an auction. InitialInventory must line up
// one-to-one with DispensingAssets; FundingAccounts is required wherever
// the matching initial inventory is nonzero.
type InitAuctionParams struct {
	Name             string      `json:"name"`
	PricingAsset     string      `json:"pricing_asset"`
	PaymentAsset     string      `json:"payment_asset"`
	DispensingAssets []AssetMeta `json:"dispensing_assets"`
	InitialInventory []uint64    `json:"initial_inventory"`
	FundingAccounts  []string    `json:"funding_accounts,omitempty"`
	StartTime        time.Time   `json:"start_time"`
	EndTime          time.Time   `json:"end_time"`
	Curve            CurveParams `json:"curve"`
	EnforceWhitelist bool        `json:"enforce_whitelist"`
	SlippageBps      uint64      `json:"slippage_bps"`
}

// InitAuction creates the auction in Enabled, or Created when the start
// time is still in the future. The global fee schedule is snapshotted
// onto the record; newAuctionFee is charged against the first funding.
func (e *Engine) InitAuction(owner string, p InitAuctionParams) (*Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.launchpad == nil {
		return nil, fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	if !e.launchpad.Permissions.AllowNewAuctions {
		return nil, fmt.Errorf("%w: new auctions are disabled", ErrInvalidState)
	}
	if owner == "" || strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("%w: owner and name are required", ErrInvalidParams)
	}
	key := address.Auction(p.Name)
	if _, ok := e.auctions[key]; ok {
		return nil, fmt.Errorf("%w: auction %q", ErrAlreadyExists, p.Name)
	}
	if _, ok := e.custodies[address.Custody(p.PricingAsset)]; !ok {
		return nil, fmt.Errorf("%w: no pricing custody for %s", ErrInvalidParams, p.PricingAsset)
	}
	if _, ok := e.custodies[address.Custody(p.PaymentAsset)]; !ok {
		return nil, fmt.Errorf("%w: no payment custody for %s", ErrInvalidParams, p.PaymentAsset)
	}
	if len(p.DispensingAssets) == 0 {
		return nil, fmt.Errorf("%w: at least one dispensing asset", ErrInvalidParams)
	}
	if len(p.InitialInventory) != len(p.DispensingAssets) {
		return nil, fmt.Errorf("%w: inventory list length %d does not match %d asset metas",
			ErrInvalidParams, len(p.InitialInventory), len(p.DispensingAssets))
	}
	seen := make(map[string]bool, len(p.DispensingAssets))
	for _, m := range p.DispensingAssets {
		if m.Asset == "" || seen[m.Asset] {
			return nil, fmt.Errorf("%w: empty or duplicate dispensing asset", ErrInvalidParams)
		}
		seen[m.Asset] = true
	}
	if err := p.Curve.Validate(p.StartTime, p.EndTime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	for i, inv := range p.InitialInventory {
		if inv > 0 && (len(p.FundingAccounts) <= i || p.FundingAccounts[i] == "") {
			return nil, fmt.Errorf("%w: funding account required for %s",
				ErrInvalidParams, p.DispensingAssets[i].Asset)
		}
	}

	now := e.now()
	state := StateEnabled
	if p.StartTime.After(now) {
		state = StateCreated
	}

	a := &Auction{
		Key:              key,
		Name:             p.Name,
		Owner:            owner,
		State:            state,
		PricingAsset:     p.PricingAsset,
		PaymentAsset:     p.PaymentAsset,
		Fees:             e.launchpad.Fees,
		EnforceWhitelist: p.EnforceWhitelist,
		SlippageBps:      p.SlippageBps,
		StartTime:        p.StartTime,
		EndTime:          p.EndTime,
		Curve:            p.Curve,
	}
	for _, m := range p.DispensingAssets {
		a.Dispensers = append(a.Dispensers, Dispenser{
			Asset:      m.Asset,
			Decimals:   m.Decimals,
			CustodyKey: address.Dispense(m.Asset, key),
		})
	}

	// External debits happen before any internal state is committed;
	// a failed debit unwinds the earlier ones so the call stays total.
	var debited []int
	for i, inv := range p.InitialInventory {
		if inv == 0 {
			continue
		}
		if err := e.bank.Debit(p.FundingAccounts[i], inv); err != nil {
			for _, j := range debited {
				e.bank.Credit(p.FundingAccounts[j], p.InitialInventory[j])
			}
			return nil, err
		}
		debited = append(debited, i)
	}

	for i, inv := range p.InitialInventory {
		d := &a.Dispensers[i]
		c := &Custody{
			Key:      d.CustodyKey,
			Asset:    d.Asset,
			Decimals: d.Decimals,
		}
		if inv > 0 {
			fee := a.Fees.NewAuction.Apply(inv)
			c.Fees += fee
			c.Principal += inv - fee
			d.Inventory += inv - fee
			a.Funded = true
		}
		e.custodies[d.CustodyKey] = c
	}

	e.auctions[key] = a
	out := *a
	return &out, nil
}

// UpdateAuctionParams carries optional field overrides; nil means keep.
type UpdateAuctionParams struct {
	Name             string       `json:"name"`
	Curve            *CurveParams `json:"curve,omitempty"`
	StartTime        *time.Time   `json:"start_time,omitempty"`
	EndTime          *time.Time   `json:"end_time,omitempty"`
	EnforceWhitelist *bool        `json:"enforce_whitelist,omitempty"`
	SlippageBps      *uint64      `json:"slippage_bps,omitempty"`
}

// UpdateAuction is owner-only. The update fee is charged against the
// next funding rather than on the spot.
func (e *Engine) UpdateAuction(caller string, p UpdateAuctionParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, p.Name)
	if err != nil {
		return err
	}
	if !e.launchpad.Permissions.AllowAuctionUpdates {
		return fmt.Errorf("%w: auction updates are disabled", ErrInvalidState)
	}

	start, end := a.StartTime, a.EndTime
	if p.StartTime != nil {
		start = *p.StartTime
	}
	if p.EndTime != nil {
		end = *p.EndTime
	}
	curve := a.Curve
	if p.Curve != nil {
		curve = *p.Curve
	}
	if err := curve.Validate(start, end); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	a.StartTime, a.EndTime, a.Curve = start, end, curve
	if p.EnforceWhitelist != nil {
		a.EnforceWhitelist = *p.EnforceWhitelist
	}
	if p.SlippageBps != nil {
		a.SlippageBps = *p.SlippageBps
	}
	a.UpdateFeePending = !a.Fees.AuctionUpdate.IsZero()
	return nil
}

// EnableAuction opens an auction for bids. Enabling an already enabled
// auction fails loudly to surface client bugs.
func (e *Engine) EnableAuction(caller, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, name)
	if err != nil {
		return err
	}
	if a.State == StateEnabled {
		return fmt.Errorf("%w: auction %q already enabled", ErrInvalidState, name)
	}
	a.State = StateEnabled
	return nil
}

// DisableAuction blocks new bids but keeps owner inventory management
// and governance fee withdrawal available.
func (e *Engine) DisableAuction(caller, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, name)
	if err != nil {
		return err
	}
	if a.State == StateDisabled {
		return fmt.Errorf("%w: auction %q already disabled", ErrInvalidState, name)
	}
	a.State = StateDisabled
	return nil
}

// AddTokensParams funds an auction's dispensable inventory.
type AddTokensParams struct {
	Auction        string `json:"auction"`
	Asset          string `json:"asset"`
	Amount         uint64 `json:"amount"`
	FundingAccount string `json:"funding_account"`
}

// AddTokens moves tokens from the owner's funding account into the
// dispensing escrow and the auction inventory in one step. The first
// funding pays newAuctionFee; the first funding after an update pays
// auctionUpdateFee.
func (e *Engine) AddTokens(caller string, p AddTokensParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, p.Auction)
	if err != nil {
		return err
	}
	if !e.launchpad.Permissions.AllowAuctionRefills {
		return fmt.Errorf("%w: auction refills are disabled", ErrInvalidState)
	}
	if p.Amount == 0 || p.FundingAccount == "" {
		return fmt.Errorf("%w: amount and funding account are required", ErrInvalidParams)
	}
	d := a.dispenser(p.Asset)
	if d == nil {
		return fmt.Errorf("%w: %s is not dispensed by auction %q", ErrInvalidParams, p.Asset, p.Auction)
	}

	var feeRate fraction.Fraction
	switch {
	case !a.Funded:
		feeRate = a.Fees.NewAuction
	case a.UpdateFeePending:
		feeRate = a.Fees.AuctionUpdate
	}

	if err := e.bank.Debit(p.FundingAccount, p.Amount); err != nil {
		return err
	}

	fee := feeRate.Apply(p.Amount)
	c := e.custodies[d.CustodyKey]
	c.Fees += fee
	c.credit(p.Amount - fee)
	d.Inventory += p.Amount - fee
	a.Funded = true
	a.UpdateFeePending = false
	return nil
}

// RemoveTokensParams pulls undispensed inventory back out.
type RemoveTokensParams struct {
	Auction          string `json:"auction"`
	Asset            string `json:"asset"`
	Amount           uint64 `json:"amount"`
	ReceivingAccount string `json:"receiving_account"`
}

func (e *Engine) RemoveTokens(caller string, p RemoveTokensParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, p.Auction)
	if err != nil {
		return err
	}
	if !e.launchpad.Permissions.AllowAuctionPullouts {
		return fmt.Errorf("%w: auction pullouts are disabled", ErrInvalidState)
	}
	if p.Amount == 0 || p.ReceivingAccount == "" {
		return fmt.Errorf("%w: amount and receiving account are required", ErrInvalidParams)
	}
	d := a.dispenser(p.Asset)
	if d == nil {
		return fmt.Errorf("%w: %s is not dispensed by auction %q", ErrInvalidParams, p.Asset, p.Auction)
	}
	if d.Inventory < p.Amount {
		return fmt.Errorf("%w: inventory %d, need %d", ErrInsufficientInventory, d.Inventory, p.Amount)
	}

	c := e.custodies[d.CustodyKey]
	if err := c.debit(p.Amount); err != nil {
		return err
	}
	if err := e.bank.Credit(p.ReceivingAccount, p.Amount); err != nil {
		c.credit(p.Amount)
		return err
	}
	d.Inventory -= p.Amount
	return nil
}

// DeleteAuctionParams destroys an auction. When SweepTo is set the
// remaining inventory is force-swept to that account instead of failing
// with InventoryNotEmpty.
type DeleteAuctionParams struct {
	Name    string `json:"name"`
	SweepTo string `json:"sweep_to,omitempty"`
}

// DeleteAuction is governance-gated and terminal: the record, its
// dispensing escrows and all of its bids become unreachable.
func (e *Engine) DeleteAuction(adminID string, p DeleteAuctionParams) (GovStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.auctions[address.Auction(p.Name)]
	if !ok {
		return "", fmt.Errorf("%w: no auction %q", ErrInvalidState, p.Name)
	}
	if p.SweepTo == "" {
		for _, d := range a.Dispensers {
			if d.Inventory > 0 {
				return "", fmt.Errorf("%w: %d of %s undispensed", ErrInventoryNotEmpty, d.Inventory, d.Asset)
			}
		}
	}

	done, err := e.approve(adminID, opDeleteAuction, p)
	if err != nil {
		return "", err
	}
	if !done {
		return GovPending, nil
	}

	// Sweep via the bank first; a failed credit unwinds the earlier ones
	// and leaves the auction, its escrows and the proposal intact.
	var swept []int
	for i := range a.Dispensers {
		if a.Dispensers[i].Inventory == 0 {
			continue
		}
		if err := e.bank.Credit(p.SweepTo, a.Dispensers[i].Inventory); err != nil {
			for _, j := range swept {
				e.bank.Debit(p.SweepTo, a.Dispensers[j].Inventory)
			}
			return "", err
		}
		swept = append(swept, i)
	}

	for i := range a.Dispensers {
		d := &a.Dispensers[i]
		if d.Inventory > 0 {
			e.custodies[d.CustodyKey].Principal -= d.Inventory
			d.Inventory = 0
		}
		delete(e.custodies, d.CustodyKey)
	}
	for key, b := range e.bids {
		if b.AuctionKey == a.Key {
			delete(e.bids, key)
		}
	}
	delete(e.auctions, a.Key)
	e.clearProposal(opDeleteAuction)
	return GovExecuted, nil
}

// GetAuction returns a copy of the auction record.
func (e *Engine) GetAuction(name string) (Auction, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.auctions[address.Auction(name)]
	if !ok {
		return Auction{}, fmt.Errorf("%w: no auction %q", ErrInvalidState, name)
	}
	out := *a
	out.Dispensers = append([]Dispenser(nil), a.Dispensers...)
	return out, nil
}

// ownedAuction resolves an auction and enforces owner-only access.
// Callers hold the engine lock.
func (e *Engine) ownedAuction(caller, name string) (*Auction, error) {
	if e.launchpad == nil {
		return nil, fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	a, ok := e.auctions[address.Auction(name)]
	if !ok {
		return nil, fmt.Errorf("%w: no auction %q", ErrInvalidState, name)
	}
	if a.Owner != caller {
		return nil, fmt.Errorf("%w: caller is not the auction owner", ErrUnauthorized)
	}
	return a, nil
}
