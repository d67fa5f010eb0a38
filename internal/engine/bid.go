package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/terminal-bench/launchpad/pkg/address"
)

// BidType classifies how a bid reacts to curve movement.
type BidType string

const (
	// BidFixed fills only when the submitted price agrees with the
	// curve within the auction's slippage tolerance.
	BidFixed BidType = "fixed"
	// BidDynamic fills at the current curve price, with the submitted
	// price acting as a cap.
	BidDynamic BidType = "dynamic"
)

// BidStatus reflects the entry's settlement state.
type BidStatus string

const (
	// BidOpen marks a whitelist placeholder that has not traded.
	BidOpen BidStatus = "open"
	// BidFilled marks a settled bid.
	BidFilled BidStatus = "filled"
)

// Bid is the single entry per (bidder, auction). Whitelist membership is
// the mere existence of an entry with Whitelisted set, so membership
// checks are a lookup at the deterministic bid address, never a scan.
type Bid struct {
	Key         string    `json:"key"`
	Owner       string    `json:"owner"`
	AuctionKey  string    `json:"auction_key"`
	Type        BidType   `json:"type,omitempty"`
	Price       uint64    `json:"price"`
	Amount      uint64    `json:"amount"`
	Filled      uint64    `json:"filled"`
	Paid        uint64    `json:"paid"`
	Status      BidStatus `json:"status"`
	Whitelisted bool      `json:"whitelisted"`
	PlacedAt    time.Time `json:"placed_at"`
}

// WhitelistAdd is owner-only: it reserves zero-value bid slots for the
// given bidders so a later PlaceBid finds membership by presence.
// Already-present entries just gain the flag.
func (e *Engine) WhitelistAdd(caller, auctionName string, bidders []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, auctionName)
	if err != nil {
		return err
	}
	if len(bidders) == 0 {
		return fmt.Errorf("%w: no bidders given", ErrInvalidParams)
	}
	for _, id := range bidders {
		if id == "" {
			return fmt.Errorf("%w: empty bidder id", ErrInvalidParams)
		}
	}

	for _, id := range bidders {
		key := address.Bid(id, a.Key)
		if b, ok := e.bids[key]; ok {
			b.Whitelisted = true
			continue
		}
		e.bids[key] = &Bid{
			Key:         key,
			Owner:       id,
			AuctionKey:  a.Key,
			Status:      BidOpen,
			Whitelisted: true,
		}
	}
	return nil
}

// WhitelistRemove destroys placeholder entries. An entry with settled
// volume cannot be erased by the seller.
func (e *Engine) WhitelistRemove(caller, auctionName string, bidders []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.ownedAuction(caller, auctionName)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(bidders))
	for _, id := range bidders {
		key := address.Bid(id, a.Key)
		b, ok := e.bids[key]
		if !ok {
			continue
		}
		if b.Filled > 0 {
			return fmt.Errorf("%w: bidder %s has settled volume", ErrInvalidState, id)
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		delete(e.bids, key)
	}
	return nil
}

// PlaceBidParams is one buyer's offer against an auction.
type PlaceBidParams struct {
	Auction          string  `json:"auction"`
	Asset            string  `json:"asset"`
	Price            uint64  `json:"price"`
	Amount           uint64  `json:"amount"`
	Type             BidType `json:"type"`
	FundingAccount   string  `json:"funding_account"`
	ReceivingAccount string  `json:"receiving_account"`
}

// BidReceipt reports what a successful PlaceBid settled.
type BidReceipt struct {
	Auction   string `json:"auction"`
	Bidder    string `json:"bidder"`
	Asset     string `json:"asset"`
	Filled    uint64 `json:"filled"`
	Paid      uint64 `json:"paid"`
	TradeFee  uint64 `json:"trade_fee"`
	SellerNet uint64 `json:"seller_net"`
}

// PlaceBid settles a bid against the current curve in one atomic step:
// the payment leaves the bidder's funding account, the seller balance
// and payment custody grow by the net amount, the trade fee lands in the
// payment custody's fee accumulator, and the dispensed tokens leave the
// auction inventory for the bidder's receiving account.
//
// Re-placing overwrites the bidder's existing entry for this auction; it
// never creates a second one. A fixed bid whose price disagrees with the
// curve beyond the slippage tolerance is rejected with PriceOutOfRange
// and charged the invalid-bid fee instead of the trade fee.
func (e *Engine) PlaceBid(ctx context.Context, bidder string, p PlaceBidParams) (*BidReceipt, error) {
	// Quote I/O happens before the write lock so a slow oracle cannot
	// stall the ledger; the quotes are re-validated once inside.
	mq, err := e.fetchQuotes(ctx, p.Auction)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.launchpad == nil {
		return nil, fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	if !e.launchpad.Permissions.AllowNewBids {
		return nil, fmt.Errorf("%w: new bids are disabled", ErrInvalidState)
	}
	a, ok := e.auctions[address.Auction(p.Auction)]
	if !ok {
		return nil, fmt.Errorf("%w: no auction %q", ErrInvalidState, p.Auction)
	}
	if bidder == "" || p.Price == 0 || p.Amount == 0 || p.FundingAccount == "" || p.ReceivingAccount == "" {
		return nil, fmt.Errorf("%w: bidder, price, amount and accounts are required", ErrInvalidParams)
	}
	if p.Type != BidFixed && p.Type != BidDynamic {
		return nil, fmt.Errorf("%w: unknown bid type %q", ErrInvalidParams, p.Type)
	}

	now := e.now()
	if a.State != StateCreated && a.State != StateEnabled {
		return nil, fmt.Errorf("%w: auction %q is %s", ErrAuctionNotOpen, p.Auction, a.State)
	}
	if now.Before(a.StartTime) || !now.Before(a.EndTime) {
		return nil, fmt.Errorf("%w: outside auction window", ErrAuctionNotOpen)
	}

	bidKey := address.Bid(bidder, a.Key)
	existing := e.bids[bidKey]
	if a.EnforceWhitelist && (existing == nil || !existing.Whitelisted) {
		return nil, fmt.Errorf("%w: bidder %s has no membership entry", ErrNotWhitelisted, bidder)
	}

	asset := p.Asset
	if asset == "" {
		asset = a.Dispensers[0].Asset
	}
	d := a.dispenser(asset)
	if d == nil {
		return nil, fmt.Errorf("%w: %s is not dispensed by auction %q", ErrInvalidParams, asset, p.Auction)
	}

	fill := p.Amount
	if d.Inventory < fill {
		if p.Type == BidFixed || d.Inventory == 0 {
			return nil, fmt.Errorf("%w: inventory %d, want %d", ErrInsufficientInventory, d.Inventory, p.Amount)
		}
		fill = d.Inventory
	}

	unit, payDecimals, err := e.unitPrice(a, now, mq)
	if err != nil {
		return nil, err
	}
	cost, err := costOf(fill, d.Decimals, unit, payDecimals)
	if err != nil {
		return nil, err
	}
	if cost == 0 {
		return nil, fmt.Errorf("%w: bid too small to price", ErrInvalidParams)
	}

	payment := e.custodies[address.Custody(a.PaymentAsset)]

	if outOfRange(p, cost, a.SlippageBps) {
		// Client-attributable rejection: the invalid-bid fee is the
		// operation's entire effect.
		fee := a.Fees.InvalidBid.Apply(cost)
		if fee > 0 {
			if err := e.bank.Debit(p.FundingAccount, fee); err != nil {
				return nil, err
			}
			payment.Fees += fee
		}
		return nil, fmt.Errorf("%w: submitted %d against current %d", ErrPriceOutOfRange, p.Price, cost)
	}

	if err := e.bank.Debit(p.FundingAccount, cost); err != nil {
		return nil, err
	}
	if err := e.bank.Credit(p.ReceivingAccount, fill); err != nil {
		e.bank.Credit(p.FundingAccount, cost)
		return nil, err
	}

	tradeFee := a.Fees.Trade.Apply(cost)
	sellerNet := cost - tradeFee
	payment.Fees += tradeFee
	payment.credit(sellerNet)

	balKey := address.SellerBalance(a.Owner, payment.Key)
	e.sellerBalances[balKey] += sellerNet

	dispensing := e.custodies[d.CustodyKey]
	dispensing.Principal -= fill
	d.Inventory -= fill
	d.Dispensed += fill

	whitelisted := existing != nil && existing.Whitelisted
	e.bids[bidKey] = &Bid{
		Key:         bidKey,
		Owner:       bidder,
		AuctionKey:  a.Key,
		Type:        p.Type,
		Price:       p.Price,
		Amount:      p.Amount,
		Filled:      fill,
		Paid:        cost,
		Status:      BidFilled,
		Whitelisted: whitelisted,
		PlacedAt:    now,
	}
	a.BidCount++
	a.Proceeds += sellerNet

	return &BidReceipt{
		Auction:   p.Auction,
		Bidder:    bidder,
		Asset:     asset,
		Filled:    fill,
		Paid:      cost,
		TradeFee:  tradeFee,
		SellerNet: sellerNet,
	}, nil
}

// outOfRange compares the submitted price with the current curve cost.
func outOfRange(p PlaceBidParams, cost uint64, slippageBps uint64) bool {
	if p.Type == BidDynamic {
		// The submitted price is a cap.
		return cost > p.Price
	}
	var diff uint64
	if p.Price > cost {
		diff = p.Price - cost
	} else {
		diff = cost - p.Price
	}
	// diff/cost > slippageBps/10000, compared without division. Both
	// products can exceed uint64 for large costs.
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(diff), big.NewInt(10000))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(cost), new(big.Int).SetUint64(slippageBps))
	return lhs.Cmp(rhs) > 0
}

// CancelBid refunds any escrowed-but-unsettled remainder and destroys
// the bidder's entry for the auction.
func (e *Engine) CancelBid(bidder, auctionName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, ok := e.auctions[address.Auction(auctionName)]
	if !ok {
		return fmt.Errorf("%w: no auction %q", ErrInvalidState, auctionName)
	}
	key := address.Bid(bidder, a.Key)
	b, ok := e.bids[key]
	if !ok {
		return fmt.Errorf("%w: bidder %s on auction %q", ErrNoSuchBid, bidder, auctionName)
	}
	if b.Owner != bidder {
		return fmt.Errorf("%w: caller does not own this bid", ErrUnauthorized)
	}
	delete(e.bids, key)
	return nil
}

// GetBid returns a copy of the bid entry for (bidder, auction).
func (e *Engine) GetBid(bidder, auctionName string) (Bid, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.auctions[address.Auction(auctionName)]
	if !ok {
		return Bid{}, fmt.Errorf("%w: no auction %q", ErrInvalidState, auctionName)
	}
	b, ok := e.bids[address.Bid(bidder, a.Key)]
	if !ok {
		return Bid{}, fmt.Errorf("%w: bidder %s on auction %q", ErrNoSuchBid, bidder, auctionName)
	}
	return *b, nil
}

// WithdrawFundsParams pulls accumulated proceeds out to the seller.
type WithdrawFundsParams struct {
	Asset       string `json:"asset"`
	Amount      uint64 `json:"amount"`
	Destination string `json:"destination"`
}

// WithdrawFunds debits the seller balance and the payment custody
// principal and transfers to the destination, all in one step.
func (e *Engine) WithdrawFunds(seller string, p WithdrawFundsParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.launchpad == nil {
		return fmt.Errorf("%w: engine not initialized", ErrInvalidState)
	}
	if !e.launchpad.Permissions.AllowWithdrawals {
		return fmt.Errorf("%w: withdrawals are disabled", ErrInvalidState)
	}
	if p.Amount == 0 || p.Destination == "" {
		return fmt.Errorf("%w: amount and destination are required", ErrInvalidParams)
	}
	c, ok := e.custodies[address.Custody(p.Asset)]
	if !ok {
		return fmt.Errorf("%w: no custody for %s", ErrInvalidParams, p.Asset)
	}
	balKey := address.SellerBalance(seller, c.Key)
	bal := e.sellerBalances[balKey]
	if bal < p.Amount {
		return fmt.Errorf("%w: seller balance %d, need %d", ErrInsufficientFunds, bal, p.Amount)
	}
	if c.Principal < p.Amount {
		return fmt.Errorf("%w: custody principal %d, need %d", ErrInsufficientFunds, c.Principal, p.Amount)
	}

	if err := c.debit(p.Amount); err != nil {
		return err
	}
	if err := e.bank.Credit(p.Destination, p.Amount); err != nil {
		c.credit(p.Amount)
		return err
	}
	if bal == p.Amount {
		delete(e.sellerBalances, balKey)
	} else {
		e.sellerBalances[balKey] = bal - p.Amount
	}
	return nil
}

// GetSellerBalance reports the unwithdrawn proceeds for (seller, asset).
func (e *Engine) GetSellerBalance(seller, asset string) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sellerBalances[address.SellerBalance(seller, address.Custody(asset))]
}
