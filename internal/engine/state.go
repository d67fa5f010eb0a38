// Package engine implements the launchpad settlement state machine: the
// multisig governance gate, the custody/escrow ledger, the auction
// lifecycle with its oracle-fed price curve, and the bid registry.
//
// Every exported operation is one atomic step: all preconditions are
// checked before anything mutates, so a failed call leaves the ledger
// exactly as it was. A single mutex serializes writers; the quote
// functions only take the read lock.
package engine

import (
	"sync"
	"time"

	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/fraction"
)

// Fees is the launchpad fee schedule. All fractions round down.
type Fees struct {
	NewAuction    fraction.Fraction `json:"new_auction"`
	AuctionUpdate fraction.Fraction `json:"auction_update"`
	InvalidBid    fraction.Fraction `json:"invalid_bid"`
	Trade         fraction.Fraction `json:"trade"`
}

// Validate rejects any malformed fraction in the schedule.
func (f Fees) Validate() error {
	for _, fr := range []fraction.Fraction{f.NewAuction, f.AuctionUpdate, f.InvalidBid, f.Trade} {
		if err := fr.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Permissions are the global kill switches over engine activity.
type Permissions struct {
	AllowNewAuctions     bool `json:"allow_new_auctions"`
	AllowAuctionUpdates  bool `json:"allow_auction_updates"`
	AllowAuctionRefills  bool `json:"allow_auction_refills"`
	AllowAuctionPullouts bool `json:"allow_auction_pullouts"`
	AllowNewBids         bool `json:"allow_new_bids"`
	AllowWithdrawals     bool `json:"allow_withdrawals"`
}

// launchpadConfig is the singleton global record created by Init.
type launchpadConfig struct {
	Fees        Fees
	Permissions Permissions
}

// Engine holds the shared ledger state.
type Engine struct {
	mu             sync.RWMutex
	now            func() time.Time
	bank           Bank
	quotes         oracle.Source
	oracleDefaults oracle.Config

	multisig  *multisig
	launchpad *launchpadConfig

	custodies      map[string]*Custody
	auctions       map[string]*Auction
	bids           map[string]*Bid
	sellerBalances map[string]uint64
}

// Options configures a new engine. Bank and Quotes are the external
// collaborators of the engine; Clock defaults to time.Now.
type Options struct {
	Clock          func() time.Time
	Bank           Bank
	Quotes         oracle.Source
	OracleDefaults oracle.Config
}

var defaultOracleCfg = oracle.DefaultConfig()

// New builds an empty engine. Init must run before anything else.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.OracleDefaults.MaxStaleness == 0 {
		opts.OracleDefaults = defaultOracleCfg
	}
	return &Engine{
		now:            opts.Clock,
		bank:           opts.Bank,
		quotes:         opts.Quotes,
		oracleDefaults: opts.OracleDefaults,
		custodies:      make(map[string]*Custody),
		auctions:       make(map[string]*Auction),
		bids:           make(map[string]*Bid),
		sellerBalances: make(map[string]uint64),
	}
}
