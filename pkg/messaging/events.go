package messaging

import "time"

// Subjects for engine events.
const (
	SubjectAuctionCreated  = "launchpad.auction.created"
	SubjectAuctionUpdated  = "launchpad.auction.updated"
	SubjectAuctionDeleted  = "launchpad.auction.deleted"
	SubjectBidPlaced       = "launchpad.bid.placed"
	SubjectBidCancelled    = "launchpad.bid.cancelled"
	SubjectFundsWithdrawn  = "launchpad.funds.withdrawn"
	SubjectFeesWithdrawn   = "launchpad.fees.withdrawn"
	SubjectGovernanceEvent = "launchpad.governance"
)

// AuctionEvent reports an auction lifecycle change.
type AuctionEvent struct {
	Auction   string    `json:"auction"`
	Owner     string    `json:"owner,omitempty"`
	State     string    `json:"state,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// BidEvent reports a settled or cancelled bid.
type BidEvent struct {
	Auction   string    `json:"auction"`
	Bidder    string    `json:"bidder"`
	Asset     string    `json:"asset,omitempty"`
	Filled    uint64    `json:"filled,omitempty"`
	Paid      uint64    `json:"paid,omitempty"`
	TradeFee  uint64    `json:"trade_fee,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WithdrawalEvent reports funds or fees leaving custody.
type WithdrawalEvent struct {
	Asset       string    `json:"asset"`
	Amount      uint64    `json:"amount"`
	Destination string    `json:"destination"`
	Kind        string    `json:"kind"` // "funds" or "fees"
	Timestamp   time.Time `json:"timestamp"`
}

// GovernanceEvent reports a multisig call outcome.
type GovernanceEvent struct {
	Operation string    `json:"operation"`
	Admin     string    `json:"admin"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
