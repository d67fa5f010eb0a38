// Package address derives deterministic ledger entry keys from a kind
// label and a key tuple. Any caller can compute where an entry lives
// without consulting an index, so the store never needs a registry or
// garbage collection of lookup tables.
package address

import (
	"crypto/sha256"
	"encoding/hex"
)

// Entry kind labels. Changing one re-keys every record of that kind, so
// these are frozen.
const (
	KindMultisig      = "multisig"
	KindLaunchpad     = "launchpad"
	KindCustody       = "custody"
	KindAuction       = "auction"
	KindSellerBalance = "seller_balance"
	KindBid           = "bid"
	KindDispense      = "dispense"
)

// Derive hashes the kind label and each seed, in order, into a fixed
// 32-byte key rendered as hex. Seeds are length-prefixed so that
// ("ab","c") and ("a","bc") cannot collide.
func Derive(kind string, seeds ...string) string {
	h := sha256.New()
	writeChunk(h, kind)
	for _, s := range seeds {
		writeChunk(h, s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeChunk(h interface{ Write([]byte) (int, error) }, s string) {
	var prefix [4]byte
	n := len(s)
	prefix[0] = byte(n >> 24)
	prefix[1] = byte(n >> 16)
	prefix[2] = byte(n >> 8)
	prefix[3] = byte(n)
	h.Write(prefix[:])
	h.Write([]byte(s))
}

// Multisig returns the governance record key.
func Multisig() string { return Derive(KindMultisig) }

// Launchpad returns the global config record key.
func Launchpad() string { return Derive(KindLaunchpad) }

// Custody returns the escrow record key for an asset.
func Custody(asset string) string { return Derive(KindCustody, asset) }

// Auction returns the auction record key for an owner-chosen name.
func Auction(name string) string { return Derive(KindAuction, name) }

// SellerBalance returns the proceeds record key for (seller, custody).
func SellerBalance(seller, custodyKey string) string {
	return Derive(KindSellerBalance, seller, custodyKey)
}

// Bid returns the bid record key for (bidder, auction).
func Bid(bidder, auctionKey string) string {
	return Derive(KindBid, bidder, auctionKey)
}

// Dispense returns the per-auction escrow key for a dispensable asset.
func Dispense(asset, auctionKey string) string {
	return Derive(KindDispense, asset, auctionKey)
}
