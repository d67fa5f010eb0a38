package engine

import "errors"

// Every failure is detected before any state mutation and is
// caller-correctable; the engine retries nothing on its own.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrInvalidState          = errors.New("invalid state")
	ErrInvalidParams         = errors.New("invalid params")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrNotWhitelisted        = errors.New("not whitelisted")
	ErrNoSuchBid             = errors.New("no such bid")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInventoryNotEmpty     = errors.New("inventory not empty")
	ErrStaleMismatch         = errors.New("stale governance payload mismatch")
	ErrPriceOutOfRange       = errors.New("price out of range")
	ErrAuctionNotOpen        = errors.New("auction not open")
)
