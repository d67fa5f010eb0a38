package engine

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/address"
)

// PriceModel selects how the curve moves over the auction window.
type PriceModel string

const (
	// ModelFixed quotes a constant price for the whole window.
	ModelFixed PriceModel = "fixed"
	// ModelLinear decays linearly from StartPrice to EndPrice across
	// the window (a Dutch auction).
	ModelLinear PriceModel = "linear"
)

// CurveParams price one whole dispensed token in pricing-asset base
// units; the oracle rate then converts that into the payment asset.
type CurveParams struct {
	Model      PriceModel `json:"model"`
	StartPrice uint64     `json:"start_price"`
	EndPrice   uint64     `json:"end_price,omitempty"`
}

func (c CurveParams) Validate(start, end time.Time) error {
	switch c.Model {
	case ModelFixed:
		if c.StartPrice == 0 {
			return fmt.Errorf("fixed curve needs a nonzero price")
		}
	case ModelLinear:
		if c.StartPrice == 0 || c.EndPrice == 0 {
			return fmt.Errorf("linear curve needs nonzero start and end prices")
		}
	default:
		return fmt.Errorf("unknown price model %q", c.Model)
	}
	if !end.After(start) {
		return fmt.Errorf("auction window end must be after start")
	}
	return nil
}

// priceAt evaluates the curve at the given instant, clamped to the
// window, in pricing-asset base units per whole dispensed token.
func (c CurveParams) priceAt(at, start, end time.Time) decimal.Decimal {
	sp := decFromUint(c.StartPrice)
	if c.Model == ModelFixed {
		return sp
	}
	if !at.After(start) {
		return sp
	}
	ep := decFromUint(c.EndPrice)
	if !at.Before(end) {
		return ep
	}
	elapsed := decimal.NewFromInt(int64(at.Sub(start)))
	total := decimal.NewFromInt(int64(end.Sub(start)))
	return sp.Add(ep.Sub(sp).Mul(elapsed).Div(total))
}

func decFromUint(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// decToUint floors a non-negative decimal into integer token units.
func decToUint(d decimal.Decimal) (uint64, error) {
	if d.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative token amount", ErrInvalidParams)
	}
	i := d.Floor().BigInt()
	if !i.IsUint64() {
		return 0, fmt.Errorf("%w: token amount out of range", ErrInvalidParams)
	}
	return i.Uint64(), nil
}

// marketQuotes carries prefetched oracle observations together with the
// refs they were fetched for, so settlement can detect a retarget that
// happened while the fetch was in flight.
type marketQuotes struct {
	pricingRef string
	paymentRef string
	pricing    oracle.Quote
	payment    oracle.Quote
}

// fetchQuotes resolves an auction's oracle refs under the read lock and
// pulls both quotes with no lock held, so slow quote I/O never stalls
// the ledger.
func (e *Engine) fetchQuotes(ctx context.Context, name string) (marketQuotes, error) {
	e.mu.RLock()
	a, ok := e.auctions[address.Auction(name)]
	if !ok {
		e.mu.RUnlock()
		return marketQuotes{}, fmt.Errorf("%w: no auction %q", ErrInvalidState, name)
	}
	pricing := e.custodies[address.Custody(a.PricingAsset)]
	payment := e.custodies[address.Custody(a.PaymentAsset)]
	if pricing == nil || payment == nil {
		e.mu.RUnlock()
		return marketQuotes{}, fmt.Errorf("%w: auction custodies missing", ErrInvalidState)
	}
	mq := marketQuotes{pricingRef: pricing.OracleRef, paymentRef: payment.OracleRef}
	e.mu.RUnlock()

	var err error
	if mq.pricing, err = e.quotes.Latest(ctx, mq.pricingRef); err != nil {
		return marketQuotes{}, err
	}
	if mq.payment, err = e.quotes.Latest(ctx, mq.paymentRef); err != nil {
		return marketQuotes{}, err
	}
	return mq, nil
}

// unitPrice is the current cost of one whole dispensed token, expressed
// in whole payment tokens, along with the decimal scales needed to move
// between base units. The quotes were fetched without the lock; they are
// validated here against the custody configs as they stand now. Callers
// hold at least the read lock.
func (e *Engine) unitPrice(a *Auction, at time.Time, mq marketQuotes) (decimal.Decimal, int32, error) {
	pricing := e.custodies[address.Custody(a.PricingAsset)]
	payment := e.custodies[address.Custody(a.PaymentAsset)]
	if pricing == nil || payment == nil {
		return decimal.Zero, 0, fmt.Errorf("%w: auction custodies missing", ErrInvalidState)
	}
	if pricing.OracleRef != mq.pricingRef || payment.OracleRef != mq.paymentRef {
		return decimal.Zero, 0, fmt.Errorf("%w: oracle retargeted during fetch", oracle.ErrUnavailable)
	}
	if err := pricing.Oracle.Validate(mq.pricing, at); err != nil {
		return decimal.Zero, 0, err
	}
	if err := payment.Oracle.Validate(mq.payment, at); err != nil {
		return decimal.Zero, 0, err
	}

	rate, err := oracle.Rate(mq.pricing, mq.payment)
	if err != nil {
		return decimal.Zero, 0, err
	}

	curve := a.Curve.priceAt(at, a.StartTime, a.EndTime).Shift(-int32(pricing.Decimals))
	unit := curve.Mul(rate)
	if unit.Sign() <= 0 {
		return decimal.Zero, 0, fmt.Errorf("%w: non-positive unit price", ErrInvalidParams)
	}
	return unit, int32(payment.Decimals), nil
}

// costOf converts a dispensed amount (base units) into payment base
// units at the given unit price, rounding down.
func costOf(amount uint64, dispDecimals uint8, unit decimal.Decimal, payDecimals int32) (uint64, error) {
	cost := decFromUint(amount).
		Shift(-int32(dispDecimals)).
		Mul(unit).
		Shift(payDecimals)
	return decToUint(cost)
}

// amountFor converts a payment amount (base units) into dispensed base
// units at the given unit price, rounding down.
func amountFor(price uint64, dispDecimals uint8, unit decimal.Decimal, payDecimals int32) (uint64, error) {
	amount := decFromUint(price).
		Shift(-payDecimals).
		Div(unit).
		Shift(int32(dispDecimals))
	return decToUint(amount)
}

// GetAuctionPrice quotes the payment cost of buying amount base units of
// a dispensable asset right now. Side-effect free; asset "" means the
// auction's first dispenser. Inverse of GetAuctionAmount up to rounding.
func (e *Engine) GetAuctionPrice(ctx context.Context, name, asset string, amount uint64) (uint64, error) {
	mq, err := e.fetchQuotes(ctx, name)
	if err != nil {
		return 0, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	a, d, err := e.quoteTarget(name, asset)
	if err != nil {
		return 0, err
	}
	unit, payDecimals, err := e.unitPrice(a, e.now(), mq)
	if err != nil {
		return 0, err
	}
	return costOf(amount, d.Decimals, unit, payDecimals)
}

// GetAuctionAmount quotes how many base units of a dispensable asset the
// given payment amount buys right now.
func (e *Engine) GetAuctionAmount(ctx context.Context, name, asset string, price uint64) (uint64, error) {
	mq, err := e.fetchQuotes(ctx, name)
	if err != nil {
		return 0, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	a, d, err := e.quoteTarget(name, asset)
	if err != nil {
		return 0, err
	}
	unit, payDecimals, err := e.unitPrice(a, e.now(), mq)
	if err != nil {
		return 0, err
	}
	return amountFor(price, d.Decimals, unit, payDecimals)
}

func (e *Engine) quoteTarget(name, asset string) (*Auction, *Dispenser, error) {
	a, ok := e.auctions[address.Auction(name)]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no auction %q", ErrInvalidState, name)
	}
	if asset == "" {
		return a, &a.Dispensers[0], nil
	}
	d := a.dispenser(asset)
	if d == nil {
		return nil, nil, fmt.Errorf("%w: %s is not dispensed by auction %q", ErrInvalidParams, asset, name)
	}
	return a, d, nil
}
