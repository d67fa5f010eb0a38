package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnavailable   = errors.New("oracle unavailable")
	ErrStale         = errors.New("oracle quote stale")
	ErrLowConfidence = errors.New("oracle confidence too low")
)

// Quote is one oracle observation. It is consumed read-only at the
// instant of use and never persisted by the engine.
type Quote struct {
	Price       uint64    `json:"price"`
	Expo        int32     `json:"expo"`
	Conf        uint64    `json:"conf"`
	PublishTime time.Time `json:"publish_time"`
}

// Config bounds how trustworthy a quote must be before it prices real
// funds. Exact numbers are deployment configuration, not engine logic.
type Config struct {
	// MaxStaleness rejects quotes older than this.
	MaxStaleness time.Duration
	// MaxConfBps rejects quotes whose confidence interval exceeds this
	// many basis points of the price.
	MaxConfBps uint64
}

// DefaultConfig returns the bounds used when a custody sets none.
func DefaultConfig() Config {
	return Config{
		MaxStaleness: 60 * time.Second,
		MaxConfBps:   200,
	}
}

// Source supplies the latest quote for an oracle reference.
type Source interface {
	Latest(ctx context.Context, ref string) (Quote, error)
}

// Validate checks a quote against the config at the given instant.
func (c Config) Validate(q Quote, now time.Time) error {
	if q.Price == 0 {
		return fmt.Errorf("%w: zero price", ErrUnavailable)
	}
	if age := now.Sub(q.PublishTime); age > c.MaxStaleness {
		return fmt.Errorf("%w: published %s ago", ErrStale, age)
	}
	// conf/price > maxConfBps/10000, compared without division.
	lhs := new(big.Int).Mul(new(big.Int).SetUint64(q.Conf), big.NewInt(10000))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(q.Price), new(big.Int).SetUint64(c.MaxConfBps))
	if lhs.Cmp(rhs) > 0 {
		return fmt.Errorf("%w: conf %d against price %d", ErrLowConfidence, q.Conf, q.Price)
	}
	return nil
}

// Normalized returns price * 10^expo as an exact decimal.
func (q Quote) Normalized() decimal.Decimal {
	return decimal.New(int64(q.Price), q.Expo)
}

// Rate combines two quotes into a payment-per-pricing-unit rate by
// dividing their normalized prices.
func Rate(pricing, payment Quote) (decimal.Decimal, error) {
	p := payment.Normalized()
	if p.IsZero() {
		return decimal.Zero, fmt.Errorf("%w: payment price normalizes to zero", ErrUnavailable)
	}
	return pricing.Normalized().Div(p), nil
}
