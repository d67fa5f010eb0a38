package fraction

import (
	"fmt"
	"math/big"
)

// Fraction is a non-negative rational used for fee schedules. Balance
// arithmetic stays in integer token units; applying a fraction always
// rounds down so fees can never mint value.
type Fraction struct {
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

// Zero is the identity fee (charges nothing).
var Zero = Fraction{Numerator: 0, Denominator: 1}

// New validates and builds a fraction.
func New(numerator, denominator uint64) (Fraction, error) {
	f := Fraction{Numerator: numerator, Denominator: denominator}
	if err := f.Validate(); err != nil {
		return Fraction{}, err
	}
	return f, nil
}

// Validate rejects zero denominators and fractions above one; a fee can
// take at most the full amount. The zero value is the identity, so an
// omitted fee field is simply no fee.
func (f Fraction) Validate() error {
	if f.Numerator == 0 {
		return nil
	}
	if f.Denominator == 0 {
		return fmt.Errorf("fraction denominator is zero")
	}
	if f.Numerator > f.Denominator {
		return fmt.Errorf("fraction %d/%d exceeds one", f.Numerator, f.Denominator)
	}
	return nil
}

// Apply returns floor(amount * numerator / denominator). The intermediate
// product is computed in big.Int so a full uint64 amount cannot overflow.
func (f Fraction) Apply(amount uint64) uint64 {
	if f.Numerator == 0 || amount == 0 {
		return 0
	}
	product := new(big.Int).Mul(
		new(big.Int).SetUint64(amount),
		new(big.Int).SetUint64(f.Numerator),
	)
	product.Quo(product, new(big.Int).SetUint64(f.Denominator))
	return product.Uint64()
}

// IsZero reports whether applying the fraction is a no-op.
func (f Fraction) IsZero() bool {
	return f.Numerator == 0
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}
