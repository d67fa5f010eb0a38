package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func TestConfigValidate(t *testing.T) {
	cfg := Config{MaxStaleness: time.Minute, MaxConfBps: 200}

	t.Run("should accept a fresh confident quote", func(t *testing.T) {
		q := Quote{Price: 100_000, Expo: -5, Conf: 100, PublishTime: testNow}
		assert.NoError(t, cfg.Validate(q, testNow))
	})

	t.Run("should reject a zero price", func(t *testing.T) {
		q := Quote{PublishTime: testNow}
		assert.ErrorIs(t, cfg.Validate(q, testNow), ErrUnavailable)
	})

	t.Run("should reject a stale quote", func(t *testing.T) {
		q := Quote{Price: 100, PublishTime: testNow.Add(-2 * time.Minute)}
		assert.ErrorIs(t, cfg.Validate(q, testNow), ErrStale)
	})

	t.Run("should reject a wide confidence interval", func(t *testing.T) {
		// 300 bps against a 200 bps bound.
		q := Quote{Price: 10_000, Conf: 300, PublishTime: testNow}
		assert.ErrorIs(t, cfg.Validate(q, testNow), ErrLowConfidence)
	})

	t.Run("should accept confidence exactly at the bound", func(t *testing.T) {
		q := Quote{Price: 10_000, Conf: 200, PublishTime: testNow}
		assert.NoError(t, cfg.Validate(q, testNow))
	})

	t.Run("confidence check survives huge values", func(t *testing.T) {
		q := Quote{Price: 1 << 62, Conf: 1 << 62, PublishTime: testNow}
		assert.ErrorIs(t, cfg.Validate(q, testNow), ErrLowConfidence)
	})
}

func TestNormalizedAndRate(t *testing.T) {
	t.Run("should apply the exponent", func(t *testing.T) {
		q := Quote{Price: 123_450_000, Expo: -8}
		assert.True(t, q.Normalized().Equal(decimal.RequireFromString("1.2345")))
	})

	t.Run("should divide pricing by payment", func(t *testing.T) {
		pricing := Quote{Price: 2_000_000, Expo: -6} // 2.0
		payment := Quote{Price: 50_000, Expo: -5}    // 0.5
		rate, err := Rate(pricing, payment)
		require.NoError(t, err)
		assert.True(t, rate.Equal(decimal.NewFromInt(4)))
	})

	t.Run("should reject a zero payment price", func(t *testing.T) {
		_, err := Rate(Quote{Price: 1}, Quote{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	s := NewStaticSource()

	t.Run("should return the installed quote", func(t *testing.T) {
		s.Set("tkn/usd", Quote{Price: 42, PublishTime: testNow})
		q, err := s.Latest(ctx, "tkn/usd")
		require.NoError(t, err)
		assert.Equal(t, uint64(42), q.Price)
	})

	t.Run("should fail for unknown refs", func(t *testing.T) {
		_, err := s.Latest(ctx, "nope")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("should fail after Drop", func(t *testing.T) {
		s.Drop("tkn/usd")
		_, err := s.Latest(ctx, "tkn/usd")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

type flakySource struct {
	fail  bool
	calls int
}

func (f *flakySource) Latest(context.Context, string) (Quote, error) {
	f.calls++
	if f.fail {
		return Quote{}, errors.New("boom")
	}
	return Quote{Price: 1, PublishTime: testNow}, nil
}

func TestGuardedSource(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass quotes through", func(t *testing.T) {
		inner := &flakySource{}
		g := NewGuardedSource(inner, 3, time.Minute)
		q, err := g.Latest(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), q.Price)
	})

	t.Run("should fail fast once tripped", func(t *testing.T) {
		inner := &flakySource{fail: true}
		g := NewGuardedSource(inner, 3, time.Minute)
		for i := 0; i < 3; i++ {
			_, err := g.Latest(ctx, "x")
			assert.Error(t, err)
		}
		assert.Equal(t, 3, inner.calls)

		// Tripped: the inner source is no longer consulted.
		_, err := g.Latest(ctx, "x")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, 3, inner.calls)
	})

	t.Run("should probe again after the cooldown", func(t *testing.T) {
		inner := &flakySource{fail: true}
		g := NewGuardedSource(inner, 2, 10*time.Millisecond)
		g.Latest(ctx, "x")
		g.Latest(ctx, "x")

		time.Sleep(20 * time.Millisecond)
		inner.fail = false
		q, err := g.Latest(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), q.Price)

		// Recovery resets the counter entirely.
		inner.fail = true
		_, err = g.Latest(ctx, "x")
		assert.Error(t, err)
		inner.fail = false
		_, err = g.Latest(ctx, "x")
		assert.NoError(t, err)
	})
}
