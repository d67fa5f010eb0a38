package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/launchpad/internal/oracle"
	"github.com/terminal-bench/launchpad/pkg/fraction"
)

var testStart = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

var allowAll = Permissions{
	AllowNewAuctions:     true,
	AllowAuctionUpdates:  true,
	AllowAuctionRefills:  true,
	AllowAuctionPullouts: true,
	AllowNewBids:         true,
	AllowWithdrawals:     true,
}

// fixture wires an engine against an in-memory bank, a pinned oracle and
// a controllable clock. Tests advance time by assigning f.now.
type fixture struct {
	t      *testing.T
	eng    *Engine
	bank   *MemoryBank
	quotes *oracle.StaticSource
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t, now: testStart}
	f.bank = NewMemoryBank()
	f.quotes = oracle.NewStaticSource()
	f.eng = New(Options{
		Clock:  func() time.Time { return f.now },
		Bank:   f.bank,
		Quotes: f.quotes,
	})
	return f
}

func (f *fixture) init(fees Fees) {
	f.t.Helper()
	require.NoError(f.t, f.eng.Init(InitParams{
		Admins:        []string{"alice", "bob", "carol"},
		MinSignatures: 2,
		Fees:          fees,
		Permissions:   allowAll,
	}))
}

func (f *fixture) setQuote(ref string, price uint64, expo int32) {
	f.quotes.Set(ref, oracle.Quote{Price: price, Expo: expo, PublishTime: f.now})
}

// addCustody drives one custody through the two-admin approval dance.
func (f *fixture) addCustody(asset string, decimals uint8, ref string) {
	f.t.Helper()
	p := InitCustodyParams{Asset: asset, Decimals: decimals, OracleRef: ref}
	status, err := f.eng.InitCustody("alice", p)
	require.NoError(f.t, err)
	require.Equal(f.t, GovPending, status)
	status, err = f.eng.InitCustody("bob", p)
	require.NoError(f.t, err)
	require.Equal(f.t, GovExecuted, status)
}

// setupMarket creates the pricing and payment custodies with 1:1 dollar
// quotes so one whole dispensed token costs exactly the curve price.
func (f *fixture) setupMarket() {
	f.t.Helper()
	f.addCustody("usd", 6, "usd/usd")
	f.addCustody("usdc", 6, "usdc/usd")
	f.setQuote("usd/usd", 1, 0)
	f.setQuote("usdc/usd", 1, 0)
}

// standardAuction sells "tkn" (8 decimals) at a fixed 2 usd per token,
// open one hour either side of now.
func (f *fixture) standardAuction(name string, inventory uint64) *Auction {
	f.t.Helper()
	f.bank.Fund("seller-funds", inventory)
	accounts := []string{}
	if inventory > 0 {
		accounts = []string{"seller-funds"}
	}
	a, err := f.eng.InitAuction("seller", InitAuctionParams{
		Name:             name,
		PricingAsset:     "usd",
		PaymentAsset:     "usdc",
		DispensingAssets: []AssetMeta{{Asset: "tkn", Decimals: 8}},
		InitialInventory: []uint64{inventory},
		FundingAccounts:  accounts,
		StartTime:        f.now.Add(-time.Hour),
		EndTime:          f.now.Add(time.Hour),
		Curve:            CurveParams{Model: ModelFixed, StartPrice: 2_000_000},
		SlippageBps:      100,
	})
	require.NoError(f.t, err)
	return a
}

func pct(num, den uint64) fraction.Fraction {
	return fraction.Fraction{Numerator: num, Denominator: den}
}

// creditLimitBank refuses outbound credits once its allowance is spent;
// used to exercise unwinding on failed transfers.
type creditLimitBank struct {
	*MemoryBank
	creditsLeft int
}

func (b *creditLimitBank) Credit(account string, amount uint64) error {
	if b.creditsLeft == 0 {
		return errors.New("transfer refused")
	}
	b.creditsLeft--
	return b.MemoryBank.Credit(account, amount)
}
