package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitAuction(t *testing.T) {
	t.Run("should open immediately when the window has started", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()

		a := f.standardAuction("sale", 100_000_000)
		assert.Equal(t, StateEnabled, a.State)
		assert.True(t, a.Funded)
		assert.Equal(t, uint64(100_000_000), a.Dispensers[0].Inventory)
		assert.Zero(t, f.bank.Balance("seller-funds"))
	})

	t.Run("should start created when the window is in the future", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.bank.Fund("seller-funds", 1_000)

		a, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:             "later",
			PricingAsset:     "usd",
			PaymentAsset:     "usdc",
			DispensingAssets: []AssetMeta{{Asset: "tkn", Decimals: 8}},
			InitialInventory: []uint64{1_000},
			FundingAccounts:  []string{"seller-funds"},
			StartTime:        f.now.Add(time.Hour),
			EndTime:          f.now.Add(2 * time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, StateCreated, a.State)
	})

	t.Run("should snapshot the fee schedule", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{Trade: pct(1, 100)})
		f.setupMarket()

		a := f.standardAuction("sale", 0)
		assert.Equal(t, pct(1, 100), a.Fees.Trade)

		// A later fee change must not touch the snapshot.
		newFees := Fees{Trade: pct(5, 100)}
		f.eng.SetFees("alice", newFees)
		f.eng.SetFees("bob", newFees)
		got, _ := f.eng.GetAuction("sale")
		assert.Equal(t, pct(1, 100), got.Fees.Trade)
	})

	t.Run("should reject a duplicate name", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		_, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:             "sale",
			PricingAsset:     "usd",
			PaymentAsset:     "usdc",
			DispensingAssets: []AssetMeta{{Asset: "tkn", Decimals: 8}},
			InitialInventory: []uint64{0},
			StartTime:        f.now.Add(-time.Hour),
			EndTime:          f.now.Add(time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("should reject missing custodies", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})

		_, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:             "sale",
			PricingAsset:     "usd",
			PaymentAsset:     "usdc",
			DispensingAssets: []AssetMeta{{Asset: "tkn", Decimals: 8}},
			InitialInventory: []uint64{0},
			StartTime:        f.now.Add(-time.Hour),
			EndTime:          f.now.Add(time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("should reject a mismatched inventory list", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()

		_, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:             "sale",
			PricingAsset:     "usd",
			PaymentAsset:     "usdc",
			DispensingAssets: []AssetMeta{{Asset: "tkn", Decimals: 8}},
			InitialInventory: []uint64{1, 2},
			StartTime:        f.now.Add(-time.Hour),
			EndTime:          f.now.Add(time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})

	t.Run("should unwind earlier debits when one funding fails", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.bank.Fund("acct-a", 500)
		// acct-b is empty, so the second debit fails.

		_, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:         "sale",
			PricingAsset: "usd",
			PaymentAsset: "usdc",
			DispensingAssets: []AssetMeta{
				{Asset: "tkn", Decimals: 8},
				{Asset: "gem", Decimals: 6},
			},
			InitialInventory: []uint64{500, 500},
			FundingAccounts:  []string{"acct-a", "acct-b"},
			StartTime:        f.now.Add(-time.Hour),
			EndTime:          f.now.Add(time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, uint64(500), f.bank.Balance("acct-a"))
		_, err = f.eng.GetAuction("sale")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("should honor the new-auctions permission", func(t *testing.T) {
		f := newFixture(t)
		perms := allowAll
		perms.AllowNewAuctions = false
		require.NoError(t, f.eng.Init(InitParams{
			Admins: []string{"alice", "bob"}, MinSignatures: 2, Permissions: perms,
		}))
		_, err := f.eng.InitAuction("seller", InitAuctionParams{Name: "sale"})
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestUpdateAuction(t *testing.T) {
	t.Run("should apply only the provided overrides", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{AuctionUpdate: pct(1, 20)})
		f.setupMarket()
		f.standardAuction("sale", 0)

		slippage := uint64(250)
		require.NoError(t, f.eng.UpdateAuction("seller", UpdateAuctionParams{
			Name:        "sale",
			SlippageBps: &slippage,
		}))

		a, _ := f.eng.GetAuction("sale")
		assert.Equal(t, uint64(250), a.SlippageBps)
		assert.Equal(t, uint64(2_000_000), a.Curve.StartPrice, "curve untouched")
		assert.True(t, a.UpdateFeePending)
	})

	t.Run("should reject non-owners", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		err := f.eng.UpdateAuction("intruder", UpdateAuctionParams{Name: "sale"})
		assert.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("should validate the merged window", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		badEnd := f.now.Add(-2 * time.Hour)
		err := f.eng.UpdateAuction("seller", UpdateAuctionParams{Name: "sale", EndTime: &badEnd})
		assert.ErrorIs(t, err, ErrInvalidParams)
	})
}

func TestEnableDisable(t *testing.T) {
	t.Run("should toggle between states", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		require.NoError(t, f.eng.DisableAuction("seller", "sale"))
		a, _ := f.eng.GetAuction("sale")
		assert.Equal(t, StateDisabled, a.State)

		require.NoError(t, f.eng.EnableAuction("seller", "sale"))
		a, _ = f.eng.GetAuction("sale")
		assert.Equal(t, StateEnabled, a.State)
	})

	t.Run("should reject a redundant transition", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		assert.ErrorIs(t, f.eng.EnableAuction("seller", "sale"), ErrInvalidState)
		require.NoError(t, f.eng.DisableAuction("seller", "sale"))
		assert.ErrorIs(t, f.eng.DisableAuction("seller", "sale"), ErrInvalidState)
	})
}

func TestAddRemoveTokens(t *testing.T) {
	t.Run("first funding pays the new-auction fee", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{NewAuction: pct(1, 10)})
		f.setupMarket()
		f.standardAuction("sale", 0)
		f.bank.Fund("seller-funds", 1_000)

		require.NoError(t, f.eng.AddTokens("seller", AddTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 1_000, FundingAccount: "seller-funds",
		}))

		a, _ := f.eng.GetAuction("sale")
		assert.Equal(t, uint64(900), a.Dispensers[0].Inventory)
		assert.True(t, a.Funded)

		c := f.eng.custodies[a.Dispensers[0].CustodyKey]
		assert.Equal(t, uint64(100), c.Fees)
		assert.Equal(t, uint64(900), c.Principal)
	})

	t.Run("refill after an update pays the update fee once", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{AuctionUpdate: pct(1, 20)})
		f.setupMarket()
		f.standardAuction("sale", 1_000)
		f.bank.Fund("seller-funds", 2_000)

		require.NoError(t, f.eng.UpdateAuction("seller", UpdateAuctionParams{Name: "sale"}))
		require.NoError(t, f.eng.AddTokens("seller", AddTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 1_000, FundingAccount: "seller-funds",
		}))

		a, _ := f.eng.GetAuction("sale")
		assert.Equal(t, uint64(1_000+950), a.Dispensers[0].Inventory)
		assert.False(t, a.UpdateFeePending)

		// The next refill is fee-free again.
		require.NoError(t, f.eng.AddTokens("seller", AddTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 1_000, FundingAccount: "seller-funds",
		}))
		a, _ = f.eng.GetAuction("sale")
		assert.Equal(t, uint64(1_000+950+1_000), a.Dispensers[0].Inventory)
	})

	t.Run("should pull undispensed inventory back out", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 1_000)

		require.NoError(t, f.eng.RemoveTokens("seller", RemoveTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 400, ReceivingAccount: "seller-wallet",
		}))
		a, _ := f.eng.GetAuction("sale")
		assert.Equal(t, uint64(600), a.Dispensers[0].Inventory)
		assert.Equal(t, uint64(400), f.bank.Balance("seller-wallet"))
		assert.Equal(t, uint64(600), f.eng.custodies[a.Dispensers[0].CustodyKey].Principal)
	})

	t.Run("should reject pulling more than the inventory", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 100)

		err := f.eng.RemoveTokens("seller", RemoveTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 101, ReceivingAccount: "w",
		})
		assert.ErrorIs(t, err, ErrInsufficientInventory)
	})

	t.Run("should honor the refill and pullout permissions", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 100)

		perms := allowAll
		perms.AllowAuctionRefills = false
		perms.AllowAuctionPullouts = false
		f.eng.SetPermissions("alice", perms)
		f.eng.SetPermissions("bob", perms)

		err := f.eng.AddTokens("seller", AddTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 1, FundingAccount: "seller-funds",
		})
		assert.ErrorIs(t, err, ErrInvalidState)
		err = f.eng.RemoveTokens("seller", RemoveTokensParams{
			Auction: "sale", Asset: "tkn", Amount: 1, ReceivingAccount: "w",
		})
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestDeleteAuction(t *testing.T) {
	t.Run("should refuse while inventory remains", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 1_000)

		_, err := f.eng.DeleteAuction("alice", DeleteAuctionParams{Name: "sale"})
		assert.ErrorIs(t, err, ErrInventoryNotEmpty)
	})

	t.Run("should delete an emptied auction", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)

		p := DeleteAuctionParams{Name: "sale"}
		status, err := f.eng.DeleteAuction("alice", p)
		require.NoError(t, err)
		assert.Equal(t, GovPending, status)
		status, err = f.eng.DeleteAuction("bob", p)
		require.NoError(t, err)
		assert.Equal(t, GovExecuted, status)

		_, err = f.eng.GetAuction("sale")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("should sweep remaining inventory when asked", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		a := f.standardAuction("sale", 1_000)
		dispenseKey := a.Dispensers[0].CustodyKey

		p := DeleteAuctionParams{Name: "sale", SweepTo: "recovery"}
		f.eng.DeleteAuction("alice", p)
		status, err := f.eng.DeleteAuction("bob", p)
		require.NoError(t, err)
		assert.Equal(t, GovExecuted, status)

		assert.Equal(t, uint64(1_000), f.bank.Balance("recovery"))
		assert.Nil(t, f.eng.custodies[dispenseKey])
	})

	t.Run("a failed sweep unwinds and keeps the proposal", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.bank.Fund("seller-funds", 1_000)
		_, err := f.eng.InitAuction("seller", InitAuctionParams{
			Name:         "sale",
			PricingAsset: "usd",
			PaymentAsset: "usdc",
			DispensingAssets: []AssetMeta{
				{Asset: "tkn", Decimals: 8},
				{Asset: "gem", Decimals: 6},
			},
			InitialInventory: []uint64{500, 500},
			FundingAccounts:  []string{"seller-funds", "seller-funds"},
			StartTime:        f.now.Add(-time.Hour),
			EndTime:          f.now.Add(time.Hour),
			Curve:            CurveParams{Model: ModelFixed, StartPrice: 1},
		})
		require.NoError(t, err)

		// Only the first outbound transfer succeeds.
		f.eng.bank = &creditLimitBank{MemoryBank: f.bank, creditsLeft: 1}

		p := DeleteAuctionParams{Name: "sale", SweepTo: "recovery"}
		f.eng.DeleteAuction("alice", p)
		_, err = f.eng.DeleteAuction("bob", p)
		require.Error(t, err)

		a, err := f.eng.GetAuction("sale")
		require.NoError(t, err, "auction survives a failed sweep")
		assert.Equal(t, uint64(500), a.Dispensers[0].Inventory)
		assert.Equal(t, uint64(500), a.Dispensers[1].Inventory)
		assert.Zero(t, f.bank.Balance("recovery"), "partial sweep unwound")

		// Approvals survive, so one call with a working bank completes.
		f.eng.bank = f.bank
		status, err := f.eng.DeleteAuction("bob", p)
		require.NoError(t, err)
		assert.Equal(t, GovExecuted, status)
		assert.Equal(t, uint64(1_000), f.bank.Balance("recovery"))
		_, err = f.eng.GetAuction("sale")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("should destroy the auction's bids", func(t *testing.T) {
		f := newFixture(t)
		f.init(Fees{})
		f.setupMarket()
		f.standardAuction("sale", 0)
		require.NoError(t, f.eng.WhitelistAdd("seller", "sale", []string{"dave"}))

		p := DeleteAuctionParams{Name: "sale"}
		f.eng.DeleteAuction("alice", p)
		f.eng.DeleteAuction("bob", p)

		assert.Empty(t, f.eng.bids)
	})
}
