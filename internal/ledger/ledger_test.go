package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/payment"
	"github.com/apexbay/nftmarket/internal/token"
)

const (
	collection = model.Address("0x1234567890123456789012345678901234567890")
	operator   = model.Address("0x9999999999999999999999999999999999999999")
	seller     = model.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	buyer      = model.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	outsider   = model.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

// pointOneEth is 0.1 in smallest units (wei scale).
const pointOneEth = "100000000000000000"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func wei(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		t.Fatalf("invalid big integer %q", s)
	}
	return v
}

// captureSink records published events in order.
type captureSink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *captureSink) Publish(ev model.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Event(nil), s.events...)
}

type fixture struct {
	t      *testing.T
	ledger Ledger
	coll   *token.MemoryCollection
	bank   *payment.MemoryBank
	sink   *captureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := token.NewDirectory()
	coll := token.NewMemoryCollection()
	dir.Register(collection, coll)

	bank := payment.NewMemoryBank()
	sink := &captureSink{}

	return &fixture{
		t:      t,
		ledger: New(operator, dir, bank, sink, testLogger()),
		coll:   coll,
		bank:   bank,
		sink:   sink,
	}
}

// mint issues tokenID to owner and approves the marketplace operator.
func (f *fixture) mint(owner model.Address, tokenID uint64) {
	f.t.Helper()
	if err := f.coll.Mint(owner, tokenID); err != nil {
		f.t.Fatalf("Mint failed: %v", err)
	}
	if err := f.coll.Approve(operator, tokenID); err != nil {
		f.t.Fatalf("Approve failed: %v", err)
	}
}

// list mints tokenID to owner and lists it at price.
func (f *fixture) list(owner model.Address, tokenID uint64, price int64) {
	f.t.Helper()
	f.mint(owner, tokenID)
	if err := f.ledger.ListItem(context.Background(), collection, tokenID, big.NewInt(price), owner); err != nil {
		f.t.Fatalf("ListItem failed: %v", err)
	}
}

func TestListItem(t *testing.T) {
	f := newFixture(t)
	f.mint(seller, 1)

	price := wei(t, pointOneEth)
	if err := f.ledger.ListItem(context.Background(), collection, 1, price, seller); err != nil {
		t.Fatalf("ListItem failed: %v", err)
	}

	got := f.ledger.GetListing(collection, 1)
	if got.Price.Cmp(price) != 0 {
		t.Errorf("listing price = %s, want %s", got.Price, price)
	}
	if got.Seller != seller {
		t.Errorf("listing seller = %q, want %q", got.Seller, seller)
	}

	events := f.sink.Events()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != model.EventItemListed {
		t.Errorf("event type = %q, want %q", ev.Type, model.EventItemListed)
	}
	if ev.Collection != collection || ev.TokenID != 1 || ev.Seller != seller {
		t.Errorf("event identity = (%s, %d, %s), want (%s, 1, %s)",
			ev.Collection, ev.TokenID, ev.Seller, collection, seller)
	}
	if ev.Price != pointOneEth {
		t.Errorf("event price = %q, want %q", ev.Price, pointOneEth)
	}
	if ev.ID == uuid.Nil {
		t.Error("event ID not set")
	}
	if ev.EmittedAt == 0 {
		t.Error("event timestamp not set")
	}
}

func TestListItem_Preconditions(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
		price *big.Int
		by    model.Address
		want  Kind
	}{
		{
			name:  "already listed",
			setup: func(f *fixture) { f.list(seller, 1, 500) },
			price: big.NewInt(600),
			by:    seller,
			want:  KindAlreadyListed,
		},
		{
			// The listing check fires before the ownership check.
			name:  "already listed, non-owner caller",
			setup: func(f *fixture) { f.list(seller, 1, 500) },
			price: big.NewInt(600),
			by:    outsider,
			want:  KindAlreadyListed,
		},
		{
			name:  "not owner",
			setup: func(f *fixture) { f.mint(seller, 1) },
			price: big.NewInt(500),
			by:    outsider,
			want:  KindNotOwner,
		},
		{
			name:  "unknown token",
			setup: func(f *fixture) {},
			price: big.NewInt(500),
			by:    seller,
			want:  KindNotOwner,
		},
		{
			name: "zero price",
			setup: func(f *fixture) {
				// No approval either: the price check must fire first.
				if err := f.coll.Mint(seller, 1); err != nil {
					f.t.Fatal(err)
				}
			},
			price: big.NewInt(0),
			by:    seller,
			want:  KindPriceMustBeAboveZero,
		},
		{
			name: "nil price",
			setup: func(f *fixture) {
				if err := f.coll.Mint(seller, 1); err != nil {
					f.t.Fatal(err)
				}
			},
			price: nil,
			by:    seller,
			want:  KindPriceMustBeAboveZero,
		},
		{
			name: "not approved",
			setup: func(f *fixture) {
				if err := f.coll.Mint(seller, 1); err != nil {
					f.t.Fatal(err)
				}
			},
			price: big.NewInt(500),
			by:    seller,
			want:  KindNotApproved,
		},
		{
			name: "approval held by someone else",
			setup: func(f *fixture) {
				if err := f.coll.Mint(seller, 1); err != nil {
					f.t.Fatal(err)
				}
				if err := f.coll.Approve(outsider, 1); err != nil {
					f.t.Fatal(err)
				}
			},
			price: big.NewInt(500),
			by:    seller,
			want:  KindNotApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			err := f.ledger.ListItem(context.Background(), collection, 1, tt.price, tt.by)
			if !IsKind(err, tt.want) {
				t.Errorf("ListItem error = %v, want kind %q", err, tt.want)
			}
		})
	}
}

func TestListItem_UnknownCollection(t *testing.T) {
	f := newFixture(t)
	other := model.Address("0xdddddddddddddddddddddddddddddddddddddddd")

	err := f.ledger.ListItem(context.Background(), other, 1, big.NewInt(100), seller)
	if !IsKind(err, KindNotOwner) {
		t.Errorf("ListItem on unknown collection = %v, want kind %q", err, KindNotOwner)
	}
}

func TestGetListing_AbsentReadsZero(t *testing.T) {
	f := newFixture(t)

	got := f.ledger.GetListing(collection, 42)
	if got.Price == nil || got.Price.Sign() != 0 {
		t.Errorf("absent listing price = %v, want 0", got.Price)
	}
	if !got.Seller.IsZero() {
		t.Errorf("absent listing seller = %q, want zero", got.Seller)
	}
	if got.Active() {
		t.Error("absent listing reports Active")
	}
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	if err := f.ledger.CancelListing(context.Background(), collection, 1, outsider); !IsKind(err, KindNotOwner) {
		t.Errorf("cancel by non-owner = %v, want kind %q", err, KindNotOwner)
	}

	if err := f.ledger.CancelListing(context.Background(), collection, 1, seller); err != nil {
		t.Fatalf("CancelListing failed: %v", err)
	}

	// The zero-price sentinel marks the listing gone.
	got := f.ledger.GetListing(collection, 1)
	if got.Price.Sign() != 0 {
		t.Errorf("price after cancel = %s, want 0", got.Price)
	}

	// Cancel again: owned but no longer listed.
	if err := f.ledger.CancelListing(context.Background(), collection, 1, seller); !IsKind(err, KindNotListed) {
		t.Errorf("cancel of unlisted token = %v, want kind %q", err, KindNotListed)
	}

	// Unlisted and not the owner: the ownership check fires first.
	if err := f.ledger.CancelListing(context.Background(), collection, 1, outsider); !IsKind(err, KindNotOwner) {
		t.Errorf("cancel of unlisted token by non-owner = %v, want kind %q", err, KindNotOwner)
	}

	events := f.sink.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type != model.EventItemCanceled {
		t.Errorf("second event type = %q, want %q", events[1].Type, model.EventItemCanceled)
	}
	if events[1].Seller != seller {
		t.Errorf("canceled event seller = %q, want %q", events[1].Seller, seller)
	}
}

func TestUpdateListingPrice(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	if err := f.ledger.UpdateListingPrice(context.Background(), collection, 1, big.NewInt(600), outsider); !IsKind(err, KindNotOwner) {
		t.Errorf("update by non-owner = %v, want kind %q", err, KindNotOwner)
	}

	f.mint(seller, 2)
	if err := f.ledger.UpdateListingPrice(context.Background(), collection, 2, big.NewInt(600), seller); !IsKind(err, KindNotListed) {
		t.Errorf("update of unlisted token = %v, want kind %q", err, KindNotListed)
	}

	// Unlisted and not the owner: the ownership check fires first.
	if err := f.ledger.UpdateListingPrice(context.Background(), collection, 2, big.NewInt(600), outsider); !IsKind(err, KindNotOwner) {
		t.Errorf("update of unlisted token by non-owner = %v, want kind %q", err, KindNotOwner)
	}

	// The enforced rule is newPrice > current price; equal and lower are
	// rejected under the same kind as the zero-price listing check.
	for _, newPrice := range []*big.Int{big.NewInt(500), big.NewInt(499), big.NewInt(0), nil} {
		err := f.ledger.UpdateListingPrice(context.Background(), collection, 1, newPrice, seller)
		if !IsKind(err, KindPriceMustBeAboveZero) {
			t.Errorf("update to %v = %v, want kind %q", newPrice, err, KindPriceMustBeAboveZero)
		}
	}

	got := f.ledger.GetListing(collection, 1)
	if got.Price.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("price after rejected updates = %s, want 500", got.Price)
	}

	if err := f.ledger.UpdateListingPrice(context.Background(), collection, 1, big.NewInt(750), seller); err != nil {
		t.Fatalf("UpdateListingPrice failed: %v", err)
	}
	got = f.ledger.GetListing(collection, 1)
	if got.Price.Cmp(big.NewInt(750)) != 0 {
		t.Errorf("price after update = %s, want 750", got.Price)
	}
	if got.Seller != seller {
		t.Errorf("seller after update = %q, want %q", got.Seller, seller)
	}

	// The update re-announces the listing at the new price.
	events := f.sink.Events()
	last := events[len(events)-1]
	if last.Type != model.EventItemListed {
		t.Errorf("update event type = %q, want %q", last.Type, model.EventItemListed)
	}
	if last.Price != "750" {
		t.Errorf("update event price = %q, want %q", last.Price, "750")
	}
}

func TestBuyItem_NotListed(t *testing.T) {
	f := newFixture(t)
	f.mint(seller, 1)

	err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer)
	if !IsKind(err, KindNotListed) {
		t.Errorf("buy of unlisted token = %v, want kind %q", err, KindNotListed)
	}
}

func TestBuyItem_PriceNotMet(t *testing.T) {
	f := newFixture(t)
	price := wei(t, pointOneEth)
	f.mint(seller, 1)
	if err := f.ledger.ListItem(context.Background(), collection, 1, price, seller); err != nil {
		t.Fatalf("ListItem failed: %v", err)
	}

	// 0.05 < 0.1: rejected, and the error carries the shortfall context.
	offer := wei(t, "50000000000000000")
	err := f.ledger.BuyItem(context.Background(), collection, 1, offer, buyer)
	if !IsKind(err, KindPriceNotMet) {
		t.Fatalf("underpaid buy = %v, want kind %q", err, KindPriceNotMet)
	}
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatal("error is not *ledger.Error")
	}
	if lerr.Price.Cmp(price) != 0 || lerr.Offered.Cmp(offer) != 0 {
		t.Errorf("error context price/offered = %s/%s, want %s/%s",
			lerr.Price, lerr.Offered, price, offer)
	}

	// Nothing changed: listing intact, no proceeds, seller still owns it.
	got := f.ledger.GetListing(collection, 1)
	if got.Price.Cmp(price) != 0 || got.Seller != seller {
		t.Errorf("listing after failed buy = {%s %s}, want {%s %s}", got.Price, got.Seller, price, seller)
	}
	if bal := f.ledger.GetProceeds(seller); bal.Sign() != 0 {
		t.Errorf("proceeds after failed buy = %s, want 0", bal)
	}
	owner, _ := f.coll.OwnerOf(context.Background(), 1)
	if owner != seller {
		t.Errorf("owner after failed buy = %q, want %q", owner, seller)
	}

	if err := f.ledger.BuyItem(context.Background(), collection, 1, nil, buyer); !IsKind(err, KindPriceNotMet) {
		t.Errorf("nil payment = %v, want kind %q", err, KindPriceNotMet)
	}
}

func TestBuyItem_ExactPayment(t *testing.T) {
	f := newFixture(t)
	price := wei(t, pointOneEth)
	f.mint(seller, 0)
	if err := f.ledger.ListItem(context.Background(), collection, 0, price, seller); err != nil {
		t.Fatalf("ListItem failed: %v", err)
	}

	if err := f.ledger.BuyItem(context.Background(), collection, 0, wei(t, pointOneEth), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	// Listing gone, reads as the zero sentinel.
	if got := f.ledger.GetListing(collection, 0); got.Price.Sign() != 0 {
		t.Errorf("listing price after sale = %s, want 0", got.Price)
	}

	// Seller's proceeds equal the exact payment.
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(price) != 0 {
		t.Errorf("seller proceeds = %s, want %s", bal, price)
	}

	// Token ownership moved to the buyer.
	owner, err := f.coll.OwnerOf(context.Background(), 0)
	if err != nil {
		t.Fatalf("OwnerOf failed: %v", err)
	}
	if owner != buyer {
		t.Errorf("owner after sale = %q, want %q", owner, buyer)
	}

	events := f.sink.Events()
	last := events[len(events)-1]
	if last.Type != model.EventItemBought {
		t.Errorf("sale event type = %q, want %q", last.Type, model.EventItemBought)
	}
	if last.Buyer != buyer {
		t.Errorf("sale event buyer = %q, want %q", last.Buyer, buyer)
	}
	if last.Price != pointOneEth {
		t.Errorf("sale event price = %q, want %q", last.Price, pointOneEth)
	}
}

func TestBuyItem_OverpaymentCreditedInFull(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	offer := big.NewInt(800)
	if err := f.ledger.BuyItem(context.Background(), collection, 1, offer, buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	// Full payment goes to the seller; no change is returned.
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(offer) != 0 {
		t.Errorf("seller proceeds = %s, want %s", bal, offer)
	}

	// The event reports the listing price, not the payment.
	events := f.sink.Events()
	last := events[len(events)-1]
	if last.Price != "500" {
		t.Errorf("sale event price = %q, want %q", last.Price, "500")
	}
}

func TestBuyItem_ProceedsAccumulate(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)
	f.list(seller, 2, 300)

	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}
	if err := f.ledger.BuyItem(context.Background(), collection, 2, big.NewInt(350), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	if bal := f.ledger.GetProceeds(seller); bal.Cmp(big.NewInt(850)) != 0 {
		t.Errorf("accumulated proceeds = %s, want 850", bal)
	}
}

func TestBuyItem_SelfPurchase(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	// Buying your own listing is not rejected; the seller pays itself.
	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), seller); err != nil {
		t.Fatalf("self purchase failed: %v", err)
	}
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("proceeds after self purchase = %s, want 500", bal)
	}
	owner, _ := f.coll.OwnerOf(context.Background(), 1)
	if owner != seller {
		t.Errorf("owner after self purchase = %q, want %q", owner, seller)
	}
}

func TestBuyItem_TransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	// Seed an existing balance so the rollback must restore, not zero.
	f.list(seller, 2, 300)
	if err := f.ledger.BuyItem(context.Background(), collection, 2, big.NewInt(300), buyer); err != nil {
		t.Fatalf("seed buy failed: %v", err)
	}

	hookErr := errors.New("receiver refused delivery")
	f.coll.SetTransferHook(func(ctx context.Context, from, to model.Address, tokenID uint64) error {
		return hookErr
	})

	err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(700), buyer)
	if !IsKind(err, KindTransferFailed) {
		t.Fatalf("buy with failing transfer = %v, want kind %q", err, KindTransferFailed)
	}
	if !errors.Is(err, hookErr) {
		t.Errorf("error chain does not reach the hook error: %v", err)
	}

	// Credit rolled back to the seed balance, listing restored intact.
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(big.NewInt(300)) != 0 {
		t.Errorf("proceeds after rollback = %s, want 300", bal)
	}
	got := f.ledger.GetListing(collection, 1)
	if got.Price.Cmp(big.NewInt(500)) != 0 || got.Seller != seller {
		t.Errorf("listing after rollback = {%s %s}, want {500 %s}", got.Price, got.Seller, seller)
	}
	owner, _ := f.coll.OwnerOf(context.Background(), 1)
	if owner != seller {
		t.Errorf("owner after rollback = %q, want %q", owner, seller)
	}

	// No sale event was emitted for the failed purchase.
	for _, ev := range f.sink.Events() {
		if ev.Type == model.EventItemBought && ev.TokenID == 1 {
			t.Error("item_bought emitted for a rolled-back purchase")
		}
	}

	// The listing is still buyable once the receiver behaves.
	f.coll.SetTransferHook(nil)
	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatalf("retry buy failed: %v", err)
	}
}

func TestWithdrawProceeds(t *testing.T) {
	f := newFixture(t)

	if _, err := f.ledger.WithdrawProceeds(context.Background(), seller); !IsKind(err, KindNoProceeds) {
		t.Errorf("withdraw with no balance = %v, want kind %q", err, KindNoProceeds)
	}

	f.list(seller, 1, 500)
	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(650), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	amount, err := f.ledger.WithdrawProceeds(context.Background(), seller)
	if err != nil {
		t.Fatalf("WithdrawProceeds failed: %v", err)
	}
	if amount.Cmp(big.NewInt(650)) != 0 {
		t.Errorf("withdrawn amount = %s, want 650", amount)
	}
	if bal := f.ledger.GetProceeds(seller); bal.Sign() != 0 {
		t.Errorf("balance after withdrawal = %s, want 0", bal)
	}
	if paid := f.bank.Paid(seller); paid.Cmp(big.NewInt(650)) != 0 {
		t.Errorf("bank payout = %s, want 650", paid)
	}

	// The balance is spent; a second withdrawal finds nothing.
	if _, err := f.ledger.WithdrawProceeds(context.Background(), seller); !IsKind(err, KindNoProceeds) {
		t.Errorf("second withdraw = %v, want kind %q", err, KindNoProceeds)
	}
}

func TestWithdrawProceeds_PayoutFailureRestoresBalance(t *testing.T) {
	dir := token.NewDirectory()
	coll := token.NewMemoryCollection()
	dir.Register(collection, coll)

	payErr := errors.New("payment rail down")
	failing := payment.PayerFunc(func(ctx context.Context, to model.Address, amount *big.Int) error {
		return payErr
	})
	lg := New(operator, dir, failing, nil, testLogger())

	if err := coll.Mint(seller, 1); err != nil {
		t.Fatal(err)
	}
	if err := coll.Approve(operator, 1); err != nil {
		t.Fatal(err)
	}
	if err := lg.ListItem(context.Background(), collection, 1, big.NewInt(500), seller); err != nil {
		t.Fatalf("ListItem failed: %v", err)
	}
	if err := lg.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	_, err := lg.WithdrawProceeds(context.Background(), seller)
	if !IsKind(err, KindTransferFailed) {
		t.Fatalf("withdraw with failing payer = %v, want kind %q", err, KindTransferFailed)
	}
	if !errors.Is(err, payErr) {
		t.Errorf("error chain does not reach the payer error: %v", err)
	}

	// Zeroing was undone; the full balance is still withdrawable.
	if bal := lg.GetProceeds(seller); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("balance after failed payout = %s, want 500", bal)
	}
}

func TestWithdrawProceeds_PayerReceivesCopy(t *testing.T) {
	dir := token.NewDirectory()
	coll := token.NewMemoryCollection()
	dir.Register(collection, coll)

	// A payer that corrupts the amount it is handed must not be able to
	// damage ledger bookkeeping.
	greedy := payment.PayerFunc(func(ctx context.Context, to model.Address, amount *big.Int) error {
		amount.SetInt64(1)
		return errors.New("rejected after mutation")
	})
	lg := New(operator, dir, greedy, nil, testLogger())

	if err := coll.Mint(seller, 1); err != nil {
		t.Fatal(err)
	}
	if err := coll.Approve(operator, 1); err != nil {
		t.Fatal(err)
	}
	if err := lg.ListItem(context.Background(), collection, 1, big.NewInt(500), seller); err != nil {
		t.Fatal(err)
	}
	if err := lg.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatal(err)
	}

	if _, err := lg.WithdrawProceeds(context.Background(), seller); err == nil {
		t.Fatal("withdraw should fail")
	}
	if bal := lg.GetProceeds(seller); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("balance after mutating payer = %s, want 500", bal)
	}
}

func TestReentrancy_MutationsRejectedDuringSettlement(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)
	f.mint(buyer, 2)

	// The transfer hook plays the malicious receiver: it re-enters the
	// ledger through every mutating entry point mid-settlement.
	hookErrs := make(map[string]error)
	f.coll.SetTransferHook(func(ctx context.Context, from, to model.Address, tokenID uint64) error {
		hookErrs["list"] = f.ledger.ListItem(ctx, collection, 2, big.NewInt(100), buyer)
		hookErrs["cancel"] = f.ledger.CancelListing(ctx, collection, 1, seller)
		hookErrs["update"] = f.ledger.UpdateListingPrice(ctx, collection, 1, big.NewInt(900), seller)
		hookErrs["buy"] = f.ledger.BuyItem(ctx, collection, 1, big.NewInt(500), buyer)
		_, hookErrs["withdraw"] = f.ledger.WithdrawProceeds(ctx, seller)
		return nil
	})

	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatalf("BuyItem failed: %v", err)
	}

	for op, err := range hookErrs {
		if !IsKind(err, KindReentrantCall) {
			t.Errorf("re-entrant %s = %v, want kind %q", op, err, KindReentrantCall)
		}
	}

	// The outer purchase settled normally despite the hostile receiver.
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("proceeds after hostile receiver = %s, want 500", bal)
	}
	owner, _ := f.coll.OwnerOf(context.Background(), 1)
	if owner != buyer {
		t.Errorf("owner after hostile receiver = %q, want %q", owner, buyer)
	}

	stats := f.ledger.Stats()
	if stats.ReentrantRejections != int64(len(hookErrs)) {
		t.Errorf("ReentrantRejections = %d, want %d", stats.ReentrantRejections, len(hookErrs))
	}
}

func TestReentrancy_WithdrawDuringPayout(t *testing.T) {
	dir := token.NewDirectory()
	coll := token.NewMemoryCollection()
	dir.Register(collection, coll)

	// The payer tries to double-withdraw from inside the payout.
	var lg Ledger
	var nested error
	payer := payment.PayerFunc(func(ctx context.Context, to model.Address, amount *big.Int) error {
		_, nested = lg.WithdrawProceeds(ctx, to)
		return nil
	})
	lg = New(operator, dir, payer, nil, testLogger())

	if err := coll.Mint(seller, 1); err != nil {
		t.Fatal(err)
	}
	if err := coll.Approve(operator, 1); err != nil {
		t.Fatal(err)
	}
	if err := lg.ListItem(context.Background(), collection, 1, big.NewInt(500), seller); err != nil {
		t.Fatal(err)
	}
	if err := lg.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatal(err)
	}

	amount, err := lg.WithdrawProceeds(context.Background(), seller)
	if err != nil {
		t.Fatalf("WithdrawProceeds failed: %v", err)
	}
	if amount.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("withdrawn = %s, want 500", amount)
	}
	if !IsKind(nested, KindReentrantCall) {
		t.Errorf("nested withdraw = %v, want kind %q", nested, KindReentrantCall)
	}
	if bal := lg.GetProceeds(seller); bal.Sign() != 0 {
		t.Errorf("balance after payout = %s, want 0", bal)
	}
}

func TestEventSequence(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	ctx := context.Background()
	if err := f.ledger.UpdateListingPrice(ctx, collection, 1, big.NewInt(600), seller); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.CancelListing(ctx, collection, 1, seller); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.ListItem(ctx, collection, 1, big.NewInt(700), seller); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.BuyItem(ctx, collection, 1, big.NewInt(700), buyer); err != nil {
		t.Fatal(err)
	}

	want := []string{
		model.EventItemListed,
		model.EventItemListed, // price update re-announces
		model.EventItemCanceled,
		model.EventItemListed,
		model.EventItemBought,
	}
	events := f.sink.Events()
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	seen := make(map[uuid.UUID]bool)
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.Type, want[i])
		}
		if seen[ev.ID] {
			t.Errorf("event %d reuses ID %s", i, ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestNilSink(t *testing.T) {
	dir := token.NewDirectory()
	coll := token.NewMemoryCollection()
	dir.Register(collection, coll)
	lg := New(operator, dir, payment.NewMemoryBank(), nil, testLogger())

	if err := coll.Mint(seller, 1); err != nil {
		t.Fatal(err)
	}
	if err := coll.Approve(operator, 1); err != nil {
		t.Fatal(err)
	}
	if err := lg.ListItem(context.Background(), collection, 1, big.NewInt(500), seller); err != nil {
		t.Fatalf("ListItem with nil sink failed: %v", err)
	}
	if err := lg.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatalf("BuyItem with nil sink failed: %v", err)
	}
}

func TestGetters_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	first := f.ledger.GetListing(collection, 1)
	second := f.ledger.GetListing(collection, 1)
	if first.Price.Cmp(second.Price) != 0 || first.Seller != second.Seller {
		t.Error("repeated GetListing returned different results")
	}

	// Mutating a returned copy does not leak into the ledger.
	first.Price.SetInt64(1)
	if got := f.ledger.GetListing(collection, 1); got.Price.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("listing price after caller mutation = %s, want 500", got.Price)
	}

	if err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(500), buyer); err != nil {
		t.Fatal(err)
	}
	f.ledger.GetProceeds(seller).SetInt64(0)
	if bal := f.ledger.GetProceeds(seller); bal.Cmp(big.NewInt(500)) != 0 {
		t.Errorf("proceeds after caller mutation = %s, want 500", bal)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.list(seller, 1, 500)
	f.list(seller, 2, 300)
	f.list(buyer, 3, 900)

	if err := f.ledger.UpdateListingPrice(ctx, collection, 1, big.NewInt(550), seller); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.CancelListing(ctx, collection, 2, seller); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.BuyItem(ctx, collection, 1, big.NewInt(600), buyer); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.WithdrawProceeds(ctx, seller); err != nil {
		t.Fatal(err)
	}

	stats := f.ledger.Stats()
	if stats.ActiveListings != 1 {
		t.Errorf("ActiveListings = %d, want 1", stats.ActiveListings)
	}
	if stats.Sales != 1 {
		t.Errorf("Sales = %d, want 1", stats.Sales)
	}
	if stats.Cancellations != 1 {
		t.Errorf("Cancellations = %d, want 1", stats.Cancellations)
	}
	if stats.PriceUpdates != 1 {
		t.Errorf("PriceUpdates = %d, want 1", stats.PriceUpdates)
	}
	if stats.Withdrawals != 1 {
		t.Errorf("Withdrawals = %d, want 1", stats.Withdrawals)
	}
	if stats.Volume.Cmp(big.NewInt(600)) != 0 {
		t.Errorf("Volume = %s, want 600", stats.Volume)
	}
	if stats.Custody.Sign() != 0 {
		t.Errorf("Custody = %s, want 0 after withdrawal", stats.Custody)
	}
}

func TestCustodyConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Sales to two sellers, one partial drain by withdrawal.
	f.list(seller, 1, 500)
	f.list(buyer, 2, 900)
	if err := f.ledger.BuyItem(ctx, collection, 1, big.NewInt(650), buyer); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.BuyItem(ctx, collection, 2, big.NewInt(900), outsider); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ledger.WithdrawProceeds(ctx, buyer); err != nil {
		t.Fatal(err)
	}

	stats := f.ledger.Stats()

	held := new(big.Int).Add(f.ledger.GetProceeds(seller), f.ledger.GetProceeds(buyer))
	held.Add(held, f.ledger.GetProceeds(outsider))
	if stats.Custody.Cmp(held) != 0 {
		t.Errorf("Custody = %s, want sum of balances %s", stats.Custody, held)
	}

	// Everything paid in is either still in custody or paid back out.
	total := new(big.Int).Add(stats.Custody, f.bank.TotalPaid())
	if stats.Volume.Cmp(total) != 0 {
		t.Errorf("Volume = %s, want custody+payouts %s", stats.Volume, total)
	}
}

func TestConcurrentOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const tokens = 4
	parties := []model.Address{seller, buyer}
	for i := uint64(0); i < tokens; i++ {
		f.mint(parties[i%2], i)
		if err := f.ledger.ListItem(ctx, collection, i, big.NewInt(1000), parties[i%2]); err != nil {
			t.Fatalf("ListItem failed: %v", err)
		}
	}

	// Every worker hammers the same small market. Operations may fail
	// with any ledger kind (including ReentrantCall while a settlement
	// is in flight); they must never panic, deadlock, or corrupt the
	// books. Successful payments are tallied for the conservation check.
	var (
		tallyMu  sync.Mutex
		payments = new(big.Int)
	)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			me := parties[w%2]
			for i := 0; i < 200; i++ {
				tok := uint64((w + i) % tokens)
				pay := big.NewInt(int64(1000 + i))
				if err := f.ledger.BuyItem(ctx, collection, tok, pay, me); err == nil {
					tallyMu.Lock()
					payments.Add(payments, pay)
					tallyMu.Unlock()

					// Relist what we just acquired to keep the market moving.
					if err := f.coll.Approve(operator, tok); err == nil {
						f.ledger.ListItem(ctx, collection, tok, big.NewInt(int64(1000+i)), me)
					}
				} else {
					var lerr *Error
					if !errors.As(err, &lerr) {
						t.Errorf("BuyItem returned a non-ledger error: %v", err)
						return
					}
				}
				if i%25 == 0 {
					if _, err := f.ledger.WithdrawProceeds(ctx, me); err != nil && !IsKind(err, KindNoProceeds) && !IsKind(err, KindReentrantCall) {
						t.Errorf("WithdrawProceeds failed unexpectedly: %v", err)
						return
					}
				}
			}
		}(w)
	}
	wg.Wait()

	// Conservation: volume equals tallied payments, and every unit paid
	// in is either held in custody or already paid back out.
	stats := f.ledger.Stats()
	if stats.Volume.Cmp(payments) != 0 {
		t.Errorf("Volume = %s, want %s", stats.Volume, payments)
	}
	held := new(big.Int).Add(f.ledger.GetProceeds(seller), f.ledger.GetProceeds(buyer))
	if stats.Custody.Cmp(held) != 0 {
		t.Errorf("Custody = %s, want sum of balances %s", stats.Custody, held)
	}
	total := new(big.Int).Add(stats.Custody, f.bank.TotalPaid())
	if stats.Volume.Cmp(total) != 0 {
		t.Errorf("Volume = %s, want custody+payouts %s", stats.Volume, total)
	}

	// Every token still has exactly one owner.
	for i := uint64(0); i < tokens; i++ {
		if _, err := f.coll.OwnerOf(ctx, i); err != nil {
			t.Errorf("token %d lost its owner: %v", i, err)
		}
	}
}

func TestErrorMessages(t *testing.T) {
	f := newFixture(t)
	f.list(seller, 1, 500)

	err := f.ledger.BuyItem(context.Background(), collection, 1, big.NewInt(100), buyer)
	if err == nil {
		t.Fatal("underpaid buy should fail")
	}
	msg := err.Error()
	if msg == "" {
		t.Fatal("empty error message")
	}
	var lerr *Error
	if !errors.As(err, &lerr) {
		t.Fatal("error is not *ledger.Error")
	}
	if lerr.Kind != KindPriceNotMet {
		t.Errorf("Kind = %q, want %q", lerr.Kind, KindPriceNotMet)
	}
	if IsKind(err, KindNotListed) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(errors.New("plain"), KindPriceNotMet) {
		t.Error("IsKind matched a non-ledger error")
	}
}
