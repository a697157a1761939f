package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/apexbay/nftmarket/internal/model"
	"github.com/apexbay/nftmarket/internal/payment"
	"github.com/apexbay/nftmarket/internal/token"
)

// ledgerImpl implements the Ledger interface.
type ledgerImpl struct {
	operator model.Address
	tokens   token.Resolver
	payer    payment.Payer
	sink     EventSink
	logger   *slog.Logger

	state *ledgerState

	// settling is set while an external transfer or payout is in
	// flight. Mutating operations that begin in that window are
	// rejected rather than queued.
	settling  atomic.Bool
	reentrant atomic.Int64
}

// New creates a settlement ledger. operator is the address sellers must
// approve for their tokens before listing. sink may be nil to disable
// event emission.
func New(operator model.Address, tokens token.Resolver, payer payment.Payer, sink EventSink, logger *slog.Logger) Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	return &ledgerImpl{
		operator: operator,
		tokens:   tokens,
		payer:    payer,
		sink:     sink,
		logger:   logger,
		state:    newState(),
	}
}

// ListItem puts an NFT up for sale.
func (l *ledgerImpl) ListItem(ctx context.Context, collection model.Address, tokenID uint64, price *big.Int, caller model.Address) error {
	if l.settling.Load() {
		return l.rejectReentrant("list_item", collection, tokenID, caller)
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	key := model.TokenKey{Collection: collection, TokenID: tokenID}
	if cur, ok := l.state.listingLocked(key); ok {
		return &Error{Kind: KindAlreadyListed, Collection: collection, TokenID: tokenID, Caller: caller, Price: copyBig(cur.Price)}
	}
	reg, ownerErr := l.checkOwner(ctx, collection, tokenID, caller)
	if ownerErr != nil {
		return ownerErr
	}
	if price == nil || price.Sign() <= 0 {
		return &Error{Kind: KindPriceMustBeAboveZero, Collection: collection, TokenID: tokenID, Caller: caller, Offered: copyBig(price)}
	}
	approved, err := reg.GetApproved(ctx, tokenID)
	if err != nil || approved != l.operator {
		return &Error{Kind: KindNotApproved, Collection: collection, TokenID: tokenID, Caller: caller, cause: err}
	}

	l.state.putListingLocked(key, model.Listing{Price: new(big.Int).Set(price), Seller: caller})

	l.logger.Info("item listed",
		"collection", collection,
		"token_id", tokenID,
		"seller", caller,
		"price", price.String(),
	)
	l.emitLocked(model.Event{
		Type:       model.EventItemListed,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
		Price:      price.String(),
	})
	return nil
}

// CancelListing takes an active listing down.
func (l *ledgerImpl) CancelListing(ctx context.Context, collection model.Address, tokenID uint64, caller model.Address) error {
	if l.settling.Load() {
		return l.rejectReentrant("cancel_listing", collection, tokenID, caller)
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if _, err := l.checkOwner(ctx, collection, tokenID, caller); err != nil {
		return err
	}
	key := model.TokenKey{Collection: collection, TokenID: tokenID}
	if _, ok := l.state.listingLocked(key); !ok {
		return &Error{Kind: KindNotListed, Collection: collection, TokenID: tokenID, Caller: caller}
	}

	l.state.deleteListingLocked(key)
	l.state.cancellations++

	l.logger.Info("listing canceled",
		"collection", collection,
		"token_id", tokenID,
		"seller", caller,
	)
	l.emitLocked(model.Event{
		Type:       model.EventItemCanceled,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
	})
	return nil
}

// UpdateListingPrice raises the asking price of an active listing. The
// new price must be strictly greater than the current one.
func (l *ledgerImpl) UpdateListingPrice(ctx context.Context, collection model.Address, tokenID uint64, newPrice *big.Int, caller model.Address) error {
	if l.settling.Load() {
		return l.rejectReentrant("update_listing_price", collection, tokenID, caller)
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if _, err := l.checkOwner(ctx, collection, tokenID, caller); err != nil {
		return err
	}
	key := model.TokenKey{Collection: collection, TokenID: tokenID}
	cur, ok := l.state.listingLocked(key)
	if !ok {
		return &Error{Kind: KindNotListed, Collection: collection, TokenID: tokenID, Caller: caller}
	}
	if newPrice == nil || newPrice.Cmp(cur.Price) <= 0 {
		return &Error{Kind: KindPriceMustBeAboveZero, Collection: collection, TokenID: tokenID, Caller: caller, Price: copyBig(cur.Price), Offered: copyBig(newPrice)}
	}

	cur.Price = new(big.Int).Set(newPrice)
	l.state.putListingLocked(key, cur)
	l.state.priceUpdates++

	l.logger.Info("listing price updated",
		"collection", collection,
		"token_id", tokenID,
		"seller", caller,
		"price", newPrice.String(),
	)
	l.emitLocked(model.Event{
		Type:       model.EventItemListed,
		Collection: collection,
		TokenID:    tokenID,
		Seller:     caller,
		Price:      newPrice.String(),
	})
	return nil
}

// BuyItem purchases an active listing.
func (l *ledgerImpl) BuyItem(ctx context.Context, collection model.Address, tokenID uint64, offered *big.Int, caller model.Address) error {
	if l.settling.Load() {
		return l.rejectReentrant("buy_item", collection, tokenID, caller)
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	key := model.TokenKey{Collection: collection, TokenID: tokenID}
	cur, ok := l.state.listingLocked(key)
	if !ok {
		return &Error{Kind: KindNotListed, Collection: collection, TokenID: tokenID, Caller: caller}
	}
	if offered == nil || offered.Cmp(cur.Price) < 0 {
		return &Error{Kind: KindPriceNotMet, Collection: collection, TokenID: tokenID, Caller: caller, Price: copyBig(cur.Price), Offered: copyBig(offered)}
	}
	reg, ok := l.tokens.Collection(collection)
	if !ok {
		return &Error{Kind: KindTransferFailed, Collection: collection, TokenID: tokenID, Caller: caller, cause: errUnknownCollection(collection)}
	}

	// Credit first, then transfer. The payment in full, overpayment
	// included, goes to the seller.
	paid := new(big.Int).Set(offered)
	l.settling.Store(true)
	l.state.creditLocked(cur.Seller, paid)
	l.state.deleteListingLocked(key)

	err := reg.SafeTransferFrom(ctx, cur.Seller, caller, tokenID)
	l.settling.Store(false)
	if err != nil {
		l.state.debitLocked(cur.Seller, paid)
		l.state.putListingLocked(key, cur)
		l.logger.Warn("purchase transfer failed",
			"collection", collection,
			"token_id", tokenID,
			"buyer", caller,
			"err", err,
		)
		return &Error{Kind: KindTransferFailed, Collection: collection, TokenID: tokenID, Caller: caller, Price: copyBig(cur.Price), cause: err}
	}

	l.state.sales++
	l.state.volume.Add(l.state.volume, paid)

	l.logger.Info("item bought",
		"collection", collection,
		"token_id", tokenID,
		"buyer", caller,
		"seller", cur.Seller,
		"price", cur.Price.String(),
	)
	l.emitLocked(model.Event{
		Type:       model.EventItemBought,
		Collection: collection,
		TokenID:    tokenID,
		Buyer:      caller,
		Price:      cur.Price.String(),
	})
	return nil
}

// WithdrawProceeds pays out the caller's accumulated balance.
func (l *ledgerImpl) WithdrawProceeds(ctx context.Context, caller model.Address) (*big.Int, error) {
	if l.settling.Load() {
		return nil, l.rejectReentrant("withdraw_proceeds", "", 0, caller)
	}
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	amount := l.state.balanceLocked(caller)
	if amount.Sign() <= 0 {
		return nil, &Error{Kind: KindNoProceeds, Caller: caller}
	}

	// Zero the balance before paying out. The payer gets its own copy
	// so the rollback amount cannot be corrupted.
	l.settling.Store(true)
	l.state.debitLocked(caller, amount)

	err := l.payer.Pay(ctx, caller, new(big.Int).Set(amount))
	l.settling.Store(false)
	if err != nil {
		l.state.creditLocked(caller, amount)
		l.logger.Warn("withdrawal payout failed",
			"address", caller,
			"amount", amount.String(),
			"err", err,
		)
		return nil, &Error{Kind: KindTransferFailed, Caller: caller, Price: copyBig(amount), cause: err}
	}

	l.state.withdrawals++

	l.logger.Info("proceeds withdrawn",
		"address", caller,
		"amount", amount.String(),
	)
	return amount, nil
}

// GetListing returns the active listing, or a zero-price Listing when
// none exists.
func (l *ledgerImpl) GetListing(collection model.Address, tokenID uint64) model.Listing {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	cur, ok := l.state.listingLocked(model.TokenKey{Collection: collection, TokenID: tokenID})
	if !ok {
		return model.Listing{Price: new(big.Int)}
	}
	return model.Listing{Price: new(big.Int).Set(cur.Price), Seller: cur.Seller}
}

// GetProceeds returns the withdrawable balance for seller.
func (l *ledgerImpl) GetProceeds(seller model.Address) *big.Int {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	return l.state.balanceLocked(seller)
}

// Stats returns a snapshot of operational counters.
func (l *ledgerImpl) Stats() Stats {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	return Stats{
		ActiveListings:      len(l.state.listings),
		Sales:               l.state.sales,
		Cancellations:       l.state.cancellations,
		PriceUpdates:        l.state.priceUpdates,
		Withdrawals:         l.state.withdrawals,
		ReentrantRejections: l.reentrant.Load(),
		Custody:             l.state.custodyLocked(),
		Volume:              new(big.Int).Set(l.state.volume),
	}
}

// checkOwner verifies that caller currently owns the token and returns
// the collection's registry for further queries. An unknown collection
// or a failing registry lookup is indistinguishable from not owning it.
func (l *ledgerImpl) checkOwner(ctx context.Context, collection model.Address, tokenID uint64, caller model.Address) (token.Registry, error) {
	reg, ok := l.tokens.Collection(collection)
	if !ok {
		return nil, &Error{Kind: KindNotOwner, Collection: collection, TokenID: tokenID, Caller: caller, cause: errUnknownCollection(collection)}
	}
	owner, err := reg.OwnerOf(ctx, tokenID)
	if err != nil || owner != caller {
		return nil, &Error{Kind: KindNotOwner, Collection: collection, TokenID: tokenID, Caller: caller, cause: err}
	}
	return reg, nil
}

// rejectReentrant fails a mutating operation that began while a
// settlement transfer was in flight.
func (l *ledgerImpl) rejectReentrant(op string, collection model.Address, tokenID uint64, caller model.Address) error {
	l.reentrant.Add(1)
	l.logger.Debug("re-entrant call rejected",
		"op", op,
		"collection", collection,
		"token_id", tokenID,
		"caller", caller,
	)
	return &Error{Kind: KindReentrantCall, Collection: collection, TokenID: tokenID, Caller: caller}
}

// emitLocked publishes an event while holding the state lock. The sink
// must not block.
func (l *ledgerImpl) emitLocked(ev model.Event) {
	if l.sink == nil {
		return
	}
	ev.ID = uuid.New()
	ev.EmittedAt = time.Now().UnixMicro()
	l.sink.Publish(ev)
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func errUnknownCollection(addr model.Address) error {
	return fmt.Errorf("unknown collection %s", addr)
}
