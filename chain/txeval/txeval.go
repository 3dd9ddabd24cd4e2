// Package txeval evaluates a signed transaction against the pending
// overlay: checks expiration, signature, and fee, then dispatches each
// operation to its handler (spec.md §4.3).
package txeval

import (
	"fmt"

	"github.com/deltachain/core/chain/model"
	"github.com/deltachain/core/chain/overlay"
	"github.com/deltachain/core/chain/signature"
)

// MinRelayFee is charged per transaction regardless of operation kind.
// Real deployments size this from current network load; a fixed floor
// keeps evaluation deterministic for this engine.
const MinRelayFee = 100

// Evaluator applies transactions against a pending state.
type Evaluator struct {
	state overlay.Accessor
	now   int64
}

// New constructs an Evaluator bound to state, whose writes land wherever
// state (a *chainstate.View or an *overlay.State) directs them.
func New(state overlay.Accessor, now int64) *Evaluator {
	return &Evaluator{state: state, now: now}
}

// Apply verifies and executes every operation in tx, returning the fee
// collected. On success it persists a TxRecord keyed by the transaction's
// id (so invariant 10's duplicate check has something to find) noting
// blockNum and position, and accrues the relay fee into the core asset's
// collected-fees pool for chain/engine's delegate pay step to release.
// On any error the caller must discard whatever overlay this Evaluator
// wrote into; nothing here is transactional on its own.
func (e *Evaluator) Apply(tx model.SignedTransaction, blockNum uint64, position int) (uint64, error) {
	if tx.Expiration <= e.now {
		return 0, model.ErrExpiredTransaction
	}
	if tx.RelayFee < MinRelayFee {
		return 0, model.ErrInsufficientRelayFee
	}
	id := tx.ID()
	if _, found, err := e.state.TransactionByID(id); err != nil {
		return 0, err
	} else if found {
		return 0, model.ErrDuplicateTransaction
	}

	signer, found, err := e.state.AccountByID(tx.Signer)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, model.ErrUnknownAccount
	}
	addr, err := signature.Verify(tx.Transaction, tx.Signature)
	if err != nil {
		return 0, model.ErrInvalidSignature
	}
	if addr != signer.Address && addr != signer.OwnerKey && addr != signer.ActiveKeyAt(e.now) {
		return 0, model.ErrInvalidSignature
	}

	for _, op := range tx.Operations {
		if err := e.applyOp(tx.Signer, op); err != nil {
			return 0, err
		}
	}

	if err := e.collectFee(tx.RelayFee); err != nil {
		return 0, err
	}
	if err := e.state.StoreTransaction(id, model.TxRecord{
		BlockNum:        blockNum,
		PositionInBlock: position,
		Tx:              tx,
		CollectedFees:   tx.RelayFee,
	}); err != nil {
		return 0, err
	}

	return tx.RelayFee, nil
}

// collectFee adds fee to the core asset's fee pool, released to
// delegates over time by chain/engine's pay step.
func (e *Evaluator) collectFee(fee uint64) error {
	asset, found, err := e.state.AssetByID(model.CoreAssetID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	asset.CollectedFees += fee
	return e.state.StoreAsset(asset)
}

func (e *Evaluator) applyOp(signer model.AccountID, op model.Operation) error {
	switch op.Kind {
	case model.OpTransfer:
		return e.transfer(signer, op.Transfer)
	case model.OpRegisterAccount:
		return e.registerAccount(op.RegisterAccount)
	case model.OpUpdateAccount:
		return e.updateAccount(signer, op.UpdateAccount)
	case model.OpCreateAsset:
		return e.createAsset(op.CreateAsset)
	case model.OpIssueAsset:
		return e.issueAsset(op.IssueAsset)
	case model.OpUpdateAsset:
		return e.updateAsset(op.UpdateAsset)
	case model.OpCreateDelegate:
		return e.createDelegate(signer, op.CreateDelegate)
	case model.OpUpdateDelegate:
		return e.updateDelegate(signer, op.UpdateDelegate)
	case model.OpVoteDelegate:
		return e.voteDelegate(op.VoteDelegate)
	case model.OpSubmitBid:
		return e.submitOrder(model.OrderAbsoluteBid, op.SubmitBid)
	case model.OpSubmitAsk:
		return e.submitOrder(model.OrderAbsoluteAsk, op.SubmitAsk)
	case model.OpSubmitShort:
		return e.submitShort(op.SubmitShort)
	case model.OpSubmitCover:
		return e.submitCover(op.SubmitCover)
	case model.OpCancelOrder:
		return e.cancelOrder(signer, op.CancelOrder)
	case model.OpUpdateFeed:
		return e.updateFeed(signer, op.UpdateFeed)
	default:
		return fmt.Errorf("txeval: unknown operation kind %q", op.Kind)
	}
}

func (e *Evaluator) balance(owner model.AccountID, asset model.AssetID) (model.Balance, error) {
	id := model.NewBalanceID(owner, asset, model.ClaimSignature, 0)
	b, found, err := e.state.BalanceByID(id)
	if err != nil {
		return model.Balance{}, err
	}
	if !found {
		b = model.Balance{ID: id, Owner: owner, AssetID: asset, Claim: model.ClaimSignature}
	}
	return b, nil
}

func (e *Evaluator) credit(owner model.AccountID, asset model.AssetID, amount uint64) error {
	b, err := e.balance(owner, asset)
	if err != nil {
		return err
	}
	b.Amount += amount
	b.LastUpdatedAt = e.now
	return e.state.StoreBalance(b)
}

func (e *Evaluator) debit(owner model.AccountID, asset model.AssetID, amount uint64) error {
	b, err := e.balance(owner, asset)
	if err != nil {
		return err
	}
	if b.Amount < amount {
		return model.ErrInsufficientFunds
	}
	b.Amount -= amount
	b.LastUpdatedAt = e.now
	return e.state.StoreBalance(b)
}

func (e *Evaluator) transfer(signer model.AccountID, op *model.TransferOp) error {
	if op.From != signer {
		return model.ErrNotOrderOwner
	}
	if op.From == op.To {
		return model.ErrSelfTransfer
	}
	if _, found, err := e.state.AccountByID(op.To); err != nil {
		return err
	} else if !found {
		return model.ErrUnknownAccount
	}
	if err := e.debit(op.From, op.AssetID, op.Amount); err != nil {
		return err
	}
	return e.credit(op.To, op.AssetID, op.Amount)
}

func (e *Evaluator) registerAccount(op *model.RegisterAccountOp) error {
	if _, found, err := e.state.AccountByName(op.Name); err != nil {
		return err
	} else if found {
		return model.ErrDuplicateAccountName
	}
	id := e.nextAccountID()
	return e.state.StoreAccount(model.Account{
		ID:            id,
		Name:          op.Name,
		OwnerKey:      op.OwnerKey,
		Address:       op.Address,
		RegisteredAt:  e.now,
		LastUpdatedAt: e.now,
	})
}

func (e *Evaluator) updateAccount(signer model.AccountID, op *model.UpdateAccountOp) error {
	if op.AccountID != signer {
		return model.ErrNotOrderOwner
	}
	acc, found, err := e.state.AccountByID(op.AccountID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAccount
	}
	if op.NewKey != "" {
		acc.ActiveKeys = append(acc.ActiveKeys, model.ActiveKeyEntry{Key: op.NewKey, ActiveFrom: e.now})
	}
	if op.NewName != "" {
		acc.Name = op.NewName
	}
	acc.LastUpdatedAt = e.now
	return e.state.StoreAccount(acc)
}

func (e *Evaluator) createAsset(op *model.CreateAssetOp) error {
	if _, found, err := e.state.AssetBySymbol(op.Symbol); err != nil {
		return err
	} else if found {
		return model.ErrDuplicateAssetSymbol
	}
	if _, found, err := e.state.AccountByID(op.Issuer); err != nil {
		return err
	} else if !found {
		return model.ErrUnknownAccount
	}
	id := e.nextAssetID()
	return e.state.StoreAsset(model.Asset{
		ID:            id,
		Symbol:        op.Symbol,
		Name:          op.Name,
		Description:   op.Description,
		Issuer:        op.Issuer,
		Precision:     op.Precision,
		MaximumSupply: op.MaximumSupply,
	})
}

func (e *Evaluator) issueAsset(op *model.IssueAssetOp) error {
	asset, found, err := e.state.AssetByID(op.AssetID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAsset
	}
	if asset.Issuer != op.Issuer {
		return model.ErrNotAssetIssuer
	}
	if !asset.CanIssue(op.Amount) {
		return model.ErrSupplyExceeded
	}
	asset.CurrentSupply += op.Amount
	if err := e.state.StoreAsset(asset); err != nil {
		return err
	}
	return e.credit(op.To, op.AssetID, op.Amount)
}

func (e *Evaluator) updateAsset(op *model.UpdateAssetOp) error {
	asset, found, err := e.state.AssetByID(op.AssetID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAsset
	}
	if asset.Issuer != op.Issuer {
		return model.ErrNotAssetIssuer
	}
	if op.MaximumSupply != 0 {
		asset.MaximumSupply = op.MaximumSupply
	}
	if op.Description != "" {
		asset.Description = op.Description
	}
	return e.state.StoreAsset(asset)
}

func (e *Evaluator) createDelegate(signer model.AccountID, op *model.CreateDelegateOp) error {
	if op.AccountID != signer {
		return model.ErrNotOrderOwner
	}
	acc, found, err := e.state.AccountByID(op.AccountID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAccount
	}
	if acc.IsDelegate() {
		return nil
	}
	if op.PayRatePercent > 100 {
		return model.ErrInvalidPayRate
	}
	acc.Delegate = &model.DelegateInfo{PayRatePercent: op.PayRatePercent}
	return e.state.StoreAccount(acc)
}

func (e *Evaluator) updateDelegate(signer model.AccountID, op *model.UpdateDelegateOp) error {
	if op.AccountID != signer {
		return model.ErrNotOrderOwner
	}
	acc, found, err := e.state.AccountByID(op.AccountID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAccount
	}
	if !acc.IsDelegate() {
		return model.ErrNotDelegate
	}
	if op.PayRatePercent > 100 {
		return model.ErrInvalidPayRate
	}
	acc.Delegate.PayRatePercent = op.PayRatePercent
	acc.Delegate.NextSecretHash = op.NextSecretHash
	return e.state.StoreAccount(acc)
}

// voteDelegate replaces the voter's cast ballot: it undoes the weight
// their previous slate (if any) contributed to VotesFor, then applies
// their current core-asset balance as weight to the new slate. SlateID
// is the caller's own identifier for the named ballot and isn't
// otherwise interpreted here; what moves VotesFor is Delegates.
func (e *Evaluator) voteDelegate(op *model.VoteDelegateOp) error {
	voter, found, err := e.state.AccountByID(op.Voter)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownAccount
	}
	for _, d := range op.Delegates {
		acc, found, err := e.state.AccountByID(d)
		if err != nil {
			return err
		}
		if !found || !acc.IsDelegate() {
			return model.ErrNotDelegate
		}
	}

	weight, err := e.coreBalance(op.Voter)
	if err != nil {
		return err
	}
	if err := e.adjustVotesFor(voter.VoteSlate, -int64(voter.VoteWeight)); err != nil {
		return err
	}
	if err := e.adjustVotesFor(op.Delegates, int64(weight)); err != nil {
		return err
	}

	voter.VoteSlate = append([]model.AccountID(nil), op.Delegates...)
	voter.VoteWeight = weight
	return e.state.StoreAccount(voter)
}

func (e *Evaluator) coreBalance(owner model.AccountID) (uint64, error) {
	b, err := e.balance(owner, model.CoreAssetID)
	if err != nil {
		return 0, err
	}
	return b.Amount, nil
}

func (e *Evaluator) adjustVotesFor(delegates []model.AccountID, delta int64) error {
	for _, d := range delegates {
		acc, found, err := e.state.AccountByID(d)
		if err != nil {
			return err
		}
		if !found || acc.Delegate == nil {
			continue
		}
		acc.Delegate.VotesFor += delta
		if err := e.state.StoreAccount(acc); err != nil {
			return err
		}
	}
	return nil
}

func (e *Evaluator) submitOrder(kind model.OrderKind, op *model.SubmitOrderOp) error {
	if op.Relative {
		if kind == model.OrderAbsoluteBid {
			kind = model.OrderRelativeBid
		} else {
			kind = model.OrderRelativeAsk
		}
	}
	o := model.Order{
		Kind:                  kind,
		Owner:                 op.Owner,
		QuoteAsset:            op.QuoteAsset,
		BaseAsset:             op.BaseAsset,
		Price:                 op.Price,
		Quantity:              op.Quantity,
		Expiration:            op.Expiration,
		RelativeOffsetPercent: op.RelativeOffsetPercent,
	}
	// Quantity is always BaseAsset units (model.SubmitOrderOp's
	// documented convention). A bid escrows the quote it would owe at
	// its own limit price for the full quantity; an ask escrows the
	// base asset it is offering to sell, unconverted.
	sellAsset, sellAmount := op.QuoteAsset, o.Price.QuoteAmount(op.Quantity)
	if kind == model.OrderAbsoluteAsk || kind == model.OrderRelativeAsk {
		sellAsset, sellAmount = op.BaseAsset, op.Quantity
	}
	if err := e.debit(op.Owner, sellAsset, sellAmount); err != nil {
		return err
	}
	return e.state.StoreOrder(o)
}

func (e *Evaluator) submitShort(op *model.SubmitShortOp) error {
	if err := e.debit(op.Owner, op.CollateralAsset, op.Collateral); err != nil {
		return err
	}
	o := model.Order{
		Kind:               model.OrderShort,
		Owner:              op.Owner,
		QuoteAsset:         op.QuoteAsset,
		BaseAsset:          op.CollateralAsset,
		Price:              op.MaxShortPrice,
		CollateralAmount:   op.Collateral,
		Expiration:         op.Expiration,
		InterestRateBps:    op.InterestRateBps,
		MaximumShortPeriod: op.Expiration,
	}
	return e.state.StoreOrder(o)
}

func (e *Evaluator) submitCover(op *model.SubmitCoverOp) error {
	bal, found, err := e.state.BalanceByID(op.CollateralID)
	if err != nil {
		return err
	}
	if !found || bal.Claim != model.ClaimCover {
		return model.ErrInsufficientCollateral
	}
	if err := e.debit(op.Owner, bal.AssetID, op.CoverAmount); err != nil {
		return err
	}
	bal.Amount = 0
	return e.state.StoreBalance(bal)
}

func (e *Evaluator) cancelOrder(signer model.AccountID, op *model.CancelOrderOp) error {
	o, found, err := e.state.OrderByID(op.OrderID)
	if err != nil {
		return err
	}
	if !found {
		return model.ErrUnknownOrder
	}
	if o.Owner != signer {
		return model.ErrNotOrderOwner
	}
	refundAsset, refundAmount := o.QuoteAsset, o.Price.QuoteAmount(o.Quantity)
	switch o.Kind {
	case model.OrderAbsoluteAsk, model.OrderRelativeAsk:
		refundAsset, refundAmount = o.BaseAsset, o.Quantity
	case model.OrderShort:
		refundAsset, refundAmount = o.BaseAsset, o.CollateralAmount
	}
	if err := e.credit(o.Owner, refundAsset, refundAmount); err != nil {
		return err
	}
	return e.state.RemoveOrder(o)
}

func (e *Evaluator) updateFeed(signer model.AccountID, op *model.UpdateFeedOp) error {
	acc, found, err := e.state.AccountByID(op.Delegate)
	if err != nil {
		return err
	}
	if !found || !acc.IsDelegate() || op.Delegate != signer {
		return model.ErrNotDelegate
	}
	return e.state.StoreFeed(model.Feed{
		QuoteAsset: op.QuoteAsset,
		DelegateID: op.Delegate,
		Price:      op.Price,
		LastUpdate: e.now,
	})
}

func (e *Evaluator) nextAccountID() model.AccountID {
	raw, found, err := e.state.Property(model.PropertyLastAccountID)
	var n uint64
	if err == nil && found {
		n = decodeU64(raw)
	}
	n++
	_ = e.state.StoreProperty(model.PropertyLastAccountID, encodeU64(n))
	return model.AccountID(n)
}

func (e *Evaluator) nextAssetID() model.AssetID {
	raw, found, err := e.state.Property(model.PropertyLastAssetID)
	var n uint64
	if err == nil && found {
		n = decodeU64(raw)
	}
	n++
	_ = e.state.StoreProperty(model.PropertyLastAssetID, encodeU64(n))
	return model.AssetID(n)
}
