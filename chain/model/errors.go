package model

import "errors"

// Header errors (spec.md §7).
var (
	ErrBlockNumbersNotSequential = errors.New("block_numbers_not_sequential")
	ErrInvalidPreviousBlockID    = errors.New("invalid_previous_block_id")
	ErrInvalidBlockTime          = errors.New("invalid_block_time")
	ErrTimeInPast                = errors.New("time_in_past")
	ErrTimeInFuture              = errors.New("time_in_future")
	ErrInvalidBlockDigest        = errors.New("invalid_block_digest")
	ErrInvalidDelegateSignee     = errors.New("invalid_delegate_signee")
	ErrFailedCheckpointVerify    = errors.New("failed_checkpoint_verification")
)

// Fork-tree errors.
var (
	ErrBlockOlderThanUndoHistory = errors.New("block_older_than_undo_history")
	ErrUnknownBlock              = errors.New("unknown_block")
	ErrBlockAlreadyKnown         = errors.New("block_already_known")
)

// Transaction errors.
var (
	ErrInsufficientRelayFee = errors.New("insufficient_relay_fee")
	ErrExpiredTransaction   = errors.New("expired_transaction")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrInvalidSignature     = errors.New("invalid_signature")
)

// Genesis errors.
var (
	ErrNewDatabaseVersion = errors.New("new_database_version")
	ErrInvalidPTSAddress  = errors.New("invalid_pts_address")
)

// Operation-specific errors surfaced by the transaction evaluator.
var (
	ErrUnknownAccount          = errors.New("unknown_account")
	ErrUnknownAsset            = errors.New("unknown_asset")
	ErrUnknownBalance          = errors.New("unknown_balance")
	ErrDuplicateAccountName    = errors.New("duplicate_account_name")
	ErrDuplicateAssetSymbol    = errors.New("duplicate_asset_symbol")
	ErrInsufficientFunds       = errors.New("insufficient_funds")
	ErrSupplyExceeded          = errors.New("supply_exceeded")
	ErrNotAssetIssuer          = errors.New("not_asset_issuer")
	ErrNotDelegate             = errors.New("not_delegate")
	ErrInvalidPayRate          = errors.New("invalid_pay_rate")
	ErrSelfTransfer            = errors.New("self_transfer")
	ErrUnknownOrder            = errors.New("unknown_order")
	ErrNotOrderOwner           = errors.New("not_order_owner")
	ErrInsufficientCollateral  = errors.New("insufficient_collateral")
)
