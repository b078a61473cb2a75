// Package trove implements the trove ledger: per-user debt and collateral
// positions, the pro-rata redistribution accounting, and the atomic mutating
// operations (open, borrow, repay, add/remove collateral).
package trove

import "errors"

var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrTroveAlreadyExists     = errors.New("trove already exists")
	ErrTroveNotFound          = errors.New("trove not found")
	ErrCollateralBelowMinimum = errors.New("collateral below minimum")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientCollateral = errors.New("insufficient collateral")
	ErrInvalidSortOrder       = errors.New("invalid sort order")
	ErrUnknownDenom           = errors.New("unknown collateral denom")
)
