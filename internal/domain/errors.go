package domain

import "errors"

var (
	// ErrInvalidAmount is returned when a transfer amount is not a positive decimal
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnknownParticipant is returned when an account address resolves to no wallet
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrUnknownCurrency is returned when a currency symbol or token address is not tracked
	ErrUnknownCurrency = errors.New("unknown currency")

	// ErrTransactionNotFound is returned when a transaction id matches no row
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrInsufficientFunds is returned when a transfer was canceled because the
	// debited balance could not cover the amount
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrNotRevertible is returned when the referenced transaction is not in a
	// state whose value movement can be reversed
	ErrNotRevertible = errors.New("transaction not revertible")

	// ErrConflict is returned when a conditional update matched zero rows where
	// exactly one was expected. It indicates an ordering bug or a duplicate call
	// and must never be retried blindly.
	ErrConflict = errors.New("conflicting state transition")

	// ErrNoMatch is returned when a filter combination matches no eligible rows
	ErrNoMatch = errors.New("no rows matched filter")

	// ErrGateway wraps chain-node failures (unreachable node, malformed receipt)
	ErrGateway = errors.New("chain gateway error")

	// ErrSubscriptionFailed is returned when a live event subscription cannot be established
	ErrSubscriptionFailed = errors.New("subscription failed")
)
