package notify

import (
	"context"

	"github.com/communitypay/cc-ledger/internal/domain"
)

// Notifier fans ledger events out to downstream consumers. Publish failures
// never fail the originating operation; implementations log and move on.
//
//go:generate mockgen -source=notify.go -destination=../mocks/notify.go -package=mocks -mock_names=Notifier=MockNotifier
type Notifier interface {
	// TransactionUpdated announces an off-chain transaction state change
	TransactionUpdated(ctx context.Context, tx *domain.Transaction)
	// ChainTransactionUpdated announces an on-chain confirmation state change
	ChainTransactionUpdated(ctx context.Context, tx *domain.BlockchainTransaction)
	// UnmanagedTransfer announces an observed on-chain transfer to an address
	// outside the managed wallet set
	UnmanagedTransfer(ctx context.Context, event *domain.TransferEvent)
	// TrackedTransactionMissing announces a tracked transaction whose hash the
	// node no longer knows
	TrackedTransactionMissing(ctx context.Context, tx *domain.BlockchainTransaction)
	// Close releases the underlying connection
	Close()
}

type noopNotifier struct{}

// NewNoop returns a notifier that drops everything. Used when messaging is not configured.
func NewNoop() Notifier {
	return noopNotifier{}
}

func (noopNotifier) TransactionUpdated(context.Context, *domain.Transaction)                {}
func (noopNotifier) ChainTransactionUpdated(context.Context, *domain.BlockchainTransaction) {}
func (noopNotifier) UnmanagedTransfer(context.Context, *domain.TransferEvent)               {}
func (noopNotifier) TrackedTransactionMissing(context.Context, *domain.BlockchainTransaction) {}
func (noopNotifier) Close()                                                                   {}
