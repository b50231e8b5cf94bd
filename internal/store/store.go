package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

// Store defines the persistence operations for the ledger engine.
//
// The balance protocol methods (ReserveBalance, SettleBalance, ReleaseBalance) are
// the only cross-request ordering points in the system. Implementations must make
// each of them a single atomic conditional mutation at the storage layer, never a
// read-then-write sequence.
type Store interface {
	// CreateWallet registers a managed wallet
	CreateWallet(ctx context.Context, wallet *schema.Wallet) error
	// GetWalletByAddress retrieves a wallet by its on-chain address, nil if unknown
	GetWalletByAddress(ctx context.Context, address string) (*schema.Wallet, error)

	// ReserveBalance ensures a balance row exists for (wallet, currency) and adds
	// txID to its pending set if not already present. Idempotent and race-safe.
	ReserveBalance(ctx context.Context, walletAddress, currency, txID string) error
	// SettleBalance applies a signed amount to offchain_amount and removes txID
	// from the pending set, in one conditional update that only matches when txID
	// is pending and a debit would not drive the balance negative. Returns whether
	// the update matched; "no match" signals insufficient funds, not an error.
	SettleBalance(ctx context.Context, walletAddress, currency, txID string, amount decimal.Decimal) (bool, error)
	// ReleaseBalance removes txID from the pending set without touching amounts
	ReleaseBalance(ctx context.Context, walletAddress, currency, txID string) error
	// SetBlockchainAmount unconditionally overwrites the mirrored on-chain balance
	SetBlockchainAmount(ctx context.Context, walletAddress, currency string, amount decimal.Decimal, atBlock uint64) error
	// GetBalance retrieves a balance row, nil if absent
	GetBalance(ctx context.Context, walletAddress, currency string) (*schema.Balance, error)
	// SumOffchainAmounts totals offchain_amount across all wallets for a currency
	SumOffchainAmounts(ctx context.Context, currency string) (decimal.Decimal, error)

	// CreateTransaction inserts a new off-chain transaction row
	CreateTransaction(ctx context.Context, tx *schema.Transaction) error
	// GetTransaction retrieves a transaction by id, nil if absent
	GetTransaction(ctx context.Context, id string) (*schema.Transaction, error)
	// UpdateTransactionState transitions a transaction keyed on (id, from); a
	// false return means the row was not in the expected state
	UpdateTransactionState(ctx context.Context, id string, from, to domain.TxState) (bool, error)
	// GetTransactions lists transactions matching the filter (AND semantics)
	GetTransactions(ctx context.Context, filter domain.TxFilter) ([]*schema.Transaction, error)
	// ListSettleableTransactions lists DONE transactions not yet linked to a transmit
	ListSettleableTransactions(ctx context.Context, currency string, limit int) ([]*schema.Transaction, error)
	// MarkTransactionsTransmitted bulk-transitions DONE rows to TRANSMITTED and
	// stamps the transmit reference; returns the number of rows updated
	MarkTransactionsTransmitted(ctx context.Context, ids []string, transmitID string) (int64, error)

	// CreateBlockchainTransaction records a chain receipt; a duplicate hash is a
	// no-op success and reports inserted=false
	CreateBlockchainTransaction(ctx context.Context, tx *schema.BlockchainTransaction) (bool, error)
	// GetBlockchainTransactionByHash retrieves a chain transaction record, nil if absent
	GetBlockchainTransactionByHash(ctx context.Context, hash string) (*schema.BlockchainTransaction, error)
	// ListBlockchainTransactions lists rows in the given states, optionally
	// narrowed by participant address and type
	ListBlockchainTransactions(ctx context.Context, states []domain.ChainTxState, address string, txType domain.ChainTxType) ([]*schema.BlockchainTransaction, error)
	// UpdateBlockchainTransactionState transitions a row keyed on (id, from)
	UpdateBlockchainTransactionState(ctx context.Context, id string, from, to domain.ChainTxState) (bool, error)
	// UpdateBlockchainTransactionInclusion stamps the block a transaction was mined in
	UpdateBlockchainTransactionInclusion(ctx context.Context, id string, blockHash *string, blockNumber uint64) error

	// CreateTransmit records a settlement batch
	CreateTransmit(ctx context.Context, transmit *schema.Transmit) error
	// GetTransmit retrieves a transmit by id, nil if absent
	GetTransmit(ctx context.Context, id string) (*schema.Transmit, error)
	// ListUnfinishedTransmits lists transmits whose batched transactions have
	// not all been stamped TRANSMITTED yet, oldest first
	ListUnfinishedTransmits(ctx context.Context) ([]*schema.Transmit, error)

	// InsertBlockchainEvent checkpoints an observed on-chain event as
	// unprocessed; duplicates on (tx_hash, log_index) are no-ops and report
	// inserted=false
	InsertBlockchainEvent(ctx context.Context, event *schema.BlockchainEvent) (bool, error)
	// GetBlockchainEvent retrieves one checkpointed event, nil if absent
	GetBlockchainEvent(ctx context.Context, txHash string, logIndex uint) (*schema.BlockchainEvent, error)
	// MarkBlockchainEventProcessed flips a checkpointed event to processed
	MarkBlockchainEventProcessed(ctx context.Context, txHash string, logIndex uint) error
	// ListUnprocessedEvents lists checkpointed events whose effects have not
	// been applied yet for a token address, in block then log order
	ListUnprocessedEvents(ctx context.Context, address string) ([]*schema.BlockchainEvent, error)
	// GetLastEventBlock returns the max checkpointed block number for a token address
	GetLastEventBlock(ctx context.Context, address string) (uint64, error)
}
