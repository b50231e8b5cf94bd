package schema

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Balance represents the balances table - per-wallet, per-currency bookkeeping.
// OffchainAmount reflects all DONE transactions touching this wallet+currency and
// must never go negative; PendingTxs is the optimistic-concurrency guard holding
// the ids of in-flight transactions reserving this balance.
type Balance struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// WalletAddress is the on-chain address of the owning wallet
	WalletAddress string `gorm:"column:wallet_address;not null;type:text;uniqueIndex:idx_balances_wallet_currency,priority:1"`
	// Currency is the currency symbol this balance is denominated in
	Currency string `gorm:"column:currency;not null;type:text;uniqueIndex:idx_balances_wallet_currency,priority:2"`
	// BlockchainAmount mirrors the on-chain token balance as of BlockOfLastUpdate
	BlockchainAmount decimal.Decimal `gorm:"column:blockchain_amount;not null;type:numeric(78,18);default:0"`
	// OffchainAmount is the instantly-spendable off-chain balance
	OffchainAmount decimal.Decimal `gorm:"column:offchain_amount;not null;type:numeric(78,18);default:0"`
	// BlockOfLastUpdate is the block number of the last reconciliation refresh
	BlockOfLastUpdate uint64 `gorm:"column:block_of_last_update;not null;default:0"`
	// PendingTxs holds ids of transactions currently reserving this balance
	PendingTxs pq.StringArray `gorm:"column:pending_txs;not null;type:text[];default:'{}'"`
	// CreatedAt is the timestamp when this balance was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this balance was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Balance model
func (Balance) TableName() string {
	return "balances"
}
