package schema

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/communitypay/cc-ledger/internal/domain"
)

// BlockchainTransaction represents the blockchain_transactions table - chain-submitted
// transactions tracked through their confirmation depth
type BlockchainTransaction struct {
	// ID is the record identifier (uuid)
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// Hash is the on-chain transaction hash, unique; duplicate inserts are no-ops
	Hash string `gorm:"column:hash;not null;type:text;uniqueIndex"`
	// BlockHash is the hash of the block containing this transaction
	BlockHash *string `gorm:"column:block_hash;type:text"`
	// BlockNumber is the block this transaction was included in
	BlockNumber uint64 `gorm:"column:block_number;not null;default:0"`
	// FromAddress is the sending account
	FromAddress string `gorm:"column:from_address;not null;type:text;index"`
	// ToAddress is the receiving account (token contract for transfers)
	ToAddress string `gorm:"column:to_address;not null;type:text;index"`
	// Nonce is the account nonce the transaction was submitted with
	Nonce uint64 `gorm:"column:nonce;not null;default:0"`
	// Value is the native value carried by the transaction
	Value decimal.Decimal `gorm:"column:value;not null;type:numeric(78,18);default:0"`
	// Gas is the gas limit
	Gas uint64 `gorm:"column:gas;not null;default:0"`
	// GasPrice is the gas price in wei
	GasPrice decimal.Decimal `gorm:"column:gas_price;not null;type:numeric(78,0);default:0"`
	// Type classifies the purpose of the transaction (TRANSFER, CHANGE)
	Type domain.ChainTxType `gorm:"column:type;not null;type:text;index"`
	// Meta carries free-form context (batch ids, token address)
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb"`
	// State is the confirmation state, monotonic
	State domain.ChainTxState `gorm:"column:state;not null;type:text;index"`
	// CreatedAt is the timestamp when the receipt was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the BlockchainTransaction model
func (BlockchainTransaction) TableName() string {
	return "blockchain_transactions"
}
