package schema

import (
	"time"

	"github.com/lib/pq"
)

// Transmit represents the transmits table - one settlement attempt linking a batch
// of off-chain transactions to the on-chain transaction that carried them.
// Rows are append-only and written as soon as the chain submission succeeds,
// before the batched transactions are stamped, so a crash mid-settlement
// leaves a recoverable intent behind instead of an invisible double-spend.
type Transmit struct {
	// ID is the transmit identifier (uuid)
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// TxHash is the hash of the on-chain transfer carrying this batch
	TxHash string `gorm:"column:tx_hash;not null;type:text;index"`
	// OffchainTxIDs holds the ids of the batched off-chain transactions
	OffchainTxIDs pq.StringArray `gorm:"column:offchain_tx_ids;not null;type:text[];default:'{}'"`
	// CreatedAt is the timestamp when this settlement attempt was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Transmit model
func (Transmit) TableName() string {
	return "transmits"
}
