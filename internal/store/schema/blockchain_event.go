package schema

import (
	"time"

	"gorm.io/datatypes"
)

// BlockchainEvent represents the blockchain_events table - the append-only log of
// observed on-chain events. Deduplicated on (tx_hash, log_index); the max block
// number per token address is the backfill checkpoint. Rows are inserted
// unprocessed and flipped to processed only after their ledger effects landed,
// so a partial failure leaves a replayable row behind instead of a lost event.
type BlockchainEvent struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Address is the emitting token contract address
	Address string `gorm:"column:address;not null;type:text;index"`
	// BlockHash is the hash of the block containing this event
	BlockHash string `gorm:"column:block_hash;not null;type:text"`
	// BlockNumber is the block the event was emitted in
	BlockNumber uint64 `gorm:"column:block_number;not null;index"`
	// TxHash is the transaction hash the event belongs to
	TxHash string `gorm:"column:tx_hash;not null;type:text;uniqueIndex:idx_events_tx_log,priority:1"`
	// TxIndex is the transaction's index within its block
	TxIndex uint `gorm:"column:tx_index;not null;default:0"`
	// LogIndex is the event's log index within its block
	LogIndex uint `gorm:"column:log_index;not null;uniqueIndex:idx_events_tx_log,priority:2"`
	// Event is the event name (Transfer)
	Event string `gorm:"column:event;not null;type:text"`
	// ReturnValues carries the decoded event arguments
	ReturnValues datatypes.JSON `gorm:"column:return_values;type:jsonb"`
	// Raw carries the undecoded log for debugging
	Raw datatypes.JSON `gorm:"column:raw;type:jsonb"`
	// Processed reports whether the event's ledger effects have been applied
	Processed bool `gorm:"column:processed;not null;default:false;index"`
	// CreatedAt is the timestamp when the event was checkpointed
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the BlockchainEvent model
func (BlockchainEvent) TableName() string {
	return "blockchain_events"
}
