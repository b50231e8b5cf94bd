package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/communitypay/cc-ledger/internal/domain"
)

// Transaction represents the transactions table - the off-chain ledger entries.
// Rows are append-only except for state transitions and transmit stamping.
type Transaction struct {
	// ID is the transaction identifier (uuid)
	ID string `gorm:"column:id;primaryKey;type:uuid"`
	// FromAddress is the debited participant's account address
	FromAddress string `gorm:"column:from_address;not null;type:text;index"`
	// FromCurrency is the debited side's currency symbol
	FromCurrency string `gorm:"column:from_currency;not null;type:text"`
	// ToAddress is the credited participant's account address
	ToAddress string `gorm:"column:to_address;not null;type:text;index"`
	// ToCurrency is the credited side's currency symbol
	ToCurrency string `gorm:"column:to_currency;not null;type:text"`
	// Amount is the transferred value (stored as numeric, never float)
	Amount decimal.Decimal `gorm:"column:amount;not null;type:numeric(78,18)"`
	// Context classifies why the transaction was created
	Context domain.TxContext `gorm:"column:context;not null;type:text"`
	// State is the current lifecycle state
	State domain.TxState `gorm:"column:state;not null;type:text;index"`
	// TransmitID references the transmit batch that settled this transaction on-chain
	TransmitID *string `gorm:"column:transmit_id;type:uuid"`
	// RevertOf references the transaction this one reverts, if any
	RevertOf *string `gorm:"column:revert_of;type:uuid"`
	// CreatedAt is the timestamp when this transaction was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this transaction was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Transaction model
func (Transaction) TableName() string {
	return "transactions"
}

// Domain converts the row to its domain form
func (t *Transaction) Domain() *domain.Transaction {
	return &domain.Transaction{
		ID:         t.ID,
		From:       domain.Participant{AccountAddress: t.FromAddress, Currency: t.FromCurrency},
		To:         domain.Participant{AccountAddress: t.ToAddress, Currency: t.ToCurrency},
		Amount:     t.Amount,
		Context:    t.Context,
		State:      t.State,
		TransmitID: t.TransmitID,
		RevertOf:   t.RevertOf,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
