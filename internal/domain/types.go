package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxState represents the lifecycle state of an off-chain transaction
type TxState string

const (
	// TxStateNew is the state of a freshly created transaction, before any balance is reserved
	TxStateNew TxState = "NEW"
	// TxStatePending means both participants' balances carry a reservation for this transaction
	TxStatePending TxState = "PENDING"
	// TxStateDone means the value moved off-chain; terminal except for transmit stamping
	TxStateDone TxState = "DONE"
	// TxStateCanceled means the transfer was rejected (insufficient funds); terminal
	TxStateCanceled TxState = "CANCELED"
	// TxStateTransmitted means the transaction was carried to the chain by a transmit batch
	TxStateTransmitted TxState = "TRANSMITTED"
)

// Terminal reports whether a transaction state accepts no further balance mutation
func (s TxState) Terminal() bool {
	return s == TxStateDone || s == TxStateCanceled || s == TxStateTransmitted
}

// TxContext classifies why a transaction was created
type TxContext string

const (
	TxContextTransfer TxContext = "transfer"
	TxContextChange   TxContext = "change"
	TxContextDeposit  TxContext = "deposit"
	TxContextOther    TxContext = "other"
)

// Participant identifies one side of an off-chain transaction
type Participant struct {
	AccountAddress string `json:"account_address"`
	Currency       string `json:"currency"`
}

// Transaction is the off-chain ledger entry. Amounts are arbitrary-precision
// decimals; the persistence layer stores them as numeric strings, never floats.
type Transaction struct {
	ID         string          `json:"id"`
	From       Participant     `json:"from"`
	To         Participant     `json:"to"`
	Amount     decimal.Decimal `json:"amount"`
	Context    TxContext       `json:"context"`
	State      TxState         `json:"state"`
	TransmitID *string         `json:"transmit_id,omitempty"`
	RevertOf   *string         `json:"revert_of,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ChainTxState represents the confirmation state of an on-chain transaction.
// States are monotonic: TRANSMITTED -> CONFIRMED -> FINALIZED, never back.
type ChainTxState string

const (
	ChainTxStateTransmitted ChainTxState = "TRANSMITTED"
	ChainTxStateConfirmed   ChainTxState = "CONFIRMED"
	ChainTxStateFinalized   ChainTxState = "FINALIZED"
)

// rank orders chain transaction states for the monotonicity guard
func (s ChainTxState) rank() int {
	switch s {
	case ChainTxStateTransmitted:
		return 0
	case ChainTxStateConfirmed:
		return 1
	case ChainTxStateFinalized:
		return 2
	}
	return -1
}

// After reports whether s is a strictly later confirmation state than other
func (s ChainTxState) After(other ChainTxState) bool {
	return s.rank() > other.rank()
}

// ChainTxType classifies the purpose of an on-chain transaction
type ChainTxType string

const (
	ChainTxTypeTransfer ChainTxType = "TRANSFER"
	ChainTxTypeChange   ChainTxType = "CHANGE"
)

// BlockchainTransaction tracks a chain-submitted transaction and its confirmation depth
type BlockchainTransaction struct {
	ID          string          `json:"id"`
	Hash        string          `json:"hash"`
	BlockHash   *string         `json:"block_hash,omitempty"`
	BlockNumber uint64          `json:"block_number"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Nonce       uint64          `json:"nonce"`
	Value       decimal.Decimal `json:"value"`
	Gas         uint64          `json:"gas"`
	GasPrice    decimal.Decimal `json:"gas_price"`
	Type        ChainTxType     `json:"type"`
	Meta        map[string]any  `json:"meta,omitempty"`
	State       ChainTxState    `json:"state"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Transmit links a batch of settled off-chain transactions to the on-chain
// transaction(s) that carried them. Append-only.
type Transmit struct {
	ID                     string    `json:"id"`
	OffchainTransactions   []string  `json:"offchain_transactions"`
	BlockchainTransactions []string  `json:"blockchain_transactions"`
	CreatedAt              time.Time `json:"created_at"`
}

// TransferEvent is a normalized on-chain token Transfer observation.
// (TxHash, LogIndex) is the deduplication key for the event log.
type TransferEvent struct {
	TokenAddress string          `json:"token_address"`
	From         string          `json:"from"`
	To           string          `json:"to"`
	Value        decimal.Decimal `json:"value"`
	TxHash       string          `json:"tx_hash"`
	TxIndex      uint            `json:"tx_index"`
	LogIndex     uint            `json:"log_index"`
	BlockHash    string          `json:"block_hash"`
	BlockNumber  uint64          `json:"block_number"`
	Raw          []byte          `json:"raw,omitempty"`
}

// Currency describes a tracked token contract
type Currency struct {
	Symbol        string `json:"symbol"`
	TokenAddress  string `json:"token_address"`
	CreationBlock uint64 `json:"creation_block"`
	Decimals      int    `json:"decimals"`
}

// Wallet is an off-chain account bound to one on-chain address
type Wallet struct {
	ID          string `json:"id"`
	Address     string `json:"address"`
	Type        string `json:"type"`
	Index       int    `json:"index"`
	CommunityID string `json:"community_id"`
}

// Balance is the per-wallet, per-currency bookkeeping record
type Balance struct {
	WalletAddress     string          `json:"wallet_address"`
	Currency          string          `json:"currency"`
	BlockchainAmount  decimal.Decimal `json:"blockchain_amount"`
	OffchainAmount    decimal.Decimal `json:"offchain_amount"`
	BlockOfLastUpdate uint64          `json:"block_of_last_update"`
	PendingTxs        []string        `json:"pending_txs"`
}

// TxFilter narrows GetTransactions queries; fields combine with AND
type TxFilter struct {
	// Address matches either side of the transaction
	Address     string
	FromAddress string
	ToAddress   string
	Context     TxContext
	State       TxState
	// Currency matches either side's currency
	Currency string
	Limit    int
}
