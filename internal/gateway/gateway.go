package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/communitypay/cc-ledger/internal/domain"
)

// TransferRequest describes one on-chain token transfer to submit
type TransferRequest struct {
	Token  domain.Currency
	From   string
	To     string
	Amount decimal.Decimal
}

// Receipt is returned by SubmitTransfer once the transaction is accepted by the node
type Receipt struct {
	TxHash   string
	From     string
	To       string
	Nonce    uint64
	Value    decimal.Decimal
	Gas      uint64
	GasPrice decimal.Decimal
}

// ChainTxInfo describes an on-chain transaction as reported by the node
type ChainTxInfo struct {
	Hash        string
	BlockHash   *string
	BlockNumber uint64
	From        string
	To          string
	Nonce       uint64
	Value       decimal.Decimal
	Gas         uint64
	GasPrice    decimal.Decimal
	Pending     bool
}

// EventHandler is called for each observed Transfer event
type EventHandler func(event *domain.TransferEvent) error

// ChainGateway is the boundary to the blockchain node: submit a transfer,
// obtain a receipt, query transactions/blocks, and observe token Transfer
// events live or by block range.
//
//go:generate mockgen -source=gateway.go -destination=../mocks/gateway.go -package=mocks -mock_names=ChainGateway=MockChainGateway
type ChainGateway interface {
	// SubmitTransfer signs and submits a token transfer, returning its receipt
	SubmitTransfer(ctx context.Context, req TransferRequest) (*Receipt, error)

	// GetTransactionByHash looks up a transaction on the chain; nil if the node
	// does not know the hash
	GetTransactionByHash(ctx context.Context, hash string) (*ChainTxInfo, error)

	// GetBlockNumber returns the current chain head number
	GetBlockNumber(ctx context.Context) (uint64, error)

	// GetPastEvents fetches Transfer events of a token in [fromBlock, toBlock]
	GetPastEvents(ctx context.Context, token domain.Currency, fromBlock, toBlock uint64) ([]domain.TransferEvent, error)

	// SubscribeTransfers streams live Transfer events of a token to the handler.
	// Blocks until the context is canceled or the subscription fails.
	SubscribeTransfers(ctx context.Context, token domain.Currency, handler EventHandler) error

	// TokenBalance returns the current on-chain token balance of a holder,
	// denominated in currency units
	TokenBalance(ctx context.Context, token domain.Currency, holder string) (decimal.Decimal, error)

	// Close releases the underlying connection
	Close()
}
