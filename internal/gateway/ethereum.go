package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/adapter"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/logger"
)

// ERC20 Transfer(address indexed from, address indexed to, uint256 value)
var transferEventSignature = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ERC20 function selectors
var (
	transferSelector  = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

const transferGasLimit = 90000

// Config holds the configuration for the Ethereum gateway
type Config struct {
	WebSocketURL string // wss endpoint used for subscriptions and queries
	// OperatorKey is the hex-encoded private key of the custody operator
	// account that signs outgoing transfers. Optional for read-only use.
	OperatorKey string
}

type ethGateway struct {
	client   adapter.EthClient
	key      *ecdsa.PrivateKey
	operator common.Address
	chainID  *big.Int
}

// NewEthereum connects the gateway to an Ethereum node
func NewEthereum(ctx context.Context, cfg Config, dialer adapter.EthClientDialer) (ChainGateway, error) {
	client, err := dialer.Dial(ctx, cfg.WebSocketURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ethereum node: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	g := &ethGateway{
		client:  client,
		chainID: chainID,
	}

	if cfg.OperatorKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKey, "0x"))
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to parse operator key: %w", err)
		}
		g.key = key
		g.operator = crypto.PubkeyToAddress(key.PublicKey)
	}

	return g, nil
}

func (g *ethGateway) SubmitTransfer(ctx context.Context, req TransferRequest) (*Receipt, error) {
	if g.key == nil {
		return nil, fmt.Errorf("%w: gateway has no operator key", domain.ErrGateway)
	}

	from := common.HexToAddress(req.From)
	if from != g.operator {
		return nil, fmt.Errorf("%w: sender %s is not the operator account", domain.ErrGateway, req.From)
	}

	raw := req.Amount.Shift(int32(req.Token.Decimals))
	if !raw.IsInteger() || raw.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s does not fit token precision", domain.ErrInvalidAmount, req.Amount)
	}

	nonce, err := g.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	data := transferCallData(common.HexToAddress(req.To), raw.BigInt())
	token := common.HexToAddress(req.Token.TokenAddress)

	tx := types.NewTransaction(nonce, token, big.NewInt(0), transferGasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(g.chainID), g.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("%w: failed to send transaction: %s", domain.ErrGateway, err)
	}

	logger.InfoCtx(ctx, "Submitted token transfer",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("token", req.Token.Symbol),
		zap.String("to", req.To),
		zap.String("amount", req.Amount.String()))

	return &Receipt{
		TxHash:   signed.Hash().Hex(),
		From:     req.From,
		To:       req.To,
		Nonce:    nonce,
		Value:    req.Amount,
		Gas:      transferGasLimit,
		GasPrice: decimal.NewFromBigInt(gasPrice, 0),
	}, nil
}

func (g *ethGateway) GetTransactionByHash(ctx context.Context, hash string) (*ChainTxInfo, error) {
	tx, pending, err := g.client.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction %s: %w", hash, err)
	}

	info := &ChainTxInfo{
		Hash:     tx.Hash().Hex(),
		Nonce:    tx.Nonce(),
		Value:    decimal.NewFromBigInt(tx.Value(), 0),
		Gas:      tx.Gas(),
		GasPrice: decimal.NewFromBigInt(tx.GasPrice(), 0),
		Pending:  pending,
	}
	if to := tx.To(); to != nil {
		info.To = to.Hex()
	}
	if sender, err := types.Sender(types.LatestSignerForChainID(g.chainID), tx); err == nil {
		info.From = sender.Hex()
	}

	if !pending {
		receipt, err := g.client.TransactionReceipt(ctx, common.HexToHash(hash))
		if err != nil {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash, err)
		}
		blockHash := receipt.BlockHash.Hex()
		info.BlockHash = &blockHash
		info.BlockNumber = receipt.BlockNumber.Uint64()
	}

	return info, nil
}

func (g *ethGateway) GetBlockNumber(ctx context.Context) (uint64, error) {
	header, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return header.Number.Uint64(), nil
}

func (g *ethGateway) GetPastEvents(ctx context.Context, token domain.Currency, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{common.HexToAddress(token.TokenAddress)},
		Topics:    [][]common.Hash{{transferEventSignature}},
	}

	logs, err := g.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs for %s: %w", token.Symbol, err)
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, vLog := range logs {
		event, err := parseTransferLog(token, vLog)
		if err != nil {
			logger.ErrorCtx(ctx, err,
				zap.String("message", "Skipping unparsable log"),
				zap.String("tx_hash", vLog.TxHash.Hex()),
				zap.Uint("log_index", vLog.Index))
			continue
		}
		events = append(events, *event)
	}

	return events, nil
}

func (g *ethGateway) SubscribeTransfers(ctx context.Context, token domain.Currency, handler EventHandler) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{common.HexToAddress(token.TokenAddress)},
		Topics:    [][]common.Hash{{transferEventSignature}},
	}

	logs := make(chan types.Log)
	sub, err := g.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrSubscriptionFailed, err)
	}
	defer func() {
		logger.InfoCtx(ctx, "Unsubscribing from transfer events", zap.String("token", token.Symbol))
		sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("%w: %s", domain.ErrSubscriptionFailed, err)
		case vLog := <-logs:
			event, err := parseTransferLog(token, vLog)
			if err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("message", "Error parsing log"),
					zap.String("tx_hash", vLog.TxHash.Hex()))
				continue
			}

			if err := handler(event); err != nil {
				logger.ErrorCtx(ctx, err, zap.String("message", "Error handling event"))
			}
		}
	}
}

func (g *ethGateway) TokenBalance(ctx context.Context, token domain.Currency, holder string) (decimal.Decimal, error) {
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)

	contract := common.HexToAddress(token.TokenAddress)
	result, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to call balanceOf on %s: %w", token.Symbol, err)
	}
	if len(result) < 32 {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf response length %d", len(result))
	}

	raw := new(big.Int).SetBytes(result[:32])
	return decimal.NewFromBigInt(raw, -int32(token.Decimals)), nil
}

func (g *ethGateway) Close() {
	g.client.Close()
}

// parseTransferLog decodes an ERC20 Transfer log into a normalized event.
// The value is converted to currency units using the token's precision.
func parseTransferLog(token domain.Currency, vLog types.Log) (*domain.TransferEvent, error) {
	if len(vLog.Topics) != 3 || vLog.Topics[0] != transferEventSignature {
		return nil, fmt.Errorf("log %s:%d is not an ERC20 transfer", vLog.TxHash.Hex(), vLog.Index)
	}
	if len(vLog.Data) < 32 {
		return nil, fmt.Errorf("log %s:%d has truncated data", vLog.TxHash.Hex(), vLog.Index)
	}

	value := new(big.Int).SetBytes(vLog.Data[:32])

	return &domain.TransferEvent{
		TokenAddress: vLog.Address.Hex(),
		From:         common.HexToAddress(vLog.Topics[1].Hex()).Hex(),
		To:           common.HexToAddress(vLog.Topics[2].Hex()).Hex(),
		Value:        decimal.NewFromBigInt(value, -int32(token.Decimals)),
		TxHash:       vLog.TxHash.Hex(),
		TxIndex:      vLog.TxIndex,
		LogIndex:     vLog.Index,
		BlockHash:    vLog.BlockHash.Hex(),
		BlockNumber:  vLog.BlockNumber,
		Raw:          vLog.Data,
	}, nil
}

func transferCallData(to common.Address, amount *big.Int) []byte {
	data := make([]byte, 0, 68)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(to.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	return data
}
