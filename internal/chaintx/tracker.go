package chaintx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

// Config holds the confirmation depth thresholds
type Config struct {
	// BlocksToConfirm is the inclusion depth at which a transaction counts as CONFIRMED
	BlocksToConfirm uint64
	// BlocksToFinalize is the inclusion depth at which a transaction counts as FINALIZED
	BlocksToFinalize uint64
}

// Tracker follows chain-submitted transactions through their confirmation
// depth. Records are keyed by hash and inserted at most once; states only ever
// move forward.
type Tracker struct {
	store    store.Store
	gateway  gateway.ChainGateway
	notifier notify.Notifier
	cfg      Config
}

// New creates a tracker
func New(st store.Store, gw gateway.ChainGateway, notifier notify.Notifier, cfg Config) *Tracker {
	return &Tracker{store: st, gateway: gw, notifier: notifier, cfg: cfg}
}

// Record looks a transaction up on the chain and starts tracking it. A gateway
// failure leaves no partial record behind. Recording an already-tracked hash
// returns the existing record.
func (t *Tracker) Record(ctx context.Context, hash string, txType domain.ChainTxType, meta map[string]any) (*schema.BlockchainTransaction, error) {
	info, err := t.gateway.GetTransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction %s: %w", hash, err)
	}
	if info == nil {
		return nil, fmt.Errorf("%w: transaction %s unknown to the node", domain.ErrGateway, hash)
	}

	row := &schema.BlockchainTransaction{
		ID:          uuid.New().String(),
		Hash:        info.Hash,
		BlockHash:   info.BlockHash,
		BlockNumber: info.BlockNumber,
		FromAddress: info.From,
		ToAddress:   info.To,
		Nonce:       info.Nonce,
		Value:       info.Value,
		Gas:         info.Gas,
		GasPrice:    info.GasPrice,
		Type:        txType,
		State:       domain.ChainTxStateTransmitted,
	}
	return t.insert(ctx, row, meta)
}

// RecordSubmitted starts tracking a transaction straight from its submission
// receipt, without a node round-trip
func (t *Tracker) RecordSubmitted(ctx context.Context, receipt *gateway.Receipt, txType domain.ChainTxType, meta map[string]any) (*schema.BlockchainTransaction, error) {
	row := &schema.BlockchainTransaction{
		ID:          uuid.New().String(),
		Hash:        receipt.TxHash,
		FromAddress: receipt.From,
		ToAddress:   receipt.To,
		Nonce:       receipt.Nonce,
		Value:       receipt.Value,
		Gas:         receipt.Gas,
		GasPrice:    receipt.GasPrice,
		Type:        txType,
		State:       domain.ChainTxStateTransmitted,
	}
	return t.insert(ctx, row, meta)
}

func (t *Tracker) insert(ctx context.Context, row *schema.BlockchainTransaction, meta map[string]any) (*schema.BlockchainTransaction, error) {
	if meta != nil {
		data, err := json.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transaction meta: %w", err)
		}
		row.Meta = data
	}

	inserted, err := t.store.CreateBlockchainTransaction(ctx, row)
	if err != nil {
		return nil, fmt.Errorf("failed to record transaction %s: %w", row.Hash, err)
	}
	if !inserted {
		existing, err := t.store.GetBlockchainTransactionByHash(ctx, row.Hash)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing record for %s: %w", row.Hash, err)
		}
		return existing, nil
	}

	logger.InfoCtx(ctx, "Tracking chain transaction",
		zap.String("hash", row.Hash),
		zap.String("type", string(row.Type)))

	return row, nil
}

// SyncState advances every unfinalized record against the current chain head,
// optionally narrowed by participant address and transaction type. An explicit
// filter that matches nothing returns ErrNoMatch. A record whose hash the node
// no longer knows is reported and left alone. Per-record failures are logged
// and do not stop the sweep. The matched records are returned in their state
// after the sweep.
func (t *Tracker) SyncState(ctx context.Context, address string, txType domain.ChainTxType) ([]*domain.BlockchainTransaction, error) {
	head, err := t.gateway.GetBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain head: %w", err)
	}

	rows, err := t.store.ListBlockchainTransactions(ctx,
		[]domain.ChainTxState{domain.ChainTxStateTransmitted, domain.ChainTxStateConfirmed}, address, txType)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinalized transactions: %w", err)
	}
	if len(rows) == 0 && (address != "" || txType != "") {
		return nil, fmt.Errorf("%w: no unfinalized transactions for filter", domain.ErrNoMatch)
	}

	synced := make([]*domain.BlockchainTransaction, 0, len(rows))
	for _, row := range rows {
		if err := t.syncOne(ctx, row, head); err != nil {
			logger.ErrorCtx(ctx, err,
				zap.String("message", "Failed to sync chain transaction"),
				zap.String("hash", row.Hash))
		}
		synced = append(synced, rowDomain(row))
	}

	return synced, nil
}

func (t *Tracker) syncOne(ctx context.Context, row *schema.BlockchainTransaction, head uint64) error {
	info, err := t.gateway.GetTransactionByHash(ctx, row.Hash)
	if err != nil {
		return fmt.Errorf("failed to look up transaction %s: %w", row.Hash, err)
	}
	if info == nil {
		logger.WarnCtx(ctx, "Tracked transaction unknown to the node",
			zap.String("hash", row.Hash),
			zap.String("state", string(row.State)))
		t.notifier.TrackedTransactionMissing(ctx, rowDomain(row))
		return nil
	}
	if info.Pending || info.BlockNumber == 0 {
		return nil
	}

	// Refresh inclusion data; a transaction recorded from a submission receipt
	// has no block yet, and a reorg can move it.
	if row.BlockNumber != info.BlockNumber || row.BlockHash == nil {
		row.BlockNumber = info.BlockNumber
		row.BlockHash = info.BlockHash
		if err := t.store.UpdateBlockchainTransactionInclusion(ctx, row.ID, info.BlockHash, info.BlockNumber); err != nil {
			return err
		}
	}

	depth := head - info.BlockNumber + 1
	target := row.State
	switch {
	case depth >= t.cfg.BlocksToFinalize:
		target = domain.ChainTxStateFinalized
	case depth >= t.cfg.BlocksToConfirm:
		target = domain.ChainTxStateConfirmed
	}

	// Depth can only shrink on a reorg; the state never follows it back down.
	if !target.After(row.State) {
		return nil
	}

	ok, err := t.store.UpdateBlockchainTransactionState(ctx, row.ID, row.State, target)
	if err != nil {
		return fmt.Errorf("failed to transition %s to %s: %w", row.Hash, target, err)
	}
	if !ok {
		// Another instance advanced this record first.
		return nil
	}
	row.State = target

	t.notifier.ChainTransactionUpdated(ctx, rowDomain(row))

	logger.InfoCtx(ctx, "Chain transaction advanced",
		zap.String("hash", row.Hash),
		zap.String("state", string(target)),
		zap.Uint64("depth", depth))

	return nil
}

func rowDomain(row *schema.BlockchainTransaction) *domain.BlockchainTransaction {
	tx := &domain.BlockchainTransaction{
		ID:          row.ID,
		Hash:        row.Hash,
		BlockHash:   row.BlockHash,
		BlockNumber: row.BlockNumber,
		From:        row.FromAddress,
		To:          row.ToAddress,
		Nonce:       row.Nonce,
		Value:       row.Value,
		Gas:         row.Gas,
		GasPrice:    row.GasPrice,
		Type:        row.Type,
		State:       row.State,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if len(row.Meta) > 0 {
		_ = json.Unmarshal(row.Meta, &tx.Meta)
	}
	return tx
}
