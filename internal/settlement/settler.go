package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/adapter"
	"github.com/communitypay/cc-ledger/internal/chaintx"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/ledger"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

// Config holds the settlement job configuration
type Config struct {
	// Interval between settlement sweeps
	Interval time.Duration
	// BatchSize bounds how many transactions one transmit carries
	BatchSize int
	// OperatorAddress is the custody account that signs settlement transfers
	OperatorAddress string
	// CustodyAddress is the on-chain account settled value is moved to
	CustodyAddress string
	// MaxSubmitRetries bounds backoff retries of one chain submission
	MaxSubmitRetries uint64
}

// Settler periodically folds completed off-chain transactions into transmit
// batches and carries each batch to the chain as one token transfer. A failed
// submission records nothing, so the same transactions are picked up again on
// the next sweep. Once a submission succeeds its transmit row is persisted
// immediately, before tracking and stamping; a sweep first finishes any
// transmit left half-done by a crash, so a batch that already reached the
// chain is never submitted twice.
type Settler struct {
	store    store.Store
	ledger   *ledger.Ledger
	tracker  *chaintx.Tracker
	gateway  gateway.ChainGateway
	registry *participant.Registry
	clock    adapter.Clock
	cfg      Config
}

// New creates a settler
func New(st store.Store, lg *ledger.Ledger, tracker *chaintx.Tracker, gw gateway.ChainGateway,
	registry *participant.Registry, clock adapter.Clock, cfg Config) *Settler {
	return &Settler{
		store:    st,
		ledger:   lg,
		tracker:  tracker,
		gateway:  gw,
		registry: registry,
		clock:    clock,
		cfg:      cfg,
	}
}

// Run sweeps every tracked currency on the configured interval until the
// context is canceled. Per-currency failures are logged and isolated.
func (s *Settler) Run(ctx context.Context) error {
	logger.InfoCtx(ctx, "Settlement loop started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(s.cfg.Interval):
		}

		for _, currency := range s.registry.Currencies() {
			if err := s.SettleCurrency(ctx, currency); err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("message", "Settlement sweep failed"),
					zap.String("currency", currency.Symbol))
			}
		}

		if _, err := s.tracker.SyncState(ctx, "", ""); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("message", "Chain state sync failed"))
		}
	}
}

// SettleCurrency runs one settlement pass for a single currency
func (s *Settler) SettleCurrency(ctx context.Context, currency domain.Currency) error {
	if err := s.recoverUnfinished(ctx); err != nil {
		return err
	}

	rows, err := s.store.ListSettleableTransactions(ctx, currency.Symbol, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list settleable transactions: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	total := decimal.Zero
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		total = total.Add(row.Amount)
		ids = append(ids, row.ID)
	}

	receipt, err := s.submit(ctx, currency, total)
	if err != nil {
		return fmt.Errorf("failed to submit settlement transfer: %w", err)
	}

	// The transmit row is the persisted intent: from here on the batch is
	// spoken for even if tracking or stamping fails, and the next sweep
	// finishes the job instead of submitting the same funds again.
	transmit := &schema.Transmit{
		ID:            uuid.New().String(),
		TxHash:        receipt.TxHash,
		OffchainTxIDs: ids,
	}
	if err := s.store.CreateTransmit(ctx, transmit); err != nil {
		return fmt.Errorf("failed to record transmit for %s: %w", receipt.TxHash, err)
	}

	if _, err := s.tracker.RecordSubmitted(ctx, receipt, domain.ChainTxTypeTransfer, map[string]any{
		"token":   currency.TokenAddress,
		"batched": len(ids),
	}); err != nil {
		return fmt.Errorf("failed to track settlement transaction: %w", err)
	}

	if _, err := s.ledger.MarkAsTransmitted(ctx, ids, transmit.ID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "Settlement batch transmitted",
		zap.String("transmit_id", transmit.ID),
		zap.String("currency", currency.Symbol),
		zap.Int("transactions", len(ids)),
		zap.String("total", total.String()),
		zap.String("tx_hash", receipt.TxHash))

	return nil
}

// recoverUnfinished finishes transmits whose chain transfer went out but whose
// transactions were never stamped. Record is idempotent on the hash, so a
// transmit that got as far as tracking is simply re-observed.
func (s *Settler) recoverUnfinished(ctx context.Context) error {
	transmits, err := s.store.ListUnfinishedTransmits(ctx)
	if err != nil {
		return fmt.Errorf("failed to list unfinished transmits: %w", err)
	}

	for _, transmit := range transmits {
		if _, err := s.tracker.Record(ctx, transmit.TxHash, domain.ChainTxTypeTransfer, map[string]any{
			"batched": len(transmit.OffchainTxIDs),
		}); err != nil {
			return fmt.Errorf("failed to track recovered transmit %s: %w", transmit.ID, err)
		}
		if _, err := s.ledger.MarkAsTransmitted(ctx, transmit.OffchainTxIDs, transmit.ID); err != nil {
			return err
		}

		logger.WarnCtx(ctx, "Recovered unfinished settlement batch",
			zap.String("transmit_id", transmit.ID),
			zap.String("tx_hash", transmit.TxHash),
			zap.Int("transactions", len(transmit.OffchainTxIDs)))
	}

	return nil
}

// submit pushes the batch total to the chain, retrying transient gateway
// failures with exponential backoff. Validation errors are not retried.
func (s *Settler) submit(ctx context.Context, currency domain.Currency, total decimal.Decimal) (*gateway.Receipt, error) {
	req := gateway.TransferRequest{
		Token:  currency,
		From:   s.cfg.OperatorAddress,
		To:     s.cfg.CustodyAddress,
		Amount: total,
	}

	var receipt *gateway.Receipt
	operation := func() error {
		r, err := s.gateway.SubmitTransfer(ctx, req)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidAmount) {
				return backoff.Permanent(err)
			}
			return err
		}
		receipt = r
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.cfg.MaxSubmitRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return receipt, nil
}
