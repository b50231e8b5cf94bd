package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/adapter"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/ledger"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

const (
	workerPoolSize  = 4
	workerQueueSize = 64

	defaultBackfillWindow = 5000
)

// Config holds the reconciliation loop configuration
type Config struct {
	// BackfillInterval is the period between backfill sweeps
	BackfillInterval time.Duration
	// BackfillWindow bounds how many blocks one GetPastEvents call spans
	BackfillWindow uint64
	// MaxResubscribeWait caps the exponential backoff between resubscriptions
	MaxResubscribeWait time.Duration
}

// Reconciler keeps the off-chain ledger consistent with what actually happens
// on the chain. It runs a live Transfer subscription per tracked currency and
// a periodic backfill over block ranges the subscription may have missed. Both
// paths funnel into one handler: the event is checkpointed unprocessed, its
// ledger effects are applied, then the row is marked processed. A failure
// between checkpoint and mark leaves an unprocessed row that the next backfill
// replays, so an event is never both deduplicated and unapplied.
type Reconciler struct {
	store    store.Store
	ledger   *ledger.Ledger
	gateway  gateway.ChainGateway
	resolver participant.Resolver
	registry *participant.Registry
	notifier notify.Notifier
	clock    adapter.Clock
	cfg      Config
}

// New creates a reconciler
func New(st store.Store, lg *ledger.Ledger, gw gateway.ChainGateway, resolver participant.Resolver,
	registry *participant.Registry, notifier notify.Notifier, clock adapter.Clock, cfg Config) *Reconciler {
	if cfg.BackfillWindow < 1 {
		cfg.BackfillWindow = defaultBackfillWindow
	}
	return &Reconciler{
		store:    st,
		ledger:   lg,
		gateway:  gw,
		resolver: resolver,
		registry: registry,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

// Run starts the live subscriptions and the backfill loop and blocks until the
// context is canceled. A failure on one currency never stops the others.
func (r *Reconciler) Run(ctx context.Context) error {
	for _, currency := range r.registry.Currencies() {
		go r.subscribeLoop(ctx, currency)
	}

	logger.InfoCtx(ctx, "Reconciler started",
		zap.Int("currencies", len(r.registry.Currencies())),
		zap.Duration("backfill_interval", r.cfg.BackfillInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(r.cfg.BackfillInterval):
			r.Backfill(ctx)
		}
	}
}

// subscribeLoop keeps one currency's live subscription alive, resubscribing
// with exponential backoff whenever it drops
func (r *Reconciler) subscribeLoop(ctx context.Context, currency domain.Currency) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = r.cfg.MaxResubscribeWait
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := r.gateway.SubscribeTransfers(ctx, currency, func(event *domain.TransferEvent) error {
			return r.HandleEvent(ctx, currency, event)
		})
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Transfer subscription dropped, resubscribing"),
			zap.String("currency", currency.Symbol))
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorCtx(ctx, err,
			zap.String("message", "Subscription loop gave up"),
			zap.String("currency", currency.Symbol))
	}
}

// Backfill sweeps every currency from its last checkpoint to the chain head,
// fanning currencies out over a worker pool
func (r *Reconciler) Backfill(ctx context.Context) {
	head, err := r.gateway.GetBlockNumber(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to get chain head, skipping backfill"))
		return
	}

	pool := pond.NewPool(workerPoolSize, pond.WithQueueSize(workerQueueSize), pond.WithContext(ctx))
	for _, currency := range r.registry.Currencies() {
		pool.Submit(func() {
			if err := r.BackfillCurrency(ctx, currency, head); err != nil {
				logger.ErrorCtx(ctx, err,
					zap.String("message", "Backfill failed"),
					zap.String("currency", currency.Symbol))
			}
		})
	}
	pool.StopAndWait()
}

// BackfillCurrency replays one currency's Transfer events from its checkpoint
// up to the given head, in bounded block windows. Checkpointed events whose
// effects never landed are replayed first.
func (r *Reconciler) BackfillCurrency(ctx context.Context, currency domain.Currency, head uint64) error {
	if err := r.replayUnprocessed(ctx, currency); err != nil {
		return err
	}

	last, err := r.store.GetLastEventBlock(ctx, currency.TokenAddress)
	if err != nil {
		return fmt.Errorf("failed to get checkpoint for %s: %w", currency.Symbol, err)
	}

	from := currency.CreationBlock
	if last >= from {
		// The checkpointed block may hold more events after the checkpointed
		// one; replaying it is safe because inserts are deduplicated.
		from = last
	}

	for from <= head {
		to := from + r.cfg.BackfillWindow - 1
		if to > head {
			to = head
		}

		events, err := r.gateway.GetPastEvents(ctx, currency, from, to)
		if err != nil {
			return fmt.Errorf("failed to fetch events [%d, %d] for %s: %w", from, to, currency.Symbol, err)
		}
		for i := range events {
			if err := r.HandleEvent(ctx, currency, &events[i]); err != nil {
				return err
			}
		}

		from = to + 1
	}

	return nil
}

// HandleEvent processes one observed Transfer. The checkpoint insert comes
// first; a duplicate (tx_hash, log_index) that was fully processed is a no-op,
// while a duplicate whose effects never landed runs through the handler again.
func (r *Reconciler) HandleEvent(ctx context.Context, currency domain.Currency, event *domain.TransferEvent) error {
	inserted, err := r.checkpoint(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		row, err := r.store.GetBlockchainEvent(ctx, event.TxHash, event.LogIndex)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint %s:%d: %w", event.TxHash, event.LogIndex, err)
		}
		if row != nil && row.Processed {
			return nil
		}
	}

	return r.process(ctx, currency, event)
}

// replayUnprocessed re-runs checkpointed events that were never applied, in
// chain order
func (r *Reconciler) replayUnprocessed(ctx context.Context, currency domain.Currency) error {
	rows, err := r.store.ListUnprocessedEvents(ctx, currency.TokenAddress)
	if err != nil {
		return fmt.Errorf("failed to list unprocessed events for %s: %w", currency.Symbol, err)
	}

	for _, row := range rows {
		event, err := eventFromRow(row)
		if err != nil {
			return err
		}
		logger.InfoCtx(ctx, "Replaying unprocessed event",
			zap.String("tx_hash", event.TxHash),
			zap.Uint("log_index", event.LogIndex))
		if err := r.process(ctx, currency, event); err != nil {
			return err
		}
	}
	return nil
}

// process applies one checkpointed event's ledger effects and marks the row
// processed. The mark comes right after the booking so a replay can never book
// the same deposit twice; the mirror refresh after it is an idempotent
// overwrite and safe to lose until the next event.
func (r *Reconciler) process(ctx context.Context, currency domain.Currency, event *domain.TransferEvent) error {
	fromKnown, err := r.resolver.ResolveParticipant(ctx, event.From)
	if err != nil {
		return fmt.Errorf("failed to resolve sender %s: %w", event.From, err)
	}
	toKnown, err := r.resolver.ResolveParticipant(ctx, event.To)
	if err != nil {
		return fmt.Errorf("failed to resolve receiver %s: %w", event.To, err)
	}

	switch {
	case fromKnown != nil && toKnown != nil:
		// Movement between managed wallets is the settlement engine's own
		// doing; nothing to book, just refresh the mirrored balances.
		logger.DebugCtx(ctx, "Observed internal transfer",
			zap.String("tx_hash", event.TxHash),
			zap.String("currency", currency.Symbol))

	case toKnown != nil:
		// Value arriving from outside is a deposit.
		if _, err := r.ledger.Deposit(ctx, event.From,
			domain.Participant{AccountAddress: event.To, Currency: currency.Symbol}, event.Value); err != nil {
			return fmt.Errorf("failed to book deposit %s: %w", event.TxHash, err)
		}
		logger.InfoCtx(ctx, "Deposit reconciled",
			zap.String("tx_hash", event.TxHash),
			zap.String("to", event.To),
			zap.String("amount", event.Value.String()))

	default:
		// A transfer whose receiver we do not manage should not involve
		// custody funds; flag it for the operator.
		logger.WarnCtx(ctx, "Transfer to unmanaged address",
			zap.String("tx_hash", event.TxHash),
			zap.String("from", event.From),
			zap.String("to", event.To),
			zap.String("amount", event.Value.String()))
		r.notifier.UnmanagedTransfer(ctx, event)
	}

	if err := r.store.MarkBlockchainEventProcessed(ctx, event.TxHash, event.LogIndex); err != nil {
		return fmt.Errorf("failed to mark event %s:%d processed: %w", event.TxHash, event.LogIndex, err)
	}

	if fromKnown != nil {
		if err := r.refreshChainBalance(ctx, currency, event.From, event.BlockNumber); err != nil {
			return err
		}
	}
	if toKnown != nil {
		if err := r.refreshChainBalance(ctx, currency, event.To, event.BlockNumber); err != nil {
			return err
		}
	}

	return nil
}

// checkpoint inserts the event into the append-only log; inserted=false means
// it was seen before
func (r *Reconciler) checkpoint(ctx context.Context, event *domain.TransferEvent) (bool, error) {
	returnValues, err := json.Marshal(map[string]string{
		"from":  event.From,
		"to":    event.To,
		"value": event.Value.String(),
	})
	if err != nil {
		return false, fmt.Errorf("failed to marshal event values: %w", err)
	}

	var raw []byte
	if len(event.Raw) > 0 {
		raw, err = json.Marshal(map[string]any{"data": event.Raw})
		if err != nil {
			return false, fmt.Errorf("failed to marshal raw log: %w", err)
		}
	}

	inserted, err := r.store.InsertBlockchainEvent(ctx, &schema.BlockchainEvent{
		Address:      event.TokenAddress,
		BlockHash:    event.BlockHash,
		BlockNumber:  event.BlockNumber,
		TxHash:       event.TxHash,
		TxIndex:      event.TxIndex,
		LogIndex:     event.LogIndex,
		Event:        "Transfer",
		ReturnValues: returnValues,
		Raw:          raw,
	})
	if err != nil {
		return false, fmt.Errorf("failed to checkpoint event %s:%d: %w", event.TxHash, event.LogIndex, err)
	}
	return inserted, nil
}

// eventFromRow rebuilds a TransferEvent from its checkpointed row
func eventFromRow(row *schema.BlockchainEvent) (*domain.TransferEvent, error) {
	var values struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(row.ReturnValues, &values); err != nil {
		return nil, fmt.Errorf("failed to decode event %s:%d: %w", row.TxHash, row.LogIndex, err)
	}
	value, err := decimal.NewFromString(values.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event %s:%d value: %w", row.TxHash, row.LogIndex, err)
	}

	return &domain.TransferEvent{
		TokenAddress: row.Address,
		From:         values.From,
		To:           values.To,
		Value:        value,
		TxHash:       row.TxHash,
		TxIndex:      row.TxIndex,
		LogIndex:     row.LogIndex,
		BlockHash:    row.BlockHash,
		BlockNumber:  row.BlockNumber,
	}, nil
}

// refreshChainBalance overwrites the mirrored on-chain amount of a managed
// wallet with the node's current view
func (r *Reconciler) refreshChainBalance(ctx context.Context, currency domain.Currency, address string, atBlock uint64) error {
	amount, err := r.gateway.TokenBalance(ctx, currency, address)
	if err != nil {
		return fmt.Errorf("failed to fetch token balance of %s: %w", address, err)
	}
	if err := r.store.SetBlockchainAmount(ctx, address, currency.Symbol, amount, atBlock); err != nil {
		return fmt.Errorf("failed to store mirrored balance of %s: %w", address, err)
	}
	return nil
}
