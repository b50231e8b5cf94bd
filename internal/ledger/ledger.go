package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

// TransferRequest describes one off-chain value transfer
type TransferRequest struct {
	From    domain.Participant
	To      domain.Participant
	Amount  decimal.Decimal
	Context domain.TxContext
	// RevertOf links the inverse transaction created by Revert
	RevertOf *string
}

// Ledger runs the off-chain transaction lifecycle. All balance effects go
// through the store's conditional-update protocol; the ledger itself holds no
// locks and keeps no in-memory balance state, so any number of instances can
// run concurrently against the same database.
type Ledger struct {
	store    store.Store
	resolver participant.Resolver
	notifier notify.Notifier
}

// New creates a ledger over the given store
func New(st store.Store, resolver participant.Resolver, notifier notify.Notifier) *Ledger {
	return &Ledger{store: st, resolver: resolver, notifier: notifier}
}

// Transfer moves value between two managed participants. The transaction ends
// DONE on success or CANCELED with ErrInsufficientFunds when the debited
// balance cannot cover the amount. In both cases the created transaction is
// returned.
func (l *Ledger) Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error) {
	if err := l.validate(ctx, req); err != nil {
		return nil, err
	}

	txContext := req.Context
	if txContext == "" {
		txContext = domain.TxContextTransfer
	}

	row := &schema.Transaction{
		ID:           uuid.New().String(),
		FromAddress:  req.From.AccountAddress,
		FromCurrency: req.From.Currency,
		ToAddress:    req.To.AccountAddress,
		ToCurrency:   req.To.Currency,
		Amount:       req.Amount,
		Context:      txContext,
		State:        domain.TxStateNew,
		RevertOf:     req.RevertOf,
	}
	if err := l.store.CreateTransaction(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	// Both reservations must be in place before any amount moves, so that a
	// concurrent transfer touching either balance observes the pending id.
	if err := l.store.ReserveBalance(ctx, req.From.AccountAddress, req.From.Currency, row.ID); err != nil {
		return nil, fmt.Errorf("failed to reserve sender balance: %w", err)
	}
	if err := l.store.ReserveBalance(ctx, req.To.AccountAddress, req.To.Currency, row.ID); err != nil {
		return nil, fmt.Errorf("failed to reserve receiver balance: %w", err)
	}

	if err := l.transition(ctx, row, domain.TxStateNew, domain.TxStatePending); err != nil {
		return nil, err
	}

	debited, err := l.store.SettleBalance(ctx, req.From.AccountAddress, req.From.Currency, row.ID, req.Amount.Neg())
	if err != nil {
		return nil, fmt.Errorf("failed to settle sender balance: %w", err)
	}
	if !debited {
		return l.cancel(ctx, row, req)
	}

	credited, err := l.store.SettleBalance(ctx, req.To.AccountAddress, req.To.Currency, row.ID, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("failed to settle receiver balance: %w", err)
	}
	if !credited {
		// The credit side has no funds guard; a miss means the reservation is
		// gone, which only a duplicate settlement of the same id can cause.
		return nil, fmt.Errorf("%w: credit reservation missing for transaction %s", domain.ErrConflict, row.ID)
	}

	if err := l.transition(ctx, row, domain.TxStatePending, domain.TxStateDone); err != nil {
		return nil, err
	}

	tx := row.Domain()
	l.notifier.TransactionUpdated(ctx, tx)

	logger.InfoCtx(ctx, "Transfer completed",
		zap.String("tx_id", row.ID),
		zap.String("from", req.From.AccountAddress),
		zap.String("to", req.To.AccountAddress),
		zap.String("amount", req.Amount.String()))

	return tx, nil
}

// cancel unwinds a transfer whose debit did not go through
func (l *Ledger) cancel(ctx context.Context, row *schema.Transaction, req TransferRequest) (*domain.Transaction, error) {
	if err := l.store.ReleaseBalance(ctx, req.From.AccountAddress, req.From.Currency, row.ID); err != nil {
		return nil, fmt.Errorf("failed to release sender balance: %w", err)
	}
	if err := l.store.ReleaseBalance(ctx, req.To.AccountAddress, req.To.Currency, row.ID); err != nil {
		return nil, fmt.Errorf("failed to release receiver balance: %w", err)
	}
	if err := l.transition(ctx, row, domain.TxStatePending, domain.TxStateCanceled); err != nil {
		return nil, err
	}

	tx := row.Domain()
	l.notifier.TransactionUpdated(ctx, tx)

	logger.WarnCtx(ctx, "Transfer canceled, insufficient funds",
		zap.String("tx_id", row.ID),
		zap.String("from", req.From.AccountAddress),
		zap.String("amount", req.Amount.String()))

	return tx, fmt.Errorf("%w: %s %s from %s", domain.ErrInsufficientFunds, req.Amount, req.From.Currency, req.From.AccountAddress)
}

// Revert reverses a completed transfer by running the inverse transfer. The
// original transaction is left untouched; the inverse references it through
// RevertOf. Reverting can itself end CANCELED when the original receiver has
// already spent the funds.
func (l *Ledger) Revert(ctx context.Context, id string) (*domain.Transaction, error) {
	original, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	if original.State != domain.TxStateDone && original.State != domain.TxStateTransmitted {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrNotRevertible, id, original.State)
	}

	return l.Transfer(ctx, TransferRequest{
		From:     domain.Participant{AccountAddress: original.ToAddress, Currency: original.ToCurrency},
		To:       domain.Participant{AccountAddress: original.FromAddress, Currency: original.FromCurrency},
		Amount:   original.Amount,
		Context:  original.Context,
		RevertOf: &original.ID,
	})
}

// Deposit credits a managed participant for value that already moved on-chain.
// The transaction is born TRANSMITTED; only the off-chain amount is touched
// here, the mirrored on-chain amount is refreshed separately by reconciliation.
func (l *Ledger) Deposit(ctx context.Context, from string, to domain.Participant, amount decimal.Decimal) (*domain.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	if err := l.requireManaged(ctx, to); err != nil {
		return nil, err
	}

	row := &schema.Transaction{
		ID:           uuid.New().String(),
		FromAddress:  from,
		FromCurrency: to.Currency,
		ToAddress:    to.AccountAddress,
		ToCurrency:   to.Currency,
		Amount:       amount,
		Context:      domain.TxContextDeposit,
		State:        domain.TxStateTransmitted,
	}
	if err := l.store.CreateTransaction(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to create deposit transaction: %w", err)
	}

	if err := l.store.ReserveBalance(ctx, to.AccountAddress, to.Currency, row.ID); err != nil {
		return nil, fmt.Errorf("failed to reserve deposit balance: %w", err)
	}
	credited, err := l.store.SettleBalance(ctx, to.AccountAddress, to.Currency, row.ID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to settle deposit balance: %w", err)
	}
	if !credited {
		return nil, fmt.Errorf("%w: deposit reservation missing for transaction %s", domain.ErrConflict, row.ID)
	}

	tx := row.Domain()
	l.notifier.TransactionUpdated(ctx, tx)

	logger.InfoCtx(ctx, "Deposit credited",
		zap.String("tx_id", row.ID),
		zap.String("to", to.AccountAddress),
		zap.String("currency", to.Currency),
		zap.String("amount", amount.String()))

	return tx, nil
}

// MarkAsTransmitted stamps a batch of DONE transactions with the transmit that
// carried them on-chain. Rows no longer in DONE are skipped; the count of rows
// actually stamped is returned.
func (l *Ledger) MarkAsTransmitted(ctx context.Context, ids []string, transmitID string) (int64, error) {
	n, err := l.store.MarkTransactionsTransmitted(ctx, ids, transmitID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark transactions transmitted: %w", err)
	}
	if n != int64(len(ids)) {
		logger.WarnCtx(ctx, "Some batched transactions were not in DONE",
			zap.String("transmit_id", transmitID),
			zap.Int("batch", len(ids)),
			zap.Int64("stamped", n))
	}
	return n, nil
}

// Get retrieves one transaction by id
func (l *Ledger) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row, err := l.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrTransactionNotFound, id)
	}
	return row.Domain(), nil
}

// List retrieves transactions matching the filter
func (l *Ledger) List(ctx context.Context, filter domain.TxFilter) ([]*domain.Transaction, error) {
	rows, err := l.store.GetTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	txs := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, row.Domain())
	}
	return txs, nil
}

// GetBalance retrieves the bookkeeping record for one wallet and currency.
// An absent row reads as a zero balance.
func (l *Ledger) GetBalance(ctx context.Context, address, currency string) (*domain.Balance, error) {
	if err := l.requireManaged(ctx, domain.Participant{AccountAddress: address, Currency: currency}); err != nil {
		return nil, err
	}

	row, err := l.store.GetBalance(ctx, address, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	if row == nil {
		return &domain.Balance{
			WalletAddress:    address,
			Currency:         currency,
			BlockchainAmount: decimal.Zero,
			OffchainAmount:   decimal.Zero,
			PendingTxs:       []string{},
		}, nil
	}
	return &domain.Balance{
		WalletAddress:     row.WalletAddress,
		Currency:          row.Currency,
		BlockchainAmount:  row.BlockchainAmount,
		OffchainAmount:    row.OffchainAmount,
		BlockOfLastUpdate: row.BlockOfLastUpdate,
		PendingTxs:        row.PendingTxs,
	}, nil
}

// RegisterWallet registers a managed wallet address
func (l *Ledger) RegisterWallet(ctx context.Context, wallet domain.Wallet) (*domain.Wallet, error) {
	if wallet.ID == "" {
		wallet.ID = uuid.New().String()
	}
	row := &schema.Wallet{
		ID:          wallet.ID,
		Address:     wallet.Address,
		Type:        wallet.Type,
		Index:       wallet.Index,
		CommunityID: wallet.CommunityID,
	}
	if err := l.store.CreateWallet(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to register wallet %s: %w", wallet.Address, err)
	}
	return &wallet, nil
}

func (l *Ledger) validate(ctx context.Context, req TransferRequest) error {
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, req.Amount)
	}
	if req.From.AccountAddress == req.To.AccountAddress && req.From.Currency == req.To.Currency {
		return fmt.Errorf("%w: sender and receiver are the same participant", domain.ErrInvalidAmount)
	}
	if err := l.requireManaged(ctx, req.From); err != nil {
		return err
	}
	return l.requireManaged(ctx, req.To)
}

func (l *Ledger) requireManaged(ctx context.Context, p domain.Participant) error {
	currency, err := l.resolver.ResolveCurrency(ctx, p.Currency)
	if err != nil {
		return fmt.Errorf("failed to resolve currency %s: %w", p.Currency, err)
	}
	if currency == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownCurrency, p.Currency)
	}

	resolution, err := l.resolver.ResolveParticipant(ctx, p.AccountAddress)
	if err != nil {
		return fmt.Errorf("failed to resolve participant %s: %w", p.AccountAddress, err)
	}
	if resolution == nil {
		return fmt.Errorf("%w: %s", domain.ErrUnknownParticipant, p.AccountAddress)
	}
	return nil
}

func (l *Ledger) transition(ctx context.Context, row *schema.Transaction, from, to domain.TxState) error {
	ok, err := l.store.UpdateTransactionState(ctx, row.ID, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition transaction %s to %s: %w", row.ID, to, err)
	}
	if !ok {
		return fmt.Errorf("%w: transaction %s not in state %s", domain.ErrConflict, row.ID, from)
	}
	row.State = to
	return nil
}
