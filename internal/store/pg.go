package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Migrate creates or updates the ledger tables
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Wallet{},
		&schema.Balance{},
		&schema.Transaction{},
		&schema.BlockchainTransaction{},
		&schema.Transmit{},
		&schema.BlockchainEvent{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// CreateWallet registers a managed wallet
func (s *pgStore) CreateWallet(ctx context.Context, wallet *schema.Wallet) error {
	if err := s.db.WithContext(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

// GetWalletByAddress retrieves a wallet by its on-chain address
func (s *pgStore) GetWalletByAddress(ctx context.Context, address string) (*schema.Wallet, error) {
	var wallet schema.Wallet
	err := s.db.WithContext(ctx).Where("address = ?", address).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// ReserveBalance ensures a balance row exists and pushes txID into its pending set.
// Both steps are single atomic statements: an ON CONFLICT DO NOTHING upsert and a
// push-if-absent conditional update. No read-then-write.
func (s *pgStore) ReserveBalance(ctx context.Context, walletAddress, currency, txID string) error {
	balance := schema.Balance{
		WalletAddress:    walletAddress,
		Currency:         currency,
		BlockchainAmount: decimal.Zero,
		OffchainAmount:   decimal.Zero,
		PendingTxs:       pq.StringArray{},
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "wallet_address"}, {Name: "currency"}},
		DoNothing: true,
	}).Create(&balance).Error
	if err != nil {
		return fmt.Errorf("failed to ensure balance row: %w", err)
	}

	err = s.db.WithContext(ctx).Model(&schema.Balance{}).
		Where("wallet_address = ? AND currency = ? AND NOT (? = ANY(pending_txs))", walletAddress, currency, txID).
		Updates(map[string]any{
			"pending_txs": gorm.Expr("array_append(pending_txs, ?)", txID),
			"updated_at":  gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reserve balance: %w", err)
	}
	// Zero rows affected means the reservation was already present; that is fine.
	return nil
}

// SettleBalance applies a signed amount and clears the reservation in one
// conditional update. The WHERE clause carries the insufficient-funds guard, so
// two concurrent debits race at the database and at most one matches when the
// balance is borderline.
func (s *pgStore) SettleBalance(ctx context.Context, walletAddress, currency, txID string, amount decimal.Decimal) (bool, error) {
	query := s.db.WithContext(ctx).Model(&schema.Balance{}).
		Where("wallet_address = ? AND currency = ? AND ? = ANY(pending_txs)", walletAddress, currency, txID)
	if amount.IsNegative() {
		query = query.Where("offchain_amount >= ?", amount.Neg())
	}

	result := query.Updates(map[string]any{
		"offchain_amount": gorm.Expr("offchain_amount + ?", amount),
		"pending_txs":     gorm.Expr("array_remove(pending_txs, ?)", txID),
		"updated_at":      gorm.Expr("now()"),
	})
	if result.Error != nil {
		return false, fmt.Errorf("failed to settle balance: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ReleaseBalance removes txID from the pending set without touching amounts
func (s *pgStore) ReleaseBalance(ctx context.Context, walletAddress, currency, txID string) error {
	err := s.db.WithContext(ctx).Model(&schema.Balance{}).
		Where("wallet_address = ? AND currency = ?", walletAddress, currency).
		Updates(map[string]any{
			"pending_txs": gorm.Expr("array_remove(pending_txs, ?)", txID),
			"updated_at":  gorm.Expr("now()"),
		}).Error
	if err != nil {
		return fmt.Errorf("failed to release balance: %w", err)
	}
	return nil
}

// SetBlockchainAmount overwrites the mirrored on-chain balance, creating the
// balance row if reconciliation observes a deposit before any off-chain activity
func (s *pgStore) SetBlockchainAmount(ctx context.Context, walletAddress, currency string, amount decimal.Decimal, atBlock uint64) error {
	balance := schema.Balance{
		WalletAddress:     walletAddress,
		Currency:          currency,
		BlockchainAmount:  amount,
		OffchainAmount:    decimal.Zero,
		BlockOfLastUpdate: atBlock,
		PendingTxs:        pq.StringArray{},
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wallet_address"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]any{
			"blockchain_amount":    amount,
			"block_of_last_update": atBlock,
			"updated_at":           gorm.Expr("now()"),
		}),
	}).Create(&balance).Error
	if err != nil {
		return fmt.Errorf("failed to set blockchain amount: %w", err)
	}
	return nil
}

// GetBalance retrieves a balance row
func (s *pgStore) GetBalance(ctx context.Context, walletAddress, currency string) (*schema.Balance, error) {
	var balance schema.Balance
	err := s.db.WithContext(ctx).
		Where("wallet_address = ? AND currency = ?", walletAddress, currency).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &balance, nil
}

// SumOffchainAmounts totals offchain_amount across all wallets for a currency
func (s *pgStore) SumOffchainAmounts(ctx context.Context, currency string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.db.WithContext(ctx).Model(&schema.Balance{}).
		Where("currency = ?", currency).
		Select("COALESCE(SUM(offchain_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum offchain amounts: %w", err)
	}
	return total, nil
}

// CreateTransaction inserts a new off-chain transaction row
func (s *pgStore) CreateTransaction(ctx context.Context, tx *schema.Transaction) error {
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransaction retrieves a transaction by id
func (s *pgStore) GetTransaction(ctx context.Context, id string) (*schema.Transaction, error) {
	var tx schema.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// UpdateTransactionState transitions a transaction keyed on (id, currentState),
// so an apply can never succeed twice or hit the wrong state
func (s *pgStore) UpdateTransactionState(ctx context.Context, id string, from, to domain.TxState) (bool, error) {
	result := s.db.WithContext(ctx).Model(&schema.Transaction{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{
			"state":      to,
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update transaction state: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetTransactions lists transactions matching the filter
func (s *pgStore) GetTransactions(ctx context.Context, filter domain.TxFilter) ([]*schema.Transaction, error) {
	query := s.db.WithContext(ctx).Model(&schema.Transaction{})

	if filter.Address != "" {
		query = query.Where("from_address = ? OR to_address = ?", filter.Address, filter.Address)
	}
	if filter.FromAddress != "" {
		query = query.Where("from_address = ?", filter.FromAddress)
	}
	if filter.ToAddress != "" {
		query = query.Where("to_address = ?", filter.ToAddress)
	}
	if filter.Context != "" {
		query = query.Where("context = ?", filter.Context)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.Currency != "" {
		query = query.Where("from_currency = ? OR to_currency = ?", filter.Currency, filter.Currency)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var txs []*schema.Transaction
	if err := query.Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return txs, nil
}

// ListSettleableTransactions lists DONE transactions not yet linked to a transmit
func (s *pgStore) ListSettleableTransactions(ctx context.Context, currency string, limit int) ([]*schema.Transaction, error) {
	var txs []*schema.Transaction
	err := s.db.WithContext(ctx).
		Where("state = ? AND transmit_id IS NULL AND from_currency = ?", domain.TxStateDone, currency).
		Order("created_at ASC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list settleable transactions: %w", err)
	}
	return txs, nil
}

// MarkTransactionsTransmitted bulk-transitions DONE rows to TRANSMITTED.
// Ids not currently in DONE are simply not counted.
func (s *pgStore) MarkTransactionsTransmitted(ctx context.Context, ids []string, transmitID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&schema.Transaction{}).
		Where("id IN ? AND state = ?", ids, domain.TxStateDone).
		Updates(map[string]any{
			"state":       domain.TxStateTransmitted,
			"transmit_id": transmitID,
			"updated_at":  gorm.Expr("now()"),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark transactions transmitted: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateBlockchainTransaction records a chain receipt. Duplicate hashes are
// no-op successes so a caller can safely retry after a partial failure.
func (s *pgStore) CreateBlockchainTransaction(ctx context.Context, tx *schema.BlockchainTransaction) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "hash"}},
		DoNothing: true,
	}).Create(tx)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create blockchain transaction: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetBlockchainTransactionByHash retrieves a chain transaction record
func (s *pgStore) GetBlockchainTransactionByHash(ctx context.Context, hash string) (*schema.BlockchainTransaction, error) {
	var tx schema.BlockchainTransaction
	err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blockchain transaction: %w", err)
	}
	return &tx, nil
}

// ListBlockchainTransactions lists rows in the given states with optional filters
func (s *pgStore) ListBlockchainTransactions(ctx context.Context, states []domain.ChainTxState, address string, txType domain.ChainTxType) ([]*schema.BlockchainTransaction, error) {
	query := s.db.WithContext(ctx).Model(&schema.BlockchainTransaction{})

	if len(states) > 0 {
		query = query.Where("state IN ?", states)
	}
	if address != "" {
		query = query.Where("from_address = ? OR to_address = ?", address, address)
	}
	if txType != "" {
		query = query.Where("type = ?", txType)
	}

	var txs []*schema.BlockchainTransaction
	if err := query.Order("created_at ASC").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list blockchain transactions: %w", err)
	}
	return txs, nil
}

// UpdateBlockchainTransactionState transitions a row keyed on (id, currentState)
func (s *pgStore) UpdateBlockchainTransactionState(ctx context.Context, id string, from, to domain.ChainTxState) (bool, error) {
	result := s.db.WithContext(ctx).Model(&schema.BlockchainTransaction{}).
		Where("id = ? AND state = ?", id, from).
		Updates(map[string]any{
			"state":      to,
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update blockchain transaction state: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateBlockchainTransactionInclusion stamps the block a transaction was mined in
func (s *pgStore) UpdateBlockchainTransactionInclusion(ctx context.Context, id string, blockHash *string, blockNumber uint64) error {
	result := s.db.WithContext(ctx).Model(&schema.BlockchainTransaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"block_hash":   blockHash,
			"block_number": blockNumber,
			"updated_at":   gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update blockchain transaction inclusion: %w", result.Error)
	}
	return nil
}

// CreateTransmit records a settlement batch
func (s *pgStore) CreateTransmit(ctx context.Context, transmit *schema.Transmit) error {
	if err := s.db.WithContext(ctx).Create(transmit).Error; err != nil {
		return fmt.Errorf("failed to create transmit: %w", err)
	}
	return nil
}

// GetTransmit retrieves a transmit by id
func (s *pgStore) GetTransmit(ctx context.Context, id string) (*schema.Transmit, error) {
	var transmit schema.Transmit
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&transmit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get transmit: %w", err)
	}
	return &transmit, nil
}

// ListUnfinishedTransmits lists transmits whose batch still carries DONE
// transactions, meaning a previous sweep submitted the chain transfer but
// never finished stamping
func (s *pgStore) ListUnfinishedTransmits(ctx context.Context) ([]*schema.Transmit, error) {
	var transmits []*schema.Transmit
	err := s.db.WithContext(ctx).
		Where("EXISTS (SELECT 1 FROM transactions t WHERE t.id::text = ANY(transmits.offchain_tx_ids) AND t.state = ?)",
			domain.TxStateDone).
		Order("created_at ASC").
		Find(&transmits).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished transmits: %w", err)
	}
	return transmits, nil
}

// InsertBlockchainEvent checkpoints an observed event, deduplicated on
// (tx_hash, log_index) by a unique index and ON CONFLICT DO NOTHING
func (s *pgStore) InsertBlockchainEvent(ctx context.Context, event *schema.BlockchainEvent) (bool, error) {
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tx_hash"}, {Name: "log_index"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, fmt.Errorf("failed to insert blockchain event: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetBlockchainEvent retrieves one checkpointed event
func (s *pgStore) GetBlockchainEvent(ctx context.Context, txHash string, logIndex uint) (*schema.BlockchainEvent, error) {
	var event schema.BlockchainEvent
	err := s.db.WithContext(ctx).
		Where("tx_hash = ? AND log_index = ?", txHash, logIndex).
		First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get blockchain event: %w", err)
	}
	return &event, nil
}

// MarkBlockchainEventProcessed flips a checkpointed event to processed
func (s *pgStore) MarkBlockchainEventProcessed(ctx context.Context, txHash string, logIndex uint) error {
	result := s.db.WithContext(ctx).Model(&schema.BlockchainEvent{}).
		Where("tx_hash = ? AND log_index = ?", txHash, logIndex).
		Update("processed", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark event processed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("event %s:%d not found", txHash, logIndex)
	}
	return nil
}

// ListUnprocessedEvents lists checkpointed events whose effects never landed,
// in chain order
func (s *pgStore) ListUnprocessedEvents(ctx context.Context, address string) ([]*schema.BlockchainEvent, error) {
	var events []*schema.BlockchainEvent
	err := s.db.WithContext(ctx).
		Where("address = ? AND processed = false", address).
		Order("block_number ASC, log_index ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed events: %w", err)
	}
	return events, nil
}

// GetLastEventBlock returns the max checkpointed block number for a token address
func (s *pgStore) GetLastEventBlock(ctx context.Context, address string) (uint64, error) {
	var lastBlock uint64
	err := s.db.WithContext(ctx).Model(&schema.BlockchainEvent{}).
		Where("address = ?", address).
		Select("COALESCE(MAX(block_number), 0)").
		Scan(&lastBlock).Error
	if err != nil {
		return 0, fmt.Errorf("failed to get last event block: %w", err)
	}
	return lastBlock, nil
}
