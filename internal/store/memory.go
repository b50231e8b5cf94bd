package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

// memoryStore is a concurrency-safe in-memory Store. A single mutex stands in
// for the document-level atomicity the database gives pgStore: every method
// holds it for the full conditional check-and-mutate, so the balance protocol
// semantics are identical. Useful for unit tests and local development.
type memoryStore struct {
	mu sync.Mutex

	wallets      map[string]*schema.Wallet      // keyed by address
	balances     map[string]*schema.Balance     // keyed by address|currency
	transactions map[string]*schema.Transaction // keyed by id
	chainTxs     map[string]*schema.BlockchainTransaction
	chainTxHash  map[string]string // hash -> id
	transmits    map[string]*schema.Transmit
	events       map[string]*schema.BlockchainEvent // keyed by txHash|logIndex
	nextEventID  int64
}

// NewMemoryStore creates an in-memory Store implementation
func NewMemoryStore() Store {
	return &memoryStore{
		wallets:      make(map[string]*schema.Wallet),
		balances:     make(map[string]*schema.Balance),
		transactions: make(map[string]*schema.Transaction),
		chainTxs:     make(map[string]*schema.BlockchainTransaction),
		chainTxHash:  make(map[string]string),
		transmits:    make(map[string]*schema.Transmit),
		events:       make(map[string]*schema.BlockchainEvent),
	}
}

func balanceKey(walletAddress, currency string) string {
	return walletAddress + "|" + currency
}

func (s *memoryStore) CreateWallet(_ context.Context, wallet *schema.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[wallet.Address]; exists {
		return fmt.Errorf("wallet %s already exists", wallet.Address)
	}
	w := *wallet
	s.wallets[wallet.Address] = &w
	return nil
}

func (s *memoryStore) GetWalletByAddress(_ context.Context, address string) (*schema.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wallet, ok := s.wallets[address]
	if !ok {
		return nil, nil
	}
	w := *wallet
	return &w, nil
}

func (s *memoryStore) ReserveBalance(_ context.Context, walletAddress, currency, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.ensureBalanceLocked(walletAddress, currency)
	for _, pending := range balance.PendingTxs {
		if pending == txID {
			return nil
		}
	}
	balance.PendingTxs = append(balance.PendingTxs, txID)
	return nil
}

func (s *memoryStore) SettleBalance(_ context.Context, walletAddress, currency, txID string, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[balanceKey(walletAddress, currency)]
	if !ok {
		return false, nil
	}

	idx := -1
	for i, pending := range balance.PendingTxs {
		if pending == txID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if amount.IsNegative() && balance.OffchainAmount.LessThan(amount.Neg()) {
		return false, nil
	}

	balance.OffchainAmount = balance.OffchainAmount.Add(amount)
	balance.PendingTxs = append(balance.PendingTxs[:idx], balance.PendingTxs[idx+1:]...)
	return true, nil
}

func (s *memoryStore) ReleaseBalance(_ context.Context, walletAddress, currency, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[balanceKey(walletAddress, currency)]
	if !ok {
		return nil
	}
	for i, pending := range balance.PendingTxs {
		if pending == txID {
			balance.PendingTxs = append(balance.PendingTxs[:i], balance.PendingTxs[i+1:]...)
			break
		}
	}
	return nil
}

func (s *memoryStore) SetBlockchainAmount(_ context.Context, walletAddress, currency string, amount decimal.Decimal, atBlock uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := s.ensureBalanceLocked(walletAddress, currency)
	balance.BlockchainAmount = amount
	balance.BlockOfLastUpdate = atBlock
	return nil
}

func (s *memoryStore) GetBalance(_ context.Context, walletAddress, currency string) (*schema.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[balanceKey(walletAddress, currency)]
	if !ok {
		return nil, nil
	}
	b := *balance
	b.PendingTxs = append(pq.StringArray{}, balance.PendingTxs...)
	return &b, nil
}

func (s *memoryStore) SumOffchainAmounts(_ context.Context, currency string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, balance := range s.balances {
		if balance.Currency == currency {
			total = total.Add(balance.OffchainAmount)
		}
	}
	return total, nil
}

// ensureBalanceLocked creates a zero balance row if absent; caller holds the lock
func (s *memoryStore) ensureBalanceLocked(walletAddress, currency string) *schema.Balance {
	key := balanceKey(walletAddress, currency)
	balance, ok := s.balances[key]
	if !ok {
		balance = &schema.Balance{
			ID:               int64(len(s.balances) + 1),
			WalletAddress:    walletAddress,
			Currency:         currency,
			BlockchainAmount: decimal.Zero,
			OffchainAmount:   decimal.Zero,
			PendingTxs:       pq.StringArray{},
		}
		s.balances[key] = balance
	}
	return balance
}

func (s *memoryStore) CreateTransaction(_ context.Context, tx *schema.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[tx.ID]; exists {
		return fmt.Errorf("transaction %s already exists", tx.ID)
	}
	t := *tx
	s.transactions[tx.ID] = &t
	return nil
}

func (s *memoryStore) GetTransaction(_ context.Context, id string) (*schema.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, nil
	}
	t := *tx
	return &t, nil
}

func (s *memoryStore) UpdateTransactionState(_ context.Context, id string, from, to domain.TxState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok || tx.State != from {
		return false, nil
	}
	tx.State = to
	return true, nil
}

func (s *memoryStore) GetTransactions(_ context.Context, filter domain.TxFilter) ([]*schema.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []*schema.Transaction
	for _, tx := range s.transactions {
		if filter.Address != "" && tx.FromAddress != filter.Address && tx.ToAddress != filter.Address {
			continue
		}
		if filter.FromAddress != "" && tx.FromAddress != filter.FromAddress {
			continue
		}
		if filter.ToAddress != "" && tx.ToAddress != filter.ToAddress {
			continue
		}
		if filter.Context != "" && tx.Context != filter.Context {
			continue
		}
		if filter.State != "" && tx.State != filter.State {
			continue
		}
		if filter.Currency != "" && tx.FromCurrency != filter.Currency && tx.ToCurrency != filter.Currency {
			continue
		}
		t := *tx
		txs = append(txs, &t)
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
	if filter.Limit > 0 && len(txs) > filter.Limit {
		txs = txs[:filter.Limit]
	}
	return txs, nil
}

func (s *memoryStore) ListSettleableTransactions(_ context.Context, currency string, limit int) ([]*schema.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []*schema.Transaction
	for _, tx := range s.transactions {
		if tx.State == domain.TxStateDone && tx.TransmitID == nil && tx.FromCurrency == currency {
			t := *tx
			txs = append(txs, &t)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *memoryStore) MarkTransactionsTransmitted(_ context.Context, ids []string, transmitID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updated int64
	for _, id := range ids {
		tx, ok := s.transactions[id]
		if !ok || tx.State != domain.TxStateDone {
			continue
		}
		tid := transmitID
		tx.State = domain.TxStateTransmitted
		tx.TransmitID = &tid
		updated++
	}
	return updated, nil
}

func (s *memoryStore) CreateBlockchainTransaction(_ context.Context, tx *schema.BlockchainTransaction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chainTxHash[tx.Hash]; exists {
		return false, nil
	}
	t := *tx
	s.chainTxs[tx.ID] = &t
	s.chainTxHash[tx.Hash] = tx.ID
	return true, nil
}

func (s *memoryStore) GetBlockchainTransactionByHash(_ context.Context, hash string) (*schema.BlockchainTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.chainTxHash[hash]
	if !ok {
		return nil, nil
	}
	t := *s.chainTxs[id]
	return &t, nil
}

func (s *memoryStore) ListBlockchainTransactions(_ context.Context, states []domain.ChainTxState, address string, txType domain.ChainTxType) ([]*schema.BlockchainTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var txs []*schema.BlockchainTransaction
	for _, tx := range s.chainTxs {
		if len(states) > 0 {
			matched := false
			for _, state := range states {
				if tx.State == state {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if address != "" && tx.FromAddress != address && tx.ToAddress != address {
			continue
		}
		if txType != "" && tx.Type != txType {
			continue
		}
		t := *tx
		txs = append(txs, &t)
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].CreatedAt.Before(txs[j].CreatedAt)
	})
	return txs, nil
}

func (s *memoryStore) UpdateBlockchainTransactionState(_ context.Context, id string, from, to domain.ChainTxState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.chainTxs[id]
	if !ok || tx.State != from {
		return false, nil
	}
	tx.State = to
	return true, nil
}

func (s *memoryStore) UpdateBlockchainTransactionInclusion(_ context.Context, id string, blockHash *string, blockNumber uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx, ok := s.chainTxs[id]; ok {
		tx.BlockHash = blockHash
		tx.BlockNumber = blockNumber
	}
	return nil
}

func (s *memoryStore) CreateTransmit(_ context.Context, transmit *schema.Transmit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transmits[transmit.ID]; exists {
		return fmt.Errorf("transmit %s already exists", transmit.ID)
	}
	t := *transmit
	s.transmits[transmit.ID] = &t
	return nil
}

func (s *memoryStore) GetTransmit(_ context.Context, id string) (*schema.Transmit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transmit, ok := s.transmits[id]
	if !ok {
		return nil, nil
	}
	t := *transmit
	return &t, nil
}

func (s *memoryStore) ListUnfinishedTransmits(_ context.Context) ([]*schema.Transmit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*schema.Transmit
	for _, transmit := range s.transmits {
		for _, id := range transmit.OffchainTxIDs {
			tx, ok := s.transactions[id]
			if ok && tx.State == domain.TxStateDone {
				t := *transmit
				pending = append(pending, &t)
				break
			}
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

func (s *memoryStore) InsertBlockchainEvent(_ context.Context, event *schema.BlockchainEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%d", event.TxHash, event.LogIndex)
	if _, exists := s.events[key]; exists {
		return false, nil
	}
	s.nextEventID++
	e := *event
	e.ID = s.nextEventID
	e.Processed = false
	s.events[key] = &e
	return true, nil
}

func (s *memoryStore) GetBlockchainEvent(_ context.Context, txHash string, logIndex uint) (*schema.BlockchainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[fmt.Sprintf("%s|%d", txHash, logIndex)]
	if !ok {
		return nil, nil
	}
	e := *event
	return &e, nil
}

func (s *memoryStore) MarkBlockchainEventProcessed(_ context.Context, txHash string, logIndex uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[fmt.Sprintf("%s|%d", txHash, logIndex)]
	if !ok {
		return fmt.Errorf("event %s:%d not found", txHash, logIndex)
	}
	event.Processed = true
	return nil
}

func (s *memoryStore) ListUnprocessedEvents(_ context.Context, address string) ([]*schema.BlockchainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*schema.BlockchainEvent
	for _, event := range s.events {
		if event.Address != address || event.Processed {
			continue
		}
		e := *event
		pending = append(pending, &e)
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].BlockNumber != pending[j].BlockNumber {
			return pending[i].BlockNumber < pending[j].BlockNumber
		}
		return pending[i].LogIndex < pending[j].LogIndex
	})
	return pending, nil
}

func (s *memoryStore) GetLastEventBlock(_ context.Context, address string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last uint64
	for _, event := range s.events {
		if event.Address == address && event.BlockNumber > last {
			last = event.BlockNumber
		}
	}
	return last, nil
}
