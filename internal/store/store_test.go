package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/store"
	"github.com/communitypay/cc-ledger/internal/store/schema"
)

const (
	alice = "0xaaaa000000000000000000000000000000000001"
	bob   = "0xbbbb000000000000000000000000000000000002"
	cur   = "CPAY"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fund credits a wallet through the reserve/settle protocol
func fund(t *testing.T, st store.Store, address, amount string) {
	t.Helper()
	ctx := context.Background()

	txID := "fund-" + address + "-" + amount
	require.NoError(t, st.ReserveBalance(ctx, address, cur, txID))
	ok, err := st.SettleBalance(ctx, address, cur, txID, dec(amount))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReserveBalanceIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-1"))
	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-1"))
	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-2"))

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.ElementsMatch(t, []string{"tx-1", "tx-2"}, []string(balance.PendingTxs))
	assert.True(t, balance.OffchainAmount.IsZero())
}

func TestSettleBalanceRequiresReservation(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	ok, err := st.SettleBalance(ctx, alice, cur, "tx-unknown", dec("10"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettleBalanceDebitGuard(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")

	// A debit beyond the balance does not match and leaves everything as is.
	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-1"))
	ok, err := st.SettleBalance(ctx, alice, cur, "tx-1", dec("-150"))
	require.NoError(t, err)
	assert.False(t, ok)

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.OffchainAmount.Equal(dec("100")))
	assert.Contains(t, []string(balance.PendingTxs), "tx-1")

	// A covered debit matches and clears the reservation.
	ok, err = st.SettleBalance(ctx, alice, cur, "tx-1", dec("-40"))
	require.NoError(t, err)
	assert.True(t, ok)

	balance, err = st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.OffchainAmount.Equal(dec("60")))
	assert.Empty(t, balance.PendingTxs)

	// The reservation is gone, so settling the same id again is a no-match.
	ok, err = st.SettleBalance(ctx, alice, cur, "tx-1", dec("-40"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSettleBalanceExactDebit(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")

	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-1"))
	ok, err := st.SettleBalance(ctx, alice, cur, "tx-1", dec("-100"))
	require.NoError(t, err)
	assert.True(t, ok)

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.OffchainAmount.IsZero())
}

func TestReleaseBalanceLeavesAmounts(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")

	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-1"))
	require.NoError(t, st.ReleaseBalance(ctx, alice, cur, "tx-1"))

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.OffchainAmount.Equal(dec("100")))
	assert.Empty(t, balance.PendingTxs)
}

func TestConcurrentDebitsExactlyOneWins(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")

	// Two transfers of 60 are both reserved; only one can settle.
	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-a"))
	require.NoError(t, st.ReserveBalance(ctx, alice, cur, "tx-b"))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, txID := range []string{"tx-a", "tx-b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.SettleBalance(ctx, alice, cur, txID, dec("-60"))
			require.NoError(t, err)
			results[i] = ok
		}()
	}
	wg.Wait()

	wins := 0
	for _, ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.OffchainAmount.Equal(dec("40")))
}

func TestSetBlockchainAmountOverwrites(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")

	require.NoError(t, st.SetBlockchainAmount(ctx, alice, cur, dec("250"), 1200))

	balance, err := st.GetBalance(ctx, alice, cur)
	require.NoError(t, err)
	assert.True(t, balance.BlockchainAmount.Equal(dec("250")))
	assert.Equal(t, uint64(1200), balance.BlockOfLastUpdate)
	assert.True(t, balance.OffchainAmount.Equal(dec("100")))
}

func TestSumOffchainAmounts(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	fund(t, st, alice, "100")
	fund(t, st, bob, "50")

	total, err := st.SumOffchainAmounts(ctx, cur)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("150")))
}

func TestUpdateTransactionStateConditional(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	tx := &schema.Transaction{
		ID:           "tx-1",
		FromAddress:  alice,
		FromCurrency: cur,
		ToAddress:    bob,
		ToCurrency:   cur,
		Amount:       dec("10"),
		Context:      domain.TxContextTransfer,
		State:        domain.TxStateNew,
	}
	require.NoError(t, st.CreateTransaction(ctx, tx))

	ok, err := st.UpdateTransactionState(ctx, "tx-1", domain.TxStateNew, domain.TxStatePending)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong expected state matches nothing.
	ok, err = st.UpdateTransactionState(ctx, "tx-1", domain.TxStateNew, domain.TxStateDone)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := st.GetTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStatePending, loaded.State)
}

func TestMarkTransactionsTransmittedSkipsNonDone(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for _, tx := range []*schema.Transaction{
		{ID: "done-1", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("10"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
		{ID: "done-2", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("20"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
		{ID: "canceled", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("30"), Context: domain.TxContextTransfer, State: domain.TxStateCanceled},
	} {
		require.NoError(t, st.CreateTransaction(ctx, tx))
	}

	n, err := st.MarkTransactionsTransmitted(ctx, []string{"done-1", "done-2", "canceled"}, "transmit-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	loaded, err := st.GetTransaction(ctx, "done-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStateTransmitted, loaded.State)
	require.NotNil(t, loaded.TransmitID)
	assert.Equal(t, "transmit-1", *loaded.TransmitID)

	loaded, err = st.GetTransaction(ctx, "canceled")
	require.NoError(t, err)
	assert.Equal(t, domain.TxStateCanceled, loaded.State)
	assert.Nil(t, loaded.TransmitID)
}

func TestListSettleableTransactions(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	transmitID := "transmit-0"
	for _, tx := range []*schema.Transaction{
		{ID: "eligible", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("10"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
		{ID: "stamped", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("20"), Context: domain.TxContextTransfer, State: domain.TxStateDone, TransmitID: &transmitID},
		{ID: "pending", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("30"), Context: domain.TxContextTransfer, State: domain.TxStatePending},
		{ID: "other-cur", FromAddress: alice, FromCurrency: "OTHER", ToAddress: bob, ToCurrency: "OTHER",
			Amount: dec("40"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
	} {
		require.NoError(t, st.CreateTransaction(ctx, tx))
	}

	rows, err := st.ListSettleableTransactions(ctx, cur, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "eligible", rows[0].ID)
}

func TestCreateBlockchainTransactionDedup(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	tx := &schema.BlockchainTransaction{
		ID:          "bc-1",
		Hash:        "0xhash1",
		FromAddress: alice,
		ToAddress:   bob,
		Value:       dec("0"),
		GasPrice:    dec("0"),
		Type:        domain.ChainTxTypeTransfer,
		State:       domain.ChainTxStateTransmitted,
	}
	inserted, err := st.CreateBlockchainTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := *tx
	dup.ID = "bc-2"
	inserted, err = st.CreateBlockchainTransaction(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, inserted)

	loaded, err := st.GetBlockchainTransactionByHash(ctx, "0xhash1")
	require.NoError(t, err)
	assert.Equal(t, "bc-1", loaded.ID)
}

func TestInsertBlockchainEventDedup(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	event := &schema.BlockchainEvent{
		Address:     "0xtoken",
		BlockHash:   "0xblock",
		BlockNumber: 500,
		TxHash:      "0xhash1",
		LogIndex:    3,
		Event:       "Transfer",
	}
	inserted, err := st.InsertBlockchainEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.InsertBlockchainEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	// Same hash, different log index is a distinct event.
	other := *event
	other.LogIndex = 4
	other.BlockNumber = 501
	inserted, err = st.InsertBlockchainEvent(ctx, &other)
	require.NoError(t, err)
	assert.True(t, inserted)

	last, err := st.GetLastEventBlock(ctx, "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, uint64(501), last)
}

func TestBlockchainEventProcessedLifecycle(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	event := &schema.BlockchainEvent{
		Address:     "0xtoken",
		BlockHash:   "0xblock",
		BlockNumber: 500,
		TxHash:      "0xhash1",
		LogIndex:    3,
		Event:       "Transfer",
	}
	inserted, err := st.InsertBlockchainEvent(ctx, event)
	require.NoError(t, err)
	require.True(t, inserted)

	// Inserted unprocessed: visible to the replay sweep.
	pending, err := st.ListUnprocessedEvents(ctx, "0xtoken")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.False(t, pending[0].Processed)

	require.NoError(t, st.MarkBlockchainEventProcessed(ctx, "0xhash1", 3))

	loaded, err := st.GetBlockchainEvent(ctx, "0xhash1", 3)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Processed)

	pending, err = st.ListUnprocessedEvents(ctx, "0xtoken")
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Marking an uncheckpointed event is an error, not a silent no-op.
	require.Error(t, st.MarkBlockchainEventProcessed(ctx, "0xhash1", 4))
}

func TestListUnprocessedEventsChainOrder(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for _, event := range []*schema.BlockchainEvent{
		{Address: "0xtoken", BlockHash: "0xb", BlockNumber: 502, TxHash: "0xhash3", LogIndex: 0, Event: "Transfer"},
		{Address: "0xtoken", BlockHash: "0xb", BlockNumber: 500, TxHash: "0xhash1", LogIndex: 7, Event: "Transfer"},
		{Address: "0xtoken", BlockHash: "0xb", BlockNumber: 500, TxHash: "0xhash1", LogIndex: 2, Event: "Transfer"},
		{Address: "0xother", BlockHash: "0xb", BlockNumber: 10, TxHash: "0xhash9", LogIndex: 0, Event: "Transfer"},
	} {
		inserted, err := st.InsertBlockchainEvent(ctx, event)
		require.NoError(t, err)
		require.True(t, inserted)
	}

	pending, err := st.ListUnprocessedEvents(ctx, "0xtoken")
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, uint(2), pending[0].LogIndex)
	assert.Equal(t, uint(7), pending[1].LogIndex)
	assert.Equal(t, uint64(502), pending[2].BlockNumber)
}

func TestListUnfinishedTransmits(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	for _, tx := range []*schema.Transaction{
		{ID: "stamped", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("10"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
		{ID: "stuck", FromAddress: alice, FromCurrency: cur, ToAddress: bob, ToCurrency: cur,
			Amount: dec("20"), Context: domain.TxContextTransfer, State: domain.TxStateDone},
	} {
		require.NoError(t, st.CreateTransaction(ctx, tx))
	}

	finished := &schema.Transmit{ID: "f0000000-0000-0000-0000-000000000001", TxHash: "0xhash1", OffchainTxIDs: []string{"stamped"}}
	stuck := &schema.Transmit{ID: "f0000000-0000-0000-0000-000000000002", TxHash: "0xhash2", OffchainTxIDs: []string{"stuck"}}
	require.NoError(t, st.CreateTransmit(ctx, finished))
	require.NoError(t, st.CreateTransmit(ctx, stuck))

	n, err := st.MarkTransactionsTransmitted(ctx, []string{"stamped"}, finished.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	pending, err := st.ListUnfinishedTransmits(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, stuck.ID, pending[0].ID)
	assert.Equal(t, "0xhash2", pending[0].TxHash)
}
