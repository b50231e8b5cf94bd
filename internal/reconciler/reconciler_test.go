package reconciler_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/ledger"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/mocks"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/participant"
	"github.com/communitypay/cc-ledger/internal/reconciler"
	"github.com/communitypay/cc-ledger/internal/store"
)

const (
	tokenAddr = "0x1111000000000000000000000000000000000011"
	managed   = "0xaaaa000000000000000000000000000000000001"
	outside   = "0xeeee000000000000000000000000000000000009"
	stranger  = "0xffff00000000000000000000000000000000000f"
)

var cpay = domain.Currency{
	Symbol:        "CPAY",
	TokenAddress:  tokenAddr,
	CreationBlock: 100,
	Decimals:      18,
}

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type fixture struct {
	store      store.Store
	ledger     *ledger.Ledger
	reconciler *reconciler.Reconciler
	gateway    *mocks.MockChainGateway
	notifier   *mocks.MockNotifier
	clock      *mocks.MockClock
}

func setup(t *testing.T) *fixture {
	return setupWith(t, reconciler.Config{BackfillWindow: 1000}, nil)
}

func setupWith(t *testing.T, cfg reconciler.Config, wrapResolver func(participant.Resolver) participant.Resolver) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	gw := mocks.NewMockChainGateway(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	clock := mocks.NewMockClock(ctrl)

	st := store.NewMemoryStore()
	registry := participant.NewRegistry([]domain.Currency{cpay})
	resolver := participant.Resolver(participant.NewStoreResolver(st, registry))
	if wrapResolver != nil {
		resolver = wrapResolver(resolver)
	}
	lg := ledger.New(st, participant.NewStoreResolver(st, registry), notify.NewNoop())

	ctx := context.Background()
	_, err := lg.RegisterWallet(ctx, domain.Wallet{
		Address:     managed,
		Type:        "user",
		CommunityID: "community-1",
	})
	require.NoError(t, err)

	r := reconciler.New(st, lg, gw, resolver, registry, notifier, clock, cfg)
	return &fixture{store: st, ledger: lg, reconciler: r, gateway: gw, notifier: notifier, clock: clock}
}

// flakyResolver fails a fixed number of lookups before delegating, simulating
// a transient fault in the provisioning backend
type flakyResolver struct {
	inner    participant.Resolver
	failures int
}

func (r *flakyResolver) ResolveParticipant(ctx context.Context, accountAddress string) (*participant.Resolution, error) {
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("resolver unavailable")
	}
	return r.inner.ResolveParticipant(ctx, accountAddress)
}

func (r *flakyResolver) ResolveCurrency(ctx context.Context, symbolOrToken string) (*domain.Currency, error) {
	return r.inner.ResolveCurrency(ctx, symbolOrToken)
}

func event(logIndex uint, from, to string, value string) *domain.TransferEvent {
	v, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return &domain.TransferEvent{
		TokenAddress: tokenAddr,
		From:         from,
		To:           to,
		Value:        v,
		TxHash:       "0xevent",
		LogIndex:     logIndex,
		BlockHash:    "0xblock",
		BlockNumber:  120,
	}
}

func offchain(t *testing.T, st store.Store, address string) decimal.Decimal {
	t.Helper()
	balance, err := st.GetBalance(context.Background(), address, cpay.Symbol)
	require.NoError(t, err)
	require.NotNil(t, balance)
	return balance.OffchainAmount
}

func TestHandleEventBooksDeposit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(25), nil)

	err := f.reconciler.HandleEvent(ctx, cpay, event(0, outside, managed, "25"))
	require.NoError(t, err)

	assert.True(t, offchain(t, f.store, managed).Equal(decimal.NewFromInt(25)))

	balance, err := f.store.GetBalance(ctx, managed, cpay.Symbol)
	require.NoError(t, err)
	assert.True(t, balance.BlockchainAmount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, uint64(120), balance.BlockOfLastUpdate)

	deposits, err := f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, domain.TxStateTransmitted, deposits[0].State)
	assert.Equal(t, outside, deposits[0].FromAddress)
}

func TestHandleEventDeduplicates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(25), nil)

	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, event(0, outside, managed, "25")))

	// Replays of the same (tx_hash, log_index) are no-ops: no second deposit,
	// no second balance fetch.
	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, event(0, outside, managed, "25")))

	assert.True(t, offchain(t, f.store, managed).Equal(decimal.NewFromInt(25)))

	deposits, err := f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestHandleEventFlagsUnmanagedTransfer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ev := event(1, outside, stranger, "10")
	f.notifier.EXPECT().UnmanagedTransfer(ctx, ev)

	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, ev))

	// Neither side is managed, so nothing was booked.
	deposits, err := f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	assert.Empty(t, deposits)
}

func TestHandleEventInternalTransferRefreshesOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	second := "0xbbbb000000000000000000000000000000000002"
	st := f.store
	_, err := f.ledger.RegisterWallet(ctx, domain.Wallet{
		Address:     second,
		Type:        "user",
		CommunityID: "community-1",
	})
	require.NoError(t, err)

	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(90), nil)
	f.gateway.EXPECT().TokenBalance(ctx, cpay, second).Return(decimal.NewFromInt(10), nil)

	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, event(2, managed, second, "10")))

	// No off-chain booking for the engine's own settlement traffic.
	deposits, err := st.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	assert.Empty(t, deposits)

	balance, err := st.GetBalance(ctx, second, cpay.Symbol)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.True(t, balance.BlockchainAmount.Equal(decimal.NewFromInt(10)))
}

func TestHandleEventRetriesAfterFailedBooking(t *testing.T) {
	flaky := &flakyResolver{failures: 1}
	f := setupWith(t, reconciler.Config{BackfillWindow: 1000}, func(inner participant.Resolver) participant.Resolver {
		flaky.inner = inner
		return flaky
	})
	ctx := context.Background()

	// The first delivery checkpoints the event but dies before booking.
	ev := event(0, outside, managed, "25")
	require.Error(t, f.reconciler.HandleEvent(ctx, cpay, ev))

	deposits, err := f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	require.Empty(t, deposits)

	// The redelivered event must not be swallowed by the dedup: the deposit
	// still has to land.
	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(25), nil)
	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, ev))

	assert.True(t, offchain(t, f.store, managed).Equal(decimal.NewFromInt(25)))

	deposits, err = f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestBackfillReplaysUnprocessedEvents(t *testing.T) {
	flaky := &flakyResolver{failures: 1}
	f := setupWith(t, reconciler.Config{BackfillWindow: 1000}, func(inner participant.Resolver) participant.Resolver {
		flaky.inner = inner
		return flaky
	})
	ctx := context.Background()

	require.Error(t, f.reconciler.HandleEvent(ctx, cpay, event(0, outside, managed, "25")))

	// Even without a redelivery from the node, the sweep picks the checkpointed
	// event back up before walking the block windows.
	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(25), nil)
	f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(120), uint64(150)).Return(nil, nil)
	require.NoError(t, f.reconciler.BackfillCurrency(ctx, cpay, 150))

	assert.True(t, offchain(t, f.store, managed).Equal(decimal.NewFromInt(25)))

	deposits, err := f.store.GetTransactions(ctx, domain.TxFilter{Context: domain.TxContextDeposit})
	require.NoError(t, err)
	assert.Len(t, deposits, 1)
}

func TestBackfillCurrencyDefaultsZeroWindow(t *testing.T) {
	f := setupWith(t, reconciler.Config{}, nil)
	ctx := context.Background()

	// An unset window falls back to the default instead of looping forever on
	// an inverted range.
	f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(100), uint64(150)).Return(nil, nil)
	require.NoError(t, f.reconciler.BackfillCurrency(ctx, cpay, 150))
}

func TestBackfillCurrencyWalksWindows(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Head 2599 with window 1000 from creation block 100 gives three windows.
	gomock.InOrder(
		f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(100), uint64(1099)).
			Return(nil, nil),
		f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(1100), uint64(2099)).
			Return([]domain.TransferEvent{*event(3, outside, managed, "5")}, nil),
		f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(2100), uint64(2599)).
			Return(nil, nil),
	)
	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(5), nil)

	require.NoError(t, f.reconciler.BackfillCurrency(ctx, cpay, 2599))

	assert.True(t, offchain(t, f.store, managed).Equal(decimal.NewFromInt(5)))
}

func TestBackfillCurrencyResumesFromCheckpoint(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Checkpoint an event at block 120, then backfill to head 150: the sweep
	// restarts at the checkpointed block, not the creation block.
	f.gateway.EXPECT().TokenBalance(ctx, cpay, managed).Return(decimal.NewFromInt(25), nil)
	require.NoError(t, f.reconciler.HandleEvent(ctx, cpay, event(0, outside, managed, "25")))

	f.gateway.EXPECT().GetPastEvents(ctx, cpay, uint64(120), uint64(150)).Return(nil, nil)
	require.NoError(t, f.reconciler.BackfillCurrency(ctx, cpay, 150))
}
