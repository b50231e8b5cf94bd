package chaintx_test

import (
	"context"
	"os"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitypay/cc-ledger/internal/chaintx"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/gateway"
	"github.com/communitypay/cc-ledger/internal/logger"
	"github.com/communitypay/cc-ledger/internal/mocks"
	"github.com/communitypay/cc-ledger/internal/notify"
	"github.com/communitypay/cc-ledger/internal/store"
)

const txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

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

func strPtr(s string) *string {
	return &s
}

func includedTx(blockNumber uint64) *gateway.ChainTxInfo {
	return &gateway.ChainTxInfo{
		Hash:        txHash,
		BlockHash:   strPtr("0xblock"),
		BlockNumber: blockNumber,
		From:        "0xaaaa000000000000000000000000000000000001",
		To:          "0x1111000000000000000000000000000000000011",
		Nonce:       7,
		Value:       decimal.Zero,
		Gas:         90000,
		GasPrice:    decimal.NewFromInt(1000000000),
	}
}

func newTracker(t *testing.T) (*chaintx.Tracker, store.Store, *mocks.MockChainGateway) {
	t.Helper()

	ctrl := gomock.NewController(t)
	gw := mocks.NewMockChainGateway(ctrl)
	st := store.NewMemoryStore()
	tracker := chaintx.New(st, gw, notify.NewNoop(), chaintx.Config{
		BlocksToConfirm:  6,
		BlocksToFinalize: 64,
	})
	return tracker, st, gw
}

func syncNoError(t *testing.T, tracker *chaintx.Tracker, ctx context.Context) {
	t.Helper()
	_, err := tracker.SyncState(ctx, "", "")
	require.NoError(t, err)
}

func TestRecordTracksTransaction(t *testing.T) {
	tracker, st, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)

	row, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, map[string]any{"token": "CPAY"})
	require.NoError(t, err)
	assert.Equal(t, txHash, row.Hash)
	assert.Equal(t, domain.ChainTxStateTransmitted, row.State)
	assert.Equal(t, uint64(100), row.BlockNumber)
	assert.NotEmpty(t, row.Meta)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, row.ID, stored.ID)
}

func TestRecordUnknownHashLeavesNoRecord(t *testing.T) {
	tracker, st, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(nil, nil)

	_, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.ErrorIs(t, err, domain.ErrGateway)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestRecordIdempotent(t *testing.T) {
	tracker, _, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil).Times(2)

	first, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)
	second, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestSyncStateAdvancesThroughThresholds(t *testing.T) {
	tracker, st, gw := newTracker(t)
	ctx := context.Background()

	// Recorded from a submission receipt, so no inclusion data yet.
	row, err := tracker.RecordSubmitted(ctx, &gateway.Receipt{
		TxHash:   txHash,
		From:     "0xaaaa000000000000000000000000000000000001",
		To:       "0x1111000000000000000000000000000000000011",
		Nonce:    7,
		Value:    decimal.Zero,
		Gas:      90000,
		GasPrice: decimal.NewFromInt(1000000000),
	}, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)
	assert.Nil(t, row.BlockHash)

	// Depth 11: confirmed but nowhere near finalized.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	syncNoError(t, tracker, ctx)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateConfirmed, stored.State)
	require.NotNil(t, stored.BlockHash)
	assert.Equal(t, uint64(100), stored.BlockNumber)

	// Depth 64: finalized.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(163), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	syncNoError(t, tracker, ctx)

	stored, err = st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateFinalized, stored.State)

	// Finalized records drop out of the sweep entirely.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(200), nil)
	syncNoError(t, tracker, ctx)
}

func TestSyncStateJumpsStraightToFinalized(t *testing.T) {
	tracker, st, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	_, err := tracker.Record(ctx, txHash, domain.ChainTxTypeChange, nil)
	require.NoError(t, err)

	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(500), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	syncNoError(t, tracker, ctx)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateFinalized, stored.State)
}

func TestSyncStateNeverMovesBackward(t *testing.T) {
	tracker, st, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	_, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)

	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	syncNoError(t, tracker, ctx)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	require.Equal(t, domain.ChainTxStateConfirmed, stored.State)

	// A reorg moved the transaction to a shallower block. The inclusion data
	// follows, the state does not.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(108), nil)
	syncNoError(t, tracker, ctx)

	stored, err = st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateConfirmed, stored.State)
	assert.Equal(t, uint64(108), stored.BlockNumber)
}

func TestSyncStateFilters(t *testing.T) {
	tracker, _, gw := newTracker(t)
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	_, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)

	// Sender address matches the tracked transaction.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	synced, err := tracker.SyncState(ctx, "0xaaaa000000000000000000000000000000000001", "")
	require.NoError(t, err)
	require.Len(t, synced, 1)
	assert.Equal(t, txHash, synced[0].Hash)
	assert.Equal(t, domain.ChainTxStateConfirmed, synced[0].State)

	// A filter that matches nothing is an error, not an empty sweep.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	_, err = tracker.SyncState(ctx, "0xdead000000000000000000000000000000000000", "")
	require.ErrorIs(t, err, domain.ErrNoMatch)

	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(110), nil)
	_, err = tracker.SyncState(ctx, "", domain.ChainTxTypeChange)
	require.ErrorIs(t, err, domain.ErrNoMatch)
}

func TestSyncStateSkipsPendingAndUnknown(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockChainGateway(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	st := store.NewMemoryStore()
	tracker := chaintx.New(st, gw, notifier, chaintx.Config{
		BlocksToConfirm:  6,
		BlocksToFinalize: 64,
	})
	ctx := context.Background()

	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(includedTx(100), nil)
	_, err := tracker.Record(ctx, txHash, domain.ChainTxTypeTransfer, nil)
	require.NoError(t, err)

	// Unknown to the node: flagged for the operator, left alone.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(500), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(nil, nil)
	notifier.EXPECT().TrackedTransactionMissing(ctx, gomock.Any()).
		Do(func(_ context.Context, tx *domain.BlockchainTransaction) {
			assert.Equal(t, txHash, tx.Hash)
		})
	syncNoError(t, tracker, ctx)

	stored, err := st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateTransmitted, stored.State)

	// Back in the mempool: no depth to measure yet.
	gw.EXPECT().GetBlockNumber(ctx).Return(uint64(500), nil)
	gw.EXPECT().GetTransactionByHash(ctx, txHash).Return(&gateway.ChainTxInfo{
		Hash:    txHash,
		Pending: true,
	}, nil)
	syncNoError(t, tracker, ctx)

	stored, err = st.GetBlockchainTransactionByHash(ctx, txHash)
	require.NoError(t, err)
	assert.Equal(t, domain.ChainTxStateTransmitted, stored.State)
}
