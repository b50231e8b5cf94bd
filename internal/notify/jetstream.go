package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/communitypay/cc-ledger/internal/adapter"
	"github.com/communitypay/cc-ledger/internal/domain"
	"github.com/communitypay/cc-ledger/internal/logger"
)

// Config holds the configuration for the NATS JetStream notifier
type Config struct {
	URL            string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
}

type jetStreamNotifier struct {
	nc     adapter.NatsConn
	js     adapter.JetStream
	prefix string
}

// NewJetStream creates a notifier that publishes ledger events to NATS JetStream
func NewJetStream(cfg Config, natsJS adapter.NatsJetStream) (Notifier, error) {
	opts := []nats.Option{
		nats.Name(cfg.ConnectionName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, zap.String("message", "Disconnected from NATS"))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	nc, js, err := natsJS.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS and create JetStream: %w", err)
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "ledger"
	}

	return &jetStreamNotifier{nc: nc, js: js, prefix: prefix}, nil
}

func (n *jetStreamNotifier) TransactionUpdated(ctx context.Context, tx *domain.Transaction) {
	n.publish(ctx, fmt.Sprintf("%s.transactions.%s", n.prefix, tx.State), tx)
}

func (n *jetStreamNotifier) ChainTransactionUpdated(ctx context.Context, tx *domain.BlockchainTransaction) {
	n.publish(ctx, fmt.Sprintf("%s.chain.%s", n.prefix, tx.State), tx)
}

func (n *jetStreamNotifier) UnmanagedTransfer(ctx context.Context, event *domain.TransferEvent) {
	n.publish(ctx, fmt.Sprintf("%s.events.unmanaged", n.prefix), event)
}

func (n *jetStreamNotifier) TrackedTransactionMissing(ctx context.Context, tx *domain.BlockchainTransaction) {
	n.publish(ctx, fmt.Sprintf("%s.chain.missing", n.prefix), tx)
}

func (n *jetStreamNotifier) publish(ctx context.Context, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to marshal notification"), zap.String("subject", subject))
		return
	}

	if _, err := n.js.Publish(ctx, subject, data); err != nil {
		logger.ErrorCtx(ctx, err, zap.String("message", "Failed to publish notification"), zap.String("subject", subject))
	}
}

func (n *jetStreamNotifier) Close() {
	if n.nc == nil {
		return
	}

	n.nc.Close()
}
