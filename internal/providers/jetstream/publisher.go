package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/nats-io/nats.go"
	natsjs "github.com/nats-io/nats.go/jetstream"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/muzeer/rewards/internal/adapter"
	"github.com/muzeer/rewards/internal/logger"
	"github.com/muzeer/rewards/internal/messaging"
)

// Config holds the configuration for NATS JetStream connection
type Config struct {
	URL            string
	StreamName     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectionName string
	PublishTimeout time.Duration
	PoolSize       int
	QueueSize      int
}

// envelope is the wire shape of one published ledger event
type envelope struct {
	ID string `json:"id"`
	messaging.LedgerEvent
}

type publisher struct {
	nc             adapter.NatsConn
	js             adapter.JetStream
	streamName     string
	publishTimeout time.Duration
	pool           pond.Pool
}

// NewPublisher connects to NATS, ensures the ledger stream exists, and
// returns a publisher that hands events to a bounded worker pool. Callers
// never block on broker round-trips.
func NewPublisher(ctx context.Context, cfg Config, natsJS adapter.NatsJetStream) (messaging.Publisher, error) {
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

	if _, err := js.CreateOrUpdateStream(ctx, natsjs.StreamConfig{
		Name:     cfg.StreamName,
		Subjects: []string{cfg.StreamName + ".ledger.>"},
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	publishTimeout := cfg.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = 2 * time.Second
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 8
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	return &publisher{
		nc:             nc,
		js:             js,
		streamName:     cfg.StreamName,
		publishTimeout: publishTimeout,
		pool:           pond.NewPool(poolSize, pond.WithQueueSize(queueSize), pond.WithNonBlocking(true)),
	}, nil
}

// PublishLedgerEvent queues one event for delivery. Dropped on a full queue
// or broker failure; the ledger row is already durable either way.
func (p *publisher) PublishLedgerEvent(ctx context.Context, event messaging.LedgerEvent) {
	env := envelope{
		ID:          ulid.Make().String(),
		LedgerEvent: event,
	}

	p.pool.Go(func() {
		data, err := json.Marshal(env)
		if err != nil {
			logger.Error(err, zap.String("message", "Failed to marshal ledger event"))
			return
		}

		subject := fmt.Sprintf("%s.ledger.%s", p.streamName, env.Type)

		pubCtx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
		defer cancel()

		if _, err := p.js.Publish(pubCtx, subject, data); err != nil {
			logger.Error(err, zap.String("message", "Failed to publish ledger event"),
				zap.String("subject", subject), zap.String("event_id", env.ID))
		}
	})
}

// Close drains queued events and closes the NATS connection
func (p *publisher) Close() {
	p.pool.StopAndWait()
	if p.nc != nil {
		p.nc.Close()
	}
}
