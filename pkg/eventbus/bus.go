package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/richxcame/risk-engine/pkg/logger"
	"go.uber.org/zap"
)

const defaultStreamName = "RISKENGINE"

var streamSubjects = []string{"risk.>", "fraud.>"}

// Config describes the NATS connection and the JetStream stream backing it.
type Config struct {
	URL        string
	Name       string
	StreamName string
	// MaxAge bounds how long unconsumed events are retained. Defaults to 72h.
	MaxAge time.Duration
	// MaxDeliver caps redeliveries per consumer. Defaults to 5.
	MaxDeliver int
}

func DefaultConfig() Config {
	return Config{URL: nats.DefaultURL, Name: "risk-engine", StreamName: defaultStreamName}
}

func (c Config) stream() string {
	if c.StreamName == "" {
		return defaultStreamName
	}
	return c.StreamName
}

func (c Config) maxAge() time.Duration {
	if c.MaxAge <= 0 {
		return 72 * time.Hour
	}
	return c.MaxAge
}

func (c Config) maxDeliver() int {
	if c.MaxDeliver <= 0 {
		return 5
	}
	return c.MaxDeliver
}

// Bus publishes and consumes events over a single JetStream stream.
type Bus struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  Config

	mu   sync.Mutex
	subs []jetstream.ConsumeContext
}

// New connects, reconnecting forever in the background, and creates or
// updates the stream.
func New(cfg Config) (*Bus, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("event bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) { logger.Info("event bus reconnected") }),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.stream(),
		Subjects:  streamSubjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.InterestPolicy,
		MaxAge:    cfg.maxAge(),
		Replicas:  1,
	}); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.stream(), err)
	}

	logger.Info("event bus connected", zap.String("url", cfg.URL), zap.String("stream", cfg.stream()))
	return &Bus{conn: nc, js: js, cfg: cfg}, nil
}

// Publish writes event to subject, deduplicated on event.ID.
func (b *Bus) Publish(ctx context.Context, subject string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("event_id", event.ID),
	)
	return nil
}

// Subscribe attaches handler to a durable consumer filtered on subject.
// consumerName must be stable across restarts so delivery resumes.
func (b *Bus) Subscribe(ctx context.Context, subject, consumerName string, handler HandlerFunc) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.cfg.stream(), jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    b.cfg.maxDeliver(),
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		deliver(ctx, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, cc)
	b.mu.Unlock()

	logger.Info("event consumer started", zap.String("subject", subject), zap.String("consumer", consumerName))
	return nil
}

// deliver terminates undecodable messages and naks on handler failure.
func deliver(ctx context.Context, msg jetstream.Msg, handler HandlerFunc) {
	event, err := decodeEvent(msg.Data())
	if err != nil {
		logger.Warn("dropping malformed event", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
		return
	}
	if err := handler(ctx, event); err != nil {
		logger.Warn("event handler failed, requesting redelivery",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type),
			zap.Error(err),
		)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

// Close stops consumers and drains the connection.
func (b *Bus) Close() {
	b.mu.Lock()
	for _, sub := range b.subs {
		sub.Stop()
	}
	b.subs = nil
	b.mu.Unlock()

	if b.conn != nil {
		_ = b.conn.Drain()
	}
	logger.Info("event bus closed")
}

func (b *Bus) Connected() bool {
	return b != nil && b.conn != nil && b.conn.IsConnected()
}
