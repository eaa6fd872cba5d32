package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/404minds/obd-receiver/internal/types"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type AmqpConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
	RoutingKey   string // prefix, the device id is appended
}

// AmqpPublisher owns one connection and channel shared by every device
// connection.
type AmqpPublisher struct {
	cfg     AmqpConfig
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewAmqpPublisher(cfg AmqpConfig) (*AmqpPublisher, error) {
	p := &AmqpPublisher{cfg: cfg}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AmqpPublisher) connect() error {
	conn, err := amqp.DialConfig(p.cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return errors.Wrap(err, "dial rabbitmq")
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "open channel")
	}

	err = channel.ExchangeDeclare(
		p.cfg.Exchange,
		p.cfg.ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return errors.Wrap(err, "declare exchange")
	}

	p.mu.Lock()
	p.conn, p.channel = conn, channel
	p.mu.Unlock()

	go p.watch(conn)
	logger.Info("rabbitmq connected", zap.String("exchange", p.cfg.Exchange))
	return nil
}

// watch reconnects once the broker drops the connection.
func (p *AmqpPublisher) watch(conn *amqp.Connection) {
	amqpErr, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok || amqpErr == nil {
		return
	}
	logger.Warn("rabbitmq connection closed", zap.Error(amqpErr))

	for attempt := 1; ; attempt++ {
		time.Sleep(time.Duration(min(attempt, 10)) * time.Second)
		if err := p.connect(); err != nil {
			logger.Warn("rabbitmq reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return
	}
}

func (p *AmqpPublisher) routingKey(deviceID string) string {
	return fmt.Sprintf("%s.%s", p.cfg.RoutingKey, deviceID)
}

func (p *AmqpPublisher) Publish(ctx context.Context, status types.DeviceStatus) error {
	body, err := json.Marshal(status)
	if err != nil {
		return errors.Wrap(err, "marshal device status")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.channel == nil || p.channel.IsClosed() {
		return errors.New("rabbitmq channel not ready")
	}

	return p.channel.PublishWithContext(ctx,
		p.cfg.Exchange,
		p.routingKey(status.DeviceID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    status.ReceivedAt,
			Body:         body,
		},
	)
}

func (p *AmqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

type AmqpStore struct {
	queue
	publisher *AmqpPublisher
}

func NewAmqpStore(publisher *AmqpPublisher) *AmqpStore {
	return &AmqpStore{queue: newQueue(), publisher: publisher}
}

func (s *AmqpStore) Process(ctx context.Context) {
	s.drain(ctx, "amqp", s.publisher.Publish)
}
