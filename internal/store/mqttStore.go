package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/404minds/obd-receiver/internal/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type MqttConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// MqttPublisher publishes every record to <prefix>/<device id>/status.
type MqttPublisher struct {
	client mqtt.Client
	cfg    MqttConfig
}

func NewMqttPublisher(cfg MqttConfig) (*MqttPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(time.Minute)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("mqtt client connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "connect to mqtt broker")
	}
	return &MqttPublisher{client: client, cfg: cfg}, nil
}

func statusTopic(prefix, deviceID string) string {
	return fmt.Sprintf("%s/%s/status", prefix, deviceID)
}

func (p *MqttPublisher) Publish(ctx context.Context, status types.DeviceStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return errors.Wrap(err, "marshal device status")
	}

	token := p.client.Publish(statusTopic(p.cfg.TopicPrefix, status.DeviceID), p.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MqttPublisher) Close() {
	p.client.Disconnect(250)
}

type MqttStore struct {
	queue
	publisher *MqttPublisher
}

func NewMqttStore(publisher *MqttPublisher) *MqttStore {
	return &MqttStore{queue: newQueue(), publisher: publisher}
}

func (s *MqttStore) Process(ctx context.Context) {
	s.drain(ctx, "mqtt", s.publisher.Publish)
}
