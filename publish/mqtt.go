package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mklimuk/lightning/detector"
)

const connectTimeout = 10 * time.Second

var _ detector.Sink = &MQTT{}

// MQTT publishes events to <topic>/<kind>.
type MQTT struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

func NewMQTT(broker, clientID, topic string, logger *slog.Logger) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		})
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("could not connect to mqtt broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("could not connect to mqtt broker %s: %w", broker, err)
	}
	logger.Info("connected to mqtt broker", "broker", broker, "topic", topic)
	return newMQTT(client, topic, logger), nil
}

func newMQTT(client mqtt.Client, topic string, logger *slog.Logger) *MQTT {
	return &MQTT{client: client, topic: topic, logger: logger}
}

func (m *MQTT) Publish(ctx context.Context, ev detector.Event) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	topic := m.topic + "/" + ev.Kind.String()
	token := m.client.Publish(topic, 1, false, payload)
	select {
	case <-ctx.Done():
		return fmt.Errorf("could not publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("could not publish to %s: %w", topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	if !m.client.IsConnected() {
		return errors.New("mqtt client not connected")
	}
	m.client.Disconnect(250)
	return nil
}
