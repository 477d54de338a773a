package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sensorwatch/internal/config"
	"sensorwatch/internal/model"
)

// MQTTNotifier publishes each alert as JSON to <topic>/<sensor>.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

func NewMQTTNotifier(cfg config.MQTTConfig, timeout time.Duration, logger *slog.Logger) (*MQTTNotifier, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("sensorwatch-%d", time.Now().UnixNano())
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(timeout)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		if logger != nil {
			logger.Warn("mqtt connection lost", "err", err)
		}
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connect to mqtt broker %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to mqtt broker %s: %w", cfg.Broker, err)
	}
	return &MQTTNotifier{client: client, topic: cfg.Topic, logger: logger}, nil
}

func (n *MQTTNotifier) Notify(ctx context.Context, alert model.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	topic := n.topic + "/" + alert.SensorName
	token := n.client.Publish(topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
