package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"fall-detector-go/internal/config"
	"fall-detector-go/pkg/models"
)

const (
	mqttQoS            = 1
	mqttPublishTimeout = 2 * time.Second
)

// MQTTNotifier публикует рекомендации с флагом retained,
// так что новый подписчик сразу получает последнюю
type MQTTNotifier struct {
	client mqtt.Client
	prefix string
}

// ConnectMQTT подключается к брокеру с автоматическим переподключением
func ConnectMQTT(cfg *config.Config, logger *logrus.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTT.Broker))
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Infof("Подключено к MQTT брокеру %s", cfg.MQTT.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warnf("Потеряно соединение с MQTT брокером: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	return client, nil
}

// NewMQTTNotifier создает получателя поверх подключенного клиента
func NewMQTTNotifier(client mqtt.Client, topicPrefix string) *MQTTNotifier {
	return &MQTTNotifier{client: client, prefix: topicPrefix}
}

// Topic топик рекомендаций сессии: {prefix}/sessions/{id}/advisory
func (n *MQTTNotifier) Topic(sessionID string) string {
	return fmt.Sprintf("%s/sessions/%s/advisory", n.prefix, sessionID)
}

func (n *MQTTNotifier) Notify(_ context.Context, adv models.Advisory) error {
	if !n.client.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(adv)
	if err != nil {
		return fmt.Errorf("failed to marshal advisory: %w", err)
	}

	token := n.client.Publish(n.Topic(adv.SessionID), mqttQoS, true, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}
