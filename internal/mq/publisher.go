package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/controlhub/realtime-gateway/internal/protocol"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AlertNotification is the event published to the notification bus for
// every alert the gateway raises. Downstream workers turn these into
// emails, pages or webhooks.
type AlertNotification struct {
	AlertID   string `json:"alert_id"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	Message   string `json:"message"`
	DeviceID  string `json:"device_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Publisher pushes alert notifications to a topic exchange.
type Publisher struct {
	conn      *Connection
	channel   *amqp.Channel
	exchange  string
	keyPrefix string
	logger    *zap.Logger
}

// NewPublisher declares the notification exchange and opens a channel
// on it.
func NewPublisher(conn *Connection, exchange, keyPrefix string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		conn:      conn,
		channel:   ch,
		exchange:  exchange,
		keyPrefix: keyPrefix,
		logger:    logger,
	}, nil
}

// NotifyAlert publishes one alert notification, routed by severity so
// consumers can bind to only the levels they page on.
func (p *Publisher) NotifyAlert(ctx context.Context, alert protocol.AlertData) error {
	event := AlertNotification{
		AlertID:   alert.ID,
		Type:      alert.Type,
		Severity:  alert.Severity,
		Message:   alert.Message,
		DeviceID:  alert.DeviceID,
		Timestamp: alert.Timestamp,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	routingKey := p.keyPrefix + "." + alert.Severity
	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.Debug("published alert notification",
		zap.String("routing_key", routingKey),
		zap.String("alert_id", alert.ID),
	)

	return nil
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
