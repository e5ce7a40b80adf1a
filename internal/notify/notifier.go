package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/controlhub/realtime-gateway/internal/mq"
	"go.uber.org/zap"
)

// Notifier turns alert notifications from the bus into outbound
// messages. Delivery is a logged stub; production deployments plug an
// email or webhook provider in behind Send.
type Notifier struct {
	recipient string
	logger    *zap.Logger
}

// NewNotifier creates a notifier targeting the configured recipient.
func NewNotifier(recipient string, logger *zap.Logger) *Notifier {
	return &Notifier{recipient: recipient, logger: logger}
}

// ProcessMessage is the consumer handler: decode, format, send.
func (n *Notifier) ProcessMessage(ctx context.Context, body []byte) error {
	var event mq.AlertNotification
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}
	return n.Send(ctx, event)
}

// Send formats and dispatches one notification.
func (n *Notifier) Send(ctx context.Context, event mq.AlertNotification) error {
	subject := fmt.Sprintf("IoT Alert: %s", strings.ToUpper(strings.ReplaceAll(event.Type, "_", " ")))

	n.logger.Info("sending alert notification",
		zap.String("to", n.recipient),
		zap.String("subject", subject),
		zap.String("severity", event.Severity),
		zap.String("alert_id", event.AlertID),
		zap.String("device_id", event.DeviceID),
		zap.String("message", event.Message),
	)

	return nil
}
