package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"alertmonitor/internal/cache"
	"alertmonitor/internal/database"
	"alertmonitor/internal/logger"
	"alertmonitor/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertsChannel is the Redis channel triggered alerts are published on. The
// alerts API subscribes to it and fans the messages out over SSE.
const AlertsChannel = "price_alerts"

// AlertMessage is the realtime payload published for a triggered alert.
type AlertMessage struct {
	UserID    string  `json:"user_id"`
	Symbol    string  `json:"symbol"`
	Condition string  `json:"condition"`
	Target    float64 `json:"target_price"`
	Price     float64 `json:"current_price"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`
}

// TriggerMessage builds the notification payload for a triggered alert.
func TriggerMessage(alert *models.Alert, price float64, at time.Time) AlertMessage {
	return AlertMessage{
		UserID:    alert.UserID,
		Symbol:    alert.Symbol,
		Condition: string(alert.Condition),
		Target:    alert.TargetPrice,
		Price:     price,
		Title:     fmt.Sprintf("Price alert: %s", alert.Symbol),
		Message: fmt.Sprintf("%s is %s your target of %.2f (current price %.2f)",
			alert.Symbol, alert.Condition, alert.TargetPrice, price),
		Timestamp: at.Format(time.RFC3339),
	}
}

// Notifier dispatches user notifications: a persisted record in the
// notifications table plus a realtime publish on the Redis alerts channel.
type Notifier struct {
	records *database.NotificationStore
}

func NewNotifier(records *database.NotificationStore) *Notifier {
	return &Notifier{records: records}
}

// Send dispatches a notification to a user. The persisted record is
// best-effort; a failure there does not stop the realtime publish.
func (n *Notifier) Send(ctx context.Context, msg AlertMessage) error {
	if n.records != nil {
		record := &models.Notification{
			ID:        uuid.New().String(),
			UserID:    msg.UserID,
			Title:     msg.Title,
			Message:   msg.Message,
			Type:      "alert",
			CreatedAt: time.Now().UTC(),
		}
		if err := n.records.Create(ctx, record); err != nil {
			logger.Log.Warn("Failed to persist notification record",
				zap.String("user_id", msg.UserID),
				zap.Error(err),
			)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := cache.PublishMessage(AlertsChannel, string(payload)); err != nil {
		return err
	}

	logger.Log.Info("Alert notification published",
		zap.String("user_id", msg.UserID),
		zap.String("symbol", msg.Symbol),
	)
	return nil
}
