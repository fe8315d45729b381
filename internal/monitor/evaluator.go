package monitor

import (
	"context"
	"fmt"
	"time"

	"alertmonitor/internal/logger"
	"alertmonitor/internal/models"
	"alertmonitor/internal/notify"

	"go.uber.org/zap"
)

// AlertSource is the subset of the alert store the evaluator needs.
type AlertSource interface {
	Pending(ctx context.Context) ([]*models.Alert, error)
	MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error)
}

// PriceSource returns current market data for a symbol.
type PriceSource interface {
	GetTicker(ctx context.Context, symbol string) (*models.PriceSnapshot, error)
}

// Notifier dispatches a notification for a triggered alert.
type Notifier interface {
	Send(ctx context.Context, msg notify.AlertMessage) error
}

// SnapshotRecorder logs fetched prices to the shared price history.
type SnapshotRecorder interface {
	Record(ctx context.Context, snap *models.PriceSnapshot) error
}

// Summary is the result of one evaluation pass.
type Summary struct {
	Examined  int `json:"examined"`
	Triggered int `json:"triggered"`
}

// Evaluator runs single-shot price alerts against fresh market prices. Each
// pass is stateless: all state lives in the alert store, so passes can be
// driven by any scheduler without coordination beyond not overlapping.
type Evaluator struct {
	alerts    AlertSource
	prices    PriceSource
	notifier  Notifier
	snapshots SnapshotRecorder

	now func() time.Time
}

// NewEvaluator wires an evaluator. snapshots may be nil to skip price-history
// logging.
func NewEvaluator(alerts AlertSource, prices PriceSource, notifier Notifier, snapshots SnapshotRecorder) *Evaluator {
	return &Evaluator{
		alerts:    alerts,
		prices:    prices,
		notifier:  notifier,
		snapshots: snapshots,
		now:       time.Now,
	}
}

// EvaluateAlerts performs one complete evaluation pass.
//
// A failure to load the pending alerts fails the whole pass with zero side
// effects. Everything after that is scoped: a failed price fetch skips that
// symbol's alerts until the next pass, and a failed update or notification
// for one alert never blocks the rest of the batch.
func (e *Evaluator) EvaluateAlerts(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		passesTotal.Inc()
		passDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := e.alerts.Pending(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load pending alerts: %w", err)
	}

	summary := Summary{Examined: len(pending)}
	if len(pending) == 0 {
		return summary, nil
	}

	prices := e.fetchPrices(ctx, cryptoSymbols(pending))

	for _, alert := range pending {
		// Stock alerts are valid records but need a stock price source
		// this service does not have; they stay pending untouched.
		if alert.AssetType != models.AssetCrypto {
			continue
		}

		snap, ok := prices[alert.Symbol]
		if !ok {
			continue
		}

		if !alert.Satisfied(snap.Price) {
			continue
		}

		now := e.now().UTC()
		consumed, err := e.alerts.MarkTriggered(ctx, alert.ID, now)
		if err != nil {
			// Best effort: the trigger decision stands, so the
			// notification is still attempted.
			logger.Log.Error("Failed to mark alert triggered",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		} else if !consumed {
			// An overlapping pass consumed this alert first; it
			// already owns the notification.
			logger.Log.Info("Alert already consumed by another pass",
				zap.String("alert_id", alert.ID),
			)
			continue
		}

		summary.Triggered++
		alertsTriggeredTotal.Inc()

		if err := e.notifier.Send(ctx, notify.TriggerMessage(alert, snap.Price, now)); err != nil {
			logger.Log.Error("Failed to dispatch alert notification",
				zap.String("alert_id", alert.ID),
				zap.String("user_id", alert.UserID),
				zap.Error(err),
			)
		}
	}

	return summary, nil
}

// fetchPrices retrieves current prices for each symbol, one request at a
// time. Failed symbols are logged and left out of the result.
func (e *Evaluator) fetchPrices(ctx context.Context, symbols []string) map[string]*models.PriceSnapshot {
	prices := make(map[string]*models.PriceSnapshot, len(symbols))

	for _, symbol := range symbols {
		snap, err := e.prices.GetTicker(ctx, symbol)
		if err != nil {
			priceFetchFailuresTotal.WithLabelValues(symbol).Inc()
			logger.Log.Warn("Price fetch failed, skipping symbol this pass",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}
		prices[symbol] = snap

		if e.snapshots != nil {
			if err := e.snapshots.Record(ctx, snap); err != nil {
				logger.Log.Warn("Failed to record price snapshot",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
			}
		}
	}

	return prices
}

// cryptoSymbols returns the distinct crypto symbols among the pending
// alerts, in first-seen order.
func cryptoSymbols(alerts []*models.Alert) []string {
	seen := make(map[string]bool)
	var symbols []string

	for _, alert := range alerts {
		if alert.AssetType != models.AssetCrypto {
			continue
		}
		if seen[alert.Symbol] {
			continue
		}
		seen[alert.Symbol] = true
		symbols = append(symbols, alert.Symbol)
	}

	return symbols
}
