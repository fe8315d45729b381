package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"alertmonitor/internal/logger"
	"alertmonitor/internal/models"
	"alertmonitor/internal/notify"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// ============================================================
// Fakes
// ============================================================

type fakeAlertSource struct {
	pending    []*models.Alert
	pendingErr error

	markErr  map[string]error
	consumed map[string]bool // MarkTriggered return when no error; default true

	marked map[string]time.Time
}

func (f *fakeAlertSource) Pending(ctx context.Context) ([]*models.Alert, error) {
	if f.pendingErr != nil {
		return nil, f.pendingErr
	}
	var out []*models.Alert
	for _, a := range f.pending {
		if a.Pending() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertSource) MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	if err := f.markErr[id]; err != nil {
		return false, err
	}
	if f.consumed != nil {
		if ok, present := f.consumed[id]; present && !ok {
			return false, nil
		}
	}
	if f.marked == nil {
		f.marked = make(map[string]time.Time)
	}
	f.marked[id] = at
	for _, a := range f.pending {
		if a.ID == id {
			t := at
			a.TriggeredAt = &t
			a.IsActive = false
		}
	}
	return true, nil
}

type fakePriceSource struct {
	prices map[string]float64
	errs   map[string]error

	fetches []string
}

func (f *fakePriceSource) GetTicker(ctx context.Context, symbol string) (*models.PriceSnapshot, error) {
	f.fetches = append(f.fetches, symbol)
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("no price for %s", symbol)
	}
	return &models.PriceSnapshot{Symbol: symbol, Price: price, CapturedAt: time.Now()}, nil
}

type fakeNotifier struct {
	sent []notify.AlertMessage
	err  error
}

func (f *fakeNotifier) Send(ctx context.Context, msg notify.AlertMessage) error {
	f.sent = append(f.sent, msg)
	return f.err
}

type fakeRecorder struct {
	snaps []*models.PriceSnapshot
	err   error
}

func (f *fakeRecorder) Record(ctx context.Context, snap *models.PriceSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snaps = append(f.snaps, snap)
	return nil
}

func pendingAlert(id, symbol string, condition models.AlertCondition, target float64) *models.Alert {
	return &models.Alert{
		ID:          id,
		UserID:      "user-" + id,
		Symbol:      symbol,
		AssetType:   models.AssetCrypto,
		TargetPrice: target,
		Condition:   condition,
		IsActive:    true,
	}
}

func newTestEvaluator(alerts *fakeAlertSource, prices *fakePriceSource, notifier *fakeNotifier) *Evaluator {
	return NewEvaluator(alerts, prices, notifier, nil)
}

// ============================================================
// Evaluator tests
// ============================================================

func TestEvaluateAlertsNoPending(t *testing.T) {
	alerts := &fakeAlertSource{}
	prices := &fakePriceSource{}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Examined != 0 || summary.Triggered != 0 {
		t.Errorf("expected empty summary, got %+v", summary)
	}
	if len(prices.fetches) != 0 {
		t.Errorf("expected no price fetches, got %v", prices.fetches)
	}
	if len(notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.sent))
	}
}

func TestEvaluateAlertsPendingLoadFailure(t *testing.T) {
	alerts := &fakeAlertSource{pendingErr: errors.New("connection refused")}
	prices := &fakePriceSource{}
	notifier := &fakeNotifier{}

	_, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(prices.fetches) != 0 {
		t.Errorf("expected no price fetches after load failure, got %v", prices.fetches)
	}
	if len(notifier.sent) != 0 {
		t.Error("expected no notifications after load failure")
	}
}

func TestEvaluateAlertsBoundaryInclusive(t *testing.T) {
	tests := []struct {
		name      string
		condition models.AlertCondition
		target    float64
		price     float64
		triggers  bool
	}{
		{"above triggers at exact target", models.ConditionAbove, 50000, 50000, true},
		{"above does not trigger just below target", models.ConditionAbove, 50000, 49999.99, false},
		{"above triggers past target", models.ConditionAbove, 50000, 50000.01, true},
		{"below triggers at exact target", models.ConditionBelow, 3000, 3000, true},
		{"below triggers under target", models.ConditionBelow, 3000, 2999, true},
		{"below does not trigger above target", models.ConditionBelow, 3000, 3000.01, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := pendingAlert("a1", "BTCUSDT", tt.condition, tt.target)
			alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
			prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": tt.price}}
			notifier := &fakeNotifier{}

			summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.triggers {
				if summary.Triggered != 1 {
					t.Errorf("expected 1 triggered, got %d", summary.Triggered)
				}
				if len(notifier.sent) != 1 {
					t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
				}
				msg := notifier.sent[0]
				if msg.Symbol != "BTCUSDT" || msg.Condition != string(tt.condition) || msg.Target != tt.target || msg.Price != tt.price {
					t.Errorf("notification payload mismatch: %+v", msg)
				}
				if alert.IsActive || alert.TriggeredAt == nil {
					t.Error("triggered alert should be deactivated with triggered_at set")
				}
			} else {
				if summary.Triggered != 0 {
					t.Errorf("expected 0 triggered, got %d", summary.Triggered)
				}
				if len(notifier.sent) != 0 {
					t.Errorf("expected no notifications, got %d", len(notifier.sent))
				}
				if !alert.Pending() {
					t.Error("untriggered alert must remain pending")
				}
			}
		})
	}
}

func TestEvaluateAlertsSetsEvaluationTime(t *testing.T) {
	alert := pendingAlert("a1", "ETHUSDT", models.ConditionBelow, 3000)
	alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
	prices := &fakePriceSource{prices: map[string]float64{"ETHUSDT": 2999}}
	notifier := &fakeNotifier{}

	evaluationTime := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := newTestEvaluator(alerts, prices, notifier)
	e.now = func() time.Time { return evaluationTime }

	summary, err := e.EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Triggered != 1 {
		t.Fatalf("expected 1 triggered, got %d", summary.Triggered)
	}
	if got := alerts.marked["a1"]; !got.Equal(evaluationTime) {
		t.Errorf("expected triggered_at %v, got %v", evaluationTime, got)
	}
	if alert.IsActive {
		t.Error("expected is_active=false after trigger")
	}
}

func TestEvaluateAlertsFetchFailureScopedToSymbol(t *testing.T) {
	failing := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100)
	healthy := pendingAlert("a2", "ETHUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{pending: []*models.Alert{failing, healthy}}
	prices := &fakePriceSource{
		prices: map[string]float64{"ETHUSDT": 150},
		errs:   map[string]error{"BTCUSDT": errors.New("upstream timeout")},
	}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("fetch failure must not fail the pass: %v", err)
	}

	if summary.Examined != 2 {
		t.Errorf("expected 2 examined, got %d", summary.Examined)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", summary.Triggered)
	}
	if !failing.Pending() {
		t.Error("alert on failed symbol must remain pending and untouched")
	}
	if _, marked := alerts.marked["a1"]; marked {
		t.Error("alert on failed symbol must not be marked")
	}
	if healthy.Pending() {
		t.Error("alert on healthy symbol should have triggered")
	}
}

func TestEvaluateAlertsStraddlingThresholds(t *testing.T) {
	hit := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 49500)
	miss := pendingAlert("a2", "BTCUSDT", models.ConditionBelow, 49000)
	alerts := &fakeAlertSource{pending: []*models.Alert{hit, miss}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 50000}}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected exactly 1 triggered, got %d", summary.Triggered)
	}
	if hit.Pending() {
		t.Error("satisfied alert should have triggered")
	}
	if !miss.Pending() {
		t.Error("unsatisfied alert must remain pending")
	}
}

func TestEvaluateAlertsSecondRunIsIdempotent(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 50000)
	alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 50000}}
	notifier := &fakeNotifier{}

	e := newTestEvaluator(alerts, prices, notifier)

	first, err := e.EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Triggered != 1 {
		t.Fatalf("expected first run to trigger, got %d", first.Triggered)
	}

	second, err := e.EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Examined != 0 || second.Triggered != 0 {
		t.Errorf("second run must be a no-op, got %+v", second)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("expected exactly 1 notification across both runs, got %d", len(notifier.sent))
	}
}

func TestEvaluateAlertsStockAlertsNotEvaluated(t *testing.T) {
	stock := pendingAlert("a1", "AAPL", models.ConditionAbove, 1)
	stock.AssetType = models.AssetStock
	crypto := pendingAlert("a2", "BTCUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{pending: []*models.Alert{stock, crypto}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 150, "AAPL": 999}}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, fetched := range prices.fetches {
		if fetched == "AAPL" {
			t.Error("stock symbols must not be fetched")
		}
	}
	if !stock.Pending() {
		t.Error("stock alert must remain pending")
	}
	if summary.Examined != 2 {
		t.Errorf("stock alerts still count as examined, got %d", summary.Examined)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", summary.Triggered)
	}
}

func TestEvaluateAlertsFetchesEachSymbolOnce(t *testing.T) {
	a1 := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100000)
	a2 := pendingAlert("a2", "BTCUSDT", models.ConditionBelow, 10)
	a3 := pendingAlert("a3", "ETHUSDT", models.ConditionAbove, 100000)
	alerts := &fakeAlertSource{pending: []*models.Alert{a1, a2, a3}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000}}
	notifier := &fakeNotifier{}

	if _, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(prices.fetches) != 2 {
		t.Errorf("expected 2 fetches for 2 distinct symbols, got %v", prices.fetches)
	}
}

func TestEvaluateAlertsLostRaceSkipsNotification(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{
		pending:  []*models.Alert{alert},
		consumed: map[string]bool{"a1": false},
	}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 150}}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Triggered != 0 {
		t.Errorf("alert consumed elsewhere must not count as triggered, got %d", summary.Triggered)
	}
	if len(notifier.sent) != 0 {
		t.Error("alert consumed elsewhere must not be re-notified")
	}
}

func TestEvaluateAlertsMarkFailureStillNotifies(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{
		pending: []*models.Alert{alert},
		markErr: map[string]error{"a1": errors.New("write failed")},
	}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 150}}
	notifier := &fakeNotifier{}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("mark failure must not fail the pass: %v", err)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", summary.Triggered)
	}
	if len(notifier.sent) != 1 {
		t.Errorf("notification must still be attempted after a mark failure, got %d", len(notifier.sent))
	}
}

func TestEvaluateAlertsNotificationFailureDoesNotRollBack(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 150}}
	notifier := &fakeNotifier{err: errors.New("redis down")}

	summary, err := newTestEvaluator(alerts, prices, notifier).EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("notification failure must not fail the pass: %v", err)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected 1 triggered, got %d", summary.Triggered)
	}
	if alert.Pending() {
		t.Error("alert stays consumed even when the notification fails")
	}
}

func TestEvaluateAlertsRecordsSnapshots(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100000)
	alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 50000}}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}

	e := NewEvaluator(alerts, prices, notifier, recorder)
	if _, err := e.EvaluateAlerts(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorder.snaps) != 1 {
		t.Fatalf("expected 1 snapshot recorded, got %d", len(recorder.snaps))
	}
	if recorder.snaps[0].Symbol != "BTCUSDT" || recorder.snaps[0].Price != 50000 {
		t.Errorf("snapshot mismatch: %+v", recorder.snaps[0])
	}
}

func TestEvaluateAlertsSnapshotFailureIsBestEffort(t *testing.T) {
	alert := pendingAlert("a1", "BTCUSDT", models.ConditionAbove, 100)
	alerts := &fakeAlertSource{pending: []*models.Alert{alert}}
	prices := &fakePriceSource{prices: map[string]float64{"BTCUSDT": 150}}
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{err: errors.New("history table full")}

	e := NewEvaluator(alerts, prices, notifier, recorder)
	summary, err := e.EvaluateAlerts(context.Background())
	if err != nil {
		t.Fatalf("snapshot failure must not fail the pass: %v", err)
	}
	if summary.Triggered != 1 {
		t.Errorf("expected alert to still trigger, got %d", summary.Triggered)
	}
}
