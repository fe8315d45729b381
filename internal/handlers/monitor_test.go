package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"alertmonitor/internal/logger"
	"alertmonitor/internal/monitor"

	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeEvaluator struct {
	summary monitor.Summary
	err     error
	calls   int
}

func (f *fakeEvaluator) EvaluateAlerts(ctx context.Context) (monitor.Summary, error) {
	f.calls++
	return f.summary, f.err
}

func TestRunHandlerSuccess(t *testing.T) {
	evaluator := &fakeEvaluator{summary: monitor.Summary{Examined: 5, Triggered: 2}}
	api := NewMonitorAPI(evaluator)

	req := httptest.NewRequest(http.MethodPost, "/monitor/run", nil)
	rec := httptest.NewRecorder()

	api.RunHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp MonitorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.TriggeredAlerts != 2 {
		t.Errorf("expected triggeredAlerts=2, got %d", resp.TriggeredAlerts)
	}
	if evaluator.calls != 1 {
		t.Errorf("expected 1 evaluation, got %d", evaluator.calls)
	}
}

func TestRunHandlerZeroPending(t *testing.T) {
	evaluator := &fakeEvaluator{summary: monitor.Summary{}}
	api := NewMonitorAPI(evaluator)

	req := httptest.NewRequest(http.MethodPost, "/monitor/run", nil)
	rec := httptest.NewRecorder()

	api.RunHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp MonitorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.TriggeredAlerts != 0 {
		t.Errorf("expected success with zero triggered, got %+v", resp)
	}
}

func TestRunHandlerEvaluationFailure(t *testing.T) {
	evaluator := &fakeEvaluator{err: errors.New("load pending alerts: connection refused")}
	api := NewMonitorAPI(evaluator)

	req := httptest.NewRequest(http.MethodPost, "/monitor/run", nil)
	rec := httptest.NewRecorder()

	api.RunHandler(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}

	var resp MonitorErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("expected success=false")
	}
	if resp.Error == "" {
		t.Error("expected error message in response")
	}
}

func TestRunHandlerMethodNotAllowed(t *testing.T) {
	evaluator := &fakeEvaluator{}
	api := NewMonitorAPI(evaluator)

	req := httptest.NewRequest(http.MethodDelete, "/monitor/run", nil)
	rec := httptest.NewRecorder()

	api.RunHandler(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
	if evaluator.calls != 0 {
		t.Error("evaluator must not run for disallowed methods")
	}
}
