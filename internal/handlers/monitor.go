package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"alertmonitor/internal/logger"
	"alertmonitor/internal/monitor"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// AlertEvaluator runs one evaluation pass over all pending alerts.
type AlertEvaluator interface {
	EvaluateAlerts(ctx context.Context) (monitor.Summary, error)
}

// MonitorResponse is the JSON body returned by the run endpoint.
type MonitorResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	TriggeredAlerts int    `json:"triggeredAlerts"`
}

// MonitorErrorResponse is returned when the pass could not run at all.
type MonitorErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MonitorAPI exposes the evaluator over HTTP for external schedulers.
type MonitorAPI struct {
	evaluator AlertEvaluator
}

func NewMonitorAPI(evaluator AlertEvaluator) *MonitorAPI {
	return &MonitorAPI{evaluator: evaluator}
}

// RunHandler triggers one evaluation pass. No request body is required.
func (api *MonitorAPI) RunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "RunMonitorHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	summary, err := api.evaluator.EvaluateAlerts(ctx)
	if err != nil {
		logger.Log.Error("Evaluation pass failed",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(MonitorErrorResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	logger.Log.Info("Evaluation pass completed",
		zap.String("trace_id", traceID),
		zap.Int("examined", summary.Examined),
		zap.Int("triggered", summary.Triggered),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(MonitorResponse{
		Success:         true,
		Message:         fmt.Sprintf("Examined %d alerts", summary.Examined),
		TriggeredAlerts: summary.Triggered,
	})
}
