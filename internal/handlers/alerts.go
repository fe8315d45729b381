package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"alertmonitor/internal/cache"
	"alertmonitor/internal/database"
	"alertmonitor/internal/logger"
	"alertmonitor/internal/models"

	"github.com/google/uuid"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type CreateAlertRequest struct {
	UserID      string  `json:"user_id"`
	Symbol      string  `json:"symbol"`
	AssetType   string  `json:"asset_type,omitempty"`
	TargetPrice float64 `json:"target_price"`
	Condition   string  `json:"condition"`
}

type UpdateAlertRequest struct {
	Symbol      string   `json:"symbol,omitempty"`
	AssetType   string   `json:"asset_type,omitempty"`
	TargetPrice *float64 `json:"target_price,omitempty"`
	Condition   string   `json:"condition,omitempty"`
}

// AlertAPI serves the alert CRUD endpoints.
type AlertAPI struct {
	store    *database.AlertStore
	instance string
}

func NewAlertAPI(store *database.AlertStore, instance string) *AlertAPI {
	return &AlertAPI{store: store, instance: instance}
}

// Handle dispatches all alert operations based on the HTTP method
func (api *AlertAPI) Handle(w http.ResponseWriter, r *http.Request) {
	// Extract ID from path if present (for GET, PUT, DELETE on specific alert)
	// URL pattern: /alerts/{id}
	path := r.URL.Path
	pathParts := strings.Split(path, "/")

	// Root alerts endpoint
	if len(pathParts) <= 2 || pathParts[2] == "" {
		switch r.Method {
		case http.MethodGet:
			api.Browse(w, r)
		case http.MethodPost:
			api.Create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	alertID := pathParts[2]

	switch r.Method {
	case http.MethodGet:
		api.Get(w, r, alertID)
	case http.MethodPut, http.MethodPatch:
		api.Update(w, r, alertID)
	case http.MethodDelete:
		api.Delete(w, r, alertID)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Browse lists all alerts, optionally filtered by user_id or symbol
func (api *AlertAPI) Browse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "BrowseAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	cacheKey := generateCacheKey(r, "browse_alerts_")

	cached, err := cache.GetCache(ctx, cacheKey, "/alerts", api.instance)
	if err == nil && cached != "" {
		logger.Log.Info("Cache hit for /alerts",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	logger.Log.Info("Cache miss for /alerts, processing request",
		zap.String("trace_id", traceID),
		zap.String("cache_key", cacheKey),
	)

	userID := r.URL.Query().Get("user_id")
	symbol := r.URL.Query().Get("symbol")

	var alerts []*models.Alert
	var dbErr error

	if userID != "" {
		alerts, dbErr = api.store.GetByUserID(ctx, userID)
	} else if symbol != "" {
		alerts, dbErr = api.store.GetBySymbol(ctx, symbol)
	} else {
		alerts, dbErr = api.store.GetAll(ctx)
	}

	if dbErr != nil {
		logger.Log.Error("Failed to fetch alerts",
			zap.String("trace_id", traceID),
			zap.Error(dbErr),
		)
		http.Error(w, "Failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	response := Response{
		Message: "Alerts retrieved successfully",
		Data:    alerts,
	}

	respBytes, err := json.Marshal(response)
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to encode JSON response", http.StatusInternalServerError)
		return
	}

	if cacheErr := cache.SetCache(ctx, cacheKey, string(respBytes), 30*time.Second, "/alerts", api.instance); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// Create handles creating a new alert
func (api *AlertAPI) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "CreateAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Symbol == "" {
		http.Error(w, "Missing required fields: user_id, symbol", http.StatusBadRequest)
		return
	}

	if req.TargetPrice <= 0 {
		http.Error(w, "target_price must be a positive number", http.StatusBadRequest)
		return
	}

	condition := models.AlertCondition(req.Condition)
	if condition != models.ConditionAbove && condition != models.ConditionBelow {
		http.Error(w, `condition must be "above" or "below"`, http.StatusBadRequest)
		return
	}

	assetType := models.AssetCrypto
	if req.AssetType != "" {
		assetType = models.AssetType(req.AssetType)
		if assetType != models.AssetCrypto && assetType != models.AssetStock {
			http.Error(w, `asset_type must be "crypto" or "stock"`, http.StatusBadRequest)
			return
		}
	}

	now := time.Now().UTC()
	alert := &models.Alert{
		ID:          uuid.New().String(),
		UserID:      req.UserID,
		Symbol:      strings.ToUpper(req.Symbol),
		AssetType:   assetType,
		TargetPrice: req.TargetPrice,
		Condition:   condition,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := api.store.Create(ctx, alert); err != nil {
		logger.Log.Error("Failed to create alert",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Failed to create alert", http.StatusInternalServerError)
		return
	}

	// Invalidate cache for browse alerts
	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", api.instance)

	response := Response{
		Message: "Alert created successfully",
		Data:    alert,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}

// Get retrieves a specific alert by ID
func (api *AlertAPI) Get(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "GetAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	alert, err := api.store.GetByID(ctx, alertID)
	if err != nil {
		logger.Log.Error("Failed to fetch alert",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}

	response := Response{
		Message: "Alert retrieved successfully",
		Data:    alert,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Update updates an existing alert's symbol, threshold or condition.
// Triggered alerts are terminal and cannot be edited back to life.
func (api *AlertAPI) Update(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "UpdateAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	existing, err := api.store.GetByID(ctx, alertID)
	if err != nil {
		logger.Log.Error("Failed to fetch alert for update",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Alert not found", http.StatusNotFound)
		return
	}

	if existing.TriggeredAt != nil {
		http.Error(w, "Triggered alerts cannot be updated", http.StatusConflict)
		return
	}

	var req UpdateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Symbol != "" {
		existing.Symbol = strings.ToUpper(req.Symbol)
	}

	if req.AssetType != "" {
		assetType := models.AssetType(req.AssetType)
		if assetType != models.AssetCrypto && assetType != models.AssetStock {
			http.Error(w, `asset_type must be "crypto" or "stock"`, http.StatusBadRequest)
			return
		}
		existing.AssetType = assetType
	}

	if req.TargetPrice != nil {
		if *req.TargetPrice <= 0 {
			http.Error(w, "target_price must be a positive number", http.StatusBadRequest)
			return
		}
		existing.TargetPrice = *req.TargetPrice
	}

	if req.Condition != "" {
		condition := models.AlertCondition(req.Condition)
		if condition != models.ConditionAbove && condition != models.ConditionBelow {
			http.Error(w, `condition must be "above" or "below"`, http.StatusBadRequest)
			return
		}
		existing.Condition = condition
	}

	existing.UpdatedAt = time.Now().UTC()

	if err := api.store.Update(ctx, existing); err != nil {
		logger.Log.Error("Failed to update alert",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Failed to update alert", http.StatusInternalServerError)
		return
	}

	// Invalidate cache for browse alerts
	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", api.instance)

	response := Response{
		Message: "Alert updated successfully",
		Data:    existing,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Delete deletes an alert
func (api *AlertAPI) Delete(w http.ResponseWriter, r *http.Request, alertID string) {
	ctx := r.Context()
	tracer := otel.Tracer("alert-monitor")
	ctx, span := tracer.Start(ctx, "DeleteAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	if err := api.store.Delete(ctx, alertID); err != nil {
		if errors.Is(err, database.ErrAlertNotFound) {
			http.Error(w, "Alert not found", http.StatusNotFound)
			return
		}
		logger.Log.Error("Failed to delete alert",
			zap.String("trace_id", traceID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		http.Error(w, "Failed to delete alert", http.StatusInternalServerError)
		return
	}

	// Invalidate cache for browse alerts
	cache.InvalidateByPrefix(ctx, "browse_alerts_", "/alerts", api.instance)

	response := Response{
		Message: "Alert deleted successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func generateCacheKey(r *http.Request, prefix string) string {
	queryParams := r.URL.Query()
	var keys []string
	for k := range queryParams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var queryString []string
	for _, k := range keys {
		queryString = append(queryString, fmt.Sprintf("%s=%s", k, strings.Join(queryParams[k], ",")))
	}
	joinedParams := strings.Join(queryString, "&")

	hash := sha256.Sum256([]byte(joinedParams))
	return prefix + hex.EncodeToString(hash[:8])
}
