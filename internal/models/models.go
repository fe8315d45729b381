package models

import (
	"time"
)

// AssetType selects the price source an alert is evaluated against.
type AssetType string

const (
	AssetCrypto AssetType = "crypto"
	AssetStock  AssetType = "stock"
)

// AlertCondition is the comparison direction of an alert threshold.
type AlertCondition string

const (
	ConditionAbove AlertCondition = "above"
	ConditionBelow AlertCondition = "below"
)

// Alert represents a price alert for a cryptocurrency or stock symbol.
// Alerts are single-shot: once triggered they are deactivated and never
// re-armed automatically.
type Alert struct {
	ID          string         `json:"id" db:"id"`
	UserID      string         `json:"user_id" db:"user_id"`
	Symbol      string         `json:"symbol" db:"symbol"`
	AssetType   AssetType      `json:"asset_type" db:"asset_type"`
	TargetPrice float64        `json:"target_price" db:"target_price"`
	Condition   AlertCondition `json:"condition" db:"condition"`
	IsActive    bool           `json:"is_active" db:"is_active"`
	TriggeredAt *time.Time     `json:"triggered_at,omitempty" db:"triggered_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Pending reports whether the alert is still eligible for evaluation.
func (a *Alert) Pending() bool {
	return a.IsActive && a.TriggeredAt == nil
}

// Satisfied reports whether the alert condition holds for the given price.
// Both directions are boundary-inclusive.
func (a *Alert) Satisfied(price float64) bool {
	switch a.Condition {
	case ConditionAbove:
		return price >= a.TargetPrice
	case ConditionBelow:
		return price <= a.TargetPrice
	default:
		return false
	}
}

// PriceSnapshot is one observation of a symbol's market state, logged to the
// shared price_history table.
type PriceSnapshot struct {
	Symbol     string    `json:"symbol" db:"symbol"`
	Price      float64   `json:"price" db:"price"`
	Change24h  float64   `json:"change_24h" db:"change_24h"`
	Volume24h  float64   `json:"volume_24h" db:"volume_24h"`
	CapturedAt time.Time `json:"captured_at" db:"captured_at"`
}

// Notification is a persisted record of a dispatched user notification.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Type      string    `json:"type" db:"type"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
