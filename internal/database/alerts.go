package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"alertmonitor/internal/models"
)

// ErrAlertNotFound is returned when an alert id does not exist.
var ErrAlertNotFound = errors.New("alert not found")

const alertColumns = `id, user_id, symbol, asset_type, target_price, condition, is_active, triggered_at, created_at, updated_at`

// AlertStore provides access to the alerts table.
type AlertStore struct {
	db *sql.DB
}

// NewAlertStore creates an AlertStore on top of an open connection pool.
func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// Create inserts a new alert
func (s *AlertStore) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		alert.ID,
		alert.UserID,
		alert.Symbol,
		alert.AssetType,
		alert.TargetPrice,
		alert.Condition,
		alert.IsActive,
		alert.TriggeredAt,
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert %s: %w", alert.ID, err)
	}

	return nil
}

// GetByID retrieves an alert by its ID
func (s *AlertStore) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE id = $1
	`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}

	return alert, nil
}

// GetByUserID retrieves all alerts owned by a user
func (s *AlertStore) GetByUserID(ctx context.Context, userID string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query alerts by user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetBySymbol retrieves all alerts for a specific symbol
func (s *AlertStore) GetBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE symbol = $1
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query alerts by symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// GetAll retrieves all alerts
func (s *AlertStore) GetAll(ctx context.Context) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query all alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// Pending retrieves the alerts still eligible for evaluation: active and
// never triggered.
func (s *AlertStore) Pending(ctx context.Context) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE is_active = TRUE AND triggered_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query pending alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// PendingBySymbol retrieves the pending alerts watching one symbol.
func (s *AlertStore) PendingBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE symbol = $1 AND is_active = TRUE AND triggered_at IS NULL
		ORDER BY created_at
	`

	rows, err := s.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("query pending alerts for %s: %w", symbol, err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// MarkTriggered consumes an alert: sets triggered_at and deactivates it.
// The update is conditional on triggered_at still being NULL, so a
// concurrent pass that already consumed the alert makes this a no-op.
// Returns true when this call actually transitioned the alert.
func (s *AlertStore) MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET triggered_at = $1, is_active = FALSE, updated_at = $1
		WHERE id = $2 AND triggered_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("mark alert %s triggered: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected == 1, nil
}

// Update modifies an existing alert's symbol, threshold and condition
func (s *AlertStore) Update(ctx context.Context, alert *models.Alert) error {
	query := `
		UPDATE alerts
		SET symbol = $1, asset_type = $2, target_price = $3, condition = $4, is_active = $5, updated_at = $6
		WHERE id = $7
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		alert.Symbol,
		alert.AssetType,
		alert.TargetPrice,
		alert.Condition,
		alert.IsActive,
		alert.UpdatedAt,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", alert.ID, err)
	}

	return nil
}

// Delete removes an alert by ID
func (s *AlertStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM alerts WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete alert %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAlertNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var triggeredAt sql.NullTime

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Symbol,
		&alert.AssetType,
		&alert.TargetPrice,
		&alert.Condition,
		&alert.IsActive,
		&triggeredAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if triggeredAt.Valid {
		t := triggeredAt.Time
		alert.TriggeredAt = &t
	}

	return &alert, nil
}

// Helper function to scan alert rows
func scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert

	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}
