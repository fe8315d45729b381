package database

import (
	"context"
	"database/sql"
	"fmt"

	"alertmonitor/internal/models"
)

// PriceStore appends observations to the shared price_history table. The
// table is owned by the ingestion pipeline; the monitor only logs the prices
// it fetched during a pass.
type PriceStore struct {
	db *sql.DB
}

func NewPriceStore(db *sql.DB) *PriceStore {
	return &PriceStore{db: db}
}

// Record appends one price observation
func (s *PriceStore) Record(ctx context.Context, snap *models.PriceSnapshot) error {
	query := `
		INSERT INTO price_history (symbol, price, change_24h, volume_24h, captured_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		snap.Symbol,
		snap.Price,
		snap.Change24h,
		snap.Volume24h,
		snap.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("record price for %s: %w", snap.Symbol, err)
	}

	return nil
}
