package database

import (
	"context"
	"database/sql"
	"time"

	"alertmonitor/internal/logger"

	_ "github.com/lib/pq"
)

// InitDB opens the Postgres connection pool and verifies it is reachable.
func InitDB(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Log.Info("Database connection established")
	return db, nil
}
