// Package store persists emitted alerts to PostgreSQL for audit and replay.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/MohamedRouatbi/realtime-sports-scraper/internal/events"
)

// AlertRecord is one persisted alert row.
type AlertRecord struct {
	AlertID   string
	Type      string
	Severity  string
	MatchID   string
	Source    string
	Message   string
	Data      map[string]any
	CreatedAt time.Time
}

// DB wraps a database connection and provides alert history operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// NewDBWithConn wraps an existing connection. Used by tests.
func NewDBWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// InsertAlert persists one alert. Inserting the same alert ID twice is a
// no-op so redelivery cannot duplicate history.
func (db *DB) InsertAlert(ctx context.Context, alert *events.Alert) error {
	dataJSON, err := json.Marshal(alert.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal alert data: %w", err)
	}

	query := `
		INSERT INTO alerts (alert_id, type, severity, match_id, source, message, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (alert_id) DO NOTHING
	`
	_, err = db.conn.ExecContext(ctx, query,
		alert.ID,
		alert.Type,
		alert.Severity,
		alert.MatchID,
		alert.Source,
		alert.Message,
		string(dataJSON),
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	slog.Debug("Persisted alert",
		"alert_id", alert.ID,
		"type", alert.Type,
		"match_id", alert.MatchID,
	)
	return nil
}

// RecentAlerts returns up to limit alerts for a match, newest first.
func (db *DB) RecentAlerts(ctx context.Context, matchID string, limit int) ([]AlertRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT alert_id, type, severity, match_id, source, message, data, created_at
		FROM alerts
		WHERE match_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, matchID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var records []AlertRecord
	for rows.Next() {
		var rec AlertRecord
		var dataJSON sql.NullString
		if err := rows.Scan(
			&rec.AlertID,
			&rec.Type,
			&rec.Severity,
			&rec.MatchID,
			&rec.Source,
			&rec.Message,
			&dataJSON,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &rec.Data); err != nil {
				slog.Warn("Failed to unmarshal alert data JSON", "error", err, "alert_id", rec.AlertID)
				rec.Data = nil
			}
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}

	return records, nil
}
