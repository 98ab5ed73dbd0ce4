package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	createAlertsTableSQL = `CREATE TABLE IF NOT EXISTS alerts (
        id         BIGSERIAL PRIMARY KEY,
        fired_at   TIMESTAMPTZ NOT NULL,
        symbol     TEXT NOT NULL DEFAULT '',
        changes    JSONB NOT NULL,
        message    TEXT NOT NULL DEFAULT '',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS alerts_fired_at_idx ON alerts (fired_at);`

	insertAlertSQL = `INSERT INTO alerts (
        fired_at,
        symbol,
        changes,
        message
    ) VALUES (
        $1,$2,$3,$4
    )
    RETURNING id, created_at;`

	listRecentAlertsSQL = `SELECT
        id,
        fired_at,
        symbol,
        changes,
        message,
        created_at
    FROM alerts
    ORDER BY fired_at DESC
    LIMIT $1;`

	listAlertsBetweenSQL = `SELECT
        id,
        fired_at,
        symbol,
        changes,
        message,
        created_at
    FROM alerts
    WHERE fired_at >= $1
      AND fired_at < $2
    ORDER BY fired_at;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE fired_at < $1;`
)

// AlertStore abstracts alert audit persistence.
type AlertStore interface {
	InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error)
}

// EnsureSchema creates the alerts table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, createAlertsTableSQL); execErr != nil {
		return fmt.Errorf("ensure alerts schema: %w", execErr)
	}
	return nil
}

// InsertAlert records a fired alert.
func (s *Store) InsertAlert(ctx context.Context, rec AlertRecord) (AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return AlertRecord{}, err
	}

	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("encode alert changes: %w", err)
	}

	if scanErr := pool.QueryRow(
		ctx,
		insertAlertSQL,
		rec.FiredAt,
		rec.Symbol,
		changes,
		rec.Message,
	).Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return AlertRecord{}, fmt.Errorf("insert alert: %w", scanErr)
	}

	return rec, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		rec, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// ListAlertsBetween lists alerts within [from, to).
func (s *Store) ListAlertsBetween(ctx context.Context, from, to time.Time) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAlertsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list alerts between: %w", queryErr)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows.Scan)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanAlert(scan func(...any) error) (AlertRecord, error) {
	var rec AlertRecord
	var changes []byte

	if err := scan(
		&rec.ID,
		&rec.FiredAt,
		&rec.Symbol,
		&changes,
		&rec.Message,
		&rec.CreatedAt,
	); err != nil {
		return AlertRecord{}, err
	}

	if err := json.Unmarshal(changes, &rec.Changes); err != nil {
		return AlertRecord{}, fmt.Errorf("decode alert changes: %w", err)
	}

	return rec, nil
}
