package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Capitan-Parrot/animal-detection/internal/models"
)

// UpsertSession records a (re)started session with zeroed counters. The
// heartbeat sent right after start overwrites them with the simulator totals.
func (d *Database) UpsertSession(ctx context.Context, session *models.Session) error {
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, state, frame_width, frame_height, ticks, detections, alerts, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, 0, 0, $5, $6)
			ON CONFLICT (id) DO UPDATE SET state = $2, frame_width = $3, frame_height = $4,
				ticks = 0, detections = 0, alerts = 0, updated_at = $6`,
		session.ID,
		session.State,
		session.FrameWidth,
		session.FrameHeight,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession returns nil, nil when the session does not exist.
func (d *Database) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, state, frame_width, frame_height, ticks, detections, alerts, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, sessionID)

	var s models.Session
	err := row.Scan(&s.ID, &s.State, &s.FrameWidth, &s.FrameHeight, &s.Ticks, &s.Detections, &s.Alerts, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // сессия не найдена - это не ошибка
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

// ListSessions returns sessions in the given state, newest first.
func (d *Database) ListSessions(ctx context.Context, state models.SessionState) ([]models.Session, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, state, frame_width, frame_height, ticks, detections, alerts, created_at, updated_at
		FROM sessions
		WHERE state = $1
		ORDER BY updated_at DESC
	`, state)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.State, &s.FrameWidth, &s.FrameHeight, &s.Ticks, &s.Detections, &s.Alerts, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func (d *Database) ChangeSessionState(ctx context.Context, sessionID string, state models.SessionState) error {
	_, err := d.DB.ExecContext(ctx,
		"UPDATE sessions SET state = $1, updated_at = $2 WHERE id = $3",
		state,
		time.Now().UTC(),
		sessionID,
	)
	return err
}

// UpdateSessionProgress stores the counters carried by a heartbeat.
func (d *Database) UpdateSessionProgress(ctx context.Context, hb models.Heartbeat) error {
	_, err := d.DB.ExecContext(ctx,
		"UPDATE sessions SET ticks = $1, detections = $2, alerts = $3, updated_at = $4 WHERE id = $5",
		hb.Ticks,
		hb.Detections,
		hb.Alerts,
		hb.TimeStamp,
		hb.SessionID,
	)
	return err
}
