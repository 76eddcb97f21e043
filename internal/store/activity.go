package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type ActivityStore struct {
	db DBTX
}

func NewActivityStore(db DBTX) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Log(ctx context.Context, userID int64, action, details string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		userID, action, details, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

// List returns the most recent activity across the platform. A positive
// userID limits it to one user.
func (s *ActivityStore) List(ctx context.Context, userID int64, limit int) ([]model.ActivityLog, error) {
	query := `SELECT a.id, a.user_id, u.email, a.action, a.details, a.created_at
		FROM activity_logs a JOIN users u ON u.id = a.user_id`
	var args []any
	if userID > 0 {
		query += ` WHERE a.user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY a.created_at DESC, a.id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var logs []model.ActivityLog
	for rows.Next() {
		var l model.ActivityLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.UserEmail, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
