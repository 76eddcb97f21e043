package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/coinvault/internal/model"
)

type SnapshotStore struct {
	db DBTX
}

func NewSnapshotStore(db DBTX) *SnapshotStore {
	return &SnapshotStore{db: db}
}

const snapshotCols = `id, filename, s3_key, size_bytes, status, error_message, started_at, completed_at`

func scanSnapshot(sc scanner) (*model.Snapshot, error) {
	var sn model.Snapshot
	var completedAt sql.NullTime
	err := sc.Scan(&sn.ID, &sn.Filename, &sn.S3Key, &sn.SizeBytes, &sn.Status, &sn.ErrorMessage, &sn.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	sn.CompletedAt = timePtr(completedAt)
	return &sn, nil
}

func (s *SnapshotStore) Create(ctx context.Context, filename, s3Key string) (*model.Snapshot, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO snapshots (filename, s3_key, status, started_at) VALUES (?, ?, ?, ?)`,
		filename, s3Key, model.SnapshotPending, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	id, _ := result.LastInsertId()
	return &model.Snapshot{
		ID:        id,
		Filename:  filename,
		S3Key:     s3Key,
		Status:    model.SnapshotPending,
		StartedAt: now,
	}, nil
}

func (s *SnapshotStore) GetByID(ctx context.Context, id int64) (*model.Snapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRowContext(ctx, `SELECT `+snapshotCols+` FROM snapshots WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %d: %w", id, err)
	}
	return sn, nil
}

func (s *SnapshotStore) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.Snapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, *sn)
	}
	return snaps, rows.Err()
}

func (s *SnapshotStore) UpdateStatus(ctx context.Context, id int64, status model.SnapshotStatus, errorMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, error_message = ? WHERE id = ?`,
		status, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot status: %w", err)
	}
	return nil
}

func (s *SnapshotStore) UpdateCompleted(ctx context.Context, id, sizeBytes int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE snapshots SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		model.SnapshotCompleted, sizeBytes, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update snapshot completed: %w", err)
	}
	return nil
}

// DeleteOlderThan deletes snapshots started before the given time and returns
// their S3 keys.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT s3_key FROM snapshots WHERE started_at < ?`, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("select old snapshots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan s3 key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE started_at < ?`, before.UTC()); err != nil {
		return nil, fmt.Errorf("delete old snapshots: %w", err)
	}
	return keys, nil
}

func (s *SnapshotStore) LatestCompleted(ctx context.Context) (*model.Snapshot, error) {
	sn, err := scanSnapshot(s.db.QueryRowContext(ctx,
		`SELECT `+snapshotCols+` FROM snapshots WHERE status = ? ORDER BY completed_at DESC LIMIT 1`,
		model.SnapshotCompleted))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest completed snapshot: %w", err)
	}
	return sn, nil
}
