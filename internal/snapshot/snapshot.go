// Package snapshot writes encrypted copies of the ledger database to
// S3-compatible storage on a schedule and on demand.
package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "modernc.org/sqlite"

	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

// s3Client is the subset of *s3.Client the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var ErrDisabled = errors.New("snapshot: storage or passphrase not configured")

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State        State      `json:"state"`
	LastSnapshot *time.Time `json:"lastSnapshot,omitempty"`
	Error        string     `json:"error,omitempty"`
}

type Manager struct {
	mu     sync.RWMutex
	status Status
	run    sync.Mutex

	cfg       config.SnapshotConfig
	bucket    string
	db        *sql.DB
	snapshots *store.SnapshotStore
	client    s3Client
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(s3cfg config.S3Config, cfg config.SnapshotConfig, db *sql.DB, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:       cfg,
		bucket:    s3cfg.Bucket,
		db:        db,
		snapshots: store.NewSnapshotStore(db),
		logger:    logger.With("component", "snapshot"),
		status:    Status{State: StateDisabled},
	}
	if s3cfg.Enabled() && cfg.Passphrase != "" {
		m.client = newS3Client(s3cfg)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start runs a snapshot and a retention sweep every configured interval
// until ctx is cancelled or Stop is called.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	m.logger.Info("snapshot scheduler started", "interval", interval)
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled snapshot failed", "error", err)
				}
				if err := m.Cleanup(ctx); err != nil {
					m.logger.Error("snapshot cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels the scheduler and waits for an in-flight run to return.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) Enabled() bool {
	return m.Status().State != StateDisabled
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Snapshot, error) {
	return m.snapshots.List(ctx, limit)
}

// RunNow copies the database with VACUUM INTO, seals the copy and uploads
// it. Runs are serialized.
func (m *Manager) RunNow(ctx context.Context) (*model.Snapshot, error) {
	if !m.Enabled() {
		return nil, ErrDisabled
	}
	m.run.Lock()
	defer m.run.Unlock()

	m.setStatus(Status{State: StateRunning})
	now := time.Now().UTC()
	filename := fmt.Sprintf("coinvault-%s.db.enc", now.Format("2006-01-02T150405Z"))
	key := now.Format("2006/01/02/") + filename

	rec, err := m.snapshots.Create(ctx, filename, key)
	if err != nil {
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}

	size, err := m.upload(ctx, rec)
	if err != nil {
		if serr := m.snapshots.UpdateStatus(ctx, rec.ID, model.SnapshotFailed, err.Error()); serr != nil {
			m.logger.Error("mark snapshot failed", "id", rec.ID, "error", serr)
		}
		m.setStatus(Status{State: StateError, Error: err.Error()})
		return nil, err
	}
	if err := m.snapshots.UpdateCompleted(ctx, rec.ID, size); err != nil {
		return nil, err
	}

	done := time.Now().UTC()
	m.setStatus(Status{State: StateIdle, LastSnapshot: &done})
	m.logger.Info("snapshot uploaded", "id", rec.ID, "key", key, "bytes", size)

	rec.Status = model.SnapshotCompleted
	rec.SizeBytes = size
	rec.CompletedAt = &done
	return rec, nil
}

func (m *Manager) upload(ctx context.Context, rec *model.Snapshot) (int64, error) {
	if err := m.snapshots.UpdateStatus(ctx, rec.ID, model.SnapshotUploading, ""); err != nil {
		return 0, err
	}

	dir, err := os.MkdirTemp("", "coinvault-snapshot-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	copyPath := filepath.Join(dir, "ledger.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, copyPath); err != nil {
		return 0, fmt.Errorf("vacuum into: %w", err)
	}
	plain, err := os.ReadFile(copyPath)
	if err != nil {
		return 0, fmt.Errorf("read copy: %w", err)
	}
	sealed, err := Seal(plain, m.cfg.Passphrase)
	if err != nil {
		return 0, err
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(rec.S3Key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return 0, fmt.Errorf("upload to s3: %w", err)
	}
	return int64(len(sealed)), nil
}

// Restore downloads snapshot id, decrypts it and writes it to dstPath after
// an integrity check. The live database is never touched.
func (m *Manager) Restore(ctx context.Context, id int64, dstPath string) error {
	if !m.Enabled() {
		return ErrDisabled
	}
	rec, err := m.snapshots.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil || rec.Status != model.SnapshotCompleted {
		return fmt.Errorf("snapshot %d not found or incomplete", id)
	}

	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(rec.S3Key),
	})
	if err != nil {
		return fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()

	sealed, err := io.ReadAll(out.Body)
	if err != nil {
		return fmt.Errorf("read object: %w", err)
	}
	plain, err := Open(sealed, m.cfg.Passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dstPath, plain, 0o600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}
	if err := checkIntegrity(ctx, dstPath); err != nil {
		os.Remove(dstPath)
		return err
	}
	return nil
}

func checkIntegrity(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Cleanup deletes snapshots older than the retention period from the index
// and from storage. Object deletion failures are logged.
func (m *Manager) Cleanup(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}
	days := m.cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	before := time.Now().UTC().AddDate(0, 0, -days)
	keys, err := m.snapshots.DeleteOlderThan(ctx, before)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("delete snapshot object", "key", key, "error", err)
		}
	}
	if len(keys) > 0 {
		m.logger.Info("expired snapshots removed", "count", len(keys))
	}
	return nil
}
