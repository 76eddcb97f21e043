package snapshot

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/coinvault/internal/config"
	"github.com/dukerupert/coinvault/internal/database"
	"github.com/dukerupert/coinvault/internal/logging"
	"github.com/dukerupert/coinvault/internal/model"
	"github.com/dukerupert/coinvault/internal/store"
)

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, _ := io.ReadAll(in.Body)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

var enabledS3 = config.S3Config{Bucket: "snaps", AccessKey: "key", SecretKey: "secret", Region: "us-east-1"}

func setupManager(t *testing.T) (*Manager, *mockS3, *sql.DB) {
	t.Helper()
	db, err := database.Open(database.MemoryPath)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.SnapshotConfig{Passphrase: "correct horse", Interval: time.Hour, RetentionDays: 7}
	m := NewManager(enabledS3, cfg, db, logging.New(io.Discard, "error", "text"))
	mock := newMockS3()
	m.client = mock
	return m, mock, db
}

func TestManagerState(t *testing.T) {
	logger := logging.New(io.Discard, "error", "text")
	tests := []struct {
		name string
		s3   config.S3Config
		pass string
		want State
	}{
		{"no storage", config.S3Config{}, "pw", StateDisabled},
		{"no passphrase", enabledS3, "", StateDisabled},
		{"configured", enabledS3, "pw", StateIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.s3, config.SnapshotConfig{Passphrase: tt.pass}, nil, logger)
			if got := m.Status().State; got != tt.want {
				t.Errorf("state = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunNowAndRestore(t *testing.T) {
	m, mock, db := setupManager(t)
	ctx := context.Background()

	if _, err := store.NewCompanyStore(db).Create(ctx, "Acme"); err != nil {
		t.Fatalf("create company: %v", err)
	}

	snap, err := m.RunNow(ctx)
	if err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if snap.Status != model.SnapshotCompleted {
		t.Errorf("status = %q, want completed", snap.Status)
	}
	if mock.len() != 1 {
		t.Fatalf("objects = %d, want 1", mock.len())
	}
	if m.Status().State != StateIdle || m.Status().LastSnapshot == nil {
		t.Errorf("status = %+v, want idle with last snapshot", m.Status())
	}

	listed, err := m.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 || listed[0].SizeBytes != snap.SizeBytes {
		t.Fatalf("listed = %+v", listed)
	}

	dst := filepath.Join(t.TempDir(), "restored.db")
	if err := m.Restore(ctx, snap.ID, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	restored, err := sql.Open("sqlite", dst)
	if err != nil {
		t.Fatalf("open restored: %v", err)
	}
	defer restored.Close()
	var name string
	if err := restored.QueryRow(`SELECT name FROM companies LIMIT 1`).Scan(&name); err != nil {
		t.Fatalf("query restored: %v", err)
	}
	if name != "Acme" {
		t.Errorf("company = %q, want Acme", name)
	}
}

func TestRunNowUploadFailure(t *testing.T) {
	m, mock, _ := setupManager(t)
	ctx := context.Background()
	mock.putErr = errors.New("bucket gone")

	if _, err := m.RunNow(ctx); err == nil {
		t.Fatal("expected upload error")
	}
	if m.Status().State != StateError {
		t.Errorf("state = %q, want error", m.Status().State)
	}
	listed, _ := m.List(ctx, 10)
	if len(listed) != 1 || listed[0].Status != model.SnapshotFailed {
		t.Errorf("listed = %+v, want one failed snapshot", listed)
	}
}

func TestCleanupRemovesExpired(t *testing.T) {
	m, mock, db := setupManager(t)
	ctx := context.Background()

	if _, err := m.RunNow(ctx); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	old := time.Now().UTC().AddDate(0, 0, -30)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO snapshots (filename, s3_key, status, started_at) VALUES (?, ?, ?, ?)`,
		"old.db.enc", "old/old.db.enc", model.SnapshotCompleted, old); err != nil {
		t.Fatalf("insert old snapshot: %v", err)
	}
	mock.objects["old/old.db.enc"] = []byte("x")

	if err := m.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, ok := mock.objects["old/old.db.enc"]; ok {
		t.Error("expired object still in storage")
	}
	if mock.len() != 1 {
		t.Errorf("objects = %d, want 1", mock.len())
	}
	listed, _ := m.List(ctx, 10)
	if len(listed) != 1 {
		t.Errorf("snapshots = %d, want 1", len(listed))
	}
}

func TestDisabledManager(t *testing.T) {
	m := NewManager(config.S3Config{}, config.SnapshotConfig{}, nil, logging.New(io.Discard, "error", "text"))
	if _, err := m.RunNow(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Errorf("RunNow err = %v, want ErrDisabled", err)
	}
	if err := m.Cleanup(context.Background()); err != nil {
		t.Errorf("Cleanup err = %v, want nil", err)
	}
	m.Start(context.Background())
	m.Stop()
}

func TestStopSafety(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()
	m.Stop()
}
