package model

import "time"

type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotUploading SnapshotStatus = "uploading"
	SnapshotCompleted SnapshotStatus = "completed"
	SnapshotFailed    SnapshotStatus = "failed"
)

type Snapshot struct {
	ID           int64          `json:"id"`
	Filename     string         `json:"filename"`
	S3Key        string         `json:"s3Key"`
	SizeBytes    int64          `json:"sizeBytes"`
	Status       SnapshotStatus `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	StartedAt    time.Time      `json:"startedAt"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
}
