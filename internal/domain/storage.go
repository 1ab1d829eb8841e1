package domain

import (
	"context"
	"time"
)

// ReplicationTarget is an offsite copy destination for completed full backups.
// Replication is best-effort and runs only after the local artifact is durable.
type ReplicationTarget interface {
	Upload(ctx context.Context, localPath string, remoteName string) error
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, remoteName string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}
