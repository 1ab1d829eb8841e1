package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/tradeops/pgvault/internal/adapter/storage"
)

// Cleanup removes full backups past the retention window, deleting each
// artifact and its metadata sidecar in the same operation. Offsite replicas
// are pruned with the same cutoff, best-effort.
type Cleanup struct {
	store         *storage.ArtifactStore
	replicas      []ReplicaTarget
	logger        Logger
	retentionDays int

	now func() time.Time
}

func NewCleanup(
	store *storage.ArtifactStore,
	replicas []ReplicaTarget,
	logger Logger,
	retentionDays int,
) *Cleanup {
	return &Cleanup{
		store:         store,
		replicas:      replicas,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (uc *Cleanup) Execute(ctx context.Context) error {
	cutoff := uc.now().AddDate(0, 0, -uc.retentionDays)
	uc.logger.Infof("retention cleanup: removing full backups older than %s",
		cutoff.Format(time.RFC3339))

	artifacts, err := uc.store.ListArtifacts()
	if err != nil {
		return err
	}

	deleted := 0
	for _, artifact := range artifacts {
		if !artifact.CreatedAt.Before(cutoff) {
			continue
		}
		if err := uc.store.DeleteArtifact(artifact.Filename); err != nil {
			uc.logger.Errorf("failed to delete %s: %v", artifact.Filename, err)
			continue
		}
		uc.logger.Infof("deleted expired backup %s", artifact.Filename)
		deleted++
	}

	uc.logger.Infof("retention cleanup: deleted %d backup(s)", deleted)

	if len(uc.replicas) > 0 {
		uc.cleanupReplicas(ctx, cutoff)
	}

	return nil
}

func (uc *Cleanup) cleanupReplicas(ctx context.Context, cutoff time.Time) {
	var wg sync.WaitGroup

	for _, replica := range uc.replicas {
		wg.Add(1)
		go func(r ReplicaTarget) {
			defer wg.Done()

			files, err := r.Target.GetOldFiles(ctx, cutoff)
			if err != nil {
				uc.logger.Errorf("cleanup failed for %s: %v", r.Name, err)
				return
			}

			for _, filename := range files {
				if err := r.Target.Delete(ctx, filename); err != nil {
					uc.logger.Errorf("failed to delete %s from %s: %v", filename, r.Name, err)
				} else {
					uc.logger.Infof("deleted expired replica %s from %s", filename, r.Name)
				}
			}
		}(replica)
	}

	wg.Wait()
}
