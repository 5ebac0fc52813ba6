package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
)

const purgeBatch = 200

// RetentionPolicy is how long stored files are kept once produced.
type RetentionPolicy struct {
	Artifacts time.Duration
	// Security applies to protected and unlocked documents.
	Security time.Duration
	Sessions time.Duration
}

func (p RetentionPolicy) cutoffs(now time.Time) map[models.Category]time.Time {
	cutoffs := make(map[models.Category]time.Time, len(models.Categories))
	for _, c := range models.Categories {
		keep := p.Artifacts
		if c == models.CategorySecurity {
			keep = p.Security
		}
		cutoffs[c] = now.Add(-keep)
	}
	return cutoffs
}

// PurgeExpired removes operation artifacts kept longer than policy allows
// and returns their bytes to the owners' storage quota. It reports how many
// artifacts were removed.
func (ts *ToolService) PurgeExpired(ctx context.Context, policy RetentionPolicy) (int, error) {
	cutoffs := policy.cutoffs(ts.recorder.now())
	total := 0

	for {
		stale, err := ts.recorder.StaleArtifacts(ctx, cutoffs, purgeBatch)
		if err != nil {
			return total, err
		}

		progressed := false
		for i := range stale {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			removed, err := ts.removeArtifact(ctx, &stale[i])
			if err != nil {
				ts.logger.WithError(err).WithField("operation_id", stale[i].ID.Hex()).Error("Artifact cleanup failed")
				continue
			}
			if removed {
				total++
				progressed = true
			}
		}
		if !progressed || len(stale) < purgeBatch {
			return total, nil
		}
	}
}

// DeleteArtifact removes the stored output of one of user's operations
// ahead of its retention. The operation record is kept.
func (ts *ToolService) DeleteArtifact(ctx context.Context, user *models.User, id primitive.ObjectID) error {
	op, err := ts.recorder.Get(ctx, user.ID, id)
	if err != nil {
		return err
	}
	if op.ArtifactKey == "" {
		return apperrors.ErrArtifactMissing
	}
	removed, err := ts.removeArtifact(ctx, op)
	if err != nil {
		return err
	}
	if !removed {
		return apperrors.ErrArtifactMissing
	}
	return nil
}

// removeArtifact detaches, deletes and releases one artifact. Concurrent
// callers for the same artifact release its bytes once.
func (ts *ToolService) removeArtifact(ctx context.Context, op *models.Operation) (bool, error) {
	cleared, err := ts.recorder.ClearArtifact(ctx, op.ID, op.ArtifactKey)
	if err != nil || !cleared {
		return false, err
	}

	log := ts.logger.WithFields(logrus.Fields{
		"operation_id": op.ID.Hex(),
		"user_id":      op.UserID.Hex(),
	})
	ts.discard(ctx, log, op.ArtifactKey)
	if err := ts.quota.ReleaseStorage(ctx, op.UserID, op.OutputSize); err != nil {
		return true, err
	}
	log.WithField("bytes", op.OutputSize).Debug("Artifact removed")
	return true, nil
}

// PurgeExpired closes edit sessions older than retention, deleting their
// source documents and releasing the storage they held.
func (es *EditSessionService) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	before := es.now().Add(-retention)
	total := 0

	for {
		stale, err := es.sessions.ListStale(ctx, before, purgeBatch)
		if err != nil {
			return total, apperrors.DatabaseError(err)
		}

		progressed := false
		for i := range stale {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			expired, err := es.expire(ctx, &stale[i])
			if err != nil {
				es.logger.WithError(err).WithField("session_id", stale[i].SessionID).Error("Edit session cleanup failed")
				continue
			}
			if expired {
				total++
				progressed = true
			}
		}
		if !progressed || len(stale) < purgeBatch {
			return total, nil
		}
	}
}

func (es *EditSessionService) expire(ctx context.Context, session *models.EditSession) (bool, error) {
	ok, err := es.sessions.Expire(ctx, session.ID, session.SourceKey)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if !ok {
		return false, nil
	}
	es.discardSource(ctx, session)
	if err := es.quota.ReleaseStorage(ctx, session.UserID, session.SourceSize); err != nil {
		return true, err
	}
	return true, nil
}
