package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// OperationRecorder writes the append-only history of tool invocations.
// Records move from processing to exactly one terminal state.
type OperationRecorder struct {
	ops    repository.OperationRepository
	logger *logrus.Logger
	now    func() time.Time
}

func NewOperationRecorder(ops repository.OperationRepository, logger *logrus.Logger) *OperationRecorder {
	return &OperationRecorder{
		ops:    ops,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start inserts a processing record for an accepted request.
func (r *OperationRecorder) Start(ctx context.Context, op *models.Operation) error {
	op.Status = models.OperationProcessing
	op.CreatedAt = r.now()
	op.CompletedAt = nil
	if err := r.ops.Create(ctx, op); err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

func (r *OperationRecorder) Complete(ctx context.Context, id primitive.ObjectID, result models.OperationResult) error {
	set := bson.M{
		"output_name":  result.OutputName,
		"output_size":  result.OutputSize,
		"mime_type":    result.MimeType,
		"artifact_key": result.ArtifactKey,
		"charged_from": result.ChargedFrom,
		"completed_at": r.now(),
	}
	if result.ReductionPercent != 0 {
		set["reduction_percent"] = result.ReductionPercent
	}
	return r.finish(ctx, id, models.OperationDone, set)
}

// Fail records reason on the operation. The reason is kept for support and
// never shown to the client.
func (r *OperationRecorder) Fail(ctx context.Context, id primitive.ObjectID, reason string) error {
	return r.finish(ctx, id, models.OperationFailed, bson.M{
		"error":        reason,
		"completed_at": r.now(),
	})
}

func (r *OperationRecorder) finish(ctx context.Context, id primitive.ObjectID, status models.OperationStatus, set bson.M) error {
	ok, err := r.ops.Finish(ctx, id, status, set)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"operation_id": id.Hex(),
			"status":       status,
		}).Warn("Operation already finalized")
		return apperrors.ErrOperationFinalized
	}
	return nil
}

func (r *OperationRecorder) Get(ctx context.Context, userID, id primitive.ObjectID) (*models.Operation, error) {
	op, err := r.ops.GetForUser(ctx, userID, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrOperationNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return op, nil
}

// History lists a user's operations for tool, newest first. An empty tool
// lists every tool.
func (r *OperationRecorder) History(ctx context.Context, userID primitive.ObjectID, tool models.Tool, page, limit int) ([]models.Operation, int64, error) {
	page, limit = normalizePage(page, limit)
	ops, total, err := r.ops.ListForUser(ctx, userID, tool, int64(page), int64(limit))
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}
	return ops, total, nil
}

// StaleArtifacts lists completed operations whose artifacts outlived cutoffs.
func (r *OperationRecorder) StaleArtifacts(ctx context.Context, cutoffs map[models.Category]time.Time, limit int64) ([]models.Operation, error) {
	ops, err := r.ops.ListStaleArtifacts(ctx, cutoffs, limit)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return ops, nil
}

// ClearArtifact detaches the artifact at key from the operation. Only the
// first caller for a given artifact gets true.
func (r *OperationRecorder) ClearArtifact(ctx context.Context, id primitive.ObjectID, key string) (bool, error) {
	ok, err := r.ops.ClearArtifact(ctx, id, key, r.now())
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	return ok, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
