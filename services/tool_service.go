package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/processing"
	"pdfdesk/storage"
)

// Output is the artifact a processor produced.
type Output struct {
	Name     string
	Data     []byte
	MimeType string
	// Extra is merged into the tool response, e.g. recognized OCR text.
	Extra map[string]interface{}
}

// Job describes one metered tool invocation.
type Job struct {
	Tool    models.Tool
	Action  string
	Inputs  []processing.NamedFile
	Params  map[string]string
	Feature models.Feature
	// Batch marks jobs that process several independent inputs at once.
	Batch   bool
	Process func(ctx context.Context, inputs []processing.NamedFile) (*Output, error)
}

type ToolResult struct {
	Operation *models.Operation
	Source    models.CreditSource
	Used      int64
	Limit     models.Limit
	Extra     map[string]interface{}
}

// ToolService runs metered tool jobs: check, process, store, then charge.
// Nothing is charged unless the artifact was produced and stored.
type ToolService struct {
	quota    *QuotaService
	recorder *OperationRecorder
	store    storage.Storage
	logger   *logrus.Logger
}

func NewToolService(quota *QuotaService, recorder *OperationRecorder, store storage.Storage, logger *logrus.Logger) *ToolService {
	return &ToolService{quota: quota, recorder: recorder, store: store, logger: logger}
}

func (ts *ToolService) Run(ctx context.Context, user *models.User, job Job) (*ToolResult, error) {
	category, ok := job.Tool.Category()
	if !ok {
		return nil, apperrors.BadRequest("tools", fmt.Sprintf("unknown tool %q", job.Tool))
	}
	if len(job.Inputs) == 0 {
		return nil, apperrors.BadRequest("tools", "At least one file is required")
	}

	if job.Feature != "" {
		if err := ts.quota.RequireFeature(ctx, user, job.Feature); err != nil {
			return nil, err
		}
	}
	if job.Batch && len(job.Inputs) > 1 {
		if err := ts.quota.RequireFeature(ctx, user, models.FeatureBatchProcessing); err != nil {
			return nil, err
		}
	}

	sizes := make([]int64, len(job.Inputs))
	names := make([]string, len(job.Inputs))
	var inputSize int64
	for i, in := range job.Inputs {
		sizes[i] = int64(len(in.Data))
		names[i] = in.Name
		inputSize += sizes[i]
	}
	if err := ts.quota.CheckUpload(ctx, user, sizes); err != nil {
		return nil, err
	}

	decision, err := ts.quota.Check(ctx, user, category)
	if err != nil {
		return nil, err
	}

	op := &models.Operation{
		UserID:     user.ID,
		Tool:       job.Tool,
		Action:     job.Action,
		Category:   category,
		InputNames: names,
		InputSize:  inputSize,
		Params:     redactParams(job.Params),
	}
	if err := ts.recorder.Start(ctx, op); err != nil {
		return nil, err
	}
	log := ts.logger.WithFields(logrus.Fields{
		"operation_id": op.ID.Hex(),
		"user_id":      user.ID.Hex(),
		"tool":         job.Tool,
		"action":       job.Action,
	})

	// bookkeeping after this point must survive a client disconnect
	bg := context.WithoutCancel(ctx)

	out, err := job.Process(ctx, job.Inputs)
	if err == nil && (out == nil || len(out.Data) == 0) {
		err = fmt.Errorf("processor returned no output")
	}
	if err != nil {
		ts.fail(bg, log, op.ID, err.Error())
		if appErr, ok := apperrors.AsAppError(err); ok {
			return nil, appErr
		}
		return nil, apperrors.ProcessingFailed(err)
	}

	size := int64(len(out.Data))
	key := artifactKey(user.ID, out.Name)
	if err := ts.store.Put(ctx, key, bytes.NewReader(out.Data), size, out.MimeType); err != nil {
		ts.fail(bg, log, op.ID, "storing artifact: "+err.Error())
		return nil, apperrors.ExternalService(err, "storage")
	}

	if err := ts.quota.ReserveStorage(bg, user, size); err != nil {
		ts.discard(bg, log, key)
		ts.fail(bg, log, op.ID, apperrors.LimitExceededType+": storage")
		return nil, err
	}

	source, usage, err := ts.quota.Consume(bg, user, category)
	if err != nil {
		ts.discard(bg, log, key)
		if relErr := ts.quota.ReleaseStorage(bg, user.ID, size); relErr != nil {
			log.WithError(relErr).Error("Failed to release storage after refused charge")
		}
		reason := err.Error()
		if _, ok := apperrors.AsLimitError(err); ok {
			reason = apperrors.LimitExceededType
			log.Info("Charge refused after processing, artifact discarded")
		}
		ts.fail(bg, log, op.ID, reason)
		return nil, err
	}

	result := models.OperationResult{
		OutputName:  out.Name,
		OutputSize:  size,
		MimeType:    out.MimeType,
		ArtifactKey: key,
		ChargedFrom: source,
	}
	if job.Tool == models.ToolOptimize {
		result.ReductionPercent = reductionPercent(inputSize, size)
	}
	if err := ts.recorder.Complete(bg, op.ID, result); err != nil {
		return nil, err
	}

	op.Status = models.OperationDone
	op.OutputName = result.OutputName
	op.OutputSize = result.OutputSize
	op.MimeType = result.MimeType
	op.ArtifactKey = result.ArtifactKey
	op.ChargedFrom = result.ChargedFrom
	op.ReductionPercent = result.ReductionPercent

	log.WithFields(logrus.Fields{
		"charged_from": source,
		"output_size":  size,
	}).Info("Operation completed")

	return &ToolResult{
		Operation: op,
		Source:    source,
		Used:      usage.Used(category),
		Limit:     decision.Limit,
		Extra:     out.Extra,
	}, nil
}

func (ts *ToolService) fail(ctx context.Context, log *logrus.Entry, id primitive.ObjectID, reason string) {
	if err := ts.recorder.Fail(ctx, id, reason); err != nil {
		log.WithError(err).Error("Failed to mark operation failed")
		return
	}
	log.WithField("reason", reason).Warn("Operation failed")
}

func (ts *ToolService) discard(ctx context.Context, log *logrus.Entry, key string) {
	if err := ts.store.Delete(ctx, key); err != nil {
		log.WithError(err).WithField("key", key).Error("Failed to remove artifact")
	}
}

// Download is either an open stream or, for backends that support it, a
// presigned URL.
type Download struct {
	Operation *models.Operation
	Reader    io.ReadCloser
	URL       string
}

// Download opens the artifact of a completed operation owned by user.
func (ts *ToolService) Download(ctx context.Context, user *models.User, id primitive.ObjectID) (*Download, error) {
	op, err := ts.recorder.Get(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}
	if op.Status != models.OperationDone || op.ArtifactKey == "" {
		return nil, apperrors.ErrArtifactMissing
	}

	if p, ok := ts.store.(storage.Presigner); ok {
		url, err := p.PresignedURL(ctx, op.ArtifactKey, op.OutputName)
		if err != nil {
			return nil, apperrors.ExternalService(err, "storage")
		}
		return &Download{Operation: op, URL: url}, nil
	}

	rc, err := ts.store.Open(ctx, op.ArtifactKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.ErrArtifactMissing
	}
	if err != nil {
		return nil, apperrors.ExternalService(err, "storage")
	}
	return &Download{Operation: op, Reader: rc}, nil
}

func artifactKey(userID primitive.ObjectID, name string) string {
	return fmt.Sprintf("operations/%s/%s%s", userID.Hex(), uuid.NewString(), strings.ToLower(filepath.Ext(name)))
}

// reductionPercent is rounded to two decimals and never negative.
func reductionPercent(before, after int64) float64 {
	if before <= 0 || after >= before {
		return 0
	}
	pct := float64(before-after) / float64(before) * 100
	return math.Round(pct*100) / 100
}

var secretParams = map[string]bool{"password": true, "owner_password": true}

func redactParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if secretParams[k] {
			v = "***"
		}
		out[k] = v
	}
	return out
}
