package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/processing"
	"pdfdesk/repository"
	"pdfdesk/storage"
	"pdfdesk/utils"
)

// EditSessionService manages multi-step edits of one uploaded document.
// Uploading and editing are free; exporting is a metered edit operation.
type EditSessionService struct {
	sessions repository.EditSessionRepository
	tools    *ToolService
	jobs     *ToolJobs
	quota    *QuotaService
	pdf      *processing.PDF
	store    storage.Storage
	logger   *logrus.Logger
	now      func() time.Time
}

func NewEditSessionService(
	sessions repository.EditSessionRepository,
	tools *ToolService,
	jobs *ToolJobs,
	quota *QuotaService,
	pdf *processing.PDF,
	store storage.Storage,
	logger *logrus.Logger,
) *EditSessionService {
	return &EditSessionService{
		sessions: sessions,
		tools:    tools,
		jobs:     jobs,
		quota:    quota,
		pdf:      pdf,
		store:    store,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the source document and opens a session in the ready state.
// The stored source counts against the user's storage until the session
// expires.
func (es *EditSessionService) Create(ctx context.Context, user *models.User, file processing.NamedFile) (*models.EditSession, error) {
	if err := es.quota.CheckUpload(ctx, user, []int64{int64(len(file.Data))}); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	now := es.now()
	session := &models.EditSession{
		SessionID:  sessionID,
		UserID:     user.ID,
		Status:     models.EditUploaded,
		SourceName: processing.SanitizeFilename(file.Name),
		SourceKey:  fmt.Sprintf("edit-sessions/%s/%s.pdf", user.ID.Hex(), sessionID),
		SourceSize: int64(len(file.Data)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := es.store.Put(ctx, session.SourceKey, bytes.NewReader(file.Data), session.SourceSize, processing.MimePDF); err != nil {
		return nil, apperrors.ExternalService(err, "storage")
	}
	bg := context.WithoutCancel(ctx)
	if err := es.quota.ReserveStorage(bg, user, session.SourceSize); err != nil {
		es.discardSource(bg, session)
		return nil, err
	}
	if err := es.sessions.Create(bg, session); err != nil {
		es.discardSource(bg, session)
		if relErr := es.quota.ReleaseStorage(bg, user.ID, session.SourceSize); relErr != nil {
			es.logger.WithError(relErr).WithField("session_id", sessionID).Error("Failed to release storage of unsaved session")
		}
		return nil, apperrors.DatabaseError(err)
	}
	if err := es.move(ctx, session, models.EditUploaded, models.EditProcessing, nil); err != nil {
		return nil, err
	}

	pages, err := es.pdf.PageCount(file.Data)
	if err != nil {
		es.markFailed(ctx, session, err)
		return nil, apperrors.ProcessingFailed(err)
	}
	if err := es.move(ctx, session, models.EditProcessing, models.EditReady, bson.M{"page_count": pages}); err != nil {
		return nil, err
	}
	session.PageCount = pages
	return session, nil
}

func (es *EditSessionService) Get(ctx context.Context, user *models.User, sessionID string) (*models.EditSession, error) {
	session, err := es.sessions.GetForUser(ctx, user.ID, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrSessionNotFound
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return session, nil
}

// ApplyEdits replaces the pending edits. An exported session returns to
// ready so it can be exported again.
func (es *EditSessionService) ApplyEdits(ctx context.Context, user *models.User, sessionID string, edits models.EditSet) (*models.EditSession, error) {
	if err := utils.ValidateStruct(edits); err != nil {
		return nil, apperrors.BadRequest("edit", err.Error())
	}
	session, err := es.Get(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.EditReady && session.Status != models.EditExported {
		return nil, apperrors.ErrSessionInvalidState
	}
	if err := validatePages(edits, session.PageCount); err != nil {
		return nil, err
	}

	if err := es.move(ctx, session, session.Status, models.EditReady, bson.M{"edits": edits}); err != nil {
		return nil, err
	}
	session.Edits = edits
	return session, nil
}

// Export renders the pending edits and charges one edit operation. Only a
// processing failure fails the session; a refused charge, a missing
// feature or an unavailable backend leaves it ready for another attempt.
func (es *EditSessionService) Export(ctx context.Context, user *models.User, sessionID string) (*models.EditSession, *ToolResult, error) {
	session, err := es.Get(ctx, user, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.Status != models.EditReady {
		return nil, nil, apperrors.ErrSessionInvalidState
	}
	if session.Edits.Empty() {
		return nil, nil, apperrors.BadRequest("edit", "No edits to export")
	}
	if err := es.move(ctx, session, models.EditReady, models.EditProcessing, nil); err != nil {
		return nil, nil, err
	}

	bg := context.WithoutCancel(ctx)
	source, err := es.loadSource(ctx, session)
	if err != nil {
		es.revert(bg, session)
		return nil, nil, err
	}

	result, err := es.tools.Run(ctx, user, es.jobs.Export(source, session.Edits))
	if err != nil {
		// only a document that cannot be rendered fails the session
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.Code == apperrors.CodeProcessingFailed {
			es.markFailed(bg, session, err)
		} else {
			es.revert(bg, session)
		}
		return nil, nil, err
	}

	op := result.Operation
	exported := &models.ExportedFile{
		Filename: op.OutputName,
		Key:      op.ArtifactKey,
		Size:     op.OutputSize,
		MimeType: op.MimeType,
	}
	set := bson.M{"exported_file": exported, "operation_id": op.ID, "error": ""}
	if err := es.move(bg, session, models.EditProcessing, models.EditExported, set); err != nil {
		return nil, nil, err
	}
	session.ExportedFile = exported
	session.OperationID = &op.ID
	return session, result, nil
}

// Download opens the most recent export of a session.
func (es *EditSessionService) Download(ctx context.Context, user *models.User, sessionID string) (*Download, error) {
	session, err := es.Get(ctx, user, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OperationID == nil || session.ExportedFile == nil {
		return nil, apperrors.ErrArtifactMissing
	}
	return es.tools.Download(ctx, user, *session.OperationID)
}

func (es *EditSessionService) loadSource(ctx context.Context, session *models.EditSession) (processing.NamedFile, error) {
	rc, err := es.store.Open(ctx, session.SourceKey)
	if err != nil {
		return processing.NamedFile{}, apperrors.ExternalService(err, "storage")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return processing.NamedFile{}, apperrors.ExternalService(err, "storage")
	}
	return processing.NamedFile{Name: session.SourceName, Data: data}, nil
}

func (es *EditSessionService) discardSource(ctx context.Context, session *models.EditSession) {
	if err := es.store.Delete(ctx, session.SourceKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		es.logger.WithError(err).WithField("key", session.SourceKey).Error("Failed to remove edit source")
	}
}

func (es *EditSessionService) move(ctx context.Context, session *models.EditSession, from, to models.EditStatus, set bson.M) error {
	ok, err := es.sessions.Transition(ctx, session.ID, from, to, set)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !ok {
		return apperrors.ErrSessionInvalidState
	}
	session.Status = to
	return nil
}

func (es *EditSessionService) revert(ctx context.Context, session *models.EditSession) {
	if err := es.move(ctx, session, models.EditProcessing, models.EditReady, nil); err != nil {
		es.logger.WithError(err).WithField("session_id", session.SessionID).Error("Failed to return edit session to ready")
	}
}

func (es *EditSessionService) markFailed(ctx context.Context, session *models.EditSession, cause error) {
	if err := es.move(ctx, session, models.EditProcessing, models.EditFailed, bson.M{"error": cause.Error()}); err != nil {
		es.logger.WithError(err).WithField("session_id", session.SessionID).Error("Failed to mark edit session failed")
		return
	}
	es.logger.WithError(cause).WithField("session_id", session.SessionID).Warn("Edit session failed")
}

func validatePages(edits models.EditSet, pageCount int) error {
	for page := range edits.Rotations {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 || n > pageCount {
			return apperrors.BadRequest("edit", fmt.Sprintf("page %s is out of range 1-%d", page, pageCount))
		}
	}

	removed := map[int]bool{}
	for _, n := range edits.RemovePages {
		if n < 1 || n > pageCount {
			return apperrors.BadRequest("edit", fmt.Sprintf("page %d is out of range 1-%d", n, pageCount))
		}
		removed[n] = true
	}
	if len(removed) >= pageCount {
		return apperrors.BadRequest("edit", "At least one page must remain")
	}
	return nil
}
