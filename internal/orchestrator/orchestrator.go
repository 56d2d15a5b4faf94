// Package orchestrator implements C7: the submission workflow that drives
// an Artifact from PENDING/FAILED through the LMS conversation to
// SUBMITTED_TO_LMS, with retry-queue failure routing (spec §4.7).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-api/internal/auth"
	"github.com/noah-isme/sma-adp-api/internal/lms"
	"github.com/noah-isme/sma-adp-api/internal/models"
	"github.com/noah-isme/sma-adp-api/internal/notify"
	"github.com/noah-isme/sma-adp-api/internal/repository"
	"github.com/noah-isme/sma-adp-api/internal/storage"
	appErrors "github.com/noah-isme/sma-adp-api/pkg/errors"
)

const maxRetryAttempts = 5

// Orchestrator drives the multi-step LMS submission sequence.
type Orchestrator struct {
	artifacts   *repository.ArtifactRepository
	mappings    *repository.MappingRepository
	sessions    *repository.SessionRepository
	queue       *repository.QueueRepository
	audit       *repository.AuditRepository
	content     *storage.ContentStore
	lmsClient   *lms.Client
	studentAuth *auth.StudentService
	notifier    notify.Notifier
	logger      *zap.Logger
}

// New constructs the orchestrator.
func New(
	artifacts *repository.ArtifactRepository,
	mappings *repository.MappingRepository,
	sessions *repository.SessionRepository,
	queue *repository.QueueRepository,
	audit *repository.AuditRepository,
	content *storage.ContentStore,
	lmsClient *lms.Client,
	studentAuth *auth.StudentService,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		artifacts: artifacts, mappings: mappings, sessions: sessions, queue: queue, audit: audit,
		content: content, lmsClient: lmsClient, studentAuth: studentAuth, notifier: notifier, logger: logger,
	}
}

// Submit runs the full protocol for one artifact on behalf of session.
// Step 1's CAS is the sole concurrency guard (spec §5 "Ordering"): two
// concurrent calls on the same artifact race the UPDATE, and exactly one
// proceeds.
func (o *Orchestrator) Submit(ctx context.Context, artifactID string, session *models.StudentSession) (*models.Artifact, error) {
	artifact, err := o.artifacts.FindByID(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if artifact.RegisterNumber != session.RegisterNumber {
		return nil, appErrors.Clone(appErrors.ErrAuthz, "artifact does not belong to this session")
	}

	mapping, err := o.mappings.FindSubjectMapping(ctx, artifact.SubjectCode, artifact.ExamType)
	if err != nil {
		return nil, err
	}

	began, err := o.artifacts.TryBeginSubmission(ctx, artifactID)
	if err != nil {
		return nil, err
	}
	if !began {
		return nil, appErrors.ErrAlreadyInFlight
	}

	// Past this point the caller may disconnect; detach from the inbound
	// request context so the sequence runs to completion regardless
	// (spec §5 "Cancellation and timeouts").
	detached := detachedContext(ctx)
	return o.run(detached, artifact, mapping, session)
}

// RetryDue is invoked by the periodic worker for a queue row whose backoff
// has elapsed. It re-enters the protocol from step 1 using the original
// session if still valid.
func (o *Orchestrator) RetryDue(ctx context.Context, row models.SubmissionQueue) {
	session, err := o.sessions.FindByID(ctx, row.SessionID)
	if err != nil {
		_ = o.queue.MarkAbandoned(ctx, row.ID, "student session no longer valid")
		return
	}

	artifact, err := o.artifacts.FindByID(ctx, row.ArtifactID)
	if err != nil {
		_ = o.queue.MarkAbandoned(ctx, row.ID, "artifact no longer exists")
		return
	}

	if _, err := o.Submit(ctx, artifact.ID, session); err != nil {
		o.logger.Warn("retry submission attempt failed", zap.String("artifact_id", artifact.ID), zap.Error(err))
		return
	}
	_ = o.queue.MarkResolved(ctx, row.ID)
}

func (o *Orchestrator) run(ctx context.Context, artifact *models.Artifact, mapping *models.SubjectMapping, session *models.StudentSession) (*models.Artifact, error) {
	log := artifact.TransactionLog.Append("BEGIN_SUBMISSION", "OK", "")

	data, err := o.content.Get(ctx, o.artifacts, artifact.ID, artifact.DiskPath)
	if err != nil {
		return o.terminalFail(ctx, artifact, log, "LOAD_BYTES", err)
	}
	log = log.Append("LOAD_BYTES", "OK", "")

	token, err := o.studentAuth.LMSToken(session)
	if err != nil {
		return o.terminalFail(ctx, artifact, log, "DECRYPT_TOKEN", err)
	}
	log = log.Append("DECRYPT_TOKEN", "OK", "")

	draftItemID, err := o.lmsClient.UploadFile(ctx, token, data, artifact.CanonicalFilename)
	if err != nil {
		return o.classifyAndRoute(ctx, artifact, log, session, "UPLOAD_FILE", err)
	}
	log = log.Append("UPLOAD_FILE", "OK", fmt.Sprintf("draft_item_id=%d", draftItemID))
	if err := o.artifacts.UpdateLMSBinding(ctx, artifact.ID, &draftItemID, nil); err != nil {
		o.logger.Warn("persist draft item id failed", zap.Error(err))
	}

	if err := o.lmsClient.SaveSubmission(ctx, token, mapping.MoodleAssignmentID, draftItemID); err != nil {
		return o.classifyAndRoute(ctx, artifact, log, session, "SAVE_SUBMISSION", err)
	}
	log = log.Append("SAVE_SUBMISSION", "OK", "")

	submissionID, err := o.lmsClient.SubmitForGrading(ctx, token, mapping.MoodleAssignmentID)
	if err != nil {
		return o.classifyAndRoute(ctx, artifact, log, session, "SUBMIT_FOR_GRADING", err)
	}
	log = log.Append("SUBMIT_FOR_GRADING", "OK", fmt.Sprintf("submission_id=%d", submissionID))

	if err := o.artifacts.CompleteSubmission(ctx, artifact.ID, submissionID, log); err != nil {
		return nil, err
	}
	if o.audit != nil {
		staffID := session.ID
		_ = o.audit.Create(ctx, &models.AuditEntry{
			ActorType: models.ActorTypeStudent,
			ActorID:   &staffID,
			Action:    models.AuditActionSubmit,
			Target:    artifact.ID,
			Result:    "SUCCESS",
		})
	}
	_ = o.notifier.Notify(ctx, notify.KindSubmitSuccess, session.MoodleUsername, map[string]string{
		"artifact_id": artifact.ID, "register_number": artifact.RegisterNumber,
	})

	artifact.Status = models.StatusSubmittedToLMS
	artifact.TransactionLog = log
	return artifact, nil
}

// classifyAndRoute handles a failure in steps 4-6 per §4.7's classification
// table.
func (o *Orchestrator) classifyAndRoute(ctx context.Context, artifact *models.Artifact, log models.TransactionLog, session *models.StudentSession, step string, err error) (*models.Artifact, error) {
	var kind lms.FailureKind = lms.FailureUnknown
	var lmsErr *lms.Error
	if asLMSError(err, &lmsErr) {
		kind = lmsErr.Kind
	}
	log = log.Append(step, "FAILED", err.Error())

	switch kind {
	case lms.FailurePayloadReject:
		return o.terminalFailNoRetry(ctx, artifact, log, err, "staff notified, no retry: payload rejected by LMS")

	case lms.FailureAuthInvalid:
		_ = o.sessions.Delete(ctx, session.ID)
		return o.terminalFailNoRetry(ctx, artifact, log, err, "student session invalidated, no retry")

	default: // Transient, Authz, Unknown
		if err := o.artifacts.FailSubmission(ctx, artifact.ID, err.Error(), log); err != nil {
			return nil, err
		}
		retryCount := artifact.RetryCount + 1
		if err := o.queue.Enqueue(ctx, artifact.ID, session.ID, retryCount, err.Error()); err != nil {
			o.logger.Warn("enqueue retry failed", zap.Error(err))
		}
		if o.audit != nil {
			_ = o.audit.Create(ctx, &models.AuditEntry{
				ActorType: models.ActorTypeSystem,
				Action:    models.AuditActionSubmit,
				Target:    artifact.ID,
				Result:    string(kind),
			})
		}
		artifact.Status = models.StatusFailed
		artifact.RetryCount = retryCount
		artifact.TransactionLog = log
		return artifact, appErrors.Clone(appErrors.ErrUpstreamTransient, "submission failed, queued for retry")
	}
}

func (o *Orchestrator) terminalFail(ctx context.Context, artifact *models.Artifact, log models.TransactionLog, step string, err error) (*models.Artifact, error) {
	log = log.Append(step, "FAILED", err.Error())
	return o.terminalFailNoRetry(ctx, artifact, log, err, "terminal failure, no retry")
}

func (o *Orchestrator) terminalFailNoRetry(ctx context.Context, artifact *models.Artifact, log models.TransactionLog, cause error, detail string) (*models.Artifact, error) {
	if err := o.artifacts.FailSubmission(ctx, artifact.ID, cause.Error(), log); err != nil {
		return nil, err
	}
	if o.audit != nil {
		_ = o.audit.Create(ctx, &models.AuditEntry{
			ActorType: models.ActorTypeSystem,
			Action:    models.AuditActionSubmit,
			Target:    artifact.ID,
			Result:    "TERMINAL",
		})
	}
	_ = o.notifier.Notify(ctx, notify.KindSubmitFailed, "", map[string]string{
		"artifact_id": artifact.ID, "detail": detail,
	})
	artifact.Status = models.StatusFailed
	artifact.TransactionLog = log
	return artifact, appErrors.Clone(appErrors.ErrUpstreamReject, detail)
}

func asLMSError(err error, target **lms.Error) bool {
	if lmsErr, ok := err.(*lms.Error); ok {
		*target = lmsErr
		return true
	}
	return false
}

// detachedContext strips the inbound request's cancellation while keeping
// none of its deadline, per §5: once past the point of no return, the
// sequence must run to completion.
func detachedContext(parent context.Context) context.Context {
	return detachedCtx{parent}
}

type detachedCtx struct{ context.Context }

func (detachedCtx) Deadline() (time.Time, bool) { return time.Time{}, false }
func (detachedCtx) Done() <-chan struct{}        { return nil }
func (detachedCtx) Err() error                   { return nil }

// MaxRetryAttempts is exported for the retry worker's DueRows query.
func MaxRetryAttempts() int { return maxRetryAttempts }
