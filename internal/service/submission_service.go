package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/dto"
	"github.com/acadops/campus-api/internal/grading"
	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/repository"
)

// FileUpload is one incoming attachment. Content must be seekable so the MIME
// type can be sniffed before the upload starts.
type FileUpload struct {
	Name    string
	Size    int64
	Content io.ReadSeeker
}

// StatsRefresher recomputes an assignment's derived statistics. The
// statistics service fulfils it; submission mutations call it best-effort.
type StatsRefresher interface {
	Recompute(ctx context.Context, assignmentID uint) (models.AssignmentStats, error)
}

// SubmissionService drives the submission lifecycle from intake through
// grading, revision, and verification.
type SubmissionService interface {
	List(ctx context.Context, actor policy.Actor, req dto.SubmissionListRequest) (dto.SubmissionListResponse, error)
	Get(ctx context.Context, actor policy.Actor, id uint) (dto.SubmissionResponse, error)
	Submit(ctx context.Context, actor policy.Actor, req dto.SubmissionCreateRequest, files []FileUpload) (dto.SubmissionResponse, error)
	Grade(ctx context.Context, actor policy.Actor, id uint, req dto.GradeSubmissionRequest) (dto.SubmissionResponse, error)
	ReturnForRevision(ctx context.Context, actor policy.Actor, id uint, req dto.ReturnSubmissionRequest) (dto.SubmissionResponse, error)
	Reject(ctx context.Context, actor policy.Actor, id uint, reason string) (dto.SubmissionResponse, error)
	CheckPlagiarism(ctx context.Context, actor policy.Actor, id uint, req dto.PlagiarismCheckRequest) (dto.SubmissionResponse, error)
	Verify(ctx context.Context, actor policy.Actor, id uint, req dto.VerifySubmissionRequest) (dto.SubmissionResponse, error)
	AddFile(ctx context.Context, actor policy.Actor, id uint, file FileUpload) (dto.SubmissionResponse, error)
	RemoveFile(ctx context.Context, actor policy.Actor, id uint, fileName string) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id uint) error
}

// plagiarismFlagThreshold is the similarity percentage above which a
// submission is flagged for review.
const plagiarismFlagThreshold = 30.0

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	policy      *policy.Policy
	storage     FileStorage
	stats       StatsRefresher
	activity    ActivityRecorder
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService builds the submission lifecycle service.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	assignments repository.AssignmentRepository,
	authz *policy.Policy,
	storage FileStorage,
	stats StatsRefresher,
	activity ActivityRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) SubmissionService {
	return &submissionService{
		submissions: submissions,
		assignments: assignments,
		policy:      authz,
		storage:     storage,
		stats:       stats,
		activity:    activity,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("campus-api/submissions"),
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

func (s *submissionService) List(ctx context.Context, actor policy.Actor, req dto.SubmissionListRequest) (dto.SubmissionListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionListResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid list request")
	}

	filter := repository.SubmissionFilter{Page: req.Page, PageSize: req.PageSize}
	if req.AssignmentID > 0 {
		filter.AssignmentID = &req.AssignmentID
	}
	if req.StudentID > 0 {
		filter.StudentID = &req.StudentID
	}
	if req.Status != "" {
		filter.Status = &req.Status
	}

	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStudent:
		// Students only ever see their own attempts.
		filter.StudentID = &actor.ID
	case models.RoleFaculty:
		if req.AssignmentID == 0 {
			return dto.SubmissionListResponse{}, apperr.Validation("assignment_id is required")
		}
		assignment, err := s.getAssignment(ctx, req.AssignmentID)
		if err != nil {
			return dto.SubmissionListResponse{}, err
		}
		if err := s.policy.AuthorizeSubmission(ctx, actor, models.Submission{}, assignment, policy.ActionSubmissionRead); err != nil {
			return dto.SubmissionListResponse{}, err
		}
	default:
		return dto.SubmissionListResponse{}, apperr.Forbidden("unknown role %q", actor.Role)
	}

	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return dto.SubmissionListResponse{}, err
	}

	items := make([]dto.SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		items = append(items, dto.NewSubmissionResponse(submission, grading.CalculatedScore(submission)))
	}

	return dto.SubmissionListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *submissionService) Get(ctx context.Context, actor policy.Actor, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionRead); err != nil {
		return dto.SubmissionResponse{}, err
	}

	return dto.NewSubmissionResponse(submission, grading.CalculatedScore(submission)), nil
}

func (s *submissionService) Submit(ctx context.Context, actor policy.Actor, req dto.SubmissionCreateRequest, files []FileUpload) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid submission payload")
	}

	assignment, err := s.getAssignment(ctx, req.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmissionCreate(ctx, actor, assignment); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if assignment.Status != models.AssignmentStatusPublished {
		return dto.SubmissionResponse{}, apperr.Conflict("assignment %d is not accepting submissions in status %q", assignment.ID, assignment.Status)
	}

	attempts, err := s.submissions.CountForAttempt(ctx, assignment.ID, actor.ID)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	maxSubmissions := assignment.Requirements.MaxSubmissions
	if maxSubmissions < 1 {
		maxSubmissions = 1
	}
	if attempts >= int64(maxSubmissions) {
		return dto.SubmissionResponse{}, apperr.Validation("submission limit of %d reached for assignment %d", maxSubmissions, assignment.ID)
	}

	submittedAt := s.now()
	isLate := grading.IsLate(assignment, submittedAt)
	if isLate && !assignment.Requirements.AllowLateSubmission {
		return dto.SubmissionResponse{}, apperr.Validation("assignment %d does not accept late submissions", assignment.ID)
	}

	if err := s.validateFiles(assignment.Requirements, files); err != nil {
		return dto.SubmissionResponse{}, err
	}

	stored, err := s.uploadFiles(ctx, files)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	status := models.SubmissionStatusSubmitted
	var penalty float64
	if isLate {
		status = models.SubmissionStatusLate
		penalty = grading.LatePenaltyPercent(assignment.Requirements)
	}

	submission := models.Submission{
		AssignmentID:       assignment.ID,
		StudentID:          actor.ID,
		Files:              stored,
		SubmittedAt:        submittedAt,
		Comments:           s.sanitizer.Sanitize(req.Comments),
		Status:             status,
		IsLate:             isLate,
		LatePenaltyPercent: penalty,
	}
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "submitted",
		ActorID: actor.ID,
		At:      submittedAt,
	})

	if err := s.submissions.Create(ctx, &submission, maxSubmissions); err != nil {
		s.releaseFiles(ctx, stored)
		switch {
		case errors.Is(err, repository.ErrSubmissionLimitReached):
			return dto.SubmissionResponse{}, apperr.Validation("submission limit of %d reached for assignment %d", maxSubmissions, assignment.ID)
		case errors.Is(err, repository.ErrSubmissionNumberConflict):
			return dto.SubmissionResponse{}, apperr.Conflict("could not allocate a submission number; retry the submission")
		}
		return dto.SubmissionResponse{}, err
	}

	s.refreshStats(ctx, assignment.ID)
	s.recordActivity(ctx, actor, "submission.created", submission.ID, map[string]interface{}{
		"assignment_id":     assignment.ID,
		"submission_number": submission.SubmissionNumber,
		"is_late":           isLate,
	})
	s.logger.Info().
		Uint("submission_id", submission.ID).
		Uint("assignment_id", assignment.ID).
		Int("submission_number", submission.SubmissionNumber).
		Bool("is_late", isLate).
		Msg("submission created")

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) Grade(ctx context.Context, actor policy.Actor, id uint, req dto.GradeSubmissionRequest) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "submission.grade", trace.WithAttributes(
		attribute.Int64("submission.id", int64(id)),
	))
	defer span.End()

	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid grading payload")
	}
	if req.NumericalScore == nil && req.Grade == nil && len(req.CriteriaScores) == 0 {
		return dto.SubmissionResponse{}, apperr.Validation("grading payload must carry a score, a grade, or criteria scores")
	}

	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionGrade); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	switch submission.Status {
	case models.SubmissionStatusSubmitted, models.SubmissionStatusLate, models.SubmissionStatusUnderReview, models.SubmissionStatusGraded:
	default:
		return dto.SubmissionResponse{}, apperr.Conflict("submission %d cannot be graded in status %q", submission.ID, submission.Status)
	}

	scores := toCriteriaScores(req.CriteriaScores)
	if len(scores) > 0 {
		if err := grading.ValidateCriteriaScores(scores); err != nil {
			return dto.SubmissionResponse{}, err
		}
		if err := matchRubric(submission.Assignment.GradingCriteria, scores); err != nil {
			return dto.SubmissionResponse{}, err
		}
	}
	if req.NumericalScore != nil && len(scores) > 0 && !grading.ScoresAgree(*req.NumericalScore, scores) {
		return dto.SubmissionResponse{}, apperr.Validation("numerical score does not match the criteria score total")
	}

	now := s.now()
	submission.NumericalScore = req.NumericalScore
	submission.Grade = req.Grade
	submission.CriteriaScores = scores
	if req.Feedback != nil {
		submission.Feedback = toFeedback(*req.Feedback)
	}
	submission.Status = models.SubmissionStatusGraded
	submission.ReviewedBy = &actor.ID
	submission.ReviewedAt = &now
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "graded",
		ActorID: actor.ID,
		At:      now,
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.refreshStats(ctx, submission.AssignmentID)
	s.recordActivity(ctx, actor, "submission.graded", submission.ID, map[string]interface{}{
		"assignment_id": submission.AssignmentID,
	})
	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission graded")

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) ReturnForRevision(ctx context.Context, actor policy.Actor, id uint, req dto.ReturnSubmissionRequest) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionReturn); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	switch submission.Status {
	case models.SubmissionStatusSubmitted, models.SubmissionStatusLate, models.SubmissionStatusUnderReview, models.SubmissionStatusGraded:
	default:
		return dto.SubmissionResponse{}, apperr.Conflict("submission %d cannot be returned in status %q", submission.ID, submission.Status)
	}

	submission.Status = models.SubmissionStatusReturned
	submission.Feedback = toFeedback(req.Feedback)
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "returned",
		ActorID: actor.ID,
		At:      s.now(),
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.recordActivity(ctx, actor, "submission.returned", submission.ID, nil)
	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission returned for revision")

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) Reject(ctx context.Context, actor policy.Actor, id uint, reason string) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionReturn); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if submission.Status == models.SubmissionStatusRejected || submission.IsGraded() {
		return dto.SubmissionResponse{}, apperr.Conflict("submission %d cannot be rejected in status %q", submission.ID, submission.Status)
	}

	submission.Status = models.SubmissionStatusRejected
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "rejected",
		ActorID: actor.ID,
		Note:    s.sanitizer.Sanitize(reason),
		At:      s.now(),
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.refreshStats(ctx, submission.AssignmentID)
	s.recordActivity(ctx, actor, "submission.rejected", submission.ID, nil)
	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission rejected")

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) CheckPlagiarism(ctx context.Context, actor policy.Actor, id uint, req dto.PlagiarismCheckRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SubmissionResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid plagiarism payload")
	}

	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionPlagiarism); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	submission.Plagiarism = models.PlagiarismCheck{
		IsChecked:       true,
		SimilarityScore: req.SimilarityScore,
		Flagged:         req.SimilarityScore > plagiarismFlagThreshold,
		ReportURL:       req.ReportURL,
		CheckedAt:       &now,
	}
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "plagiarism_checked",
		ActorID: actor.ID,
		Note:    fmt.Sprintf("similarity %.1f%%", req.SimilarityScore),
		At:      now,
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.refreshStats(ctx, submission.AssignmentID)
	s.recordActivity(ctx, actor, "submission.plagiarism_checked", submission.ID, map[string]interface{}{
		"similarity_score": req.SimilarityScore,
		"flagged":          submission.Plagiarism.Flagged,
	})
	if submission.Plagiarism.Flagged {
		s.logger.Warn().Uint("submission_id", submission.ID).Float64("similarity", req.SimilarityScore).Msg("submission flagged for plagiarism")
	}

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) Verify(ctx context.Context, actor policy.Actor, id uint, req dto.VerifySubmissionRequest) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionVerify); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	now := s.now()
	submission.Verification = models.Verification{
		IsVerified: true,
		VerifiedBy: actor.ID,
		VerifiedAt: &now,
		Notes:      s.sanitizer.Sanitize(req.Notes),
	}
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "verified",
		ActorID: actor.ID,
		At:      now,
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	s.refreshStats(ctx, submission.AssignmentID)
	s.recordActivity(ctx, actor, "submission.verified", submission.ID, nil)

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) AddFile(ctx context.Context, actor policy.Actor, id uint, file FileUpload) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionFileAdd); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if !submission.FilesMutable() {
		return dto.SubmissionResponse{}, apperr.Conflict("files are frozen in status %q", submission.Status)
	}

	if err := s.validateFiles(submission.Assignment.Requirements, []FileUpload{file}); err != nil {
		return dto.SubmissionResponse{}, err
	}
	for _, existing := range submission.Files {
		if existing.Name == file.Name {
			return dto.SubmissionResponse{}, apperr.Validation("file %q already attached", file.Name)
		}
	}

	stored, err := s.uploadFiles(ctx, []FileUpload{file})
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission.Files = append(submission.Files, stored...)
	action := "file_added"
	// Reattaching work to a returned submission puts it back in front of the
	// grader.
	if submission.Status == models.SubmissionStatusReturned {
		submission.Status = models.SubmissionStatusUnderReview
		action = "resubmitted"
	}
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  action,
		ActorID: actor.ID,
		Note:    file.Name,
		At:      s.now(),
	})

	if err := s.persist(ctx, &submission); err != nil {
		s.releaseFiles(ctx, stored)
		return dto.SubmissionResponse{}, err
	}

	s.recordActivity(ctx, actor, "submission.file_added", submission.ID, map[string]interface{}{"file": file.Name})

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) RemoveFile(ctx context.Context, actor policy.Actor, id uint, fileName string) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionFileRemove); err != nil {
		return dto.SubmissionResponse{}, err
	}
	if err := requireMutable(submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	if !submission.FilesMutable() {
		return dto.SubmissionResponse{}, apperr.Conflict("files are frozen in status %q", submission.Status)
	}

	var removed *models.SubmissionFile
	kept := make([]models.SubmissionFile, 0, len(submission.Files))
	for _, file := range submission.Files {
		if file.Name == fileName && removed == nil {
			f := file
			removed = &f
			continue
		}
		kept = append(kept, file)
	}
	if removed == nil {
		return dto.SubmissionResponse{}, apperr.NotFound("file %q is not attached to submission %d", fileName, submission.ID)
	}

	submission.Files = kept
	submission.History = models.AppendHistory(submission.History, models.HistoryEntry{
		Action:  "file_removed",
		ActorID: actor.ID,
		Note:    fileName,
		At:      s.now(),
	})

	if err := s.persist(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	// The row no longer references the blob; cleanup failures only leak
	// storage, never consistency.
	if err := s.storage.Delete(ctx, removed.URL); err != nil {
		s.logger.Warn().Err(err).Str("url", removed.URL).Msg("failed to delete stored file")
	}

	s.recordActivity(ctx, actor, "submission.file_removed", submission.ID, map[string]interface{}{"file": fileName})

	return s.respond(ctx, submission.ID)
}

func (s *submissionService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return err
	}

	if err := s.policy.AuthorizeSubmission(ctx, actor, submission, submission.Assignment, policy.ActionSubmissionDelete); err != nil {
		return err
	}
	if err := requireMutable(submission); err != nil {
		return err
	}

	if submission.IsGraded() {
		return apperr.Conflict("graded submission %d cannot be deleted", submission.ID)
	}

	if err := s.submissions.Delete(ctx, submission.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("submission %d not found", submission.ID)
		}
		return err
	}

	s.releaseFiles(ctx, submission.Files)
	s.refreshStats(ctx, submission.AssignmentID)
	s.recordActivity(ctx, actor, "submission.deleted", submission.ID, map[string]interface{}{
		"assignment_id": submission.AssignmentID,
	})
	s.logger.Info().Uint("submission_id", submission.ID).Msg("submission deleted")
	return nil
}

// requireMutable rejects writes once the parent assignment is archived;
// archived coursework is read-only.
func requireMutable(submission models.Submission) error {
	if submission.Assignment.IsArchived() {
		return apperr.Conflict("assignment %d is archived; submission %d can no longer change", submission.AssignmentID, submission.ID)
	}
	return nil
}

func (s *submissionService) getSubmission(ctx context.Context, id uint) (models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Submission{}, apperr.NotFound("submission %d not found", id)
		}
		return models.Submission{}, err
	}
	return submission, nil
}

func (s *submissionService) getAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, apperr.NotFound("assignment %d not found", id)
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *submissionService) persist(ctx context.Context, submission *models.Submission) error {
	if err := s.submissions.Update(ctx, submission); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return apperr.Conflict("submission %d was modified concurrently", submission.ID)
		}
		return err
	}
	return nil
}

func (s *submissionService) respond(ctx context.Context, id uint) (dto.SubmissionResponse, error) {
	submission, err := s.getSubmission(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission, grading.CalculatedScore(submission)), nil
}

func (s *submissionService) validateFiles(requirements models.AssignmentRequirements, files []FileUpload) error {
	maxBytes := int64(requirements.MaxFileSizeMB * 1024 * 1024)

	for _, file := range files {
		if strings.TrimSpace(file.Name) == "" {
			return apperr.Validation("attachment name is required")
		}
		if maxBytes > 0 && file.Size > maxBytes {
			return apperr.Validation("file %q exceeds the %.1f MB limit", file.Name, requirements.MaxFileSizeMB)
		}
		if len(requirements.AllowedFileTypes) == 0 {
			continue
		}

		detected, err := mimetype.DetectReader(file.Content)
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, fmt.Sprintf("could not detect type of %q", file.Name))
		}
		if _, err := file.Content.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind %q: %w", file.Name, err)
		}

		if !fileTypeAllowed(requirements.AllowedFileTypes, file.Name, detected) {
			return apperr.Validation("file type of %q is not allowed", file.Name)
		}
	}
	return nil
}

// fileTypeAllowed accepts a match on extension or on the sniffed MIME type,
// so "pdf", ".pdf", and "application/pdf" all work as allow-list entries.
func fileTypeAllowed(allowed []string, name string, detected *mimetype.MIME) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, entry := range allowed {
		normalized := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(entry)), ".")
		if normalized == "" {
			continue
		}
		if normalized == ext {
			return true
		}
		if strings.Contains(normalized, "/") && detected.Is(normalized) {
			return true
		}
	}
	return false
}

func (s *submissionService) uploadFiles(ctx context.Context, files []FileUpload) ([]models.SubmissionFile, error) {
	stored := make([]models.SubmissionFile, 0, len(files))
	for _, file := range files {
		url, err := s.storage.Upload(ctx, file.Name, file.Content)
		if err != nil {
			s.releaseFiles(ctx, stored)
			return nil, fmt.Errorf("upload %q: %w", file.Name, err)
		}
		stored = append(stored, models.SubmissionFile{
			Name:       file.Name,
			URL:        url,
			Size:       file.Size,
			Type:       strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Name)), "."),
			UploadedAt: s.now(),
		})
	}
	return stored, nil
}

func (s *submissionService) releaseFiles(ctx context.Context, files []models.SubmissionFile) {
	for _, file := range files {
		if err := s.storage.Delete(ctx, file.URL); err != nil {
			s.logger.Warn().Err(err).Str("url", file.URL).Msg("failed to delete stored file")
		}
	}
}

func (s *submissionService) refreshStats(ctx context.Context, assignmentID uint) {
	if s.stats == nil {
		return
	}
	if _, err := s.stats.Recompute(ctx, assignmentID); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to refresh assignment statistics")
	}
}

func (s *submissionService) recordActivity(ctx context.Context, actor policy.Actor, action string, entityID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	id := entityID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "submission",
		EntityID:   &id,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

// matchRubric checks each criteria score against the assignment's rubric:
// the criterion must exist and its max points must match.
func matchRubric(rubric []models.GradingCriterion, scores []models.CriteriaScore) error {
	byName := make(map[string]float64, len(rubric))
	for _, criterion := range rubric {
		byName[criterion.Criterion] = criterion.MaxPoints
	}

	for _, score := range scores {
		maxPoints, ok := byName[score.Criterion]
		if !ok {
			return apperr.Validation("criterion %q is not in the rubric", score.Criterion)
		}
		if maxPoints != score.MaxPoints {
			return apperr.Validation("criterion %q max points %.2f does not match the rubric's %.2f", score.Criterion, score.MaxPoints, maxPoints)
		}
	}
	return nil
}

func toCriteriaScores(payloads []dto.CriteriaScorePayload) []models.CriteriaScore {
	scores := make([]models.CriteriaScore, 0, len(payloads))
	for _, payload := range payloads {
		scores = append(scores, models.CriteriaScore{
			Criterion:    payload.Criterion,
			MaxPoints:    payload.MaxPoints,
			EarnedPoints: payload.EarnedPoints,
			Feedback:     payload.Feedback,
		})
	}
	return scores
}

func toFeedback(payload dto.FeedbackPayload) models.SubmissionFeedback {
	return models.SubmissionFeedback{
		General:      payload.General,
		Strengths:    payload.Strengths,
		Improvements: payload.Improvements,
	}
}
