package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/dto"
	"github.com/acadops/campus-api/internal/grading"
	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/repository"
)

// AssignmentService drives the assignment lifecycle: creation, edits, state
// transitions, and retirement.
type AssignmentService interface {
	List(ctx context.Context, actor policy.Actor, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
	Get(ctx context.Context, actor policy.Actor, id uint) (dto.AssignmentResponse, error)
	Create(ctx context.Context, actor policy.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error)
	Update(ctx context.Context, actor policy.Actor, id uint, patch dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error)
	Transition(ctx context.Context, actor policy.Actor, id uint, target string) (dto.AssignmentResponse, error)
	Delete(ctx context.Context, actor policy.Actor, id uint) error
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	courses     repository.CourseRepository
	users       repository.UserRepository
	enrollments repository.EnrollmentRepository
	policy      *policy.Policy
	storage     FileStorage
	activity    ActivityRecorder
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewAssignmentService builds the assignment lifecycle service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	courses repository.CourseRepository,
	users repository.UserRepository,
	enrollments repository.EnrollmentRepository,
	authz *policy.Policy,
	storage FileStorage,
	activity ActivityRecorder,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		submissions: submissions,
		courses:     courses,
		users:       users,
		enrollments: enrollments,
		policy:      authz,
		storage:     storage,
		activity:    activity,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		now:         time.Now,
	}
}

func (s *assignmentService) List(ctx context.Context, actor policy.Actor, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentListResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid list request")
	}

	filter := repository.AssignmentFilter{
		Search:   req.Search,
		Sort:     req.Sort,
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.CourseID > 0 {
		filter.CourseID = &req.CourseID
	}
	if req.Status != "" {
		filter.Status = &req.Status
	}

	// Scope the listing by role: faculty see their own assignments, students
	// see published visible assignments in courses they are enrolled in.
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleFaculty:
		filter.FacultyID = &actor.ID
	case models.RoleStudent:
		active, err := s.enrollments.ActiveEnrollment(ctx, actor.ID)
		if err != nil {
			return dto.AssignmentListResponse{}, err
		}
		if len(active.CourseIDs) == 0 {
			return dto.AssignmentListResponse{Items: []dto.AssignmentResponse{}, Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, 0)}, nil
		}
		filter.CourseIDs = active.CourseIDs
		filter.VisibleOnly = true
		filter.Status = nil
	default:
		return dto.AssignmentListResponse{}, apperr.Forbidden("unknown role %q", actor.Role)
	}

	assignments, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(assignments),
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

func (s *assignmentService) Get(ctx context.Context, actor policy.Actor, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.policy.AuthorizeAssignment(ctx, actor, assignment, policy.ActionAssignmentRead); err != nil {
		return dto.AssignmentResponse{}, err
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Create(ctx context.Context, actor policy.Actor, payload dto.AssignmentCreateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid assignment payload")
	}

	course, err := s.courses.GetByID(ctx, payload.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, apperr.NotFound("course %d not found", payload.CourseID)
		}
		return dto.AssignmentResponse{}, err
	}

	if err := s.policy.AuthorizeAssignmentCreate(actor, course); err != nil {
		return dto.AssignmentResponse{}, err
	}

	// The faculty owner defaults to the course owner; an admin may create on
	// another faculty member's behalf.
	facultyID := course.FacultyID
	if payload.FacultyID != nil {
		facultyID = *payload.FacultyID
	}
	faculty, err := s.users.GetByID(ctx, facultyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, apperr.NotFound("faculty user %d not found", facultyID)
		}
		return dto.AssignmentResponse{}, err
	}
	if !faculty.IsFaculty() {
		return dto.AssignmentResponse{}, apperr.Validation("user %d is not a faculty member", facultyID)
	}

	dueDate, err := time.Parse(time.RFC3339, payload.DueDate)
	if err != nil {
		return dto.AssignmentResponse{}, apperr.Validation("invalid due date: %v", err)
	}
	if !dueDate.After(s.now()) {
		return dto.AssignmentResponse{}, apperr.Validation("due date must be in the future")
	}

	var extendedDueDate *time.Time
	if payload.ExtendedDueDate != nil {
		parsed, err := time.Parse(time.RFC3339, *payload.ExtendedDueDate)
		if err != nil {
			return dto.AssignmentResponse{}, apperr.Validation("invalid extended due date: %v", err)
		}
		if !parsed.After(dueDate) {
			return dto.AssignmentResponse{}, apperr.Validation("extended due date must be after the due date")
		}
		extendedDueDate = &parsed
	}

	criteria := toCriteria(payload.GradingCriteria)
	if err := grading.ValidateCriteria(criteria, payload.TotalPoints); err != nil {
		return dto.AssignmentResponse{}, err
	}

	requirements := defaultRequirements()
	if payload.Requirements != nil {
		requirements = toRequirements(*payload.Requirements)
	}

	isVisible := true
	if payload.IsVisible != nil {
		isVisible = *payload.IsVisible
	}

	assignment := models.Assignment{
		CourseID:        course.ID,
		FacultyID:       facultyID,
		CreatedBy:       actor.ID,
		Title:           payload.Title,
		Description:     s.sanitizer.Sanitize(payload.Description),
		AssignmentType:  payload.AssignmentType,
		Difficulty:      payload.Difficulty,
		TotalPoints:     payload.TotalPoints,
		GradingCriteria: criteria,
		DueDate:         dueDate,
		ExtendedDueDate: extendedDueDate,
		Requirements:    requirements,
		Status:          models.AssignmentStatusDraft,
		IsVisible:       isVisible,
		Tags:            payload.Tags,
	}
	assignment.History = models.AppendHistory(assignment.History, models.HistoryEntry{
		Action:  "created",
		ActorID: actor.ID,
		At:      s.now(),
	})

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.recordActivity(ctx, actor, "assignment.created", assignment.ID, map[string]interface{}{
		"course_id":  assignment.CourseID,
		"faculty_id": assignment.FacultyID,
	})
	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment created")

	created, err := s.getAssignment(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(created), nil
}

func (s *assignmentService) Update(ctx context.Context, actor policy.Actor, id uint, patch dto.AssignmentUpdateRequest) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(patch); err != nil {
		return dto.AssignmentResponse{}, apperr.Wrap(apperr.KindValidation, err, "invalid assignment patch")
	}

	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.policy.AuthorizeAssignment(ctx, actor, assignment, policy.ActionAssignmentUpdate); err != nil {
		return dto.AssignmentResponse{}, err
	}

	touchesCore := patch.DueDate != nil || patch.GradingCriteria != nil || patch.TotalPoints != nil
	if touchesCore && !assignment.ContentEditable() {
		return dto.AssignmentResponse{}, apperr.Conflict("core content is frozen in status %q", assignment.Status)
	}

	if patch.DueDate != nil {
		count, err := s.submissions.CountByAssignment(ctx, assignment.ID)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		if count > 0 {
			return dto.AssignmentResponse{}, apperr.Conflict("due date cannot change once submissions exist")
		}

		dueDate, err := time.Parse(time.RFC3339, *patch.DueDate)
		if err != nil {
			return dto.AssignmentResponse{}, apperr.Validation("invalid due date: %v", err)
		}
		if !dueDate.After(s.now()) {
			return dto.AssignmentResponse{}, apperr.Validation("due date must be in the future")
		}
		assignment.DueDate = dueDate
	}

	if patch.ExtendedDueDate != nil {
		parsed, err := time.Parse(time.RFC3339, *patch.ExtendedDueDate)
		if err != nil {
			return dto.AssignmentResponse{}, apperr.Validation("invalid extended due date: %v", err)
		}
		if !parsed.After(assignment.DueDate) {
			return dto.AssignmentResponse{}, apperr.Validation("extended due date must be after the due date")
		}
		assignment.ExtendedDueDate = &parsed
	}

	if patch.Title != nil {
		assignment.Title = *patch.Title
	}
	if patch.Description != nil {
		assignment.Description = s.sanitizer.Sanitize(*patch.Description)
	}
	if patch.AssignmentType != nil {
		assignment.AssignmentType = *patch.AssignmentType
	}
	if patch.Difficulty != nil {
		assignment.Difficulty = *patch.Difficulty
	}
	if patch.TotalPoints != nil {
		assignment.TotalPoints = *patch.TotalPoints
	}
	if patch.GradingCriteria != nil {
		assignment.GradingCriteria = toCriteria(patch.GradingCriteria)
	}
	if patch.Requirements != nil {
		assignment.Requirements = toRequirements(*patch.Requirements)
	}
	if patch.IsVisible != nil {
		assignment.IsVisible = *patch.IsVisible
	}
	if patch.Tags != nil {
		assignment.Tags = patch.Tags
	}

	if patch.GradingCriteria != nil || patch.TotalPoints != nil {
		if err := grading.ValidateCriteria(assignment.GradingCriteria, assignment.TotalPoints); err != nil {
			return dto.AssignmentResponse{}, err
		}
	}

	assignment.History = models.AppendHistory(assignment.History, models.HistoryEntry{
		Action:  "updated",
		ActorID: actor.ID,
		At:      s.now(),
	})

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.AssignmentResponse{}, apperr.Conflict("assignment %d was modified concurrently", assignment.ID)
		}
		return dto.AssignmentResponse{}, err
	}

	s.recordActivity(ctx, actor, "assignment.updated", assignment.ID, nil)
	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment updated")

	updated, err := s.getAssignment(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(updated), nil
}

func (s *assignmentService) Transition(ctx context.Context, actor policy.Actor, id uint, target string) (dto.AssignmentResponse, error) {
	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if err := s.policy.AuthorizeAssignment(ctx, actor, assignment, policy.ActionAssignmentTransition); err != nil {
		return dto.AssignmentResponse{}, err
	}

	if !assignment.CanTransitionTo(target) {
		return dto.AssignmentResponse{}, apperr.Conflict("cannot transition from %q to %q", assignment.Status, target)
	}

	previous := assignment.Status
	assignment.Status = target
	assignment.History = models.AppendHistory(assignment.History, models.HistoryEntry{
		Action:  "transitioned",
		ActorID: actor.ID,
		Note:    previous + " -> " + target,
		At:      s.now(),
	})

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return dto.AssignmentResponse{}, apperr.Conflict("assignment %d was modified concurrently", assignment.ID)
		}
		return dto.AssignmentResponse{}, err
	}

	// Entity state is durable before external cleanup begins; failed file
	// releases are logged and never fail the transition.
	if target == models.AssignmentStatusArchived {
		s.releaseStoredFiles(ctx, assignment.ID)
	}

	s.recordActivity(ctx, actor, "assignment.transitioned", assignment.ID, map[string]interface{}{
		"from": previous,
		"to":   target,
	})
	s.logger.Info().Uint("assignment_id", assignment.ID).Str("status", target).Msg("assignment transitioned")

	updated, err := s.getAssignment(ctx, assignment.ID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(updated), nil
}

func (s *assignmentService) Delete(ctx context.Context, actor policy.Actor, id uint) error {
	assignment, err := s.getAssignment(ctx, id)
	if err != nil {
		return err
	}

	if err := s.policy.AuthorizeAssignment(ctx, actor, assignment, policy.ActionAssignmentDelete); err != nil {
		return err
	}

	count, err := s.submissions.CountByAssignment(ctx, assignment.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperr.Conflict("assignment %d has %d submissions; archive it instead", assignment.ID, count)
	}

	if err := s.assignments.Delete(ctx, assignment.ID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("assignment %d not found", assignment.ID)
		}
		return err
	}

	s.recordActivity(ctx, actor, "assignment.deleted", assignment.ID, nil)
	s.logger.Info().Uint("assignment_id", assignment.ID).Msg("assignment deleted")
	return nil
}

func (s *assignmentService) getAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, apperr.NotFound("assignment %d not found", id)
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) releaseStoredFiles(ctx context.Context, assignmentID uint) {
	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("failed to list submissions for file release")
		return
	}

	for _, submission := range submissions {
		for _, file := range submission.Files {
			if err := s.storage.Delete(ctx, file.URL); err != nil {
				s.logger.Warn().Err(err).Str("url", file.URL).Msg("failed to release stored file")
			}
		}
	}
}

func (s *assignmentService) recordActivity(ctx context.Context, actor policy.Actor, action string, entityID uint, metadata map[string]interface{}) {
	if s.activity == nil {
		return
	}
	id := entityID
	if _, err := s.activity.Record(ctx, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "assignment",
		EntityID:   &id,
		Metadata:   metadata,
	}); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record activity")
	}
}

func defaultRequirements() models.AssignmentRequirements {
	return models.AssignmentRequirements{MaxSubmissions: 1}
}

func toRequirements(payload dto.RequirementsPayload) models.AssignmentRequirements {
	requirements := models.AssignmentRequirements{
		MaxSubmissions:      payload.MaxSubmissions,
		AllowLateSubmission: payload.AllowLateSubmission,
		LatePenaltyPercent:  payload.LatePenaltyPercent,
		MaxFileSizeMB:       payload.MaxFileSizeMB,
		AllowedFileTypes:    payload.AllowedFileTypes,
	}
	if requirements.MaxSubmissions < 1 {
		requirements.MaxSubmissions = 1
	}
	return requirements
}

func toCriteria(payloads []dto.GradingCriterionPayload) []models.GradingCriterion {
	criteria := make([]models.GradingCriterion, 0, len(payloads))
	for _, payload := range payloads {
		criteria = append(criteria, models.GradingCriterion{
			Criterion: payload.Criterion,
			MaxPoints: payload.MaxPoints,
		})
	}
	return criteria
}
