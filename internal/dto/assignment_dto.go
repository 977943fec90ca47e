package dto

import (
	"time"

	"github.com/acadops/campus-api/internal/models"
)

// GradingCriterionPayload is one rubric entry in a create/update request.
type GradingCriterionPayload struct {
	Criterion string  `json:"criterion" validate:"required,min=1"`
	MaxPoints float64 `json:"max_points" validate:"gte=0"`
}

// RequirementsPayload carries submission constraints.
type RequirementsPayload struct {
	MaxSubmissions      int      `json:"max_submissions" validate:"omitempty,gte=1"`
	AllowLateSubmission bool     `json:"allow_late_submission"`
	LatePenaltyPercent  float64  `json:"late_penalty_percent" validate:"gte=0,lte=100"`
	MaxFileSizeMB       float64  `json:"max_file_size_mb" validate:"gte=0"`
	AllowedFileTypes    []string `json:"allowed_file_types"`
}

// AssignmentCreateRequest describes the payload for creating an assignment.
// FacultyID is optional; it defaults to the course's owning faculty member.
type AssignmentCreateRequest struct {
	CourseID        uint                      `json:"course_id" validate:"required"`
	FacultyID       *uint                     `json:"faculty_id"`
	Title           string                    `json:"title" validate:"required,min=3"`
	Description     string                    `json:"description"`
	AssignmentType  string                    `json:"assignment_type"`
	Difficulty      string                    `json:"difficulty"`
	TotalPoints     float64                   `json:"total_points" validate:"required,gt=0"`
	GradingCriteria []GradingCriterionPayload `json:"grading_criteria" validate:"dive"`
	DueDate         string                    `json:"due_date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	ExtendedDueDate *string                   `json:"extended_due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Requirements    *RequirementsPayload      `json:"requirements"`
	IsVisible       *bool                     `json:"is_visible"`
	Tags            []string                  `json:"tags"`
}

// AssignmentUpdateRequest describes a partial update.
type AssignmentUpdateRequest struct {
	Title           *string                   `json:"title" validate:"omitempty,min=3"`
	Description     *string                   `json:"description"`
	AssignmentType  *string                   `json:"assignment_type"`
	Difficulty      *string                   `json:"difficulty"`
	TotalPoints     *float64                  `json:"total_points" validate:"omitempty,gt=0"`
	GradingCriteria []GradingCriterionPayload `json:"grading_criteria" validate:"omitempty,dive"`
	DueDate         *string                   `json:"due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	ExtendedDueDate *string                   `json:"extended_due_date" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Requirements    *RequirementsPayload      `json:"requirements"`
	IsVisible       *bool                     `json:"is_visible"`
	Tags            []string                  `json:"tags"`
}

// AssignmentTransitionRequest names the target lifecycle state.
type AssignmentTransitionRequest struct {
	Target string `json:"target" validate:"required,oneof=draft published submission_closed grading completed archived"`
}

// AssignmentListRequest captures listing filters.
type AssignmentListRequest struct {
	CourseID uint   `query:"course_id"`
	Status   string `query:"status"`
	Search   string `query:"search"`
	Sort     string `query:"sort"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// AssignmentResponse is the serialized representation returned to clients.
type AssignmentResponse struct {
	ID              uint                            `json:"id"`
	CourseID        uint                            `json:"course_id"`
	CourseCode      string                          `json:"course_code,omitempty"`
	FacultyID       uint                            `json:"faculty_id"`
	FacultyName     string                          `json:"faculty_name,omitempty"`
	CreatedBy       uint                            `json:"created_by"`
	Title           string                          `json:"title"`
	Description     string                          `json:"description"`
	AssignmentType  string                          `json:"assignment_type"`
	Difficulty      string                          `json:"difficulty"`
	TotalPoints     float64                         `json:"total_points"`
	GradingCriteria []models.GradingCriterion       `json:"grading_criteria"`
	DueDate         time.Time                       `json:"due_date"`
	ExtendedDueDate *time.Time                      `json:"extended_due_date,omitempty"`
	Requirements    models.AssignmentRequirements   `json:"requirements"`
	Status          string                          `json:"status"`
	IsVisible       bool                            `json:"is_visible"`
	Tags            []string                        `json:"tags"`
	Stats           *models.AssignmentStats         `json:"stats,omitempty"`
	History         []models.HistoryEntry           `json:"history,omitempty"`
	CreatedAt       time.Time                       `json:"created_at"`
	UpdatedAt       time.Time                       `json:"updated_at"`
}

// AssignmentListResponse combines rows with pagination metadata.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	response := AssignmentResponse{
		ID:              model.ID,
		CourseID:        model.CourseID,
		CourseCode:      model.Course.Code,
		FacultyID:       model.FacultyID,
		FacultyName:     model.Faculty.Name,
		CreatedBy:       model.CreatedBy,
		Title:           model.Title,
		Description:     model.Description,
		AssignmentType:  model.AssignmentType,
		Difficulty:      model.Difficulty,
		TotalPoints:     model.TotalPoints,
		GradingCriteria: model.GradingCriteria,
		DueDate:         model.DueDate,
		ExtendedDueDate: model.ExtendedDueDate,
		Requirements:    model.Requirements,
		Status:          model.Status,
		IsVisible:       model.IsVisible,
		Tags:            model.Tags,
		Stats:           model.Stats,
		History:         model.History,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	return response
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
