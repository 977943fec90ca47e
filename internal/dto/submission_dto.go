package dto

import (
	"time"

	"github.com/acadops/campus-api/internal/models"
)

// SubmissionCreateRequest describes the intake payload. Files arrive as
// multipart attachments alongside this form payload.
type SubmissionCreateRequest struct {
	AssignmentID uint   `form:"assignment_id" json:"assignment_id" validate:"required"`
	Comments     string `form:"comments" json:"comments"`
}

// CriteriaScorePayload records earned points against one rubric criterion.
type CriteriaScorePayload struct {
	Criterion    string  `json:"criterion" validate:"required"`
	MaxPoints    float64 `json:"max_points" validate:"gte=0"`
	EarnedPoints float64 `json:"earned_points" validate:"gte=0"`
	Feedback     string  `json:"feedback"`
}

// FeedbackPayload is the grader's structured commentary.
type FeedbackPayload struct {
	General      string   `json:"general"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
}

// GradeSubmissionRequest carries the grading data.
type GradeSubmissionRequest struct {
	NumericalScore *float64               `json:"numerical_score" validate:"omitempty,gte=0,lte=100"`
	Grade          *string                `json:"grade" validate:"omitempty,oneof=A B C D F"`
	CriteriaScores []CriteriaScorePayload `json:"criteria_scores" validate:"omitempty,dive"`
	Feedback       *FeedbackPayload       `json:"feedback"`
}

// ReturnSubmissionRequest asks for a revision with feedback.
type ReturnSubmissionRequest struct {
	Feedback FeedbackPayload `json:"feedback"`
}

// PlagiarismCheckRequest records a similarity scan result.
type PlagiarismCheckRequest struct {
	SimilarityScore float64 `json:"similarity_score" validate:"gte=0,lte=100"`
	ReportURL       string  `json:"report_url" validate:"omitempty,url"`
}

// VerifySubmissionRequest marks a submission as verified.
type VerifySubmissionRequest struct {
	Notes string `json:"notes"`
}

// SubmissionListRequest captures listing filters.
type SubmissionListRequest struct {
	AssignmentID uint   `query:"assignment_id"`
	StudentID    uint   `query:"student_id"`
	Status       string `query:"status"`
	Page         int    `query:"page" validate:"omitempty,gte=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// SubmissionResponse is the serialized representation returned to clients.
// CalculatedScore is derived on read, never stored.
type SubmissionResponse struct {
	ID                 uint                      `json:"id"`
	AssignmentID       uint                      `json:"assignment_id"`
	AssignmentTitle    string                    `json:"assignment_title,omitempty"`
	StudentID          uint                      `json:"student_id"`
	StudentName        string                    `json:"student_name,omitempty"`
	SubmissionNumber   int                       `json:"submission_number"`
	Files              []models.SubmissionFile   `json:"files"`
	SubmittedAt        time.Time                 `json:"submitted_at"`
	Comments           string                    `json:"comments,omitempty"`
	Status             string                    `json:"status"`
	IsLate             bool                      `json:"is_late"`
	LatePenaltyPercent float64                   `json:"late_penalty_percent"`
	Grade              *string                   `json:"grade,omitempty"`
	NumericalScore     *float64                  `json:"numerical_score,omitempty"`
	CalculatedScore    *float64                  `json:"calculated_score,omitempty"`
	CriteriaScores     []models.CriteriaScore    `json:"criteria_scores"`
	Feedback           models.SubmissionFeedback `json:"feedback"`
	ReviewedBy         *uint                     `json:"reviewed_by,omitempty"`
	ReviewedAt         *time.Time                `json:"reviewed_at,omitempty"`
	Plagiarism         models.PlagiarismCheck    `json:"plagiarism_check"`
	Verification       models.Verification       `json:"verification"`
	History            []models.HistoryEntry     `json:"history,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// SubmissionListResponse combines rows with pagination metadata.
type SubmissionListResponse struct {
	Items      []SubmissionResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// NewSubmissionResponse converts a model into a DTO. calculatedScore is
// supplied by the caller so the scoring rules stay in one place.
func NewSubmissionResponse(model models.Submission, calculatedScore *float64) SubmissionResponse {
	return SubmissionResponse{
		ID:                 model.ID,
		AssignmentID:       model.AssignmentID,
		AssignmentTitle:    model.Assignment.Title,
		StudentID:          model.StudentID,
		StudentName:        model.Student.Name,
		SubmissionNumber:   model.SubmissionNumber,
		Files:              model.Files,
		SubmittedAt:        model.SubmittedAt,
		Comments:           model.Comments,
		Status:             model.Status,
		IsLate:             model.IsLate,
		LatePenaltyPercent: model.LatePenaltyPercent,
		Grade:              model.Grade,
		NumericalScore:     model.NumericalScore,
		CalculatedScore:    calculatedScore,
		CriteriaScores:     model.CriteriaScores,
		Feedback:           model.Feedback,
		ReviewedBy:         model.ReviewedBy,
		ReviewedAt:         model.ReviewedAt,
		Plagiarism:         model.Plagiarism,
		Verification:       model.Verification,
		History:            model.History,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}
