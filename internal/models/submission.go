package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission lifecycle states. A late submission enters at "late" instead of
// "submitted"; "rejected" is the terminal alternative when intake validation
// fails outright.
const (
	SubmissionStatusSubmitted   = "submitted"
	SubmissionStatusLate        = "late"
	SubmissionStatusUnderReview = "under_review"
	SubmissionStatusGraded      = "graded"
	SubmissionStatusReturned    = "returned"
	SubmissionStatusRejected    = "rejected"
)

// SubmissionFile describes one stored attachment.
type SubmissionFile struct {
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	Size       int64     `json:"size"`
	Type       string    `json:"type"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// CriteriaScore records earned points against one rubric criterion.
type CriteriaScore struct {
	Criterion    string  `json:"criterion"`
	MaxPoints    float64 `json:"max_points"`
	EarnedPoints float64 `json:"earned_points"`
	Feedback     string  `json:"feedback,omitempty"`
}

// SubmissionFeedback is the grader's structured commentary.
type SubmissionFeedback struct {
	General      string   `json:"general,omitempty"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// PlagiarismCheck captures the outcome of a similarity scan.
type PlagiarismCheck struct {
	IsChecked       bool       `json:"is_checked"`
	SimilarityScore float64    `json:"similarity_score"`
	Flagged         bool       `json:"flagged"`
	ReportURL       string     `json:"report_url,omitempty"`
	CheckedAt       *time.Time `json:"checked_at,omitempty"`
}

// Verification marks a submission as authenticated by staff.
type Verification struct {
	IsVerified bool       `json:"is_verified"`
	VerifiedBy uint       `json:"verified_by,omitempty"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Submission is a student's numbered attempt at an assignment. The
// submission number is unique per (assignment, student) and allocated
// transactionally to survive concurrent attempts.
type Submission struct {
	ID                 uint                                `gorm:"primaryKey" json:"id"`
	AssignmentID       uint                                `gorm:"not null;index;uniqueIndex:uniq_submission_number" json:"assignment_id"`
	StudentID          uint                                `gorm:"not null;index;uniqueIndex:uniq_submission_number" json:"student_id"`
	SubmissionNumber   int                                 `gorm:"not null;uniqueIndex:uniq_submission_number" json:"submission_number"`
	Files              datatypes.JSONSlice[SubmissionFile] `json:"files"`
	SubmittedAt        time.Time                           `gorm:"not null" json:"submitted_at"`
	Comments           string                              `gorm:"type:text" json:"comments"`
	Status             string                              `gorm:"size:32;not null;index" json:"status"`
	IsLate             bool                                `gorm:"not null" json:"is_late"`
	LatePenaltyPercent float64                             `json:"late_penalty_percent"`
	Grade              *string                             `gorm:"size:4" json:"grade"`
	NumericalScore     *float64                            `json:"numerical_score"`
	CriteriaScores     datatypes.JSONSlice[CriteriaScore]  `json:"criteria_scores"`
	Feedback           SubmissionFeedback                  `gorm:"serializer:json" json:"feedback"`
	ReviewedBy         *uint                               `json:"reviewed_by"`
	ReviewedAt         *time.Time                          `json:"reviewed_at"`
	Plagiarism         PlagiarismCheck                     `gorm:"serializer:json" json:"plagiarism_check"`
	Verification       Verification                        `gorm:"serializer:json" json:"verification"`
	History            History                             `json:"history"`
	Version            int                                 `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time                           `json:"created_at"`
	UpdatedAt          time.Time                           `json:"updated_at"`

	Assignment Assignment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	Student    User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"student"`
}

// IsGraded reports whether the submission has a final grade.
func (s Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}

// FilesMutable reports whether the owning student may still add or remove
// attachments.
func (s Submission) FilesMutable() bool {
	switch s.Status {
	case SubmissionStatusSubmitted, SubmissionStatusLate, SubmissionStatusReturned:
		return true
	default:
		return false
	}
}
