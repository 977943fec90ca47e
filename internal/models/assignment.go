package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment lifecycle states.
const (
	AssignmentStatusDraft            = "draft"
	AssignmentStatusPublished        = "published"
	AssignmentStatusSubmissionClosed = "submission_closed"
	AssignmentStatusGrading          = "grading"
	AssignmentStatusCompleted        = "completed"
	AssignmentStatusArchived         = "archived"
)

// GradingCriterion is one weighted rubric entry. Across a non-empty rubric
// the max points must sum to the assignment's total points.
type GradingCriterion struct {
	Criterion string  `json:"criterion"`
	MaxPoints float64 `json:"max_points"`
}

// AssignmentRequirements captures submission constraints for an assignment.
type AssignmentRequirements struct {
	MaxSubmissions      int      `json:"max_submissions"`
	AllowLateSubmission bool     `json:"allow_late_submission"`
	LatePenaltyPercent  float64  `json:"late_penalty_percent"`
	MaxFileSizeMB       float64  `json:"max_file_size_mb"`
	AllowedFileTypes    []string `json:"allowed_file_types"`
}

// AssignmentStats is the derived summary cached on the assignment. It is
// recomputable from the submissions and never a source of truth.
type AssignmentStats struct {
	TotalSubmissions  int            `json:"total_submissions"`
	OnTimeSubmissions int            `json:"on_time_submissions"`
	LateSubmissions   int            `json:"late_submissions"`
	GradedSubmissions int            `json:"graded_submissions"`
	AverageScore      float64        `json:"average_score"`
	GradeDistribution map[string]int `json:"grade_distribution"`
	PlagiarismFlagged int            `json:"plagiarism_flagged"`
	VerifiedCount     int            `json:"verified_count"`
	ComputedAt        time.Time      `json:"computed_at"`
}

// Assignment is a gradable task issued by a faculty member for a course.
type Assignment struct {
	ID              uint                                  `gorm:"primaryKey" json:"id"`
	CourseID        uint                                  `gorm:"not null;index" json:"course_id"`
	FacultyID       uint                                  `gorm:"not null;index" json:"faculty_id"`
	CreatedBy       uint                                  `gorm:"not null" json:"created_by"`
	Title           string                                `gorm:"size:255;not null" json:"title"`
	Description     string                                `gorm:"type:text" json:"description"`
	AssignmentType  string                                `gorm:"size:64" json:"assignment_type"`
	Difficulty      string                                `gorm:"size:32" json:"difficulty"`
	TotalPoints     float64                               `gorm:"not null" json:"total_points"`
	GradingCriteria datatypes.JSONSlice[GradingCriterion] `json:"grading_criteria"`
	DueDate         time.Time                             `gorm:"not null" json:"due_date"`
	ExtendedDueDate *time.Time                            `json:"extended_due_date"`
	Requirements    AssignmentRequirements                `gorm:"serializer:json" json:"requirements"`
	Status          string                                `gorm:"size:32;not null;index" json:"status"`
	IsVisible       bool                                  `gorm:"not null;default:true" json:"is_visible"`
	Tags            datatypes.JSONSlice[string]           `json:"tags"`
	Stats           *AssignmentStats                      `gorm:"serializer:json" json:"stats"`
	History         History                               `json:"history"`
	Version         int                                   `gorm:"not null;default:1" json:"version"`
	CreatedAt       time.Time                             `json:"created_at"`
	UpdatedAt       time.Time                             `json:"updated_at"`

	Course  Course `gorm:"constraint:OnUpdate:CASCADE" json:"course"`
	Faculty User   `gorm:"constraint:OnUpdate:CASCADE" json:"faculty"`
}

// assignmentTransitions encodes the forward edges of the lifecycle graph.
// Archiving is handled separately: it is reachable from any non-terminal
// state.
var assignmentTransitions = map[string]string{
	AssignmentStatusDraft:            AssignmentStatusPublished,
	AssignmentStatusPublished:        AssignmentStatusSubmissionClosed,
	AssignmentStatusSubmissionClosed: AssignmentStatusGrading,
	AssignmentStatusGrading:          AssignmentStatusCompleted,
	AssignmentStatusCompleted:        AssignmentStatusArchived,
}

// CanTransitionTo reports whether the lifecycle permits moving to target.
func (a Assignment) CanTransitionTo(target string) bool {
	if a.Status == AssignmentStatusArchived {
		return false
	}
	if target == AssignmentStatusArchived {
		return true
	}
	return assignmentTransitions[a.Status] == target
}

// EffectiveDueDate returns the extended due date when one is set.
func (a Assignment) EffectiveDueDate() time.Time {
	if a.ExtendedDueDate != nil {
		return *a.ExtendedDueDate
	}
	return a.DueDate
}

// IsPastDue reports whether reference falls after the effective due date.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.EffectiveDueDate())
}

// ContentEditable reports whether core content (due date, criteria, total
// points) may still be edited.
func (a Assignment) ContentEditable() bool {
	return a.Status == AssignmentStatusDraft || a.Status == AssignmentStatusPublished
}

// IsArchived reports whether the assignment has been retired.
func (a Assignment) IsArchived() bool {
	return a.Status == AssignmentStatusArchived
}
