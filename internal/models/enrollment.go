package models

import "time"

// Enrollment statuses.
const (
	EnrollmentStatusActive  = "active"
	EnrollmentStatusDropped = "dropped"
)

// Enrollment links a student to a course for a semester. The permission
// policy consults it to decide which assignments a student may see.
type Enrollment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	StudentID    uint      `gorm:"not null;index;uniqueIndex:uniq_enrollment" json:"student_id"`
	CourseID     uint      `gorm:"not null;index;uniqueIndex:uniq_enrollment" json:"course_id"`
	Status       string    `gorm:"size:32;not null" json:"status"`
	Semester     string    `gorm:"size:32" json:"semester"`
	AcademicYear string    `gorm:"size:16" json:"academic_year"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	Student User   `gorm:"constraint:OnUpdate:CASCADE" json:"student"`
	Course  Course `gorm:"constraint:OnUpdate:CASCADE" json:"course"`
}
