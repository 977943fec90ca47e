package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/models"
)

// ActiveEnrollment summarises a student's current course memberships.
type ActiveEnrollment struct {
	CourseIDs    []uint
	Semester     string
	AcademicYear string
}

// EnrollmentRepository answers enrollment questions for the permission
// policy and for student-scoped assignment listings.
type EnrollmentRepository interface {
	IsEnrolled(ctx context.Context, studentID, courseID uint) (bool, error)
	ActiveEnrollment(ctx context.Context, studentID uint) (ActiveEnrollment, error)
}

type enrollmentRepository struct {
	db *gorm.DB
}

// NewEnrollmentRepository instantiates the repository.
func NewEnrollmentRepository(db *gorm.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status = ?", studentID, courseID, models.EnrollmentStatusActive).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *enrollmentRepository) ActiveEnrollment(ctx context.Context, studentID uint) (ActiveEnrollment, error) {
	var enrollments []models.Enrollment
	err := r.db.WithContext(ctx).
		Where("student_id = ? AND status = ?", studentID, models.EnrollmentStatusActive).
		Order("created_at ASC").
		Find(&enrollments).Error
	if err != nil {
		return ActiveEnrollment{}, err
	}

	active := ActiveEnrollment{CourseIDs: make([]uint, 0, len(enrollments))}
	for _, enrollment := range enrollments {
		active.CourseIDs = append(active.CourseIDs, enrollment.CourseID)
		active.Semester = enrollment.Semester
		active.AcademicYear = enrollment.AcademicYear
	}

	return active, nil
}
