package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/models"
)

// submissionNumberRetries bounds how often Create retries after losing the
// unique-index race on (assignment_id, student_id, submission_number).
const submissionNumberRetries = 3

// ErrSubmissionNumberConflict indicates the attempt counter could not be
// allocated after retrying; the caller should surface a conflict.
var ErrSubmissionNumberConflict = errors.New("submission number allocation conflict")

// ErrSubmissionLimitReached indicates the per-student attempt limit was hit
// inside the allocation transaction.
var ErrSubmissionLimitReached = errors.New("submission limit reached")

// SubmissionFilter narrows submission queries.
type SubmissionFilter struct {
	AssignmentID *uint
	StudentID    *uint
	Status       *string
	Page         int
	PageSize     int
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error)
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	CountForAttempt(ctx context.Context, assignmentID, studentID uint) (int64, error)
	CountByAssignment(ctx context.Context, assignmentID uint) (int64, error)
	Create(ctx context.Context, submission *models.Submission, maxSubmissions int) error
	Update(ctx context.Context, submission *models.Submission) error
	Delete(ctx context.Context, id uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment").
		Preload("Student")
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := r.baseQuery(ctx)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var submissions []models.Submission
	if err := query.Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("submitted_at ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) CountForAttempt(ctx context.Context, assignmentID, studentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assignment_id = ? AND student_id = ?", assignmentID, studentID).
		Count(&count).Error
	return count, err
}

func (r *submissionRepository) CountByAssignment(ctx context.Context, assignmentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("assignment_id = ?", assignmentID).
		Count(&count).Error
	return count, err
}

// Create allocates the next submission number inside a transaction. The
// unique index on (assignment_id, student_id, submission_number) catches
// concurrent attempts that read the same count; those retry with a fresh
// count up to submissionNumberRetries times. The attempt limit is enforced
// against the in-transaction count so two racing submits cannot both pass a
// stale service-level check; maxSubmissions <= 0 means unlimited.
func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission, maxSubmissions int) error {
	if submission.Version == 0 {
		submission.Version = 1
	}

	for attempt := 0; attempt < submissionNumberRetries; attempt++ {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&models.Submission{}).
				Where("assignment_id = ? AND student_id = ?", submission.AssignmentID, submission.StudentID).
				Count(&count).Error; err != nil {
				return err
			}
			if maxSubmissions > 0 && count >= int64(maxSubmissions) {
				return ErrSubmissionLimitReached
			}

			submission.SubmissionNumber = int(count) + 1
			return tx.Create(submission).Error
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			submission.ID = 0
			continue
		}
		return err
	}

	return ErrSubmissionNumberConflict
}

// Update performs a compare-and-swap on the entity version.
func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	currentVersion := submission.Version
	submission.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND version = ?", submission.ID, currentVersion).
		Select("*").
		Omit("id", "created_at", "Assignment", "Student").
		Updates(submission)
	if result.Error != nil {
		submission.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		submission.Version = currentVersion
		return ErrVersionConflict
	}
	return nil
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Submission{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
