package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/models"
)

// ErrVersionConflict indicates an optimistic-concurrency write lost the race:
// the entity changed since it was read.
var ErrVersionConflict = errors.New("stale entity version")

// AssignmentFilter describes listing and pagination options.
type AssignmentFilter struct {
	CourseID    *uint
	FacultyID   *uint
	CourseIDs   []uint
	Status      *string
	VisibleOnly bool
	Search      string
	Sort        string
	Page        int
	PageSize    int
}

// AssignmentRepository defines persistence operations for assignments.
type AssignmentRepository interface {
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	UpdateStats(ctx context.Context, id uint, stats models.AssignmentStats) error
	Delete(ctx context.Context, id uint) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).
		Preload("Course").
		Preload("Faculty")
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.baseQuery(ctx)

	if filter.CourseID != nil {
		query = query.Where("course_id = ?", *filter.CourseID)
	}
	if len(filter.CourseIDs) > 0 {
		query = query.Where("course_id IN ?", filter.CourseIDs)
	}
	if filter.FacultyID != nil {
		query = query.Where("faculty_id = ?", *filter.FacultyID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.VisibleOnly {
		query = query.Where("status = ? AND is_visible = ?", models.AssignmentStatusPublished, true)
	}
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeAssignmentSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.Version == 0 {
		assignment.Version = 1
	}
	return r.db.WithContext(ctx).Create(assignment).Error
}

// Update performs a compare-and-swap on the entity version so stale writes
// fail instead of silently overwriting a concurrent change.
func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	currentVersion := assignment.Version
	assignment.Version = currentVersion + 1

	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ? AND version = ?", assignment.ID, currentVersion).
		Select("*").
		Omit("id", "created_at", "Course", "Faculty").
		Updates(assignment)
	if result.Error != nil {
		assignment.Version = currentVersion
		return result.Error
	}
	if result.RowsAffected == 0 {
		assignment.Version = currentVersion
		return ErrVersionConflict
	}
	return nil
}

// UpdateStats writes the derived summary cache; last writer wins. The update
// goes through a model struct so the JSON serializer on Stats runs.
func (r *assignmentRepository) UpdateStats(ctx context.Context, id uint, stats models.AssignmentStats) error {
	result := r.db.WithContext(ctx).
		Model(&models.Assignment{}).
		Where("id = ?", id).
		Updates(models.Assignment{Stats: &stats})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Assignment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "due_date", "due_date:asc":
		return "due_date ASC"
	case "-due_date", "due_date:desc":
		return "due_date DESC"
	case "title", "title:asc":
		return "title ASC"
	case "-title", "title:desc":
		return "title DESC"
	case "-created_at", "created_at:desc":
		return "created_at DESC"
	default:
		return "due_date ASC"
	}
}
