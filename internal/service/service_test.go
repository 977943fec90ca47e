package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

// memStorage is an in-memory FileStorage that records uploads and deletions.
type memStorage struct {
	mu       sync.Mutex
	uploads  []string
	deleted  []string
	failNext bool
}

func (m *memStorage) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return "", fmt.Errorf("storage unavailable")
	}
	url := "mem://" + name
	m.uploads = append(m.uploads, url)
	return url, nil
}

func (m *memStorage) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}

func (m *memStorage) deletedURLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// fixture wires the full service stack over an in-memory database.
type fixture struct {
	db          *gorm.DB
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	enrollments repository.EnrollmentRepository
	storage     *memStorage
	policy      *policy.Policy
	assignment  AssignmentService
	submission  SubmissionService
	statistics  StatisticsService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// A named shared-cache DSN keeps every pooled connection on the same
	// in-memory database while isolating tests from each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Enrollment{},
		&models.Assignment{},
		&models.Submission{},
		&models.ActivityLog{},
	))

	assignments := repository.NewAssignmentRepository(db)
	submissions := repository.NewSubmissionRepository(db)
	courses := repository.NewCourseRepository(db)
	users := repository.NewUserRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	activity := repository.NewActivityLogRepository(db)

	authz := policy.New(enrollments)
	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := testLogger()
	storage := &memStorage{}

	activitySvc := NewActivityService(activity, nil, "", logger)
	statsSvc := NewStatisticsService(assignments, submissions, authz, nil, time.Minute, logger)
	assignmentSvc := NewAssignmentService(assignments, submissions, courses, users, enrollments, authz, storage, activitySvc, validate, logger)
	submissionSvc := NewSubmissionService(submissions, assignments, authz, storage, statsSvc, activitySvc, validate, logger)

	return &fixture{
		db:          db,
		assignments: assignments,
		submissions: submissions,
		enrollments: enrollments,
		storage:     storage,
		policy:      authz,
		assignment:  assignmentSvc,
		submission:  submissionSvc,
		statistics:  statsSvc,
	}
}

func (f *fixture) seedFaculty(t *testing.T, email string) models.User {
	t.Helper()
	faculty := models.User{Name: "Faculty", Email: email, Role: models.RoleFaculty}
	require.NoError(t, f.db.Create(&faculty).Error)
	return faculty
}

func (f *fixture) seedStudent(t *testing.T, email string) models.User {
	t.Helper()
	student := models.User{Name: "Student", Email: email, Role: models.RoleStudent}
	require.NoError(t, f.db.Create(&student).Error)
	return student
}

func (f *fixture) seedCourse(t *testing.T, faculty models.User) models.Course {
	t.Helper()
	course := models.Course{Code: fmt.Sprintf("CS%d", faculty.ID), Title: "Algorithms", FacultyID: faculty.ID}
	require.NoError(t, f.db.Create(&course).Error)
	return course
}

func (f *fixture) enroll(t *testing.T, student models.User, course models.Course) {
	t.Helper()
	enrollment := models.Enrollment{
		StudentID: student.ID,
		CourseID:  course.ID,
		Status:    models.EnrollmentStatusActive,
	}
	require.NoError(t, f.db.Create(&enrollment).Error)
}

// seedAssignment persists a published assignment directly, bypassing the
// service, so tests can shape the status and requirements freely.
func (f *fixture) seedAssignment(t *testing.T, course models.Course, mutate func(*models.Assignment)) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		CourseID:    course.ID,
		FacultyID:   course.FacultyID,
		CreatedBy:   course.FacultyID,
		Title:       "Graph Traversal",
		TotalPoints: 100,
		DueDate:     time.Now().Add(72 * time.Hour),
		Requirements: models.AssignmentRequirements{
			MaxSubmissions: 3,
		},
		Status:    models.AssignmentStatusPublished,
		IsVisible: true,
		Version:   1,
	}
	if mutate != nil {
		mutate(&assignment)
	}
	require.NoError(t, f.db.Create(&assignment).Error)
	return assignment
}

func actorFor(user models.User) policy.Actor {
	return policy.Actor{ID: user.ID, Role: user.Role}
}
