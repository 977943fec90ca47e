package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/config"
	"github.com/acadops/campus-api/internal/handler"
	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/repository"
	"github.com/acadops/campus-api/internal/router"
	"github.com/acadops/campus-api/internal/service"
)

type testUploader struct{}

func (testUploader) Upload(_ context.Context, name string, _ io.Reader) (string, error) {
	return "https://files.test/" + name, nil
}

func (testUploader) Delete(context.Context, string) error { return nil }

// testAuth injects the identity named by test headers, standing in for the
// JWT middleware.
func testAuth(c *fiber.Ctx) error {
	if raw := c.Get("X-Test-User"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 64); err == nil {
			c.Locals("user_id", uint(id))
		}
	}
	if role := c.Get("X-Test-Role"); role != "" {
		c.Locals("user_role", role)
	}
	return c.Next()
}

func setupApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

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

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	userRepo := repository.NewUserRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	authz := policy.New(enrollmentRepo)
	activityService := service.NewActivityService(activityRepo, nil, "", logger)
	statisticsService := service.NewStatisticsService(assignmentRepo, submissionRepo, authz, nil, time.Minute, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, submissionRepo, courseRepo, userRepo, enrollmentRepo, authz, testUploader{}, activityService, validate, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, authz, testUploader{}, statisticsService, activityService, validate, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test"}, router.Dependencies{
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, statisticsService, logger),
		SubmissionHandler: handler.NewSubmissionHandler(submissionService, logger),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		JWTMiddleware:     testAuth,
	})

	return app, db
}

func seedCourseWithFaculty(t *testing.T, db *gorm.DB) (models.User, models.Course) {
	t.Helper()
	faculty := models.User{Name: "Prof", Email: "prof@example.edu", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&faculty).Error)
	course := models.Course{Code: "CS200", Title: "Data Structures", FacultyID: faculty.ID}
	require.NoError(t, db.Create(&course).Error)
	return faculty, course
}

func seedEnrolledStudent(t *testing.T, db *gorm.DB, course models.Course) models.User {
	t.Helper()
	student := models.User{Name: "Student", Email: "student@example.edu", Role: models.RoleStudent}
	require.NoError(t, db.Create(&student).Error)
	enrollment := models.Enrollment{StudentID: student.ID, CourseID: course.ID, Status: models.EnrollmentStatusActive}
	require.NoError(t, db.Create(&enrollment).Error)
	return student
}

func seedPublishedAssignment(t *testing.T, db *gorm.DB, course models.Course) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		CourseID:     course.ID,
		FacultyID:    course.FacultyID,
		CreatedBy:    course.FacultyID,
		Title:        "Linked Lists",
		TotalPoints:  100,
		DueDate:      time.Now().Add(48 * time.Hour),
		Requirements: models.AssignmentRequirements{MaxSubmissions: 3},
		Status:       models.AssignmentStatusPublished,
		IsVisible:    true,
		Version:      1,
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, user models.User) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(user.ID), 10))
	req.Header.Set("X-Test-Role", user.Role)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func TestAssignmentCreateAndTransition(t *testing.T) {
	app, db := setupApp(t)
	faculty, course := seedCourseWithFaculty(t, db)

	create := map[string]interface{}{
		"course_id":    course.ID,
		"title":        "Binary Trees",
		"total_points": 100,
		"due_date":     time.Now().Add(96 * time.Hour).Format(time.RFC3339),
	}
	resp := doJSON(t, app, http.MethodPost, "/api/v1/assignments", create, faculty)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	data := payload["data"].(map[string]interface{})
	require.Equal(t, "draft", data["status"])
	id := uint(data["id"].(float64))

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/assignments/%d/transitions", id),
		map[string]string{"target": "published"}, faculty)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Skipping states maps to 409.
	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/assignments/%d/transitions", id),
		map[string]string{"target": "completed"}, faculty)
	require.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestAssignmentCreateForeignCourseMapsTo403(t *testing.T) {
	app, db := setupApp(t)
	_, course := seedCourseWithFaculty(t, db)
	intruder := models.User{Name: "Other", Email: "other@example.edu", Role: models.RoleFaculty}
	require.NoError(t, db.Create(&intruder).Error)

	create := map[string]interface{}{
		"course_id":    course.ID,
		"title":        "Hijack",
		"total_points": 100,
		"due_date":     time.Now().Add(96 * time.Hour).Format(time.RFC3339),
	}
	resp := doJSON(t, app, http.MethodPost, "/api/v1/assignments", create, intruder)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestAssignmentGetUnknownMapsTo404(t *testing.T) {
	app, db := setupApp(t)
	faculty, _ := seedCourseWithFaculty(t, db)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/assignments/4242", nil, faculty)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSubmissionUploadAndGrade(t *testing.T) {
	app, db := setupApp(t)
	faculty, course := seedCourseWithFaculty(t, db)
	assignment := seedPublishedAssignment(t, db, course)
	student := seedEnrolledStudent(t, db, course)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("assignment_id", strconv.FormatUint(uint64(assignment.ID), 10)))
	require.NoError(t, writer.WriteField("comments", "my attempt"))
	part, err := writer.CreateFormFile("files", "solution.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 content"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("X-Test-User", strconv.FormatUint(uint64(student.ID), 10))
	req.Header.Set("X-Test-Role", student.Role)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	data := payload["data"].(map[string]interface{})
	require.Equal(t, "submitted", data["status"])
	submissionID := uint(data["id"].(float64))

	// The owning student may not grade.
	grade := map[string]interface{}{"numerical_score": 88}
	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/submissions/%d/grade", submissionID), grade, student)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, fmt.Sprintf("/api/v1/submissions/%d/grade", submissionID), grade, faculty)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload = decodeEnvelope(t, resp)
	data = payload["data"].(map[string]interface{})
	require.Equal(t, "graded", data["status"])
	require.Equal(t, 88.0, data["calculated_score"].(float64))
}

func TestAssignmentStatsEndpoint(t *testing.T) {
	app, db := setupApp(t)
	faculty, course := seedCourseWithFaculty(t, db)
	assignment := seedPublishedAssignment(t, db, course)

	resp := doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/v1/assignments/%d/stats", assignment.ID), nil, faculty)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	data := payload["data"].(map[string]interface{})
	require.Equal(t, 0.0, data["total_submissions"])
}

func TestActivityFeedRestrictedToAdmins(t *testing.T) {
	app, db := setupApp(t)
	faculty, _ := seedCourseWithFaculty(t, db)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/activities", nil, faculty)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	admin := models.User{Name: "Admin", Email: "admin@example.edu", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/activities", nil, admin)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := decodeEnvelope(t, resp)
	require.Equal(t, true, payload["success"])
}
