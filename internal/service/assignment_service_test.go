package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/dto"
	"github.com/acadops/campus-api/internal/models"
)

func createPayload(courseID uint) dto.AssignmentCreateRequest {
	return dto.AssignmentCreateRequest{
		CourseID:    courseID,
		Title:       "Heap Implementation",
		Description: "Build a binary heap",
		TotalPoints: 100,
		DueDate:     time.Now().Add(7 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func TestCreateAssignmentStartsAsDraft(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)

	payload := createPayload(course.ID)
	payload.GradingCriteria = []dto.GradingCriterionPayload{
		{Criterion: "correctness", MaxPoints: 70},
		{Criterion: "style", MaxPoints: 30},
	}

	resp, err := f.assignment.Create(context.Background(), actorFor(faculty), payload)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusDraft, resp.Status)
	require.Equal(t, faculty.ID, resp.FacultyID)
	require.Len(t, resp.GradingCriteria, 2)
	require.NotEmpty(t, resp.History)
	require.Equal(t, "created", resp.History[0].Action)
}

func TestCreateAssignmentRejectsRubricMismatch(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)

	payload := createPayload(course.ID)
	payload.GradingCriteria = []dto.GradingCriterionPayload{
		{Criterion: "correctness", MaxPoints: 70},
		{Criterion: "style", MaxPoints: 20},
	}

	_, err := f.assignment.Create(context.Background(), actorFor(faculty), payload)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateAssignmentRejectsPastDueDate(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)

	payload := createPayload(course.ID)
	payload.DueDate = time.Now().Add(-time.Hour).Format(time.RFC3339)

	_, err := f.assignment.Create(context.Background(), actorFor(faculty), payload)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCreateAssignmentOnForeignCourseForbidden(t *testing.T) {
	f := newFixture(t)
	owner := f.seedFaculty(t, "owner@example.edu")
	course := f.seedCourse(t, owner)
	other := f.seedFaculty(t, "other@example.edu")

	_, err := f.assignment.Create(context.Background(), actorFor(other), createPayload(course.ID))
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateAssignmentUnknownCourse(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")

	_, err := f.assignment.Create(context.Background(), actorFor(faculty), createPayload(9999))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateDueDateBlockedBySubmissions(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)

	newDue := time.Now().Add(14 * 24 * time.Hour).Format(time.RFC3339)
	_, err = f.assignment.Update(context.Background(), actorFor(faculty), assignment.ID, dto.AssignmentUpdateRequest{
		DueDate: &newDue,
	})
	require.ErrorIs(t, err, apperr.ErrConflict)

	// Non-core fields stay editable.
	title := "Graph Traversal II"
	resp, err := f.assignment.Update(context.Background(), actorFor(faculty), assignment.ID, dto.AssignmentUpdateRequest{
		Title: &title,
	})
	require.NoError(t, err)
	require.Equal(t, title, resp.Title)
}

func TestUpdateCoreContentFrozenAfterClosing(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Status = models.AssignmentStatusGrading
	})

	points := 80.0
	_, err := f.assignment.Update(context.Background(), actorFor(faculty), assignment.ID, dto.AssignmentUpdateRequest{
		TotalPoints: &points,
	})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateByNonOwnerForbidden(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	other := f.seedFaculty(t, "other@example.edu")

	title := "Hijacked"
	_, err := f.assignment.Update(context.Background(), actorFor(other), assignment.ID, dto.AssignmentUpdateRequest{
		Title: &title,
	})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Status = models.AssignmentStatusDraft
	})
	actor := actorFor(faculty)

	resp, err := f.assignment.Transition(context.Background(), actor, assignment.ID, models.AssignmentStatusPublished)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusPublished, resp.Status)

	// Skipping a state is refused.
	_, err = f.assignment.Transition(context.Background(), actor, assignment.ID, models.AssignmentStatusGrading)
	require.ErrorIs(t, err, apperr.ErrConflict)

	for _, target := range []string{
		models.AssignmentStatusSubmissionClosed,
		models.AssignmentStatusGrading,
		models.AssignmentStatusCompleted,
	} {
		resp, err = f.assignment.Transition(context.Background(), actor, assignment.ID, target)
		require.NoError(t, err)
		require.Equal(t, target, resp.Status)
	}
}

func TestArchiveReleasesStoredFiles(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID},
		[]FileUpload{pdfUpload("solution.pdf")})
	require.NoError(t, err)

	resp, err := f.assignment.Transition(context.Background(), actorFor(faculty), assignment.ID, models.AssignmentStatusArchived)
	require.NoError(t, err)
	require.Equal(t, models.AssignmentStatusArchived, resp.Status)
	require.Contains(t, f.storage.deletedURLs(), "mem://solution.pdf")

	// Archived is terminal.
	_, err = f.assignment.Transition(context.Background(), actorFor(faculty), assignment.ID, models.AssignmentStatusPublished)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteWithSubmissionsConflicts(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)

	err = f.assignment.Delete(context.Background(), actorFor(faculty), assignment.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteWithoutSubmissions(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)

	require.NoError(t, f.assignment.Delete(context.Background(), actorFor(faculty), assignment.ID))

	_, err := f.assignment.Get(context.Background(), actorFor(faculty), assignment.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListScopesStudentsToEnrolledCourses(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	enrolledCourse := f.seedCourse(t, faculty)
	otherFaculty := f.seedFaculty(t, "other@example.edu")
	otherCourse := f.seedCourse(t, otherFaculty)

	visible := f.seedAssignment(t, enrolledCourse, nil)
	f.seedAssignment(t, enrolledCourse, func(a *models.Assignment) {
		a.Title = "Hidden Draft"
		a.Status = models.AssignmentStatusDraft
	})
	f.seedAssignment(t, otherCourse, func(a *models.Assignment) {
		a.Title = "Other Course"
	})

	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, enrolledCourse)

	list, err := f.assignment.List(context.Background(), actorFor(student), dto.AssignmentListRequest{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, visible.ID, list.Items[0].ID)
}

func TestGetDraftHiddenFromStudents(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Status = models.AssignmentStatusDraft
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.assignment.Get(context.Background(), actorFor(student), assignment.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.assignment.Get(context.Background(), actorFor(faculty), assignment.ID)
	require.NoError(t, err)
}

func TestAdminBypassesOwnership(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)

	admin := models.User{Name: "Admin", Email: "admin@example.edu", Role: models.RoleAdmin}
	require.NoError(t, f.db.Create(&admin).Error)

	title := "Renamed by admin"
	resp, err := f.assignment.Update(context.Background(), actorFor(admin), assignment.ID, dto.AssignmentUpdateRequest{
		Title: &title,
	})
	require.NoError(t, err)
	require.Equal(t, title, resp.Title)
}
