package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/dto"
	"github.com/acadops/campus-api/internal/models"
)

func pdfUpload(name string) FileUpload {
	content := []byte("%PDF-1.4 test document")
	return FileUpload{Name: name, Size: int64(len(content)), Content: bytes.NewReader(content)}
}

func TestSubmitCreatesNumberedAttempt(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	resp, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID, Comments: "first try"},
		[]FileUpload{pdfUpload("solution.pdf")})
	require.NoError(t, err)
	require.Equal(t, 1, resp.SubmissionNumber)
	require.Equal(t, models.SubmissionStatusSubmitted, resp.Status)
	require.False(t, resp.IsLate)
	require.Len(t, resp.Files, 1)
	require.Equal(t, "mem://solution.pdf", resp.Files[0].URL)

	resp, err = f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, resp.SubmissionNumber)
}

func TestSubmitRejectsUnpublishedAssignment(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Status = models.AssignmentStatusDraft
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestSubmitRequiresEnrollment(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	outsider := f.seedStudent(t, "outsider@example.edu")

	_, err := f.submission.Submit(context.Background(), actorFor(outsider),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSubmitEnforcesAttemptLimit(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Requirements.MaxSubmissions = 2
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	for i := 0; i < 2; i++ {
		_, err := f.submission.Submit(context.Background(), actorFor(student),
			dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
		require.NoError(t, err)
	}

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSubmitLateDeniedWhenNotAllowed(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.DueDate = time.Now().Add(-time.Hour)
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSubmitLateRecordsPenalty(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.DueDate = time.Now().Add(-time.Hour)
		a.Requirements.AllowLateSubmission = true
		a.Requirements.LatePenaltyPercent = 10
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	resp, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusLate, resp.Status)
	require.True(t, resp.IsLate)
	require.Equal(t, 10.0, resp.LatePenaltyPercent)
}

func TestSubmitRejectsDisallowedFileType(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Requirements.AllowedFileTypes = []string{"pdf"}
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	content := []byte("MZ binary")
	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID},
		[]FileUpload{{Name: "tool.exe", Size: int64(len(content)), Content: bytes.NewReader(content)}})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSubmitRejectsOversizedFile(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.Requirements.MaxFileSizeMB = 1
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	upload := pdfUpload("big.pdf")
	upload.Size = 2 * 1024 * 1024
	_, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, []FileUpload{upload})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func gradedSubmission(t *testing.T, f *fixture) (models.User, models.User, models.Assignment, dto.SubmissionResponse) {
	t.Helper()
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.GradingCriteria = []models.GradingCriterion{
			{Criterion: "correctness", MaxPoints: 60},
			{Criterion: "style", MaxPoints: 40},
		}
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	resp, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)
	return faculty, student, assignment, resp
}

func TestGradeWithCriteriaScores(t *testing.T) {
	f := newFixture(t)
	faculty, _, _, submitted := gradedSubmission(t, f)

	grade := "A"
	resp, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		Grade: &grade,
		CriteriaScores: []dto.CriteriaScorePayload{
			{Criterion: "correctness", MaxPoints: 60, EarnedPoints: 55},
			{Criterion: "style", MaxPoints: 40, EarnedPoints: 35},
		},
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusGraded, resp.Status)
	require.NotNil(t, resp.CalculatedScore)
	require.InDelta(t, 90.0, *resp.CalculatedScore, 0.001)
	require.NotNil(t, resp.ReviewedBy)
	require.Equal(t, faculty.ID, *resp.ReviewedBy)
}

func TestGradeRejectsRubricMismatch(t *testing.T) {
	f := newFixture(t)
	faculty, _, _, submitted := gradedSubmission(t, f)

	_, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		CriteriaScores: []dto.CriteriaScorePayload{
			{Criterion: "novelty", MaxPoints: 60, EarnedPoints: 30},
		},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGradeRejectsDivergentScores(t *testing.T) {
	f := newFixture(t)
	faculty, _, _, submitted := gradedSubmission(t, f)

	numerical := 50.0
	_, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		NumericalScore: &numerical,
		CriteriaScores: []dto.CriteriaScorePayload{
			{Criterion: "correctness", MaxPoints: 60, EarnedPoints: 55},
			{Criterion: "style", MaxPoints: 40, EarnedPoints: 35},
		},
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestGradeByNonOwningFacultyForbidden(t *testing.T) {
	f := newFixture(t)
	_, _, _, submitted := gradedSubmission(t, f)
	other := f.seedFaculty(t, "other@example.edu")

	numerical := 80.0
	_, err := f.submission.Grade(context.Background(), actorFor(other), submitted.ID, dto.GradeSubmissionRequest{
		NumericalScore: &numerical,
	})
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestLatePenaltyAppliedToCalculatedScore(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, func(a *models.Assignment) {
		a.DueDate = time.Now().Add(-time.Hour)
		a.Requirements.AllowLateSubmission = true
		a.Requirements.LatePenaltyPercent = 10
	})
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	submitted, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)

	numerical := 100.0
	resp, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		NumericalScore: &numerical,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.CalculatedScore)
	require.InDelta(t, 90.0, *resp.CalculatedScore, 0.001)
}

func TestReturnThenResubmitReentersReview(t *testing.T) {
	f := newFixture(t)
	faculty, student, _, submitted := gradedSubmission(t, f)

	returned, err := f.submission.ReturnForRevision(context.Background(), actorFor(faculty), submitted.ID, dto.ReturnSubmissionRequest{
		Feedback: dto.FeedbackPayload{General: "expand the analysis"},
	})
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusReturned, returned.Status)

	resubmitted, err := f.submission.AddFile(context.Background(), actorFor(student), submitted.ID, pdfUpload("revised.pdf"))
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusUnderReview, resubmitted.Status)
	require.Len(t, resubmitted.Files, 1)
}

func TestFileOpsFrozenAfterGrading(t *testing.T) {
	f := newFixture(t)
	faculty, student, _, submitted := gradedSubmission(t, f)

	numerical := 75.0
	_, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		NumericalScore: &numerical,
	})
	require.NoError(t, err)

	_, err = f.submission.AddFile(context.Background(), actorFor(student), submitted.ID, pdfUpload("late.pdf"))
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRemoveFileDeletesFromStorage(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	submitted, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID},
		[]FileUpload{pdfUpload("solution.pdf")})
	require.NoError(t, err)

	resp, err := f.submission.RemoveFile(context.Background(), actorFor(student), submitted.ID, "solution.pdf")
	require.NoError(t, err)
	require.Empty(t, resp.Files)
	require.Contains(t, f.storage.deletedURLs(), "mem://solution.pdf")

	_, err = f.submission.RemoveFile(context.Background(), actorFor(student), submitted.ID, "missing.pdf")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPlagiarismFlagThreshold(t *testing.T) {
	f := newFixture(t)
	faculty, student, assignment, submitted := gradedSubmission(t, f)

	resp, err := f.submission.CheckPlagiarism(context.Background(), actorFor(faculty), submitted.ID, dto.PlagiarismCheckRequest{
		SimilarityScore: 25,
	})
	require.NoError(t, err)
	require.True(t, resp.Plagiarism.IsChecked)
	require.False(t, resp.Plagiarism.Flagged)

	second, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)

	resp, err = f.submission.CheckPlagiarism(context.Background(), actorFor(faculty), second.ID, dto.PlagiarismCheckRequest{
		SimilarityScore: 45,
	})
	require.NoError(t, err)
	require.True(t, resp.Plagiarism.Flagged)
}

func TestVerifyRecordsVerifier(t *testing.T) {
	f := newFixture(t)
	faculty, _, _, submitted := gradedSubmission(t, f)

	resp, err := f.submission.Verify(context.Background(), actorFor(faculty), submitted.ID, dto.VerifySubmissionRequest{Notes: "original work"})
	require.NoError(t, err)
	require.True(t, resp.Verification.IsVerified)
	require.Equal(t, faculty.ID, resp.Verification.VerifiedBy)
}

func TestRejectTerminalState(t *testing.T) {
	f := newFixture(t)
	faculty, student, _, submitted := gradedSubmission(t, f)

	resp, err := f.submission.Reject(context.Background(), actorFor(faculty), submitted.ID, "plagiarised content")
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusRejected, resp.Status)

	_, err = f.submission.AddFile(context.Background(), actorFor(student), submitted.ID, pdfUpload("fix.pdf"))
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.submission.Reject(context.Background(), actorFor(faculty), submitted.ID, "again")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestDeleteGradedSubmissionConflicts(t *testing.T) {
	f := newFixture(t)
	faculty, student, _, submitted := gradedSubmission(t, f)

	numerical := 70.0
	_, err := f.submission.Grade(context.Background(), actorFor(faculty), submitted.ID, dto.GradeSubmissionRequest{
		NumericalScore: &numerical,
	})
	require.NoError(t, err)

	err = f.submission.Delete(context.Background(), actorFor(student), submitted.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestStudentsOnlySeeOwnSubmissions(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	first := f.seedStudent(t, "s1@example.edu")
	second := f.seedStudent(t, "s2@example.edu")
	f.enroll(t, first, course)
	f.enroll(t, second, course)

	_, err := f.submission.Submit(context.Background(), actorFor(first),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)
	theirs, err := f.submission.Submit(context.Background(), actorFor(second),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID}, nil)
	require.NoError(t, err)

	list, err := f.submission.List(context.Background(), actorFor(first), dto.SubmissionListRequest{AssignmentID: assignment.ID})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, first.ID, list.Items[0].StudentID)

	_, err = f.submission.Get(context.Background(), actorFor(first), theirs.ID)
	require.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestArchivedAssignmentFreezesSubmissions(t *testing.T) {
	f := newFixture(t)
	faculty := f.seedFaculty(t, "prof@example.edu")
	course := f.seedCourse(t, faculty)
	assignment := f.seedAssignment(t, course, nil)
	student := f.seedStudent(t, "s1@example.edu")
	f.enroll(t, student, course)

	resp, err := f.submission.Submit(context.Background(), actorFor(student),
		dto.SubmissionCreateRequest{AssignmentID: assignment.ID},
		[]FileUpload{pdfUpload("solution.pdf")})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Assignment{}).
		Where("id = ?", assignment.ID).
		Update("status", models.AssignmentStatusArchived).Error)

	score := 88.0
	_, err = f.submission.Grade(context.Background(), actorFor(faculty), resp.ID,
		dto.GradeSubmissionRequest{NumericalScore: &score})
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.submission.AddFile(context.Background(), actorFor(student), resp.ID, pdfUpload("extra.pdf"))
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.submission.RemoveFile(context.Background(), actorFor(student), resp.ID, "solution.pdf")
	require.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.submission.Verify(context.Background(), actorFor(faculty), resp.ID,
		dto.VerifySubmissionRequest{Notes: "checked"})
	require.ErrorIs(t, err, apperr.ErrConflict)

	require.ErrorIs(t, f.submission.Delete(context.Background(), actorFor(student), resp.ID), apperr.ErrConflict)
}
