// Package policy centralises every (role, relationship, action) decision the
// lifecycles make. Services consult it exactly once per operation instead of
// scattering role checks.
package policy

import (
	"context"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/models"
)

// Actor is the authenticated identity performing an operation.
type Actor struct {
	ID   uint
	Role string
}

// Action enumerates everything an actor can attempt on an assignment or a
// submission.
type Action string

const (
	ActionAssignmentCreate     Action = "assignment.create"
	ActionAssignmentRead       Action = "assignment.read"
	ActionAssignmentUpdate     Action = "assignment.update"
	ActionAssignmentTransition Action = "assignment.transition"
	ActionAssignmentDelete     Action = "assignment.delete"

	ActionSubmissionCreate     Action = "submission.create"
	ActionSubmissionRead       Action = "submission.read"
	ActionSubmissionGrade      Action = "submission.grade"
	ActionSubmissionReturn     Action = "submission.return"
	ActionSubmissionVerify     Action = "submission.verify"
	ActionSubmissionPlagiarism Action = "submission.plagiarism"
	ActionSubmissionFileAdd    Action = "submission.file_add"
	ActionSubmissionFileRemove Action = "submission.file_remove"
	ActionSubmissionDelete     Action = "submission.delete"
)

// relationship describes how the actor stands to the resource.
type relationship string

const (
	relOwner    relationship = "owner"
	relNonOwner relationship = "non_owner"
)

type rule struct {
	role   string
	rel    relationship
	action Action
}

// decisionTable lists every allowed (role, relationship, action) triple that
// is not covered by the admin bypass or by a dynamic check (student reads,
// which additionally require enrollment or visibility).
var decisionTable = map[rule]struct{}{
	{models.RoleFaculty, relOwner, ActionAssignmentCreate}:     {},
	{models.RoleFaculty, relOwner, ActionAssignmentRead}:       {},
	{models.RoleFaculty, relOwner, ActionAssignmentUpdate}:     {},
	{models.RoleFaculty, relOwner, ActionAssignmentTransition}: {},
	{models.RoleFaculty, relOwner, ActionAssignmentDelete}:     {},

	{models.RoleFaculty, relOwner, ActionSubmissionRead}:       {},
	{models.RoleFaculty, relOwner, ActionSubmissionGrade}:      {},
	{models.RoleFaculty, relOwner, ActionSubmissionReturn}:     {},
	{models.RoleFaculty, relOwner, ActionSubmissionVerify}:     {},
	{models.RoleFaculty, relOwner, ActionSubmissionPlagiarism}: {},

	{models.RoleStudent, relOwner, ActionSubmissionCreate}:     {},
	{models.RoleStudent, relOwner, ActionSubmissionRead}:       {},
	{models.RoleStudent, relOwner, ActionSubmissionFileAdd}:    {},
	{models.RoleStudent, relOwner, ActionSubmissionFileRemove}: {},
	{models.RoleStudent, relOwner, ActionSubmissionDelete}:     {},
}

// EnrollmentChecker answers whether a student belongs to a course. The
// enrollment collaborator fulfils it.
type EnrollmentChecker interface {
	IsEnrolled(ctx context.Context, studentID, courseID uint) (bool, error)
}

// Policy is the single permission decision point.
type Policy struct {
	enrollment EnrollmentChecker
}

// New builds a Policy backed by the given enrollment collaborator.
func New(enrollment EnrollmentChecker) *Policy {
	return &Policy{enrollment: enrollment}
}

// AuthorizeAssignment decides whether actor may perform action on the
// assignment. Returns nil on allow, a Forbidden error on deny.
func (p *Policy) AuthorizeAssignment(ctx context.Context, actor Actor, assignment models.Assignment, action Action) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	rel := relNonOwner
	if assignmentOwner(actor, assignment) {
		rel = relOwner
	}

	if _, ok := decisionTable[rule{actor.Role, rel, action}]; ok {
		return nil
	}

	// Reads of published, visible assignments are open to non-owning faculty
	// and to enrolled students.
	if action == ActionAssignmentRead && assignmentVisible(assignment) {
		switch actor.Role {
		case models.RoleFaculty:
			return nil
		case models.RoleStudent:
			enrolled, err := p.enrolled(ctx, actor.ID, assignment.CourseID)
			if err != nil {
				return err
			}
			if enrolled {
				return nil
			}
		}
	}

	return apperr.Forbidden("%s is not permitted for role %s", action, actor.Role)
}

// AuthorizeAssignmentCreate covers creation, before an assignment exists.
// Only the course's owning faculty member or an admin may create.
func (p *Policy) AuthorizeAssignmentCreate(actor Actor, course models.Course) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role == models.RoleFaculty && course.FacultyID == actor.ID {
		return nil
	}
	return apperr.Forbidden("%s is not permitted for role %s", ActionAssignmentCreate, actor.Role)
}

// AuthorizeSubmission decides whether actor may perform action on the
// submission. The owning assignment supplies the faculty relationship.
func (p *Policy) AuthorizeSubmission(ctx context.Context, actor Actor, submission models.Submission, assignment models.Assignment, action Action) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}

	rel := relNonOwner
	switch actor.Role {
	case models.RoleFaculty:
		if assignmentOwner(actor, assignment) {
			rel = relOwner
		}
	case models.RoleStudent:
		if submission.StudentID == actor.ID {
			rel = relOwner
		}
	}

	if _, ok := decisionTable[rule{actor.Role, rel, action}]; ok {
		return nil
	}

	return apperr.Forbidden("%s is not permitted for role %s", action, actor.Role)
}

// AuthorizeSubmissionCreate covers intake, before a submission row exists.
func (p *Policy) AuthorizeSubmissionCreate(ctx context.Context, actor Actor, assignment models.Assignment) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleStudent {
		return apperr.Forbidden("only students submit assignments")
	}

	enrolled, err := p.enrolled(ctx, actor.ID, assignment.CourseID)
	if err != nil {
		return err
	}
	if !enrolled {
		return apperr.Forbidden("student %d is not enrolled in course %d", actor.ID, assignment.CourseID)
	}
	return nil
}

func (p *Policy) enrolled(ctx context.Context, studentID, courseID uint) (bool, error) {
	if p.enrollment == nil {
		return false, nil
	}
	return p.enrollment.IsEnrolled(ctx, studentID, courseID)
}

// assignmentOwner treats both the owning faculty and the creating user as
// owners: an admin may create on a faculty member's behalf, and that faculty
// member must be able to manage the result.
func assignmentOwner(actor Actor, assignment models.Assignment) bool {
	if actor.Role != models.RoleFaculty {
		return false
	}
	return assignment.FacultyID == actor.ID || assignment.CreatedBy == actor.ID
}

func assignmentVisible(assignment models.Assignment) bool {
	return assignment.Status == models.AssignmentStatusPublished && assignment.IsVisible
}
