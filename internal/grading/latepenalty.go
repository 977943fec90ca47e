package grading

import (
	"math"
	"time"

	"github.com/acadops/campus-api/internal/models"
)

// IsLate reports whether a submission at the given instant misses the
// assignment's effective due date.
func IsLate(assignment models.Assignment, submittedAt time.Time) bool {
	return assignment.IsPastDue(submittedAt)
}

// LatePenaltyPercent returns the flat penalty configured on the assignment,
// clamped to [0, 100].
func LatePenaltyPercent(requirements models.AssignmentRequirements) float64 {
	penalty := requirements.LatePenaltyPercent
	if penalty < 0 {
		return 0
	}
	if penalty > 100 {
		return 100
	}
	return penalty
}

// AdjustedScore applies a flat percentage penalty to a raw score and rounds
// to two decimal places.
func AdjustedScore(rawScore, penaltyPercent float64) float64 {
	return round2(rawScore * (1 - penaltyPercent/100))
}

// CalculatedScore derives a submission's score on a 0-100 scale. Criteria
// scores take precedence over a directly assigned numerical score; the late
// penalty is applied when the submission was late. Returns nil when nothing
// has been graded yet.
func CalculatedScore(submission models.Submission) *float64 {
	var raw float64
	switch {
	case len(submission.CriteriaScores) > 0:
		raw = criteriaPercent(submission.CriteriaScores)
	case submission.NumericalScore != nil:
		raw = *submission.NumericalScore
	default:
		return nil
	}

	score := round2(raw)
	if submission.IsLate {
		score = AdjustedScore(raw, submission.LatePenaltyPercent)
	}
	return &score
}

// criteriaPercent converts earned rubric points into a percentage.
func criteriaPercent(scores []models.CriteriaScore) float64 {
	var earned, max float64
	for _, score := range scores {
		earned += score.EarnedPoints
		max += score.MaxPoints
	}
	if max <= 0 {
		return 0
	}
	return earned / max * 100
}

// ScoresAgree reports whether a directly assigned numerical score matches the
// criteria-derived percentage within half a point. Both grading paths must
// agree when a grader supplies both.
func ScoresAgree(numericalScore float64, scores []models.CriteriaScore) bool {
	if len(scores) == 0 {
		return true
	}
	return math.Abs(numericalScore-criteriaPercent(scores)) <= 0.5
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
