// Package grading holds the pure scoring rules shared by the assignment and
// submission lifecycles: rubric validation, late penalties, and derived
// scores.
package grading

import (
	"math"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/models"
)

// pointsTolerance absorbs float accumulation error when comparing point sums.
const pointsTolerance = 1e-6

// ValidateCriteria checks that a non-empty rubric's max points sum to the
// assignment total. An empty rubric is always valid.
func ValidateCriteria(criteria []models.GradingCriterion, totalPoints float64) error {
	if len(criteria) == 0 {
		return nil
	}

	var sum float64
	for _, criterion := range criteria {
		if criterion.MaxPoints < 0 {
			return apperr.Validation("criterion %q has negative max points", criterion.Criterion)
		}
		sum += criterion.MaxPoints
	}

	if math.Abs(sum-totalPoints) > pointsTolerance {
		return apperr.Validation("grading criteria sum to %.2f but total points is %.2f", sum, totalPoints)
	}

	return nil
}

// ValidateCriteriaScores checks each earned score against its criterion max.
func ValidateCriteriaScores(scores []models.CriteriaScore) error {
	for _, score := range scores {
		if score.EarnedPoints < 0 {
			return apperr.Validation("criterion %q has negative earned points", score.Criterion)
		}
		if score.EarnedPoints > score.MaxPoints+pointsTolerance {
			return apperr.Validation("criterion %q earned %.2f exceeds max %.2f", score.Criterion, score.EarnedPoints, score.MaxPoints)
		}
	}
	return nil
}
