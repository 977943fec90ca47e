package grading

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/models"
)

func TestValidateCriteriaEmptyRubric(t *testing.T) {
	require.NoError(t, ValidateCriteria(nil, 100))
}

func TestValidateCriteriaSumMatchesTotal(t *testing.T) {
	criteria := []models.GradingCriterion{
		{Criterion: "Code", MaxPoints: 60},
		{Criterion: "Docs", MaxPoints: 40},
	}
	require.NoError(t, ValidateCriteria(criteria, 100))
}

func TestValidateCriteriaSumMismatch(t *testing.T) {
	criteria := []models.GradingCriterion{
		{Criterion: "Code", MaxPoints: 60},
		{Criterion: "Docs", MaxPoints: 30},
	}
	err := ValidateCriteria(criteria, 100)
	require.Error(t, err)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestValidateCriteriaNegativePoints(t *testing.T) {
	criteria := []models.GradingCriterion{{Criterion: "Code", MaxPoints: -10}}
	require.ErrorIs(t, ValidateCriteria(criteria, -10), apperr.ErrValidation)
}

func TestValidateCriteriaScoresEarnedWithinMax(t *testing.T) {
	scores := []models.CriteriaScore{
		{Criterion: "Code", MaxPoints: 60, EarnedPoints: 55},
		{Criterion: "Docs", MaxPoints: 40, EarnedPoints: 40},
	}
	require.NoError(t, ValidateCriteriaScores(scores))
}

func TestValidateCriteriaScoresEarnedExceedsMax(t *testing.T) {
	scores := []models.CriteriaScore{
		{Criterion: "Code", MaxPoints: 60, EarnedPoints: 61},
	}
	require.ErrorIs(t, ValidateCriteriaScores(scores), apperr.ErrValidation)
}
