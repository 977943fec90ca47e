package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/acadops/campus-api/internal/apperr"
	"github.com/acadops/campus-api/internal/grading"
	"github.com/acadops/campus-api/internal/models"
	"github.com/acadops/campus-api/internal/policy"
	"github.com/acadops/campus-api/internal/repository"
)

const statsCacheKeyPrefix = "campus:assignment_stats:"

// StatisticsService derives assignment summaries from the submissions. The
// summary is a cache, never a source of truth: Recompute always rebuilds it
// from scratch and is idempotent.
type StatisticsService interface {
	StatsRefresher
	Get(ctx context.Context, actor policy.Actor, assignmentID uint) (models.AssignmentStats, error)
}

type statisticsService struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	policy      *policy.Policy
	cache       *redis.Client
	cacheTTL    time.Duration
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStatisticsService builds the statistics aggregator. cache may be nil, in
// which case every read recomputes.
func NewStatisticsService(
	assignments repository.AssignmentRepository,
	submissions repository.SubmissionRepository,
	authz *policy.Policy,
	cache *redis.Client,
	cacheTTL time.Duration,
	logger zerolog.Logger,
) StatisticsService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &statisticsService{
		assignments: assignments,
		submissions: submissions,
		policy:      authz,
		cache:       cache,
		cacheTTL:    cacheTTL,
		tracer:      otel.Tracer("campus-api/statistics"),
		logger:      logger.With().Str("component", "statistics_service").Logger(),
		now:         time.Now,
	}
}

// Recompute rebuilds the summary from all submissions, persists it on the
// assignment, and refreshes the cache. The average counts graded submissions
// only, so ungraded attempts never drag it toward zero.
func (s *statisticsService) Recompute(ctx context.Context, assignmentID uint) (models.AssignmentStats, error) {
	ctx, span := s.tracer.Start(ctx, "statistics.recompute",
		trace.WithAttributes(attribute.Int64("assignment.id", int64(assignmentID))))
	defer span.End()

	submissions, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return models.AssignmentStats{}, err
	}

	stats := aggregate(submissions)
	stats.ComputedAt = s.now()

	if err := s.assignments.UpdateStats(ctx, assignmentID, stats); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssignmentStats{}, apperr.NotFound("assignment %d not found", assignmentID)
		}
		return models.AssignmentStats{}, err
	}

	s.cacheSet(ctx, assignmentID, stats)
	span.SetAttributes(attribute.Int("submissions.total", stats.TotalSubmissions))

	return stats, nil
}

// Get returns the summary for an assignment the actor may read, serving from
// the cache when it is warm.
func (s *statisticsService) Get(ctx context.Context, actor policy.Actor, assignmentID uint) (models.AssignmentStats, error) {
	ctx, span := s.tracer.Start(ctx, "statistics.get",
		trace.WithAttributes(attribute.Int64("assignment.id", int64(assignmentID))))
	defer span.End()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssignmentStats{}, apperr.NotFound("assignment %d not found", assignmentID)
		}
		return models.AssignmentStats{}, err
	}

	if err := s.policy.AuthorizeAssignment(ctx, actor, assignment, policy.ActionAssignmentRead); err != nil {
		return models.AssignmentStats{}, err
	}

	if stats, ok := s.cacheGet(ctx, assignmentID); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return stats, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	return s.Recompute(ctx, assignmentID)
}

func (s *statisticsService) cacheKey(assignmentID uint) string {
	return fmt.Sprintf("%s%d", statsCacheKeyPrefix, assignmentID)
}

func (s *statisticsService) cacheGet(ctx context.Context, assignmentID uint) (models.AssignmentStats, bool) {
	if s.cache == nil {
		return models.AssignmentStats{}, false
	}

	payload, err := s.cache.Get(ctx, s.cacheKey(assignmentID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("stats cache read failed")
		}
		return models.AssignmentStats{}, false
	}

	var stats models.AssignmentStats
	if err := json.Unmarshal(payload, &stats); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("stats cache entry corrupt")
		return models.AssignmentStats{}, false
	}
	return stats, true
}

func (s *statisticsService) cacheSet(ctx context.Context, assignmentID uint, stats models.AssignmentStats) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("stats cache marshal failed")
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(assignmentID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("assignment_id", assignmentID).Msg("stats cache write failed")
	}
}

func aggregate(submissions []models.Submission) models.AssignmentStats {
	stats := models.AssignmentStats{
		GradeDistribution: map[string]int{},
	}

	var scoreSum float64
	for _, submission := range submissions {
		stats.TotalSubmissions++
		if submission.IsLate {
			stats.LateSubmissions++
		} else {
			stats.OnTimeSubmissions++
		}
		if submission.Plagiarism.Flagged {
			stats.PlagiarismFlagged++
		}
		if submission.Verification.IsVerified {
			stats.VerifiedCount++
		}
		if !submission.IsGraded() {
			continue
		}

		stats.GradedSubmissions++
		if score := grading.CalculatedScore(submission); score != nil {
			scoreSum += *score
		}
		if submission.Grade != nil && *submission.Grade != "" {
			stats.GradeDistribution[*submission.Grade]++
		}
	}

	if stats.GradedSubmissions > 0 {
		stats.AverageScore = math.Round(scoreSum/float64(stats.GradedSubmissions)*100) / 100
	}

	return stats
}
