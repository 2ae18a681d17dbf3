package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	RatingRecomputeJob = "provider_rating_recompute"
	LimiterSweepJob    = "rate_limiter_sweep"

	limiterSweepSpec = "@every 10m"
)

// RatingRecomputer rebuilds provider rating aggregates from approved reviews.
type RatingRecomputer interface {
	RecomputeAll(ctx context.Context) (int, error)
}

// LimiterSweeper drops idle rate limiter entries.
type LimiterSweeper interface {
	Cleanup() int
}

// RegisterDefaults schedules the rating recompute on ratingSpec and the limiter sweep every 10 minutes.
func RegisterDefaults(s *Scheduler, ratingSpec string, ratings RatingRecomputer, limiter LimiterSweeper) error {
	if err := s.Add(RatingRecomputeJob, ratingSpec, RecomputeRatings(ratings, s.log)); err != nil {
		return err
	}
	return s.Add(LimiterSweepJob, limiterSweepSpec, SweepLimiter(limiter, s.log))
}

func RecomputeRatings(ratings RatingRecomputer, log *zap.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		start := time.Now()
		n, err := ratings.RecomputeAll(ctx)
		if err != nil {
			return err
		}
		log.Info("provider ratings recomputed", zap.Int("providers", n), zap.Duration("elapsed", time.Since(start)))
		return nil
	}
}

func SweepLimiter(limiter LimiterSweeper, log *zap.Logger) func(ctx context.Context) error {
	return func(context.Context) error {
		if removed := limiter.Cleanup(); removed > 0 {
			log.Debug("rate limiter swept", zap.Int("removed", removed))
		}
		return nil
	}
}
