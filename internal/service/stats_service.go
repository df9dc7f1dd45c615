package service

import (
	"context"
	"time"

	"github.com/maheshrc27/crosspost/internal/models"
	"github.com/maheshrc27/crosspost/internal/repository"
)

type StatsService interface {
	JobStats(ctx context.Context) (*models.JobStats, error)
	AccountStats(ctx context.Context) (*models.AccountStats, error)
}

type statsService struct {
	sr      repository.StatsRepository
	clock   Clock
	horizon time.Duration
	loc     *time.Location
}

// NewStatsService counts "today" in loc and "upcoming" within horizon of now.
func NewStatsService(sr repository.StatsRepository, clock Clock, horizon time.Duration, loc *time.Location) StatsService {
	if clock == nil {
		clock = RealClock{}
	}
	if horizon <= 0 {
		horizon = 24 * time.Hour
	}
	if loc == nil {
		loc = time.UTC
	}
	return &statsService{sr: sr, clock: clock, horizon: horizon, loc: loc}
}

func (s *statsService) JobStats(ctx context.Context) (*models.JobStats, error) {
	now := s.clock.Now()
	start, end := dayWindow(now, s.loc)
	return s.sr.JobStats(ctx, models.JobStatsQuery{
		Now:      now,
		Horizon:  s.horizon,
		DayStart: start,
		DayEnd:   end,
	})
}

func (s *statsService) AccountStats(ctx context.Context) (*models.AccountStats, error) {
	start, end := dayWindow(s.clock.Now(), s.loc)
	return s.sr.AccountStats(ctx, models.AccountStatsQuery{
		DayStart: start,
		DayEnd:   end,
	})
}
