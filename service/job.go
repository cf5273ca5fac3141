package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/dto"
	"github.com/DaniUTP/remotion-backend/jobs"
	"github.com/DaniUTP/remotion-backend/models"
	"github.com/DaniUTP/remotion-backend/pipeline"
)

type JobService struct {
	store  *jobs.Store
	runner *pipeline.Runner
	logger *zap.Logger
}

func NewJobService(store *jobs.Store, runner *pipeline.Runner, logger *zap.Logger) *JobService {
	return &JobService{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

// Submit persists the job and hands it to the pipeline. The pipeline outlives
// the request, so it runs on an uncancelable copy of the request context.
func (s *JobService) Submit(ctx context.Context, inputProps map[string]interface{}) (*dto.RenderResponse, error) {
	if err := s.Sweep(ctx); err != nil {
		s.logger.Warn("pre-submit sweep failed", zap.Error(err))
	}

	job, err := s.store.Create(ctx, inputProps)
	if err != nil {
		return nil, err
	}

	s.runner.Dispatch(context.WithoutCancel(ctx), job)

	return &dto.RenderResponse{JobID: job.ID, Status: string(job.Status)}, nil
}

func (s *JobService) Status(ctx context.Context, id string) (*dto.JobResponse, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

func (s *JobService) Stats(ctx context.Context) (*dto.StatsResponse, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return toStatsResponse(stats), nil
}

// Sweep runs an eviction pass outside the reaper's schedule.
func (s *JobService) Sweep(ctx context.Context) error {
	_, err := s.store.Evict(ctx)
	return err
}

func toJobResponse(job *models.Job) *dto.JobResponse {
	return &dto.JobResponse{
		ID:         job.ID,
		Status:     string(job.Status),
		VideoURL:   job.VideoURL,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt.UnixMilli(),
		UpdatedAt:  job.UpdatedAt.UnixMilli(),
		InputProps: job.InputProps,
	}
}

func toStatsResponse(stats *models.Stats) *dto.StatsResponse {
	counts := make(map[string]int, len(stats.CountsByStatus))
	for status, n := range stats.CountsByStatus {
		counts[string(status)] = n
	}
	return &dto.StatsResponse{
		TotalJobs:      stats.TotalJobs,
		CountsByStatus: counts,
		OldestAgeHours: stats.OldestAgeHours,
		NewestAgeHours: stats.NewestAgeHours,
	}
}
