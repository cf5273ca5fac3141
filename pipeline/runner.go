package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/jobs"
	"github.com/DaniUTP/remotion-backend/models"
	"github.com/DaniUTP/remotion-backend/render"
	"github.com/DaniUTP/remotion-backend/upload"
)

// JobStore is the slice of the job store the runner needs: persisting each
// stage transition so pollers observe progress.
type JobStore interface {
	Update(ctx context.Context, id string, patch jobs.Patch) (bool, error)
}

// Runner drives one job at a time through rendering and uploading, persisting
// every transition before moving on. Dispatch is fire-and-forget relative to
// the producer; failures end up in the job record, never back at the caller.
type Runner struct {
	store    JobStore
	renderer render.Renderer
	uploader upload.Uploader
	pool     *WorkerPool
	timeout  time.Duration
	logger   *zap.Logger
}

// NewRunner builds a runner whose concurrent pipelines are bounded by
// maxWorkers. A zero timeout disables the per-job deadline.
func NewRunner(store JobStore, renderer render.Renderer, uploader upload.Uploader, maxWorkers int, timeout time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		store:    store,
		renderer: renderer,
		uploader: uploader,
		pool:     NewWorkerPool(maxWorkers),
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch schedules the job's pipeline and returns immediately.
func (r *Runner) Dispatch(ctx context.Context, job *models.Job) {
	r.pool.Submit(ctx, func(ctx context.Context) {
		r.process(ctx, job)
	})
}

// Wait blocks until every dispatched pipeline has finished.
func (r *Runner) Wait() {
	r.pool.Wait()
}

func (r *Runner) process(ctx context.Context, job *models.Job) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.advance(ctx, job.ID, jobs.Patch{Status: models.StatusRendering}); err != nil {
		r.fail(ctx, job.ID, err)
		return
	}

	artifact, err := r.renderer.Render(ctx, job.ID, job.InputProps)
	if err != nil {
		r.fail(ctx, job.ID, err)
		return
	}

	if err := r.advance(ctx, job.ID, jobs.Patch{Status: models.StatusUploading}); err != nil {
		os.Remove(artifact)
		r.fail(ctx, job.ID, err)
		return
	}

	result, uploadErr := r.uploader.Upload(ctx, artifact, "video", "job-"+job.ID)

	// The artifact goes away on both outcomes.
	if err := os.Remove(artifact); err != nil {
		r.logger.Warn("failed to remove artifact",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}

	if uploadErr != nil {
		r.fail(ctx, job.ID, uploadErr)
		return
	}

	if err := r.advance(ctx, job.ID, jobs.Patch{Status: models.StatusDone, VideoURL: &result.URL}); err != nil {
		r.logger.Error("failed to persist done state",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
		return
	}

	r.logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("video_url", result.URL),
	)
}

func (r *Runner) advance(ctx context.Context, id string, patch jobs.Patch) error {
	applied, err := r.store.Update(ctx, id, patch)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("job %s no longer accepts updates", id)
	}
	return nil
}

// fail records the terminal error state. The job's own deadline may already
// be past, so the write runs on an uncancelable context.
func (r *Runner) fail(ctx context.Context, id string, cause error) {
	msg := cause.Error()
	if _, err := r.store.Update(context.WithoutCancel(ctx), id, jobs.Patch{Status: models.StatusError, Error: &msg}); err != nil {
		r.logger.Error("failed to persist error state",
			zap.String("job_id", id),
			zap.Error(err),
		)
		return
	}

	r.logger.Warn("job failed",
		zap.String("job_id", id),
		zap.String("reason", msg),
	)
}
