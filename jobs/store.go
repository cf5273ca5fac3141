package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DaniUTP/remotion-backend/database"
	"github.com/DaniUTP/remotion-backend/models"
)

var ErrNotFound = errors.New("job not found")

const (
	jobKeyPrefix = "job:"
	jobIDsKey    = "job_ids"
	jobQueueKey  = "job_queue"

	// Creations past this multiple of MaxJobs signal the reaper for an
	// immediate sweep instead of waiting for the next tick.
	capacityFactor = 1.5
)

// updateScript merges a partial update into a job hash. The whole merge,
// including the status guard and TTL refresh, runs atomically so a record can
// never end up with a status and timestamp from different writers.
//
// KEYS[1]  job hash key
// ARGV[1]  new status ("" to leave unchanged)
// ARGV[2]  updatedAt, unix milliseconds
// ARGV[3]  TTL, milliseconds
// ARGV[4+] field/value pairs to merge
//
// Returns 1 when applied, 0 when the record is missing, terminal, or the
// status change would move backward.
var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
local ranks = {['queued']=0, ['rendering']=1, ['uploading']=2, ['done']=3, ['error']=3}
local current = redis.call('HGET', KEYS[1], 'status')
if current == 'done' or current == 'error' then
  return 0
end
local status = ARGV[1]
if status ~= '' then
  if status ~= 'error' and ranks[status] <= ranks[current] then
    return 0
  end
  redis.call('HSET', KEYS[1], 'status', status)
end
for i = 4, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i+1])
end
redis.call('HSET', KEYS[1], 'updatedAt', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

type StoreConfig struct {
	MaxJobs int
	MaxAge  time.Duration
}

// Store keeps job records in Redis: one hash per job plus a set of live ids
// and a zset ordered by creation time. The two indexes let the reaper evict
// by age and by count with range queries instead of full scans.
type Store struct {
	client       *redis.Client
	maxJobs      int
	maxAge       time.Duration
	nearCapacity func()
	logger       *zap.Logger
}

func NewStore(db *database.Redis, cfg StoreConfig, logger *zap.Logger) *Store {
	return &Store{
		client:  db.Client,
		maxJobs: cfg.MaxJobs,
		maxAge:  cfg.MaxAge,
		logger:  logger,
	}
}

// OnNearCapacity registers a callback invoked after a Create pushes the live
// count past the soft threshold. Must be called before the store is shared.
func (s *Store) OnNearCapacity(fn func()) {
	s.nearCapacity = fn
}

// Patch is a partial job update. Nil pointer fields are left untouched;
// an empty Status leaves the status unchanged.
type Patch struct {
	Status     models.JobStatus
	VideoURL   *string
	Error      *string
	InputProps map[string]interface{}
}

func (s *Store) Create(ctx context.Context, inputProps map[string]interface{}) (*models.Job, error) {
	props, err := json.Marshal(inputProps)
	if err != nil {
		return nil, fmt.Errorf("encode input props: %w", err)
	}

	id := newJobID()
	now := time.Now()
	millis := strconv.FormatInt(now.UnixMilli(), 10)
	key := jobKeyPrefix + id

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"id":         id,
		"status":     string(models.StatusQueued),
		"videoUrl":   "",
		"error":      "",
		"createdAt":  millis,
		"updatedAt":  millis,
		"inputProps": string(props),
	})
	pipe.Expire(ctx, key, s.maxAge)
	pipe.SAdd(ctx, jobIDsKey, id)
	pipe.ZAdd(ctx, jobQueueKey, redis.Z{Score: float64(now.UnixMilli()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("persist job %s: %w", id, err)
	}

	s.logger.Info("job created", zap.String("job_id", id))

	if total, err := s.client.SCard(ctx, jobIDsKey).Result(); err == nil {
		if float64(total) > float64(s.maxJobs)*capacityFactor && s.nearCapacity != nil {
			s.nearCapacity()
		}
	}

	return &models.Job{
		ID:         id,
		Status:     models.StatusQueued,
		InputProps: inputProps,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Get returns the decoded record or ErrNotFound when the id is unknown or
// already expired. Connectivity failures propagate as-is.
func (s *Store) Get(ctx context.Context, id string) (*models.Job, error) {
	data, err := s.client.HGetAll(ctx, jobKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	if len(data) == 0 || data["id"] == "" {
		return nil, ErrNotFound
	}
	return decodeJob(data), nil
}

// Update merges the patch into the record, refreshes updatedAt and the TTL,
// and reports whether it applied. A missing record, a terminal record, or a
// backward status move all return false with no error.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	if patch.Status != "" && !patch.Status.Valid() {
		return false, fmt.Errorf("invalid status %q", patch.Status)
	}

	args := []interface{}{
		string(patch.Status),
		strconv.FormatInt(time.Now().UnixMilli(), 10),
		strconv.FormatInt(s.maxAge.Milliseconds(), 10),
	}
	if patch.VideoURL != nil {
		args = append(args, "videoUrl", *patch.VideoURL)
	}
	if patch.Error != nil {
		args = append(args, "error", *patch.Error)
	}
	if patch.InputProps != nil {
		props, err := json.Marshal(patch.InputProps)
		if err != nil {
			return false, fmt.Errorf("encode input props: %w", err)
		}
		args = append(args, "inputProps", string(props))
	}

	applied, err := updateScript.Run(ctx, s.client, []string{jobKeyPrefix + id}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("update job %s: %w", id, err)
	}
	return applied == 1, nil
}

// Evict runs the two-phase sweep: first every record whose creation time is
// past the age threshold, then, if the live set is still over MaxJobs, the
// oldest surviving records until the count bound holds. Age-expired records
// are removed before the count check so they never count as survivors.
func (s *Store) Evict(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.maxAge).UnixMilli()

	expired, err := s.client.ZRangeByScore(ctx, jobQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("scan expired jobs: %w", err)
	}

	removed := 0
	for _, id := range expired {
		if err := s.remove(ctx, id); err != nil {
			s.logger.Warn("failed to remove expired job", zap.String("job_id", id), zap.Error(err))
			continue
		}
		removed++
		s.logger.Info("removed expired job", zap.String("job_id", id))
	}

	total, err := s.client.SCard(ctx, jobIDsKey).Result()
	if err != nil {
		return removed, fmt.Errorf("count jobs: %w", err)
	}
	if int(total) > s.maxJobs {
		oldest, err := s.client.ZRange(ctx, jobQueueKey, 0, total-int64(s.maxJobs)-1).Result()
		if err != nil {
			return removed, fmt.Errorf("scan oldest jobs: %w", err)
		}
		for _, id := range oldest {
			if err := s.remove(ctx, id); err != nil {
				s.logger.Warn("failed to remove job over capacity", zap.String("job_id", id), zap.Error(err))
				continue
			}
			removed++
			s.logger.Info("removed job over capacity", zap.String("job_id", id))
		}
	}

	return removed, nil
}

// Stats aggregates over the live id set. A member deleted between the scan
// and its read is skipped rather than failing the whole aggregation.
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list job ids: %w", err)
	}

	stats := &models.Stats{CountsByStatus: make(map[models.JobStatus]int)}
	now := time.Now()
	first := true

	for _, id := range ids {
		data, err := s.client.HGetAll(ctx, jobKeyPrefix+id).Result()
		if err != nil || len(data) == 0 {
			continue
		}

		stats.TotalJobs++
		stats.CountsByStatus[models.JobStatus(data["status"])]++

		ms, err := strconv.ParseInt(data["createdAt"], 10, 64)
		if err != nil {
			continue
		}
		age := now.Sub(time.UnixMilli(ms)).Hours()
		if first || age > stats.OldestAgeHours {
			stats.OldestAgeHours = age
		}
		if first || age < stats.NewestAgeHours {
			stats.NewestAgeHours = age
		}
		first = false
	}

	return stats, nil
}

// remove deletes a record and both of its index entries together so an id is
// never left pointing at a missing hash.
func (s *Store) remove(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKeyPrefix+id)
	pipe.SRem(ctx, jobIDsKey, id)
	pipe.ZRem(ctx, jobQueueKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

func decodeJob(data map[string]string) *models.Job {
	createdAt, _ := strconv.ParseInt(data["createdAt"], 10, 64)
	updatedAt, _ := strconv.ParseInt(data["updatedAt"], 10, 64)

	props := make(map[string]interface{})
	if raw := data["inputProps"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &props); err != nil {
			props = make(map[string]interface{})
		}
	}

	return &models.Job{
		ID:         data["id"],
		Status:     models.JobStatus(data["status"]),
		InputProps: props,
		VideoURL:   data["videoUrl"],
		Error:      data["error"],
		CreatedAt:  time.UnixMilli(createdAt),
		UpdatedAt:  time.UnixMilli(updatedAt),
	}
}
