package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/DaniUTP/remotion-backend/database"
	"github.com/DaniUTP/remotion-backend/models"
)

func newTestStore(t *testing.T, maxJobs int, maxAge time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewStore(&database.Redis{Client: client}, StoreConfig{
		MaxJobs: maxJobs,
		MaxAge:  maxAge,
	}, zaptest.NewLogger(t))

	return store, mr
}

func strPtr(s string) *string {
	return &s
}

func TestStore_Create_UniqueIDs(t *testing.T) {
	store, _ := newTestStore(t, 1000, 24*time.Hour)
	ctx := context.Background()

	const n = 50
	ids := make(chan string, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
			if err != nil {
				t.Errorf("Create failed: %v", err)
				return
			}
			ids <- job.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("Duplicate job id: %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d ids, got %d", n, len(seen))
	}
}

func TestStore_Create_SetsInitialState(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if job.Status != models.StatusQueued {
		t.Errorf("Expected status queued, got %s", job.Status)
	}
	if job.CreatedAt.IsZero() || !job.CreatedAt.Equal(job.UpdatedAt) {
		t.Errorf("Expected createdAt == updatedAt, got %v / %v", job.CreatedAt, job.UpdatedAt)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusQueued {
		t.Errorf("Expected persisted status queued, got %s", got.Status)
	}
	if got.InputProps["title"] != "clip" {
		t.Errorf("Expected inputProps round trip, got %v", got.InputProps)
	}
}

func TestStore_Get_NotFound(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_Get_Unavailable(t *testing.T) {
	store, mr := newTestStore(t, 50, 24*time.Hour)
	mr.Close()

	_, err := store.Get(context.Background(), "any")
	if err == nil {
		t.Fatal("Expected connectivity error, got nil")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("Connectivity failure must not be reported as not found")
	}
}

func TestStore_Get_ReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	first, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	first.InputProps["title"] = "mutated"

	second, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.InputProps["title"] != "clip" {
		t.Errorf("Stored record was mutated through a returned copy: %v", second.InputProps)
	}
}

func TestStore_Update_MergesFields(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	applied, err := store.Update(ctx, job.ID, Patch{Status: models.StatusRendering})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !applied {
		t.Fatal("Expected update to apply")
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusRendering {
		t.Errorf("Expected status rendering, got %s", got.Status)
	}
	if got.InputProps["title"] != "clip" {
		t.Errorf("Unrelated field was clobbered: %v", got.InputProps)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("updatedAt %v precedes createdAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func TestStore_Update_MissingJob(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)

	applied, err := store.Update(context.Background(), "missing", Patch{Status: models.StatusRendering})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if applied {
		t.Fatal("Expected no-op on missing job")
	}
}

func TestStore_Update_InvalidStatus(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Update(ctx, job.ID, Patch{Status: "exploded"}); err == nil {
		t.Fatal("Expected error for unknown status")
	}
}

func TestStore_Update_TerminalImmutable(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	applied, err := store.Update(ctx, job.ID, Patch{Status: models.StatusError, Error: strPtr("render crashed")})
	if err != nil || !applied {
		t.Fatalf("Expected error state to apply, got applied=%v err=%v", applied, err)
	}

	applied, err = store.Update(ctx, job.ID, Patch{Status: models.StatusDone, VideoURL: strPtr("https://cdn.example/late.mp4")})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if applied {
		t.Fatal("Terminal record accepted a stale update")
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.StatusError {
		t.Errorf("Expected status error, got %s", got.Status)
	}
	if got.VideoURL != "" {
		t.Errorf("Expected empty videoUrl, got %s", got.VideoURL)
	}
	if got.Error != "render crashed" {
		t.Errorf("Expected original error message, got %q", got.Error)
	}
}

func TestStore_Update_NoBackwardTransition(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := store.Update(ctx, job.ID, Patch{Status: models.StatusUploading}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	applied, err := store.Update(ctx, job.ID, Patch{Status: models.StatusRendering})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if applied {
		t.Fatal("Status regressed from uploading to rendering")
	}

	applied, err = store.Update(ctx, job.ID, Patch{Status: models.StatusUploading})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if applied {
		t.Fatal("Status repeated a non-terminal stage")
	}

	applied, err = store.Update(ctx, job.ID, Patch{Status: models.StatusError, Error: strPtr("upload failed")})
	if err != nil || !applied {
		t.Fatalf("Expected error to be reachable from uploading, got applied=%v err=%v", applied, err)
	}
}

func TestStore_Update_RefreshesTTL(t *testing.T) {
	store, mr := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.FastForward(12 * time.Hour)

	if _, err := store.Update(ctx, job.ID, Patch{Status: models.StatusRendering}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if ttl := mr.TTL(jobKeyPrefix + job.ID); ttl != 24*time.Hour {
		t.Errorf("Expected TTL reset to 24h, got %v", ttl)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	store, mr := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	mr.FastForward(23 * time.Hour)
	if _, err := store.Get(ctx, job.ID); err != nil {
		t.Fatalf("Job expired early: %v", err)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := store.Get(ctx, job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Expected ErrNotFound after TTL, got %v", err)
	}
}

func TestStore_Evict_CountBound(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	ids := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		job, err := store.Create(ctx, map[string]interface{}{"n": i})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	// Creation can land within one millisecond; pin distinct scores so the
	// oldest-first order is unambiguous.
	for i, id := range ids {
		if err := store.client.ZAdd(ctx, jobQueueKey, redis.Z{Score: float64(i), Member: id}).Err(); err != nil {
			t.Fatalf("ZAdd failed: %v", err)
		}
	}

	removed, err := store.Evict(ctx)
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if removed != 10 {
		t.Errorf("Expected 10 removals, got %d", removed)
	}

	for _, id := range ids[:10] {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected oldest job %s to be evicted, got %v", id, err)
		}
	}
	for _, id := range ids[10:] {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("Expected job %s to survive, got %v", id, err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalJobs != 50 {
		t.Errorf("Expected 50 live jobs, got %d", stats.TotalJobs)
	}
}

func TestStore_Evict_AgePhase(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		job, err := store.Create(ctx, map[string]interface{}{"n": i})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	old := float64(time.Now().Add(-25 * time.Hour).UnixMilli())
	for _, id := range ids[:2] {
		if err := store.client.ZAdd(ctx, jobQueueKey, redis.Z{Score: old, Member: id}).Err(); err != nil {
			t.Fatalf("ZAdd failed: %v", err)
		}
	}

	removed, err := store.Evict(ctx)
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removals, got %d", removed)
	}

	liveIDs, err := store.client.SCard(ctx, jobIDsKey).Result()
	if err != nil {
		t.Fatalf("SCard failed: %v", err)
	}
	queued, err := store.client.ZCard(ctx, jobQueueKey).Result()
	if err != nil {
		t.Fatalf("ZCard failed: %v", err)
	}
	if liveIDs != 1 || queued != 1 {
		t.Errorf("Indexes inconsistent after sweep: set=%d zset=%d", liveIDs, queued)
	}
}

func TestStore_Evict_AgeExpiredNotCountedAsSurvivors(t *testing.T) {
	store, _ := newTestStore(t, 2, 24*time.Hour)
	ctx := context.Background()

	ids := make([]string, 0, 4)
	for i := 0; i < 4; i++ {
		job, err := store.Create(ctx, map[string]interface{}{"n": i})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	old := float64(time.Now().Add(-25 * time.Hour).UnixMilli())
	if err := store.client.ZAdd(ctx, jobQueueKey, redis.Z{Score: old, Member: ids[0]}).Err(); err != nil {
		t.Fatalf("ZAdd failed: %v", err)
	}
	for i, id := range ids[1:] {
		if err := store.client.ZAdd(ctx, jobQueueKey, redis.Z{Score: float64(i + 1), Member: id}).Err(); err != nil {
			t.Fatalf("ZAdd failed: %v", err)
		}
	}

	removed, err := store.Evict(ctx)
	if err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 1 age removal + 1 count removal, got %d", removed)
	}

	for _, id := range ids[:2] {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected %s to be evicted, got %v", id, err)
		}
	}
	for _, id := range ids[2:] {
		if _, err := store.Get(ctx, id); err != nil {
			t.Errorf("Expected %s to survive, got %v", id, err)
		}
	}
}

func TestStore_Stats(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	var jobIDs []string
	for i := 0; i < 3; i++ {
		job, err := store.Create(ctx, map[string]interface{}{"n": i})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		jobIDs = append(jobIDs, job.ID)
	}

	if _, err := store.Update(ctx, jobIDs[0], Patch{Status: models.StatusDone, VideoURL: strPtr("https://cdn.example/a.mp4")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if _, err := store.Update(ctx, jobIDs[1], Patch{Status: models.StatusError, Error: strPtr("boom")}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalJobs != 3 {
		t.Errorf("Expected 3 jobs, got %d", stats.TotalJobs)
	}
	want := map[models.JobStatus]int{
		models.StatusQueued: 1,
		models.StatusDone:   1,
		models.StatusError:  1,
	}
	for status, n := range want {
		if stats.CountsByStatus[status] != n {
			t.Errorf("Expected %d %s jobs, got %d", n, status, stats.CountsByStatus[status])
		}
	}
	if stats.OldestAgeHours < stats.NewestAgeHours {
		t.Errorf("Oldest age %f below newest age %f", stats.OldestAgeHours, stats.NewestAgeHours)
	}
}

func TestStore_Stats_ToleratesDeletedMember(t *testing.T) {
	store, _ := newTestStore(t, 50, 24*time.Hour)
	ctx := context.Background()

	job, err := store.Create(ctx, map[string]interface{}{"title": "clip"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Simulate a record deleted mid-scan: id set member without a hash.
	if err := store.client.Del(ctx, jobKeyPrefix+job.ID).Err(); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed on dangling member: %v", err)
	}
	if stats.TotalJobs != 0 {
		t.Errorf("Expected dangling member to be skipped, got %d jobs", stats.TotalJobs)
	}
}

func TestStore_NearCapacitySignal(t *testing.T) {
	store, _ := newTestStore(t, 2, 24*time.Hour)
	ctx := context.Background()

	kicked := make(chan struct{}, 1)
	store.OnNearCapacity(func() {
		select {
		case kicked <- struct{}{}:
		default:
		}
	})

	for i := 0; i < 4; i++ {
		if _, err := store.Create(ctx, map[string]interface{}{"n": i}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	select {
	case <-kicked:
	default:
		t.Fatal("Expected near-capacity signal after exceeding the soft threshold")
	}
}
