package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pixelpress/api/internal/model"
)

func newJob() *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        uuid.New().String(),
		State:     model.JobStateCreated,
		Brand:     model.DefaultBrand(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// backends returns every registry implementation available in this environment.
// Redis runs against localhost:6379 DB 15 and is skipped when unreachable.
func backends(t *testing.T) map[string]Registry {
	t.Helper()
	out := map[string]Registry{"memory": NewMemory()}

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Logf("redis backend skipped: %v", err)
		return out
	}
	t.Cleanup(func() { client.Close() })
	out["redis"] = NewRedis(client, time.Minute)
	return out
}

func TestRegistry_CreateGet(t *testing.T) {
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()

			if err := reg.Create(ctx, job); err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if err := reg.Create(ctx, job); !errors.Is(err, ErrJobExists) {
				t.Errorf("second Create() error = %v, want ErrJobExists", err)
			}

			got, err := reg.Get(ctx, job.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.ID != job.ID || got.State != model.JobStateCreated || got.Brand != job.Brand {
				t.Errorf("Get() = %+v", got)
			}

			if _, err := reg.Get(ctx, "missing"); !errors.Is(err, model.ErrJobNotFound) {
				t.Errorf("Get(missing) error = %v, want ErrJobNotFound", err)
			}
		})
	}
}

func TestRegistry_Transition(t *testing.T) {
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()
			if err := reg.Create(ctx, job); err != nil {
				t.Fatal(err)
			}

			for _, next := range []model.JobState{model.JobStateExtracted, model.JobStateGenerating} {
				if _, err := Transition(ctx, reg, job.ID, next, nil); err != nil {
					t.Fatalf("Transition(%s) error = %v", next, err)
				}
			}

			got, err := Transition(ctx, reg, job.ID, model.JobStateComplete, func(j *model.Job) {
				j.BundleName = "YOUR_BRAND_Video.zip"
			})
			if err != nil {
				t.Fatalf("Transition(complete) error = %v", err)
			}
			if got.State != model.JobStateComplete || got.BundleName != "YOUR_BRAND_Video.zip" {
				t.Errorf("job = %+v", got)
			}
			if got.StartedAt == nil || got.CompletedAt == nil {
				t.Error("timestamps not stamped")
			}

			_, err = Transition(ctx, reg, job.ID, model.JobStateGenerating, nil)
			if !errors.Is(err, model.ErrInvalidTransition) {
				t.Errorf("backward Transition() error = %v, want ErrInvalidTransition", err)
			}

			stored, _ := reg.Get(ctx, job.ID)
			if stored.State != model.JobStateComplete {
				t.Errorf("rejected transition mutated state to %s", stored.State)
			}

			if _, err := Transition(ctx, reg, "missing", model.JobStateExtracted, nil); !errors.Is(err, model.ErrJobNotFound) {
				t.Errorf("Transition(missing) error = %v, want ErrJobNotFound", err)
			}
		})
	}
}

func TestRegistry_UpdateErrorLeavesRecord(t *testing.T) {
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()
			if err := reg.Create(ctx, job); err != nil {
				t.Fatal(err)
			}

			boom := errors.New("boom")
			_, err := reg.Update(ctx, job.ID, func(j *model.Job) error {
				j.CompositionID = "changed"
				return boom
			})
			if !errors.Is(err, boom) {
				t.Fatalf("Update() error = %v, want boom", err)
			}

			got, _ := reg.Get(ctx, job.ID)
			if got.CompositionID != "" {
				t.Errorf("CompositionID = %q, failed update leaked", got.CompositionID)
			}
		})
	}
}

func TestRegistry_ConcurrentStartOnlyOneWins(t *testing.T) {
	for name, reg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := newJob()
			job.State = model.JobStateExtracted
			if err := reg.Create(ctx, job); err != nil {
				t.Fatal(err)
			}

			const workers = 8
			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := Transition(ctx, reg, job.ID, model.JobStateGenerating, nil); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Errorf("wins = %d, want exactly 1", wins)
			}
		})
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()
	job := newJob()
	if err := reg.Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Brand.Name = "mutated after create"
	got, _ := reg.Get(ctx, job.ID)
	got.State = model.JobStateFailed

	again, _ := reg.Get(ctx, job.ID)
	if again.Brand.Name != model.DefaultBrandName || again.State != model.JobStateCreated {
		t.Errorf("stored job shares memory with callers: %+v", again)
	}
}
