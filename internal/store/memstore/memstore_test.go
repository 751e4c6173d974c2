package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/store/memstore"
)

func TestInsertIdempotentEnqueue(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	first, err := s.Insert(ctx, &model.Job{Name: "send-email", UniqueKey: "user-1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second, err := s.Insert(ctx, &model.Job{Name: "send-email", UniqueKey: "user-1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same job id, got %s and %s", first.ID, second.ID)
	}
}

func TestClaimBatchExactlyOneWinner(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	job, err := s.Insert(ctx, &model.Job{Name: "job"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var winners int
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			claimed, err := s.ClaimBatch(ctx, "instance", 10, now, time.Minute)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			for _, j := range claimed {
				if j.ID == job.ID {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestRecoverStaleIncrementsFailCount(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	job, _ := s.Insert(ctx, &model.Job{Name: "job"})

	now := time.Now()
	if _, err := s.ClaimBatch(ctx, "instance-a", 1, now, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	later := now.Add(2 * time.Minute)
	recovered, err := s.RecoverStale(ctx, later, time.Minute, 3, 10)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(recovered) != 1 || recovered[0].ID != job.ID {
		t.Fatalf("expected job to be recovered, got %+v", recovered)
	}

	got, err := s.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.FailCount != 1 {
		t.Fatalf("expected failCount=1, got %d", got.FailCount)
	}
}

func TestRecoverStaleExhaustsRetries(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	job, _ := s.Insert(ctx, &model.Job{Name: "job"})

	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := s.ClaimBatch(ctx, "instance-a", 1, now, time.Minute); err != nil {
			t.Fatalf("claim: %v", err)
		}
		later := now.Add(2 * time.Minute)
		if _, err := s.RecoverStale(ctx, later, time.Minute, 3, 10); err != nil {
			t.Fatalf("recover: %v", err)
		}
		now = later
	}

	got, err := s.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Fatalf("expected failed after exhausting retries, got %s", got.Status)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	job, _ := s.Insert(ctx, &model.Job{Name: "job"})

	ok, err := s.Cancel(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("expected cancel to succeed, got ok=%v err=%v", ok, err)
	}

	job2, _ := s.Insert(ctx, &model.Job{Name: "job2"})
	if _, err := s.ClaimBatch(ctx, "instance", 1, time.Now(), time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	ok, err = s.Cancel(ctx, job2.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ok {
		t.Fatal("expected cancel of processing job to be a no-op")
	}
}
