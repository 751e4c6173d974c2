// Package memstore is an in-memory store.Store used by engine and
// scheduler tests, grounded on the teacher's preference for testing
// usecases against hand-rolled fakes of its repository interfaces
// (internal/usecase/auth_test.go's fakeUserRepo) rather than a mocking
// library. Unlike those single-function-field fakes, memstore implements
// the real CAS semantics so concurrency-sensitive tests (claim races,
// stale recovery) exercise genuine logic instead of canned responses.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaysched/monque/internal/cursor"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/store"
)

type Store struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func New() *Store {
	return &Store{jobs: make(map[string]*model.Job)}
}

var _ store.Store = (*Store)(nil)

func clone(j *model.Job) *model.Job {
	cp := *j
	if j.LockedAt != nil {
		t := *j.LockedAt
		cp.LockedAt = &t
	}
	if j.ClaimedBy != nil {
		c := *j.ClaimedBy
		cp.ClaimedBy = &c
	}
	return &cp
}

func (s *Store) Initialize(ctx context.Context) error { return nil }

func (s *Store) Insert(ctx context.Context, job *model.Job) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.UniqueKey != "" {
		for _, j := range s.jobs {
			if j.Name == job.Name && j.UniqueKey == job.UniqueKey && !j.Status.Terminal() {
				return clone(j), nil
			}
		}
	}

	now := time.Now()
	j := clone(job)
	j.ID = uuid.NewString()
	j.Status = model.StatusPending
	j.FailCount = 0
	j.CreatedAt = now
	j.UpdatedAt = now
	s.jobs[j.ID] = j
	return clone(j), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(j), nil
}

func (s *Store) ClaimBatch(ctx context.Context, instanceID string, limit int, now time.Time, leaseDuration time.Duration) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	var candidates []*model.Job
	for _, j := range s.jobs {
		if j.Status == model.StatusPending && !j.NextRunAt.After(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(i, k int) bool {
		if !candidates[i].NextRunAt.Equal(candidates[k].NextRunAt) {
			return candidates[i].NextRunAt.Before(candidates[k].NextRunAt)
		}
		return candidates[i].ID < candidates[k].ID
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]*model.Job, 0, len(candidates))
	for _, j := range candidates {
		j.Status = model.StatusProcessing
		lockedAt := now
		j.LockedAt = &lockedAt
		id := instanceID
		j.ClaimedBy = &id
		j.UpdatedAt = now
		claimed = append(claimed, clone(j))
	}
	return claimed, nil
}

func (s *Store) Heartbeat(ctx context.Context, instanceID string, ids []string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stolen []string
	for _, id := range ids {
		j, ok := s.jobs[id]
		if !ok || j.ClaimedBy == nil || *j.ClaimedBy != instanceID || j.Status != model.StatusProcessing {
			stolen = append(stolen, id)
			continue
		}
		t := now
		j.LockedAt = &t
		j.UpdatedAt = now
	}
	return stolen, nil
}

func (s *Store) claimedBySelf(j *model.Job, instanceID string) bool {
	return j.Status == model.StatusProcessing && j.ClaimedBy != nil && *j.ClaimedBy == instanceID
}

func (s *Store) CompleteSuccess(ctx context.Context, instanceID, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !s.claimedBySelf(j, instanceID) {
		return false, nil
	}
	j.Status = model.StatusCompleted
	j.LockedAt = nil
	j.ClaimedBy = nil
	j.UpdatedAt = now
	return true, nil
}

func (s *Store) CompleteRecurring(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !s.claimedBySelf(j, instanceID) {
		return false, nil
	}
	j.Status = model.StatusPending
	j.FailCount = 0
	j.NextRunAt = nextRunAt
	j.FailReason = failReason
	j.LockedAt = nil
	j.ClaimedBy = nil
	j.UpdatedAt = now
	return true, nil
}

func (s *Store) CompleteRetry(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !s.claimedBySelf(j, instanceID) {
		return false, nil
	}
	j.Status = model.StatusPending
	j.FailCount++
	j.NextRunAt = nextRunAt
	j.FailReason = failReason
	j.LockedAt = nil
	j.ClaimedBy = nil
	j.UpdatedAt = now
	return true, nil
}

func (s *Store) CompleteFail(ctx context.Context, instanceID, id string, failReason string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || !s.claimedBySelf(j, instanceID) {
		return false, nil
	}
	j.Status = model.StatusFailed
	j.FailCount++
	j.FailReason = failReason
	j.LockedAt = nil
	j.ClaimedBy = nil
	j.UpdatedAt = now
	return true, nil
}

func (s *Store) RecoverStale(ctx context.Context, now time.Time, leaseDuration time.Duration, maxRetries, limit int) ([]store.RecoveredJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-leaseDuration)
	var ids []string
	for id, j := range s.jobs {
		if j.Status == model.StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, k int) bool {
		return s.jobs[ids[i]].LockedAt.Before(*s.jobs[ids[k]].LockedAt)
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}

	var recovered []store.RecoveredJob
	for _, id := range ids {
		j := s.jobs[id]
		j.FailCount++
		j.FailReason = "lease expired"
		j.LockedAt = nil
		j.ClaimedBy = nil
		j.UpdatedAt = now
		if j.FailCount >= maxRetries {
			j.Status = model.StatusFailed
			recovered = append(recovered, store.RecoveredJob{ID: id, MovedToFail: true})
		} else {
			j.Status = model.StatusPending
			recovered = append(recovered, store.RecoveredJob{ID: id})
		}
	}
	return recovered, nil
}

func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if j.Status != model.StatusPending {
		return false, nil
	}
	j.Status = model.StatusCancelled
	j.UpdatedAt = time.Now()
	return true, nil
}

func (s *Store) DeleteTerminalOlderThan(ctx context.Context, status model.Status, cutoff time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, j := range s.jobs {
		if j.Status == status && j.UpdatedAt.Before(cutoff) {
			ids = append(ids, id)
			if len(ids) >= limit {
				break
			}
		}
	}
	for _, id := range ids {
		delete(s.jobs, id)
	}
	return ids, nil
}

// Query mirrors the postgres store's keyset pagination over (createdAt, id)
// so facade tests can exercise cursor behavior, including a malformed
// cursor, without a live database.
func (s *Store) Query(ctx context.Context, filter model.Filter, page model.Page) (model.PageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	dir := cursor.Forward
	var anchorCreatedAt time.Time
	var anchorID string
	haveAnchor := false
	if page.Cursor != "" {
		id, d, err := cursor.Decode(page.Cursor)
		if err != nil {
			return model.PageResult{}, fmt.Errorf("decode cursor: %w: %w", store.ErrInvalidCursor, err)
		}
		anchor, ok := s.jobs[id]
		if !ok {
			return model.PageResult{}, fmt.Errorf("resolve cursor anchor: %w", store.ErrNotFound)
		}
		dir = d
		anchorCreatedAt = anchor.CreatedAt
		anchorID = anchor.ID
		haveAnchor = true
	}

	var matched []*model.Job
	for _, j := range s.jobs {
		if !matches(j, filter) {
			continue
		}
		if haveAnchor {
			cmp := compareKey(j.CreatedAt, j.ID, anchorCreatedAt, anchorID)
			if dir == cursor.Forward && cmp >= 0 {
				continue
			}
			if dir == cursor.Backward && cmp <= 0 {
				continue
			}
		}
		matched = append(matched, clone(j))
	}

	if dir == cursor.Backward {
		sort.Slice(matched, func(i, k int) bool {
			if !matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
				return matched[i].CreatedAt.Before(matched[k].CreatedAt)
			}
			return matched[i].ID < matched[k].ID
		})
	} else {
		sort.Slice(matched, func(i, k int) bool {
			if !matched[i].CreatedAt.Equal(matched[k].CreatedAt) {
				return matched[i].CreatedAt.After(matched[k].CreatedAt)
			}
			return matched[i].ID > matched[k].ID
		})
	}

	if len(matched) > limit {
		matched = matched[:limit]
	}
	if dir == cursor.Backward {
		for l, r := 0, len(matched)-1; l < r; l, r = l+1, r-1 {
			matched[l], matched[r] = matched[r], matched[l]
		}
	}

	result := model.PageResult{Jobs: matched}
	if len(matched) > 0 {
		if nc, err := cursor.Encode(matched[len(matched)-1].ID, cursor.Forward); err == nil {
			result.NextCursor = nc
		}
		if pc, err := cursor.Encode(matched[0].ID, cursor.Backward); err == nil {
			result.PrevCursor = pc
		}
	}
	return result, nil
}

// compareKey orders (createdAt, id) tuples ascending, matching the
// postgres store's ORDER BY (created_at, id) tie-break.
func compareKey(aCreatedAt time.Time, aID string, bCreatedAt time.Time, bID string) int {
	if aCreatedAt.Before(bCreatedAt) {
		return -1
	}
	if aCreatedAt.After(bCreatedAt) {
		return 1
	}
	if aID < bID {
		return -1
	}
	if aID > bID {
		return 1
	}
	return 0
}

func matches(j *model.Job, f model.Filter) bool {
	if f.Name != "" && j.Name != f.Name {
		return false
	}
	if len(f.Status) > 0 {
		found := false
		for _, st := range f.Status {
			if j.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.OlderThan != nil && !j.CreatedAt.Before(*f.OlderThan) {
		return false
	}
	if f.NewerThan != nil && !j.CreatedAt.After(*f.NewerThan) {
		return false
	}
	return true
}
