package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaysched/monque/internal/cursor"
	"github.com/relaysched/monque/internal/model"
	"github.com/relaysched/monque/internal/selector"
	"github.com/relaysched/monque/internal/store"
)

const selectColumns = `id, name, data, status, next_run_at, fail_count,
	created_at, updated_at, repeat_interval, unique_key, locked_at,
	claimed_by, fail_reason`

// Store implements store.Store against a single Postgres table, grounded on
// the teacher's JobRepository (internal/infrastructure/postgres/job_repo.go):
// every state transition is an UPDATE ... WHERE <preconditions> statement
// (single-row for the Complete* and Cancel transitions, batched for
// ClaimBatch, Heartbeat and RecoverStale), retention is a bounded DELETE,
// and claimBatch reuses the teacher's FOR UPDATE SKIP LOCKED subquery shape.
type Store struct {
	pool       *pgxpool.Pool
	collection string
	table      string
}

// New returns a Store backed by pool, operating on the table named
// collectionName.
func New(pool *pgxpool.Pool, collectionName string) *Store {
	return &Store{
		pool:       pool,
		collection: collectionName,
		table:      pgx.Identifier{collectionName}.Sanitize(),
	}
}

var _ store.Store = (*Store)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	// repeat_interval, unique_key and fail_reason are nullable; NULL maps
	// to the empty string on the Job.
	var repeatInterval, uniqueKey, failReason *string
	err := row.Scan(
		&j.ID, &j.Name, &j.Data, &j.Status, &j.NextRunAt, &j.FailCount,
		&j.CreatedAt, &j.UpdatedAt, &repeatInterval, &uniqueKey, &j.LockedAt,
		&j.ClaimedBy, &failReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if repeatInterval != nil {
		j.RepeatInterval = *repeatInterval
	}
	if uniqueKey != nil {
		j.UniqueKey = *uniqueKey
	}
	if failReason != nil {
		j.FailReason = *failReason
	}
	return &j, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *Store) Insert(ctx context.Context, job *model.Job) (*model.Job, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (name, data, status, next_run_at, repeat_interval, unique_key)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING %s`, s.table, selectColumns)

	var uniqueKey *string
	if job.UniqueKey != "" {
		uniqueKey = &job.UniqueKey
	}
	var repeatInterval *string
	if job.RepeatInterval != "" {
		repeatInterval = &job.RepeatInterval
	}

	row := s.pool.QueryRow(ctx, query, job.Name, job.Data, job.NextRunAt, repeatInterval, uniqueKey)
	created, err := scanJob(row)
	if err != nil {
		if isUniqueViolation(err) && job.UniqueKey != "" {
			existing, getErr := s.getByNameAndUniqueKey(ctx, job.Name, job.UniqueKey)
			if getErr != nil {
				return nil, fmt.Errorf("insert: fetch existing after conflict: %w", getErr)
			}
			return existing, nil
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return created, nil
}

func (s *Store) getByNameAndUniqueKey(ctx context.Context, name, uniqueKey string) (*model.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE name = $1 AND unique_key = $2
		  AND status NOT IN ('completed', 'failed', 'cancelled')`, selectColumns, s.table)
	row := s.pool.QueryRow(ctx, query, name, uniqueKey)
	return scanJob(row)
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns, s.table)
	return scanJob(s.pool.QueryRow(ctx, query, id))
}

// ClaimBatch mirrors the teacher's Claim: a FOR UPDATE SKIP LOCKED subquery
// to pick candidates, then a CAS UPDATE over exactly those ids.
func (s *Store) ClaimBatch(ctx context.Context, instanceID string, limit int, now time.Time, leaseDuration time.Duration) ([]*model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET    status     = 'processing',
		       claimed_by = $1,
		       locked_at  = $2,
		       updated_at = $2
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE  status       = 'pending'
			  AND  next_run_at <= $2
			ORDER BY next_run_at ASC, id ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[2]s`, s.table, selectColumns)

	rows, err := s.pool.Query(ctx, query, instanceID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) Heartbeat(ctx context.Context, instanceID string, ids []string, now time.Time) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		UPDATE %s
		SET    locked_at = $1, updated_at = $1
		WHERE  id = ANY($2) AND claimed_by = $3 AND status = 'processing'
		RETURNING id`, s.table)

	rows, err := s.pool.Query(ctx, query, now, ids, instanceID)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	defer rows.Close()

	extended := make(map[string]bool, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		extended[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var stolen []string
	for _, id := range ids {
		if !extended[id] {
			stolen = append(stolen, id)
		}
	}
	return stolen, nil
}

func (s *Store) CompleteSuccess(ctx context.Context, instanceID, id string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET    status = 'completed', locked_at = NULL, claimed_by = NULL, updated_at = $1
		WHERE  id = $2 AND claimed_by = $3 AND status = 'processing'`, s.table)
	tag, err := s.pool.Exec(ctx, query, now, id, instanceID)
	if err != nil {
		return false, fmt.Errorf("complete success: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteRecurring(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET    status       = 'pending',
		       fail_count   = 0,
		       next_run_at  = $1,
		       fail_reason  = NULLIF($2, ''),
		       locked_at    = NULL,
		       claimed_by   = NULL,
		       updated_at   = $3
		WHERE  id = $4 AND claimed_by = $5 AND status = 'processing'`, s.table)
	tag, err := s.pool.Exec(ctx, query, nextRunAt, failReason, now, id, instanceID)
	if err != nil {
		return false, fmt.Errorf("complete recurring: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteRetry(ctx context.Context, instanceID, id string, nextRunAt time.Time, failReason string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET    status       = 'pending',
		       fail_count   = fail_count + 1,
		       fail_reason  = $1,
		       next_run_at  = $2,
		       locked_at    = NULL,
		       claimed_by   = NULL,
		       updated_at   = $3
		WHERE  id = $4 AND claimed_by = $5 AND status = 'processing'`, s.table)
	tag, err := s.pool.Exec(ctx, query, failReason, nextRunAt, now, id, instanceID)
	if err != nil {
		return false, fmt.Errorf("complete retry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CompleteFail(ctx context.Context, instanceID, id string, failReason string, now time.Time) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET    status      = 'failed',
		       fail_count  = fail_count + 1,
		       fail_reason = $1,
		       locked_at   = NULL,
		       claimed_by  = NULL,
		       updated_at  = $2
		WHERE  id = $3 AND claimed_by = $4 AND status = 'processing'`, s.table)
	tag, err := s.pool.Exec(ctx, query, failReason, now, id, instanceID)
	if err != nil {
		return false, fmt.Errorf("complete fail: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecoverStale mirrors the teacher's reaper (RescheduleStale + FailStale)
// folded into one call, per spec.md §4.9: a job whose recovery would push
// failCount to maxRetries or beyond moves straight to failed instead of
// pending.
func (s *Store) RecoverStale(ctx context.Context, now time.Time, leaseDuration time.Duration, maxRetries, limit int) ([]store.RecoveredJob, error) {
	cutoff := now.Add(-leaseDuration)

	rescheduleQuery := fmt.Sprintf(`
		UPDATE %[1]s
		SET    status      = 'pending',
		       fail_count  = fail_count + 1,
		       fail_reason = 'lease expired',
		       locked_at   = NULL,
		       claimed_by  = NULL,
		       updated_at  = $1
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE  status      = 'processing'
			  AND  locked_at   < $2
			  AND  fail_count + 1 < $3
			ORDER BY locked_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`, s.table)

	failQuery := fmt.Sprintf(`
		UPDATE %[1]s
		SET    status      = 'failed',
		       fail_count  = fail_count + 1,
		       fail_reason = 'lease expired',
		       locked_at   = NULL,
		       claimed_by  = NULL,
		       updated_at  = $1
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE  status      = 'processing'
			  AND  locked_at   < $2
			  AND  fail_count + 1 >= $3
			ORDER BY locked_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id`, s.table)

	var recovered []store.RecoveredJob

	rows, err := s.pool.Query(ctx, rescheduleQuery, now, cutoff, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("recover stale (reschedule): %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		recovered = append(recovered, store.RecoveredJob{ID: id})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	remaining := limit - len(recovered)
	if remaining <= 0 {
		return recovered, nil
	}

	rows, err = s.pool.Query(ctx, failQuery, now, cutoff, maxRetries, remaining)
	if err != nil {
		return nil, fmt.Errorf("recover stale (fail): %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		recovered = append(recovered, store.RecoveredJob{ID: id, MovedToFail: true})
	}
	return recovered, rows.Err()
}

func (s *Store) Cancel(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET status = 'cancelled', updated_at = now() WHERE id = $1 AND status = 'pending'`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("cancel: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := s.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) DeleteTerminalOlderThan(ctx context.Context, status model.Status, cutoff time.Time, limit int) ([]string, error) {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id IN (
			SELECT id FROM %[1]s
			WHERE status = $1 AND updated_at < $2
			ORDER BY updated_at ASC
			LIMIT $3
		)
		RETURNING id`, s.table)

	rows, err := s.pool.Query(ctx, query, string(status), cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("delete terminal older than: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Query implements keyset pagination over (created_at, id), grounded on the
// teacher's ListJobs/List cursor-based pagination in job_repo.go and
// usecase/schedule.go, using the selector package to compile the filter and
// the cursor package to decode/encode the page token.
func (s *Store) Query(ctx context.Context, filter model.Filter, page model.Page) (model.PageResult, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	sf := selector.Filter{Name: filter.Name, OlderThan: filter.OlderThan, NewerThan: filter.NewerThan}
	for _, st := range filter.Status {
		sf.Status = append(sf.Status, selector.Status(st))
	}
	compiled := selector.Compile(sf, 1)

	where := compiled.Where
	args := compiled.Args

	var dir cursor.Direction = cursor.Forward
	if page.Cursor != "" {
		id, d, err := cursor.Decode(page.Cursor)
		if err != nil {
			return model.PageResult{}, fmt.Errorf("decode cursor: %w: %w", store.ErrInvalidCursor, err)
		}
		dir = d

		anchor, err := s.GetByID(ctx, id)
		if err != nil {
			return model.PageResult{}, fmt.Errorf("resolve cursor anchor: %w", err)
		}

		cmp := "<"
		if dir == cursor.Backward {
			cmp = ">"
		}
		args = append(args, anchor.CreatedAt, anchor.ID)
		clause := fmt.Sprintf("(created_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args))
		if where != "" {
			where += " AND " + clause
		} else {
			where = clause
		}
	}

	order := "created_at DESC, id DESC"
	if dir == cursor.Backward {
		order = "created_at ASC, id ASC"
	}

	whereClause := ""
	if where != "" {
		whereClause = "WHERE " + where
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`SELECT %s FROM %s %s ORDER BY %s LIMIT $%d`,
		selectColumns, s.table, whereClause, order, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return model.PageResult{}, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return model.PageResult{}, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return model.PageResult{}, err
	}

	if dir == cursor.Backward {
		for l, r := 0, len(jobs)-1; l < r; l, r = l+1, r-1 {
			jobs[l], jobs[r] = jobs[r], jobs[l]
		}
	}

	result := model.PageResult{Jobs: jobs}
	hasMore := len(jobs) > limit
	if hasMore {
		if dir == cursor.Backward {
			jobs = jobs[1:]
		} else {
			jobs = jobs[:limit]
		}
		result.Jobs = jobs
	}
	if len(jobs) > 0 {
		if nc, err := cursor.Encode(jobs[len(jobs)-1].ID, cursor.Forward); err == nil {
			result.NextCursor = nc
		}
		if pc, err := cursor.Encode(jobs[0].ID, cursor.Backward); err == nil {
			result.PrevCursor = pc
		}
	}
	return result, nil
}
