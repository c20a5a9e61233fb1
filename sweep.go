package tablesess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minus-twelve/tablesess/types"
)

// ExpiryPolicy decides whether a stored session may be removed.
type ExpiryPolicy int

const (
	// ExpiryDoubleGrace removes a session once the time elapsed since its
	// cookie expiry exceeds its original max age: now - expires > maxAge.
	ExpiryDoubleGrace ExpiryPolicy = iota
	// ExpiryAtDeadline removes a session as soon as now > expires.
	ExpiryAtDeadline
)

func (p ExpiryPolicy) String() string {
	switch p {
	case ExpiryDoubleGrace:
		return "double_grace"
	case ExpiryAtDeadline:
		return "at_deadline"
	}
	return fmt.Sprintf("ExpiryPolicy(%d)", int(p))
}

// ParseExpiryPolicy maps a configuration value to a policy. The empty
// string selects ExpiryDoubleGrace.
func ParseExpiryPolicy(s string) (ExpiryPolicy, error) {
	switch s {
	case "", "double_grace":
		return ExpiryDoubleGrace, nil
	case "at_deadline":
		return ExpiryAtDeadline, nil
	}
	return 0, fmt.Errorf("%w: unknown sweep policy %q", ErrInvalidConfig, s)
}

// Expired applies the policy to a cookie at instant now.
func (p ExpiryPolicy) Expired(c types.Cookie, now time.Time) bool {
	if c.Expires == nil {
		return false
	}
	if p == ExpiryAtDeadline {
		return now.After(*c.Expires)
	}
	return now.Sub(*c.Expires) > c.MaxAge()
}

// SkippedRow is a row the sweep could not judge and left in place.
type SkippedRow struct {
	RowKey string
	Reason error
}

// RowFailure is an expired row whose delete failed.
type RowFailure struct {
	RowKey string
	Err    error
}

func (f RowFailure) Error() string {
	return fmt.Sprintf("delete %s: %v", f.RowKey, f.Err)
}

func (f RowFailure) Unwrap() error { return f.Err }

type SweepResult struct {
	Scanned  int
	Deleted  int
	Skipped  []SkippedRow
	Failures []RowFailure
}

// Err joins the per-row failures, or returns nil when there were none.
func (r SweepResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Sweeper deletes stored sessions whose lifetime has elapsed. Rows are
// visited and deleted one at a time.
type Sweeper struct {
	backend  Backend
	policy   ExpiryPolicy
	now      func() time.Time
	observer Observer
}

type SweeperOption func(*Sweeper)

func WithSweepPolicy(p ExpiryPolicy) SweeperOption {
	return func(s *Sweeper) {
		s.policy = p
	}
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		s.now = now
	}
}

func WithSweepObserver(o Observer) SweeperOption {
	return func(s *Sweeper) {
		s.observer = o
	}
}

func NewSweeper(backend Backend, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		backend:  backend,
		policy:   ExpiryDoubleGrace,
		now:      time.Now,
		observer: NopObserver(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep queries the whole partition and deletes every expired row. The
// result is always populated when the query succeeded; the returned error
// then joins the individual delete failures.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	entities, err := s.backend.QueryAll(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("query sessions: %w", err)
	}
	return s.sweepEntities(ctx, entities)
}

func (s *Sweeper) sweepEntities(ctx context.Context, entities []types.Entity) (SweepResult, error) {
	now := s.now()

	var res SweepResult
	for _, e := range entities {
		res.Scanned++

		cookie, err := DecodeCookie(e)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedRow{RowKey: e.RowKey, Reason: err})
			s.observer.Warn(ctx, Warning{Kind: WarnSweepSkipped, Op: OpClearExpired, RowKey: e.RowKey, Err: err})
			continue
		}
		if !s.policy.Expired(cookie, now) {
			continue
		}

		if err := s.backend.Delete(ctx, e.RowKey); err != nil {
			res.Failures = append(res.Failures, RowFailure{RowKey: e.RowKey, Err: err})
			s.observer.Warn(ctx, Warning{Kind: WarnDeleteFailed, Op: OpClearExpired, RowKey: e.RowKey, Err: err})
			continue
		}
		res.Deleted++
	}

	s.observer.Swept(ctx, res)
	return res, res.Err()
}
