package tablesess

import (
	"context"
	"errors"
	"time"

	"github.com/minus-twelve/tablesess/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/minus-twelve/tablesess"

// TableStore implements Store on top of a table Backend. It keeps no
// session state of its own.
type TableStore struct {
	backend  Backend
	observer Observer
	tracer   trace.Tracer
	policy   ExpiryPolicy
	now      func() time.Time
}

var _ Store = (*TableStore)(nil)

type Option func(*TableStore)

func WithObserver(o Observer) Option {
	return func(s *TableStore) {
		s.observer = o
	}
}

func WithExpiryPolicy(p ExpiryPolicy) Option {
	return func(s *TableStore) {
		s.policy = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *TableStore) {
		s.now = now
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *TableStore) {
		s.tracer = t
	}
}

func NewTableStore(backend Backend, opts ...Option) *TableStore {
	s := &TableStore{
		backend:  backend,
		observer: NopObserver(),
		tracer:   otel.Tracer(tracerName),
		policy:   ExpiryDoubleGrace,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Backend returns the table the store writes to.
func (s *TableStore) Backend() Backend {
	return s.backend
}

func (s *TableStore) begin(ctx context.Context, op Op, sid string) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("tablesess.op", string(op))}
	if sid != "" {
		attrs = append(attrs, attribute.String("tablesess.sid", sid))
	}
	ctx, span := s.tracer.Start(ctx, "tablesess."+string(op), trace.WithAttributes(attrs...))
	s.observer.Start(ctx, op, sid)
	started := time.Now()

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.observer.Done(ctx, op, sid, time.Since(started), err)
	}
}

// withTable runs fn and, when it reports a missing table, provisions the
// table and runs fn exactly once more. The second result is final.
func (s *TableStore) withTable(ctx context.Context, op Op, sid string, fn func() error) error {
	err := fn()
	if !errors.Is(err, ErrTableMissing) {
		return err
	}

	if perr := s.backend.EnsureTable(ctx); perr != nil {
		s.observer.Warn(ctx, Warning{Kind: WarnProvisionFailed, Op: op, RowKey: sid, Err: perr})
	}
	s.observer.Retry(ctx, op, sid)
	return fn()
}

func (s *TableStore) warn(ctx context.Context, op Op, warnings []Warning) {
	for _, w := range warnings {
		w.Op = op
		s.observer.Warn(ctx, w)
	}
}

func (s *TableStore) Load(ctx context.Context, sid string) (sess types.Session, err error) {
	ctx, finish := s.begin(ctx, OpLoad, sid)
	defer func() { finish(err) }()

	var e types.Entity
	err = s.withTable(ctx, OpLoad, sid, func() error {
		var rerr error
		e, rerr = s.backend.Retrieve(ctx, sid)
		return rerr
	})
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sess, warnings := Decode(e)
	s.warn(ctx, OpLoad, warnings)
	return sess, nil
}

func (s *TableStore) Save(ctx context.Context, sid string, sess types.Session) error {
	return s.write(ctx, OpSave, sid, sess)
}

func (s *TableStore) Refresh(ctx context.Context, sid string, sess types.Session) error {
	return s.write(ctx, OpRefresh, sid, sess)
}

func (s *TableStore) write(ctx context.Context, op Op, sid string, sess types.Session) (err error) {
	ctx, finish := s.begin(ctx, op, sid)
	defer func() { finish(err) }()

	e, warnings := Encode(s.backend.PartitionKey(), sid, sess)
	s.warn(ctx, op, warnings)

	return s.withTable(ctx, op, sid, func() error {
		return s.backend.Upsert(ctx, e)
	})
}

func (s *TableStore) Delete(ctx context.Context, sid string) {
	ctx, finish := s.begin(ctx, OpDelete, sid)
	if err := s.backend.Delete(ctx, sid); err != nil {
		s.observer.Warn(ctx, Warning{Kind: WarnDeleteFailed, Op: OpDelete, RowKey: sid, Err: err})
	}
	finish(nil)
}

func (s *TableStore) Count(ctx context.Context) (n int, err error) {
	ctx, finish := s.begin(ctx, OpCount, "")
	defer func() { finish(err) }()

	entities, err := s.queryAll(ctx, OpCount)
	if err != nil {
		return 0, err
	}
	return len(entities), nil
}

// ClearExpired sweeps the store's table with its configured expiry policy.
// See Sweeper.Sweep for the meaning of the results.
func (s *TableStore) ClearExpired(ctx context.Context) (res SweepResult, err error) {
	ctx, finish := s.begin(ctx, OpClearExpired, "")
	defer func() { finish(err) }()

	entities, err := s.queryAll(ctx, OpClearExpired)
	if err != nil {
		return SweepResult{}, err
	}

	sweeper := NewSweeper(s.backend,
		WithSweepPolicy(s.policy),
		WithSweepClock(s.now),
		WithSweepObserver(s.observer),
	)
	return sweeper.sweepEntities(ctx, entities)
}

func (s *TableStore) queryAll(ctx context.Context, op Op) ([]types.Entity, error) {
	var entities []types.Entity
	err := s.withTable(ctx, op, "", func() error {
		var qerr error
		entities, qerr = s.backend.QueryAll(ctx)
		return qerr
	})
	return entities, err
}

// Subscribe accepts an event name and delivers nothing.
func (s *TableStore) Subscribe(string) {}
