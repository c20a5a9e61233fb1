package tablesess

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Op names a store operation in observations.
type Op string

const (
	OpLoad         Op = "load"
	OpSave         Op = "save"
	OpRefresh      Op = "refresh"
	OpDelete       Op = "delete"
	OpCount        Op = "count"
	OpClearExpired Op = "clear_expired"
)

// WarningKind classifies a non-fatal condition.
type WarningKind string

const (
	WarnDecodeDropped   WarningKind = "decode_dropped"
	WarnEncodeSkipped   WarningKind = "encode_skipped"
	WarnProvisionFailed WarningKind = "provision_failed"
	WarnDeleteFailed    WarningKind = "delete_failed"
	WarnSweepSkipped    WarningKind = "sweep_skipped"
)

// Warning is a condition that was tolerated: the operation carried on.
type Warning struct {
	Kind   WarningKind
	Op     Op
	RowKey string
	Field  string
	Err    error
}

// Observer receives store lifecycle events. Implementations must be safe
// for concurrent use.
type Observer interface {
	Start(ctx context.Context, op Op, sid string)
	Retry(ctx context.Context, op Op, sid string)
	Warn(ctx context.Context, w Warning)
	Done(ctx context.Context, op Op, sid string, elapsed time.Duration, err error)
	Swept(ctx context.Context, res SweepResult)
}

type nopObserver struct{}

func (nopObserver) Start(context.Context, Op, string)                      {}
func (nopObserver) Retry(context.Context, Op, string)                      {}
func (nopObserver) Warn(context.Context, Warning)                          {}
func (nopObserver) Done(context.Context, Op, string, time.Duration, error) {}
func (nopObserver) Swept(context.Context, SweepResult)                     {}

// NopObserver discards every event.
func NopObserver() Observer { return nopObserver{} }

type multiObserver []Observer

// MultiObserver fans events out to every observer in order.
func MultiObserver(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) Start(ctx context.Context, op Op, sid string) {
	for _, o := range m {
		o.Start(ctx, op, sid)
	}
}

func (m multiObserver) Retry(ctx context.Context, op Op, sid string) {
	for _, o := range m {
		o.Retry(ctx, op, sid)
	}
}

func (m multiObserver) Warn(ctx context.Context, w Warning) {
	for _, o := range m {
		o.Warn(ctx, w)
	}
}

func (m multiObserver) Done(ctx context.Context, op Op, sid string, elapsed time.Duration, err error) {
	for _, o := range m {
		o.Done(ctx, op, sid, elapsed, err)
	}
}

func (m multiObserver) Swept(ctx context.Context, res SweepResult) {
	for _, o := range m {
		o.Swept(ctx, res)
	}
}

// LogObserver writes events as structured logrus entries.
type LogObserver struct {
	log logrus.FieldLogger
}

func NewLogObserver(log logrus.FieldLogger) *LogObserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogObserver{log: log}
}

func (l *LogObserver) entry(ctx context.Context, op Op, sid string) *logrus.Entry {
	e := l.log.WithFields(logrus.Fields{"op": string(op)})
	if sid != "" {
		e = e.WithField("sid", sid)
	}
	return e.WithContext(ctx)
}

func (l *LogObserver) Start(ctx context.Context, op Op, sid string) {
	l.entry(ctx, op, sid).Debug("session store operation started")
}

func (l *LogObserver) Retry(ctx context.Context, op Op, sid string) {
	l.entry(ctx, op, sid).Info("table missing, provisioned and retrying once")
}

func (l *LogObserver) Warn(ctx context.Context, w Warning) {
	e := l.entry(ctx, w.Op, w.RowKey).WithField("kind", string(w.Kind))
	if w.Field != "" {
		e = e.WithField("field", w.Field)
	}
	if w.Err != nil {
		e = e.WithError(w.Err)
	}
	if w.Kind == WarnEncodeSkipped {
		e.Debug("session field not persisted")
		return
	}
	e.Warn("session store warning")
}

func (l *LogObserver) Done(ctx context.Context, op Op, sid string, elapsed time.Duration, err error) {
	e := l.entry(ctx, op, sid).WithField("elapsed", elapsed)
	if err != nil {
		e.WithError(err).Error("session store operation failed")
		return
	}
	e.Debug("session store operation succeeded")
}

func (l *LogObserver) Swept(ctx context.Context, res SweepResult) {
	e := l.entry(ctx, OpClearExpired, "").WithFields(logrus.Fields{
		"scanned": res.Scanned,
		"deleted": res.Deleted,
		"skipped": len(res.Skipped),
		"failed":  len(res.Failures),
	})
	if len(res.Failures) > 0 {
		e.Warn("expired session sweep finished with failures")
		return
	}
	e.Info("expired session sweep finished")
}
