package sqlkit

import (
	"log/slog"
	"time"
)

const defaultStreamBuffer = 16

// Option configures NewPool and Open.
type Option func(*options)

type options struct {
	transform    *Transform
	dialect      *Dialect
	logger       *slog.Logger
	slow         time.Duration
	streamBuffer int
}

// WithTransform sets the name transform pair. It overrides the
// TransformQueryNames and TransformResultNames config fields.
func WithTransform(t Transform) Option {
	return func(o *options) {
		o.transform = &t
	}
}

// WithDialect overrides the driver's dialect.
func WithDialect(d Dialect) Option {
	return func(o *options) {
		o.dialect = &d
	}
}

// WithLogger sets the logger for pool events, rollback failures and slow
// queries. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithSlowQueryThreshold logs statements running at least d at warn level.
// Zero disables the check.
func WithSlowQueryThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slow = d
	}
}

// WithStreamBuffer sets how many rows a stream fetches ahead of the
// consumer. Defaults to 16.
func WithStreamBuffer(n int) Option {
	return func(o *options) {
		o.streamBuffer = n
	}
}

// settings is the execution environment shared by a pool and every Conn it
// hands out.
type settings struct {
	dialect      Dialect
	names        Transform
	logger       *slog.Logger
	stats        *QueryStats
	slow         time.Duration
	streamBuffer int
}

func newSettings(drv Driver, cfg Config, opts []Option) (*settings, error) {
	var o options
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	s := &settings{
		logger:       o.logger,
		stats:        &QueryStats{},
		slow:         o.slow,
		streamBuffer: o.streamBuffer,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.slow < 0 {
		return nil, configError("slow query threshold must not be negative")
	}
	if s.streamBuffer < 0 {
		return nil, configError("stream buffer must not be negative")
	}
	if s.streamBuffer == 0 {
		s.streamBuffer = defaultStreamBuffer
	}

	if o.dialect != nil {
		s.dialect = *o.dialect
	} else {
		s.dialect = drv.Dialect()
	}
	if err := s.dialect.validate(); err != nil {
		return nil, configError("dialect %q requires Placeholder and EscapeIdent", s.dialect.Name)
	}

	if o.transform != nil {
		s.names = *o.transform
		return s, nil
	}
	toQuery, err := ParseCase(cfg.TransformQueryNames, true)
	if err != nil {
		return nil, err
	}
	toResult, err := ParseCase(cfg.TransformResultNames, false)
	if err != nil {
		return nil, err
	}
	s.names = Transform{ToQueryName: toQuery, ToResultName: toResult}
	return s, nil
}

func (e *settings) compile(stmt Statement) (CompiledQuery, ExecMode, error) {
	q, err := Compile(stmt, e.dialect, WithNames(e.names))
	if err != nil {
		return CompiledQuery{}, 0, err
	}
	if stmt.IsSimple() {
		return q, ExecSimple, nil
	}
	return q, ExecPrepared, nil
}
