package executive

// options holds configuration gathered from Option values passed to New.
type options struct {
	startTime    Time
	logger       Logger
	coordinator  Coordinator
	id           string
	parallel     bool
}

// Option configures an Executive at construction time.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithStartTime sets the executive's initial simulated time. Defaults to 0.
func WithStartTime(t Time) Option {
	return optionFunc(func(o *options) { o.startTime = t })
}

// WithLogger attaches a structured logger. A nil logger (the default)
// disables all logging overhead.
func WithLogger(log Logger) Option {
	return optionFunc(func(o *options) { o.logger = log })
}

// WithID assigns a stable, caller-chosen identity, overriding the default
// generated uuid. Intended for tests that need deterministic ids.
func WithID(id string) Option {
	return optionFunc(func(o *options) { o.id = id })
}

// WithCoordinator registers the co-executor this Executive will run under.
// Required for a TracedValue future read (one that must wait for this
// executive's clock) and for InitiateRollback into this executive's past
// from another goroutine, which fail with ErrNoCoordinator without one.
// Historical reads, same-instant and future writes, and standalone runs
// need no coordinator.
func WithCoordinator(c Coordinator) Option {
	return optionFunc(func(o *options) { o.coordinator = c })
}

// WithParallel marks the executive as safe to read/write from other
// executives' threads while running, per spec.md's distinction between
// serial-only and parallel-capable executives. Defaults to false: a
// serial-only executive's TracedValues reject cross-executive access with
// IllegalCrossExecCallError.
func WithParallel(parallel bool) Option {
	return optionFunc(func(o *options) { o.parallel = parallel })
}

func resolveOptions(opts []Option) *options {
	cfg := &options{startTime: 0}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
