package coexecutor

import "time"

// options holds configuration gathered from Option values passed to New.
type options struct {
	logger       Logger
	paceWindow   float64
	paceRates    map[time.Duration]int
}

// Option configures a CoExecutor at construction time.
type Option interface {
	apply(*options)
}

type optionFunc func(*options)

func (f optionFunc) apply(o *options) { f(o) }

// WithLogger attaches a structured logger to the co-executor itself (member
// executives are logged independently, via their own WithLogger).
func WithLogger(log Logger) Option {
	return optionFunc(func(o *options) { o.logger = log })
}

// WithPaceWindow sets the simulated-time-unit window used to turn
// "how far ahead of the slowest peer" into a throttle probability, per
// spec.md §4.3's backpressure mechanism. Defaults to 100.
func WithPaceWindow(window float64) Option {
	return optionFunc(func(o *options) { o.paceWindow = window })
}

// WithPaceRates overrides the catrate.Limiter sliding-window rates used to
// gate how often an ahead-of-peers executive is actually made to yield.
// Defaults to at most 20 yields per 100ms.
func WithPaceRates(rates map[time.Duration]int) Option {
	return optionFunc(func(o *options) { o.paceRates = rates })
}

func resolveOptions(opts []Option) *options {
	cfg := &options{
		paceWindow: 100,
		paceRates:  map[time.Duration]int{100 * time.Millisecond: 20},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
