package afli

import "go.uber.org/zap"

// Option configures an Index at construction time.
type Option func(*options)

type options struct {
	logger *zap.Logger
	pool   Pool
	hp     HyperParameters
}

func defaultOptions() *options {
	return &options{
		logger: zap.NewNop(),
		hp:     DefaultHyperParameters(),
	}
}

// WithLogger injects a *zap.Logger used for the one place the spec calls
// for an explicit log: a rebuild that discovers a non-monotone model fit
// even after the spline fallback (SPEC_FULL.md §4.6). The default is a
// no-op logger, so the library stays silent unless a caller wires a sink.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMaxQueuedRebuilds sets the back-pressure threshold described in
// SPEC_FULL.md §4.5/§6: once the pool's queued depth exceeds this, Insert
// blocks on Pool.SubmitAndWait instead of firing-and-forgetting.
func WithMaxQueuedRebuilds(n int) Option {
	return func(o *options) { o.hp.MaxQueuedRebuilds = n }
}

// WithPool supplies an externally owned Pool collaborator. Without this
// option a bounded default pool is created and owned by the Index, sized by
// HyperParameters.MaxBackgroundWorkers.
func WithPool(p Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithHyperParameters overrides the default tuning knobs (SPEC_FULL.md §6).
func WithHyperParameters(hp HyperParameters) Option {
	return func(o *options) { o.hp = hp }
}

// WithMaxBackgroundWorkers sets the size of the default background rebuild
// pool; 0 selects the synchronous inlinePool. Ignored if WithPool supplies
// an externally owned Pool.
func WithMaxBackgroundWorkers(n uint32) Option {
	return func(o *options) { o.hp.MaxBackgroundWorkers = n }
}
