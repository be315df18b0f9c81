package uthreads

// initOptions holds configuration applied at Init.
type initOptions struct {
	stackSize int
	logger    Logger
}

// Option configures the scheduler at Init time.
type Option interface {
	applyInit(*initOptions)
}

type initOptionFunc func(*initOptions)

func (f initOptionFunc) applyInit(o *initOptions) { f(o) }

// WithStackSize overrides the per-thread stack budget for spawned threads.
// Since spawned threads run on real goroutine stacks, this is honored as a
// hint passed to the fiber package rather than a literal fixed-size arena —
// goroutine stacks grow on demand starting from 2KiB regardless of what is
// requested here.
func WithStackSize(bytes int) Option {
	return initOptionFunc(func(o *initOptions) {
		if bytes > 0 {
			o.stackSize = bytes
		}
	})
}

// WithLogger installs logger as the package-level Logger for the lifetime
// of this scheduler, equivalent to calling SetLogger(logger) before Init.
// Passing it here instead keeps construction and configuration in one call.
func WithLogger(logger Logger) Option {
	return initOptionFunc(func(o *initOptions) {
		o.logger = logger
	})
}

// resolveInitOptions applies Option values over the defaults.
func resolveInitOptions(opts []Option) *initOptions {
	cfg := &initOptions{stackSize: StackSize}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.applyInit(cfg)
	}
	return cfg
}
