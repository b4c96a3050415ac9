package b2c

import "time"

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is, for: AttemptState, StateCodec, Orchestrator
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *attemptStateOptions:
			v.withNowFunc = now
		case *stateCodecOptions:
			v.withNowFunc = now
		case *orchestratorOptions:
			v.withNowFunc = now
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration for: AttemptState,
// StateCodec
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *attemptStateOptions:
			v.withExpirySkew = d
		case *stateCodecOptions:
			v.withExpirySkew = d
		}
	}
}
