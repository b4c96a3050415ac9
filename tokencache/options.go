package tokencache

import "time"

// DefaultKeyPrefix is prepended to every Redis key.
const DefaultKeyPrefix = "b2c:token:"

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		o(opts)
	}
}

type options struct {
	withNowFunc   func() time.Time
	withKeyPrefix string
}

func getDefaults() options {
	return options{
		withNowFunc:   time.Now,
		withKeyPrefix: DefaultKeyPrefix,
	}
}

func getOpts(opt ...Option) options {
	opts := getDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithNow provides an optional func for determining the current time, for:
// Memory, Redis
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok && now != nil {
			o.withNowFunc = now
		}
	}
}

// WithKeyPrefix provides an optional key prefix, for: Redis
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*options); ok {
			o.withKeyPrefix = prefix
		}
	}
}
