package api

import (
	"net/http"

	"github.com/b2cauth/b2cauth/b2c"
	"github.com/hashicorp/go-hclog"
)

// clientOptions is the set of available options for Client
type clientOptions struct {
	withHttpClient *http.Client
	withLogger     hclog.Logger
}

func getClientOpts(opt ...b2c.Option) clientOptions {
	var opts clientOptions
	b2c.ApplyOpts(&opts, opt...)
	return opts
}

// WithHttpClient provides an optional http client for the Client
func WithHttpClient(c *http.Client) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withHttpClient = c
		}
	}
}

// WithLogger provides an optional logger for the Client
func WithLogger(l hclog.Logger) b2c.Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withLogger = l
		}
	}
}
