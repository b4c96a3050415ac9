package api

import "errors"

var (
	ErrApiUrlNotConfigured = errors.New("api url is not configured")
	ErrUnauthorized        = errors.New("api rejected the access token")
	ErrUnexpectedStatus    = errors.New("unexpected api response status")
	ErrRequestFailed       = errors.New("api request failed")
)
