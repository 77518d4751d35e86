package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrRetryExhausted = errors.New("retries exhausted")
	ErrNoPositions    = errors.New("no position data")
	ErrUnparsable     = errors.New("unparsable model response")
	ErrInvalidAddress = errors.New("invalid wallet address")
)
