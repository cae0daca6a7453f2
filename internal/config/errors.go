package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than creating
// new error instances in Validate(). This allows callers to use errors.Is()
// for programmatic handling while still providing human-readable messages.
var (
	// ErrNoBaseURL is returned when the portal base URL is empty.
	ErrNoBaseURL = errors.New("no base URL configured")

	// ErrNoCookie is returned when no session cookie is configured.
	// The crawler refuses to start without one because every portal page
	// requires an authenticated session.
	ErrNoCookie = errors.New("no session cookie: set --cookie, the LMSCRAWL_COOKIE environment variable, or the config file")

	// ErrInvalidWorkers is returned when the worker count is below 1.
	ErrInvalidWorkers = errors.New("invalid worker count: must be at least 1")

	// ErrInvalidBatchSize is returned when the batch size is below 1.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be at least 1")

	// ErrInvalidTimeout is returned when the fetch timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidUserIDRange is returned in brute-force mode when the
	// numeric id range is empty or starts below zero.
	ErrInvalidUserIDRange = errors.New("invalid user id range: need 0 <= min <= max")
)
