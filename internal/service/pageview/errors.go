package pageview

import "errors"

// Sentinel errors for the pageview service layer.
var (
	// ErrNotFound is returned by appends targeting an unknown page_id.
	ErrNotFound = errors.New("pageview not found")

	// ErrDuplicate signals a composite-key collision on
	// (day, path, session_id, hostname). It is a duplicate-suppression
	// signal, not a failure: Create swallows it and reports success.
	ErrDuplicate = errors.New("duplicate pageview for day/path/session/hostname")
)
