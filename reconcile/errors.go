package reconcile

import "errors"

// Invocation-level errors abort the whole import; nothing is persisted for the run.
var (
	ErrEmptyInput       = errors.New("input is empty")
	ErrNoHeader         = errors.New("input has no header row")
	ErrNoFile           = errors.New("no file provided")
	ErrUnreadableFile   = errors.New("file could not be read")
	ErrImportInProgress = errors.New("another import is in progress")
)
