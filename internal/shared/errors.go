package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrMalformedResponse  = fmt.Errorf("malformed response")
	ErrMediaItemNotFound  = fmt.Errorf("media item not found")

	// Upload errors
	ErrInvalidChunkSize = fmt.Errorf("invalid chunk size")
	ErrNonSequential    = fmt.Errorf("non-sequential read")
	ErrSizeMismatch     = fmt.Errorf("stream size mismatch")
	ErrSessionFinished  = fmt.Errorf("upload session already finished")
	ErrUploadFailed     = fmt.Errorf("upload failed")

	// Ledger errors
	ErrLedgerStale      = fmt.Errorf("ledger is stale")
	ErrCommitFailed     = fmt.Errorf("ledger commit failed")
	ErrMarkerNotFound   = fmt.Errorf("ledger marker not found")
	ErrCorruptLedger    = fmt.Errorf("ledger document is corrupt")
	ErrUnknownBackend   = fmt.Errorf("unknown ledger backend")
	ErrRecordNotFound   = fmt.Errorf("record not found")
	ErrSkipItem         = fmt.Errorf("item skipped")
	ErrMigrationAborted = fmt.Errorf("migration aborted")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
