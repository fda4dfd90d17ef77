package dispatch

import "errors"

// Error kinds recognized by the dispatcher. Each surfaces to the client
// verbatim in the error frame's "error" field, so the text is user-facing:
// capitalized, descriptive, and - for a missing argument - naming the
// specific argument at fault rather than a generic category. Parse
// failures are still wrapped with fmt.Errorf("%w: %v", ...) at the point
// they're raised, the way the teacher wraps DNS resolution errors, so %w
// chains stay intact for errors.Is.
var (
	ErrInvalidFrame          = errors.New("Invalid request")
	ErrMissingMethod         = errors.New("Method is required")
	ErrUnsupportedMethod     = errors.New("Unsupported method")
	ErrBlockNumberRequired   = errors.New("Block number is required")
	ErrTransactionIDRequired = errors.New("Transaction id is required")
	ErrFeedRequired          = errors.New("Feed name is required")
	ErrUnknownFeed           = errors.New("Unknown feed")
	ErrRateLimited           = errors.New("Rate limit exceeded")
	ErrQueueFull             = errors.New("Server is busy, try again later")
	ErrUpstreamFailure       = errors.New("Upstream request failed")
)
