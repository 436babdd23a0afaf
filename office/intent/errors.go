package intent

import "errors"

// Error categories. Every failure escaping the router carries exactly one.
const (
	// CategoryNotFound: no module advertises the requested intent.
	CategoryNotFound = "not-found"
	// CategoryInvalidModule: a registered module violates the handler
	// contract at call time.
	CategoryInvalidModule = "invalid-module"
	// CategoryRouter wraps handler failures that arrive uncategorized.
	CategoryRouter = "intent-router"
)

// Error is the single tagged shape failures take before leaving the router.
// Already-categorized errors pass through unchanged, so callers never see a
// double wrap.
type Error struct {
	Category string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// CategoryOf returns the category of err, or "" when err is uncategorized.
func CategoryOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Category
	}
	return ""
}

// IsNotFound reports whether err means no module serves the intent.
func IsNotFound(err error) bool { return CategoryOf(err) == CategoryNotFound }
