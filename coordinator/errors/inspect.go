package errors

import "errors"

// HasCode checks if an error is a CoordinatorError with the given code
func HasCode(err error, code ErrorCode) bool {
	var coordErr *CoordinatorError
	if errors.As(err, &coordErr) {
		return coordErr.Code == code
	}
	return false
}

// IsFatal reports whether err (or anything it wraps) is a fatal coordinator error.
func IsFatal(err error) bool {
	var coordErr *CoordinatorError
	if errors.As(err, &coordErr) {
		return coordErr.IsFatal()
	}
	return false
}

// SeverityOf returns the severity of the first CoordinatorError in err's chain.
// Errors from outside the taxonomy are SeverityLow; nil has no severity.
func SeverityOf(err error) Severity {
	if err == nil {
		return ""
	}
	var coordErr *CoordinatorError
	if errors.As(err, &coordErr) {
		return coordErr.Severity
	}
	return SeverityLow
}
