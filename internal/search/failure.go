package search

import (
	"errors"
	"strings"
)

type FailureKind int

const (
	Unknown FailureKind = iota
	AgeRestricted
	DRMProtected
	NotFound
)

func (k FailureKind) String() string {
	switch k {
	case AgeRestricted:
		return "age_restricted"
	case DRMProtected:
		return "drm_protected"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Failure is returned by Search when a query cannot be resolved.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "search: " + f.Kind.String()
	}
	return "search: " + f.Kind.String() + ": " + f.Err.Error()
}

func (f *Failure) Unwrap() error { return f.Err }

// KindOf returns the failure kind carried by err, or Unknown.
func KindOf(err error) FailureKind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Unknown
}

// classify maps an extractor error message to a failure kind.
func classify(msg string) FailureKind {
	msg = strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "sign in"),
		strings.Contains(msg, "age-restricted"),
		strings.Contains(msg, "age restricted"),
		strings.Contains(msg, "confirm your age"),
		strings.Contains(msg, "inappropriate for some users"):
		return AgeRestricted
	case strings.Contains(msg, "drm"):
		return DRMProtected
	default:
		return NotFound
	}
}
