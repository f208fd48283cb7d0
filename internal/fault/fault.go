// Package fault defines the structured error taxonomy shared by the
// validation, security, quality and pipeline layers. Every failure carries a
// machine-readable kind plus a human-readable detail so the HTTP boundary can
// map it to a status code without string parsing.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies a failure class.
type Kind string

const (
	InvalidInput            Kind = "InvalidInput"
	FileTooLarge            Kind = "FileTooLarge"
	UnsupportedType         Kind = "UnsupportedType"
	MimeMismatch            Kind = "MimeMismatch"
	MaliciousFilename       Kind = "MaliciousFilename"
	ExecutableContent       Kind = "ExecutableContentDetected"
	RateLimited             Kind = "RateLimited"
	LowQualityOCR           Kind = "LowQualityOCR"
	LowQualityNER           Kind = "LowQualityNER"
	ExtractionTimeout       Kind = "ExtractionTimeout"
	CollaboratorUnavailable Kind = "CollaboratorUnavailable"
	NotFound                Kind = "NotFound"
)

// Fault is an error with a taxonomy kind. RetryAfter is set only for
// RateLimited faults.
type Fault struct {
	Kind       Kind
	Detail     string
	RetryAfter time.Duration
	cause      error
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Detail
}

func (f *Fault) Unwrap() error { return f.cause }

// New returns a Fault of the given kind.
func New(kind Kind, detail string) *Fault {
	return &Fault{Kind: kind, Detail: detail}
}

// Newf returns a Fault with a formatted detail message.
func Newf(kind Kind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap returns a Fault that wraps an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Fault {
	d := detail
	if cause != nil {
		d = fmt.Sprintf("%s: %v", detail, cause)
	}
	return &Fault{Kind: kind, Detail: d, cause: cause}
}

// RateLimitedAfter returns a RateLimited fault carrying a retry hint.
func RateLimitedAfter(retryAfter time.Duration) *Fault {
	return &Fault{
		Kind:       RateLimited,
		Detail:     fmt.Sprintf("retry after %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// KindOf extracts the taxonomy kind from err, unwrapping as needed.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
