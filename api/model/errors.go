package model

import (
	"fmt"
	"strings"
)

// ErrorKind names one failure in the closed rollback taxonomy.
type ErrorKind string

const (
	KindValidationFailed       ErrorKind = "ValidationFailed"
	KindBucketResolutionFailed ErrorKind = "BucketResolutionFailed"
	KindListingFailed          ErrorKind = "ListingFailed"
	KindNoDeploymentsFound     ErrorKind = "NoDeploymentsFound"
	KindTimestampNotFound      ErrorKind = "TimestampNotFound"
	KindUpdateRejected         ErrorKind = "UpdateRejected"
	KindMonitorTimeout         ErrorKind = "MonitorTimeout"
	KindMonitorUnreachable     ErrorKind = "MonitorUnreachable"
	KindRemoteUpdateFailed     ErrorKind = "RemoteUpdateFailed"
	KindRemoteAutoRolledBack   ErrorKind = "RemoteAutoRolledBack"
)

// Sentinels for errors.Is. Matching is by kind only.
var (
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrBucketResolutionFailed = &Error{Kind: KindBucketResolutionFailed}
	ErrListingFailed          = &Error{Kind: KindListingFailed}
	ErrNoDeploymentsFound     = &Error{Kind: KindNoDeploymentsFound}
	ErrTimestampNotFound      = &Error{Kind: KindTimestampNotFound}
	ErrUpdateRejected         = &Error{Kind: KindUpdateRejected}
	ErrMonitorTimeout         = &Error{Kind: KindMonitorTimeout}
	ErrMonitorUnreachable     = &Error{Kind: KindMonitorUnreachable}
	ErrRemoteUpdateFailed     = &Error{Kind: KindRemoteUpdateFailed}
	ErrRemoteAutoRolledBack   = &Error{Kind: KindRemoteAutoRolledBack}
)

// Error is a rollback failure. It carries the structured context of the
// failure; presentation layers decide how to phrase it and what to suggest.
type Error struct {
	Kind      ErrorKind
	Service   string
	Stage     string
	Region    string
	Timestamp string
	Stack     string
	Bucket    string
	Status    string
	Reason    string
	Findings  []ValidationFinding
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	switch e.Kind {
	case KindValidationFailed:
		b.WriteString("validation failed")
		if len(e.Findings) > 0 {
			msgs := make([]string, 0, len(e.Findings))
			for _, f := range e.Findings {
				msgs = append(msgs, f.Message)
			}
			b.WriteString(": " + strings.Join(msgs, "; "))
		}
	case KindBucketResolutionFailed:
		fmt.Fprintf(&b, "could not resolve deployment bucket for stack %s", e.Stack)
		if e.Bucket != "" {
			fmt.Fprintf(&b, " (bucket %s)", e.Bucket)
		}
	case KindListingFailed:
		fmt.Fprintf(&b, "could not list deployments in bucket %s", e.Bucket)
	case KindNoDeploymentsFound:
		fmt.Fprintf(&b, "no existing deployments for %s (stage %s, region %s)", e.Service, e.Stage, e.Region)
	case KindTimestampNotFound:
		fmt.Fprintf(&b, "no deployment for timestamp %s", e.Timestamp)
	case KindUpdateRejected:
		fmt.Fprintf(&b, "stack %s rejected the update", e.Stack)
	case KindMonitorTimeout:
		fmt.Fprintf(&b, "timed out waiting for stack %s (last status %s)", e.Stack, e.Status)
	case KindMonitorUnreachable:
		fmt.Fprintf(&b, "lost contact with stack %s status endpoint", e.Stack)
	case KindRemoteUpdateFailed:
		fmt.Fprintf(&b, "stack %s update failed with status %s", e.Stack, e.Status)
	case KindRemoteAutoRolledBack:
		fmt.Fprintf(&b, "stack %s rolled the update back itself (status %s)", e.Stack, e.Status)
	default:
		b.WriteString(string(e.Kind))
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the taxonomy kind of err, or "" when err is not a rollback error.
func KindOf(err error) ErrorKind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
