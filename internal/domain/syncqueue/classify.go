package syncqueue

import (
	"regexp"
	"strconv"
	"strings"
)

// FailureKind classifies a sync trigger failure
type FailureKind string

const (
	// FailureRetryable means the event goes back to pending with a backoff
	FailureRetryable FailureKind = "RETRYABLE"
	// FailurePermanent means the event is parked for operator remediation
	FailurePermanent FailureKind = "PERMANENT"
)

// transportFailureMarkers are substrings of transport-level errors that are
// always worth retrying.
var transportFailureMarkers = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"no such host",
	"broken pipe",
	"unexpected eof",
}

// httpStatusPattern matches an HTTP status code embedded in collaborator
// error text.
var httpStatusPattern = regexp.MustCompile(`\b([1-5][0-9]{2})\b`)

// ClassifyFailure inspects opaque collaborator error text and decides
// whether the failure is worth retrying. Timeouts, connection failures, 429
// and 5xx responses are retryable; any other embedded HTTP status, and
// unrecognized text, is treated as permanent. The conservative default keeps
// data-level rejections (4xx) from retrying forever; statuses like 401/403
// are parked too even when they stem from misconfiguration.
func ClassifyFailure(message string) FailureKind {
	lower := strings.ToLower(message)
	for _, marker := range transportFailureMarkers {
		if strings.Contains(lower, marker) {
			return FailureRetryable
		}
	}

	if m := httpStatusPattern.FindStringSubmatch(message); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil {
			if code >= 500 || code == 429 {
				return FailureRetryable
			}
			return FailurePermanent
		}
	}

	return FailurePermanent
}
