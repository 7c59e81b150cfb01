// Package ocerr implements the closed error taxonomy and single normalizer.
// Every failure that crosses an adapter, worker, or engine boundary is
// funneled through Normalize so callers only ever branch on Kind/Severity,
// never on ad hoc error strings.
package ocerr

import (
	"errors"
	"fmt"
	"regexp"
)

// Kind is one of the closed set of structured error kinds.
type Kind string

const (
	// Repo
	KindRepoNotFound   Kind = "NOT_FOUND"
	KindRepoArchived   Kind = "ARCHIVED"
	KindNoPermission   Kind = "NO_PERMISSION"
	KindCloneFailed    Kind = "CLONE_FAILED"
	// Discovery
	KindScannerFailed  Kind = "SCANNER_FAILED"
	KindScannerTimeout Kind = "SCANNER_TIMEOUT"
	KindNoTasksFound   Kind = "NO_TASKS_FOUND"
	// Budget
	KindBudgetInsufficient  Kind = "BUDGET_INSUFFICIENT"
	KindTokenizerUnavailable Kind = "TOKENIZER_UNAVAILABLE"
	// Execution
	KindAgentNotAvailable  Kind = "AGENT_NOT_AVAILABLE"
	KindAgentExecutionFailed Kind = "AGENT_EXECUTION_FAILED"
	KindAgentTimeout       Kind = "AGENT_TIMEOUT"
	KindAgentOOM           Kind = "AGENT_OOM"
	KindAgentTokenLimit    Kind = "AGENT_TOKEN_LIMIT"
	KindAgentRateLimited   Kind = "AGENT_RATE_LIMITED"
	KindValidation         Kind = "VALIDATION_FAILED"
	// Completion
	KindPRCreationFailed   Kind = "PR_CREATION_FAILED"
	KindPRPushRejected     Kind = "PR_PUSH_REJECTED"
	KindWebhookDeliveryFailed Kind = "WEBHOOK_DELIVERY_FAILED"
	// Config
	KindConfigInvalid      Kind = "INVALID"
	KindSecretMissing      Kind = "SECRET_MISSING"
	// System
	KindNetworkError       Kind = "NETWORK_ERROR"
	KindDiskSpaceLow       Kind = "DISK_SPACE_LOW"
	KindGitLockFailed      Kind = "GIT_LOCK_FAILED"
)

// Severity classifies how a Kind should be handled by its caller.
type Severity string

const (
	SeverityFatal      Severity = "fatal"
	SeverityRecoverable Severity = "recoverable"
	SeverityWarning    Severity = "warning"
)

var kindSeverity = map[Kind]Severity{
	KindRepoNotFound: SeverityFatal,
	KindRepoArchived: SeverityFatal,
	KindNoPermission: SeverityFatal,
	KindCloneFailed:  SeverityFatal,

	KindScannerFailed:  SeverityRecoverable,
	KindScannerTimeout: SeverityRecoverable,
	KindNoTasksFound:   SeverityRecoverable,

	KindBudgetInsufficient:   SeverityRecoverable,
	KindTokenizerUnavailable: SeverityRecoverable,

	KindAgentNotAvailable:    SeverityRecoverable,
	KindAgentExecutionFailed: SeverityRecoverable,
	KindAgentTimeout:         SeverityRecoverable,
	KindAgentOOM:             SeverityRecoverable,
	KindAgentTokenLimit:      SeverityRecoverable,
	KindAgentRateLimited:     SeverityRecoverable,
	KindValidation:           SeverityRecoverable,

	KindPRCreationFailed:      SeverityRecoverable,
	KindPRPushRejected:        SeverityRecoverable,
	KindWebhookDeliveryFailed: SeverityRecoverable,

	KindConfigInvalid: SeverityFatal,
	KindSecretMissing: SeverityFatal,

	KindNetworkError:  SeverityRecoverable,
	KindDiskSpaceLow:  SeverityRecoverable,
	KindGitLockFailed: SeverityRecoverable,
}

// transientKinds is the set of normalize-derived kinds that IsTransient
// treats as retriable.
var transientKinds = map[Kind]bool{
	KindAgentTimeout:     true,
	KindAgentOOM:         true,
	KindAgentRateLimited: true,
	KindNetworkError:     true,
	KindGitLockFailed:    true,
}

// Error is a structured error carrying a Kind, Severity, context, and the
// original cause (if any).
type Error struct {
	Kind     Kind
	Severity Severity
	Message  string
	Context  map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a structured Error of the given kind with its canonical severity.
func New(kind Kind, message string, context map[string]string, cause error) *Error {
	return &Error{
		Kind:     kind,
		Severity: kindSeverity[kind],
		Message:  message,
		Context:  context,
		Cause:    cause,
	}
}

// classifyPattern is one entry in the normalizer's fixed-order regex table.
type classifyPattern struct {
	pattern *regexp.Regexp
	kind    Kind
}

// classifyTable is matched in order; the first pattern to match wins. Order
// is load-bearing: a rate-limit message that also mentions "network"
// classifies as NETWORK_ERROR because that pattern comes first.
var classifyTable = []classifyPattern{
	{regexp.MustCompile(`(?i)timed out|timeout`), KindAgentTimeout},
	{regexp.MustCompile(`(?i)out of memory|ENOMEM|heap`), KindAgentOOM},
	{regexp.MustCompile(`(?i)network|ECONN|ENOTFOUND|EAI_AGAIN`), KindNetworkError},
	{regexp.MustCompile(`(?i)index\.lock|cannot lock ref|\.git/index\.lock`), KindGitLockFailed},
	{regexp.MustCompile(`(?i)rate.limit|429|too many requests|throttl`), KindAgentRateLimited},
}

// Normalize converts an arbitrary error into a structured Error. If err is
// already a *Error it is returned verbatim (context is not re-derived).
// Otherwise its message is matched against the fixed-order pattern table;
// the first match wins. An error whose type name is "AbortError", or that
// matches nothing, normalizes to AGENT_EXECUTION_FAILED.
//
// context should at minimum include "task_id"; "job_id", "execution_id", and
// "attempt" are attached when the caller has them.
func Normalize(err error, context map[string]string) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	msg := err.Error()
	kind := KindAgentExecutionFailed
	for _, p := range classifyTable {
		if p.pattern.MatchString(msg) {
			kind = p.kind
			break
		}
	}

	return &Error{
		Kind:     kind,
		Severity: kindSeverity[kind],
		Message:  msg,
		Context:  context,
		Cause:    err,
	}
}

// IsTransient reports whether err (already normalized, or normalizable)
// belongs to the retriable kind set.
func IsTransient(err error) bool {
	structured := Normalize(err, nil)
	if structured == nil {
		return false
	}
	return transientKinds[structured.Kind]
}
