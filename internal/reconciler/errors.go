package reconciler

import (
	"fmt"
	"strings"
)

// FetchError wraps a failed read of one tunnel group's remote state.
// A fetch failure skips that group without aborting the others.
type FetchError struct {
	Region string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching remote state for region %s: %v", e.Region, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ApplyError wraps a write that still failed after the retry policy
// gave up. Op names the operation that failed.
type ApplyError struct {
	Region string
	Op     string
	Err    error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("applying %s for region %s: %v", e.Op, e.Region, e.Err)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// OwnershipViolation reports DNS records a reconcile pass wanted to
// touch but left alone because this tool does not own them. It is
// surfaced in logs and the run summary without failing the group.
type OwnershipViolation struct {
	Region string

	// Kept lists hostnames leaving the tunnel whose DNS records were
	// not created by this tool and were therefore not deleted.
	Kept []string

	// Conflicts lists desired hostnames whose existing DNS records
	// point somewhere else entirely and were not repointed.
	Conflicts []string
}

func (e *OwnershipViolation) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Kept) > 0 {
		parts = append(parts, "kept "+strings.Join(e.Kept, ", "))
	}

	if len(e.Conflicts) > 0 {
		parts = append(parts, "conflicting "+strings.Join(e.Conflicts, ", "))
	}

	return fmt.Sprintf("region %s: dns records not managed by this tool: %s",
		e.Region, strings.Join(parts, "; "))
}
