package reconciler

// TunnelResult summarizes one tunnel group's reconcile outcome.
type TunnelResult struct {
	Region   string
	TunnelID string

	// Desired counts the declared routes for the group; Submitted
	// counts the ingress rules built from them, catch-all included.
	Desired   int
	Submitted int

	// Created, Updated and Deleted count the hostnames the diff
	// touched.
	Created int
	Updated int
	Deleted int

	// DNSChanges counts committed DNS record writes.
	DNSChanges int

	// Violation reports DNS records that were deliberately left
	// alone, if any. It does not mark the group as failed.
	Violation *OwnershipViolation

	// InSync reports that the remote rules already matched the
	// desired state and no ingress update was issued.
	InSync bool

	// DryRun marks a pass that planned changes without writing.
	DryRun bool

	// Err carries the failure that stopped this group, if any.
	Err error
}

// Failed reports whether the group's reconcile stopped on an error.
func (r TunnelResult) Failed() bool {
	return r.Err != nil
}

// Result aggregates the per-group outcomes of one reconcile run.
type Result struct {
	Tunnels []TunnelResult
}

// Failed reports whether any tunnel group failed. The process exit
// code is derived from this.
func (r *Result) Failed() bool {
	for _, t := range r.Tunnels {
		if t.Failed() {
			return true
		}
	}

	return false
}

// Failures returns the errors of every failed group.
func (r *Result) Failures() []error {
	var errs []error

	for _, t := range r.Tunnels {
		if t.Err != nil {
			errs = append(errs, t.Err)
		}
	}

	return errs
}
