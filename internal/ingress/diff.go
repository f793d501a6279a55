package ingress

import "sort"

// RuleChange pairs the stored and desired versions of a rule whose
// target changed while the hostname stayed the same.
type RuleChange struct {
	Old Rule
	New Rule
}

// ManagedSet is the allow-list of remote hostnames this tool owns and
// is therefore permitted to delete.
type ManagedSet map[string]struct{}

// Contains reports whether hostname belongs to the managed set.
func (m ManagedSet) Contains(hostname string) bool {
	_, ok := m[hostname]

	return ok
}

// Diff describes how remote state must change to converge on desired
// state for one tunnel. The ingress update itself is a full replace;
// the diff drives DNS record changes and the audit log.
type Diff struct {
	// ToCreate holds desired rules with no remote counterpart.
	ToCreate []Rule

	// ToUpdate holds hostnames present on both sides whose target
	// changed.
	ToUpdate []RuleChange

	// ToDelete holds managed hostnames present remotely but absent
	// from desired state.
	ToDelete []string

	// Unmanaged holds deletion candidates refused by the ownership
	// gate. They are reported, never applied.
	Unmanaged []string
}

// Empty returns true when remote state already matches desired state
// and no deletions were refused.
func (d Diff) Empty() bool {
	return len(d.ToCreate) == 0 &&
		len(d.ToUpdate) == 0 &&
		len(d.ToDelete) == 0 &&
		len(d.Unmanaged) == 0
}

// InSync returns true when no API call is needed to converge.
func (d Diff) InSync() bool {
	return len(d.ToCreate) == 0 && len(d.ToUpdate) == 0 && len(d.ToDelete) == 0
}

// ComputeDiff compares desired and remote rules for one tunnel, keyed
// by hostname. Catch-all rules carry no hostname and are excluded from
// comparison on both sides.
//
// A hostname only in desired goes to ToCreate; on both sides with a
// different target to ToUpdate; only in remote to ToDelete, but only
// if the managed set recognizes it as ours. Deletion candidates outside
// the managed set go to Unmanaged and must never be applied.
func ComputeDiff(desired, remote []Rule, managed ManagedSet) Diff {
	desiredByHost := make(map[string]Rule, len(desired))

	for _, rule := range desired {
		if IsCatchAll(rule) {
			continue
		}

		desiredByHost[rule.Hostname] = rule
	}

	remoteByHost := make(map[string]Rule, len(remote))

	for _, rule := range remote {
		if IsCatchAll(rule) {
			continue
		}

		remoteByHost[rule.Hostname] = rule
	}

	var diff Diff

	for hostname, desiredRule := range desiredByHost {
		remoteRule, ok := remoteByHost[hostname]
		if !ok {
			diff.ToCreate = append(diff.ToCreate, desiredRule)

			continue
		}

		if !RulesEqual(desiredRule, remoteRule) {
			diff.ToUpdate = append(diff.ToUpdate, RuleChange{Old: remoteRule, New: desiredRule})
		}
	}

	for hostname := range remoteByHost {
		if _, ok := desiredByHost[hostname]; ok {
			continue
		}

		if managed.Contains(hostname) {
			diff.ToDelete = append(diff.ToDelete, hostname)
		} else {
			diff.Unmanaged = append(diff.Unmanaged, hostname)
		}
	}

	// Map iteration order is random; sort so logs and tests are stable.
	sort.Slice(diff.ToCreate, func(i, j int) bool { return diff.ToCreate[i].Hostname < diff.ToCreate[j].Hostname })
	sort.Slice(diff.ToUpdate, func(i, j int) bool { return diff.ToUpdate[i].New.Hostname < diff.ToUpdate[j].New.Hostname })
	sort.Strings(diff.ToDelete)
	sort.Strings(diff.Unmanaged)

	return diff
}
