// Package ingress renders validated routes into Cloudflare Tunnel
// ingress configuration and diffs it against the tunnel's stored state.
//
// # Overview
//
// BuildRules converts one region's routes into the ordered rule list
// the tunnel connector evaluates top-down. ComputeDiff then compares
// desired rules against the stored configuration, keyed by hostname,
// to decide which DNS records need creating, updating, or deleting.
//
// # Rule Ordering
//
// The connector matches top-down, so ordering is part of correctness:
// routes with a path prefix sort before routes without one, ties break
// by hostname, then longer paths first. The order is a pure function of
// the rule contents, which keeps repeated runs byte-identical.
//
// # Catch-All Rule
//
// A catch-all rule returning HTTP 404 is always appended as the last
// rule, as required by Cloudflare Tunnel configuration. Catch-all rules
// carry no hostname and are excluded from diffing.
//
// # Ownership
//
// Deletions pass through a managed-set gate: a remote hostname is only
// deletable if its DNS record provably points at a tunnel this tool
// configures. Everything else is reported as unmanaged and left alone.
package ingress
