package ingress

import (
	"sort"

	"github.com/avskog/cloudflare-tunnel-sync/internal/routes"
)

// BuildRules renders one region's routes into the ordered ingress rule
// list the tunnel evaluates top-down.
//
// Rules are sorted by:
//  1. Specificity (routes with a path prefix before routes without one,
//     so a prefix-less rule cannot shadow a more specific one)
//  2. Hostname (alphabetically)
//  3. Path length (longer paths first), then path lexical order
//
// The ordering depends only on the rule contents, never on input order,
// so rebuilding from the same routes yields an identical list. A
// catch-all rule returning HTTP 404 is always appended as the last rule.
func BuildRules(group []routes.Route) []Rule {
	rules := make([]Rule, 0, len(group)+1)

	for _, route := range group {
		rule := Rule{
			Hostname: route.Hostname,
			Path:     route.Path,
			Service:  route.Service,
		}

		if route.OriginRequest != nil {
			rule.NoTLSVerify = route.OriginRequest.NoTLSVerify
		}

		rules = append(rules, rule)
	}

	sort.Slice(rules, func(idx, jdx int) bool {
		iHasPath := rules[idx].Path != ""
		jHasPath := rules[jdx].Path != ""

		if iHasPath != jHasPath {
			return iHasPath
		}

		if rules[idx].Hostname != rules[jdx].Hostname {
			return rules[idx].Hostname < rules[jdx].Hostname
		}

		if len(rules[idx].Path) != len(rules[jdx].Path) {
			return len(rules[idx].Path) > len(rules[jdx].Path)
		}

		return rules[idx].Path < rules[jdx].Path
	})

	rules = append(rules, Rule{Service: CatchAllService})

	return rules
}
