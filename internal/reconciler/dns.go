package reconciler

import (
	"sort"
	"strings"

	"github.com/avskog/cloudflare-tunnel-sync/internal/cfapi"
	"github.com/avskog/cloudflare-tunnel-sync/internal/ingress"
	"github.com/avskog/cloudflare-tunnel-sync/internal/routes"
)

// tunnelDomainSuffix marks CNAME targets produced by Cloudflare tunnel
// tooling. Records pointing anywhere else are never touched.
const tunnelDomainSuffix = ".cfargotunnel.com"

// zoneState is a read-only snapshot of the zone's DNS records, indexed
// once per run and shared by the per-group reconcile passes.
type zoneState struct {
	// records maps record name to record. When a name carries several
	// records the CNAME wins, since that is the record a tunnel
	// hostname would collide with.
	records map[string]cfapi.Record

	// managed holds hostnames whose CNAME points at a configured
	// tunnel and that are not on the preserve list. Only these may be
	// deleted.
	managed ingress.ManagedSet

	// desired holds every routed hostname across all regions. A
	// hostname leaving one tunnel group may still be claimed by
	// another; its record is that group's to repoint, never this
	// group's to delete.
	desired map[string]struct{}
}

func buildZoneState(records []cfapi.Record, cfg *routes.Config) *zoneState {
	domains := make(map[string]struct{}, len(cfg.Tunnels))
	for _, tun := range cfg.Tunnels {
		domains[tun.Domain()] = struct{}{}
	}

	state := &zoneState{
		records: make(map[string]cfapi.Record, len(records)),
		managed: make(ingress.ManagedSet),
		desired: make(map[string]struct{}, len(cfg.Groups)),
	}

	for _, group := range cfg.Groups {
		for _, route := range group {
			state.desired[route.Hostname] = struct{}{}
		}
	}

	for _, rec := range records {
		if existing, ok := state.records[rec.Name]; !ok || (!existing.IsCNAME() && rec.IsCNAME()) {
			state.records[rec.Name] = rec
		}

		if !rec.IsCNAME() {
			continue
		}

		if _, configured := domains[rec.Content]; !configured {
			continue
		}

		if _, preserved := cfg.Preserve[rec.Name]; preserved {
			continue
		}

		state.managed[rec.Name] = struct{}{}
	}

	return state
}

// dnsChange is one pending DNS record operation.
type dnsChange struct {
	hostname string
	recordID string
}

// dnsPlan lists the DNS operations one tunnel group needs, in apply
// order: creates and updates right after the ingress update, deletes
// last.
type dnsPlan struct {
	target    string
	creates   []dnsChange
	updates   []dnsChange
	deletes   []dnsChange
	conflicts []string
}

func (p dnsPlan) empty() bool {
	return len(p.creates) == 0 && len(p.updates) == 0 && len(p.deletes) == 0
}

// planDNS decides which DNS records one tunnel group has to touch.
// Every desired hostname gets a proxied CNAME to the tunnel domain.
// Hostnames leaving the tunnel lose theirs only when the managed set
// proves this tool created them. Existing records that belong to
// something else are reported as conflicts and left alone.
func planDNS(tun routes.Tunnel, desired []ingress.Rule, toDelete []string, zone *zoneState) dnsPlan {
	plan := dnsPlan{target: tun.Domain()}

	for _, rule := range desired {
		if ingress.IsCatchAll(rule) {
			continue
		}

		rec, ok := zone.records[rule.Hostname]

		switch {
		case !ok:
			plan.creates = append(plan.creates, dnsChange{hostname: rule.Hostname})
		case rec.IsCNAME() && rec.Content == plan.target:
			// Already pointing at this tunnel.
		case rec.IsCNAME() && strings.HasSuffix(rec.Content, tunnelDomainSuffix):
			plan.updates = append(plan.updates, dnsChange{hostname: rule.Hostname, recordID: rec.ID})
		default:
			plan.conflicts = append(plan.conflicts, rule.Hostname)
		}
	}

	for _, hostname := range toDelete {
		// A hostname that migrated to another region left this tunnel's
		// ingress but is still desired globally; the gaining region owns
		// its record now.
		if _, stillDesired := zone.desired[hostname]; stillDesired {
			continue
		}

		if rec, ok := zone.records[hostname]; ok {
			plan.deletes = append(plan.deletes, dnsChange{hostname: hostname, recordID: rec.ID})
		}
	}

	sort.Strings(plan.conflicts)

	return plan
}
