package ingress

import (
	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cloudflare/cloudflare-go/v6/zero_trust"
)

// CatchAllService is the Cloudflare Tunnel service that returns HTTP 404.
// It is always added as the last rule in the ingress configuration.
const CatchAllService = "http_status:404"

// Rule is the provider-neutral form of one ingress rule, used for
// building, comparison, and diffing.
type Rule struct {
	Hostname    string
	Path        string
	Service     string
	NoTLSVerify bool
}

// RulesEqual compares two rules for equality.
func RulesEqual(a, b Rule) bool {
	return a.Hostname == b.Hostname &&
		a.Path == b.Path &&
		a.Service == b.Service &&
		a.NoTLSVerify == b.NoTLSVerify
}

// IsCatchAll returns true if the rule is a catch-all rule (no hostname).
func IsCatchAll(r Rule) bool {
	return r.Hostname == ""
}

// RuleFromGet converts a get response ingress rule to a Rule for comparison.
func RuleFromGet(r *zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress) Rule {
	return Rule{
		Hostname:    r.Hostname,
		Path:        r.Path,
		Service:     r.Service,
		NoTLSVerify: r.OriginRequest.NoTLSVerify,
	}
}

// FromRemote converts a tunnel's stored ingress configuration into Rules.
func FromRemote(remote []zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress) []Rule {
	rules := make([]Rule, 0, len(remote))
	for idx := range remote {
		rules = append(rules, RuleFromGet(&remote[idx]))
	}

	return rules
}

// UpdateParams converts Rules into the full-replace update payload. The
// provider has no incremental ingress API: the complete ordered list is
// submitted every time.
func UpdateParams(rules []Rule) []zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngress {
	params := make([]zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngress, 0, len(rules))

	for _, r := range rules {
		param := zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngress{
			Service: cloudflare.F(r.Service),
		}

		if r.Hostname != "" {
			param.Hostname = cloudflare.F(r.Hostname)
		}

		if r.Path != "" {
			param.Path = cloudflare.F(r.Path)
		}

		if r.NoTLSVerify {
			param.OriginRequest = cloudflare.F(zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngressOriginRequest{
				NoTLSVerify: cloudflare.F(true),
			})
		}

		params = append(params, param)
	}

	return params
}
