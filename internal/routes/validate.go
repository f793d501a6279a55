package routes

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ValidationError reports a single invalid field in the routing file.
// It is returned before any provider call is made.
type ValidationError struct {
	// Field locates the offending entry, e.g. "routes[3].hostname".
	Field string

	// Value is the rejected value, if printable.
	Value string

	// Reason explains what the field must look like.
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}

	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// hostnamePattern matches RFC 1123 DNS subdomains, the same shape the
// Gateway API enforces on Hostname fields. Wildcards are not routable
// through a tunnel ingress rule, so they are rejected.
var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?(\.[a-z0-9]([-a-z0-9]*[a-z0-9])?)*$`)

const (
	maxHostnameLength = 253
	maxLabelLength    = 63
)

func validHostname(hostname string) bool {
	if hostname == "" || len(hostname) > maxHostnameLength {
		return false
	}

	if !hostnamePattern.MatchString(hostname) {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) > maxLabelLength {
			return false
		}
	}

	return true
}

// normalizeService parses a route's service value and returns it in
// canonical scheme://host:port form. The scheme defaults to http when
// omitted; host and port are mandatory. The backend name is treated as
// opaque: it is checked for shape, never resolved.
func normalizeService(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("service is required")
	}

	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "not a valid URL")
	}

	switch u.Scheme {
	case "http", "https":
	default:
		return "", errors.Newf("unsupported scheme %q, expected http or https", u.Scheme)
	}

	if u.Hostname() == "" {
		return "", errors.New("missing host")
	}

	if u.Port() == "" {
		return "", errors.New("missing port")
	}

	if u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", errors.New("must not carry a path, query, or fragment")
	}

	return fmt.Sprintf("%s://%s:%s", u.Scheme, u.Hostname(), u.Port()), nil
}

// validate applies every structural rule to the decoded file and builds
// the Config. The first violation wins; nothing partial escapes.
func validate(f *file) (*Config, error) {
	version, err := semver.NewVersion(f.Version)
	if err != nil {
		return nil, &ValidationError{
			Field:  "version",
			Value:  f.Version,
			Reason: "not a semantic version",
		}
	}

	supported, err := semver.NewConstraint(SupportedSchema)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse schema constraint")
	}

	if !supported.Check(version) {
		return nil, &ValidationError{
			Field:  "version",
			Value:  f.Version,
			Reason: fmt.Sprintf("schema version must satisfy %s", SupportedSchema),
		}
	}

	if len(f.Tunnels) == 0 {
		return nil, &ValidationError{
			Field:  "tunnels",
			Reason: "at least one region must be configured",
		}
	}

	tunnels := make(map[string]Tunnel, len(f.Tunnels))
	for region, t := range f.Tunnels {
		if region == "" {
			return nil, &ValidationError{
				Field:  "tunnels",
				Reason: "region tag must not be empty",
			}
		}

		id, err := uuid.Parse(t.TunnelID)
		if err != nil {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("tunnels.%s.tunnelID", region),
				Value:  t.TunnelID,
				Reason: "not a tunnel UUID",
			}
		}

		tunnels[region] = Tunnel{Region: region, ID: id.String()}
	}

	preserve := make(map[string]struct{}, len(f.Preserve))
	for i, hostname := range f.Preserve {
		if !validHostname(hostname) {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("preserve[%d]", i),
				Value:  hostname,
				Reason: "not a valid DNS hostname",
			}
		}

		preserve[hostname] = struct{}{}
	}

	if len(f.Routes) == 0 {
		return nil, &ValidationError{
			Field:  "routes",
			Reason: "at least one route must be declared",
		}
	}

	groups := make(map[string][]Route, len(tunnels))
	seen := make(map[string]int, len(f.Routes))

	for i, route := range f.Routes {
		if !validHostname(route.Hostname) {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].hostname", i),
				Value:  route.Hostname,
				Reason: "not a valid DNS hostname",
			}
		}

		if prev, ok := seen[route.Hostname]; ok {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].hostname", i),
				Value:  route.Hostname,
				Reason: fmt.Sprintf("duplicate hostname, already declared at routes[%d]", prev),
			}
		}
		seen[route.Hostname] = i

		if _, ok := preserve[route.Hostname]; ok {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].hostname", i),
				Value:  route.Hostname,
				Reason: "hostname is on the preserve list and cannot be routed",
			}
		}

		service, err := normalizeService(route.Service)
		if err != nil {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].service", i),
				Value:  route.Service,
				Reason: err.Error(),
			}
		}
		route.Service = service

		if _, ok := tunnels[route.Region]; !ok {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].region", i),
				Value:  route.Region,
				Reason: "region has no tunnel configured",
			}
		}

		if route.Path != "" && !strings.HasPrefix(route.Path, "/") {
			return nil, &ValidationError{
				Field:  fmt.Sprintf("routes[%d].path", i),
				Value:  route.Path,
				Reason: "path prefix must start with /",
			}
		}

		groups[route.Region] = append(groups[route.Region], route)
	}

	return &Config{
		Version:  version,
		Tunnels:  tunnels,
		Preserve: preserve,
		Groups:   groups,
	}, nil
}
