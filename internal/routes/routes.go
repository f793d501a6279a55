// Package routes loads and validates the declarative routing file that
// drives tunnel reconciliation.
//
// The file maps hostnames to backend services, one route per entry, and
// declares the regional tunnels those routes are spread across:
//
//	version: "1"
//	tunnels:
//	  us: { tunnelID: 6ff42ae2-765d-4ad1-a9d9-ae81f1815b4d }
//	  eu: { tunnelID: 9a0d23c1-14a6-4f86-9c9d-3f8a60b0a5c2 }
//	preserve:
//	  - legacy.example.com
//	routes:
//	  - hostname: api.example.com
//	    service: http://svc-a:8080
//	    region: us
//	    path: /api
//
// Parsing is pure: no provider calls happen here, and a file that fails
// validation never reaches the apply engine.
package routes

import (
	"bytes"
	"os"
	"sort"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// SupportedSchema is the schema version constraint this binary accepts.
// The routing file's version field must satisfy it.
const SupportedSchema = "^1"

// OriginRequest carries per-route origin connection options that are
// passed through to the tunnel ingress rule.
type OriginRequest struct {
	NoTLSVerify bool `yaml:"noTLSVerify"`
}

// Route is one desired hostname -> service mapping.
type Route struct {
	Hostname      string         `yaml:"hostname"`
	Service       string         `yaml:"service"`
	Region        string         `yaml:"region"`
	Path          string         `yaml:"path,omitempty"`
	OriginRequest *OriginRequest `yaml:"originRequest,omitempty"`
}

// Tunnel identifies one regional tunnel connector.
type Tunnel struct {
	// Region is the tag routes use to select this tunnel.
	Region string

	// ID is the Cloudflare tunnel UUID.
	ID string
}

// Domain returns the CNAME target hostnames must point at to be routed
// through this tunnel.
func (t Tunnel) Domain() string {
	return t.ID + ".cfargotunnel.com"
}

// Config is the validated in-memory form of a routing file.
type Config struct {
	// Version is the parsed schema version.
	Version *semver.Version

	// Tunnels maps each region tag to its tunnel. The key set is the
	// fixed enumerated set of known regions for this run.
	Tunnels map[string]Tunnel

	// Preserve holds hostnames this tool must never create, modify, or
	// delete, even if a remote record looks managed.
	Preserve map[string]struct{}

	// Groups holds routes per region tag, in file order. Every route
	// has a normalized service URL (scheme://host:port).
	Groups map[string][]Route
}

// Regions returns the configured region tags in lexical order, so
// every run processes and reports tunnel groups in the same order.
func (c *Config) Regions() []string {
	regions := make([]string, 0, len(c.Tunnels))
	for region := range c.Tunnels {
		regions = append(regions, region)
	}

	sort.Strings(regions)

	return regions
}

// RouteCount returns the total number of routes across all regions.
func (c *Config) RouteCount() int {
	n := 0
	for _, group := range c.Groups {
		n += len(group)
	}

	return n
}

// file is the raw YAML shape before validation.
type file struct {
	Version  string                `yaml:"version"`
	Tunnels  map[string]fileTunnel `yaml:"tunnels"`
	Preserve []string              `yaml:"preserve,omitempty"`
	Routes   []Route               `yaml:"routes"`
}

type fileTunnel struct {
	TunnelID string `yaml:"tunnelID"`
}

// Load reads and validates the routing file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read routing file %s", path)
	}

	return Parse(data)
}

// Parse decodes and validates raw routing file contents. Unknown fields
// are rejected so typos surface as errors instead of silently dropped
// configuration.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		return nil, errors.Wrap(err, "failed to decode routing file")
	}

	return validate(&f)
}
