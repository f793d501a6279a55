package ingress_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/avskog/cloudflare-tunnel-sync/internal/ingress"
)

func TestRulesEqual(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ruleA    ingress.Rule
		ruleB    ingress.Rule
		expected bool
	}{
		{
			name:     "identical rules",
			ruleA:    ingress.Rule{Hostname: "app.example.com", Path: "/api", Service: "http://svc:8080"},
			ruleB:    ingress.Rule{Hostname: "app.example.com", Path: "/api", Service: "http://svc:8080"},
			expected: true,
		},
		{
			name:     "different hostname",
			ruleA:    ingress.Rule{Hostname: "app1.example.com", Path: "/api", Service: "http://svc:8080"},
			ruleB:    ingress.Rule{Hostname: "app2.example.com", Path: "/api", Service: "http://svc:8080"},
			expected: false,
		},
		{
			name:     "different path",
			ruleA:    ingress.Rule{Hostname: "app.example.com", Path: "/api", Service: "http://svc:8080"},
			ruleB:    ingress.Rule{Hostname: "app.example.com", Path: "/web", Service: "http://svc:8080"},
			expected: false,
		},
		{
			name:     "different service",
			ruleA:    ingress.Rule{Hostname: "app.example.com", Path: "/api", Service: "http://svc1:8080"},
			ruleB:    ingress.Rule{Hostname: "app.example.com", Path: "/api", Service: "http://svc2:8080"},
			expected: false,
		},
		{
			name:     "different origin TLS verification",
			ruleA:    ingress.Rule{Hostname: "app.example.com", Service: "https://svc:8443", NoTLSVerify: true},
			ruleB:    ingress.Rule{Hostname: "app.example.com", Service: "https://svc:8443", NoTLSVerify: false},
			expected: false,
		},
		{
			name:     "empty rules",
			ruleA:    ingress.Rule{},
			ruleB:    ingress.Rule{},
			expected: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := ingress.RulesEqual(testCase.ruleA, testCase.ruleB)
			if result != testCase.expected {
				t.Errorf("RulesEqual() = %v, want %v", result, testCase.expected)
			}
		})
	}
}

func TestIsCatchAll(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rule     ingress.Rule
		expected bool
	}{
		{
			name:     "catch-all rule (empty hostname)",
			rule:     ingress.Rule{Hostname: "", Service: "http_status:404"},
			expected: true,
		},
		{
			name:     "regular rule with hostname",
			rule:     ingress.Rule{Hostname: "app.example.com", Service: "http://svc:8080"},
			expected: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			result := ingress.IsCatchAll(testCase.rule)
			if result != testCase.expected {
				t.Errorf("IsCatchAll() = %v, want %v", result, testCase.expected)
			}
		})
	}
}

func TestComputeDiff(t *testing.T) {
	t.Parallel()

	managed := ingress.ManagedSet{
		"api.example.com": {},
		"old.example.com": {},
		"web.example.com": {},
	}

	tests := []struct {
		name     string
		desired  []ingress.Rule
		remote   []ingress.Rule
		managed  ingress.ManagedSet
		expected ingress.Diff
	}{
		{
			name: "empty remote, create all desired",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			remote:  nil,
			managed: managed,
			expected: ingress.Diff{
				ToCreate: []ingress.Rule{
					{Hostname: "api.example.com", Service: "http://svc-a:8080"},
				},
			},
		},
		{
			name:    "empty desired, delete managed remote",
			desired: nil,
			remote: []ingress.Rule{
				{Hostname: "old.example.com", Service: "http://svc-c:80"},
			},
			managed:  managed,
			expected: ingress.Diff{ToDelete: []string{"old.example.com"}},
		},
		{
			name: "no changes needed",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			remote: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			managed:  managed,
			expected: ingress.Diff{},
		},
		{
			name: "service target changed",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			remote: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:9090"},
			},
			managed: managed,
			expected: ingress.Diff{
				ToUpdate: []ingress.RuleChange{
					{
						Old: ingress.Rule{Hostname: "api.example.com", Service: "http://svc-a:9090"},
						New: ingress.Rule{Hostname: "api.example.com", Service: "http://svc-a:8080"},
					},
				},
			},
		},
		{
			name: "update and managed delete together",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			remote: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:9090"},
				{Hostname: "old.example.com", Service: "http://svc-c:80"},
			},
			managed: managed,
			expected: ingress.Diff{
				ToUpdate: []ingress.RuleChange{
					{
						Old: ingress.Rule{Hostname: "api.example.com", Service: "http://svc-a:9090"},
						New: ingress.Rule{Hostname: "api.example.com", Service: "http://svc-a:8080"},
					},
				},
				ToDelete: []string{"old.example.com"},
			},
		},
		{
			name: "unmanaged remote hostname is refused, not deleted",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
			},
			remote: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
				{Hostname: "manual.example.com", Service: "http://legacy:80"},
			},
			managed:  managed,
			expected: ingress.Diff{Unmanaged: []string{"manual.example.com"}},
		},
		{
			name: "catch-all ignored on both sides",
			desired: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
				{Service: "http_status:404"},
			},
			remote: []ingress.Rule{
				{Hostname: "api.example.com", Service: "http://svc-a:8080"},
				{Service: "http_status:404"},
			},
			managed:  managed,
			expected: ingress.Diff{},
		},
		{
			name: "origin TLS setting change is an update",
			desired: []ingress.Rule{
				{Hostname: "web.example.com", Service: "https://svc-b:8443", NoTLSVerify: true},
			},
			remote: []ingress.Rule{
				{Hostname: "web.example.com", Service: "https://svc-b:8443"},
			},
			managed: managed,
			expected: ingress.Diff{
				ToUpdate: []ingress.RuleChange{
					{
						Old: ingress.Rule{Hostname: "web.example.com", Service: "https://svc-b:8443"},
						New: ingress.Rule{Hostname: "web.example.com", Service: "https://svc-b:8443", NoTLSVerify: true},
					},
				},
			},
		},
		{
			name: "path change is an update",
			desired: []ingress.Rule{
				{Hostname: "web.example.com", Path: "/v2", Service: "http://svc-b:80"},
			},
			remote: []ingress.Rule{
				{Hostname: "web.example.com", Path: "/v1", Service: "http://svc-b:80"},
			},
			managed: managed,
			expected: ingress.Diff{
				ToUpdate: []ingress.RuleChange{
					{
						Old: ingress.Rule{Hostname: "web.example.com", Path: "/v1", Service: "http://svc-b:80"},
						New: ingress.Rule{Hostname: "web.example.com", Path: "/v2", Service: "http://svc-b:80"},
					},
				},
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			diff := ingress.ComputeDiff(testCase.desired, testCase.remote, testCase.managed)

			assert.Equal(t, testCase.expected, diff)
		})
	}
}

func TestComputeDiff_OwnershipSafety(t *testing.T) {
	t.Parallel()

	remote := []ingress.Rule{
		{Hostname: "a.example.com", Service: "http://a:80"},
		{Hostname: "b.example.com", Service: "http://b:80"},
		{Hostname: "c.example.com", Service: "http://c:80"},
	}

	diff := ingress.ComputeDiff(nil, remote, ingress.ManagedSet{})

	assert.Empty(t, diff.ToDelete, "nothing is deletable without a managed set")
	assert.Equal(t, []string{"a.example.com", "b.example.com", "c.example.com"}, diff.Unmanaged)
}

func TestComputeDiff_Idempotence(t *testing.T) {
	t.Parallel()

	desired := []ingress.Rule{
		{Hostname: "api.example.com", Path: "/api", Service: "http://svc-a:8080"},
		{Hostname: "web.example.com", Service: "http://svc-b:80"},
		{Service: "http_status:404"},
	}

	// Remote state after a successful apply is exactly the submitted list.
	diff := ingress.ComputeDiff(desired, desired, ingress.ManagedSet{"api.example.com": {}, "web.example.com": {}})

	assert.True(t, diff.Empty(), "reconciling converged state must produce an empty diff, got %+v", diff)
}
