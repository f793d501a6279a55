// Package cfapi wraps the Cloudflare API surface the reconciler drives:
// tunnel ingress configuration, DNS records, and account/zone discovery.
// Every call is instrumented and passes through the retry policy.
package cfapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cloudflare/cloudflare-go/v6/accounts"
	"github.com/cloudflare/cloudflare-go/v6/option"
	"github.com/cloudflare/cloudflare-go/v6/zones"
	"github.com/cockroachdb/errors"

	"github.com/avskog/cloudflare-tunnel-sync/internal/metrics"
)

// Options configures a Client.
type Options struct {
	// APIToken authenticates against the Cloudflare API. Required.
	APIToken string

	// AccountID scopes tunnel operations. Auto-detected from the token
	// when empty, which only works for single-account tokens.
	AccountID string

	// ZoneID scopes DNS operations. When empty and ZoneName is set, the
	// zone is looked up by name. When both are empty the client stays
	// unbound to a zone and DNS operations are unavailable.
	ZoneID   string
	ZoneName string

	// Retry overrides the default retry policy when MaxAttempts > 0.
	Retry RetryPolicy

	// Metrics records API call durations and errors. Defaults to a
	// no-op collector.
	Metrics metrics.Collector
}

// Client is a bound Cloudflare API client: account and zone are
// resolved once at construction so per-tunnel work never repeats the
// discovery calls.
type Client struct {
	cf      *cloudflare.Client
	metrics metrics.Collector
	retry   RetryPolicy

	accountID string
	zoneID    string
}

// New creates a Client and resolves its account and zone bindings.
// sdkOpts are passed through to the underlying SDK client.
func New(ctx context.Context, opts Options, sdkOpts ...option.RequestOption) (*Client, error) {
	if opts.APIToken == "" {
		return nil, errors.New("api token is required")
	}

	collector := opts.Metrics
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	// The SDK retries internally by default; zero it out so the policy
	// here is the only source of retry behavior.
	clientOpts := append([]option.RequestOption{
		option.WithAPIToken(opts.APIToken),
		option.WithMaxRetries(0),
	}, sdkOpts...)

	c := &Client{
		cf:      cloudflare.NewClient(clientOpts...),
		metrics: collector,
		retry:   retry,
	}

	accountID, err := c.resolveAccountID(ctx, opts.AccountID)
	if err != nil {
		return nil, err
	}
	c.accountID = accountID

	zoneID, err := c.resolveZoneID(ctx, opts.ZoneID, opts.ZoneName)
	if err != nil {
		return nil, err
	}
	c.zoneID = zoneID

	return c, nil
}

// AccountID returns the resolved account binding.
func (c *Client) AccountID() string {
	return c.accountID
}

// ZoneID returns the resolved zone binding, empty when no zone was
// configured.
func (c *Client) ZoneID() string {
	return c.zoneID
}

// do runs one logical API call through the retry policy and records
// its outcome.
func (c *Client) do(ctx context.Context, method, resource string, fn func() error) error {
	startTime := time.Now()

	err := c.retry.Do(ctx, fn, func(attempt int, delay time.Duration, attemptErr error) {
		c.metrics.RecordAPIRetry(ctx, method, resource)
		slog.Debug("retrying cloudflare api call",
			"method", method,
			"resource", resource,
			"attempt", attempt,
			"backoff", delay,
			"error", attemptErr,
		)
	})

	status := "success"
	if err != nil {
		status = "error"

		c.metrics.RecordAPIError(ctx, method, metrics.ClassifyCloudflareError(err))
	}

	c.metrics.RecordAPICall(ctx, method, resource, status, time.Since(startTime))

	return err
}

//nolint:wrapcheck // errors.Newf creates new errors
func (c *Client) resolveAccountID(ctx context.Context, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	var accountList []accounts.Account

	err := c.do(ctx, "list", "accounts", func() error {
		result, err := c.cf.Accounts.List(ctx, accounts.AccountListParams{})
		if err != nil {
			return err
		}

		accountList = result.Result

		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to list accounts")
	}

	if len(accountList) == 0 {
		return "", errors.New("no accounts found for this API token")
	}

	if len(accountList) > 1 {
		return "", errors.Newf("multiple accounts found (%d), please specify an account ID", len(accountList))
	}

	return accountList[0].ID, nil
}

//nolint:wrapcheck // errors.Newf creates new errors
func (c *Client) resolveZoneID(ctx context.Context, zoneID, zoneName string) (string, error) {
	if zoneID != "" {
		return zoneID, nil
	}

	if zoneName == "" {
		return "", nil
	}

	var zoneList []zones.Zone

	err := c.do(ctx, "list", "zones", func() error {
		result, err := c.cf.Zones.List(ctx, zones.ZoneListParams{
			Name: cloudflare.F(zoneName),
		})
		if err != nil {
			return err
		}

		zoneList = result.Result

		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to look up zone %s", zoneName)
	}

	if len(zoneList) == 0 {
		return "", errors.Newf("zone %s not found for this API token", zoneName)
	}

	return zoneList[0].ID, nil
}
