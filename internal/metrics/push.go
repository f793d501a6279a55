package metrics

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// PushToGateway delivers every metric gathered from reg to a Prometheus
// Pushgateway, grouped by job. The tool runs to completion and exits,
// so there is no endpoint to scrape; pushing is the only delivery path.
func PushToGateway(ctx context.Context, gatewayURL, job string, reg prometheus.Gatherer) error {
	err := push.New(gatewayURL, job).Gatherer(reg).PushContext(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", gatewayURL)
	}

	return nil
}
