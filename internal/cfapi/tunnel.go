package cfapi

import (
	"context"

	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cloudflare/cloudflare-go/v6/zero_trust"
	"github.com/cockroachdb/errors"
)

// TunnelConfiguration fetches the tunnel's stored ingress rule list.
// A tunnel that has never been configured yields an empty list rather
// than an error, so first-time runs converge like any other.
func (c *Client) TunnelConfiguration(
	ctx context.Context,
	tunnelID string,
) ([]zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress, error) {
	var rules []zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress

	err := c.do(ctx, "get", "tunnel_config", func() error {
		resp, err := c.cf.ZeroTrust.Tunnels.Cloudflared.Configurations.Get(
			ctx,
			tunnelID,
			zero_trust.TunnelCloudflaredConfigurationGetParams{
				AccountID: cloudflare.String(c.accountID),
			},
		)
		if err != nil {
			if IsNotFound(err) {
				rules = nil

				return nil
			}

			return err
		}

		rules = resp.Config.Ingress

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get configuration for tunnel %s", tunnelID)
	}

	return rules, nil
}

// ReplaceTunnelConfiguration submits the complete ordered ingress rule
// list for the tunnel. The provider has no incremental update: the
// stored configuration becomes exactly this list.
func (c *Client) ReplaceTunnelConfiguration(
	ctx context.Context,
	tunnelID string,
	ingressRules []zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngress,
) error {
	params := zero_trust.TunnelCloudflaredConfigurationUpdateParams{
		AccountID: cloudflare.String(c.accountID),
		Config: cloudflare.F(zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfig{
			Ingress: cloudflare.F(ingressRules),
		}),
	}

	err := c.do(ctx, "update", "tunnel_config", func() error {
		_, err := c.cf.ZeroTrust.Tunnels.Cloudflared.Configurations.Update(ctx, tunnelID, params)

		return err
	})

	return errors.Wrapf(err, "failed to replace configuration for tunnel %s", tunnelID)
}
