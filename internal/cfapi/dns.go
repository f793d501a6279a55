package cfapi

import (
	"context"

	"github.com/cloudflare/cloudflare-go/v6"
	"github.com/cloudflare/cloudflare-go/v6/dns"
	"github.com/cockroachdb/errors"
)

// Record is the subset of a zone DNS record the reconciler acts on.
type Record struct {
	ID      string
	Name    string
	Type    string
	Content string
	Proxied bool
}

// IsCNAME reports whether the record is a CNAME.
func (r Record) IsCNAME() bool {
	return r.Type == "CNAME"
}

// DNSRecords lists every record in the bound zone.
func (c *Client) DNSRecords(ctx context.Context) ([]Record, error) {
	if c.zoneID == "" {
		return nil, errors.New("no zone bound, DNS operations unavailable")
	}

	var records []Record

	err := c.do(ctx, "list", "dns_records", func() error {
		records = records[:0]

		iter := c.cf.DNS.Records.ListAutoPaging(ctx, dns.RecordListParams{
			ZoneID: cloudflare.F(c.zoneID),
		})

		for iter.Next() {
			rec := iter.Current()
			records = append(records, Record{
				ID:      rec.ID,
				Name:    rec.Name,
				Type:    string(rec.Type),
				Content: rec.Content,
				Proxied: rec.Proxied,
			})
		}

		return iter.Err()
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list DNS records for zone %s", c.zoneID)
	}

	return records, nil
}

func (c *Client) cnameParam(hostname, target string) dns.CNAMERecordParam {
	return dns.CNAMERecordParam{
		Name:    cloudflare.F(hostname),
		Type:    cloudflare.F(dns.CNAMERecordTypeCNAME),
		Content: cloudflare.F(target),
		Proxied: cloudflare.F(true),
		// TTL 1 means "automatic" for proxied records.
		TTL: cloudflare.F(dns.TTL(1)),
	}
}

// CreateCNAME creates a proxied CNAME record pointing hostname at target.
func (c *Client) CreateCNAME(ctx context.Context, hostname, target string) error {
	err := c.do(ctx, "create", "dns_records", func() error {
		_, err := c.cf.DNS.Records.New(ctx, dns.RecordNewParams{
			ZoneID: cloudflare.F(c.zoneID),
			Body:   c.cnameParam(hostname, target),
		})

		return err
	})

	return errors.Wrapf(err, "failed to create CNAME %s -> %s", hostname, target)
}

// UpdateCNAME repoints an existing record at target.
func (c *Client) UpdateCNAME(ctx context.Context, recordID, hostname, target string) error {
	err := c.do(ctx, "update", "dns_records", func() error {
		_, err := c.cf.DNS.Records.Update(ctx, recordID, dns.RecordUpdateParams{
			ZoneID: cloudflare.F(c.zoneID),
			Body:   c.cnameParam(hostname, target),
		})

		return err
	})

	return errors.Wrapf(err, "failed to update CNAME %s -> %s", hostname, target)
}

// DeleteRecord removes a record from the bound zone.
func (c *Client) DeleteRecord(ctx context.Context, recordID string) error {
	err := c.do(ctx, "delete", "dns_records", func() error {
		_, err := c.cf.DNS.Records.Delete(ctx, recordID, dns.RecordDeleteParams{
			ZoneID: cloudflare.F(c.zoneID),
		})

		return err
	})

	return errors.Wrapf(err, "failed to delete DNS record %s", recordID)
}
