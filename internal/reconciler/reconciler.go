// Package reconciler drives declared route state into Cloudflare: it
// builds the desired ingress rules per tunnel group, fetches the
// remote tunnel configuration, computes the diff and applies ingress
// and DNS changes in a safe order. Tunnel groups are isolated from
// each other; one group's failure never stops another group.
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cloudflare/cloudflare-go/v6/zero_trust"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/avskog/cloudflare-tunnel-sync/internal/cfapi"
	"github.com/avskog/cloudflare-tunnel-sync/internal/ingress"
	"github.com/avskog/cloudflare-tunnel-sync/internal/metrics"
	"github.com/avskog/cloudflare-tunnel-sync/internal/routes"
)

// maxIngressRules is the Cloudflare limit on ingress rules per tunnel
// configuration.
const maxIngressRules = 1000

// defaultConcurrency bounds how many tunnel groups reconcile at once.
const defaultConcurrency = 2

// Provider is the Cloudflare API surface the reconciler drives.
// *cfapi.Client implements it.
type Provider interface {
	TunnelConfiguration(
		ctx context.Context,
		tunnelID string,
	) ([]zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress, error)
	ReplaceTunnelConfiguration(
		ctx context.Context,
		tunnelID string,
		ingressRules []zero_trust.TunnelCloudflaredConfigurationUpdateParamsConfigIngress,
	) error
	DNSRecords(ctx context.Context) ([]cfapi.Record, error)
	CreateCNAME(ctx context.Context, hostname, target string) error
	UpdateCNAME(ctx context.Context, recordID, hostname, target string) error
	DeleteRecord(ctx context.Context, recordID string) error
}

// Config holds the settings for one reconcile run.
type Config struct {
	// Routes is the validated desired state.
	Routes *routes.Config

	// Provider executes the Cloudflare API calls.
	Provider Provider

	// ManageDNS enables DNS record management. When disabled the run
	// only replaces tunnel ingress configurations and never reads or
	// writes DNS records.
	ManageDNS bool

	// DryRun logs planned changes without writing anything.
	DryRun bool

	// Concurrency bounds how many tunnel groups reconcile in
	// parallel. Defaults to 2. Work within a group is always
	// sequential.
	Concurrency int

	// Metrics records reconcile outcomes. Defaults to a no-op
	// collector.
	Metrics metrics.Collector

	// Tracer creates spans around the run and each tunnel group.
	// Defaults to a no-op tracer.
	Tracer trace.Tracer
}

// Reconciler reconciles the declared routes of every tunnel group
// against Cloudflare.
type Reconciler struct {
	routes      *routes.Config
	provider    Provider
	manageDNS   bool
	dryRun      bool
	concurrency int
	metrics     metrics.Collector
	tracer      trace.Tracer
}

// New validates cfg and creates a Reconciler.
func New(cfg Config) (*Reconciler, error) {
	if cfg.Routes == nil {
		return nil, errors.New("routes config is required")
	}

	if cfg.Provider == nil {
		return nil, errors.New("provider is required")
	}

	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("reconciler")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &Reconciler{
		routes:      cfg.Routes,
		provider:    cfg.Provider,
		manageDNS:   cfg.ManageDNS,
		dryRun:      cfg.DryRun,
		concurrency: concurrency,
		metrics:     collector,
		tracer:      tracer,
	}, nil
}

// Run reconciles every tunnel group and returns the per-group
// outcomes. The returned error covers run-level failures only, such
// as the zone DNS listing; per-group failures are reported inside the
// Result.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	regions := r.routes.Regions()

	ctx, span := r.tracer.Start(ctx, "reconcile",
		trace.WithAttributes(
			attribute.Int("tunnel_groups", len(regions)),
			attribute.Int("routes", r.routes.RouteCount()),
			attribute.Bool("dry_run", r.dryRun),
		))
	defer span.End()

	zone, err := r.loadZoneState(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	slog.Info("starting reconcile",
		"tunnel_groups", len(regions),
		"routes", r.routes.RouteCount(),
		"manage_dns", r.manageDNS,
		"dry_run", r.dryRun,
	)

	results := make([]TunnelResult, len(regions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, region := range regions {
		i, region := i, region
		g.Go(func() error {
			results[i] = r.syncTunnel(gctx, region, zone)

			// Group failures are isolated; never abort the others.
			return nil
		})
	}

	_ = g.Wait()

	result := &Result{Tunnels: results}
	if result.Failed() {
		span.SetStatus(codes.Error, "one or more tunnel groups failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return result, nil
}

// loadZoneState fetches the zone's DNS records once per run. A nil
// state means DNS management is disabled.
func (r *Reconciler) loadZoneState(ctx context.Context) (*zoneState, error) {
	if !r.manageDNS {
		return nil, nil //nolint:nilnil // nil state is the documented "DNS disabled" marker
	}

	records, err := r.provider.DNSRecords(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list zone dns records")
	}

	return buildZoneState(records, r.routes), nil
}

// syncTunnel runs the fetch, diff and apply sequence for one tunnel
// group.
//
//nolint:funlen // the reconcile pass reads better as one sequence
func (r *Reconciler) syncTunnel(ctx context.Context, region string, zone *zoneState) TunnelResult {
	tun := r.routes.Tunnels[region]
	group := r.routes.Groups[region]

	ctx, span := r.tracer.Start(ctx, "reconcile.tunnel",
		trace.WithAttributes(
			attribute.String("region", region),
			attribute.String("tunnel_id", tun.ID),
		))
	defer span.End()

	logger := slog.Default().With("region", region, "tunnel_id", tun.ID)
	startTime := time.Now()

	result := TunnelResult{
		Region:   region,
		TunnelID: tun.ID,
		Desired:  len(group),
		DryRun:   r.dryRun,
	}

	fail := func(err error, errorType string) TunnelResult {
		result.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.metrics.RecordReconcileError(ctx, region, errorType)
		r.metrics.RecordReconcileDuration(ctx, region, "error", time.Since(startTime))
		logger.Error("tunnel group reconcile failed", "error", err)

		return result
	}

	desired := ingress.BuildRules(group)
	result.Submitted = len(desired)

	r.metrics.RecordDesiredRoutes(ctx, region, len(group))
	r.metrics.RecordIngressRules(ctx, region, len(desired))

	if len(desired) > maxIngressRules {
		limitErr := errors.Newf("ingress rules limit exceeded: %d rules (max %d)", len(desired), maxIngressRules)

		return fail(
			&ApplyError{Region: region, Op: "ingress configuration", Err: limitErr},
			metrics.ErrorTypeClientError,
		)
	}

	remote, err := r.fetchRemote(ctx, tun.ID)
	if err != nil {
		return fail(&FetchError{Region: region, Err: err}, metrics.ClassifyCloudflareError(err))
	}

	remoteRules := ingress.FromRemote(remote)

	diff := ingress.ComputeDiff(desired, remoteRules, r.managedSet(zone, remoteRules))

	result.Created = len(diff.ToCreate)
	result.Updated = len(diff.ToUpdate)
	result.Deleted = len(diff.ToDelete)
	result.InSync = diff.InSync()

	r.metrics.RecordDiffSize(ctx, region, metrics.ActionCreate, len(diff.ToCreate))
	r.metrics.RecordDiffSize(ctx, region, metrics.ActionUpdate, len(diff.ToUpdate))
	r.metrics.RecordDiffSize(ctx, region, metrics.ActionDelete, len(diff.ToDelete))
	r.metrics.RecordDiffSize(ctx, region, metrics.ActionUnmanaged, len(diff.Unmanaged))

	logger.Info("computed diff",
		"desired", len(group),
		"remote", len(remoteRules),
		"create", len(diff.ToCreate),
		"update", len(diff.ToUpdate),
		"delete", len(diff.ToDelete),
		"unmanaged", len(diff.Unmanaged),
	)

	var plan dnsPlan
	if zone != nil {
		plan = planDNS(tun, desired, diff.ToDelete, zone)
	}

	if len(diff.Unmanaged) > 0 || len(plan.conflicts) > 0 {
		result.Violation = &OwnershipViolation{
			Region:    region,
			Kept:      diff.Unmanaged,
			Conflicts: plan.conflicts,
		}

		logger.Warn("dns records not managed by this tool were left alone",
			"kept", diff.Unmanaged,
			"conflicts", plan.conflicts,
		)
	}

	if diff.InSync() && plan.empty() {
		logger.Info("tunnel group already in sync")
		r.metrics.RecordReconcileDuration(ctx, region, "success", time.Since(startTime))
		span.SetStatus(codes.Ok, "")

		return result
	}

	if r.dryRun {
		logPlannedChanges(logger, diff, plan)
		r.metrics.RecordReconcileDuration(ctx, region, "success", time.Since(startTime))
		span.SetStatus(codes.Ok, "")

		return result
	}

	if err := r.apply(ctx, logger, tun, desired, diff, plan, &result); err != nil {
		return fail(err, metrics.ClassifyCloudflareError(err))
	}

	r.metrics.RecordReconcileDuration(ctx, region, "success", time.Since(startTime))
	span.SetStatus(codes.Ok, "")

	logger.Info("tunnel group reconciled",
		"created", result.Created,
		"updated", result.Updated,
		"deleted", result.Deleted,
		"dns_changes", result.DNSChanges,
	)

	return result
}

// fetchRemote reads the tunnel's stored ingress configuration.
func (r *Reconciler) fetchRemote(
	ctx context.Context,
	tunnelID string,
) ([]zero_trust.TunnelCloudflaredConfigurationGetResponseConfigIngress, error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.fetch",
		trace.WithAttributes(attribute.String("tunnel_id", tunnelID)))
	defer span.End()

	remote, err := r.provider.TunnelConfiguration(ctx, tunnelID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return nil, err
	}

	span.SetStatus(codes.Ok, "")

	return remote, nil
}

// managedSet decides which remote hostnames may lose their DNS
// records. Without DNS management every removal is a plain ingress
// change, so nothing needs protecting and the whole remote set counts
// as managed.
func (r *Reconciler) managedSet(zone *zoneState, remote []ingress.Rule) ingress.ManagedSet {
	if zone != nil {
		return zone.managed
	}

	managed := make(ingress.ManagedSet, len(remote))

	for _, rule := range remote {
		if !ingress.IsCatchAll(rule) {
			managed[rule.Hostname] = struct{}{}
		}
	}

	return managed
}

// apply commits one tunnel group's changes: the full ingress rule
// list first, then DNS record creates and updates, then DNS deletions
// last so a hostname never resolves to a tunnel that no longer routes
// it.
func (r *Reconciler) apply(
	ctx context.Context,
	logger *slog.Logger,
	tun routes.Tunnel,
	desired []ingress.Rule,
	diff ingress.Diff,
	plan dnsPlan,
	result *TunnelResult,
) (err error) {
	ctx, span := r.tracer.Start(ctx, "reconcile.apply",
		trace.WithAttributes(attribute.String("tunnel_id", tun.ID)))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		span.End()
	}()

	if !diff.InSync() {
		err := r.provider.ReplaceTunnelConfiguration(ctx, tun.ID, ingress.UpdateParams(desired))
		if err != nil {
			return &ApplyError{Region: tun.Region, Op: "ingress configuration", Err: err}
		}

		logger.Info("replaced tunnel ingress configuration", "rules", len(desired))
	}

	for _, change := range plan.creates {
		if err := r.provider.CreateCNAME(ctx, change.hostname, plan.target); err != nil {
			return &ApplyError{Region: tun.Region, Op: "dns record create", Err: err}
		}

		result.DNSChanges++
		r.metrics.RecordDNSChange(ctx, tun.Region, metrics.ActionCreate)
		logger.Info("created dns record", "hostname", change.hostname, "target", plan.target)
	}

	for _, change := range plan.updates {
		if err := r.provider.UpdateCNAME(ctx, change.recordID, change.hostname, plan.target); err != nil {
			return &ApplyError{Region: tun.Region, Op: "dns record update", Err: err}
		}

		result.DNSChanges++
		r.metrics.RecordDNSChange(ctx, tun.Region, metrics.ActionUpdate)
		logger.Info("repointed dns record", "hostname", change.hostname, "target", plan.target)
	}

	for _, change := range plan.deletes {
		err := r.provider.DeleteRecord(ctx, change.recordID)
		if err != nil && !cfapi.IsNotFound(err) {
			return &ApplyError{Region: tun.Region, Op: "dns record delete", Err: err}
		}

		result.DNSChanges++
		r.metrics.RecordDNSChange(ctx, tun.Region, metrics.ActionDelete)
		logger.Info("deleted dns record", "hostname", change.hostname)
	}

	return nil
}

// logPlannedChanges prints what a wet run would do, one line per
// change.
func logPlannedChanges(logger *slog.Logger, diff ingress.Diff, plan dnsPlan) {
	for _, rule := range diff.ToCreate {
		logger.Info("dry run: would add ingress rule",
			"hostname", rule.Hostname, "service", rule.Service)
	}

	for _, change := range diff.ToUpdate {
		logger.Info("dry run: would update ingress rule",
			"hostname", change.New.Hostname, "from", change.Old.Service, "to", change.New.Service)
	}

	for _, hostname := range diff.ToDelete {
		logger.Info("dry run: would remove ingress rule", "hostname", hostname)
	}

	for _, change := range plan.creates {
		logger.Info("dry run: would create dns record",
			"hostname", change.hostname, "target", plan.target)
	}

	for _, change := range plan.updates {
		logger.Info("dry run: would repoint dns record",
			"hostname", change.hostname, "target", plan.target)
	}

	for _, change := range plan.deletes {
		logger.Info("dry run: would delete dns record", "hostname", change.hostname)
	}
}
