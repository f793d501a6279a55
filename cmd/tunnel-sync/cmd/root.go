package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/avskog/cloudflare-tunnel-sync/internal/cfapi"
	"github.com/avskog/cloudflare-tunnel-sync/internal/metrics"
	"github.com/avskog/cloudflare-tunnel-sync/internal/reconciler"
	"github.com/avskog/cloudflare-tunnel-sync/internal/routes"
)

//nolint:gochecknoglobals // set by SetVersion from main
var (
	version = "development"
	gitsha  = "development"
)

func SetVersion(ver, sha string) {
	version = ver
	gitsha = sha
}

//nolint:gochecknoglobals // cobra command pattern
var rootCmd = &cobra.Command{
	Use:   "tunnel-sync",
	Short: "Reconcile declared routes against Cloudflare Tunnel",
	Long: `tunnel-sync reads a declarative routing file, compares it against the
ingress configuration of each Cloudflare tunnel it declares, and applies
the difference: ingress rules are replaced as one ordered list and DNS
CNAME records are created, repointed or deleted to match.

The run is a single reconcile pass. It exits 0 only when every tunnel
group converged.`,
	RunE:          runSync,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	rootCmd.Flags().String("config", "routes.yaml", "Path to the routing file")
	rootCmd.Flags().String("api-token", "", "Cloudflare API token (or use CF_API_TOKEN env var)")
	rootCmd.Flags().String("account-id", "", "Cloudflare account ID (auto-detected for single-account tokens)")
	rootCmd.Flags().String("zone-id", "", "Cloudflare zone ID for DNS records")
	rootCmd.Flags().String("zone-name", "", "Cloudflare zone name, resolved to an ID when zone-id is unset")
	rootCmd.Flags().Bool("manage-dns", true, "Create, repoint and delete DNS records for tunnel hostnames")
	rootCmd.Flags().Bool("dry-run", false, "Log planned changes without applying them")
	rootCmd.Flags().Int("concurrency", 2, "How many tunnel groups to reconcile in parallel")
	rootCmd.Flags().String("pushgateway-url", "", "Push run metrics to this Prometheus Pushgateway")

	_ = viper.BindPFlags(rootCmd.Flags())
	_ = viper.BindPFlags(rootCmd.PersistentFlags())
}

func initConfig() {
	viper.SetEnvPrefix("CF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("config", "routes.yaml")
	viper.SetDefault("manage-dns", true)
	viper.SetDefault("concurrency", 2)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-format", "json")
}

// Execute runs the root command. Cobra's own error printing is
// silenced, so the failure that decides the exit code is logged here:
// it is the only reporting path a batch invocation has.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("tunnel-sync failed", "error", err)

		return errors.Wrap(err, "command execution failed")
	}

	return nil
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo

	switch viper.GetString("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if viper.GetString("log-format") == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

//nolint:noinlineerr,funlen // inline error handling is fine here; sequential wiring reads better unsplit
func runSync(_ *cobra.Command, _ []string) error {
	logger := setupLogger()
	slog.SetDefault(logger)

	logger.Info("starting tunnel-sync",
		"version", version,
		"gitsha", gitsha,
	)

	apiToken := viper.GetString("api-token")
	if apiToken == "" {
		return errors.New("api-token is required (use --api-token or CF_API_TOKEN env var)")
	}

	manageDNS := viper.GetBool("manage-dns")
	zoneID := viper.GetString("zone-id")
	zoneName := viper.GetString("zone-name")

	if manageDNS && zoneID == "" && zoneName == "" {
		return errors.New("zone-id or zone-name is required for DNS management (or pass --manage-dns=false)")
	}

	cfg, err := routes.Load(viper.GetString("config"))
	if err != nil {
		return errors.Wrap(err, "failed to load routing file")
	}

	logger.Info("loaded routing file",
		"path", viper.GetString("config"),
		"tunnel_groups", len(cfg.Tunnels),
		"routes", cfg.RouteCount(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	client, err := cfapi.New(ctx, cfapi.Options{
		APIToken:  apiToken,
		AccountID: viper.GetString("account-id"),
		ZoneID:    zoneID,
		ZoneName:  zoneName,
		Metrics:   collector,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create cloudflare client")
	}

	rec, err := reconciler.New(reconciler.Config{
		Routes:      cfg,
		Provider:    client,
		ManageDNS:   manageDNS,
		DryRun:      viper.GetBool("dry-run"),
		Concurrency: viper.GetInt("concurrency"),
		Metrics:     collector,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create reconciler")
	}

	result, err := rec.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "reconcile run failed")
	}

	logSummary(logger, result)
	pushMetrics(ctx, logger, registry)

	if result.Failed() {
		return errors.Newf("%d of %d tunnel groups failed to reconcile",
			len(result.Failures()), len(result.Tunnels))
	}

	return nil
}

// logSummary prints one line per tunnel group plus the final verdict.
func logSummary(logger *slog.Logger, result *reconciler.Result) {
	for _, tr := range result.Tunnels {
		groupLogger := logger.With("region", tr.Region, "tunnel_id", tr.TunnelID)

		if tr.Failed() {
			groupLogger.Error("tunnel group failed", "error", tr.Err)

			continue
		}

		groupLogger.Info("tunnel group summary",
			"desired", tr.Desired,
			"created", tr.Created,
			"updated", tr.Updated,
			"deleted", tr.Deleted,
			"dns_changes", tr.DNSChanges,
			"in_sync", tr.InSync,
			"dry_run", tr.DryRun,
		)

		if tr.Violation != nil {
			groupLogger.Warn("dns records left in place", "detail", tr.Violation.Error())
		}
	}

	if result.Failed() {
		logger.Error("reconcile finished with failures")
	} else {
		logger.Info("reconcile finished")
	}
}

// pushMetrics delivers the run's metrics to the configured
// Pushgateway. Delivery problems are logged but never change the
// exit code: the reconcile outcome is what matters.
func pushMetrics(ctx context.Context, logger *slog.Logger, registry *prometheus.Registry) {
	gatewayURL := viper.GetString("pushgateway-url")
	if gatewayURL == "" {
		return
	}

	if err := metrics.PushToGateway(ctx, gatewayURL, "tunnel-sync", registry); err != nil {
		logger.Warn("failed to push metrics", "error", err)

		return
	}

	logger.Debug("pushed metrics", "gateway", gatewayURL)
}
