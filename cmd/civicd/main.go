// Command civicd runs the meeting ingestion daemon and its admin
// commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/civiclight/civiclight/internal/civic"
	"github.com/civiclight/civiclight/internal/conductor"
	"github.com/civiclight/civiclight/internal/config"
	"github.com/civiclight/civiclight/internal/fetcher"
	"github.com/civiclight/civiclight/internal/ratelimit"
	"github.com/civiclight/civiclight/internal/session"
	"github.com/civiclight/civiclight/internal/storage"
	"github.com/civiclight/civiclight/internal/syncer"
	"github.com/civiclight/civiclight/internal/telemetry"
	"github.com/civiclight/civiclight/internal/vendors"

	// Vendor adapters register themselves at init time.
	_ "github.com/civiclight/civiclight/internal/vendors/citycustom"
	_ "github.com/civiclight/civiclight/internal/vendors/civicclerk"
	_ "github.com/civiclight/civiclight/internal/vendors/civicengage"
	_ "github.com/civiclight/civiclight/internal/vendors/civicplus"
	_ "github.com/civiclight/civiclight/internal/vendors/escribe"
	_ "github.com/civiclight/civiclight/internal/vendors/granicus"
	_ "github.com/civiclight/civiclight/internal/vendors/iqm2"
	_ "github.com/civiclight/civiclight/internal/vendors/legistar"
	_ "github.com/civiclight/civiclight/internal/vendors/municode"
	_ "github.com/civiclight/civiclight/internal/vendors/novusagenda"
	_ "github.com/civiclight/civiclight/internal/vendors/onbase"
	_ "github.com/civiclight/civiclight/internal/vendors/primegov"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "civicd",
		Short:         "Municipal meeting ingestion daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		daemonCmd(),
		syncCmd(),
		syncAndProcessCmd(),
		statusCmd(),
		importCitiesCmd(),
		versionCmd(),
	)
	return root
}

// app is everything a command needs after wiring.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *storage.Store
	sessions *session.Pool
	cond     *conductor.Conductor
}

func (a *app) close(ctx context.Context) {
	a.sessions.CloseAll()
	a.store.Close()
	_ = telemetry.Shutdown(ctx)
	_ = a.log.Sync()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// wire loads config and builds the full pipeline.
func wire(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := telemetry.Init(ctx, "civicd", version); err != nil {
		log.Warn("telemetry init failed", zap.Error(err))
	}

	store, err := storage.New(ctx, cfg.DatabaseURL, storage.Options{
		MinConns: cfg.DBMinConns,
		MaxConns: cfg.DBMaxConns,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := store.InitSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	viewIDs, err := config.LoadGranicusViewIDs(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	onbaseSites, err := config.LoadOnBaseSites(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	civicEngage, err := config.LoadCivicEngageOverrides(cfg.DataDir)
	if err != nil {
		store.Close()
		return nil, err
	}

	pacer := ratelimit.NewPacer()
	sessions := session.NewPool()
	deps := &vendors.Deps{
		Sessions:          sessions,
		Pacer:             pacer,
		Log:               log,
		GranicusViewIDs:   viewIDs,
		OnBaseSites:       onbaseSites,
		CivicEngage:       civicEngage,
		LegistarTokens:    cfg.LegistarAPITokens,
		Discovery:         vendors.NewDiscoveryCache(),
		DetailConcurrency: int64(cfg.DetailConcurrency),
	}

	enabled := map[civic.Vendor]bool{}
	for _, v := range cfg.EnabledVendors {
		enabled[v] = true
	}
	sink := syncer.New(store, log)
	f := fetcher.New(store.CityStore(), sink, deps, pacer, log, fetcher.Options{
		Enabled:    enabled,
		MaxRetries: cfg.MaxRetries,
	})
	cond := conductor.New(store, f, nil, log, conductor.Options{
		SyncInterval:       cfg.SyncInterval(),
		ErrorBackoff:       cfg.SyncErrorBackoff(),
		ProcessingInterval: cfg.ProcessingInterval(),
		QueueRetryLimit:    cfg.QueueRetryLimit,
	})
	return &app{cfg: cfg, log: log, store: store, sessions: sessions, cond: cond}, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync and processing loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			a.log.Info("daemon starting", zap.String("version", version))
			if err := a.cond.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			a.log.Info("daemon stopped")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var city string
	var full bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass (one city or all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if city == "" && !full {
				return fmt.Errorf("either --city or --full is required")
			}
			ctx, cancel := signalContext()
			defer cancel()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if city != "" {
				res, err := a.cond.SyncCity(ctx, city)
				if err != nil {
					return err
				}
				printResult(res)
				if res.Status == civic.SyncFailed {
					return fmt.Errorf("sync failed: %s", res.Error)
				}
				return nil
			}

			status, err := a.cond.GetStatus(ctx)
			if err == nil && status.IsRunning {
				return fmt.Errorf("a sync pass is already running")
			}
			started := time.Now()
			results, err := a.cond.SyncAllNow(ctx)
			if err != nil {
				return err
			}
			for _, r := range results {
				printResult(r)
			}
			fmt.Printf("pass finished in %s (%d cities)\n", time.Since(started).Round(time.Second), len(results))
			return nil
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city banana to sync")
	cmd.Flags().BoolVar(&full, "full", false, "sync every active city")
	return cmd
}

func syncAndProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-and-process <banana>",
		Short: "Sync one city, then drain its summarization jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			res, processed, err := a.cond.SyncAndProcessCity(ctx, args[0])
			printResult(res)
			fmt.Printf("processed %d queue jobs\n", processed)
			return err
		},
	}
}

func statusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the pipeline status snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			status, err := a.cond.GetStatus(ctx)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			printStatus(status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the snapshot as JSON")
	return cmd
}

func printStatus(s conductor.Status) {
	o := s.Overview
	fmt.Printf("running:        %v\n", s.IsRunning)
	if s.LastFullSync != nil {
		fmt.Printf("last full sync: %s\n", s.LastFullSync.Format(time.RFC3339))
	}
	fmt.Printf("cities:         %d active\n", o.ActiveCities)
	fmt.Printf("meetings:       %d total, %d summarized, %d pending\n",
		o.TotalMeetings, o.SummarizedMeetings, o.PendingMeetings)
	fmt.Printf("matters:        %d tracked\n", o.TrackedMatters)
	fmt.Printf("queue:          %d pending, %d dead-letter\n", o.PendingJobs, o.DeadLetterJobs)
	if o.LastSynced != nil {
		fmt.Printf("last city sync: %s\n", o.LastSynced.Format(time.RFC3339))
	}
	if len(s.FailedCities) > 0 {
		fmt.Printf("failed cities:  %s\n", strings.Join(s.FailedCities, ", "))
	}
}

func importCitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-cities <file.json>",
		Short: "Create or update cities from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			a, err := wire(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var cities []civic.City
			if err := json.Unmarshal(raw, &cities); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			for i := range cities {
				if cities[i].Status == "" {
					cities[i].Status = civic.CityActive
				}
				if err := storage.UpsertCity(ctx, a.store.Pool(), cities[i]); err != nil {
					return err
				}
			}
			fmt.Printf("imported %d cities\n", len(cities))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("civicd", version)
		},
	}
}

func printResult(r civic.SyncResult) {
	line := fmt.Sprintf("%-24s %-10s found=%d processed=%d skipped=%d took=%s",
		r.Banana, r.Status, r.MeetingsFound, r.MeetingsProcessed, r.MeetingsSkipped,
		r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		line += " error=" + r.Error
	}
	fmt.Println(line)
}
