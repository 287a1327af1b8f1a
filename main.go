// @title Top changes API
// @version 1.0
// @description Read-only analyses over shareholder position changes.
// @BasePath /
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/epeers/topchanges/config"
	_ "github.com/epeers/topchanges/docs"
	"github.com/epeers/topchanges/internal/cache"
	"github.com/epeers/topchanges/internal/database"
	"github.com/epeers/topchanges/internal/extract"
	"github.com/epeers/topchanges/internal/handlers"
	"github.com/epeers/topchanges/internal/publish"
	"github.com/epeers/topchanges/internal/repository"
	"github.com/epeers/topchanges/internal/services"
	"github.com/epeers/topchanges/internal/util"
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "topchanges",
		Short: "Shareholder position-change store and analyses",
		Long: `topchanges ingests daily shareholder position-change extracts into a
single-file store, derives trade and last prices, builds a bounded recent
snapshot and serves read-only analyses over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("LOG_LEVEL: %w", err)
			}
			log.SetLevel(level)
			return nil
		},
	}

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(publishCmd())
	rootCmd.AddCommand(checkCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func logProgress(fraction float64, message string) {
	log.Debugf("%3.0f%% %s", fraction*100, message)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCmd() *cobra.Command {
	var skipSnapshot bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest new or changed extracts into the local store",
		Long: `ingest makes sure a usable local store exists (restoring it from the
remote copy when allowed), ingests every extract in the catalog that is new
or changed since it was last ingested, refreshes last prices and then
rebuilds the recent snapshot.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.RequireCatalog(); err != nil {
				return err
			}
			ctx := cmd.Context()

			aliases, err := extract.LoadAliases(cfg.AliasesFile)
			if err != nil {
				return err
			}

			staging := services.NewStagingService(cfg.BusyTimeoutMS)
			origin, err := staging.EnsureWorkingStore(ctx, cfg.DBPath(), cfg.RemoteDBFull, cfg.AllowRemoteSnapshot, logProgress)
			if err != nil {
				return err
			}
			log.Infof("working store %s (%s)", cfg.DBPath(), origin)

			db, err := database.New(ctx, cfg.DBPath(), cfg.BusyTimeoutMS)
			if err != nil {
				return err
			}
			defer db.Close()

			investorRepo := repository.NewInvestorRepository(db.Conn)
			securityRepo := repository.NewSecurityRepository(db.Conn)
			positionRepo := repository.NewPositionRepository(db.Conn)
			ledgerRepo := repository.NewLedgerRepository(db.Conn)
			priceRepo := repository.NewPriceRepository(db.Conn)

			pricingSvc := services.NewPricingService(nil, priceRepo, securityRepo, db.Path)
			ingestSvc := services.NewIngestService(db, services.IngestOptions{
				CatalogDir:    cfg.CatalogDir,
				FilePrefix:    cfg.FilePrefix,
				FilePattern:   cfg.FilePattern,
				Window:        util.DateWindow{Start: cfg.DateStart, End: cfg.DateEnd},
				BatchSize:     cfg.BatchSize,
				ParseWorkers:  cfg.ParseWorkers,
				BusyTimeoutMS: cfg.BusyTimeoutMS,
				LedgerHash:    cfg.LedgerHash,
			}, aliases, investorRepo, securityRepo, positionRepo, ledgerRepo, pricingSvc)

			result, err := ingestSvc.Run(ctx)
			if err != nil {
				return err
			}
			if err := db.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", cfg.DBPath(), err)
			}

			if !skipSnapshot {
				snap, err := services.NewSnapshotService(cfg.BusyTimeoutMS).BuildRecent(ctx, cfg.DBPath(), cfg.RecentDBPath(), cfg.RecentDays)
				if err != nil {
					return err
				}
				log.Infof("recent snapshot %s: %d facts since %s", snap.Path, snap.Facts, snap.Cutoff)
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&skipSnapshot, "skip-snapshot", false, "Do not rebuild the recent snapshot after ingesting")
	return cmd
}

func snapshotCmd() *cobra.Command {
	var (
		cutoff string
		days   int
		target string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build the bounded recent snapshot from the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = cfg.RecentDays
			}
			if cutoff == "" {
				cutoff = util.RecentCutoff(time.Now(), days)
			}
			if target == "" {
				target = cfg.RecentDBPath()
			}

			result, err := services.NewSnapshotService(cfg.BusyTimeoutMS).BuildBoundedSnapshot(cmd.Context(), cfg.DBPath(), target, cutoff)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&cutoff, "cutoff", "", "First day kept (YYYY-MM-DD); defaults to today minus --days")
	cmd.Flags().IntVar(&days, "days", 0, "Days of facts to keep (defaults to RECENT_DAYS)")
	cmd.Flags().StringVarP(&target, "output", "o", "", "Snapshot path (defaults to the local recent store)")
	return cmd
}

func stageCmd() *cobra.Command {
	var (
		force  bool
		recent bool
	)
	cmd := &cobra.Command{
		Use:   "stage",
		Short: "Copy the remote store to local disk when it is newer",
		RunE: func(cmd *cobra.Command, args []string) error {
			remote, local := cfg.RemoteDBFull, cfg.DBPath()
			if recent {
				remote, local = cfg.RemoteDBRecent, cfg.RecentDBPath()
			}
			if remote == "" {
				return errors.New("no remote store configured (REMOTE_DB_FULL / REMOTE_DB_RECENT)")
			}

			result, err := services.NewStagingService(cfg.BusyTimeoutMS).EnsureLocal(cmd.Context(), remote, local, force, logProgress)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Copy even when the local store looks current")
	cmd.Flags().BoolVar(&recent, "recent", false, "Stage the recent snapshot instead of the full store")
	return cmd
}

func storePath(full bool) string {
	if full {
		return cfg.DBPath()
	}
	return cfg.RecentDBPath()
}

func serveCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve read-only analyses over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := storePath(full)

			db, err := database.OpenReadOnly(ctx, path, cfg.BusyTimeoutMS)
			if err != nil {
				return err
			}
			defer db.Close()

			// Initialize caches
			memCache := cache.NewMemoryCache(5 * time.Minute)

			// Initialize repositories
			investorRepo := repository.NewInvestorRepository(db.Conn)
			securityRepo := repository.NewSecurityRepository(db.Conn)
			positionRepo := repository.NewPositionRepository(db.Conn)
			ledgerRepo := repository.NewLedgerRepository(db.Conn)
			priceRepo := repository.NewPriceRepository(db.Conn)

			// Initialize services
			pricingSvc := services.NewPricingService(memCache, priceRepo, securityRepo, db.Path)
			activitySvc := services.NewActivityService(priceRepo, securityRepo, investorRepo, pricingSvc)
			watchlistSvc := services.NewWatchlistService(cfg.ListDir, db.Path, investorRepo, activitySvc, memCache)
			adminSvc := services.NewAdminService(db.Path, investorRepo, securityRepo, positionRepo, ledgerRepo)

			if log.IsLevelEnabled(log.DebugLevel) {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			router := handlers.NewRouter(
				handlers.NewActivityHandler(activitySvc),
				handlers.NewWatchlistHandler(watchlistSvc),
				handlers.NewAdminHandler(adminSvc, pricingSvc),
			)

			srv := &http.Server{
				Addr:    ":" + cfg.Port,
				Handler: router,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infof("Starting server on port %s (store %s)", cfg.Port, path)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("failed to start server: %w", err)
			case <-ctx.Done():
			}
			log.Info("Shutting down server...")

			// Give outstanding requests 5 seconds to complete
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			log.Info("Server exited")
			return nil
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "Serve the full store instead of the recent snapshot")
	return cmd
}

func publishCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Mirror a store into Postgres (PG_URL)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.PGURL == "" {
				return errors.New("PG_URL environment variable is required")
			}
			ctx := cmd.Context()

			db, err := database.OpenReadOnly(ctx, storePath(full), cfg.BusyTimeoutMS)
			if err != nil {
				return err
			}
			defer db.Close()

			pub, err := publish.New(ctx, cfg.PGURL)
			if err != nil {
				return err
			}
			defer pub.Close()

			result, err := pub.Publish(ctx, db)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().BoolVar(&full, "full", true, "Publish the full store; false publishes the recent snapshot")
	return cmd
}

func checkCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify a store's integrity and summarize its contents",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := storePath(full)

			if err := database.IntegrityCheck(ctx, path, cfg.BusyTimeoutMS); err != nil {
				return err
			}

			db, err := database.OpenReadOnly(ctx, path, cfg.BusyTimeoutMS)
			if err != nil {
				return err
			}
			defer db.Close()

			adminSvc := services.NewAdminService(path,
				repository.NewInvestorRepository(db.Conn),
				repository.NewSecurityRepository(db.Conn),
				repository.NewPositionRepository(db.Conn),
				repository.NewLedgerRepository(db.Conn),
			)
			summary, err := adminSvc.Summary(ctx)
			if err != nil {
				return err
			}
			return printJSON(summary)
		},
	}
	cmd.Flags().BoolVar(&full, "full", true, "Check the full store; false checks the recent snapshot")
	return cmd
}
