// Package serve implements the long-running rescan loop command.
package serve

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/subsona/subsona/internal/blobstore"
	"github.com/subsona/subsona/internal/catalog"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/enrich"
	"github.com/subsona/subsona/internal/errors"
	"github.com/subsona/subsona/internal/fsys"
	"github.com/subsona/subsona/internal/logging"
	"github.com/subsona/subsona/internal/metatag"
	"github.com/subsona/subsona/internal/scanner"
)

func Command(settings *conf.Settings) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the catalog in sync by rescanning all folders on an interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := catalog.New(settings.Database.Path)
			if err := store.Open(); err != nil {
				return err
			}
			defer store.Close()

			var covers *blobstore.Store
			if settings.CoverArt.Dir != "" {
				covers = blobstore.New(settings.CoverArt.Dir)
			}
			sc := scanner.New(
				store,
				fsys.NewRegistry(settings.S3),
				metatag.NewExtractor(metatag.DefaultConfig()),
				metatag.NewProber(""),
				covers,
				settings.Scan,
				settings.Index,
			)
			scheduler := scanner.NewScheduler(sc, store)
			if settings.LastFM.Enabled {
				scheduler.WithEnricher(enrich.NewEnricher(store, enrich.NewLastFM(settings.LastFM)))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, store, scheduler, interval, logging.ForService("serve"))
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between full library rescans")
	return cmd
}

// run scans every folder immediately and then on each tick until the context
// is canceled. Scans already in flight for a folder are left alone.
func run(ctx context.Context, store catalog.Interface, scheduler *scanner.Scheduler, interval time.Duration, log *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rescanAll(ctx, store, scheduler, log)
		select {
		case <-ctx.Done():
			log.Info("shutting down", "active_scans", len(scheduler.Running()))
			return nil
		case <-ticker.C:
		}
	}
}

func rescanAll(ctx context.Context, store catalog.Interface, scheduler *scanner.Scheduler, log *slog.Logger) {
	folders, err := store.ListMusicFolders()
	if err != nil {
		log.Error("listing music folders", "error", err)
		return
	}
	for i := range folders {
		folder := &folders[i]
		job, err := scheduler.Rescan(ctx, folder.ID)
		if err != nil {
			if !errors.Is(err, scanner.ErrScanInProgress) {
				log.Error("scan not started", "folder", folder.Name, "error", err)
			}
			continue
		}
		go func() {
			result, err := job.Wait(context.WithoutCancel(ctx))
			if err != nil {
				log.Error("scan failed", "folder", folder.Name, "error", err)
				return
			}
			log.Info("scan finished", "folder", folder.Name,
				"scanned", result.Scanned, "upserted", result.Upserted,
				"deleted", result.Deleted, "errors", result.Errors)
		}()
	}
}
