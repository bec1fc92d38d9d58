package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vargento/internal/classifier"
	"vargento/internal/config"
	"vargento/internal/dataset"
	"vargento/internal/engine"
	"vargento/internal/integrations/llm"
	slackbot "vargento/internal/integrations/slack"
	"vargento/internal/labels"
	"vargento/internal/metrics"
	"vargento/internal/schedule"
	"vargento/internal/storage/sqlite"
	"vargento/internal/web"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web interface, JSON API and schedulers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("watch") {
				c.cfg.WatchDataset = watch
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.cfg, c.logger)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Retrain when the dataset file changes (overrides watch_dataset)")
	return cmd
}

func newEngine(cfg config.Config, m *metrics.Metrics, logger *zap.Logger) *engine.Engine {
	return engine.New(engine.Options{
		DatasetPath: cfg.DatasetPath,
		Columns: dataset.Columns{
			Description: cfg.DescriptionColumns,
			Decision:    cfg.DecisionColumn,
		},
		Classifier: cfg.ClassifierOptions(),
		OnReload: func(snap *engine.Snapshot, err error) {
			if m == nil {
				return
			}
			if err != nil {
				m.ObserveTraining(classifier.TrainingReport{}, 0, time.Time{}, err)
				return
			}
			m.ObserveTraining(snap.Report, len(snap.Dataset), snap.TrainedAt, nil)
		},
	}, logger)
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	log := logger.Sugar()
	m := metrics.New()

	catalog, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}

	eng := newEngine(cfg, m, logger)
	if snap, err := eng.Snapshot(ctx); err != nil {
		// Keep serving: every query reports the error until a reload succeeds.
		log.Errorf("Model unavailable, serving errors until reload: %v", err)
	} else {
		log.Infof("Model ready algorithm=%s accuracy=%.3f train=%d test=%d labels=%d",
			snap.Report.Algorithm, snap.Report.Accuracy, snap.Report.TrainSize, snap.Report.TestSize, len(snap.Model.Labels()))
		if unknown := catalog.Unknown(snap.Model.Labels()); len(unknown) > 0 {
			log.Warnf("labels file lists decisions missing from the dataset: %v", unknown)
		}
	}

	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()
	log.Infof("Database initialized at %s", cfg.DBPath)

	if cfg.ReportArchive {
		if err := os.MkdirAll(cfg.ReportOutputDir, 0755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
		log.Infof("Report archive dir: %s", cfg.ReportOutputDir)
	}

	deps := web.Deps{Engine: eng, DB: db, Labels: catalog, Metrics: m, Logger: logger}
	var poster schedule.DigestPoster
	if notifier := slackbot.NewNotifier(cfg, cfg.PublicURL, logger); notifier != nil {
		deps.Notifier = notifier
		poster = notifier
		log.Infof("Slack notifications enabled channel=%s", cfg.SlackChannelID)
	}
	if cfg.RationaleConfigured() {
		deps.Rationale = llm.New(cfg, logger)
		log.Infof("LLM rationale enabled provider=%s", cfg.LLMProvider)
	}

	sched, err := schedule.New(db, poster, schedule.Options{
		DigestSchedule: cfg.DigestSchedule,
		RetentionDays:  cfg.HistoryRetentionDays,
		Brand:          cfg.BrandName,
		Location:       cfg.Location,
		Display:        catalog.Display,
		Observe:        m.ObserveNotification,
	}, logger)
	if err != nil {
		return err
	}

	srv, err := web.New(deps, web.Options{
		Brand:          cfg.BrandName,
		MaxUploadMB:    cfg.MaxUploadMB,
		ReportDir:      cfg.ReportOutputDir,
		ArchiveReports: cfg.ReportArchive,
		Location:       cfg.Location,
	})
	if err != nil {
		return err
	}
	httpSrv := srv.HTTPServer(cfg.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("Listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Infof("Shutting down")
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return sched.Run(gctx) })
	if cfg.WatchDataset {
		g.Go(func() error { return eng.Watch(gctx) })
	}

	err = g.Wait()
	srv.Wait()
	return err
}
