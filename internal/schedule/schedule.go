// Package schedule runs the periodic Slack digest and history retention jobs.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"vargento/internal/report"
	"vargento/internal/storage/sqlite"
)

const (
	pruneSchedule = "30 3 * * *"
	digestWindow  = 7 * 24 * time.Hour
	// Latest overrides listed at the end of the digest.
	digestCorrections = 5
)

// DigestPoster delivers a formatted digest.
type DigestPoster interface {
	PostDigest(ctx context.Context, mrkdwn string) error
}

type Options struct {
	DigestSchedule string
	RetentionDays  int
	Brand          string
	Location       *time.Location
	// Display maps raw labels to display text in the digest.
	Display func(string) string
	// Observe, when set, is told about every digest delivery.
	Observe func(kind string, err error)
}

type Scheduler struct {
	db     *sql.DB
	poster DigestPoster
	opts   Options
	log    *zap.SugaredLogger
	cron   *cron.Cron
	now    func() time.Time
}

// New registers the digest job (when poster is non-nil) and the prune job
// (when retention is positive).
func New(db *sql.DB, poster DigestPoster, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	s := &Scheduler{
		db:     db,
		poster: poster,
		opts:   opts,
		log:    logger.Sugar().Named("schedule"),
		cron:   cron.New(cron.WithLocation(opts.Location)),
		now:    time.Now,
	}

	if poster != nil {
		spec := strings.TrimSpace(opts.DigestSchedule)
		if _, err := s.cron.AddFunc(spec, s.digestJob); err != nil {
			return nil, fmt.Errorf("invalid digest_schedule '%s': %w", spec, err)
		}
		s.log.Infof("Digest scheduled (cron: %s)", spec)
	} else {
		s.log.Infof("Digest disabled (slack not configured)")
	}

	if opts.RetentionDays > 0 {
		if _, err := s.cron.AddFunc(pruneSchedule, s.pruneJob); err != nil {
			return nil, err
		}
		s.log.Infof("History retention %d days (cron: %s)", opts.RetentionDays, pruneSchedule)
	}
	return s, nil
}

// Jobs reports how many jobs are registered.
func (s *Scheduler) Jobs() int { return len(s.cron.Entries()) }

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		s.log.Debugf("Next job run at %s", e.Next.Format("Mon Jan 2 15:04"))
	}
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) digestJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	if err := s.SendDigest(ctx); err != nil {
		s.log.Errorf("Digest error: %v", err)
	}
}

func (s *Scheduler) pruneJob() {
	if _, err := s.Prune(context.Background()); err != nil {
		s.log.Errorf("Prune error: %v", err)
	}
}

// SendDigest builds the digest for the last seven days and posts it.
func (s *Scheduler) SendDigest(ctx context.Context) error {
	since := s.now().In(s.opts.Location).Add(-digestWindow)
	md, err := BuildDigest(s.db, since, s.opts.Brand, s.opts.Display)
	if err != nil {
		return err
	}
	err = s.poster.PostDigest(ctx, report.SlackMrkdwn(md))
	if s.opts.Observe != nil {
		s.opts.Observe("digest", err)
	}
	return err
}

// Prune deletes history older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := s.now().AddDate(0, 0, -s.opts.RetentionDays)
	n, err := sqlite.PrunePredictionsBefore(s.db, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune predictions: %w", err)
	}
	s.log.Infof("Pruned predictions=%d cutoff=%s", n, cutoff.Format("2006-01-02"))
	return n, nil
}

// BuildDigest loads stats since the given time and renders the markdown digest.
func BuildDigest(db *sql.DB, since time.Time, brand string, display func(string) string) (string, error) {
	stats, err := sqlite.GetPredictionStats(db, since)
	if err != nil {
		return "", fmt.Errorf("load stats: %w", err)
	}
	labels, err := sqlite.GetLabelCounts(db, since)
	if err != nil {
		return "", fmt.Errorf("load label counts: %w", err)
	}
	trend, err := sqlite.GetWeeklyTrend(db, since)
	if err != nil {
		return "", fmt.Errorf("load weekly trend: %w", err)
	}
	corrections, err := sqlite.GetRecentCorrections(db, since, digestCorrections)
	if err != nil {
		return "", fmt.Errorf("load corrections: %w", err)
	}
	return report.Digest(report.DigestInput{
		Brand:       brand,
		Since:       since,
		Stats:       stats,
		Labels:      labels,
		Trend:       trend,
		Corrections: corrections,
		Display:     display,
	}), nil
}
