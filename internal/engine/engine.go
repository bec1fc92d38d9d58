// Package engine owns the trained classifier snapshot shared by the web
// handlers, the CLI and the schedulers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vargento/internal/classifier"
	"vargento/internal/dataset"
	"vargento/internal/domain"
)

// ErrNotTrained is returned before any training attempt has completed.
var ErrNotTrained = errors.New("model not trained yet")

type Options struct {
	DatasetPath string
	Columns     dataset.Columns
	Classifier  classifier.Options

	// OnReload, when set, is called after every training attempt.
	OnReload func(snap *Snapshot, err error)
}

// Snapshot is an immutable trained model together with the data it was
// trained on. It is safe for concurrent readers.
type Snapshot struct {
	Dataset   []domain.IncidentRecord
	Model     *classifier.Model
	Similar   *classifier.SimilarityIndex
	Report    classifier.TrainingReport
	Encoding  string
	Dropped   int
	TrainedAt time.Time
	Duration  time.Duration
}

type state struct {
	snap *Snapshot
	err  error
}

type Engine struct {
	opts Options
	log  *zap.SugaredLogger

	once    sync.Once
	mu      sync.Mutex
	current atomic.Pointer[state]
}

func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{opts: opts, log: logger.Sugar().Named("engine")}
}

// Snapshot returns the trained snapshot, training it on first use. A failed
// first training is remembered and returned until Reload succeeds.
func (e *Engine) Snapshot(ctx context.Context) (*Snapshot, error) {
	e.once.Do(func() {
		if e.current.Load() == nil {
			// A cancelled first caller must not poison the shared snapshot.
			_, _ = e.Reload(context.WithoutCancel(ctx))
		}
	})
	st := e.current.Load()
	if st == nil {
		return nil, ErrNotTrained
	}
	if st.snap == nil {
		return nil, st.err
	}
	return st.snap, nil
}

// LastError reports the outcome of the most recent training attempt, even
// when an older snapshot is still serving.
func (e *Engine) LastError() error {
	if st := e.current.Load(); st != nil {
		return st.err
	}
	return nil
}

// Reload re-reads the dataset and retrains. The new snapshot replaces the
// current one only on success.
func (e *Engine) Reload(ctx context.Context) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.build(ctx)
	prev := e.current.Load()
	if err != nil {
		e.log.Errorf("training failed dataset=%s err=%v", e.opts.DatasetPath, err)
		next := &state{err: err}
		if prev != nil && prev.snap != nil {
			next.snap = prev.snap
			e.log.Warnf("keeping previous model trained_at=%s", prev.snap.TrainedAt.Format(time.RFC3339))
		}
		e.current.Store(next)
		if e.opts.OnReload != nil {
			e.opts.OnReload(nil, err)
		}
		return nil, err
	}

	e.current.Store(&state{snap: snap})
	if e.opts.OnReload != nil {
		e.opts.OnReload(snap, nil)
	}
	return snap, nil
}

func (e *Engine) build(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	file, err := dataset.LoadFile(e.opts.DatasetPath, e.opts.Columns)
	if err != nil {
		return nil, err
	}
	e.log.Infof("dataset loaded path=%s encoding=%s rows=%d kept=%d dropped=%d",
		file.Path, file.Encoding, file.TotalRows, len(file.Records), file.Dropped)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model, report, err := classifier.Train(file.Records, e.opts.Classifier)
	if err != nil {
		return nil, fmt.Errorf("train on %s: %w", e.opts.DatasetPath, err)
	}
	if !report.Stratified {
		e.log.Warnw("stratified split not possible, fell back to seeded random split",
			"labels", report.LabelCounts,
			"test_size", report.TestSize,
		)
	}

	snap := &Snapshot{
		Dataset:   file.Records,
		Model:     model,
		Similar:   classifier.NewSimilarityIndex(file.Records),
		Report:    report,
		Encoding:  file.Encoding,
		Dropped:   file.Dropped,
		TrainedAt: time.Now(),
		Duration:  time.Since(start),
	}
	e.log.Infof("model trained algorithm=%s labels=%d vocabulary=%d train=%d test=%d accuracy=%.3f stratified=%t took=%s",
		report.Algorithm, len(model.Labels()), report.VocabularySize,
		report.TrainSize, report.TestSize, report.Accuracy, report.Stratified, snap.Duration)
	return snap, nil
}
