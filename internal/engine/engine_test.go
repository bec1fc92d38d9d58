package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"vargento/internal/classifier"
	"vargento/internal/dataset"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const goodCSV = `descripcion,decision
mano clara dentro del área,Penal
mano del defensor en el área,Penal
remate desviado,No gol
remate al palo,No gol
entrada fuerte con plancha,Roja
plancha sobre el tobillo,Roja
`

const singleLabelCSV = `descripcion,decision
mano clara dentro del área,Penal
mano del defensor en el área,Penal
`

func writeDataset(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
}

func newTestEngine(t *testing.T, content string) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jugadas.csv")
	if content != "" {
		writeDataset(t, path, content)
	}
	return New(Options{DatasetPath: path}, nil), path
}

func TestSnapshotTrainsOnce(t *testing.T) {
	var calls atomic.Int32
	path := filepath.Join(t.TempDir(), "jugadas.csv")
	writeDataset(t, path, goodCSV)
	eng := New(Options{
		DatasetPath: path,
		OnReload:    func(*Snapshot, error) { calls.Add(1) },
	}, nil)

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := eng.Snapshot(context.Background())
			if err != nil {
				t.Errorf("Snapshot failed: %v", err)
				return
			}
			snaps[i] = snap
		}(i)
	}
	wg.Wait()

	for _, s := range snaps[1:] {
		if s != snaps[0] {
			t.Fatal("expected every caller to share one snapshot")
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one training, got %d", calls.Load())
	}
	if snaps[0].Report.Algorithm != classifier.NaiveBayes {
		t.Fatalf("unexpected algorithm %q", snaps[0].Report.Algorithm)
	}
	if snaps[0].Similar.Len() != 6 {
		t.Fatalf("expected 6 indexed incidents, got %d", snaps[0].Similar.Len())
	}
}

func TestSnapshotRemembersInitialFailure(t *testing.T) {
	eng, path := newTestEngine(t, "")
	ctx := context.Background()

	_, err := eng.Snapshot(ctx)
	var loadErr *dataset.DataLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected DataLoadError, got %v", err)
	}
	if _, again := eng.Snapshot(ctx); again != err {
		t.Fatalf("expected remembered error, got %v", again)
	}

	writeDataset(t, path, goodCSV)
	snap, err := eng.Reload(ctx)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, err := eng.Snapshot(ctx)
	if err != nil || got != snap {
		t.Fatalf("expected reloaded snapshot, got %v %v", got, err)
	}
	if eng.LastError() != nil {
		t.Fatalf("expected no last error, got %v", eng.LastError())
	}
}

func TestReloadFailureKeepsPreviousSnapshot(t *testing.T) {
	eng, path := newTestEngine(t, goodCSV)
	ctx := context.Background()

	before, err := eng.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	writeDataset(t, path, singleLabelCSV)
	_, err = eng.Reload(ctx)
	var insufficient *classifier.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}

	after, err := eng.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot after failed reload: %v", err)
	}
	if after != before {
		t.Fatal("failed reload replaced the serving snapshot")
	}
	if !errors.As(eng.LastError(), &insufficient) {
		t.Fatalf("expected LastError to report the failed reload, got %v", eng.LastError())
	}
}

func TestSnapshotPredictions(t *testing.T) {
	eng, _ := newTestEngine(t, goodCSV)
	snap, err := eng.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	pred, err := snap.Model.Predict("mano en el área")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Label != "Penal" {
		t.Fatalf("expected Penal, got %q", pred.Label)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	eng, path := newTestEngine(t, goodCSV)
	first, err := eng.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Watch(ctx) }()

	extended := goodCSV + "gol tras fuera de juego,Anulado\ngol en posición adelantada,Anulado\n"
	deadline := time.Now().Add(5 * time.Second)
	reloaded := false
	for time.Now().Before(deadline) {
		writeDataset(t, path, extended)
		time.Sleep(700 * time.Millisecond)
		snap, err := eng.Snapshot(context.Background())
		if err == nil && snap != first {
			if !snap.Model.HasLabel("Anulado") {
				t.Fatalf("reloaded model misses new label: %v", snap.Model.Labels())
			}
			reloaded = true
			break
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	if !reloaded {
		t.Fatal("dataset change did not trigger a reload")
	}
}
