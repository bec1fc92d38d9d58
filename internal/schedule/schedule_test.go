package schedule

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vargento/internal/domain"
	"vargento/internal/storage/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fakePoster struct {
	messages []string
	err      error
}

func (f *fakePoster) PostDigest(_ context.Context, mrkdwn string) error {
	f.messages = append(f.messages, mrkdwn)
	return f.err
}

func seed(t *testing.T, db *sql.DB, now time.Time) {
	t.Helper()
	preds := []domain.PredictionRecord{
		{ID: "1", Description: "mano", Label: "Penal", Confidence: 0.8, CreatedAt: now.Add(-time.Hour)},
		{ID: "2", Description: "mano", Label: "Penal", Confidence: 0.6, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "3", Description: "plancha", Label: "Roja", Confidence: 0.95, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: "old", Description: "viejo", Label: "Roja", Confidence: 0.5, CreatedAt: now.AddDate(0, 0, -120)},
	}
	for _, p := range preds {
		if err := sqlite.InsertPrediction(db, p); err != nil {
			t.Fatalf("InsertPrediction failed: %v", err)
		}
	}
}

func TestSendDigest(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	seed(t, db, now)
	if _, err := sqlite.InsertCorrection(db, domain.Correction{
		PredictionID:   "3",
		OriginalLabel:  "Roja",
		CorrectedLabel: "Penal",
		CorrectedBy:    "var-1",
		CorrectedAt:    now.Add(-30 * time.Minute),
	}); err != nil {
		t.Fatalf("InsertCorrection failed: %v", err)
	}

	poster := &fakePoster{}
	var observed []string
	s, err := New(db, poster, Options{
		DigestSchedule: "0 9 * * MON",
		RetentionDays:  90,
		Brand:          "VARGENTO",
		Location:       time.UTC,
		Display:        func(l string) string { return strings.ToUpper(l) },
		Observe:        func(kind string, err error) { observed = append(observed, kind) },
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Jobs() != 2 {
		t.Fatalf("expected digest and prune jobs, got %d", s.Jobs())
	}

	if err := s.SendDigest(context.Background()); err != nil {
		t.Fatalf("SendDigest failed: %v", err)
	}
	if len(poster.messages) != 1 {
		t.Fatalf("expected one digest, got %d", len(poster.messages))
	}
	msg := poster.messages[0]
	for _, want := range []string{"*VARGENTO digest", "Incidents analyzed: *3*", "• PENAL: 2", "• ROJA: 1", "• ROJA → *PENAL* by var-1"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("digest missing %q:\n%s", want, msg)
		}
	}
	if len(observed) != 1 || observed[0] != "digest" {
		t.Fatalf("unexpected observations %v", observed)
	}

	poster.err = errors.New("rate_limited")
	if err := s.SendDigest(context.Background()); err == nil {
		t.Fatal("expected post error")
	}
}

func TestPrune(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	seed(t, db, now)

	s, err := New(db, nil, Options{RetentionDays: 90}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Jobs() != 1 {
		t.Fatalf("expected only the prune job without slack, got %d", s.Jobs())
	}
	n, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned prediction, got %d", n)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	db := newTestDB(t)
	if _, err := New(db, &fakePoster{}, Options{DigestSchedule: "every monday"}, nil); err == nil {
		t.Fatal("expected invalid schedule error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	s, err := New(db, nil, Options{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
