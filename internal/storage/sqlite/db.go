package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vargento/internal/domain"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS predictions (
		id            TEXT PRIMARY KEY,
		description   TEXT NOT NULL,
		label         TEXT NOT NULL,
		display_label TEXT DEFAULT '',
		confidence    REAL NOT NULL,
		algorithm     TEXT DEFAULT '',
		video_url     TEXT DEFAULT '',
		media_name    TEXT DEFAULT '',
		media_type    TEXT DEFAULT '',
		key_frame     INTEGER DEFAULT 0,
		created_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_label ON predictions(label);

	CREATE TABLE IF NOT EXISTS prediction_corrections (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		prediction_id   TEXT NOT NULL,
		original_label  TEXT NOT NULL,
		corrected_label TEXT NOT NULL,
		corrected_by    TEXT DEFAULT '',
		note            TEXT DEFAULT '',
		corrected_at    DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pc_prediction ON prediction_corrections(prediction_id);
	CREATE INDEX IF NOT EXISTS idx_pc_date ON prediction_corrections(corrected_at);
	`
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Migration: add rationale column if missing.
	var colCount int
	_ = db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('predictions') WHERE name = 'rationale'`).Scan(&colCount)
	if colCount == 0 {
		_, _ = db.Exec(`ALTER TABLE predictions ADD COLUMN rationale TEXT DEFAULT ''`)
	}

	return db, nil
}

// --- Predictions ---

func InsertPrediction(db *sql.DB, p domain.PredictionRecord) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := db.Exec(
		`INSERT INTO predictions
		 (id, description, label, display_label, confidence, algorithm, video_url, media_name, media_type, key_frame, rationale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Description, p.Label, p.DisplayLabel, p.Confidence, p.Algorithm,
		p.VideoURL, p.MediaName, p.MediaType, p.KeyFrame, p.Rationale, p.CreatedAt.UTC(),
	)
	return err
}

const predictionColumns = `id, description, label, display_label, confidence, algorithm,
	video_url, media_name, media_type, key_frame, rationale, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row rowScanner) (domain.PredictionRecord, error) {
	var p domain.PredictionRecord
	err := row.Scan(
		&p.ID, &p.Description, &p.Label, &p.DisplayLabel, &p.Confidence, &p.Algorithm,
		&p.VideoURL, &p.MediaName, &p.MediaType, &p.KeyFrame, &p.Rationale, &p.CreatedAt,
	)
	return p, err
}

// GetPrediction returns sql.ErrNoRows when id is unknown.
func GetPrediction(db *sql.DB, id string) (domain.PredictionRecord, error) {
	return scanPrediction(db.QueryRow(
		`SELECT `+predictionColumns+` FROM predictions WHERE id = ?`, id,
	))
}

func ListRecentPredictions(db *sql.DB, limit int) ([]domain.PredictionRecord, error) {
	rows, err := db.Query(
		`SELECT `+predictionColumns+`
		 FROM predictions
		 ORDER BY created_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PredictionRecord
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PrunePredictionsBefore deletes predictions created before cutoff together
// with their corrections and returns the number of predictions removed.
func PrunePredictionsBefore(db *sql.DB, cutoff time.Time) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	cutoff = cutoff.UTC()
	if _, err := tx.Exec(
		`DELETE FROM prediction_corrections
		 WHERE prediction_id IN (SELECT id FROM predictions WHERE created_at < ?)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM predictions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// --- Corrections ---

func InsertCorrection(db *sql.DB, c domain.Correction) (int64, error) {
	if c.CorrectedAt.IsZero() {
		c.CorrectedAt = time.Now()
	}
	res, err := db.Exec(
		`INSERT INTO prediction_corrections
		 (prediction_id, original_label, corrected_label, corrected_by, note, corrected_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.PredictionID, c.OriginalLabel, c.CorrectedLabel, c.CorrectedBy, c.Note, c.CorrectedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func GetRecentCorrections(db *sql.DB, since time.Time, limit int) ([]domain.Correction, error) {
	rows, err := db.Query(
		`SELECT id, prediction_id, original_label, corrected_label, corrected_by, note, corrected_at
		 FROM prediction_corrections
		 WHERE corrected_at >= ?
		 ORDER BY corrected_at DESC, id DESC
		 LIMIT ?`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Correction
	for rows.Next() {
		var c domain.Correction
		if err := rows.Scan(
			&c.ID, &c.PredictionID, &c.OriginalLabel, &c.CorrectedLabel,
			&c.CorrectedBy, &c.Note, &c.CorrectedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Stats ---

func GetPredictionStats(db *sql.DB, since time.Time) (domain.PredictionStats, error) {
	var s domain.PredictionStats
	since = since.UTC()
	err := db.QueryRow(
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0),
		        COALESCE(SUM(CASE WHEN confidence < 0.50 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.50 AND confidence < 0.70 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.70 AND confidence < 0.90 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN confidence >= 0.90 THEN 1 ELSE 0 END), 0)
		 FROM predictions WHERE created_at >= ?`,
		since,
	).Scan(&s.TotalPredictions, &s.AvgConfidence,
		&s.BucketBelow50, &s.Bucket50to70, &s.Bucket70to90, &s.Bucket90Plus)
	if err != nil {
		return s, err
	}

	err = db.QueryRow(
		`SELECT COUNT(*) FROM prediction_corrections WHERE corrected_at >= ?`,
		since,
	).Scan(&s.TotalCorrections)
	return s, err
}

// GetLabelCounts returns how often each label was predicted since the given
// time, most frequent first.
func GetLabelCounts(db *sql.DB, since time.Time) ([]domain.LabelCount, error) {
	rows, err := db.Query(
		`SELECT label, COUNT(*) AS cnt
		 FROM predictions
		 WHERE created_at >= ?
		 GROUP BY label
		 ORDER BY cnt DESC, label`,
		since.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LabelCount
	for rows.Next() {
		var lc domain.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func GetWeeklyTrend(db *sql.DB, since time.Time) ([]domain.WeeklyTrend, error) {
	since = since.UTC()
	rows, err := db.Query(
		`SELECT
		    strftime('%Y-%m-%d', created_at, 'weekday 0', '-6 days') as week_start,
		    COUNT(*) as predictions,
		    COALESCE(AVG(confidence), 0) as avg_confidence
		 FROM predictions
		 WHERE created_at >= ?
		 GROUP BY week_start
		 ORDER BY week_start DESC`,
		since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trends []domain.WeeklyTrend
	for rows.Next() {
		var t domain.WeeklyTrend
		if err := rows.Scan(&t.WeekStart, &t.Predictions, &t.AvgConfidence); err != nil {
			return nil, err
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	corrRows, err := db.Query(
		`SELECT
		    strftime('%Y-%m-%d', corrected_at, 'weekday 0', '-6 days') as week_start,
		    COUNT(*) as corrections
		 FROM prediction_corrections
		 WHERE corrected_at >= ?
		 GROUP BY week_start`,
		since,
	)
	if err != nil {
		return trends, nil // non-fatal
	}
	defer corrRows.Close()

	corrMap := make(map[string]int)
	for corrRows.Next() {
		var ws string
		var cnt int
		if err := corrRows.Scan(&ws, &cnt); err != nil {
			continue
		}
		corrMap[ws] = cnt
	}
	for i := range trends {
		if cnt, ok := corrMap[trends[i].WeekStart]; ok {
			trends[i].Corrections = cnt
		}
	}
	return trends, nil
}
