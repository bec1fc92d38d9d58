package domain

import "time"

// IncidentRecord is one labeled historical incident.
type IncidentRecord struct {
	Description string
	Decision    string
}

type PredictionRecord struct {
	ID           string
	Description  string
	Label        string
	DisplayLabel string
	Confidence   float64
	Algorithm    string
	VideoURL     string
	MediaName    string
	MediaType    string
	KeyFrame     int
	Rationale    string
	CreatedAt    time.Time
}

type Correction struct {
	ID             int64
	PredictionID   string
	OriginalLabel  string
	CorrectedLabel string
	CorrectedBy    string
	Note           string
	CorrectedAt    time.Time
}

type PredictionStats struct {
	TotalPredictions int
	TotalCorrections int
	AvgConfidence    float64
	BucketBelow50    int
	Bucket50to70     int
	Bucket70to90     int
	Bucket90Plus     int
}

type LabelCount struct {
	Label string
	Count int
}

type WeeklyTrend struct {
	WeekStart     string
	Predictions   int
	Corrections   int
	AvgConfidence float64
}
