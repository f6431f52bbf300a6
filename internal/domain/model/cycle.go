package model

import "time"

// CycleStage identifies where an ingestion cycle was when it ended.
type CycleStage string

const (
	CycleStageAcquiringCredential      CycleStage = "acquiring_credential"
	CycleStageQuerying                 CycleStage = "querying"
	CycleStageHandlingQuotaError       CycleStage = "handling_quota_error"
	CycleStageNormalizingAndPersisting CycleStage = "normalizing_and_persisting"
	CycleStageIdle                     CycleStage = "idle"
)

// CycleReport is the outcome of a single ingestion cycle.
type CycleReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Stage      CycleStage
	Fetched    int // Items strictly newer than the watermark.
	Stored     int
	Dropped    int // Items rejected by normalization.
	Watermark  time.Time
	Err        error
}
