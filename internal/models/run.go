package models

import "time"

// AnomalyKind classifies a numbering problem detected during a run.
type AnomalyKind string

const (
	// AnomalySlotOccupied: the highest target number already reached the
	// number that should have been free.
	AnomalySlotOccupied AnomalyKind = "slot_occupied"
	// AnomalyNumberDrift: the remote assigned a different number than intended.
	AnomalyNumberDrift AnomalyKind = "number_drift"
	// AnomalyPlaceholderFailed: a placeholder could not be created.
	AnomalyPlaceholderFailed AnomalyKind = "placeholder_failed"
	// AnomalyMappingDrift: a previously mapped target no longer resolves to
	// the same number.
	AnomalyMappingDrift AnomalyKind = "mapping_drift"
)

// Anomaly is a numbering problem reported during a run. It is never
// folded into the success counters.
type Anomaly struct {
	Kind         AnomalyKind
	SourceNumber int
	Intended     int
	Actual       int
	Message      string
	CreatedAt    time.Time
}

// SyncMode describes how issue numbers are assigned in the target.
type SyncMode string

const (
	SyncModeMilestones SyncMode = "milestones"
	SyncModeFree       SyncMode = "free"
	SyncModePreserve   SyncMode = "preserve"
)

// Run is the outcome of one sync run.
type Run struct {
	ID     string
	Source string
	Target string
	Mode   SyncMode
	DryRun bool

	Bidirectional bool

	MilestonesSynced    int
	MilestonesTotal     int
	IssuesSynced        int
	IssuesTotal         int
	PlaceholdersCreated int
	ReverseMilestones   int
	ReverseIssues       int

	Milestones NumberMap
	Issues     NumberMap
	Anomalies  []Anomaly

	MappingFile string // empty when no file was written
	StartedAt   time.Time
	FinishedAt  time.Time
}
