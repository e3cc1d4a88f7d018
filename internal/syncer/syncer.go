// Package syncer reconciles milestones and issues from a source repository
// into a target repository.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/models"
)

// Remote is the record collection API the synchronizers work against.
// *github.Client implements it. CreateIssue may return the created issue
// together with an error when a follow-up step fails.
type Remote interface {
	ListMilestones(ctx context.Context, repo models.Repo) ([]*models.Milestone, error)
	FindMilestoneByTitle(ctx context.Context, repo models.Repo, title string) (*models.Milestone, error)
	CreateMilestone(ctx context.Context, repo models.Repo, p models.MilestonePayload) (*models.Milestone, error)
	UpdateMilestone(ctx context.Context, repo models.Repo, number int, p models.MilestonePayload) (*models.Milestone, error)

	ListIssues(ctx context.Context, repo models.Repo, filter github.IssueFilter) ([]*models.Issue, error)
	FindIssueByTitle(ctx context.Context, repo models.Repo, title string) (*models.Issue, error)
	GetIssue(ctx context.Context, repo models.Repo, number int) (*models.Issue, error)
	HighestIssueNumber(ctx context.Context, repo models.Repo) (int, error)
	CreateIssue(ctx context.Context, repo models.Repo, p models.IssuePayload) (*models.Issue, error)
	UpdateIssue(ctx context.Context, repo models.Repo, number int, p models.IssuePayload) (*models.Issue, error)
}

// Logger receives per-record progress. *output.UI implements it.
type Logger interface {
	Info(format string, a ...any)
	Success(format string, a ...any)
	Warning(format string, a ...any)
	Error(format string, a ...any)
	VerboseLog(format string, a ...any)
	DryRunMsg(format string, a ...any)
}

// PlaceholderPolicy decides what happens when a placeholder cannot be created.
type PlaceholderPolicy string

const (
	// PlaceholderContinue keeps consuming the remaining slots.
	PlaceholderContinue PlaceholderPolicy = "continue"
	// PlaceholderAbort stops number preservation for the current and all
	// later issues of the run; they are synced with free numbering.
	PlaceholderAbort PlaceholderPolicy = "abort"
)

// ParsePlaceholderPolicy validates a policy name. Empty means continue.
func ParsePlaceholderPolicy(s string) (PlaceholderPolicy, error) {
	switch PlaceholderPolicy(s) {
	case "", PlaceholderContinue:
		return PlaceholderContinue, nil
	case PlaceholderAbort:
		return PlaceholderAbort, nil
	}
	return "", fmt.Errorf("invalid placeholder policy %q (must be continue or abort)", s)
}

// Options configures one run.
type Options struct {
	Source models.Repo
	Target models.Repo

	SyncIssues        bool
	PreserveNumbers   bool
	Bidirectional     bool
	IncludeUnassigned bool
	PlaceholderPolicy PlaceholderPolicy

	// MappingFile is where the issue mapping is written. Empty disables it.
	MappingFile string
	// Prior is used when MappingFile holds no mapping for this repository pair.
	Prior models.NumberMap

	DryRun bool
}

// Mode returns the sync mode implied by the options.
func (o Options) Mode() models.SyncMode {
	switch {
	case !o.SyncIssues:
		return models.SyncModeMilestones
	case o.PreserveNumbers:
		return models.SyncModePreserve
	default:
		return models.SyncModeFree
	}
}

// State is the mutable context threaded through the synchronizers during one
// run: the mappings built so far, counters and reported anomalies.
type State struct {
	Source models.Repo
	Target models.Repo

	// Milestones maps source milestone numbers to target milestone numbers.
	Milestones models.NumberMap
	// Issues maps source issue numbers to target issue numbers.
	Issues models.NumberMap
	// Prior is the issue mapping from an earlier run of the same pair.
	Prior models.NumberMap

	// PreserveNumbers is cleared when the abort placeholder policy trips.
	PreserveNumbers bool

	MilestonesSynced    int
	MilestonesTotal     int
	IssuesSynced        int
	IssuesTotal         int
	PlaceholdersCreated int
	ReverseMilestones   int
	ReverseIssues       int

	Anomalies []models.Anomaly
}

// NewState returns an empty state for a run between source and target.
func NewState(source, target models.Repo, preserve bool) *State {
	return &State{
		Source:          source,
		Target:          target,
		Milestones:      models.NumberMap{},
		Issues:          models.NumberMap{},
		Prior:           models.NumberMap{},
		PreserveNumbers: preserve,
	}
}

func (st *State) report(kind models.AnomalyKind, source, intended, actual int, format string, a ...any) models.Anomaly {
	an := models.Anomaly{
		Kind:         kind,
		SourceNumber: source,
		Intended:     intended,
		Actual:       actual,
		Message:      fmt.Sprintf(format, a...),
		CreatedAt:    time.Now().UTC(),
	}
	st.Anomalies = append(st.Anomalies, an)
	return an
}

// Syncer runs milestone and issue synchronization against a Remote.
// Calls are strictly sequential; a Syncer must not be shared between
// concurrent runs against the same target.
type Syncer struct {
	remote Remote
	log    Logger
	opts   Options
	now    func() time.Time
}

// New creates a Syncer. In dry-run mode writes are simulated.
func New(remote Remote, log Logger, opts Options) *Syncer {
	if opts.PlaceholderPolicy == "" {
		opts.PlaceholderPolicy = PlaceholderContinue
	}
	if opts.DryRun {
		remote = NewDryRunRemote(remote, log)
	}
	return &Syncer{
		remote: remote,
		log:    log,
		opts:   opts,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// anomaly records an anomaly in st and logs it as a warning.
func (s *Syncer) anomaly(st *State, kind models.AnomalyKind, source, intended, actual int, format string, a ...any) {
	an := st.report(kind, source, intended, actual, format, a...)
	s.log.Warning("[%s] %s", an.Kind, an.Message)
}
