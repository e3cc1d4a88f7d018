package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/mapping"
	"github.com/joescharf/milesync/internal/models"
)

// Run syncs milestones, then issues per milestone group, optionally the
// reverse direction, and finally persists the issue mapping. Only a failure
// to list the source milestones is returned as an error; every per-record
// failure is logged and counted.
func (s *Syncer) Run(ctx context.Context) (*models.Run, error) {
	st := NewState(s.opts.Source, s.opts.Target, s.opts.PreserveNumbers && s.opts.SyncIssues)
	run := &models.Run{
		Source:        s.opts.Source.String(),
		Target:        s.opts.Target.String(),
		Mode:          s.opts.Mode(),
		DryRun:        s.opts.DryRun,
		Bidirectional: s.opts.Bidirectional,
		StartedAt:     s.now(),
	}

	st.Prior = s.loadPrior()

	s.log.Info("Fetching milestones from %s...", st.Source)
	milestones, err := s.remote.ListMilestones(ctx, st.Source)
	if err != nil {
		return nil, fmt.Errorf("list source milestones: %w", err)
	}
	if len(milestones) == 0 {
		s.log.Warning("No milestones found in %s", st.Source)
		return s.finish(run, st), nil
	}
	s.log.Info("Found %d milestone(s)", len(milestones))

	s.SyncMilestones(ctx, st, milestones)
	s.log.Info("Milestones synced: %d/%d", st.MilestonesSynced, st.MilestonesTotal)

	if s.opts.SyncIssues {
		for _, m := range milestones {
			s.syncGroup(ctx, st, m.Title, github.MilestoneFilter(m.Number))
		}
		if s.opts.IncludeUnassigned {
			s.syncGroup(ctx, st, "(no milestone)", github.IssueFilter{Milestone: "none"})
		}
	}

	if s.opts.Bidirectional {
		s.Reverse(ctx, st, s.opts.SyncIssues)
	}

	if s.opts.SyncIssues && s.opts.MappingFile != "" && !s.opts.DryRun {
		doc := mapping.New(st.Source, st.Target, st.Issues, s.now())
		if err := mapping.Save(s.opts.MappingFile, doc); err != nil {
			s.log.Error("Error saving issue mappings: %v", err)
		} else {
			run.MappingFile = s.opts.MappingFile
			s.log.Info("Issue mappings saved to %s", s.opts.MappingFile)
		}
	}

	return s.finish(run, st), nil
}

// syncGroup lists the source issues matching filter and syncs them. A
// listing failure skips the group.
func (s *Syncer) syncGroup(ctx context.Context, st *State, title string, filter github.IssueFilter) {
	issues, err := s.remote.ListIssues(ctx, st.Source, filter)
	if err != nil {
		s.log.Error("Error fetching issues for milestone %q: %v", title, err)
		return
	}
	if len(issues) == 0 {
		return
	}
	s.log.Info("Milestone: %s (%d issues)", title, len(issues))
	s.SyncIssues(ctx, st, issues)
}

// loadPrior returns the issue mapping of an earlier run for the same pair,
// preferring the mapping file over Options.Prior.
func (s *Syncer) loadPrior() models.NumberMap {
	if s.opts.MappingFile != "" {
		doc, err := mapping.Load(s.opts.MappingFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			s.log.Warning("Ignoring unreadable mapping file: %v", err)
		case mapping.Matches(doc, s.opts.Source, s.opts.Target):
			prior, err := mapping.Numbers(doc)
			if err == nil {
				s.log.VerboseLog("Loaded %d prior issue mapping(s) from %s", len(prior), s.opts.MappingFile)
				return prior
			}
			s.log.Warning("Ignoring mapping file: %v", err)
		}
	}
	if s.opts.Prior != nil {
		return s.opts.Prior
	}
	return models.NumberMap{}
}

func (s *Syncer) finish(run *models.Run, st *State) *models.Run {
	run.MilestonesSynced = st.MilestonesSynced
	run.MilestonesTotal = st.MilestonesTotal
	run.IssuesSynced = st.IssuesSynced
	run.IssuesTotal = st.IssuesTotal
	run.PlaceholdersCreated = st.PlaceholdersCreated
	run.ReverseMilestones = st.ReverseMilestones
	run.ReverseIssues = st.ReverseIssues
	run.Milestones = st.Milestones
	run.Issues = st.Issues
	run.Anomalies = st.Anomalies
	run.FinishedAt = s.now()
	return run
}
