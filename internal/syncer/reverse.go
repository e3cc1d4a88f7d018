package syncer

import (
	"context"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/models"
)

// Reverse copies records that exist only in the target back into the
// source. Counterparts already known through the mappings, or matched by
// title, are left untouched: the source wins. Placeholders and pull
// requests are never copied. All failures are per record.
func (s *Syncer) Reverse(ctx context.Context, st *State, includeIssues bool) {
	s.log.Info("Syncing from %s back to %s...", st.Target, st.Source)
	s.reverseMilestones(ctx, st)
	if includeIssues {
		s.reverseIssues(ctx, st)
	}
}

func (s *Syncer) reverseMilestones(ctx context.Context, st *State) {
	targets, err := s.remote.ListMilestones(ctx, st.Target)
	if err != nil {
		s.log.Error("Error listing milestones in %s: %v", st.Target, err)
		return
	}

	known := st.Milestones.Inverse()
	for _, tm := range targets {
		if _, ok := known[tm.Number]; ok {
			continue
		}

		existing, err := s.remote.FindMilestoneByTitle(ctx, st.Source, tm.Title)
		if err != nil {
			s.log.Error("Error looking up milestone %q in %s: %v", tm.Title, st.Source, err)
			continue
		}
		if existing != nil {
			st.Milestones[existing.Number] = tm.Number
			continue
		}

		created, err := s.remote.CreateMilestone(ctx, st.Source, tm.Payload())
		if err != nil {
			s.log.Error("Error creating milestone %q in %s: %v", tm.Title, st.Source, err)
			continue
		}
		st.Milestones[created.Number] = tm.Number
		st.ReverseMilestones++
		s.log.Success("Created milestone in source: %s (#%d)", tm.Title, created.Number)
	}
}

func (s *Syncer) reverseIssues(ctx context.Context, st *State) {
	targets, err := s.remote.ListIssues(ctx, st.Target, github.IssueFilter{})
	if err != nil {
		s.log.Error("Error listing issues in %s: %v", st.Target, err)
		return
	}

	known := st.Prior.Inverse()
	for dst, src := range st.Issues.Inverse() {
		known[dst] = src
	}
	milestones := st.Milestones.Inverse()
	for _, ti := range targets {
		if ti.PullRequest || ti.IsPlaceholder() {
			continue
		}
		if _, ok := known[ti.Number]; ok {
			continue
		}

		existing, err := s.remote.FindIssueByTitle(ctx, st.Source, ti.Title)
		if err != nil {
			s.log.Error("Error looking up issue %q in %s: %v", ti.Title, st.Source, err)
			continue
		}
		if existing != nil {
			if _, mapped := st.Issues[existing.Number]; !mapped {
				st.Issues[existing.Number] = ti.Number
			}
			continue
		}

		created, err := s.createIssue(ctx, st.Source, ti, models.PayloadFor(ti, milestones[ti.Milestone]))
		if err != nil {
			s.log.Error("Error creating issue %q in %s: %v", ti.Title, st.Source, err)
			continue
		}
		st.Issues[created.Number] = ti.Number
		st.ReverseIssues++
		s.log.Success("  Created issue in source: #%d - %s", created.Number, ti.Title)
	}
}
