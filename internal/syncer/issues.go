package syncer

import (
	"context"
	"sort"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/models"
)

// SyncIssues reconciles one group of source issues into st.Target. With
// number preservation the group is processed in ascending number order,
// otherwise in listing order. Pull requests are skipped. Returns the number
// of issues synced.
func (s *Syncer) SyncIssues(ctx context.Context, st *State, issues []*models.Issue) int {
	work := make([]*models.Issue, 0, len(issues))
	for _, i := range issues {
		if i.PullRequest {
			s.log.VerboseLog("Skipping pull request #%d", i.Number)
			continue
		}
		work = append(work, i)
	}
	if st.PreserveNumbers {
		sort.SliceStable(work, func(a, b int) bool { return work[a].Number < work[b].Number })
	}

	synced := 0
	for _, src := range work {
		st.IssuesTotal++
		milestone := s.resolveMilestone(st, src)

		var got *models.Issue
		var err error
		if st.PreserveNumbers {
			got, err = s.syncIssuePreserving(ctx, st, src, milestone)
		} else {
			got, err = s.syncIssueFree(ctx, st, src, milestone)
		}
		if err != nil {
			s.log.Error("Error syncing issue #%d %q: %v", src.Number, src.Title, err)
			continue
		}

		st.Issues[src.Number] = got.Number
		synced++
	}
	st.IssuesSynced += synced
	return synced
}

// resolveMilestone maps the source issue's milestone into the target. It
// returns 0 when the issue has none or its milestone failed to sync.
func (s *Syncer) resolveMilestone(st *State, src *models.Issue) int {
	if src.Milestone == 0 {
		return 0
	}
	n, ok := st.Milestones[src.Milestone]
	if !ok {
		s.log.VerboseLog("Issue #%d: milestone #%d was not synced, sending no milestone", src.Number, src.Milestone)
		return 0
	}
	return n
}

// syncIssueFree resolves the counterpart by prior mapping, then by title,
// and updates it or creates a new issue.
func (s *Syncer) syncIssueFree(ctx context.Context, st *State, src *models.Issue, milestone int) (*models.Issue, error) {
	payload := models.PayloadFor(src, milestone)

	existing, err := s.priorCounterpart(ctx, st, src)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		existing, err = s.remote.FindIssueByTitle(ctx, st.Target, src.Title)
		if err != nil {
			return nil, err
		}
	}
	if existing != nil {
		return s.updateIssue(ctx, st.Target, src, existing.Number, payload)
	}

	created, err := s.createIssue(ctx, st.Target, src, payload)
	if err == nil {
		s.log.Success("  Created issue: #%d - %s", created.Number, src.Title)
		return created, nil
	}
	if !github.IsConflict(err) {
		return nil, err
	}

	s.log.VerboseLog("Issue %q already exists, searching all issues", src.Title)
	existing, ferr := s.findIssue(ctx, st.Target, src.Title)
	if ferr != nil {
		return nil, ferr
	}
	if existing == nil {
		return nil, err
	}
	return s.updateIssue(ctx, st.Target, src, existing.Number, payload)
}

// priorCounterpart returns the target issue an earlier run mapped src to.
// A mapped target that no longer exists is reported as mapping drift.
func (s *Syncer) priorCounterpart(ctx context.Context, st *State, src *models.Issue) (*models.Issue, error) {
	prev, ok := st.Prior[src.Number]
	if !ok {
		return nil, nil
	}
	got, err := s.remote.GetIssue(ctx, st.Target, prev)
	if err != nil {
		return nil, err
	}
	if got == nil {
		s.anomaly(st, models.AnomalyMappingDrift, src.Number, prev, 0,
			"issue #%d was previously mapped to #%d, which no longer exists in %s", src.Number, prev, st.Target)
		return nil, nil
	}
	return got, nil
}

// syncIssuePreserving lands src on the same number in the target, creating
// placeholders for any gap below it. A counterpart mapped by an earlier run
// keeps its number even when it differs from src's.
func (s *Syncer) syncIssuePreserving(ctx context.Context, st *State, src *models.Issue, milestone int) (*models.Issue, error) {
	n := src.Number
	payload := models.PayloadFor(src, milestone)

	if prev, ok := st.Prior[n]; ok && prev != n {
		existing, err := s.priorCounterpart(ctx, st, src)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.anomaly(st, models.AnomalyMappingDrift, n, n, prev,
				"issue #%d stays on #%d from an earlier run instead of #%d", n, prev, n)
			return s.updateIssue(ctx, st.Target, src, prev, payload)
		}
	}

	existing, err := s.remote.GetIssue(ctx, st.Target, n)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.updateIssue(ctx, st.Target, src, n, payload)
	}

	highest, err := s.remote.HighestIssueNumber(ctx, st.Target)
	if err != nil {
		return nil, err
	}
	if highest >= n {
		s.anomaly(st, models.AnomalySlotOccupied, n, n, highest,
			"issue #%d is free but %s already reached #%d; the new issue will not keep its number", n, st.Target, highest)
	}

	if highest < n-1 {
		s.log.Info("  Creating placeholder issues to reach #%d...", n)
		if !s.fillPlaceholders(ctx, st, n, highest+1, n-1) {
			st.PreserveNumbers = false
			s.log.Warning("Number preservation aborted at issue #%d; remaining issues use free numbering", n)
			return s.syncIssueFree(ctx, st, src, milestone)
		}
	}

	created, err := s.createIssue(ctx, st.Target, src, payload)
	if err != nil {
		return nil, err
	}
	if created.Number != n {
		s.anomaly(st, models.AnomalyNumberDrift, n, n, created.Number,
			"issue #%d was created as #%d", n, created.Number)
	}
	s.log.Success("  Created issue: #%d - %s", created.Number, src.Title)
	return created, nil
}

// createIssue creates the counterpart of src in repo. An issue the remote
// created but could not finish (a failed close) is still returned so it gets
// mapped; the failure is logged.
func (s *Syncer) createIssue(ctx context.Context, repo models.Repo, src *models.Issue, payload models.IssuePayload) (*models.Issue, error) {
	created, err := s.remote.CreateIssue(ctx, repo, payload)
	if err != nil && created != nil {
		s.log.Error("Issue #%d was created as #%d in %s but not completed: %v", src.Number, created.Number, repo, err)
		return created, nil
	}
	return created, err
}

func (s *Syncer) updateIssue(ctx context.Context, target models.Repo, src *models.Issue, number int, payload models.IssuePayload) (*models.Issue, error) {
	got, err := s.remote.UpdateIssue(ctx, target, number, payload)
	if err != nil {
		return nil, err
	}
	s.log.Success("  Synced issue: #%d - %s", got.Number, src.Title)
	return got, nil
}

// findIssue scans every page for an exact title match.
func (s *Syncer) findIssue(ctx context.Context, repo models.Repo, title string) (*models.Issue, error) {
	all, err := s.remote.ListIssues(ctx, repo, github.IssueFilter{})
	if err != nil {
		return nil, err
	}
	for _, i := range all {
		if i.Title == title {
			return i, nil
		}
	}
	return nil, nil
}
