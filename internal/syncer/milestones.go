package syncer

import (
	"context"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/models"
)

// SyncMilestones creates or updates each source milestone in st.Target, in
// listing order, and records the number mapping for every success. A failed
// milestone is logged and skipped; it gets no mapping entry.
func (s *Syncer) SyncMilestones(ctx context.Context, st *State, milestones []*models.Milestone) int {
	synced := 0
	for _, m := range milestones {
		st.MilestonesTotal++

		got, created, err := s.syncMilestone(ctx, st.Target, m)
		if err != nil {
			s.log.Error("Error syncing milestone %q: %v", m.Title, err)
			continue
		}

		st.Milestones[m.Number] = got.Number
		synced++
		if created {
			s.log.Success("Created milestone: %s (#%d)", m.Title, got.Number)
		} else {
			s.log.Success("Synced milestone: %s (#%d)", m.Title, got.Number)
		}
	}
	st.MilestonesSynced += synced
	return synced
}

// syncMilestone returns the target milestone and whether it was created.
func (s *Syncer) syncMilestone(ctx context.Context, target models.Repo, m *models.Milestone) (*models.Milestone, bool, error) {
	payload := m.Payload()

	existing, err := s.remote.FindMilestoneByTitle(ctx, target, m.Title)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		got, err := s.remote.UpdateMilestone(ctx, target, existing.Number, payload)
		return got, false, err
	}

	got, err := s.remote.CreateMilestone(ctx, target, payload)
	if err == nil {
		return got, true, nil
	}
	if !github.IsConflict(err) {
		return nil, false, err
	}

	// The title exists beyond the first page, or appeared since the lookup.
	s.log.VerboseLog("Milestone %q already exists, searching all milestones", m.Title)
	existing, ferr := s.findMilestone(ctx, target, m.Title)
	if ferr != nil {
		return nil, false, ferr
	}
	if existing == nil {
		return nil, false, err
	}
	got, err = s.remote.UpdateMilestone(ctx, target, existing.Number, payload)
	return got, false, err
}

// findMilestone scans every page for an exact title match.
func (s *Syncer) findMilestone(ctx context.Context, repo models.Repo, title string) (*models.Milestone, error) {
	all, err := s.remote.ListMilestones(ctx, repo)
	if err != nil {
		return nil, err
	}
	for _, m := range all {
		if m.Title == title {
			return m, nil
		}
	}
	return nil, nil
}
