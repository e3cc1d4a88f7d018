package syncer

import (
	"context"

	"github.com/joescharf/milesync/internal/models"
)

// fillPlaceholders creates placeholder issues for every number in
// [from, to], strictly ascending. Each failure is reported. It returns false
// only when the abort policy stops the chain.
func (s *Syncer) fillPlaceholders(ctx context.Context, st *State, forIssue, from, to int) bool {
	for n := from; n <= to; n++ {
		created, err := s.remote.CreateIssue(ctx, st.Target, models.PlaceholderPayload(n))
		if err != nil {
			s.anomaly(st, models.AnomalyPlaceholderFailed, forIssue, n, 0,
				"failed to create placeholder issue #%d: %v", n, err)
			if s.opts.PlaceholderPolicy == PlaceholderAbort {
				return false
			}
			continue
		}

		st.PlaceholdersCreated++
		if created.Number != n {
			s.anomaly(st, models.AnomalyNumberDrift, forIssue, n, created.Number,
				"placeholder for #%d was created as #%d", n, created.Number)
			continue
		}
		s.log.VerboseLog("Created placeholder #%d", n)
	}
	return true
}
