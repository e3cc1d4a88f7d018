package syncer

import (
	"context"

	"github.com/joescharf/milesync/internal/models"
)

// DryRunRemote passes reads through to the wrapped Remote and simulates
// writes. Created records get the next simulated number so the placeholder
// protocol can be previewed.
type DryRunRemote struct {
	Remote
	log Logger

	highestIssue  map[models.Repo]int
	issues        map[models.Repo]map[int]*models.Issue
	nextMilestone map[models.Repo]int
}

// NewDryRunRemote wraps r.
func NewDryRunRemote(r Remote, log Logger) *DryRunRemote {
	return &DryRunRemote{
		Remote:        r,
		log:           log,
		highestIssue:  map[models.Repo]int{},
		issues:        map[models.Repo]map[int]*models.Issue{},
		nextMilestone: map[models.Repo]int{},
	}
}

func (d *DryRunRemote) CreateMilestone(ctx context.Context, repo models.Repo, p models.MilestonePayload) (*models.Milestone, error) {
	n, ok := d.nextMilestone[repo]
	if !ok {
		all, err := d.Remote.ListMilestones(ctx, repo)
		if err != nil {
			return nil, err
		}
		for _, m := range all {
			if m.Number > n {
				n = m.Number
			}
		}
	}
	n++
	d.nextMilestone[repo] = n
	d.log.DryRunMsg("Would create milestone %q in %s", p.Title, repo)
	return milestoneFromPayload(n, p), nil
}

func (d *DryRunRemote) UpdateMilestone(_ context.Context, repo models.Repo, number int, p models.MilestonePayload) (*models.Milestone, error) {
	d.log.DryRunMsg("Would update milestone #%d %q in %s", number, p.Title, repo)
	return milestoneFromPayload(number, p), nil
}

func (d *DryRunRemote) GetIssue(ctx context.Context, repo models.Repo, number int) (*models.Issue, error) {
	if i, ok := d.issues[repo][number]; ok {
		return i, nil
	}
	return d.Remote.GetIssue(ctx, repo, number)
}

func (d *DryRunRemote) HighestIssueNumber(ctx context.Context, repo models.Repo) (int, error) {
	actual, err := d.Remote.HighestIssueNumber(ctx, repo)
	if err != nil {
		return 0, err
	}
	return max(actual, d.highestIssue[repo]), nil
}

func (d *DryRunRemote) CreateIssue(ctx context.Context, repo models.Repo, p models.IssuePayload) (*models.Issue, error) {
	h, err := d.HighestIssueNumber(ctx, repo)
	if err != nil {
		return nil, err
	}
	n := h + 1
	d.highestIssue[repo] = n

	i := issueFromPayload(n, p)
	if d.issues[repo] == nil {
		d.issues[repo] = map[int]*models.Issue{}
	}
	d.issues[repo][n] = i
	d.log.DryRunMsg("Would create issue #%d %q in %s", n, p.Title, repo)
	return i, nil
}

func (d *DryRunRemote) UpdateIssue(_ context.Context, repo models.Repo, number int, p models.IssuePayload) (*models.Issue, error) {
	d.log.DryRunMsg("Would update issue #%d %q in %s", number, p.Title, repo)
	i := issueFromPayload(number, p)
	if _, ok := d.issues[repo][number]; ok {
		d.issues[repo][number] = i
	}
	return i, nil
}

func milestoneFromPayload(n int, p models.MilestonePayload) *models.Milestone {
	return &models.Milestone{
		Number:      n,
		Title:       p.Title,
		Description: p.Description,
		DueOn:       p.DueOn,
		State:       p.State,
	}
}

func issueFromPayload(n int, p models.IssuePayload) *models.Issue {
	state := p.State
	if state == "" {
		state = models.IssueStateOpen
	}
	return &models.Issue{
		Number:    n,
		Title:     p.Title,
		Body:      p.Body,
		Labels:    p.Labels,
		Milestone: p.Milestone,
		State:     state,
	}
}
