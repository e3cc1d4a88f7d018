package syncer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/joescharf/milesync/internal/github"
	"github.com/joescharf/milesync/internal/models"
)

var (
	srcRepo = models.Repo{Owner: "acme", Name: "old"}
	dstRepo = models.Repo{Owner: "acme", Name: "new"}
)

// fakeRepo holds the records of one repository.
type fakeRepo struct {
	milestones []*models.Milestone
	issues     []*models.Issue
	nextIssue  int
}

// fakeRemote implements Remote in memory with the numbering semantics of
// the real API: issue numbers are assigned sequentially and never reused.
type fakeRemote struct {
	repos map[models.Repo]*fakeRepo
	calls []string

	// Optional error injection.
	listMilestonesErr  error
	listIssuesErr      map[string]error // keyed by milestone filter
	createIssueErr     func(p models.IssuePayload) error
	createMilestoneErr func(p models.MilestonePayload) error
	updateMilestoneErr error
	beforeCreateIssue  func(r *fakeRepo)
	closeIssueErr      error // a closed issue is created open and returned with this error
	titleScanLimit     int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		repos:          map[models.Repo]*fakeRepo{},
		listIssuesErr:  map[string]error{},
		titleScanLimit: github.PageSize,
	}
}

func (f *fakeRemote) repo(r models.Repo) *fakeRepo {
	if f.repos[r] == nil {
		f.repos[r] = &fakeRepo{}
	}
	return f.repos[r]
}

func (f *fakeRemote) addMilestone(r models.Repo, m *models.Milestone) {
	if m.State == "" {
		m.State = models.MilestoneStateOpen
	}
	f.repo(r).milestones = append(f.repo(r).milestones, m)
}

func (f *fakeRemote) addIssue(r models.Repo, i *models.Issue) {
	if i.State == "" {
		i.State = models.IssueStateOpen
	}
	fr := f.repo(r)
	fr.issues = append(fr.issues, i)
	if i.Number > fr.nextIssue {
		fr.nextIssue = i.Number
	}
}

func (f *fakeRemote) issue(r models.Repo, n int) *models.Issue {
	for _, i := range f.repo(r).issues {
		if i.Number == n {
			return i
		}
	}
	return nil
}

func (f *fakeRemote) record(format string, a ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, a...))
}

func (f *fakeRemote) callsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func conflict(op string) error {
	return &github.TransportError{Op: op, StatusCode: 422, Body: "already_exists"}
}

func (f *fakeRemote) ListMilestones(_ context.Context, r models.Repo) ([]*models.Milestone, error) {
	f.record("ListMilestones %s", r)
	if f.listMilestonesErr != nil {
		return nil, f.listMilestonesErr
	}
	out := make([]*models.Milestone, len(f.repo(r).milestones))
	copy(out, f.repo(r).milestones)
	return out, nil
}

func (f *fakeRemote) FindMilestoneByTitle(_ context.Context, r models.Repo, title string) (*models.Milestone, error) {
	f.record("FindMilestoneByTitle %s %s", r, title)
	for i, m := range f.repo(r).milestones {
		if i >= f.titleScanLimit {
			break
		}
		if m.Title == title {
			return m, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) CreateMilestone(_ context.Context, r models.Repo, p models.MilestonePayload) (*models.Milestone, error) {
	f.record("CreateMilestone %s %s", r, p.Title)
	if f.createMilestoneErr != nil {
		if err := f.createMilestoneErr(p); err != nil {
			return nil, err
		}
	}
	for _, m := range f.repo(r).milestones {
		if m.Title == p.Title {
			return nil, conflict("create milestone")
		}
	}
	m := &models.Milestone{
		Number:      len(f.repo(r).milestones) + 1,
		Title:       p.Title,
		Description: p.Description,
		DueOn:       p.DueOn,
		State:       p.State,
	}
	f.repo(r).milestones = append(f.repo(r).milestones, m)
	return m, nil
}

func (f *fakeRemote) UpdateMilestone(_ context.Context, r models.Repo, number int, p models.MilestonePayload) (*models.Milestone, error) {
	f.record("UpdateMilestone %s #%d", r, number)
	if f.updateMilestoneErr != nil {
		return nil, f.updateMilestoneErr
	}
	for _, m := range f.repo(r).milestones {
		if m.Number == number {
			m.Title = p.Title
			if p.Description != "" {
				m.Description = p.Description
			}
			if p.DueOn != nil {
				m.DueOn = p.DueOn
			}
			m.State = p.State
			return m, nil
		}
	}
	return nil, &github.TransportError{Op: "update milestone", StatusCode: 404}
}

func (f *fakeRemote) ListIssues(_ context.Context, r models.Repo, filter github.IssueFilter) ([]*models.Issue, error) {
	f.record("ListIssues %s %s", r, filter.Milestone)
	if err := f.listIssuesErr[filter.Milestone]; err != nil {
		return nil, err
	}
	var out []*models.Issue
	for _, i := range f.repo(r).issues {
		switch filter.Milestone {
		case "":
		case "none":
			if i.Milestone != 0 {
				continue
			}
		default:
			if strconv.Itoa(i.Milestone) != filter.Milestone {
				continue
			}
		}
		out = append(out, i)
	}
	return out, nil
}

func (f *fakeRemote) FindIssueByTitle(_ context.Context, r models.Repo, title string) (*models.Issue, error) {
	f.record("FindIssueByTitle %s %s", r, title)
	for idx, i := range f.repo(r).issues {
		if idx >= f.titleScanLimit {
			break
		}
		if i.Title == title {
			return i, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) GetIssue(_ context.Context, r models.Repo, number int) (*models.Issue, error) {
	f.record("GetIssue %s #%d", r, number)
	return f.issue(r, number), nil
}

func (f *fakeRemote) HighestIssueNumber(_ context.Context, r models.Repo) (int, error) {
	f.record("HighestIssueNumber %s", r)
	return f.repo(r).nextIssue, nil
}

func (f *fakeRemote) CreateIssue(_ context.Context, r models.Repo, p models.IssuePayload) (*models.Issue, error) {
	f.record("CreateIssue %s %s", r, p.Title)
	if f.createIssueErr != nil {
		if err := f.createIssueErr(p); err != nil {
			return nil, err
		}
	}
	fr := f.repo(r)
	if f.beforeCreateIssue != nil {
		f.beforeCreateIssue(fr)
	}
	fr.nextIssue++
	i := &models.Issue{
		Number:    fr.nextIssue,
		Title:     p.Title,
		Body:      p.Body,
		Labels:    p.Labels,
		Milestone: p.Milestone,
		State:     models.IssueStateOpen,
	}
	if p.State != "" {
		i.State = p.State
	}
	fr.issues = append(fr.issues, i)
	if p.State == models.IssueStateClosed && f.closeIssueErr != nil {
		i.State = models.IssueStateOpen
		return i, f.closeIssueErr
	}
	return i, nil
}

func (f *fakeRemote) UpdateIssue(_ context.Context, r models.Repo, number int, p models.IssuePayload) (*models.Issue, error) {
	f.record("UpdateIssue %s #%d", r, number)
	i := f.issue(r, number)
	if i == nil {
		return nil, &github.TransportError{Op: "update issue", StatusCode: 404}
	}
	i.Title = p.Title
	i.Body = p.Body
	if p.Labels != nil {
		i.Labels = p.Labels
	}
	i.Milestone = p.Milestone
	if p.State != "" {
		i.State = p.State
	}
	return i, nil
}

// testLogger records log lines by level.
type testLogger struct {
	lines []string
}

func (l *testLogger) add(level, format string, a ...any) {
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, a...))
}

func (l *testLogger) Info(format string, a ...any)       { l.add("info", format, a...) }
func (l *testLogger) Success(format string, a ...any)    { l.add("success", format, a...) }
func (l *testLogger) Warning(format string, a ...any)    { l.add("warning", format, a...) }
func (l *testLogger) Error(format string, a ...any)      { l.add("error", format, a...) }
func (l *testLogger) VerboseLog(format string, a ...any) { l.add("verbose", format, a...) }
func (l *testLogger) DryRunMsg(format string, a ...any)  { l.add("dryrun", format, a...) }

func (l *testLogger) contains(level, substr string) bool {
	for _, line := range l.lines {
		if strings.HasPrefix(line, level+": ") && strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func newTestSyncer(f *fakeRemote, opts Options) (*Syncer, *testLogger) {
	log := &testLogger{}
	if opts.Source.IsZero() {
		opts.Source = srcRepo
	}
	if opts.Target.IsZero() {
		opts.Target = dstRepo
	}
	return New(f, log, opts), log
}

func anomalyKinds(as []models.Anomaly) []models.AnomalyKind {
	out := make([]models.AnomalyKind, 0, len(as))
	for _, a := range as {
		out = append(out, a.Kind)
	}
	return out
}
