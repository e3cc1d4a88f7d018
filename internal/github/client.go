package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v72/github"

	"github.com/joescharf/milesync/internal/models"
)

const (
	// PageSize is the number of records requested per page.
	PageSize = 100
	// DefaultTimeout applies to every request when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second
)

// Config holds the settings for connecting to the remote API.
type Config struct {
	Token   string
	BaseURL string // empty for api.github.com
	Timeout time.Duration
}

// IssueFilter narrows an issue listing.
type IssueFilter struct {
	// Milestone is a milestone number, "none" for issues without a
	// milestone, or empty for all issues.
	Milestone string
}

// MilestoneFilter returns the filter for issues in milestone number n.
func MilestoneFilter(n int) IssueFilter {
	return IssueFilter{Milestone: strconv.Itoa(n)}
}

// Client reads and writes milestones and issues through the GitHub REST API.
// It keeps no state between calls; every lookup re-queries.
type Client struct {
	gh *gh.Client
}

// NewClient builds a Client. A non-empty BaseURL replaces api.github.com.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := gh.NewClient(&http.Client{Timeout: timeout})
	if cfg.Token != "" {
		c = c.WithAuthToken(cfg.Token)
	}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.BaseURL = u
	}
	return &Client{gh: c}, nil
}

// paginate fetches pages starting at 1 until a page comes back empty.
func paginate[T any](ctx context.Context, fetch func(ctx context.Context, page int) ([]T, error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		items, err := fetch(ctx, page)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return all, nil
		}
		all = append(all, items...)
	}
}

// --- Milestones ---

// ListMilestones returns every milestone (open and closed) in listing order.
func (c *Client) ListMilestones(ctx context.Context, repo models.Repo) ([]*models.Milestone, error) {
	return paginate(ctx, func(ctx context.Context, page int) ([]*models.Milestone, error) {
		raw, resp, err := c.gh.Issues.ListMilestones(ctx, repo.Owner, repo.Name, &gh.MilestoneListOptions{
			State:       "all",
			ListOptions: gh.ListOptions{Page: page, PerPage: PageSize},
		})
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("list milestones %s page %d", repo, page), resp, err)
		}
		return convertMilestones(raw), nil
	})
}

// FindMilestoneByTitle scans the first page of milestones for an exact
// title match. The first match wins; nil means absent.
func (c *Client) FindMilestoneByTitle(ctx context.Context, repo models.Repo, title string) (*models.Milestone, error) {
	raw, resp, err := c.gh.Issues.ListMilestones(ctx, repo.Owner, repo.Name, &gh.MilestoneListOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: PageSize},
	})
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("find milestone %q in %s", title, repo), resp, err)
	}
	for _, m := range raw {
		if m.GetTitle() == title {
			return convertMilestone(m), nil
		}
	}
	return nil, nil
}

// CreateMilestone creates a milestone. A duplicate title yields an error
// matching ErrConflict.
func (c *Client) CreateMilestone(ctx context.Context, repo models.Repo, p models.MilestonePayload) (*models.Milestone, error) {
	m, resp, err := c.gh.Issues.CreateMilestone(ctx, repo.Owner, repo.Name, milestoneRequest(p))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("create milestone %q in %s", p.Title, repo), resp, err)
	}
	return convertMilestone(m), nil
}

// UpdateMilestone patches milestone number in repo.
func (c *Client) UpdateMilestone(ctx context.Context, repo models.Repo, number int, p models.MilestonePayload) (*models.Milestone, error) {
	m, resp, err := c.gh.Issues.EditMilestone(ctx, repo.Owner, repo.Name, number, milestoneRequest(p))
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("update milestone #%d in %s", number, repo), resp, err)
	}
	return convertMilestone(m), nil
}

// --- Issues ---

// ListIssues returns every issue (open and closed) matching filter, in
// listing order. Pull requests are included and flagged.
func (c *Client) ListIssues(ctx context.Context, repo models.Repo, filter IssueFilter) ([]*models.Issue, error) {
	return paginate(ctx, func(ctx context.Context, page int) ([]*models.Issue, error) {
		raw, resp, err := c.gh.Issues.ListByRepo(ctx, repo.Owner, repo.Name, &gh.IssueListByRepoOptions{
			Milestone:   filter.Milestone,
			State:       "all",
			ListOptions: gh.ListOptions{Page: page, PerPage: PageSize},
		})
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("list issues %s page %d", repo, page), resp, err)
		}
		return convertIssues(raw), nil
	})
}

// FindIssueByTitle scans the first page of issues for an exact title match.
// The first match wins; nil means absent.
func (c *Client) FindIssueByTitle(ctx context.Context, repo models.Repo, title string) (*models.Issue, error) {
	raw, resp, err := c.gh.Issues.ListByRepo(ctx, repo.Owner, repo.Name, &gh.IssueListByRepoOptions{
		State:       "all",
		ListOptions: gh.ListOptions{PerPage: PageSize},
	})
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("find issue %q in %s", title, repo), resp, err)
	}
	for _, i := range raw {
		if i.GetTitle() == title {
			return convertIssue(i), nil
		}
	}
	return nil, nil
}

// GetIssue looks up an issue by number. A 404 is not an error: it returns
// (nil, nil).
func (c *Client) GetIssue(ctx context.Context, repo models.Repo, number int) (*models.Issue, error) {
	i, resp, err := c.gh.Issues.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		werr := wrapErr(fmt.Sprintf("get issue #%d in %s", number, repo), resp, err)
		if IsNotFound(werr) {
			return nil, nil
		}
		return nil, werr
	}
	return convertIssue(i), nil
}

// HighestIssueNumber returns the number of the most recently created issue
// or pull request, or 0 for an empty repository.
func (c *Client) HighestIssueNumber(ctx context.Context, repo models.Repo) (int, error) {
	raw, resp, err := c.gh.Issues.ListByRepo(ctx, repo.Owner, repo.Name, &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: gh.ListOptions{Page: 1, PerPage: 1},
	})
	if err != nil {
		return 0, wrapErr(fmt.Sprintf("highest issue number in %s", repo), resp, err)
	}
	if len(raw) == 0 {
		return 0, nil
	}
	return raw[0].GetNumber(), nil
}

// CreateIssue creates an issue. The remote assigns the number.
func (c *Client) CreateIssue(ctx context.Context, repo models.Repo, p models.IssuePayload) (*models.Issue, error) {
	req := issueRequest(p)
	req.State = nil
	i, resp, err := c.gh.Issues.Create(ctx, repo.Owner, repo.Name, req)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("create issue %q in %s", p.Title, repo), resp, err)
	}

	// New issues are always created open; apply a closed state afterwards.
	if p.State == models.IssueStateClosed && i.GetState() != string(models.IssueStateClosed) {
		closed, resp, err := c.gh.Issues.Edit(ctx, repo.Owner, repo.Name, i.GetNumber(), &gh.IssueRequest{
			State: gh.Ptr(string(models.IssueStateClosed)),
		})
		if err != nil {
			return convertIssue(i), wrapErr(fmt.Sprintf("close issue #%d in %s", i.GetNumber(), repo), resp, err)
		}
		i = closed
	}
	return convertIssue(i), nil
}

// UpdateIssue patches issue number in repo. The body is always sent, and a
// payload without a milestone clears the issue's milestone.
func (c *Client) UpdateIssue(ctx context.Context, repo models.Repo, number int, p models.IssuePayload) (*models.Issue, error) {
	req := issueRequest(p)
	req.Body = gh.Ptr(p.Body)
	i, resp, err := c.gh.Issues.Edit(ctx, repo.Owner, repo.Name, number, req)
	if err != nil {
		return nil, wrapErr(fmt.Sprintf("update issue #%d in %s", number, repo), resp, err)
	}

	if p.Milestone == 0 && i.GetMilestone() != nil {
		cleared, resp, err := c.gh.Issues.RemoveMilestone(ctx, repo.Owner, repo.Name, number)
		if err != nil {
			return nil, wrapErr(fmt.Sprintf("remove milestone from issue #%d in %s", number, repo), resp, err)
		}
		i = cleared
	}
	return convertIssue(i), nil
}

// --- conversion ---

func milestoneRequest(p models.MilestonePayload) *gh.Milestone {
	m := &gh.Milestone{Title: gh.Ptr(p.Title)}
	if p.Description != "" {
		m.Description = gh.Ptr(p.Description)
	}
	if p.DueOn != nil {
		m.DueOn = &gh.Timestamp{Time: *p.DueOn}
	}
	if p.State != "" {
		m.State = gh.Ptr(string(p.State))
	}
	return m
}

func issueRequest(p models.IssuePayload) *gh.IssueRequest {
	req := &gh.IssueRequest{Title: gh.Ptr(p.Title)}
	if p.Body != "" {
		req.Body = gh.Ptr(p.Body)
	}
	if p.Labels != nil {
		labels := p.Labels
		req.Labels = &labels
	}
	if p.Milestone > 0 {
		req.Milestone = gh.Ptr(p.Milestone)
	}
	if p.State != "" {
		req.State = gh.Ptr(string(p.State))
	}
	return req
}

func convertMilestones(raw []*gh.Milestone) []*models.Milestone {
	out := make([]*models.Milestone, 0, len(raw))
	for _, m := range raw {
		out = append(out, convertMilestone(m))
	}
	return out
}

func convertMilestone(m *gh.Milestone) *models.Milestone {
	out := &models.Milestone{
		Number:      m.GetNumber(),
		Title:       m.GetTitle(),
		Description: m.GetDescription(),
		State:       models.MilestoneState(m.GetState()),
	}
	if m.DueOn != nil {
		due := m.DueOn.Time
		out.DueOn = &due
	}
	return out
}

func convertIssues(raw []*gh.Issue) []*models.Issue {
	out := make([]*models.Issue, 0, len(raw))
	for _, i := range raw {
		out = append(out, convertIssue(i))
	}
	return out
}

func convertIssue(i *gh.Issue) *models.Issue {
	labels := make([]string, 0, len(i.Labels))
	for _, l := range i.Labels {
		labels = append(labels, l.GetName())
	}
	return &models.Issue{
		Number:      i.GetNumber(),
		Title:       i.GetTitle(),
		Body:        i.GetBody(),
		Labels:      labels,
		Milestone:   i.GetMilestone().GetNumber(),
		State:       models.IssueState(i.GetState()),
		PullRequest: i.IsPullRequest(),
	}
}
