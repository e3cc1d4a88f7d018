package github

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"
)

// fakeMilestone and fakeIssue mirror the subset of the GitHub JSON the
// client reads and writes.
type fakeMilestone struct {
	Number      int        `json:"number"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state"`
	DueOn       *time.Time `json:"due_on,omitempty"`
}

type fakeLabel struct {
	Name string `json:"name"`
}

type fakeIssue struct {
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	Body        string         `json:"body,omitempty"`
	State       string         `json:"state"`
	Labels      []fakeLabel    `json:"labels"`
	Milestone   *fakeMilestone `json:"milestone,omitempty"`
	PullRequest *struct{}      `json:"pull_request,omitempty"`
}

// fakeGitHub is an in-memory GitHub serving one repository per owner/repo.
type fakeGitHub struct {
	mu         sync.Mutex
	milestones map[string][]*fakeMilestone
	issues     map[string][]*fakeIssue
	nextIssue  map[string]int

	// failStatus forces a status for requests matching "METHOD path".
	failStatus map[string]int
	requests   []string
}

func newFakeGitHub(t *testing.T) (*fakeGitHub, *Client) {
	t.Helper()
	f := &fakeGitHub{
		milestones: map[string][]*fakeMilestone{},
		issues:     map[string][]*fakeIssue{},
		nextIssue:  map[string]int{},
		failStatus: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/{owner}/{repo}/milestones", f.listMilestones)
	mux.HandleFunc("POST /repos/{owner}/{repo}/milestones", f.createMilestone)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/milestones/{number}", f.updateMilestone)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", f.listIssues)
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}", f.getIssue)
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues", f.createIssue)
	mux.HandleFunc("PATCH /repos/{owner}/{repo}/issues/{number}", f.updateIssue)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		key := r.Method + " " + r.URL.Path
		f.requests = append(f.requests, key)
		status, fail := f.failStatus[key]
		f.mu.Unlock()
		if fail {
			writeJSON(w, status, map[string]string{"message": "forced failure"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{Token: "test-token", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return f, c
}

func repoKey(r *http.Request) string {
	return r.PathValue("owner") + "/" + r.PathValue("repo")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pageBounds(r *http.Request, n int) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 1 {
		perPage = 30
	}
	start := (page - 1) * perPage
	if start > n {
		start = n
	}
	end := start + perPage
	if end > n {
		end = n
	}
	return start, end
}

func (f *fakeGitHub) addMilestone(repo string, m *fakeMilestone) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.milestones[repo] = append(f.milestones[repo], m)
}

func (f *fakeGitHub) addIssue(repo string, i *fakeIssue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i.State == "" {
		i.State = "open"
	}
	f.issues[repo] = append(f.issues[repo], i)
	if i.Number >= f.nextIssue[repo] {
		f.nextIssue[repo] = i.Number
	}
}

func (f *fakeGitHub) listMilestones(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.milestones[repoKey(r)]
	start, end := pageBounds(r, len(all))
	writeJSON(w, http.StatusOK, all[start:end])
}

func (f *fakeGitHub) createMilestone(w http.ResponseWriter, r *http.Request) {
	var in fakeMilestone
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repoKey(r)
	for _, m := range f.milestones[key] {
		if m.Title == in.Title {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"message": "Validation Failed",
				"errors":  []map[string]string{{"resource": "Milestone", "code": "already_exists", "field": "title"}},
			})
			return
		}
	}
	if in.State == "" {
		in.State = "open"
	}
	in.Number = len(f.milestones[key]) + 1
	f.milestones[key] = append(f.milestones[key], &in)
	writeJSON(w, http.StatusCreated, in)
}

func (f *fakeGitHub) updateMilestone(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.PathValue("number"))
	var in fakeMilestone
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.milestones[repoKey(r)] {
		if m.Number == n {
			if in.Title != "" {
				m.Title = in.Title
			}
			if in.Description != "" {
				m.Description = in.Description
			}
			if in.State != "" {
				m.State = in.State
			}
			if in.DueOn != nil {
				m.DueOn = in.DueOn
			}
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

func (f *fakeGitHub) listIssues(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()

	var matched []*fakeIssue
	for _, i := range f.issues[repoKey(r)] {
		switch ms := q.Get("milestone"); ms {
		case "", "*":
		case "none":
			if i.Milestone != nil {
				continue
			}
		default:
			n, _ := strconv.Atoi(ms)
			if i.Milestone == nil || i.Milestone.Number != n {
				continue
			}
		}
		matched = append(matched, i)
	}
	if q.Get("sort") == "created" && q.Get("direction") == "desc" {
		sort.Slice(matched, func(a, b int) bool { return matched[a].Number > matched[b].Number })
	}
	start, end := pageBounds(r, len(matched))
	writeJSON(w, http.StatusOK, matched[start:end])
}

func (f *fakeGitHub) findIssue(repo string, n int) *fakeIssue {
	for _, i := range f.issues[repo] {
		if i.Number == n {
			return i
		}
	}
	return nil
}

func (f *fakeGitHub) getIssue(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.PathValue("number"))
	f.mu.Lock()
	defer f.mu.Unlock()
	if i := f.findIssue(repoKey(r), n); i != nil {
		writeJSON(w, http.StatusOK, i)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
}

type issueBody struct {
	Title     *string         `json:"title"`
	Body      *string         `json:"body"`
	Labels    *[]string       `json:"labels"`
	Milestone json.RawMessage `json:"milestone"`
	State     *string         `json:"state"`
}

func (f *fakeGitHub) apply(repo string, i *fakeIssue, in issueBody) {
	if in.Title != nil {
		i.Title = *in.Title
	}
	if in.Body != nil {
		i.Body = *in.Body
	}
	if in.Labels != nil {
		i.Labels = nil
		for _, l := range *in.Labels {
			i.Labels = append(i.Labels, fakeLabel{Name: l})
		}
	}
	switch {
	case len(in.Milestone) == 0:
	case string(in.Milestone) == "null":
		i.Milestone = nil
	default:
		var n int
		_ = json.Unmarshal(in.Milestone, &n)
		i.Milestone = &fakeMilestone{Number: n}
		for _, m := range f.milestones[repo] {
			if m.Number == n {
				i.Milestone = m
			}
		}
	}
	if in.State != nil {
		i.State = *in.State
	}
}

func (f *fakeGitHub) createIssue(w http.ResponseWriter, r *http.Request) {
	var in issueBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repoKey(r)
	f.nextIssue[key]++
	i := &fakeIssue{Number: f.nextIssue[key], State: "open", Labels: []fakeLabel{}}
	in.State = nil
	f.apply(key, i, in)
	f.issues[key] = append(f.issues[key], i)
	writeJSON(w, http.StatusCreated, i)
}

func (f *fakeGitHub) updateIssue(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.PathValue("number"))
	var in issueBody
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := repoKey(r)
	i := f.findIssue(key, n)
	if i == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	f.apply(key, i, in)
	writeJSON(w, http.StatusOK, i)
}
