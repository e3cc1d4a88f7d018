package models

import "strings"

// IssueState represents whether an issue is open or closed.
type IssueState string

const (
	IssueStateOpen   IssueState = "open"
	IssueStateClosed IssueState = "closed"
)

// PlaceholderTitlePrefix marks issues created only to consume a number.
const PlaceholderTitlePrefix = "[PLACEHOLDER]"

// PlaceholderBody is the body of every placeholder issue.
const PlaceholderBody = "This is a placeholder issue created to maintain issue numbering consistency."

// Issue represents an issue in a remote repository.
type Issue struct {
	Number      int
	Title       string
	Body        string
	Labels      []string
	Milestone   int // milestone number in the owning repository (0 = none)
	State       IssueState
	PullRequest bool // pull requests share the issue number space
}

// IsPlaceholder reports whether the issue was synthesized to fill a number slot.
func (i *Issue) IsPlaceholder() bool {
	return strings.HasPrefix(i.Title, PlaceholderTitlePrefix)
}

// IssuePayload is the set of fields written when creating or updating an
// issue. Milestone 0 means no milestone is sent.
type IssuePayload struct {
	Title     string
	Body      string
	Labels    []string
	Milestone int
	State     IssueState
}

// PayloadFor builds the write payload for src, pointing at the given
// milestone number in the destination repository.
func PayloadFor(src *Issue, milestone int) IssuePayload {
	state := src.State
	if state == "" {
		state = IssueStateOpen
	}
	labels := make([]string, len(src.Labels))
	copy(labels, src.Labels)
	return IssuePayload{
		Title:     src.Title,
		Body:      src.Body,
		Labels:    labels,
		Milestone: milestone,
		State:     state,
	}
}

// PlaceholderPayload returns the payload for the placeholder occupying number n.
func PlaceholderPayload(n int) IssuePayload {
	return IssuePayload{
		Title: PlaceholderTitle(n),
		Body:  PlaceholderBody,
	}
}

// PlaceholderTitle returns the synthetic title for number n.
func PlaceholderTitle(n int) string {
	return PlaceholderTitlePrefix + " Issue #" + itoa(n)
}
