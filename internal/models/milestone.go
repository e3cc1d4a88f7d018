package models

import (
	"strconv"
	"time"
)

// MilestoneState represents whether a milestone is open or closed.
type MilestoneState string

const (
	MilestoneStateOpen   MilestoneState = "open"
	MilestoneStateClosed MilestoneState = "closed"
)

// Milestone represents a named, optionally time-boxed grouping of issues.
type Milestone struct {
	Number      int
	Title       string
	Description string
	DueOn       *time.Time
	State       MilestoneState
}

// MilestonePayload is the set of fields written when creating or updating a
// milestone. Empty Description and nil DueOn are omitted from the request.
type MilestonePayload struct {
	Title       string
	Description string
	DueOn       *time.Time
	State       MilestoneState
}

// Payload returns the write payload that copies m.
func (m *Milestone) Payload() MilestonePayload {
	state := m.State
	if state == "" {
		state = MilestoneStateOpen
	}
	return MilestonePayload{
		Title:       m.Title,
		Description: m.Description,
		DueOn:       m.DueOn,
		State:       state,
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
