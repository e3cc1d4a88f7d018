package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/milesync/internal/mapping"
	"github.com/joescharf/milesync/internal/models"
)

func TestRun_NumberPreservingScenario(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 5, Title: "Fix bug", Milestone: 1})
	mappingFile := filepath.Join(t.TempDir(), ".github", "issue-mappings.json")

	s, _ := newTestSyncer(f, Options{SyncIssues: true, PreserveNumbers: true, MappingFile: mappingFile})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, f.repo(dstRepo).milestones, 1)
	assert.Equal(t, "v1", f.repo(dstRepo).milestones[0].Title)
	for n := 1; n <= 4; n++ {
		assert.True(t, f.issue(dstRepo, n).IsPlaceholder())
	}
	assert.Equal(t, "Fix bug", f.issue(dstRepo, 5).Title)
	assert.Equal(t, models.NumberMap{5: 5}, run.Issues)

	assert.Equal(t, models.SyncModePreserve, run.Mode)
	assert.Equal(t, 1, run.MilestonesSynced)
	assert.Equal(t, 1, run.MilestonesTotal)
	assert.Equal(t, 1, run.IssuesSynced)
	assert.Equal(t, 1, run.IssuesTotal)
	assert.Equal(t, 4, run.PlaceholdersCreated)
	assert.Empty(t, run.Anomalies)
	assert.Equal(t, mappingFile, run.MappingFile)

	// The saved file reproduces the in-memory mapping.
	doc, err := mapping.Load(mappingFile)
	require.NoError(t, err)
	assert.Equal(t, "acme/old", doc.Source)
	assert.Equal(t, "acme/new", doc.Target)
	got, err := mapping.Numbers(doc)
	require.NoError(t, err)
	assert.Equal(t, run.Issues, got)
}

func TestRun_NoMilestones(t *testing.T) {
	f := newFakeRemote()
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "orphan"})
	mappingFile := filepath.Join(t.TempDir(), "m.json")

	s, log := newTestSyncer(f, Options{SyncIssues: true, MappingFile: mappingFile})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, log.contains("warning", "No milestones found"))
	assert.Zero(t, run.IssuesTotal)
	assert.Empty(t, f.callsWithPrefix("ListIssues"))
	assert.Empty(t, f.callsWithPrefix("CreateIssue"))
	_, err = os.Stat(mappingFile)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_MilestoneListFailureIsFatal(t *testing.T) {
	f := newFakeRemote()
	f.listMilestonesErr = errors.New("status 500")

	s, _ := newTestSyncer(f, Options{SyncIssues: true})
	run, err := s.Run(context.Background())
	assert.Nil(t, run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list source milestones")
}

func TestRun_GroupsInMilestoneOrder(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addMilestone(srcRepo, &models.Milestone{Number: 2, Title: "v2"})
	// Issue 2 belongs to the first listed milestone, issue 1 to the second.
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "A", Milestone: 2})
	f.addIssue(srcRepo, &models.Issue{Number: 2, Title: "B", Milestone: 1})

	s, _ := newTestSyncer(f, Options{SyncIssues: true, PreserveNumbers: true})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	// #1 first becomes a placeholder, then the v2 group fills it in place.
	assert.Equal(t, models.NumberMap{1: 1, 2: 2}, run.Issues)
	assert.Equal(t, "A", f.issue(dstRepo, 1).Title)
	assert.Equal(t, 2, f.issue(dstRepo, 1).Milestone)
	assert.Equal(t, "B", f.issue(dstRepo, 2).Title)
	assert.Equal(t, 1, run.PlaceholdersCreated)
	assert.Empty(t, run.Anomalies)
}

func TestRun_FailedMilestoneIssuesGetNoMilestone(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "ok"})
	f.addMilestone(srcRepo, &models.Milestone{Number: 2, Title: "broken"})
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "A", Milestone: 1})
	f.addIssue(srcRepo, &models.Issue{Number: 2, Title: "B", Milestone: 2})
	f.createMilestoneErr = func(p models.MilestonePayload) error {
		if p.Title == "broken" {
			return errors.New("rejected")
		}
		return nil
	}

	s, _ := newTestSyncer(f, Options{SyncIssues: true})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.NumberMap{1: 1}, run.Milestones)
	assert.Equal(t, 1, run.MilestonesSynced)
	assert.Equal(t, 2, run.MilestonesTotal)
	assert.Equal(t, 2, run.IssuesSynced)

	b := f.issue(dstRepo, run.Issues[2])
	require.NotNil(t, b)
	assert.Zero(t, b.Milestone)
	assert.Equal(t, 1, f.issue(dstRepo, run.Issues[1]).Milestone)
}

func TestRun_IssueListFailureSkipsGroup(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addMilestone(srcRepo, &models.Milestone{Number: 2, Title: "v2"})
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "A", Milestone: 1})
	f.addIssue(srcRepo, &models.Issue{Number: 2, Title: "B", Milestone: 2})
	f.listIssuesErr["1"] = errors.New("timeout")

	s, log := newTestSyncer(f, Options{SyncIssues: true})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.IssuesTotal)
	assert.Contains(t, run.Issues, 2)
	assert.True(t, log.contains("error", `milestone "v1"`))
}

func TestRun_MilestonesOnly(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "A", Milestone: 1})
	mappingFile := filepath.Join(t.TempDir(), "m.json")

	s, _ := newTestSyncer(f, Options{MappingFile: mappingFile})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.SyncModeMilestones, run.Mode)
	assert.Equal(t, 1, run.MilestonesSynced)
	assert.Empty(t, f.callsWithPrefix("ListIssues"))
	assert.Empty(t, run.MappingFile)
}

func TestRun_IncludeUnassigned(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 1, Title: "A", Milestone: 1})
	f.addIssue(srcRepo, &models.Issue{Number: 2, Title: "loose"})

	s, _ := newTestSyncer(f, Options{SyncIssues: true, IncludeUnassigned: true})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.IssuesSynced)
	assert.Contains(t, f.callsWithPrefix("ListIssues"), "ListIssues acme/old none")
}

func TestRun_LoadsPriorFromMappingFile(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 3, Title: "A", Milestone: 1})
	f.addIssue(dstRepo, &models.Issue{Number: 1, Title: "A"})
	f.addIssue(dstRepo, &models.Issue{Number: 2, Title: "A (renamed)"})

	mappingFile := filepath.Join(t.TempDir(), "m.json")
	require.NoError(t, mapping.Save(mappingFile, mapping.New(srcRepo, dstRepo, models.NumberMap{3: 2}, time.Now())))

	s, _ := newTestSyncer(f, Options{SyncIssues: true, MappingFile: mappingFile})
	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.NumberMap{3: 2}, run.Issues, "the earlier mapping is kept")
	assert.Equal(t, "A", f.issue(dstRepo, 2).Title)
}

func TestRun_IgnoresMappingFileForOtherPair(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 3, Title: "A", Milestone: 1})
	f.addIssue(dstRepo, &models.Issue{Number: 1, Title: "A"})
	f.addIssue(dstRepo, &models.Issue{Number: 2, Title: "other"})

	mappingFile := filepath.Join(t.TempDir(), "m.json")
	other := models.Repo{Owner: "x", Name: "y"}
	require.NoError(t, mapping.Save(mappingFile, mapping.New(other, dstRepo, models.NumberMap{3: 2}, time.Now())))

	s, _ := newTestSyncer(f, Options{SyncIssues: true, MappingFile: mappingFile, Prior: models.NumberMap{}})
	run, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.NumberMap{3: 1}, run.Issues)
}

func TestRun_PriorFromOptions(t *testing.T) {
	f := newFakeRemote()
	f.addMilestone(srcRepo, &models.Milestone{Number: 1, Title: "v1"})
	f.addIssue(srcRepo, &models.Issue{Number: 3, Title: "A", Milestone: 1})
	f.addIssue(dstRepo, &models.Issue{Number: 7, Title: "B"})

	s, _ := newTestSyncer(f, Options{SyncIssues: true, Prior: models.NumberMap{3: 7}})
	run, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.NumberMap{3: 7}, run.Issues)
}

func TestParsePlaceholderPolicy(t *testing.T) {
	p, err := ParsePlaceholderPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderContinue, p)

	p, err = ParsePlaceholderPolicy("abort")
	require.NoError(t, err)
	assert.Equal(t, PlaceholderAbort, p)

	_, err = ParsePlaceholderPolicy("retry")
	assert.Error(t, err)
}
