package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/milesync/internal/mapping"
	"github.com/joescharf/milesync/internal/models"
	"github.com/joescharf/milesync/internal/store"
)

// Defaults are the repository pair and mapping file used when a tool call
// does not name them.
type Defaults struct {
	Source      string
	Target      string
	MappingFile string
}

// Server exposes milesync run history and issue mappings as MCP tools.
type Server struct {
	store    store.Store
	defaults Defaults
	version  string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, defaults Defaults, version string) *Server {
	return &Server{store: s, defaults: defaults, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("milesync", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listRunsTool())
	srv.AddTool(s.runDetailsTool())
	srv.AddTool(s.lookupIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

type runOut struct {
	ID                  string `json:"id"`
	Source              string `json:"source"`
	Target              string `json:"target"`
	Mode                string `json:"mode"`
	DryRun              bool   `json:"dry_run"`
	Bidirectional       bool   `json:"bidirectional"`
	MilestonesSynced    int    `json:"milestones_synced"`
	MilestonesTotal     int    `json:"milestones_total"`
	IssuesSynced        int    `json:"issues_synced"`
	IssuesTotal         int    `json:"issues_total"`
	PlaceholdersCreated int    `json:"placeholders_created"`
	StartedAt           string `json:"started_at"`
	FinishedAt          string `json:"finished_at"`
}

func toRunOut(r *models.Run) runOut {
	return runOut{
		ID:                  r.ID,
		Source:              r.Source,
		Target:              r.Target,
		Mode:                string(r.Mode),
		DryRun:              r.DryRun,
		Bidirectional:       r.Bidirectional,
		MilestonesSynced:    r.MilestonesSynced,
		MilestonesTotal:     r.MilestonesTotal,
		IssuesSynced:        r.IssuesSynced,
		IssuesTotal:         r.IssuesTotal,
		PlaceholdersCreated: r.PlaceholdersCreated,
		StartedAt:           r.StartedAt.Format(time.RFC3339),
		FinishedAt:          r.FinishedAt.Format(time.RFC3339),
	}
}

func jsonResult(v any, what string) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal %s: %v", what, err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// milesync_list_runs
func (s *Server) listRunsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("milesync_list_runs",
		mcp.WithDescription("List past sync runs, newest first. Returns a JSON array with id, source, target, mode, counters and timestamps."),
		mcp.WithString("source", mcp.Description("Filter by source repository (owner/name)")),
		mcp.WithString("target", mcp.Description("Filter by target repository (owner/name)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	)
	return tool, s.handleListRuns
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.RunListFilter{
		Source: request.GetString("source", ""),
		Target: request.GetString("target", ""),
		Limit:  request.GetInt("limit", 20),
	}
	runs, err := s.store.ListRuns(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list runs: %v", err)), nil
	}

	out := make([]runOut, len(runs))
	for i, r := range runs {
		out[i] = toRunOut(r)
	}
	return jsonResult(out, "runs")
}

// milesync_run_details
func (s *Server) runDetailsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("milesync_run_details",
		mcp.WithDescription("Get one sync run with its milestone and issue mappings and every numbering anomaly it reported. Accepts a unique run id prefix."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id or unique prefix")),
	)
	return tool, s.handleRunDetails
}

func (s *Server) handleRunDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: run_id"), nil
	}

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get run: %v", err)), nil
	}

	type anomalyOut struct {
		Kind         string `json:"kind"`
		SourceNumber int    `json:"source_number"`
		Intended     int    `json:"intended"`
		Actual       int    `json:"actual"`
		Message      string `json:"message"`
	}

	anomalies := make([]anomalyOut, len(run.Anomalies))
	for i, a := range run.Anomalies {
		anomalies[i] = anomalyOut{
			Kind:         string(a.Kind),
			SourceNumber: a.SourceNumber,
			Intended:     a.Intended,
			Actual:       a.Actual,
			Message:      a.Message,
		}
	}

	out := struct {
		runOut
		MappingFile string         `json:"mapping_file,omitempty"`
		Milestones  map[string]int `json:"milestone_mappings"`
		Issues      map[string]int `json:"issue_mappings"`
		Anomalies   []anomalyOut   `json:"anomalies"`
	}{
		runOut:      toRunOut(run),
		MappingFile: run.MappingFile,
		Milestones:  stringKeys(run.Milestones),
		Issues:      stringKeys(run.Issues),
		Anomalies:   anomalies,
	}
	return jsonResult(out, "run")
}

// milesync_lookup_issue
func (s *Server) lookupIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("milesync_lookup_issue",
		mcp.WithDescription("Resolve an issue number across a synced repository pair. Uses the mapping file when it covers the pair, otherwise the latest recorded run."),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Issue number to resolve")),
		mcp.WithBoolean("reverse", mcp.Description("Treat number as a target issue and return the source issue")),
		mcp.WithString("source", mcp.Description("Source repository (owner/name); defaults to the configured source")),
		mcp.WithString("target", mcp.Description("Target repository (owner/name); defaults to the configured target")),
	)
	return tool, s.handleLookupIssue
}

func (s *Server) handleLookupIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := request.GetInt("number", 0)
	if n <= 0 {
		return mcp.NewToolResultError("missing required parameter: number"), nil
	}
	reverse := request.GetBool("reverse", false)
	source := request.GetString("source", s.defaults.Source)
	target := request.GetString("target", s.defaults.Target)

	res, err := s.resolveMapping(ctx, source, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	m := res.issues
	if reverse {
		m = m.Inverse()
	}

	got, ok := m[n]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("issue #%d has no mapping between %s and %s", n, res.source, res.target)), nil
	}

	out := struct {
		Source  string `json:"source"`
		Target  string `json:"target"`
		Number  int    `json:"number"`
		Mapped  int    `json:"mapped"`
		Reverse bool   `json:"reverse"`
		From    string `json:"from"`
	}{res.source, res.target, n, got, reverse, res.from}
	return jsonResult(out, "lookup")
}

type resolved struct {
	source, target string
	issues         models.NumberMap
	from           string
}

// resolveMapping returns the issue mapping for the pair. An empty pair is
// taken from the mapping file.
func (s *Server) resolveMapping(ctx context.Context, source, target string) (*resolved, error) {
	if s.defaults.MappingFile != "" {
		doc, err := mapping.Load(s.defaults.MappingFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read mapping file: %w", err)
		case (source == "" && target == "") || (doc.Source == source && doc.Target == target):
			m, err := mapping.Numbers(doc)
			if err != nil {
				return nil, err
			}
			return &resolved{source: doc.Source, target: doc.Target, issues: m, from: s.defaults.MappingFile}, nil
		}
	}

	if source == "" || target == "" {
		return nil, fmt.Errorf("source and target are required when no mapping file covers them")
	}
	m, err := s.store.LatestIssueMapping(ctx, source, target)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping: %v", err)
	}
	return &resolved{source: source, target: target, issues: m, from: "history"}, nil
}

func stringKeys(m models.NumberMap) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[strconv.Itoa(k)] = v
	}
	return out
}
