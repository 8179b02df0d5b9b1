// Package mcp exposes the query engine over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/thebtf/switchboard/internal/orchestrator"
	"github.com/thebtf/switchboard/pkg/models"
)

// Deps holds what the MCP tools operate on.
type Deps struct {
	Engine  *orchestrator.Orchestrator
	Version string
}

// NewServer creates an MCP server with the switchboard tools registered.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"switchboard",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithInstructions("switchboard answers free-text questions against a workspace of tables and pages, routing each question to the strategy that fits it."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("query_workspace",
			mcp.WithDescription("Answer a question against a workspace. The engine routes it to structured-data filtering, passage retrieval, aggregation, or action preparation and returns the rendered answer."),
			mcp.WithString("query", mcp.Description("The question to answer"), mcp.Required()),
			mcp.WithString("workspace_id", mcp.Description("Workspace UUID"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Acting user id, used for role checks and personalization")),
			mcp.WithBoolean("bypass_cache", mcp.Description("Skip the result cache for this request")),
		),
		mcpQueryWorkspace(deps),
	)

	s.AddTool(
		mcp.NewTool("workspace_overview",
			mcp.WithDescription("Summarize a workspace: tables with their columns and row counts, pages, and the acting user's role."),
			mcp.WithString("workspace_id", mcp.Description("Workspace UUID"), mcp.Required()),
			mcp.WithString("user_id", mcp.Description("Acting user id")),
		),
		mcpWorkspaceOverview(deps),
	)

	return s
}

func mcpQueryWorkspace(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}

		env := deps.Engine.ProcessQuery(ctx, &models.QueryRequest{
			Query:       query,
			WorkspaceID: workspaceID,
			UserID:      req.GetString("user_id", ""),
			Options: models.QueryOptions{
				BypassCache: req.GetBool("bypass_cache", false),
			},
		})

		text := renderEnvelope(env)
		if !env.Success {
			return mcpError(text), nil
		}
		return mcpText(text), nil
	}
}

func mcpWorkspaceOverview(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, err := req.RequireString("workspace_id")
		if err != nil {
			return mcpError("workspace_id is required"), nil
		}

		qctx, err := deps.Engine.GetContext(ctx, workspaceID, req.GetString("user_id", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("workspace overview failed: %v", err)), nil
		}

		type tableSummary struct {
			ID       string   `json:"id"`
			Name     string   `json:"name"`
			Columns  []string `json:"columns"`
			RowCount int      `json:"rowCount"`
		}
		type pageSummary struct {
			ID           string `json:"id"`
			Title        string `json:"title"`
			BlockCount   int    `json:"blockCount"`
			LastModified string `json:"lastModified"`
		}

		tables := make([]tableSummary, len(qctx.Tables))
		for i, tbl := range qctx.Tables {
			cols := make([]string, len(tbl.Columns))
			for j, col := range tbl.Columns {
				cols[j] = col.Name
			}
			tables[i] = tableSummary{ID: tbl.ID, Name: tbl.Name, Columns: cols, RowCount: tbl.RowCount}
		}

		pages := make([]pageSummary, len(qctx.Pages))
		for i, pg := range qctx.Pages {
			pages[i] = pageSummary{
				ID:           pg.ID,
				Title:        pg.Title,
				BlockCount:   pg.BlockCount,
				LastModified: pg.LastModified.UTC().Format(time.RFC3339),
			}
		}

		overview := struct {
			WorkspaceID string         `json:"workspaceId"`
			Role        models.Role    `json:"role,omitempty"`
			Tables      []tableSummary `json:"tables"`
			Pages       []pageSummary  `json:"pages"`
		}{
			WorkspaceID: qctx.WorkspaceID,
			Role:        qctx.User.Role,
			Tables:      tables,
			Pages:       pages,
		}

		b, err := json.Marshal(overview)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal overview: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// renderEnvelope flattens the block response into text an MCP client can
// hand to a model verbatim.
func renderEnvelope(env *models.Envelope) string {
	lines := make([]string, 0, len(env.Response.Blocks)+2)
	for _, b := range env.Response.Blocks {
		if text := renderBlock(b); text != "" {
			lines = append(lines, text)
		}
	}

	meta := env.Response.Metadata
	trailer := fmt.Sprintf("confidence %.2f", meta.Confidence)
	if len(meta.DataSources) > 0 {
		trailer += "; sources: " + strings.Join(meta.DataSources, ", ")
	}
	lines = append(lines, "", trailer)
	if len(meta.Suggestions) > 0 {
		lines = append(lines, "Try: "+strings.Join(meta.Suggestions, " | "))
	}
	return strings.Join(lines, "\n")
}

// renderBlock renders one block. Data-bearing blocks arrive with their
// in-process payload types because the envelope never crosses a JSON
// boundary on this path.
func renderBlock(b models.Block) string {
	switch b.Type {
	case models.BlockTable:
		if t, ok := b.Data.(models.TableResult); ok {
			return renderTable(t)
		}
	case models.BlockCitations:
		if cites, ok := b.Data.([]models.Citation); ok {
			return renderCitations(cites)
		}
	case models.BlockChart:
		if data, err := json.Marshal(b.Data); err == nil {
			return string(data)
		}
	}
	return b.Content
}

func renderTable(t models.TableResult) string {
	header := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col.Name
	}

	lines := []string{t.TableName, strings.Join(header, " | ")}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			if v, ok := row[col.Name]; ok {
				cells[i] = fmt.Sprintf("%v", v)
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	if t.Truncated {
		lines = append(lines, "(truncated)")
	}
	return strings.Join(lines, "\n")
}

func renderCitations(cites []models.Citation) string {
	parts := make([]string, len(cites))
	for i, c := range cites {
		parts[i] = fmt.Sprintf("%s (%.2f)", c.PassageID, c.Score)
	}
	return "Sources: " + strings.Join(parts, ", ")
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
