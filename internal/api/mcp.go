package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/letterdesk/internal/classifier"
	"github.com/kalambet/letterdesk/internal/stats"
	"github.com/kalambet/letterdesk/internal/storage"
)

// MCPKnowledge abstracts the knowledge base for the MCP layer.
type MCPKnowledge interface {
	Retrieve(query string) string
}

// MCPClassifier abstracts letter classification for the MCP layer.
type MCPClassifier interface {
	Classify(ctx context.Context, text string, now time.Time) (classifier.Result, error)
	Fallback(now time.Time) classifier.Result
}

// MCPLetters reads letters without ownership checks.
type MCPLetters interface {
	Get(ctx context.Context, id int64) (storage.Letter, error)
}

// MCPStats returns the global statistics overview.
type MCPStats interface {
	Overview(ctx context.Context) (stats.Overview, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Knowledge  MCPKnowledge
	Classifier MCPClassifier
	Letters    MCPLetters
	Stats      MCPStats
	Now        func() time.Time // optional; defaults to time.Now
}

// NewMCPServer creates a read-only MCP server over the letterdesk services.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := server.NewMCPServer(
		"letterdesk",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("letterdesk: bank correspondence desk. Search the knowledge base, classify letter text and inspect letters and statistics."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("search_knowledge",
			mcp.WithDescription("Return the knowledge base documents whose topics match the query."),
			mcp.WithString("query", mcp.Description("Letter text or search phrase"), mcp.Required()),
		),
		mcpSearchKnowledge(deps),
	)

	s.AddTool(
		mcp.NewTool("classify_text",
			mcp.WithDescription("Classify a customer letter: category, specialization and reply deadline."),
			mcp.WithString("text", mcp.Description("Letter text"), mcp.Required()),
		),
		mcpClassifyText(deps),
	)

	s.AddTool(
		mcp.NewTool("get_letter",
			mcp.WithDescription("Fetch a letter by id, including its status and current draft."),
			mcp.WithNumber("id", mcp.Description("Letter id"), mcp.Required()),
		),
		mcpGetLetter(deps),
	)

	s.AddTool(
		mcp.NewTool("get_statistics",
			mcp.WithDescription("Return letter totals by status and by category."),
		),
		mcpGetStatistics(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"letterdesk://specializations",
			"Specializations",
			mcp.WithResourceDescription("Specialization vocabulary and letter categories"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSpecializations(),
	)

	return s
}

func mcpSearchKnowledge(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		text := deps.Knowledge.Retrieve(query)
		if text == "" {
			return mcpText("No knowledge documents available."), nil
		}
		return mcpText(text), nil
	}
}

func mcpClassifyText(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		now := deps.Now()
		res, err := deps.Classifier.Classify(ctx, text, now)
		fallback := false
		if err != nil {
			if !classifier.IsClassificationError(err) {
				return mcpError(fmt.Sprintf("classification failed: %v", err)), nil
			}
			res = deps.Classifier.Fallback(now)
			fallback = true
		}
		out, err := json.Marshal(struct {
			classifier.Result
			Fallback bool `json:"fallback"`
		}{res, fallback})
		if err != nil {
			return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpGetLetter(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := int64(req.GetInt("id", 0))
		if id <= 0 {
			return mcpError("id must be a positive integer"), nil
		}
		l, err := deps.Letters.Get(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("letter %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading letter: %v", err)), nil
		}
		out, err := json.Marshal(l)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding letter: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpGetStatistics(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		o, err := deps.Stats.Overview(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("loading statistics: %v", err)), nil
		}
		out, err := json.Marshal(o)
		if err != nil {
			return mcpError(fmt.Sprintf("encoding statistics: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpResourceSpecializations() server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		out, err := json.Marshal(map[string]any{
			"specializations": classifier.Specializations,
			"categories":      classifier.Categories,
		})
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(out),
			},
		}, nil
	}
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
