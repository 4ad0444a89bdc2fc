package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mirror/internal/profile"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profile *profile.Manager
}

const profileSchemaURI = "mirror://profile/schema"

// profileSchema documents the JSON block a generator must emit between the
// JSON-START and JSON-END markers.
const profileSchema = `{
  "type": "object",
  "required": ["authenticity_score", "attachment_style", "core_traits", "strengths", "weaknesses", "mirroring_warning"],
  "properties": {
    "authenticity_score": {"type": "integer", "minimum": 0, "maximum": 100},
    "attachment_style": {"enum": ["secure", "anxious", "avoidant", "disorganized"]},
    "core_traits": {"type": "array", "items": {"type": "string"}},
    "strengths": {"type": "array", "items": {"type": "string"}},
    "weaknesses": {"type": "array", "items": {"type": "string"}},
    "relational_patterns": {"type": "array", "items": {"type": "string"}},
    "cognitive_profile": {
      "type": "object",
      "properties": {
        "thinking_style": {"type": "string"},
        "decision_making": {"type": "string"},
        "blind_spots": {"type": "array", "items": {"type": "string"}}
      }
    },
    "affective_profile": {
      "type": "object",
      "properties": {
        "emotional_tone": {"type": "string"},
        "regulation": {"type": "string"},
        "triggers": {"type": "array", "items": {"type": "string"}}
      }
    },
    "mirroring_warning": {"type": "string"}
  }
}`

// NewMCPServer creates an MCP server with the profile tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mirror",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mirror: ingest personality analyses generated by an AI assistant and read them back."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("submit_profile",
			mcp.WithDescription("Parse generator output (narrative plus JSON between JSON-START and JSON-END) and store it as the user's profile."),
			mcp.WithString("user_id", mcp.Description("Owner of the profile"), mcp.Required()),
			mcp.WithString("content", mcp.Description("Raw generator output"), mcp.Required()),
		),
		mcpSubmitProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("parse_profile",
			mcp.WithDescription("Dry run: parse, repair and validate generator output without storing it."),
			mcp.WithString("content", mcp.Description("Raw generator output"), mcp.Required()),
		),
		mcpParseProfile(deps),
	)

	s.AddTool(
		mcp.NewTool("profile_summary",
			mcp.WithDescription("Return a one-paragraph summary of a stored profile."),
			mcp.WithString("user_id", mcp.Description("Owner of the profile"), mcp.Required()),
		),
		mcpProfileSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			profileSchemaURI,
			"Profile Schema",
			mcp.WithResourceDescription("JSON schema of the structured profile block"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchema,
	)

	return s
}

func mcpSubmitProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil || strings.TrimSpace(userID) == "" {
			return mcpError("user_id is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		sp, err := deps.Profile.Ingest(userID, content)
		if err != nil {
			return mcpError(profileErrorText(err)), nil
		}
		return mcpJSON(sp)
	}
}

func mcpParseProfile(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		content, err := req.RequireString("content")
		if err != nil {
			return mcpError("content is required"), nil
		}

		sp, err := deps.Profile.Parse(content)
		if err != nil {
			return mcpError(profileErrorText(err)), nil
		}
		return mcpJSON(sp)
	}
}

func mcpProfileSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		summary, err := deps.Profile.GetSummary(userID)
		if err != nil {
			return mcpError(profileErrorText(err)), nil
		}
		return mcpText(summary), nil
	}
}

func mcpResourceSchema(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     profileSchema,
		},
	}, nil
}

// profileErrorText flattens integrity reasons into one line per rule.
func profileErrorText(err error) string {
	var ie *profile.IntegrityError
	if errors.As(err, &ie) {
		return fmt.Sprintf("%v:\n- %s", profile.ErrIntegrityViolation, strings.Join(ie.Reasons, "\n- "))
	}
	return err.Error()
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
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
