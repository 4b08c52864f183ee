package prompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the stride-status MCP prompt.
// It instructs the AI to read and present the current session state.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("stride-status",
		mcp.WithPromptDescription(
			"Check your workflow sessions. Shows each session's workflow, "+
				"current node, status, and what to do next.",
		),
	)
}

// Handle processes the stride-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Workflow Session Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `wf_status` to check my workflow sessions.\n\n" +
						"Then:\n" +
						"1. Show me each session's workflow, current node, and status in a clear format\n" +
						"2. For the most recent active session, show the current goal and its acceptance criteria\n" +
						"3. Tell me exactly what I should do next\n" +
						"4. If a session is waiting on my approval, show me what needs approving",
				),
			},
		},
	}, nil
}
