// Package prompts implements MCP prompt handlers for workflow sessions.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the stride-start MCP prompt.
// It guides the AI to begin a workflow session for the user's task.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("stride-start",
		mcp.WithPromptDescription(
			"Start a guided workflow for a task. "+
				"The workflow walks through analyze → blueprint → construct → "+
				"validate, with acceptance criteria at each step.",
		),
		mcp.WithArgument("task",
			mcp.ArgumentDescription("What you want done"),
		),
		mcp.WithArgument("workflow",
			mcp.ArgumentDescription("Workflow to run: 'development' (default) or 'bugfix'"),
		),
	)
}

// Handle processes the stride-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	task := "my task"
	workflow := "development"
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["task"]; ok && v != "" {
			task = v
		}
		if v, ok := args["workflow"]; ok && v != "" {
			workflow = v
		}
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Start workflow: %s", task),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to work through this task with the %s workflow: %s\n\n"+
						"Please:\n"+
						"1. Run `wf_start` with workflow='%s' and my task as task_description\n"+
						"2. Follow the returned guidance: complete the current node's goal before moving on\n"+
						"3. When a node's acceptance criteria are met, call `wf_next` with the session_id and a "+
						"context payload naming the chosen next node and your evidence\n"+
						"4. If a step requires my approval, show me the plan and wait for my explicit confirmation "+
						"before sending user_approval\n"+
						"5. Keep going until the workflow reports completion",
					workflow, task, workflow,
				)),
			},
		},
	}, nil
}
