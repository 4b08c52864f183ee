// Package server wires all MCP components and creates the server instance.
//
// This is the composition root (DIP): it creates concrete implementations
// and injects them into the tools/prompts that depend on abstractions.
// No business logic lives here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lmoretti/stride/internal/config"
	"github.com/lmoretti/stride/internal/engine"
	"github.com/lmoretti/stride/internal/prompts"
	"github.com/lmoretti/stride/internal/resources"
	"github.com/lmoretti/stride/internal/session"
	"github.com/lmoretti/stride/internal/syncer"
	"github.com/lmoretti/stride/internal/tools"
	"github.com/lmoretti/stride/internal/vecstore"
	"github.com/lmoretti/stride/internal/workflow"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools and prompts
// registered. This is the single place where all dependencies are
// resolved.
//
// The returned cleanup function closes the vector store and must be
// called on shutdown (typically via defer). It is always non-nil and
// safe to call even if the cache never initialized.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	// --- Create shared dependencies ---

	if err := workflow.EnsureDefaults(cfg.WorkflowsDir); err != nil {
		return nil, noop, fmt.Errorf("materializing default workflows: %w", err)
	}
	loader := workflow.NewLoader(cfg.WorkflowsDir)

	store := session.NewStore()
	eng := engine.New(store, loader)

	provider := vecstore.NewProvider(vecstore.Config{
		Path:       cfg.Cache.Path,
		Metric:     vecstore.Metric(cfg.Cache.Metric),
		Dimensions: cfg.Cache.Dimensions,
		InMemory:   cfg.Cache.InMemory,
	})
	cleanup := func() {
		if err := provider.Close(); err != nil {
			log.Printf("WARNING: vector store close: %v", err)
		}
	}

	syncCfg := syncer.Config{
		Format:        cfg.Sync.Format,
		CacheEnabled:  cfg.Cache.Enabled,
		MinSimilarity: cfg.Cache.MinSimilarity,
	}
	if cfg.Sync.Enabled {
		syncCfg.Dir = cfg.Sync.Dir
	}
	sync := syncer.New(syncCfg, store, provider, loader)

	// Revive cached sessions before the server accepts tool calls.
	sync.RestoreOnStartup()

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"stride",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register workflow tools ---

	startTool := tools.NewStartTool(store, loader, sync)
	s.AddTool(startTool.Definition(), startTool.Handle)

	nextTool := tools.NewNextTool(store, loader, eng, sync)
	s.AddTool(nextTool.Definition(), nextTool.Handle)

	statusTool := tools.NewStatusTool(store, loader)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	sessionsTool := tools.NewSessionsTool(store)
	s.AddTool(sessionsTool.Definition(), sessionsTool.Handle)

	validateTool := tools.NewValidateTool(loader)
	s.AddTool(validateTool.Definition(), validateTool.Handle)

	searchTool := tools.NewSearchTool(sync)
	s.AddTool(searchTool.Definition(), searchTool.Handle)

	resumeTool := tools.NewResumeTool(store, sync)
	s.AddTool(resumeTool.Definition(), resumeTool.Handle)

	// --- Register resources ---

	res := resources.NewHandler(store, loader)
	s.AddResource(res.SessionsResource(), res.HandleSessions)
	s.AddResource(res.WorkflowsResource(), res.HandleWorkflows)

	// --- Register prompts ---

	startPrompt := prompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	statusPrompt := prompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	return s, cleanup, nil
}

func noop() {}

func serverInstructions() string {
	return `You have access to Stride, a workflow-guidance MCP server.

## WHEN TO USE Stride

Use Stride when the user asks for a non-trivial code change: a new
feature, a bug fix, a refactor with behavior changes, or anything where
skipping analysis would risk building the wrong thing. Start a session
before writing code and let the workflow pace the work.

You do NOT need Stride for questions, explanations, documentation, or
one-liner changes.

## THE PROTOCOL

1. Call wf_start with a task_description (and optionally a workflow
   name — 'development' for features, 'bugfix' for defect work).
2. Read the returned guidance: it shows the current node's goal, its
   acceptance criteria, and the allowed next steps.
3. Do the work the goal describes. Do not skip ahead.
4. Advance with wf_next, passing the session_id and a context payload:
   {"choose": "<next-node>", "criteria_evidence": {"<criterion>": "<evidence>"}}
   Every acceptance criterion of the current node needs an evidence
   entry describing how it was satisfied.
5. If a step requires approval, present the plan to the user, wait for
   an explicit yes, then resend with "user_approval": true. Never
   approve on the user's behalf.
6. Continue until the workflow reports completion.

## OTHER TOOLS

- wf_status: show a session's current state, or list sessions.
- wf_sessions: store statistics and cleanup of old finished sessions.
- wf_search: find similar past sessions by meaning before starting new
  work — prior sessions often contain reusable context.
- wf_resume: restore cached sessions after a server restart.
- wf_validate: check a workflow YAML file and get a full error list.

Progress is mirrored to the sessions directory as readable files; the
in-memory session is authoritative while the server runs.`
}
