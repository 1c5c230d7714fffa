package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
)

// Server adapts gravitask-d to the Model Context Protocol.
type Server struct {
	mcpServer *server.MCPServer
	apiClient *client.Client
}

// NewServer creates a new MCP server instance.
func NewServer(apiURL string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"gravitask",
			"1.0.0",
		),
		apiClient: client.NewClient(apiURL),
	}
	s.registerResources()
	s.registerTools()
	s.registerPrompts()
	return s
}

// SetToken forwards a bearer token to the underlying API client.
func (s *Server) SetToken(token string) {
	s.apiClient.SetToken(token)
}

// Serve starts the MCP server on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcpServer)
}

// --- Resources ---

func (s *Server) registerResources() {
	// gravitask://graph
	s.mcpServer.AddResource(mcp.NewResource(
		"gravitask://graph",
		"Task Graph",
		mcp.WithResourceDescription("The full task graph: tasks, weighted relations, and the current version"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadGraph)
}

// --- Tools ---

func (s *Server) registerTools() {
	// add_task
	s.mcpServer.AddTool(mcp.NewTool(
		"add_task",
		mcp.WithDescription("Capture a new task. Returns the minted task id."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short imperative summary of the work")),
		mcp.WithString("description", mcp.Description("Longer free-form detail")),
		mcp.WithString("category", mcp.Description("Grouping label (e.g. 'work', 'home')")),
		mcp.WithString("priority", mcp.Description("low, medium, high or critical (default medium)")),
		mcp.WithString("due_at", mcp.Description("Deadline in RFC3339 (e.g. 2026-03-01T17:00:00Z)")),
	), s.handleAddTask)

	// complete_task
	s.mcpServer.AddTool(mcp.NewTool(
		"complete_task",
		mcp.WithDescription("Mark a task done."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The task id")),
	), s.handleCompleteTask)

	// link_tasks
	s.mcpServer.AddTool(mcp.NewTool(
		"link_tasks",
		mcp.WithDescription("Relate two tasks so they attract each other on the canvas."),
		mcp.WithString("source", mcp.Required(), mcp.Description("First task id")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Second task id")),
		mcp.WithNumber("weight", mcp.Description("Relation strength in [0,1] (default 1)")),
	), s.handleLinkTasks)

	// delete_task
	s.mcpServer.AddTool(mcp.NewTool(
		"delete_task",
		mcp.WithDescription("Delete a task and every relation touching it."),
		mcp.WithString("id", mcp.Required(), mcp.Description("The task id")),
	), s.handleDeleteTask)
}

// --- Prompts ---

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(mcp.NewPrompt(
		"gravitask-aware",
		mcp.WithPromptDescription("Provides context about Gravitask concepts (tasks, relations, priorities)"),
	), s.handleGetPrompt)
}

// --- Handlers ---

func (s *Server) handleReadGraph(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	g, err := s.apiClient.FetchGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch graph: %w", err)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal graph: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleAddTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title := mcp.ParseString(request, "title", "")
	if title == "" {
		return mcp.NewToolResultError("title is required"), nil
	}

	priority := graph.Priority(mcp.ParseString(request, "priority", string(graph.PriorityMedium)))
	switch priority {
	case graph.PriorityLow, graph.PriorityMedium, graph.PriorityHigh, graph.PriorityCritical:
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority %q", priority)), nil
	}

	task := &graph.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: mcp.ParseString(request, "description", ""),
		Category:    mcp.ParseString(request, "category", ""),
		Status:      graph.StatusTodo,
		Priority:    priority,
	}
	if due := mcp.ParseString(request, "due_at", ""); due != "" {
		at, err := time.Parse(time.RFC3339, due)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("due_at must be RFC3339: %v", err)), nil
		}
		task.DueAt = &at
	}

	created, err := s.apiClient.CreateTask(ctx, task)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Created task %s: %s", created.ID, created.Title)), nil
}

func (s *Server) handleCompleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	done := graph.StatusDone
	task, err := s.apiClient.UpdateTask(ctx, id, client.TaskPatch{Status: &done})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task %s marked done: %s", task.ID, task.Title)), nil
}

func (s *Server) handleLinkTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source := mcp.ParseString(request, "source", "")
	target := mcp.ParseString(request, "target", "")
	if source == "" || target == "" {
		return mcp.NewToolResultError("source and target are required"), nil
	}

	weight := graph.ClampWeight(mcp.ParseFloat64(request, "weight", 1.0))
	rel := &graph.Relation{Source: source, Target: target, Weight: weight}
	if err := s.apiClient.CreateEdge(ctx, rel); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Linked %s and %s (weight %.2f)", source, target, weight)), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(request, "id", "")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	if err := s.apiClient.DeleteTask(ctx, id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("API error: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Deleted task %s", id)), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	name := request.Params.Name
	if name != "gravitask-aware" {
		return nil, fmt.Errorf("prompt not found: %s", name)
	}

	promptText := `You are interacting with Gravitask, a local-first task manager that
renders work as a force-directed graph.

Concepts:
- Task: a unit of work with a status (todo, in_progress, blocked, done)
  and a priority (low, medium, high, critical). Priority decides how
  much space the task claims on the canvas.
- Relation: a weighted link between two tasks. Weight runs 0 to 1;
  heavier relations pull their endpoints closer together.
- Graph version: increments on every change. Clients resync when it moves.

Use 'add_task' to capture new work, 'link_tasks' to record that two
tasks belong together, 'complete_task' when work is finished, and
'delete_task' to drop a task along with its relations. Read
'gravitask://graph' to see everything the daemon currently holds.
`

	return mcp.NewGetPromptResult(
		"gravitask-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(promptText)),
		},
	), nil
}
