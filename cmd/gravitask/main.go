// Package main provides the gravitask CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gravitask/gravitask/pkg/client"
	"github.com/gravitask/gravitask/pkg/graph"
	"github.com/gravitask/gravitask/pkg/mcp"
)

// Version is the current gravitask CLI version.
var Version = "1.0.0"

var (
	apiURL   string
	apiToken string
)

var rootCmd = &cobra.Command{
	Use:     "gravitask",
	Short:   "Gravitask - tasks with gravity",
	Long:    `Gravitask manages a task graph served by gravitask-d: tasks are nodes, dependencies are weighted edges, and the daemon lays them out with a force simulation.`,
	Version: Version,

	SilenceUsage: true,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Task commands",
}

var (
	taskAddPriority    string
	taskAddCategory    string
	taskAddTags        []string
	taskAddDue         string
	taskAddDescription string
)

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Long: `Create a task on the daemon. Every word after 'add' joins the title.

Examples:
  gravitask task add Ship the release
  gravitask task add Fix login --priority critical --tag auth --tag bug
  gravitask task add Write docs --due 2026-09-01 --category writing`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTaskAdd,
}

var (
	taskListStatus string
	taskListJSON   bool
)

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Long:  "Mark a task done. The id may be a unique prefix or an exact title.",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task and its edges",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

var edgeCmd = &cobra.Command{
	Use:   "edge",
	Short: "Edge commands",
}

var edgeAddWeight float64

var edgeAddCmd = &cobra.Command{
	Use:   "add <source> <target>",
	Short: "Link two tasks",
	Args:  cobra.ExactArgs(2),
	RunE:  runEdgeAdd,
}

var edgeRmCmd = &cobra.Command{
	Use:   "rm <source> <target>",
	Short: "Unlink two tasks",
	Args:  cobra.ExactArgs(2),
	RunE:  runEdgeRm,
}

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Import a JSON seed document into the daemon",
	Long: `Import tasks and edges from a JSON seed document:

  {"tasks": [{"id": "plan", "title": "Plan the work"}, ...],
   "edges": [{"source": "plan", "target": "ship", "weight": 0.8}, ...]}

Missing fields get defaults, duplicate ids collapse to the first, and
edges pointing at unknown tasks are dropped before anything is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeed,
}

var (
	layoutWidth  float64
	layoutHeight float64
	layoutMode   string
	layoutJSON   bool
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Compute a layout for the daemon's graph",
	RunE:  runLayout,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health",
	RunE:  runStatus,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the task graph over the Model Context Protocol on stdio",
	RunE:  runMCP,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", envOrDefault("GRAVITASK_API", "http://127.0.0.1:8780"), "daemon endpoint")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", envOrDefault("GRAVITASK_TOKEN", ""), "bearer token for the daemon")

	taskAddCmd.Flags().StringVar(&taskAddPriority, "priority", "medium", "Priority: low, medium, high, critical")
	taskAddCmd.Flags().StringVar(&taskAddCategory, "category", "", "Category label")
	taskAddCmd.Flags().StringArrayVar(&taskAddTags, "tag", nil, "Tag (repeatable)")
	taskAddCmd.Flags().StringVar(&taskAddDue, "due", "", "Due date, YYYY-MM-DD or RFC 3339")
	taskAddCmd.Flags().StringVar(&taskAddDescription, "description", "", "Longer description")
	taskListCmd.Flags().StringVar(&taskListStatus, "status", "", "Filter: todo, in_progress, blocked, done")
	taskListCmd.Flags().BoolVar(&taskListJSON, "json", false, "Print tasks as JSON")
	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRmCmd)
	rootCmd.AddCommand(taskCmd)

	edgeAddCmd.Flags().Float64Var(&edgeAddWeight, "weight", 1.0, "Edge weight in [0,1]; heavier pulls closer")
	edgeCmd.AddCommand(edgeAddCmd)
	edgeCmd.AddCommand(edgeRmCmd)
	rootCmd.AddCommand(edgeCmd)

	layoutCmd.Flags().Float64Var(&layoutWidth, "width", 800, "Canvas width")
	layoutCmd.Flags().Float64Var(&layoutHeight, "height", 600, "Canvas height")
	layoutCmd.Flags().StringVar(&layoutMode, "mode", "", "Layout mode: pca (default) or force")
	layoutCmd.Flags().BoolVar(&layoutJSON, "json", false, "Print the layout as JSON")

	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *client.Client {
	c := client.NewClient(apiURL)
	if apiToken != "" {
		c.SetToken(apiToken)
	}
	return c
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	priority, err := parsePriority(taskAddPriority)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	t := &graph.Task{
		ID:          uuid.NewString(),
		Title:       strings.Join(args, " "),
		Description: taskAddDescription,
		Category:    taskAddCategory,
		Status:      graph.StatusTodo,
		Priority:    priority,
		Tags:        taskAddTags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if taskAddDue != "" {
		due, err := parseDue(taskAddDue)
		if err != nil {
			return err
		}
		t.DueAt = &due
	}

	created, err := newClient().CreateTask(context.Background(), t)
	if err != nil {
		return fmt.Errorf("creating task: %w", err)
	}
	fmt.Printf("created %s  %s\n", shortID(created.ID), created.Title)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	var filter graph.Status
	if taskListStatus != "" {
		s, err := parseStatus(taskListStatus)
		if err != nil {
			return err
		}
		filter = s
	}

	resp, err := newClient().FetchGraph(context.Background())
	if err != nil {
		return fmt.Errorf("fetching graph: %w", err)
	}

	tasks := resp.Tasks
	if filter != "" {
		kept := tasks[:0]
		for _, t := range tasks {
			if t.Status == filter {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}

	if taskListJSON {
		out, err := json.MarshalIndent(tasks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(tasks) == 0 {
		fmt.Println("no tasks")
		return nil
	}
	for _, t := range tasks {
		line := fmt.Sprintf("%-12s %-11s %-8s %s", shortID(t.ID), t.Status, t.Priority, t.Title)
		if t.DueAt != nil {
			line += "  (due " + t.DueAt.Format("2006-01-02") + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%d tasks · %d edges · graph v%d\n", len(tasks), len(resp.Edges), resp.Version)
	return nil
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := newClient()

	t, err := resolveTask(ctx, c, args[0])
	if err != nil {
		return err
	}
	if t.Status == graph.StatusDone {
		fmt.Printf("%s is already done\n", t.Title)
		return nil
	}

	done := graph.StatusDone
	now := time.Now().UTC()
	if _, err := c.UpdateTask(ctx, t.ID, client.TaskPatch{Status: &done, UpdatedAt: &now}); err != nil {
		return fmt.Errorf("updating task: %w", err)
	}
	fmt.Printf("done %s  %s\n", shortID(t.ID), t.Title)
	return nil
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := newClient()

	t, err := resolveTask(ctx, c, args[0])
	if err != nil {
		return err
	}
	if err := c.DeleteTask(ctx, t.ID); err != nil {
		return fmt.Errorf("deleting task: %w", err)
	}
	fmt.Printf("deleted %s  %s\n", shortID(t.ID), t.Title)
	return nil
}

func runEdgeAdd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := newClient()

	source, err := resolveTask(ctx, c, args[0])
	if err != nil {
		return err
	}
	target, err := resolveTask(ctx, c, args[1])
	if err != nil {
		return err
	}
	if source.ID == target.ID {
		return fmt.Errorf("cannot link %q to itself", source.Title)
	}

	rel := &graph.Relation{Source: source.ID, Target: target.ID, Weight: graph.ClampWeight(edgeAddWeight)}
	if err := c.CreateEdge(ctx, rel); err != nil {
		return fmt.Errorf("creating edge: %w", err)
	}
	fmt.Printf("linked %s to %s (weight %.2f)\n", source.Title, target.Title, rel.Weight)
	return nil
}

func runEdgeRm(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := newClient()

	source, err := resolveTask(ctx, c, args[0])
	if err != nil {
		return err
	}
	target, err := resolveTask(ctx, c, args[1])
	if err != nil {
		return err
	}
	if err := c.DeleteEdge(ctx, source.ID, target.ID); err != nil {
		return fmt.Errorf("deleting edge: %w", err)
	}
	fmt.Printf("unlinked %s from %s\n", source.Title, target.Title)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading seed: %w", err)
	}
	seed, err := graph.ParseSeed(data)
	if err != nil {
		return err
	}
	if len(seed.Tasks) == 0 {
		return fmt.Errorf("seed %s holds no tasks", args[0])
	}

	ctx := context.Background()
	c := newClient()
	for _, t := range seed.Tasks {
		if _, err := c.CreateTask(ctx, t); err != nil {
			return fmt.Errorf("seeding task %q: %w", t.ID, err)
		}
	}
	for _, e := range seed.Edges {
		if err := c.CreateEdge(ctx, e); err != nil {
			return fmt.Errorf("seeding edge %s-%s: %w", e.Source, e.Target, err)
		}
	}
	fmt.Printf("seeded %d tasks and %d edges from %s\n", len(seed.Tasks), len(seed.Edges), args[0])
	return nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	resp, err := newClient().ComputeLayout(context.Background(), client.LayoutRequest{
		Mode:   layoutMode,
		Width:  layoutWidth,
		Height: layoutHeight,
	})
	if err != nil {
		return fmt.Errorf("computing layout: %w", err)
	}

	if layoutJSON {
		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	ids := make([]string, 0, len(resp.Positions))
	for id := range resp.Positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := resp.Positions[id]
		fmt.Printf("%-14s %8.1f %8.1f\n", shortID(id), p.X, p.Y)
	}

	summary := fmt.Sprintf("\n%s layout, %d tasks", resp.Mode, len(resp.Positions))
	if resp.Ticks > 0 {
		summary += fmt.Sprintf(", %d ticks", resp.Ticks)
	}
	if resp.Cached {
		summary += " (cached)"
	}
	fmt.Println(summary)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := newClient().Ping(context.Background())
	if err != nil {
		if client.IsUnreachable(err) {
			return fmt.Errorf("daemon unreachable at %s (is gravitask-d running?)", apiURL)
		}
		return fmt.Errorf("pinging daemon: %w", err)
	}
	fmt.Printf("daemon %s at %s\nversion %s · %d tasks\n", st.Status, apiURL, st.Version, st.Tasks)
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	s := mcp.NewServer(apiURL)
	if apiToken != "" {
		s.SetToken(apiToken)
	}
	return s.Serve()
}

// resolveTask finds one task by exact id, unique id prefix, or exact
// title (case-insensitive), in that order.
func resolveTask(ctx context.Context, c *client.Client, ref string) (*graph.Task, error) {
	resp, err := c.FetchGraph(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching graph: %w", err)
	}

	var prefix []*graph.Task
	var titled []*graph.Task
	for _, t := range resp.Tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			prefix = append(prefix, t)
		}
		if strings.EqualFold(t.Title, ref) {
			titled = append(titled, t)
		}
	}

	switch {
	case len(prefix) == 1:
		return prefix[0], nil
	case len(prefix) > 1:
		return nil, fmt.Errorf("id prefix %q is ambiguous (%d matches)", ref, len(prefix))
	case len(titled) == 1:
		return titled[0], nil
	case len(titled) > 1:
		return nil, fmt.Errorf("title %q is ambiguous (%d matches)", ref, len(titled))
	}
	return nil, fmt.Errorf("no task matches %q", ref)
}

func parsePriority(s string) (graph.Priority, error) {
	switch graph.Priority(strings.ToLower(s)) {
	case graph.PriorityLow:
		return graph.PriorityLow, nil
	case graph.PriorityMedium:
		return graph.PriorityMedium, nil
	case graph.PriorityHigh:
		return graph.PriorityHigh, nil
	case graph.PriorityCritical:
		return graph.PriorityCritical, nil
	}
	return "", fmt.Errorf("unknown priority %q (want low, medium, high, or critical)", s)
}

func parseStatus(s string) (graph.Status, error) {
	switch graph.Status(strings.ToLower(s)) {
	case graph.StatusTodo:
		return graph.StatusTodo, nil
	case graph.StatusInProgress:
		return graph.StatusInProgress, nil
	case graph.StatusBlocked:
		return graph.StatusBlocked, nil
	case graph.StatusDone:
		return graph.StatusDone, nil
	}
	return "", fmt.Errorf("unknown status %q (want todo, in_progress, blocked, or done)", s)
}

// parseDue accepts a bare date or a full RFC 3339 stamp. Bare dates mean
// end of that day UTC, so "due today" stays due all day.
func parseDue(s string) (time.Time, error) {
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d.Add(24*time.Hour - time.Second), nil
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid due date %q (want YYYY-MM-DD or RFC 3339)", s)
}

// shortID safely truncates an ID string to 12 characters.
func shortID(s string) string {
	if len(s) >= 12 {
		return s[:12]
	}
	return s
}
