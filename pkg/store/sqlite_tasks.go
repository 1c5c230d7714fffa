package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gravitask/gravitask/pkg/graph"
)

// UpsertTask inserts or replaces a task. The row is written exactly as
// given; a nil Position stores NULL coordinates.
func (s *Store) UpsertTask(ctx context.Context, t *graph.Task) error {
	tags, err := marshalTags(t.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}

	var posX, posY any
	if t.Position != nil {
		posX, posY = t.Position.X, t.Position.Y
	}
	var dueAt any
	if t.DueAt != nil {
		dueAt = t.DueAt.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, category, status, priority, tags, due_at, pos_x, pos_y, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			status = excluded.status,
			priority = excluded.priority,
			tags = excluded.tags,
			due_at = excluded.due_at,
			pos_x = excluded.pos_x,
			pos_y = excluded.pos_y,
			updated_at = excluded.updated_at
	`, t.ID, t.Title, t.Description, t.Category, string(t.Status), string(t.Priority),
		tags, dueAt, posX, posY, t.CreatedAt.UTC(), t.UpdatedAt.UTC())

	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// GetTask returns the task with the given id, or nil if it does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*graph.Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, status, priority, tags, due_at, pos_x, pos_y, created_at, updated_at
		FROM tasks WHERE id = ?
	`, id)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns every task, oldest first.
func (s *Store) ListTasks(ctx context.Context) ([]*graph.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, category, status, priority, tags, due_at, pos_x, pos_y, created_at, updated_at
		FROM tasks ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*graph.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task. Its edges go with it via the foreign keys.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// TaskCount returns the number of stored tasks.
func (s *Store) TaskCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return n, nil
}

// UpdatePositions writes the layout coordinates for the given tasks in
// one transaction. Unknown ids are skipped silently.
func (s *Store) UpdatePositions(ctx context.Context, positions map[string]graph.Point) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin position update: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET pos_x = ?, pos_y = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare position update: %w", err)
	}
	defer stmt.Close()

	for id, p := range positions {
		if _, err := stmt.ExecContext(ctx, p.X, p.Y, id); err != nil {
			return fmt.Errorf("failed to update position for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit position update: %w", err)
	}
	return nil
}

// UpsertEdge inserts or updates a relation.
func (s *Store) UpsertEdge(ctx context.Context, r *graph.Relation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO edges (source, target, weight) VALUES (?, ?, ?)
		ON CONFLICT(source, target) DO UPDATE SET weight = excluded.weight
	`, r.Source, r.Target, r.Weight)
	if err != nil {
		return fmt.Errorf("failed to upsert edge: %w", err)
	}
	return nil
}

// DeleteEdge removes a relation.
func (s *Store) DeleteEdge(ctx context.Context, source, target string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM edges WHERE source = ? AND target = ?`, source, target); err != nil {
		return fmt.Errorf("failed to delete edge: %w", err)
	}
	return nil
}

// ListEdges returns every relation in a stable order.
func (s *Store) ListEdges(ctx context.Context) ([]*graph.Relation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, target, weight FROM edges ORDER BY source, target`)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []*graph.Relation
	for rows.Next() {
		var r graph.Relation
		if err := rows.Scan(&r.Source, &r.Target, &r.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, &r)
	}
	return edges, rows.Err()
}

// LoadGraph reads the whole stored graph.
func (s *Store) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	tasks, err := s.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	edges, err := s.ListEdges(ctx)
	if err != nil {
		return nil, err
	}

	g := graph.NewGraph()
	for _, t := range tasks {
		g.AddTask(t)
	}
	for _, e := range edges {
		g.AddRelation(e)
	}
	return g, nil
}

// ReplaceGraph swaps the stored graph for the server's copy in one
// transaction. Local positions survive: a task whose incoming Position is
// nil keeps the coordinates already on disk, because the server does not
// own the layout.
func (s *Store) ReplaceGraph(ctx context.Context, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin graph replace: %w", err)
	}
	defer tx.Rollback()

	// Remember local positions before wiping.
	kept := make(map[string]graph.Point)
	rows, err := tx.QueryContext(ctx, `SELECT id, pos_x, pos_y FROM tasks WHERE pos_x IS NOT NULL AND pos_y IS NOT NULL`)
	if err != nil {
		return fmt.Errorf("failed to read existing positions: %w", err)
	}
	for rows.Next() {
		var id string
		var x, y float64
		if err := rows.Scan(&id, &x, &y); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan existing position: %w", err)
		}
		kept[id] = graph.Point{X: x, Y: y}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read existing positions: %w", err)
	}
	rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
		return fmt.Errorf("failed to clear edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}

	for _, t := range g.Tasks {
		tags, err := marshalTags(t.Tags)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		var posX, posY any
		if t.Position != nil {
			posX, posY = t.Position.X, t.Position.Y
		} else if p, ok := kept[t.ID]; ok {
			posX, posY = p.X, p.Y
		}
		var dueAt any
		if t.DueAt != nil {
			dueAt = t.DueAt.UTC()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, description, category, status, priority, tags, due_at, pos_x, pos_y, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Title, t.Description, t.Category, string(t.Status), string(t.Priority),
			tags, dueAt, posX, posY, t.CreatedAt.UTC(), t.UpdatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert task %s: %w", t.ID, err)
		}
	}

	for _, r := range g.Relations {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (source, target, weight) VALUES (?, ?, ?)
		`, r.Source, r.Target, r.Weight); err != nil {
			return fmt.Errorf("failed to insert edge %s->%s: %w", r.Source, r.Target, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit graph replace: %w", err)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*graph.Task, error) {
	var t graph.Task
	var status, priority, tags string
	var dueAt sql.NullTime
	var posX, posY sql.NullFloat64

	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Category, &status, &priority,
		&tags, &dueAt, &posX, &posY, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = graph.Status(status)
	t.Priority = graph.Priority(priority)
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	if dueAt.Valid {
		v := dueAt.Time.UTC()
		t.DueAt = &v
	}
	if posX.Valid && posY.Valid {
		t.Position = &graph.Point{X: posX.Float64, Y: posY.Float64}
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func marshalTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
