package sqlstore

import (
	"context"
	"fmt"

	"github.com/artpar/recordbase/domain/workflow"
)

type workflowStore struct{ r repos }

const workflowColumns = `id, name, description, created_at, updated_at`

// Get retrieves a workflow with its states and transitions.
func (s workflowStore) Get(ctx context.Context, id string) (workflow.Workflow, error) {
	w, err := scanWorkflow(s.r.queryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`, id))
	if err != nil {
		return workflow.Workflow{}, notFound(err)
	}
	return s.load(ctx, w)
}

// GetByName retrieves a workflow by name.
func (s workflowStore) GetByName(ctx context.Context, name string) (workflow.Workflow, error) {
	w, err := scanWorkflow(s.r.queryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE name = ?`, name))
	if err != nil {
		return workflow.Workflow{}, notFound(err)
	}
	return s.load(ctx, w)
}

// List returns all workflows ordered by name.
func (s workflowStore) List(ctx context.Context) ([]workflow.Workflow, error) {
	rows, err := s.r.query(ctx, `SELECT `+workflowColumns+` FROM workflows ORDER BY name`)
	if err != nil {
		return nil, err
	}
	out, err := collect(rows, scanWorkflow)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i], err = s.load(ctx, out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Save upserts the workflow and replaces its states and transitions.
func (s workflowStore) Save(ctx context.Context, w workflow.Workflow) error {
	_, err := s.r.exec(ctx, `
		INSERT INTO workflows (`+workflowColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			updated_at = excluded.updated_at
	`, w.ID, w.Name, w.Description, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	if err := s.clear(ctx, w.ID); err != nil {
		return err
	}

	for _, st := range w.States {
		_, err := s.r.exec(ctx, `
			INSERT INTO workflow_states (id, workflow_id, name, is_initial, order_index)
			VALUES (?, ?, ?, ?, ?)
		`, st.ID, w.ID, st.Name, st.IsInitial, st.OrderIndex)
		if err != nil {
			return fmt.Errorf("save state %s: %w", st.Name, err)
		}
	}
	for i, tr := range w.Transitions {
		_, err := s.r.exec(ctx, `
			INSERT INTO workflow_transitions (workflow_id, from_state_id, to_state_id, order_index)
			VALUES (?, ?, ?, ?)
		`, w.ID, tr.FromStateID, tr.ToStateID, i)
		if err != nil {
			return fmt.Errorf("save transition: %w", err)
		}
	}
	return nil
}

// Delete removes a workflow with its states and transitions.
func (s workflowStore) Delete(ctx context.Context, id string) error {
	if err := s.clear(ctx, id); err != nil {
		return err
	}
	return s.r.execOne(ctx, `DELETE FROM workflows WHERE id = ?`, id)
}

func (s workflowStore) clear(ctx context.Context, id string) error {
	if _, err := s.r.exec(ctx, `DELETE FROM workflow_transitions WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("clear transitions: %w", err)
	}
	if _, err := s.r.exec(ctx, `DELETE FROM workflow_states WHERE workflow_id = ?`, id); err != nil {
		return fmt.Errorf("clear states: %w", err)
	}
	return nil
}

func (s workflowStore) load(ctx context.Context, w workflow.Workflow) (workflow.Workflow, error) {
	rows, err := s.r.query(ctx, `
		SELECT id, workflow_id, name, is_initial, order_index
		FROM workflow_states WHERE workflow_id = ? ORDER BY order_index
	`, w.ID)
	if err != nil {
		return workflow.Workflow{}, err
	}
	w.States, err = collect(rows, func(row scanner) (workflow.State, error) {
		var st workflow.State
		err := row.Scan(&st.ID, &st.WorkflowID, &st.Name, &st.IsInitial, &st.OrderIndex)
		return st, err
	})
	if err != nil {
		return workflow.Workflow{}, err
	}

	rows, err = s.r.query(ctx, `
		SELECT from_state_id, to_state_id
		FROM workflow_transitions WHERE workflow_id = ? ORDER BY order_index
	`, w.ID)
	if err != nil {
		return workflow.Workflow{}, err
	}
	w.Transitions, err = collect(rows, func(row scanner) (workflow.Transition, error) {
		var tr workflow.Transition
		err := row.Scan(&tr.FromStateID, &tr.ToStateID)
		return tr, err
	})
	return w, err
}

func scanWorkflow(row scanner) (workflow.Workflow, error) {
	var w workflow.Workflow
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return workflow.Workflow{}, err
	}
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
