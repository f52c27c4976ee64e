package memory

import (
	"context"
	"sort"

	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/ports"
)

func copyModel(m schema.Model) schema.Model {
	m.DisplayPropertyNames = append([]string(nil), m.DisplayPropertyNames...)
	m.Properties = append([]schema.Property(nil), m.Properties...)
	return m
}

func copyWorkflow(w workflow.Workflow) workflow.Workflow {
	w.States = append([]workflow.State(nil), w.States...)
	w.Transitions = append([]workflow.Transition(nil), w.Transitions...)
	return w
}

type modelStore struct{ r repos }

// Get retrieves a model by ID.
func (s modelStore) Get(ctx context.Context, id string) (m schema.Model, err error) {
	s.r.read(func(st *state) {
		found, ok := st.models[id]
		if !ok {
			err = ErrNotFound
			return
		}
		m = copyModel(found)
	})
	return m, err
}

// GetByName retrieves a model by name.
func (s modelStore) GetByName(ctx context.Context, name string) (m schema.Model, err error) {
	err = ErrNotFound
	s.r.read(func(st *state) {
		for _, found := range st.models {
			if found.Name == name {
				m, err = copyModel(found), nil
				return
			}
		}
	})
	return m, err
}

// List returns all models ordered by name.
func (s modelStore) List(ctx context.Context) ([]schema.Model, error) {
	return s.filter(func(schema.Model) bool { return true }), nil
}

// ListByWorkflow returns the models attached to a workflow.
func (s modelStore) ListByWorkflow(ctx context.Context, workflowID string) ([]schema.Model, error) {
	return s.filter(func(m schema.Model) bool { return m.WorkflowID == workflowID }), nil
}

func (s modelStore) filter(keep func(schema.Model) bool) []schema.Model {
	var out []schema.Model
	s.r.read(func(st *state) {
		for _, m := range st.models {
			if keep(m) {
				out = append(out, copyModel(m))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CountByRuleset counts properties referencing a ruleset.
func (s modelStore) CountByRuleset(ctx context.Context, rulesetID string) (n int, err error) {
	s.r.read(func(st *state) {
		for _, m := range st.models {
			for _, p := range m.Properties {
				if p.ValidationRulesetID == rulesetID {
					n++
				}
			}
		}
	})
	return n, nil
}

// Save inserts or replaces a model and its properties.
func (s modelStore) Save(ctx context.Context, m schema.Model) error {
	s.r.write(func(st *state) { st.models[m.ID] = copyModel(m) })
	return nil
}

// Delete removes a model.
func (s modelStore) Delete(ctx context.Context, id string) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.models[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.models, id)
	})
	return err
}

type rulesetStore struct{ r repos }

// Get retrieves a ruleset by ID.
func (s rulesetStore) Get(ctx context.Context, id string) (rs schema.ValidationRuleset, err error) {
	s.r.read(func(st *state) {
		found, ok := st.rulesets[id]
		if !ok {
			err = ErrNotFound
			return
		}
		rs = found
	})
	return rs, err
}

// GetByName retrieves a ruleset by name.
func (s rulesetStore) GetByName(ctx context.Context, name string) (rs schema.ValidationRuleset, err error) {
	err = ErrNotFound
	s.r.read(func(st *state) {
		for _, found := range st.rulesets {
			if found.Name == name {
				rs, err = found, nil
				return
			}
		}
	})
	return rs, err
}

// List returns all rulesets ordered by name.
func (s rulesetStore) List(ctx context.Context) ([]schema.ValidationRuleset, error) {
	var out []schema.ValidationRuleset
	s.r.read(func(st *state) {
		for _, rs := range st.rulesets {
			out = append(out, rs)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save inserts or replaces a ruleset.
func (s rulesetStore) Save(ctx context.Context, rs schema.ValidationRuleset) error {
	s.r.write(func(st *state) { st.rulesets[rs.ID] = rs })
	return nil
}

// Delete removes a ruleset.
func (s rulesetStore) Delete(ctx context.Context, id string) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.rulesets[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.rulesets, id)
	})
	return err
}

type workflowStore struct{ r repos }

// Get retrieves a workflow by ID.
func (s workflowStore) Get(ctx context.Context, id string) (w workflow.Workflow, err error) {
	s.r.read(func(st *state) {
		found, ok := st.workflows[id]
		if !ok {
			err = ErrNotFound
			return
		}
		w = copyWorkflow(found)
	})
	return w, err
}

// GetByName retrieves a workflow by name.
func (s workflowStore) GetByName(ctx context.Context, name string) (w workflow.Workflow, err error) {
	err = ErrNotFound
	s.r.read(func(st *state) {
		for _, found := range st.workflows {
			if found.Name == name {
				w, err = copyWorkflow(found), nil
				return
			}
		}
	})
	return w, err
}

// List returns all workflows ordered by name.
func (s workflowStore) List(ctx context.Context) ([]workflow.Workflow, error) {
	var out []workflow.Workflow
	s.r.read(func(st *state) {
		for _, w := range st.workflows {
			out = append(out, copyWorkflow(w))
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Save inserts or replaces a workflow with its states and transitions.
func (s workflowStore) Save(ctx context.Context, w workflow.Workflow) error {
	s.r.write(func(st *state) { st.workflows[w.ID] = copyWorkflow(w) })
	return nil
}

// Delete removes a workflow.
func (s workflowStore) Delete(ctx context.Context, id string) (err error) {
	s.r.write(func(st *state) {
		if _, ok := st.workflows[id]; !ok {
			err = ErrNotFound
			return
		}
		delete(st.workflows, id)
	})
	return err
}

var (
	_ ports.ModelStore    = modelStore{}
	_ ports.RulesetStore  = rulesetStore{}
	_ ports.WorkflowStore = workflowStore{}
)
