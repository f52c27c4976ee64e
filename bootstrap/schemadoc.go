package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/artpar/recordbase/adapters/http/api"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/domain/schema"
)

// SchemaDocument describes rulesets, workflows and models to create or
// update by name.
//
//	rulesets:
//	  - name: email
//	    pattern: '^[^@]+@[^@]+$'
//	workflows:
//	  - name: Ticket
//	    states:
//	      - {name: Open, initial: true, transitions_to: [Done]}
//	      - {name: Done}
//	models:
//	  - name: Task
//	    workflow: Ticket
//	    display: [title]
//	    properties:
//	      - {name: title, type: string, required: true}
//	      - {name: owner, type: string, ruleset: email}
type SchemaDocument struct {
	Rulesets  []RulesetDoc  `yaml:"rulesets"`
	Workflows []WorkflowDoc `yaml:"workflows"`
	Models    []ModelDoc    `yaml:"models"`
}

type RulesetDoc struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
}

type WorkflowDoc struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	States      []StateDoc `yaml:"states"`
}

type StateDoc struct {
	Name          string   `yaml:"name"`
	Initial       bool     `yaml:"initial"`
	TransitionsTo []string `yaml:"transitions_to"`
}

type ModelDoc struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Workflow    string        `yaml:"workflow"`
	Display     []string      `yaml:"display"`
	Group       string        `yaml:"group"`
	Properties  []PropertyDoc `yaml:"properties"`
}

type PropertyDoc struct {
	Name            string   `yaml:"name"`
	Type            string   `yaml:"type"`
	Required        bool     `yaml:"required"`
	Unique          bool     `yaml:"unique"`
	Min             *float64 `yaml:"min"`
	Max             *float64 `yaml:"max"`
	Precision       *int     `yaml:"precision"`
	Unit            string   `yaml:"unit"`
	Relationship    string   `yaml:"relationship"` // one or many
	RelatedModel    string   `yaml:"related_model"`
	AutoSetOnCreate bool     `yaml:"auto_set_on_create"`
	AutoSetOnUpdate bool     `yaml:"auto_set_on_update"`
	Default         any      `yaml:"default"`
	Ruleset         string   `yaml:"ruleset"`
}

// ParseSchemaDocument decodes a YAML schema document. Unknown keys are
// rejected.
func ParseSchemaDocument(r io.Reader) (SchemaDocument, error) {
	var doc SchemaDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return SchemaDocument{}, fmt.Errorf("parse schema document: %w", err)
	}
	return doc, nil
}

// ApplyResult counts what ApplySchema created and updated.
type ApplyResult struct {
	Created int
	Updated int
}

// ApplySchema upserts the document: rulesets first, then workflows, then
// models, each matched to existing entities by name. Relationship targets
// may name models defined later in the same document.
func ApplySchema(ctx context.Context, svc api.Services, doc SchemaDocument, actor string) (ApplyResult, error) {
	var res ApplyResult
	count := func(existed bool) {
		if existed {
			res.Updated++
		} else {
			res.Created++
		}
	}

	rulesets, err := svc.Schema.ListRulesets(ctx)
	if err != nil {
		return res, err
	}
	rulesetIDs := make(map[string]string, len(rulesets))
	for _, r := range rulesets {
		rulesetIDs[r.Name] = r.ID
	}
	for _, d := range doc.Rulesets {
		id, existed := rulesetIDs[d.Name]
		saved, err := svc.Schema.UpsertRuleset(ctx, schema.ValidationRuleset{
			ID:           id,
			Name:         d.Name,
			RegexPattern: d.Pattern,
			Description:  d.Description,
		}, actor)
		if err != nil {
			return res, fmt.Errorf("ruleset %q: %w", d.Name, err)
		}
		rulesetIDs[saved.Name] = saved.ID
		count(existed)
	}

	workflows, err := svc.Workflows.List(ctx)
	if err != nil {
		return res, err
	}
	workflowIDs := make(map[string]string, len(workflows))
	stateIDs := make(map[string]map[string]string, len(workflows))
	for _, w := range workflows {
		workflowIDs[w.Name] = w.ID
		stateIDs[w.Name] = make(map[string]string, len(w.States))
		for _, st := range w.States {
			stateIDs[w.Name][st.Name] = st.ID
		}
	}
	for _, d := range doc.Workflows {
		id, existed := workflowIDs[d.Name]
		in := app.WorkflowInput{ID: id, Name: d.Name, Description: d.Description}
		for _, st := range d.States {
			in.States = append(in.States, app.StateInput{
				ID:            stateIDs[d.Name][st.Name],
				Name:          st.Name,
				IsInitial:     st.Initial,
				TransitionsTo: st.TransitionsTo,
			})
		}
		saved, err := svc.Workflows.Upsert(ctx, in, actor)
		if err != nil {
			return res, fmt.Errorf("workflow %q: %w", d.Name, err)
		}
		workflowIDs[saved.Name] = saved.ID
		count(existed)
	}

	models, err := svc.Schema.ListModels(ctx)
	if err != nil {
		return res, err
	}
	existing := make(map[string]schema.Model, len(models))
	for _, m := range models {
		existing[m.Name] = m
	}

	// Models referenced by a relationship are created first, without their
	// own relationships, so references may point forward or at themselves.
	modelIDs := make(map[string]string, len(existing))
	for name, m := range existing {
		modelIDs[name] = m.ID
	}
	for _, d := range doc.Models {
		if _, ok := modelIDs[d.Name]; ok || !referenced(doc, d.Name) {
			continue
		}
		in, err := modelInput(d, schema.Model{}, rulesetIDs, workflowIDs, modelIDs, false)
		if err != nil {
			return res, err
		}
		saved, err := svc.Schema.UpsertModel(ctx, in, actor)
		if err != nil {
			return res, fmt.Errorf("model %q: %w", d.Name, err)
		}
		modelIDs[saved.Name] = saved.ID
		existing[saved.Name] = saved
	}

	listed := make(map[string]bool, len(models))
	for _, m := range models {
		listed[m.Name] = true
	}
	for _, d := range doc.Models {
		in, err := modelInput(d, existing[d.Name], rulesetIDs, workflowIDs, modelIDs, true)
		if err != nil {
			return res, err
		}
		saved, err := svc.Schema.UpsertModel(ctx, in, actor)
		if err != nil {
			return res, fmt.Errorf("model %q: %w", d.Name, err)
		}
		modelIDs[saved.Name] = saved.ID
		existing[saved.Name] = saved
		count(listed[d.Name])
	}
	return res, nil
}

func referenced(doc SchemaDocument, name string) bool {
	for _, m := range doc.Models {
		for _, p := range m.Properties {
			if p.RelatedModel == name {
				return true
			}
		}
	}
	return false
}

func modelInput(d ModelDoc, prev schema.Model, rulesets, workflows, models map[string]string, withRelationships bool) (app.ModelInput, error) {
	in := app.ModelInput{
		ID:                   prev.ID,
		Name:                 d.Name,
		Description:          d.Description,
		DisplayPropertyNames: d.Display,
		GroupID:              d.Group,
	}
	if d.Workflow != "" {
		id, ok := workflows[d.Workflow]
		if !ok {
			return in, fmt.Errorf("model %q: unknown workflow %q", d.Name, d.Workflow)
		}
		in.WorkflowID = id
	}

	propIDs := make(map[string]string, len(prev.Properties))
	for _, p := range prev.Properties {
		propIDs[p.Name] = p.ID
	}
	for _, pd := range d.Properties {
		if pd.Type == string(schema.TypeRelationship) && !withRelationships {
			continue
		}
		p := schema.Property{
			ID:               propIDs[pd.Name],
			Name:             pd.Name,
			Type:             schema.PropertyType(pd.Type),
			Required:         pd.Required,
			IsUnique:         pd.Unique,
			MinValue:         pd.Min,
			MaxValue:         pd.Max,
			Precision:        pd.Precision,
			Unit:             pd.Unit,
			RelationshipType: schema.RelationshipType(pd.Relationship),
			AutoSetOnCreate:  pd.AutoSetOnCreate,
			AutoSetOnUpdate:  pd.AutoSetOnUpdate,
			DefaultValue:     pd.Default,
		}
		if pd.RelatedModel != "" {
			id, ok := models[pd.RelatedModel]
			if !ok {
				return in, fmt.Errorf("model %q: property %q: unknown related model %q", d.Name, pd.Name, pd.RelatedModel)
			}
			p.RelatedModelID = id
		}
		if pd.Ruleset != "" {
			id, ok := rulesets[pd.Ruleset]
			if !ok {
				return in, fmt.Errorf("model %q: property %q: unknown ruleset %q", d.Name, pd.Name, pd.Ruleset)
			}
			p.ValidationRulesetID = id
		}
		in.Properties = append(in.Properties, p)
	}
	if !withRelationships {
		in.DisplayPropertyNames = nil
		for _, name := range d.Display {
			for _, p := range in.Properties {
				if p.Name == name {
					in.DisplayPropertyNames = append(in.DisplayPropertyNames, name)
				}
			}
		}
	}
	return in, nil
}
