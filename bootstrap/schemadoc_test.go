package bootstrap_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/artpar/recordbase/adapters/idgen"
	"github.com/artpar/recordbase/adapters/memory"
	"github.com/artpar/recordbase/bootstrap"
	"github.com/artpar/recordbase/config"
	"github.com/artpar/recordbase/domain/schema"
)

const crmDocument = `
rulesets:
  - name: email
    pattern: '^[^@\s]+@[^@\s]+$'
    description: Email address
workflows:
  - name: Pipeline
    states:
      - {name: New, initial: true, transitions_to: [Won, Lost]}
      - {name: Won}
      - {name: Lost}
models:
  - name: Deal
    workflow: Pipeline
    display: [title]
    properties:
      - {name: title, type: string, required: true}
      - {name: amount, type: number, min: 0, precision: 2, unit: EUR}
      - {name: company, type: relationship, relationship: one, related_model: Company}
  - name: Company
    display: [name]
    properties:
      - {name: name, type: string, required: true, unique: true}
      - {name: contact, type: string, ruleset: email}
`

func TestApplySchema(t *testing.T) {
	ctx := context.Background()
	svc := bootstrap.NewServices(memory.New(), bootstrap.Options{IDs: idgen.NewSequential("id_")}, config.SharingConfig{}, zerolog.Nop())

	doc, err := bootstrap.ParseSchemaDocument(strings.NewReader(crmDocument))
	if err != nil {
		t.Fatalf("ParseSchemaDocument: %v", err)
	}

	res, err := bootstrap.ApplySchema(ctx, svc, doc, "cli")
	if err != nil {
		t.Fatalf("ApplySchema: %v", err)
	}
	if res.Created != 4 || res.Updated != 0 {
		t.Errorf("first apply = %+v, want 4 created", res)
	}

	models, err := svc.Schema.ListModels(ctx)
	if err != nil || len(models) != 2 {
		t.Fatalf("ListModels = %v, %v", models, err)
	}
	byName := make(map[string]schema.Model)
	for _, m := range models {
		byName[m.Name] = m
	}
	deal, company := byName["Deal"], byName["Company"]
	if deal.WorkflowID == "" {
		t.Error("Deal should be attached to the Pipeline workflow")
	}
	rel, ok := deal.Property("company")
	if !ok || rel.RelatedModelID != company.ID {
		t.Errorf("Deal.company = %+v, want relation to %s", rel, company.ID)
	}
	contact, ok := company.Property("contact")
	if !ok || contact.ValidationRulesetID == "" {
		t.Errorf("Company.contact = %+v, want a ruleset", contact)
	}

	res, err = bootstrap.ApplySchema(ctx, svc, doc, "cli")
	if err != nil {
		t.Fatalf("second ApplySchema: %v", err)
	}
	if res.Created != 0 || res.Updated != 4 {
		t.Errorf("second apply = %+v, want 4 updated", res)
	}
	again, err := svc.Schema.GetModel(ctx, deal.ID)
	if err != nil {
		t.Fatalf("GetModel: %v", err)
	}
	title, _ := deal.Property("title")
	if got, _ := again.Property("title"); got.ID != title.ID {
		t.Errorf("property id changed across applies: %s -> %s", title.ID, got.ID)
	}
	if len(again.Properties) != 3 {
		t.Errorf("Deal has %d properties, want 3", len(again.Properties))
	}
}

func TestApplySchema_UnknownReferences(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"workflow", "models:\n  - name: A\n    workflow: Nope\n", `unknown workflow "Nope"`},
		{"ruleset", "models:\n  - name: A\n    properties:\n      - {name: x, type: string, ruleset: nope}\n", `unknown ruleset "nope"`},
		{"related model", "models:\n  - name: A\n    properties:\n      - {name: r, type: relationship, relationship: one, related_model: B}\n", `unknown related model "B"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := bootstrap.NewServices(memory.New(), bootstrap.Options{}, config.SharingConfig{}, zerolog.Nop())
			doc, err := bootstrap.ParseSchemaDocument(strings.NewReader(tt.doc))
			if err != nil {
				t.Fatalf("ParseSchemaDocument: %v", err)
			}
			_, err = bootstrap.ApplySchema(context.Background(), svc, doc, "cli")
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestParseSchemaDocument(t *testing.T) {
	doc, err := bootstrap.ParseSchemaDocument(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty document: %v", err)
	}
	if len(doc.Models) != 0 {
		t.Errorf("empty document has %d models", len(doc.Models))
	}

	if _, err := bootstrap.ParseSchemaDocument(strings.NewReader("models:\n  - name: A\n    colour: red\n")); err == nil {
		t.Error("unknown keys should be rejected")
	}
}
