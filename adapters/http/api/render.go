package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/domain/object"
	"github.com/artpar/recordbase/domain/schema"
	"github.com/artpar/recordbase/domain/share"
	"github.com/artpar/recordbase/domain/workflow"
	"github.com/artpar/recordbase/pkg/jsonapi"
)

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timestamp(*t)
}

func modelResource(m schema.Model) jsonapi.Resource {
	props := make([]propertyAttributes, len(m.Properties))
	for i, p := range m.Properties {
		props[i] = propertyFrom(p)
	}
	names := m.DisplayPropertyNames
	if names == nil {
		names = []string{}
	}
	return jsonapi.NewResource(TypeModel, m.ID).
		Attr("name", m.Name).
		Attr("description", m.Description).
		Attr("displayPropertyNames", names).
		Attr("groupId", m.GroupID).
		Attr("properties", props).
		Attr("createdAt", timestamp(m.CreatedAt)).
		Attr("updatedAt", timestamp(m.UpdatedAt)).
		BelongsTo("workflow", TypeWorkflow, m.WorkflowID).
		Build()
}

func rulesetResource(rs schema.ValidationRuleset) jsonapi.Resource {
	return jsonapi.NewResource(TypeRuleset, rs.ID).
		Attr("name", rs.Name).
		Attr("regexPattern", rs.RegexPattern).
		Attr("description", rs.Description).
		Attr("createdAt", timestamp(rs.CreatedAt)).
		Attr("updatedAt", timestamp(rs.UpdatedAt)).
		Build()
}

type stateView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	IsInitial     bool     `json:"isInitial"`
	OrderIndex    int      `json:"orderIndex"`
	TransitionsTo []string `json:"transitionsTo"`
}

func workflowResource(w workflow.Workflow) jsonapi.Resource {
	states := make([]stateView, len(w.States))
	for i, s := range w.States {
		states[i] = stateView{ID: s.ID, Name: s.Name, IsInitial: s.IsInitial, OrderIndex: s.OrderIndex, TransitionsTo: []string{}}
		for _, t := range w.Transitions {
			if t.FromStateID == s.ID {
				states[i].TransitionsTo = append(states[i].TransitionsTo, t.ToStateID)
			}
		}
	}
	return jsonapi.NewResource(TypeWorkflow, w.ID).
		Attr("name", w.Name).
		Attr("description", w.Description).
		Attr("states", states).
		Attr("createdAt", timestamp(w.CreatedAt)).
		Attr("updatedAt", timestamp(w.UpdatedAt)).
		Build()
}

// objectResource renders a data object. Attributes are exactly the
// record; system fields travel in meta so they never shadow a property.
func objectResource(o object.DataObject, label string) jsonapi.Resource {
	b := jsonapi.NewResource(TypeObject, o.ID).
		BelongsTo("model", TypeModel, o.ModelID).
		BelongsTo("state", TypeState, o.StateID).
		BelongsTo("owner", TypeActor, o.OwnerID).
		Meta("createdAt", timestamp(o.CreatedAt)).
		Meta("updatedAt", timestamp(o.UpdatedAt)).
		Meta("isDeleted", o.IsDeleted)
	for k, v := range o.Data {
		b.Attr(k, v)
	}
	if o.DeletedAt != nil {
		b.Meta("deletedAt", timestamp(*o.DeletedAt))
	}
	if label != "" {
		b.Meta("label", label)
	}
	return b.Build()
}

func objectResources(m schema.Model, objs []object.DataObject) []jsonapi.Resource {
	out := make([]jsonapi.Resource, len(objs))
	for i, o := range objs {
		out[i] = objectResource(o, m.Label(o.Data, o.ID))
	}
	return out
}

func entryResource(e changelog.Entry) jsonapi.Resource {
	return jsonapi.NewResource(TypeChangelog, e.ID).
		Attr("changeType", string(e.ChangeType)).
		Attr("changedAt", timestamp(e.ChangedAt)).
		Attr("changedBy", e.ChangedBy).
		Attr("changes", e.Payload).
		BelongsTo("dataObject", TypeObject, e.DataObjectID).
		BelongsTo("model", TypeModel, e.ModelID).
		Build()
}

func structuralResource(e changelog.StructuralEntry) jsonapi.Resource {
	changes := e.Changes
	if changes == nil {
		changes = []changelog.FieldChange{}
	}
	return jsonapi.NewResource(TypeStructural, e.ID).
		Attr("entityType", string(e.EntityType)).
		Attr("entityId", e.EntityID).
		Attr("changeType", string(e.ChangeType)).
		Attr("changedAt", timestamp(e.ChangedAt)).
		Attr("changedBy", e.ChangedBy).
		Attr("changes", changes).
		Build()
}

func (h *Handler) linkResource(l share.Link) jsonapi.Resource {
	b := jsonapi.NewResource(TypeShareLink, l.ID).
		Attr("linkType", string(l.Type)).
		Attr("createdBy", l.CreatedBy).
		Attr("createdAt", timestamp(l.CreatedAt)).
		Attr("expiresAt", optionalTime(l.ExpiresAt)).
		Attr("expiresOnSubmit", l.ExpiresOnSubmit).
		BelongsTo("model", TypeModel, l.ModelID).
		BelongsTo("dataObject", TypeObject, l.DataObjectID)
	if h.shareBaseURL != "" {
		b.Meta("url", h.shareBaseURL+"/share/"+l.ID)
	}
	return b.Build()
}

func location(r *http.Request, id string) string {
	return strings.TrimSuffix(r.URL.Path, "/") + "/" + id
}
