package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/artpar/recordbase/domain/changelog"
	"github.com/artpar/recordbase/pkg/jsonapi"
)

// ListChangelog handles GET /changelog.
//
// Filters: entityType (data_object, model, workflow, validation_ruleset),
// entityId, modelId, userId, from and to (RFC 3339, inclusive), plus
// page[number] and page[size].
func (h *Handler) ListChangelog(w http.ResponseWriter, r *http.Request) {
	f, err := changelogFilter(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.svc.Changelog.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var out []jsonapi.Resource
	if f.Normalize().EntityType.IsStructural() {
		out = make([]jsonapi.Resource, len(page.Structural))
		for i, e := range page.Structural {
			out[i] = structuralResource(e)
		}
	} else {
		out = make([]jsonapi.Resource, len(page.Entries))
		for i, e := range page.Entries {
			out[i] = entryResource(e)
		}
	}
	jsonapi.WriteCollection(w, out, &jsonapi.Pagination{
		Total:   page.Total,
		Page:    page.Page,
		PerPage: page.PageSize,
		BaseURL: r.URL.RequestURI(),
	})
}

func changelogFilter(r *http.Request) (changelog.Filter, error) {
	q := r.URL.Query()
	f := changelog.Filter{
		EntityType: changelog.EntityType(q.Get("entityType")),
		EntityID:   q.Get("entityId"),
		ModelID:    q.Get("modelId"),
		UserID:     q.Get("userId"),
	}

	var err error
	if f.Page, f.PageSize, err = jsonapi.ParsePage(q); err != nil {
		var pe *jsonapi.ParamError
		if errors.As(err, &pe) {
			return f, badParam(pe.Param, pe.Error())
		}
		return f, err
	}
	if f.From, err = timeParam(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = timeParam(q.Get("to"), "to"); err != nil {
		return f, err
	}
	return f, nil
}

func timeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, badParam(name, name+" must be an RFC 3339 timestamp")
	}
	t = t.UTC()
	return &t, nil
}
