package jsonapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
	return doc
}

func TestWriteResource(t *testing.T) {
	w := httptest.NewRecorder()
	r := NewResource("objects", "o1").
		Attr("title", "Hello").
		Attrs(map[string]any{"id": "ignored", "qty": 2}).
		BelongsTo("model", "models", "m1").
		BelongsTo("state", "states", "").
		Meta("label", "Hello").
		Build()

	WriteResource(w, http.StatusOK, r)

	if w.Header().Get("Content-Type") != ContentType {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	data := decode(t, w)["data"].(map[string]any)
	attrs := data["attributes"].(map[string]any)
	if data["id"] != "o1" || attrs["title"] != "Hello" || attrs["qty"] != 2.0 {
		t.Errorf("data = %v", data)
	}
	if _, ok := attrs["id"]; ok {
		t.Error("id copied into attributes")
	}
	rels := data["relationships"].(map[string]any)
	if rels["state"].(map[string]any)["data"] != nil {
		t.Errorf("empty relationship = %v, want null data", rels["state"])
	}
	if rels["model"].(map[string]any)["data"].(map[string]any)["id"] != "m1" {
		t.Errorf("model relationship = %v", rels["model"])
	}
}

func TestWriteCollection(t *testing.T) {
	t.Run("empty renders as array", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteCollection(w, nil, nil)
		if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("paged", func(t *testing.T) {
		w := httptest.NewRecorder()
		p := &Pagination{Total: 45, Page: 2, PerPage: 20, BaseURL: "/api/changelog?userId=bob"}
		WriteCollection(w, []Resource{{Type: "changelog", ID: "e1"}}, p)

		doc := decode(t, w)
		meta := doc["meta"].(map[string]any)
		if meta["total"] != 45.0 || meta["pages"] != 3.0 {
			t.Errorf("meta = %v", meta)
		}
		links := doc["links"].(map[string]any)
		for _, key := range []string{"self", "first", "last", "prev", "next"} {
			if links[key] == nil {
				t.Errorf("missing %s link", key)
			}
		}
		if !strings.Contains(links["next"].(string), "page%5Bnumber%5D=3") || !strings.Contains(links["next"].(string), "userId=bob") {
			t.Errorf("next = %v", links["next"])
		}
	})
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w,
		ErrValidation("due date", "Invalid date", "someday"),
		ErrValidation("a/b", "is required", nil),
	)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d", w.Code)
	}
	errs := decode(t, w)["errors"].([]any)
	first := errs[0].(map[string]any)
	if first["source"].(map[string]any)["pointer"] != "/data/attributes/due date" {
		t.Errorf("pointer = %v", first["source"])
	}
	if first["meta"].(map[string]any)["rejectedValue"] != "someday" {
		t.Errorf("meta = %v", first["meta"])
	}
	second := errs[1].(map[string]any)
	if second["source"].(map[string]any)["pointer"] != "/data/attributes/a~1b" {
		t.Errorf("escaped pointer = %v", second["source"])
	}
	if _, ok := second["meta"]; ok {
		t.Error("nil rejected value rendered")
	}
}

func TestWriteError_Defaults(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "sql") {
		t.Error("internal error leaks detail")
	}
}

func TestWriteMethodNotAllowed(t *testing.T) {
	w := httptest.NewRecorder()
	WriteMethodNotAllowed(w, "PUT", []string{"GET", "POST"})

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "GET, POST" {
		t.Errorf("Allow = %q", got)
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		query     string
		page      int
		size      int
		wantParam string
	}{
		{"", 0, 0, ""},
		{"page[number]=3&page[size]=10", 3, 10, ""},
		{"page=2&pageSize=5", 2, 5, ""},
		{"page[number]=x", 0, 0, "page[number]"},
		{"pageSize=-1", 0, 0, "pageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			page, size, err := ParsePage(q)
			if tt.wantParam != "" {
				var pe *ParamError
				if !errors.As(err, &pe) || pe.Param != tt.wantParam {
					t.Fatalf("err = %v, want ParamError(%s)", err, tt.wantParam)
				}
				return
			}
			if err != nil || page != tt.page || size != tt.size {
				t.Errorf("ParsePage = %d, %d, %v", page, size, err)
			}
		})
	}
}

func TestDecodeResource(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		typ     string
		wantErr bool
	}{
		{"valid", `{"data":{"type":"objects","attributes":{"title":"x"}}}`, "objects", false},
		{"no attributes", `{"data":{"type":"objects"}}`, "objects", false},
		{"wrong type", `{"data":{"type":"models","attributes":{}}}`, "objects", true},
		{"no data", `{}`, "objects", true},
		{"not json", `title=x`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			res, err := DecodeResource(r, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && res.Attributes == nil {
				t.Error("attributes not initialised")
			}
		})
	}
}

func TestPagination_TotalPages(t *testing.T) {
	for _, tt := range []struct{ total, per, want int }{{0, 10, 1}, {10, 10, 1}, {11, 10, 2}, {5, 0, 1}} {
		if got := (Pagination{Total: tt.total, PerPage: tt.per}).TotalPages(); got != tt.want {
			t.Errorf("TotalPages(%d/%d) = %d, want %d", tt.total, tt.per, got, tt.want)
		}
	}
}
