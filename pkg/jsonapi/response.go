package jsonapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodyBytes caps request documents.
const MaxBodyBytes = 1 << 20

// Write writes a document with the JSON:API content type.
func Write(w http.ResponseWriter, status int, doc Document) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(doc)
}

// WriteResource writes a single resource.
func WriteResource(w http.ResponseWriter, status int, r Resource) {
	Write(w, status, Document{Data: r})
}

// WriteCollection writes a collection, with paging meta and links when p
// is non-nil.
func WriteCollection(w http.ResponseWriter, resources []Resource, p *Pagination) {
	if resources == nil {
		resources = []Resource{}
	}
	doc := Document{Data: resources}
	if p != nil {
		doc.Meta = p.Meta()
		doc.Links = p.Links()
	}
	Write(w, http.StatusOK, doc)
}

// WriteCreated writes a 201 with a Location header.
func WriteCreated(w http.ResponseWriter, r Resource, location string) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	WriteResource(w, http.StatusCreated, r)
}

// WriteNoContent writes a 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteMeta writes a meta-only document.
func WriteMeta(w http.ResponseWriter, status int, meta Meta) {
	Write(w, status, Document{Meta: meta})
}

// WriteError writes one or more errors. The status comes from the first.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		errs = []Error{ErrInternal()}
	}
	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	Write(w, status, Document{Errors: errs})
}

// WriteMethodNotAllowed writes a 405 and the Allow header.
func WriteMethodNotAllowed(w http.ResponseWriter, method string, allowed []string) {
	e := ErrMethodNotAllowed(method, allowed)
	if v, ok := e.Meta["allowed"].(string); ok {
		w.Header().Set("Allow", v)
	}
	WriteError(w, e)
}

// RequestDocument is the body of a create or update request.
type RequestDocument struct {
	Data *Resource `json:"data"`
}

// DecodeResource reads a request document and returns its primary
// resource. When resourceType is non-empty the resource must carry it.
func DecodeResource(r *http.Request, resourceType string) (Resource, error) {
	var doc RequestDocument
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(&doc); err != nil {
		return Resource{}, fmt.Errorf("invalid JSON document: %w", err)
	}
	if doc.Data == nil {
		return Resource{}, errors.New("document has no primary data")
	}
	if resourceType != "" && doc.Data.Type != resourceType {
		return Resource{}, fmt.Errorf("expected resource type %q, got %q", resourceType, doc.Data.Type)
	}
	if doc.Data.Attributes == nil {
		doc.Data.Attributes = map[string]any{}
	}
	return *doc.Data, nil
}
