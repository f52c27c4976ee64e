package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-playground/validator/v10"
)

// badRequest is a malformed document or query, reported as 400.
type badRequest struct {
	param  string
	detail string
}

func (e *badRequest) Error() string { return e.detail }

func malformed(format string, args ...any) error {
	return &badRequest{detail: fmt.Sprintf(format, args...)}
}

func badParam(param, detail string) error {
	return &badRequest{param: param, detail: detail}
}

// document is a request document with typed attributes.
type document[T any] struct {
	Data *struct {
		Type       string `json:"type"`
		ID         string `json:"id"`
		Attributes T      `json:"attributes"`
	} `json:"data"`
}

// decode reads a request document of resourceType and validates its
// attributes. The returned id is the client-supplied resource id, if any.
func decode[T any](h *Handler, r *http.Request, resourceType string) (string, T, error) {
	var doc document[T]
	var zero T
	if err := json.NewDecoder(io.LimitReader(r.Body, jsonapi.MaxBodyBytes)).Decode(&doc); err != nil {
		return "", zero, malformed("invalid JSON document: %v", err)
	}
	if doc.Data == nil {
		return "", zero, malformed("document has no primary data")
	}
	if doc.Data.Type != resourceType {
		return "", zero, malformed("expected resource type %q, got %q", resourceType, doc.Data.Type)
	}
	if err := h.check(doc.Data.Attributes); err != nil {
		return "", zero, err
	}
	return doc.Data.ID, doc.Data.Attributes, nil
}

// decodeRecord reads a free-form record document, as used for data
// objects whose shape is defined by their model.
func decodeRecord(r *http.Request, resourceType string) (jsonapi.Resource, error) {
	res, err := jsonapi.DecodeResource(r, resourceType)
	if err != nil {
		return jsonapi.Resource{}, &badRequest{detail: err.Error()}
	}
	return res, nil
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs struct tag validation and reports failures as a
// ValidationError keyed by attribute path.
func (h *Handler) check(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fes validator.ValidationErrors
	if !errors.As(err, &fes) {
		return malformed("invalid attributes: %v", err)
	}
	ve := &app.ValidationError{}
	for _, fe := range fes {
		ve.Fields = append(ve.Fields, app.FieldError{
			Field:         attributePath(fe.Namespace()),
			Message:       message(fe),
			RejectedValue: rejected(fe),
		})
	}
	return ve
}

// attributePath drops the struct name from a validator namespace.
func attributePath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "excluded_if":
		return "is not allowed here"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " long"
	case "min":
		return "must be at least " + fe.Param()
	case "gte", "lte":
		return "is out of range"
	case "dive":
		return "is invalid"
	default:
		return "failed the " + fe.Tag() + " check"
	}
}

func rejected(fe validator.FieldError) any {
	switch v := fe.Value().(type) {
	case string:
		if v == "" {
			return nil
		}
		return v
	case int, float64, bool:
		return v
	}
	return nil
}
