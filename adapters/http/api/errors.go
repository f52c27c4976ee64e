package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5/middleware"
)

// conflicts maps conflict sentinels to their error codes.
var conflicts = []struct {
	err  error
	code string
}{
	{app.ErrNameTaken, "name_taken"},
	{app.ErrRulesetInUse, "ruleset_in_use"},
	{app.ErrModelInUse, "model_in_use"},
	{app.ErrNotDeleted, "not_deleted"},
}

// fail writes err as a JSON:API error document. Storage failures are
// logged and reported without detail.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	jsonapi.WriteError(w, h.translate(r, err)...)
}

func (h *Handler) translate(r *http.Request, err error) []jsonapi.Error {
	var (
		bad *badRequest
		ve  *app.ValidationError
		ue  *app.UniqueViolationError
		te  *app.TransitionError
		ce  *app.ConfigError
	)
	switch {
	case errors.As(err, &bad):
		if bad.param != "" {
			return []jsonapi.Error{jsonapi.ErrBadParameter(bad.param, bad.detail)}
		}
		return []jsonapi.Error{jsonapi.ErrBadRequest(bad.detail)}

	case errors.As(err, &ve):
		h.reject("validation")
		return fieldErrors(ve)

	case errors.As(err, &ue):
		h.reject("unique")
		e := jsonapi.ErrConflict("unique_violation", ue.Error())
		e.Source = jsonapi.ErrValidation(ue.Field, "", nil).Source
		return []jsonapi.Error{e}

	case errors.As(err, &te):
		h.reject("workflow")
		e := jsonapi.ErrUnprocessable("invalid_transition", te.Error())
		e.Meta = jsonapi.Meta{"from": te.From, "to": te.To}
		return []jsonapi.Error{e}

	case errors.As(err, &ce):
		h.reject("configuration")
		h.logger.Warn().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("schema configuration error")
		return []jsonapi.Error{jsonapi.ErrUnprocessable("configuration_error", ce.Error())}

	case errors.Is(err, app.ErrNotFound):
		return []jsonapi.Error{jsonapi.NewError(http.StatusNotFound, "not_found", "Not Found", capitalize(err.Error()))}

	case errors.Is(err, app.ErrCreateNotRevertible):
		return []jsonapi.Error{jsonapi.ErrUnprocessable("create_not_revertible", capitalize(err.Error()))}

	case errors.Is(err, app.ErrRevertOfRevert):
		return []jsonapi.Error{jsonapi.ErrUnprocessable("revert_of_revert", capitalize(err.Error()))}

	case errors.Is(err, app.ErrLinkExpired):
		return []jsonapi.Error{jsonapi.ErrNotFound("share link")}

	case errors.Is(err, app.ErrLinkTypeMismatch):
		return []jsonapi.Error{jsonapi.ErrUnprocessable("link_type_mismatch", capitalize(err.Error()))}

	case errors.Is(err, context.DeadlineExceeded):
		return []jsonapi.Error{jsonapi.ErrServiceUnavailable("The request timed out")}
	}

	for _, c := range conflicts {
		if errors.Is(err, c.err) {
			return []jsonapi.Error{jsonapi.ErrConflict(c.code, capitalize(err.Error()))}
		}
	}

	h.logger.Error().Err(err).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("request failed")
	return []jsonapi.Error{jsonapi.ErrInternal()}
}

func fieldErrors(ve *app.ValidationError) []jsonapi.Error {
	errs := make([]jsonapi.Error, 0, len(ve.Fields))
	for _, f := range ve.Fields {
		errs = append(errs, jsonapi.ErrValidation(f.Field, f.Message, f.RejectedValue))
	}
	if len(errs) == 0 {
		errs = append(errs, jsonapi.ErrUnprocessable("validation_error", ve.Error()))
	}
	return errs
}

func (h *Handler) reject(kind string) {
	if h.metrics != nil {
		h.metrics.WriteRejections.WithLabelValues(kind).Inc()
	}
}

func (h *Handler) wrote(op string) {
	if h.metrics != nil {
		h.metrics.ObjectWrites.WithLabelValues(op).Inc()
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return fmt.Sprintf("%c%s", c-'a'+'A', s[1:])
	}
	return s
}
