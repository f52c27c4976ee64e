// Package api serves the recordbase JSON:API: models, rulesets, workflows,
// data objects, the changelog and share links.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/artpar/recordbase/adapters/metrics"
	"github.com/artpar/recordbase/app"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// JSON:API resource types.
const (
	TypeModel      = "models"
	TypeRuleset    = "validation-rulesets"
	TypeWorkflow   = "workflows"
	TypeState      = "workflow-states"
	TypeObject     = "data-objects"
	TypeChangelog  = "changelog-entries"
	TypeStructural = "structural-changelog-entries"
	TypeShareLink  = "share-links"
	TypeShare      = "shares"
	TypeRevert     = "reverts"
	TypeActor      = "actors"
)

// Services are the application services behind the API.
type Services struct {
	Schema    *app.SchemaService
	Objects   *app.ObjectService
	Workflows *app.WorkflowService
	Shares    *app.ShareService
	Changelog *app.ChangelogService
}

// Config holds optional handler settings.
type Config struct {
	Metrics *metrics.Collector // nil disables domain metrics

	// ShareBaseURL prefixes the public URL reported for share links,
	// e.g. https://forms.example.com. Empty omits the URL.
	ShareBaseURL string
}

// Handler serves the authenticated API and the public share endpoints.
type Handler struct {
	svc          Services
	metrics      *metrics.Collector
	shareBaseURL string
	validate     *validator.Validate
	logger       zerolog.Logger
}

// New creates the API handler.
func New(svc Services, logger zerolog.Logger, cfg Config) *Handler {
	return &Handler{
		svc:          svc,
		metrics:      cfg.Metrics,
		shareBaseURL: strings.TrimSuffix(cfg.ShareBaseURL, "/"),
		validate:     newValidator(),
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Routes returns the authenticated API router. Mount it behind the auth
// middleware; every mutation is attributed to Actor(ctx).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	r.Route("/models", func(r chi.Router) {
		r.Get("/", h.ListModels)
		r.Post("/", h.CreateModel)
		r.Route("/{modelID}", func(r chi.Router) {
			r.Get("/", h.GetModel)
			r.Put("/", h.ReplaceModel)
			r.Delete("/", h.DeleteModel)

			r.Get("/objects", h.ListObjects)
			r.Post("/objects", h.CreateObject)
			r.Get("/objects/deleted", h.ListDeletedObjects)
			r.Route("/objects/{objectID}", func(r chi.Router) {
				r.Get("/", h.GetObject)
				r.Patch("/", h.UpdateObject)
				r.Delete("/", h.DeleteObject)
				r.Post("/restore", h.RestoreObject)
				r.Post("/revert", h.RevertObject)
				r.Get("/history", h.ObjectHistory)
			})

			r.Get("/share-links", h.ListShareLinks)
			r.Post("/share-links", h.CreateShareLink)
		})
	})
	r.Delete("/share-links/{token}", h.DeleteShareLink)

	r.Route("/rulesets", func(r chi.Router) {
		r.Get("/", h.ListRulesets)
		r.Post("/", h.CreateRuleset)
		r.Get("/{rulesetID}", h.GetRuleset)
		r.Put("/{rulesetID}", h.ReplaceRuleset)
		r.Delete("/{rulesetID}", h.DeleteRuleset)
	})

	r.Route("/workflows", func(r chi.Router) {
		r.Get("/", h.ListWorkflows)
		r.Post("/", h.CreateWorkflow)
		r.Get("/{workflowID}", h.GetWorkflow)
		r.Put("/{workflowID}", h.ReplaceWorkflow)
		r.Delete("/{workflowID}", h.DeleteWorkflow)
	})

	r.Get("/changelog", h.ListChangelog)
	return r
}

// ShareRoutes returns the unauthenticated share link router.
func (h *Handler) ShareRoutes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)
	r.Get("/{token}", h.ResolveShare)
	r.Post("/{token}", h.SubmitShare)
	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteError(w, jsonapi.ErrNotFound("resource"))
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonapi.WriteMethodNotAllowed(w, r.Method, nil)
}

type actorKey struct{}

// WithActor returns a context carrying the authenticated actor id.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// Actor returns the actor id set by the auth middleware, or "".
func Actor(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}
