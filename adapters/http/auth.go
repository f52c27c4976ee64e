package http

import (
	"net/http"
	"strings"

	"github.com/artpar/recordbase/adapters/auth"
	"github.com/artpar/recordbase/adapters/http/api"
	"github.com/artpar/recordbase/adapters/metrics"
	"github.com/artpar/recordbase/pkg/jsonapi"
	"github.com/artpar/recordbase/ports"
	"github.com/rs/zerolog"
)

// ActorHeader names the actor when the server sits behind a trusted
// gateway that has already authenticated the caller.
const ActorHeader = "X-Actor-ID"

// AuthConfig configures how callers are identified.
type AuthConfig struct {
	// Tokens verifies bearer JWTs; the subject becomes the actor.
	Tokens *auth.TokenService

	// APIKeyHash is the hash of the service API key accepted in X-API-Key.
	// Callers presenting it act as ServiceActor.
	APIKeyHash   []byte
	ServiceActor string
	Hasher       ports.Hasher

	// TrustActorHeader accepts X-Actor-ID without credentials.
	TrustActorHeader bool

	Metrics *metrics.Collector
}

// NewAuthMiddleware identifies the actor of every request and stores it
// with api.WithActor. Requests that cannot be identified get a 401.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) func(next http.Handler) http.Handler {
	fail := func(w http.ResponseWriter, r *http.Request, reason, detail string) {
		if cfg.Metrics != nil {
			cfg.Metrics.AuthFailures.WithLabelValues(reason).Inc()
		}
		logger.Debug().Str("reason", reason).Str("path", r.URL.Path).Msg("authentication failed")
		w.Header().Set("WWW-Authenticate", `Bearer realm="recordbase"`)
		jsonapi.WriteError(w, jsonapi.ErrUnauthorized(detail))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor string
			switch {
			case bearerToken(r) != "":
				if cfg.Tokens == nil {
					fail(w, r, "token_disabled", "Bearer tokens are not accepted")
					return
				}
				claims, err := cfg.Tokens.Verify(bearerToken(r))
				if err != nil {
					fail(w, r, "invalid_token", "Invalid or expired token")
					return
				}
				actor = claims.Actor()

			case r.Header.Get("X-API-Key") != "":
				if len(cfg.APIKeyHash) == 0 || cfg.Hasher == nil ||
					!cfg.Hasher.Compare(cfg.APIKeyHash, r.Header.Get("X-API-Key")) {
					fail(w, r, "invalid_api_key", "Invalid API key")
					return
				}
				actor = cfg.ServiceActor

			case cfg.TrustActorHeader && strings.TrimSpace(r.Header.Get(ActorHeader)) != "":
				actor = strings.TrimSpace(r.Header.Get(ActorHeader))

			default:
				fail(w, r, "missing_credentials", "")
				return
			}

			next.ServeHTTP(w, r.WithContext(api.WithActor(r.Context(), actor)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
