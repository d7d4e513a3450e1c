// Package v0 provides the REST API handlers of the runebook gateway.
package v0

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/runebook/runebook-gateway/internal/api/common"
	"github.com/runebook/runebook-gateway/internal/cache"
	"github.com/runebook/runebook-gateway/internal/guide"
	"github.com/runebook/runebook-gateway/internal/service"
	"github.com/runebook/runebook-gateway/internal/versions"
)

const (
	// HeaderCacheStatus reports whether a response was served fresh or stale
	HeaderCacheStatus = "X-Cache-Status"
	// HeaderPatchVersion carries the patch version the response was fetched under
	HeaderPatchVersion = "X-Patch-Version"

	cacheStatusFresh = "fresh"
	cacheStatusStale = "stale"
)

// SourcesResponse lists the registered build sources
type SourcesResponse struct {
	Sources []string `json:"sources"`
}

// Routes defines the gateway routes with dependency injection
type Routes struct {
	service service.Service
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.Service) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates the router for the build and catalog endpoints
func Router(svc service.Service) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/sources", routes.listSources)
	r.Route("/source/{source}", func(r chi.Router) {
		r.Get("/builds/{champion}", routes.getBuild)
		r.Get("/runes/{champion}", routes.getRunes)
	})
	r.Route("/data-dragon", func(r chi.Router) {
		r.Get("/champions", routes.getChampions)
		r.Get("/runes", routes.getRuneTree)
	})

	return r
}

// listSources handles GET /api/sources
func (rr *Routes) listSources(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, SourcesResponse{Sources: rr.service.ListSources()}, http.StatusOK)
}

// getBuild handles GET /api/source/{source}/builds/{champion}
func (rr *Routes) getBuild(w http.ResponseWriter, r *http.Request) {
	source, champion, ok := buildParams(w, r)
	if !ok {
		return
	}

	res, err := rr.service.GetLatestBuild(r.Context(), source, champion)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeCacheHeaders(w, res.Patch, res.Stale)
	common.WriteJSONResponse(w, res.Value, http.StatusOK)
}

// getRunes handles GET /api/source/{source}/runes/{champion}
func (rr *Routes) getRunes(w http.ResponseWriter, r *http.Request) {
	source, champion, ok := buildParams(w, r)
	if !ok {
		return
	}

	res, err := rr.service.GetRunes(r.Context(), source, champion)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeCacheHeaders(w, res.Patch, res.Stale)
	common.WriteJSONResponse(w, res.Value, http.StatusOK)
}

// getChampions handles GET /api/data-dragon/champions
func (rr *Routes) getChampions(w http.ResponseWriter, r *http.Request) {
	res, err := rr.service.GetChampionMap(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeCacheHeaders(w, res.Patch, res.Stale)
	common.WriteJSONResponse(w, res.Value, http.StatusOK)
}

// getRuneTree handles GET /api/data-dragon/runes
func (rr *Routes) getRuneTree(w http.ResponseWriter, r *http.Request) {
	res, err := rr.service.GetRuneTree(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeCacheHeaders(w, res.Patch, res.Stale)
	common.WriteJSONResponse(w, res.Value, http.StatusOK)
}

func buildParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	source, err := common.GetAndValidateURLParam(r, "source")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	champion, err := common.GetAndValidateURLParam(r, "champion")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", "", false
	}
	return source, champion, true
}

func writeCacheHeaders(w http.ResponseWriter, patch string, stale bool) {
	status := cacheStatusFresh
	if stale {
		status = cacheStatusStale
	}
	w.Header().Set(HeaderCacheStatus, status)
	if patch != "" {
		w.Header().Set(HeaderPatchVersion, patch)
	}
}

// StatusFor maps a service error onto its HTTP status code
func StatusFor(err error) int {
	switch {
	// NotFound is checked first: a cold miss on a provider without data wraps it in ErrUnavailable
	case errors.Is(err, service.ErrUnknownSource), errors.Is(err, guide.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, cache.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	switch status {
	case http.StatusNotFound:
		slog.DebugContext(r.Context(), "Request not found", "path", r.URL.Path, "error", err)
		common.WriteErrorResponse(w, notFoundMessage(r, err), status)
	case http.StatusServiceUnavailable:
		slog.WarnContext(r.Context(), "Upstream unavailable", "path", r.URL.Path, "error", err)
		common.WriteErrorResponse(w, "upstream temporarily unavailable", status)
	default:
		slog.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		common.WriteErrorResponse(w, "internal server error", status)
	}
}

// notFoundMessage names what was missing without the wrapped upstream detail
func notFoundMessage(r *http.Request, err error) string {
	if errors.Is(err, service.ErrUnknownSource) {
		return "unknown source: " + strings.TrimSpace(chi.URLParam(r, "source"))
	}
	if chi.URLParam(r, "champion") != "" {
		return "build not found"
	}
	return "not found"
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(svc service.Service) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(svc))
	r.Get("/version", versionHandler)

	return r
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// readinessHandler reports ready once the gateway has observed a patch version
func readinessHandler(svc service.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.CheckReadiness(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "Gateway not ready", "error", err)
			common.WriteErrorResponse(w, "gateway not ready", http.StatusServiceUnavailable)
			return
		}
		common.WriteJSONResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
	}
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}
