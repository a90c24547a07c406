package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"mirrorbox/models"
	"mirrorbox/services/upstream"
)

// CatalogHandler serves search, subject metadata, and download candidate
// lookups over the upstream client.
type CatalogHandler struct {
	client *upstream.Client
}

func NewCatalogHandler(client *upstream.Client) *CatalogHandler {
	return &CatalogHandler{client: client}
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Search handles GET /api/search.
func (h *CatalogHandler) Search(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  "invalid_request",
			"error": "keyword is required",
		})
		return
	}

	page := intQuery(r, "page", 1)
	perPage := intQuery(r, "perPage", 24)
	subjectType := models.SubjectType(intQuery(r, "subjectType", int(models.SubjectTypeAll)))

	result, err := h.client.Search(r.Context(), keyword, page, perPage, subjectType)
	if err != nil {
		log.Printf("[api] search failed keyword=%q: %v", keyword, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Subject handles GET /api/subject: fetches the detail page and returns the
// decoded entity.
func (h *CatalogHandler) Subject(w http.ResponseWriter, r *http.Request) {
	detailPath := strings.TrimSpace(r.URL.Query().Get("detailPath"))
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if detailPath == "" && subjectID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"code":  "invalid_request",
			"error": "detailPath or subjectId is required",
		})
		return
	}

	entity, err := h.client.FetchSubject(r.Context(), detailPath, subjectID)
	if err != nil {
		log.Printf("[api] subject fetch failed detailPath=%q id=%q: %v", detailPath, subjectID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// Downloads handles GET /api/downloads: returns the usable candidates plus
// the session cookies needed to stream them.
func (h *CatalogHandler) Downloads(w http.ResponseWriter, r *http.Request) {
	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	detailPath := strings.TrimSpace(r.URL.Query().Get("detailPath"))
	season := intQuery(r, "season", 0)
	episode := intQuery(r, "episode", 0)

	result, err := h.client.FetchDownloads(r.Context(), subjectID, detailPath, season, episode)
	if err != nil {
		log.Printf("[api] downloads failed subject=%q se=%d ep=%d: %v", subjectID, season, episode, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Options serves CORS preflight for catalog routes.
func (h *CatalogHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
