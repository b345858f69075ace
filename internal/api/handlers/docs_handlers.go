package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/agentoven/actionrag/pkg/models"
	"github.com/rs/zerolog/log"
)

// IngestDocs handles POST /docs/ingest
func (h *Handlers) IngestDocs(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, "documents array is required")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, models.ErrorKindInternal, err.Error())
		return
	}

	if h.Ingester == nil {
		respondError(w, http.StatusServiceUnavailable, models.ErrorKindInternal, "documentation ingester not configured")
		return
	}

	result, err := h.Ingester.Ingest(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Int("documents", len(req.Documents)).Msg("Documentation ingest failed")
		respondError(w, http.StatusInternalServerError, models.ErrorKindInternal, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}
