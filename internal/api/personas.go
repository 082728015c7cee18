package api

import (
	"net/http"

	"github.com/personachat/relay/internal/log"
	"github.com/personachat/relay/internal/persona"
)

// personaEntry is the public projection of a persona record. Prompt material
// (guidelines, few-shots) stays server-side.
type personaEntry struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	ChannelURL  string `json:"channelUrl,omitempty"`
	Default     bool   `json:"default,omitempty"`
}

// personaHandler serves the persona listing endpoint.
type personaHandler struct {
	personas *persona.Store
	logger   log.Logger
}

// list handles GET /api/personas.
func (h *personaHandler) list(w http.ResponseWriter, _ *http.Request) {
	records := h.personas.All()
	entries := make([]personaEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, personaEntry{
			ID:          rec.ID,
			DisplayName: rec.DisplayName,
			Bio:         rec.Bio,
			ChannelURL:  rec.ChannelURL(),
			Default:     rec.ID == h.personas.DefaultID(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"personas": entries}, h.logger)
}
