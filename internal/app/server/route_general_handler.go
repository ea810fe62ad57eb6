package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"threatreg/internal/api/dto"
	"threatreg/internal/app/version"
	"threatreg/internal/config"
	"threatreg/internal/database"
)

func (h *handlers) listDestinations(w http.ResponseWriter, _ *http.Request) {
	out := make([]dto.DestinationInfo, 0)
	if h.dispatcher == nil {
		writeJSON(w, http.StatusOK, out)
		return
	}

	for _, dest := range h.dispatcher.Destinations() {
		types := make([]string, 0, len(dest.Identifiers))
		for kind := range dest.Identifiers {
			types = append(types, string(kind))
		}
		sort.Strings(types)

		out = append(out, dto.DestinationInfo{
			Name:                 dest.Name,
			Kind:                 dest.Kind,
			URL:                  dest.URL,
			MappedTypes:          types,
			CredentialConfigured: dest.Credential,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Settings only reference credentials by environment variable name, so the
// snapshot is safe to return.
func getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&newConfig); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, problems := config.Validate(newConfig); len(problems) > 0 {
		writeError(w, problems[0].Error(), http.StatusBadRequest)
		return
	}

	if err := config.SetConfig(newConfig); err != nil {
		log.Error("Could not save settings", "error", err)
		writeError(w, "Could not save settings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Settings saved"})
}

func getVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func getHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := database.Ping(ctx); err != nil {
		log.Warn("Health check failed", "error", err)
		writeError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
