package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"threatreg/internal/api/dto"
	"threatreg/internal/database"
	"threatreg/internal/domain"
	"threatreg/internal/metrics"
	"threatreg/internal/taxonomy"
)

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (h *handlers) addIndicator(w http.ResponseWriter, r *http.Request) {
	var req dto.IndicatorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind, err := taxonomy.ParseKind(req.Type)
	if err != nil {
		writeStoreError(w, err, "Could not parse indicator type")
		return
	}
	value := strings.TrimSpace(req.Value)
	if err := taxonomy.Validate(kind, value); err != nil {
		writeStoreError(w, err, "Could not validate indicator")
		return
	}
	if err := taxonomy.ValidateDescription(req.Description); err != nil {
		writeStoreError(w, err, "Could not validate description")
		return
	}

	record := domain.IndicatorRecord{
		Kind:        kind,
		Value:       value,
		Description: req.Description,
	}
	if err := database.InsertIndicator(r.Context(), &record); err != nil {
		metrics.RegistryWrites.WithLabelValues("indicators", "insert", "error").Inc()
		writeStoreError(w, err, "Could not add indicator")
		return
	}
	metrics.RegistryWrites.WithLabelValues("indicators", "insert", "ok").Inc()

	log.Info("Indicator added", "id", record.ID, "type", record.Kind, "value", record.Value)

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(record)
	}

	writeJSON(w, http.StatusOK, dto.CreatedResponse{ID: record.ID, Message: "Indicator added"})
}

func (h *handlers) deleteIndicator(w http.ResponseWriter, r *http.Request) {
	var req dto.IndicatorDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	kind, err := taxonomy.ParseKind(req.Type)
	if err != nil {
		writeStoreError(w, err, "Could not parse indicator type")
		return
	}

	if _, err := database.DeleteIndicator(r.Context(), kind, strings.TrimSpace(req.Value)); err != nil {
		writeStoreError(w, err, "Could not delete indicator")
		return
	}
	metrics.RegistryWrites.WithLabelValues("indicators", "delete", "ok").Inc()

	log.Info("Indicator deleted", "type", kind, "value", req.Value)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Indicator deleted"})
}

func (h *handlers) deleteIndicatorByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := database.DeleteIndicatorByID(r.Context(), id); err != nil {
		writeStoreError(w, err, "Could not delete indicator")
		return
	}
	metrics.RegistryWrites.WithLabelValues("indicators", "delete", "ok").Inc()

	log.Info("Indicator deleted", "id", id)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Indicator deleted"})
}

func (h *handlers) searchIndicators(w http.ResponseWriter, r *http.Request) {
	var req dto.IndicatorSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var kind domain.IndicatorKind
	if strings.TrimSpace(req.Type) != "" {
		parsed, err := taxonomy.ParseKind(req.Type)
		if err != nil {
			writeStoreError(w, err, "Could not parse indicator type")
			return
		}
		kind = parsed
	}

	records, err := database.SearchIndicators(r.Context(), kind, strings.TrimSpace(req.Value))
	if err != nil {
		writeStoreError(w, err, "Could not search indicators")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) listIndicators(w http.ResponseWriter, r *http.Request) {
	records, err := database.ListIndicators(r.Context())
	if err != nil {
		writeStoreError(w, err, "Could not list indicators")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) listIndicatorTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, taxonomy.Kinds())
}

func (h *handlers) listDeliveries(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	outcomes, err := database.ListDeliveryOutcomes(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Could not list deliveries")
		return
	}
	writeJSON(w, http.StatusOK, outcomes)
}

func (h *handlers) redeliverIndicator(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	record, err := database.GetIndicator(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Could not load indicator")
		return
	}

	if h.dispatcher != nil {
		h.dispatcher.Dispatch(record)
	}

	log.Info("Indicator redelivery scheduled", "id", id)
	writeJSON(w, http.StatusAccepted, dto.MessageResponse{Message: "Redelivery scheduled"})
}
