package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"threatreg/internal/api/dto"
	"threatreg/internal/database"
	"threatreg/internal/domain"
	"threatreg/internal/metrics"
	"threatreg/internal/netmatch"
	"threatreg/internal/taxonomy"
)

func (h *handlers) addNetwork(w http.ResponseWriter, r *http.Request) {
	var req dto.NetworkRequest
	if !decodeBody(w, r, &req) {
		return
	}

	company := strings.TrimSpace(req.Company)
	if err := taxonomy.ValidateCompany(company); err != nil {
		writeStoreError(w, err, "Could not validate company")
		return
	}

	block, err := netmatch.ParseBlock(req.Network)
	if err != nil {
		writeStoreError(w, err, "Could not parse network")
		return
	}
	if err := taxonomy.ValidateDescription(req.Description); err != nil {
		writeStoreError(w, err, "Could not validate description")
		return
	}

	record := domain.NetworkRecord{
		Network:     block.String(),
		Company:     company,
		Description: req.Description,
	}
	if err := database.InsertNetwork(r.Context(), &record); err != nil {
		metrics.RegistryWrites.WithLabelValues("networks", "insert", "error").Inc()
		writeStoreError(w, err, "Could not add network")
		return
	}
	metrics.RegistryWrites.WithLabelValues("networks", "insert", "ok").Inc()

	log.Info("Network added", "id", record.ID, "network", record.Network, "company", record.Company)
	writeJSON(w, http.StatusOK, dto.CreatedResponse{ID: record.ID, Message: "Network added"})
}

func (h *handlers) deleteNetwork(w http.ResponseWriter, r *http.Request) {
	var req dto.NetworkDeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	network := strings.TrimSpace(req.Network)
	if block, err := netmatch.ParseBlock(network); err == nil {
		network = block.String()
	}

	if _, err := database.DeleteNetwork(r.Context(), network, strings.TrimSpace(req.Company)); err != nil {
		writeStoreError(w, err, "Could not delete network")
		return
	}
	metrics.RegistryWrites.WithLabelValues("networks", "delete", "ok").Inc()

	log.Info("Network deleted", "network", network, "company", req.Company)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Network deleted"})
}

func (h *handlers) deleteNetworkByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if _, err := database.DeleteNetworkByID(r.Context(), id); err != nil {
		writeStoreError(w, err, "Could not delete network")
		return
	}
	metrics.RegistryWrites.WithLabelValues("networks", "delete", "ok").Inc()

	log.Info("Network deleted", "id", id)
	writeJSON(w, http.StatusOK, dto.MessageResponse{Message: "Network deleted"})
}

func (h *handlers) searchNetworks(w http.ResponseWriter, r *http.Request) {
	var req dto.NetworkSearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	query, err := netmatch.ParseQuery(req.Query, strings.TrimSpace(req.Company))
	if err != nil {
		writeError(w, "Invalid query format: "+strings.TrimSpace(req.Query), http.StatusBadRequest)
		return
	}

	candidates, err := database.ListNetworks(r.Context())
	if err != nil {
		writeStoreError(w, err, "Could not load networks")
		return
	}

	writeJSON(w, http.StatusOK, netmatch.Match(query, candidates))
}

func (h *handlers) listNetworks(w http.ResponseWriter, r *http.Request) {
	records, err := database.ListNetworks(r.Context())
	if err != nil {
		writeStoreError(w, err, "Could not list networks")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handlers) listCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := database.ListCompanies(r.Context())
	if err != nil {
		writeStoreError(w, err, "Could not list companies")
		return
	}
	writeJSON(w, http.StatusOK, companies)
}
