package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threatreg/internal/auth"
	"threatreg/internal/destination"
	"threatreg/internal/domain"
)

const (
	maxRequestBody  = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Dispatcher hands committed indicators to the delivery subsystem.
type Dispatcher interface {
	Dispatch(indicator domain.IndicatorRecord)
	Destinations() []destination.Destination
}

type handlers struct {
	dispatcher Dispatcher
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the domain error taxonomy onto HTTP statuses.
// Anything unrecognised is logged and reported as an internal error.
func writeStoreError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		log.Error(action, "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func NewRouter(dispatcher Dispatcher) http.Handler {
	h := &handlers{dispatcher: dispatcher}

	router := http.NewServeMux()

	router.HandleFunc("POST /networks", h.addNetwork)
	router.HandleFunc("DELETE /networks", h.deleteNetwork)
	router.HandleFunc("DELETE /networks/{id}", h.deleteNetworkByID)
	router.HandleFunc("POST /networks/search", h.searchNetworks)
	router.HandleFunc("GET /networks", h.listNetworks)
	router.HandleFunc("GET /networks/companies", h.listCompanies)

	router.HandleFunc("POST /indicators", h.addIndicator)
	router.HandleFunc("DELETE /indicators", h.deleteIndicator)
	router.HandleFunc("DELETE /indicators/{id}", h.deleteIndicatorByID)
	router.HandleFunc("POST /indicators/search", h.searchIndicators)
	router.HandleFunc("GET /indicators", h.listIndicators)
	router.HandleFunc("GET /indicators/types", h.listIndicatorTypes)
	router.HandleFunc("GET /indicators/{id}/deliveries", h.listDeliveries)
	router.HandleFunc("POST /indicators/{id}/redeliver", h.redeliverIndicator)

	router.HandleFunc("GET /destinations", h.listDestinations)
	router.HandleFunc("GET /settings", getSettings)
	router.Handle("PUT /settings", auth.IsAdmin(http.HandlerFunc(saveSettings)))
	router.HandleFunc("GET /version", getVersion)
	router.HandleFunc("GET /healthz", getHealth)
	router.Handle("GET /metrics", promhttp.Handler())

	return enableCORS(router)
}

// OpenRoutes serves the API until ctx is cancelled, then shuts down
// gracefully.
func OpenRoutes(ctx context.Context, port int, dispatcher Dispatcher) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           NewRouter(dispatcher),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting threatreg API on port :%d", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return <-errCh
}
