package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/minidoge/donation-tracker/internal/cache"
	"github.com/minidoge/donation-tracker/internal/models"
	"github.com/minidoge/donation-tracker/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Store is the read surface the API serves.
type Store interface {
	DonationPage(ctx context.Context, page, pageSize int) (*models.DonationPage, error)
	Donation(ctx context.Context, fromAccount string) (*models.Donation, error)
	TransactionCount(ctx context.Context, mint string) (int64, error)
	LatestSignature(ctx context.Context, mint string) (string, error)
}

type Handler struct {
	store Store
	cache *cache.Cache
}

func NewHandler(s Store, c *cache.Cache) *Handler {
	return &Handler{store: s, cache: c}
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetDonationsHandler serves one page of donation aggregates, newest donors
// first, through the Redis page cache.
func (h *Handler) GetDonationsHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("GET", "/donations"))
	defer timer.ObserveDuration()

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}

	if cached, ok := h.cache.DonationPage(r.Context(), page, pageSize); ok {
		httpRequestsTotal.WithLabelValues("GET", "/donations", "200").Inc()
		respondWithJSON(w, http.StatusOK, cached)
		return
	}

	result, err := h.store.DonationPage(r.Context(), page, pageSize)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/donations", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "System error fetching donations")
		return
	}
	h.cache.SetDonationPage(r.Context(), result)

	httpRequestsTotal.WithLabelValues("GET", "/donations", "200").Inc()
	respondWithJSON(w, http.StatusOK, result)
}

// GetDonationHandler serves one sender's aggregate.
func (h *Handler) GetDonationHandler(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]

	d, err := h.store.Donation(r.Context(), account)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpRequestsTotal.WithLabelValues("GET", "/donations/{account}", "404").Inc()
			respondWithError(w, http.StatusNotFound, "Donor not found")
			return
		}
		httpRequestsTotal.WithLabelValues("GET", "/donations/{account}", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "System error fetching donation")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/donations/{account}", "200").Inc()
	respondWithJSON(w, http.StatusOK, d)
}

// GetTransactionCountHandler reports how many transfer records are stored
// for a mint.
func (h *Handler) GetTransactionCountHandler(w http.ResponseWriter, r *http.Request) {
	mint := r.URL.Query().Get("mint")
	if mint == "" {
		httpRequestsTotal.WithLabelValues("GET", "/transactions/count", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "mint query parameter is required")
		return
	}

	count, err := h.store.TransactionCount(r.Context(), mint)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/transactions/count", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "System error counting transactions")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/transactions/count", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]int64{"count": count})
}

// GetLatestSignatureHandler reports the walker's resume cursor for a mint.
// The cursor is scoped by mint; each mint has exactly one monitored account.
func (h *Handler) GetLatestSignatureHandler(w http.ResponseWriter, r *http.Request) {
	mint := r.URL.Query().Get("mint")
	if mint == "" {
		httpRequestsTotal.WithLabelValues("GET", "/signatures/latest", "400").Inc()
		respondWithError(w, http.StatusBadRequest, "mint query parameter is required")
		return
	}

	sig, err := h.store.LatestSignature(r.Context(), mint)
	if err != nil {
		httpRequestsTotal.WithLabelValues("GET", "/signatures/latest", "500").Inc()
		respondWithError(w, http.StatusInternalServerError, "System error fetching signature")
		return
	}
	if sig == "" {
		httpRequestsTotal.WithLabelValues("GET", "/signatures/latest", "404").Inc()
		respondWithError(w, http.StatusNotFound, "No transactions stored for account")
		return
	}

	httpRequestsTotal.WithLabelValues("GET", "/signatures/latest", "200").Inc()
	respondWithJSON(w, http.StatusOK, map[string]string{"signature": sig})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
