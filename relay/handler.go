package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Total relay requests processed, labeled by endpoint and status code",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_request_duration_seconds",
		Help:    "Latency distribution of relay requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"endpoint"})
)

const DefaultTTL = 10 * time.Minute

type Handler struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewHandler(s Store, ttl time.Duration) *Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Handler{store: s, ttl: ttl, now: time.Now}
}

// Router returns the relay API plus /health and /metrics.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	r.HandleFunc("/init", h.InitHandler).Methods("POST")
	r.HandleFunc("/accept/{shareId}", h.AcceptHandler).Methods("POST")
	r.HandleFunc("/result/{shareId}", h.ResultHandler).Methods("GET")
	return r
}

// Sweep purges expired shares every interval until ctx is done.
func (h *Handler) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.store.Purge(ctx, h.now().Add(-h.ttl))
			if err != nil {
				log.Printf("relay sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("relay sweep: purged %d expired shares", n)
			}
		}
	}
}

func (h *Handler) InitHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/init"
	timer := prometheus.NewTimer(requestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	var req models.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	switch {
	case !req.Action.Valid():
		h.respondWithError(w, endpoint, http.StatusUnprocessableEntity, "action must be LOAN or RETURN")
		return
	case strings.TrimSpace(req.Book.UID) == "":
		h.respondWithError(w, endpoint, http.StatusUnprocessableEntity, "book uid required")
		return
	case strings.TrimSpace(req.Owner.UID) == "":
		h.respondWithError(w, endpoint, http.StatusUnprocessableEntity, "owner uid required")
		return
	}

	tx := models.Transaction{
		ShareID: uuid.New().String(),
		Action:  req.Action,
		Book:    req.Book,
		Owner:   req.Owner,
	}
	if err := h.store.Create(r.Context(), tx); err != nil {
		log.Printf("relay init: %v", err)
		h.respondWithError(w, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respond(w, endpoint, http.StatusCreated, models.InitResponse{ShareID: tx.ShareID})
}

func (h *Handler) AcceptHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accept/{shareId}"
	timer := prometheus.NewTimer(requestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	shareID := mux.Vars(r)["shareId"]
	var req models.AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, endpoint, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if strings.TrimSpace(req.Borrower.UID) == "" {
		h.respondWithError(w, endpoint, http.StatusUnprocessableEntity, "borrower uid required")
		return
	}

	existing, ok := h.live(w, r, endpoint, shareID)
	if !ok {
		return
	}
	if existing.Owner.UID == req.Borrower.UID {
		h.respondWithError(w, endpoint, http.StatusUnprocessableEntity, "owner cannot accept their own share")
		return
	}

	tx, err := h.store.Accept(r.Context(), shareID, req.Borrower)
	switch {
	case errors.Is(err, ErrNotFound):
		h.respondWithError(w, endpoint, http.StatusNotFound, "Share not found")
		return
	case errors.Is(err, ErrAlreadyAccepted):
		h.respondWithError(w, endpoint, http.StatusConflict, "Share already accepted")
		return
	case err != nil:
		log.Printf("relay accept %s: %v", shareID, err)
		h.respondWithError(w, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	h.respond(w, endpoint, http.StatusOK, tx)
}

// ResultHandler serves the record to the initiator. Once it has been served
// with a borrower the share is consumed and later reads get 404.
func (h *Handler) ResultHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/result/{shareId}"
	timer := prometheus.NewTimer(requestDuration.WithLabelValues(endpoint))
	defer timer.ObserveDuration()

	shareID := mux.Vars(r)["shareId"]
	tx, ok := h.live(w, r, endpoint, shareID)
	if !ok {
		return
	}
	if tx.Accepted() {
		if err := h.store.Delete(r.Context(), shareID); err != nil {
			log.Printf("relay result %s: consume: %v", shareID, err)
		}
	}
	h.respond(w, endpoint, http.StatusOK, tx)
}

// live loads a share that exists and has not expired, answering 404 otherwise.
func (h *Handler) live(w http.ResponseWriter, r *http.Request, endpoint, shareID string) (*models.Transaction, bool) {
	tx, createdAt, err := h.store.Get(r.Context(), shareID)
	if errors.Is(err, ErrNotFound) {
		h.respondWithError(w, endpoint, http.StatusNotFound, "Share not found")
		return nil, false
	}
	if err != nil {
		log.Printf("relay get %s: %v", shareID, err)
		h.respondWithError(w, endpoint, http.StatusInternalServerError, "Internal Server Error")
		return nil, false
	}
	if h.now().Sub(createdAt) > h.ttl {
		if err := h.store.Delete(r.Context(), shareID); err != nil {
			log.Printf("relay expire %s: %v", shareID, err)
		}
		h.respondWithError(w, endpoint, http.StatusNotFound, "Share expired")
		return nil, false
	}
	return tx, true
}

func (h *Handler) respond(w http.ResponseWriter, endpoint string, code int, payload interface{}) {
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	respondWithJSON(w, code, payload)
}

func (h *Handler) respondWithError(w http.ResponseWriter, endpoint string, code int, message string) {
	h.respond(w, endpoint, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
