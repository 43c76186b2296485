package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/kevinaaaquil/sharemybook/middleware"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/scan"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/transaction"
)

// QRPublisher puts a rendered share code somewhere another screen can fetch it.
type QRPublisher interface {
	PublishQR(ctx context.Context, shareID string, png []byte, expiry time.Duration) (key, url string, err error)
	Delete(ctx context.Context, key string) error
}

type TransactionsHandler struct {
	Session  *transaction.Session
	S3       QRPublisher // nil = publishing disabled
	QRExpiry time.Duration

	mu        sync.Mutex
	published string // object key of the last published code
}

type StartRequest struct {
	Action  string `json:"action"`
	BookUID string `json:"bookUid"`
}

type PublishResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Start begins lending or returning a book. The answer is the state right
// after starting; clients follow up on GET /api/transactions/current.
func (h *TransactionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	action, err := models.ParseAction(req.Action)
	if err != nil {
		http.Error(w, `{"error":"action must be LOAN or RETURN"}`, http.StatusBadRequest)
		return
	}
	if req.BookUID == "" {
		http.Error(w, `{"error":"bookUid is required"}`, http.StatusBadRequest)
		return
	}
	h.discardPublished(r.Context())
	device, _ := middleware.DeviceFromContext(r.Context())
	log.Printf("device %s: %s of %s requested", device, action, req.BookUID)
	writeJSON(w, http.StatusAccepted, h.Session.Start(action, req.BookUID))
}

func (h *TransactionsHandler) Current(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Session.State())
}

// QR renders the share code of a transaction waiting for its scan.
func (h *TransactionsHandler) QR(w http.ResponseWriter, r *http.Request) {
	st := h.Session.State()
	if st.Phase != transaction.PhaseWaitingForScan {
		http.Error(w, `{"error":"no share code to show"}`, http.StatusNotFound)
		return
	}
	png, err := service.RenderQR(st.QRPayload, service.DefaultQRSize)
	if err != nil {
		log.Printf("qr %s: %v", st.ShareID, err)
		http.Error(w, `{"error":"failed to render qr"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(png)
}

// Publish uploads the current share code and returns a link that expires.
func (h *TransactionsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if h.S3 == nil {
		http.Error(w, `{"error":"publishing not configured"}`, http.StatusServiceUnavailable)
		return
	}
	st := h.Session.State()
	if st.Phase != transaction.PhaseWaitingForScan {
		http.Error(w, `{"error":"no share code to publish"}`, http.StatusNotFound)
		return
	}
	png, err := service.RenderQR(st.QRPayload, service.DefaultQRSize)
	if err != nil {
		log.Printf("qr %s: %v", st.ShareID, err)
		http.Error(w, `{"error":"failed to render qr"}`, http.StatusInternalServerError)
		return
	}
	expiry := h.QRExpiry
	if expiry <= 0 {
		expiry = 5 * time.Minute
	}
	h.discardPublished(r.Context())
	key, url, err := h.S3.PublishQR(r.Context(), st.ShareID, png, expiry)
	if err != nil {
		log.Printf("publish %s: %v", st.ShareID, err)
		http.Error(w, `{"error":"failed to publish qr"}`, http.StatusBadGateway)
		return
	}
	h.mu.Lock()
	h.published = key
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, PublishResponse{URL: url, ExpiresAt: time.Now().Add(expiry)})
}

// Reset abandons the current transaction.
func (h *TransactionsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	device, _ := middleware.DeviceFromContext(r.Context())
	log.Printf("device %s: transaction reset", device)
	h.Session.Reset()
	h.discardPublished(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Accept confirms a share decoded from a scan.
func (h *TransactionsHandler) Accept(w http.ResponseWriter, r *http.Request, res scan.Result) {
	h.discardPublished(r.Context())
	writeJSON(w, http.StatusAccepted, h.Session.Accept(res.ShareID))
}

func (h *TransactionsHandler) discardPublished(ctx context.Context) {
	h.mu.Lock()
	key := h.published
	h.published = ""
	h.mu.Unlock()
	if key == "" || h.S3 == nil {
		return
	}
	if err := h.S3.Delete(ctx, key); err != nil {
		log.Printf("delete published qr %s: %v", key, err)
	}
}
