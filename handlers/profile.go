package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/store"
)

type ProfileHandler struct {
	DB store.Store
}

type ProfileRequest struct {
	FullName string `json:"fullName"`
	Tel      string `json:"tel"`
	Email    string `json:"email"`
}

type ProfileResponse struct {
	*models.User
	Complete bool `json:"complete"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.DB.CurrentUser(r.Context())
	if err != nil {
		log.Printf("profile: %v", err)
		http.Error(w, `{"error":"failed to load profile"}`, http.StatusInternalServerError)
		return
	}
	if user == nil {
		http.Error(w, `{"error":"profile required"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, Complete: user.IsValid()})
}

// Put creates or updates the device owner. The uid is kept across edits so
// that contacts on other devices keep pointing at the same person.
func (h *ProfileHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	current, err := h.DB.CurrentUser(r.Context())
	if err != nil {
		log.Printf("profile: %v", err)
		http.Error(w, `{"error":"failed to load profile"}`, http.StatusInternalServerError)
		return
	}

	user := &models.User{
		FullName:      strings.TrimSpace(req.FullName),
		Tel:           strings.TrimSpace(req.Tel),
		Email:         strings.TrimSpace(req.Email),
		IsCurrentUser: true,
	}
	if current != nil {
		user.UID = current.UID
		user.CreatedAt = current.CreatedAt
	}
	if user.UID == "" {
		user.UID = uuid.New().String()
	}
	if !user.IsValid() {
		http.Error(w, `{"error":"profile incomplete"}`, http.StatusUnprocessableEntity)
		return
	}
	if err := h.DB.SaveCurrentUser(r.Context(), user); err != nil {
		log.Printf("profile save: %v", err)
		http.Error(w, `{"error":"failed to save profile"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, Complete: true})
}

func (h *ProfileHandler) Contacts(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.DB.Contacts(r.Context())
	if err != nil {
		log.Printf("contacts: %v", err)
		http.Error(w, `{"error":"failed to list contacts"}`, http.StatusInternalServerError)
		return
	}
	if contacts == nil {
		contacts = []models.User{}
	}
	writeJSON(w, http.StatusOK, contacts)
}
