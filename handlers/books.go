package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kevinaaaquil/sharemybook/models"
	"github.com/kevinaaaquil/sharemybook/scan"
	"github.com/kevinaaaquil/sharemybook/service"
	"github.com/kevinaaaquil/sharemybook/store"
)

// Lookup finds bibliographic data for an ISBN; nil, nil when unknown.
type Lookup interface {
	LookupByISBN(ctx context.Context, isbn string) (*service.BookMetadata, error)
}

type BooksHandler struct {
	DB      store.Store
	Catalog Lookup
}

type SearchRequest struct {
	ISBN string `json:"isbn"`
}

// SearchResponse is a lookup result. Book is nil when no source knows the
// ISBN; Duplicate is set when the owner already has a copy.
type SearchResponse struct {
	ISBN      string                `json:"isbn"`
	Book      *service.BookMetadata `json:"book"`
	Duplicate bool                  `json:"duplicate"`
}

type CreateBookRequest struct {
	ISBN     string `json:"isbn"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	CoverURL string `json:"coverUrl"`
}

// currentUser answers 409 "profile required" when no profile exists yet.
func currentUser(w http.ResponseWriter, r *http.Request, db store.Store) *models.User {
	user, err := db.CurrentUser(r.Context())
	if err != nil {
		log.Printf("load profile: %v", err)
		http.Error(w, `{"error":"failed to load profile"}`, http.StatusInternalServerError)
		return nil
	}
	if user == nil {
		http.Error(w, `{"error":"profile required"}`, http.StatusConflict)
		return nil
	}
	return user
}

// List returns the owner's books: ?filter=all (default), lent or borrowed.
func (h *BooksHandler) List(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.DB)
	if user == nil {
		return
	}
	var (
		books []models.Book
		err   error
	)
	switch r.URL.Query().Get("filter") {
	case "", "all":
		books, err = h.DB.UserBooks(r.Context(), user.UID)
	case "lent":
		books, err = h.DB.LentBooks(r.Context(), user.UID)
	case "borrowed":
		books, err = h.DB.BorrowedBooks(r.Context(), user.UID)
	default:
		http.Error(w, `{"error":"filter must be all, lent or borrowed"}`, http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Printf("list books: %v", err)
		http.Error(w, `{"error":"failed to list books"}`, http.StatusInternalServerError)
		return
	}
	if books == nil {
		books = []models.Book{}
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BooksHandler) Get(w http.ResponseWriter, r *http.Request) {
	book, err := h.DB.BookByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		log.Printf("get book: %v", err)
		http.Error(w, `{"error":"failed to load book"}`, http.StatusInternalServerError)
		return
	}
	if book == nil {
		http.Error(w, `{"error":"book not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

// Delete removes a book the owner holds. Lent books have to come back first,
// and borrowed books leave through a return.
func (h *BooksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.DB)
	if user == nil {
		return
	}
	book, err := h.DB.BookByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		log.Printf("delete book: %v", err)
		http.Error(w, `{"error":"failed to load book"}`, http.StatusInternalServerError)
		return
	}
	if book == nil {
		http.Error(w, `{"error":"book not found"}`, http.StatusNotFound)
		return
	}
	if !book.IsOwnedBy(user.UID) {
		http.Error(w, `{"error":"not owner"}`, http.StatusForbidden)
		return
	}
	if book.IsLent() {
		http.Error(w, `{"error":"already lent"}`, http.StatusConflict)
		return
	}
	if err := h.DB.DeleteBook(r.Context(), book.UID); err != nil {
		log.Printf("delete book: %v", err)
		http.Error(w, `{"error":"failed to delete book"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BooksHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	isbn := scan.SanitizeISBN(req.ISBN)
	if !scan.IsValidISBN(isbn) {
		http.Error(w, `{"error":"isbn must have 10 or 13 digits"}`, http.StatusBadRequest)
		return
	}
	h.search(w, r, isbn)
}

func (h *BooksHandler) search(w http.ResponseWriter, r *http.Request, isbn string) {
	user := currentUser(w, r, h.DB)
	if user == nil {
		return
	}
	resp := SearchResponse{ISBN: isbn}
	existing, err := h.DB.BookByISBN(r.Context(), isbn, user.UID)
	if err != nil {
		log.Printf("search %s: %v", isbn, err)
		http.Error(w, `{"error":"failed to check library"}`, http.StatusInternalServerError)
		return
	}
	resp.Duplicate = existing != nil

	resp.Book, err = h.Catalog.LookupByISBN(r.Context(), isbn)
	if err != nil {
		log.Printf("lookup %s: %v", isbn, err)
		http.Error(w, `{"error":"book lookup failed"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create adds a book owned by the current user, from a search result or typed in.
func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.DB)
	if user == nil {
		return
	}
	var req CreateBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		http.Error(w, `{"error":"title is required"}`, http.StatusBadRequest)
		return
	}
	authors := strings.TrimSpace(req.Authors)
	if authors == "" {
		authors = "Unknown"
	}
	book := &models.Book{
		UID:       uuid.New().String(),
		ISBN:      scan.SanitizeISBN(req.ISBN),
		Title:     title,
		Authors:   authors,
		CoverURL:  strings.TrimSpace(req.CoverURL),
		OwnerUUID: user.UID,
		CreatedAt: time.Now(),
	}
	if err := h.DB.UpsertBook(r.Context(), book); err != nil {
		log.Printf("create book: %v", err)
		http.Error(w, `{"error":"failed to save book"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, book)
}
