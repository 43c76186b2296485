package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLookupOpenLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/books" || r.URL.Query().Get("bibkeys") != "ISBN:9780441172719" {
			t.Errorf("unexpected request %s", r.URL)
		}
		w.Write([]byte(`{"ISBN:9780441172719":{"title":"Dune","authors":[{"name":"Frank Herbert"},{"name":"Someone Else"}],
			"cover":{"small":"s.jpg","medium":"m.jpg"}}}`))
	}))
	defer srv.Close()

	c := NewCatalog(srv.URL, "")
	meta, err := c.LookupByISBN(context.Background(), "978-0441172719")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if meta == nil || meta.Title != "Dune" || meta.Authors != "Frank Herbert, Someone Else" {
		t.Fatalf("meta: %+v", meta)
	}
	if meta.CoverURL != "m.jpg" {
		t.Fatalf("cover should prefer medium over small, got %q", meta.CoverURL)
	}
}

func TestLookupFallsBackToGoogleBooks(t *testing.T) {
	ol := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ol.Close()
	gb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "isbn:0441172717" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"title":"Dune","subtitle":"Deluxe",
			"industryIdentifiers":[{"type":"ISBN_13","identifier":"9780441172719"}]}}]}`))
	}))
	defer gb.Close()

	meta, err := NewCatalog(ol.URL, gb.URL).LookupByISBN(context.Background(), "0441172717")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if meta == nil || meta.Title != "Dune: Deluxe" || meta.ISBN != "9780441172719" || meta.Authors != "Unknown" {
		t.Fatalf("meta: %+v", meta)
	}
	if meta.CoverURL != "https://covers.openlibrary.org/b/isbn/9780441172719-L.jpg" {
		t.Fatalf("cover: %q", meta.CoverURL)
	}
}

func TestLookupUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	meta, err := NewCatalog(srv.URL, "").LookupByISBN(context.Background(), "123")
	if err != nil || meta != nil {
		t.Fatalf("want nil, nil; got %+v, %v", meta, err)
	}
}

func TestRenderQR(t *testing.T) {
	png, err := RenderQR(`{"shareId":"abc"}`, 0)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Fatalf("not a png")
	}
}

func TestLookupFallsBackWhenOpenLibraryFails(t *testing.T) {
	ol := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer ol.Close()
	gb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":1,"items":[{"volumeInfo":{"title":"Dune","authors":["Frank Herbert"]}}]}`))
	}))
	defer gb.Close()

	meta, err := NewCatalog(ol.URL, gb.URL).LookupByISBN(context.Background(), "9780441172719")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if meta == nil || meta.Title != "Dune" || meta.Authors != "Frank Herbert" {
		t.Fatalf("meta: %+v", meta)
	}
}

func TestLookupReportsOpenLibraryFailureWhenUnknownElsewhere(t *testing.T) {
	ol := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusInternalServerError)
	}))
	defer ol.Close()
	gb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"totalItems":0}`))
	}))
	defer gb.Close()

	meta, err := NewCatalog(ol.URL, gb.URL).LookupByISBN(context.Background(), "9780441172719")
	if err == nil || meta != nil {
		t.Fatalf("got %+v, %v", meta, err)
	}
}
