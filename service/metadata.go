package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultOpenLibraryURL = "https://openlibrary.org"
	DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"
)

// openLibraryBook is one entry of GET /api/books?bibkeys=ISBN:...&jscmd=data&format=json
type openLibraryBook struct {
	Title   string `json:"title"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
	Cover struct {
		Small  string `json:"small"`
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"cover"`
}

// googleBooksVolumesResp is the response from GET /volumes?q=isbn:...
type googleBooksVolumesResp struct {
	TotalItems int `json:"totalItems"`
	Items      []struct {
		VolumeInfo struct {
			Title               string   `json:"title"`
			Subtitle            string   `json:"subtitle"`
			Authors             []string `json:"authors"`
			IndustryIdentifiers []struct {
				Type       string `json:"type"`
				Identifier string `json:"identifier"`
			} `json:"industryIdentifiers"`
		} `json:"volumeInfo"`
	} `json:"items"`
}

// BookMetadata is what a lookup knows about an ISBN.
type BookMetadata struct {
	ISBN     string `json:"isbn"`
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// Catalog looks books up by ISBN, Open Library first and Google Books as fallback.
type Catalog struct {
	OpenLibraryURL string
	GoogleBooksURL string
	client         *http.Client
}

// NewCatalog has a short timeout so slow/hung responses don't block the library screen.
func NewCatalog(openLibraryURL, googleBooksURL string) *Catalog {
	if openLibraryURL == "" {
		openLibraryURL = DefaultOpenLibraryURL
	}
	return &Catalog{
		OpenLibraryURL: strings.TrimRight(openLibraryURL, "/"),
		GoogleBooksURL: googleBooksURL,
		client:         &http.Client{Timeout: 15 * time.Second},
	}
}

// LookupByISBN returns nil, nil when no source knows the ISBN.
func (c *Catalog) LookupByISBN(ctx context.Context, isbn string) (*BookMetadata, error) {
	isbn = strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if isbn == "" {
		return nil, fmt.Errorf("isbn is required")
	}
	meta, err := c.openLibrary(ctx, isbn)
	if meta != nil {
		return meta, nil
	}
	if c.GoogleBooksURL == "" {
		return nil, err
	}
	if err != nil {
		log.Printf("open library %s: %v, trying google books", isbn, err)
	}
	gb, gbErr := c.googleBooks(ctx, isbn)
	switch {
	case gb != nil:
		return gb, nil
	case gbErr != nil && err != nil:
		return nil, fmt.Errorf("lookup %s: %w", isbn, errors.Join(err, gbErr))
	case gbErr != nil:
		return nil, gbErr
	}
	// Google Books has no entry; err is set only if Open Library failed.
	return nil, err
}

func (c *Catalog) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Catalog) openLibrary(ctx context.Context, isbn string) (*BookMetadata, error) {
	bibkey := "ISBN:" + isbn
	q := url.Values{}
	q.Set("bibkeys", bibkey)
	q.Set("jscmd", "data")
	q.Set("format", "json")
	var data map[string]openLibraryBook
	if err := c.getJSON(ctx, c.OpenLibraryURL+"/api/books?"+q.Encode(), &data); err != nil {
		return nil, err
	}
	b, ok := data[bibkey]
	if !ok {
		return nil, nil
	}
	names := make([]string, 0, len(b.Authors))
	for _, a := range b.Authors {
		names = append(names, a.Name)
	}
	meta := &BookMetadata{
		ISBN:    isbn,
		Title:   b.Title,
		Authors: strings.Join(names, ", "),
	}
	if meta.Authors == "" {
		meta.Authors = "Unknown"
	}
	switch {
	case b.Cover.Large != "":
		meta.CoverURL = b.Cover.Large
	case b.Cover.Medium != "":
		meta.CoverURL = b.Cover.Medium
	default:
		meta.CoverURL = b.Cover.Small
	}
	return meta, nil
}

func (c *Catalog) googleBooks(ctx context.Context, isbn string) (*BookMetadata, error) {
	q := url.Values{}
	q.Set("q", "isbn:"+isbn)
	var data googleBooksVolumesResp
	if err := c.getJSON(ctx, c.GoogleBooksURL+"?"+q.Encode(), &data); err != nil {
		return nil, err
	}
	if data.TotalItems == 0 || len(data.Items) == 0 {
		return nil, nil
	}
	vi := data.Items[0].VolumeInfo
	meta := &BookMetadata{
		ISBN:    isbn,
		Title:   vi.Title,
		Authors: strings.Join(vi.Authors, ", "),
	}
	if vi.Subtitle != "" {
		meta.Title = meta.Title + ": " + vi.Subtitle
	}
	for _, id := range vi.IndustryIdentifiers {
		if id.Type == "ISBN_13" || id.Type == "ISBN_10" {
			meta.ISBN = id.Identifier
			break
		}
	}
	if meta.Authors == "" {
		meta.Authors = "Unknown"
	}
	// Google Books image URLs often require captcha; Open Library serves covers by ISBN.
	meta.CoverURL = openLibraryCoverURL(meta.ISBN, "L")
	return meta, nil
}

// openLibraryCoverURL returns a direct cover image URL by ISBN. Size: S (small), M (medium), L (large).
func openLibraryCoverURL(isbn, size string) string {
	clean := strings.ReplaceAll(strings.TrimSpace(isbn), "-", "")
	if clean == "" {
		return ""
	}
	return "https://covers.openlibrary.org/b/isbn/" + url.PathEscape(clean) + "-" + size + ".jpg"
}
