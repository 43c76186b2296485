package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kevinaaaquil/sharemybook/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API groups the handlers behind the device router.
type API struct {
	JWTSecret    string
	CORSOrigins  []string
	Auth         *AuthHandler
	Profile      *ProfileHandler
	Books        *BooksHandler
	Transactions *TransactionsHandler
	Scan         *ScanHandler
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(a.CORSOrigins...))
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"welcome to sharemybook."}`))
	})
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", a.Auth.Login)
		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(a.JWTSecret))
			r.Get("/profile", a.Profile.Get)
			r.Put("/profile", a.Profile.Put)
			r.Get("/contacts", a.Profile.Contacts)

			r.Get("/books", a.Books.List)
			r.Post("/books", a.Books.Create)
			r.Post("/books/search", a.Books.Search)
			r.Get("/books/{uid}", a.Books.Get)
			r.Delete("/books/{uid}", a.Books.Delete)

			r.Post("/scan", a.Scan.Scan)

			r.Post("/transactions", a.Transactions.Start)
			r.Get("/transactions/current", a.Transactions.Current)
			r.Delete("/transactions/current", a.Transactions.Reset)
			r.Get("/transactions/current/qr.png", a.Transactions.QR)
			r.Post("/transactions/current/publish", a.Transactions.Publish)
		})
	})
	return r
}
