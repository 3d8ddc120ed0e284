// Package api exposes the loan desk over JSON HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/erazemk/pujcovna/internal/auth"
	"github.com/erazemk/pujcovna/internal/catalog"
	"github.com/erazemk/pujcovna/internal/db"
	"github.com/erazemk/pujcovna/internal/loans"
	"github.com/erazemk/pujcovna/internal/model"
	"github.com/erazemk/pujcovna/internal/roster"
	"github.com/erazemk/pujcovna/internal/scan"
	"github.com/erazemk/pujcovna/internal/storage"
)

// DefaultMaxUpload bounds request bodies carrying files when Config leaves it unset.
const DefaultMaxUpload = 10 << 20

// Config holds what the router needs to serve requests.
type Config struct {
	DB          *db.DB
	Issuer      *auth.Issuer
	Catalog     *catalog.Service
	Roster      *roster.Service
	Loans       *loans.Service
	Desk        *scan.Desk
	Files       *storage.DBStorage
	Log         *zap.Logger
	CORSOrigins []string
	MaxUpload   int64
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(cfg Config) http.Handler {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	maxUpload := cfg.MaxUpload
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	authHandler := &AuthHandler{DB: cfg.DB, Issuer: cfg.Issuer, Log: log}
	usersHandler := &UsersHandler{DB: cfg.DB, Log: log}
	itemsHandler := &ItemsHandler{Catalog: cfg.Catalog, Log: log}
	peopleHandler := &PeopleHandler{Roster: cfg.Roster, Log: log, MaxUpload: maxUpload}
	loansHandler := &LoansHandler{Loans: cfg.Loans, Log: log, MaxUpload: maxUpload}
	scanHandler := &ScanHandler{Desk: cfg.Desk, Log: log, MaxUpload: maxUpload}
	filesHandler := &FilesHandler{Files: cfg.Files, Log: log}

	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	r := chi.NewRouter()
	r.Use(Recovery(log))
	r.Use(RequestID)
	r.Use(Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/files/{bucket}/*", filesHandler.Get)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg.Issuer, cfg.DB, log))

			r.Put("/auth/password", authHandler.ChangePassword)
			r.Post("/auth/logout", authHandler.Logout)

			r.Route("/users", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/", usersHandler.List)
				r.Post("/", usersHandler.Create)
				r.Get("/{id}", usersHandler.Get)
				r.Put("/{id}", usersHandler.Update)
				r.Put("/{id}/password", usersHandler.ResetPassword)
				r.Delete("/{id}", usersHandler.Delete)
			})

			// Items: read (all roles), write (manager+).
			r.Route("/items", func(r chi.Router) {
				r.Get("/", itemsHandler.List)
				r.Get("/{id}", itemsHandler.Get)
				r.Group(func(r chi.Router) {
					r.Use(requireManager)
					r.Post("/", itemsHandler.Create)
					r.Delete("/{id}", itemsHandler.Delete)
					r.Post("/{id}/availability", itemsHandler.Adjust)
					r.Post("/{id}/variants", itemsHandler.CreateVariant)
					r.Delete("/{id}/variants/{variantID}", itemsHandler.DeleteVariant)
					r.Post("/{id}/variants/{variantID}/availability", itemsHandler.AdjustVariant)
				})
			})

			// People: read (all roles), write (manager+).
			r.Route("/people", func(r chi.Router) {
				r.Get("/", peopleHandler.List)
				r.Get("/{id}", peopleHandler.Get)
				r.Get("/{id}/code.png", peopleHandler.Code)
				r.Group(func(r chi.Router) {
					r.Use(requireManager)
					r.Post("/", peopleHandler.Create)
					r.Post("/batch", peopleHandler.Batch)
					r.Post("/import", peopleHandler.Import)
					r.Put("/{id}/photo", peopleHandler.UploadPhoto)
				})
			})

			// Loans (all roles).
			r.Route("/loans", func(r chi.Router) {
				r.Get("/", loansHandler.History)
				r.Post("/", loansHandler.Create)
				r.Get("/active", loansHandler.Active)
				r.Get("/{id}", loansHandler.Get)
				r.Post("/{id}/return", loansHandler.Return)
				r.Put("/{id}/condition", loansHandler.UpdateCondition)
				r.Put("/{id}/photo", loansHandler.UploadPhoto)
			})

			// Scan sessions (all roles).
			r.Route("/scan/sessions", func(r chi.Router) {
				r.Post("/", scanHandler.Open)
				r.Get("/{id}", scanHandler.Get)
				r.Delete("/{id}", scanHandler.Close)
				r.Post("/{id}/codes", scanHandler.Submit)
				r.Put("/{id}/basket", scanHandler.SetBasket)
				r.Post("/{id}/commit", scanHandler.Commit)
			})
		})
	})

	return r
}
