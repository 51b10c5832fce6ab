package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerdesk/api/internal/config"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/enum"
	"github.com/ledgerdesk/api/internal/handler"
	"github.com/ledgerdesk/api/internal/logger"
	mw "github.com/ledgerdesk/api/internal/middleware"
	"github.com/ledgerdesk/api/internal/service"
	"github.com/ledgerdesk/api/internal/ws"
	"github.com/rs/zerolog/log"
)

// New creates a Chi router with all application routes wired up. A nil
// reminder disables outgoing payment reminders.
func New(cfg *config.Config, queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, reminder handler.Reminder) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(mw.RequestLogger(logger.WithComponent("http")))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	authHandler := handler.NewAuthHandler(queries, cfg.JWTSecret)
	authHandler.RegisterRoutes(r)

	// Auth happens inside via the token query param.
	r.Get("/ws/customers/{cid}/ledger", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, queries, w, r)
	})

	invoiceService := service.NewInvoiceService(pool, func(db database.DBTX) service.InvoiceStore {
		return database.New(db)
	}, hub)
	receiptService := service.NewReceiptService(pool, func(db database.DBTX) service.ReceiptStore {
		return database.New(db)
	}, hub)

	userHandler := handler.NewUserHandler(queries)
	reportsHandler := handler.NewReportsHandler(queries)
	customerHandler := handler.NewCustomerHandler(queries)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, queries, reminder)
	receiptHandler := handler.NewReceiptHandler(receiptService, queries)

	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret, queries))

		r.Get("/auth/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin))
			r.Route("/users", userHandler.RegisterRoutes)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleAccountant))
			r.Route("/reports", reportsHandler.RegisterRoutes)
		})

		r.Route("/customers", customerHandler.RegisterRoutes)

		r.Route("/invoices", func(r chi.Router) {
			invoiceHandler.RegisterRoutes(r)
			r.With(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleAccountant)).Delete("/{id}", invoiceHandler.Delete)
		})

		r.Route("/receipts", func(r chi.Router) {
			receiptHandler.RegisterRoutes(r)
			r.With(mw.RequireRole(enum.UserRoleAdmin, enum.UserRoleAccountant)).Delete("/{id}", receiptHandler.Delete)
		})
	})

	log.Info().Msg("router initialized")
	return r
}
