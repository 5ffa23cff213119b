package router

import (
	"net/http"

	"classifieds/internal/delivery/handler"
	"classifieds/internal/delivery/middleware"
	"classifieds/internal/infrastructure/cache"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/service"
	"classifieds/pkg/logger"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Services groups everything the HTTP layer delegates to.
type Services struct {
	Auth        service.AuthService
	Ads         service.AdService
	Chats       service.ChatService
	Payments    service.PaymentService
	Admin       service.AdminService
	Diagnostics service.DiagnosticsService
}

type Options struct {
	AllowedOrigins []string
	Idempotency    cache.Cache
	Realtime       handler.ConnServer
	HealthChecks   map[string]handler.Check
}

// New builds the full route tree: the JSON API under /api/v1 plus the
// websocket, health and metrics endpoints at the root.
func New(svc Services, opts Options, loggers *logger.Loggers, m *metrics.HandlerMetrics) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(loggers))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(opts.AllowedOrigins))

	r.Route("/api/v1", func(api chi.Router) {
		SetupAuthRoutes(api, svc.Auth, loggers, m)
		SetupAdRoutes(api, svc.Ads, svc.Auth, opts.Idempotency, loggers, m)
		SetupChatRoutes(api, svc.Chats, svc.Auth, opts.Idempotency, loggers, m)
		SetupPaymentRoutes(api, svc.Payments, svc.Auth, opts.Idempotency, loggers, m)
		SetupAdminRoutes(api, svc.Admin, svc.Diagnostics, svc.Auth, loggers, m)
	})

	health := handler.NewHealthHandler(loggers, opts.HealthChecks)
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)
	r.Handle("/metrics", m.HTTPHandler())

	if opts.Realtime != nil {
		ws := handler.NewRealtimeHandler(opts.Realtime, svc.Auth, opts.AllowedOrigins, loggers, m)
		r.Get("/ws", ws.Connect)
	}

	return r
}

func SetupAuthRoutes(r chi.Router, authService service.AuthService, loggers *logger.Loggers, m *metrics.HandlerMetrics) {
	authHandler := handler.NewAuthHandler(authService, loggers, m)

	r.Post("/auth/register", authHandler.Register)
	r.Post("/auth/login", authHandler.Login)
	r.With(middleware.Authenticate(authService)).Get("/auth/me", authHandler.Me)
}

func SetupAdRoutes(r chi.Router, adService service.AdService, auth middleware.TokenParser, store cache.Cache, loggers *logger.Loggers, m *metrics.HandlerMetrics) {
	adHandler := handler.NewAdHandler(adService, loggers, m)

	r.Get("/ads", adHandler.List)
	r.With(middleware.OptionalAuth(auth)).Get("/ads/{id}", adHandler.Get)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		r.With(idempotent(store, loggers)...).Post("/ads", adHandler.Create)
		r.Put("/ads/{id}", adHandler.Update)
		r.Patch("/ads/{id}/status", adHandler.ChangeStatus)
		r.Delete("/ads/{id}", adHandler.Delete)
		r.Get("/me/ads", adHandler.ListMine)
	})
}

func SetupChatRoutes(r chi.Router, chatService service.ChatService, auth middleware.TokenParser, store cache.Cache, loggers *logger.Loggers, m *metrics.HandlerMetrics) {
	chatHandler := handler.NewChatHandler(chatService, loggers, m)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		r.With(idempotent(store, loggers)...).Post("/chats", chatHandler.Start)
		r.Get("/chats", chatHandler.List)
		r.Get("/chats/unread", chatHandler.Unread)
		r.Get("/chats/{id}", chatHandler.Get)
		r.Get("/chats/{id}/messages", chatHandler.Messages)
		r.With(idempotent(store, loggers)...).Post("/chats/{id}/messages", chatHandler.Send)
		r.Post("/chats/{id}/read", chatHandler.MarkRead)
	})
}

func SetupPaymentRoutes(r chi.Router, paymentService service.PaymentService, auth middleware.TokenParser, store cache.Cache, loggers *logger.Loggers, m *metrics.HandlerMetrics) {
	paymentHandler := handler.NewPaymentHandler(paymentService, loggers, m)

	// Signed by the processor, not by a user token.
	r.Post("/payments/webhook", paymentHandler.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		r.With(idempotent(store, loggers)...).Post("/payments/checkout", paymentHandler.Checkout)
		r.Get("/payments", paymentHandler.ListMine)
		r.Post("/payments/{id}/verify", paymentHandler.Verify)
	})
}

func SetupAdminRoutes(r chi.Router, adminService service.AdminService, diagnostics service.DiagnosticsService, auth service.AuthService, loggers *logger.Loggers, m *metrics.HandlerMetrics) {
	adminHandler := handler.NewAdminHandler(adminService, loggers, m)
	diagHandler := handler.NewDiagnosticsHandler(diagnostics, loggers, m)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Authenticate(auth))
		r.Use(middleware.RequireAdmin(auth, loggers))

		r.Get("/stats", adminHandler.Stats)
		r.Get("/users", adminHandler.ListUsers)
		r.Patch("/users/{id}/status", adminHandler.SetUserStatus)
		r.Patch("/users/{id}/role", adminHandler.SetUserRole)
		r.Get("/ads", adminHandler.ListAds)
		r.Post("/ads/{id}/moderate", adminHandler.Moderate)
		r.Delete("/ads/{id}", adminHandler.DeleteAd)
		r.Get("/payments", adminHandler.ListPayments)

		r.Route("/diagnostics", func(r chi.Router) {
			r.Get("/duplicate-accounts", diagHandler.DuplicateAccounts)
			r.Get("/ads/{id}/visibility", diagHandler.AdVisibility)
			r.Post("/ads/{id}/resync", diagHandler.ResyncAdCache)
			r.Get("/users/{id}/admin-check", diagHandler.AdminCheck)
			r.Post("/payments/{id}/verify", diagHandler.VerifyPayment)
		})
	})
}

// idempotent returns the replay middleware when a store is configured.
func idempotent(store cache.Cache, loggers *logger.Loggers) []func(http.Handler) http.Handler {
	if store == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{middleware.Idempotency(store, loggers)}
}
