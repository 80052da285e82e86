package handlers

import (
	"net/http"

	_ "github.com/dkotelnikov/creditcore/docs"
	adminhandlers "github.com/dkotelnikov/creditcore/internal/handlers/admin"
	authhandlers "github.com/dkotelnikov/creditcore/internal/handlers/auth"
	balancehandlers "github.com/dkotelnikov/creditcore/internal/handlers/balance"
	webhookhandlers "github.com/dkotelnikov/creditcore/internal/handlers/webhook"
	"github.com/dkotelnikov/creditcore/internal/service"
	"github.com/dkotelnikov/creditcore/pkg/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
	Anonymize(w http.ResponseWriter, r *http.Request)
}

type BalanceHandler interface {
	GetBalance(w http.ResponseWriter, r *http.Request)
	Debit(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	HandleEvent(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	Reconcile(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	AuthHandler    AuthHandler
	BalanceHandler BalanceHandler
	WebhookHandler WebhookHandler
	AdminHandler   AdminHandler

	jwtService auth.JWTServiceInterface
}

func New(s *service.Services, reconciler adminhandlers.Reconciler, jwtService auth.JWTServiceInterface) *Handlers {
	return &Handlers{
		AuthHandler:    authhandlers.New(s.AuthService),
		BalanceHandler: balancehandlers.New(s.LedgerService),
		WebhookHandler: webhookhandlers.New(s.WebhookService),
		AdminHandler:   adminhandlers.New(reconciler),
		jwtService:     jwtService,
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))

	r.Post("/api/webhooks/payment", h.WebhookHandler.HandleEvent)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.AuthHandler.Register)
		r.Post("/login", h.AuthHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(h.jwtService))
			r.Route("/balance", func(r chi.Router) {
				r.Get("/", h.BalanceHandler.GetBalance)
				r.Post("/debit", h.BalanceHandler.Debit)
			})
			r.Get("/transactions", h.BalanceHandler.GetTransactions)
			r.Post("/anonymize", h.AuthHandler.Anonymize)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(h.jwtService))
		r.Post("/api/admin/reconcile", h.AdminHandler.Reconcile)
	})

	return r
}
