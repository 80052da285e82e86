package service

import (
	"github.com/dkotelnikov/creditcore/internal/config"
	authhandlers "github.com/dkotelnikov/creditcore/internal/handlers/auth"
	balancehandlers "github.com/dkotelnikov/creditcore/internal/handlers/balance"
	webhookhandlers "github.com/dkotelnikov/creditcore/internal/handlers/webhook"
	"github.com/dkotelnikov/creditcore/internal/pg"
	"github.com/dkotelnikov/creditcore/internal/repo"
	"github.com/dkotelnikov/creditcore/internal/service/authservice"
	"github.com/dkotelnikov/creditcore/internal/service/ledgerservice"
	"github.com/dkotelnikov/creditcore/internal/service/resolverservice"
	"github.com/dkotelnikov/creditcore/internal/service/webhookservice"
	pkgauth "github.com/dkotelnikov/creditcore/pkg/auth"
)

type Services struct {
	AuthService    authhandlers.Service
	LedgerService  balancehandlers.Service
	WebhookService webhookhandlers.Service

	// Ledger is the concrete engine, consumed by the reconciler.
	Ledger *ledgerservice.Service
}

func New(cfg *config.Config, repos *repo.Repositories, txManager pg.TXManager, providerClient webhookservice.ProviderClient, jwtService pkgauth.JWTServiceInterface) *Services {
	ledgerService := ledgerservice.New(repos.LedgerRepo, repos.PaymentRepo, txManager)

	planNames := make(map[string]struct{})
	for priceID := range cfg.PriceCredits() {
		planNames[priceID] = struct{}{}
	}
	resolverService := resolverservice.New(repos.UserRepo, repos.IdentityRepo, cfg.ProviderName, planNames)

	webhookService := webhookservice.New(cfg, repos.EventRepo, repos.PaymentRepo, resolverService, ledgerService, providerClient, txManager)
	authService := authservice.New(repos.UserRepo, &pkgauth.HashService{}, jwtService)

	return &Services{
		AuthService:    authService,
		LedgerService:  ledgerService,
		WebhookService: webhookService,
		Ledger:         ledgerService,
	}
}
