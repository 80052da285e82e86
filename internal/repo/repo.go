package repo

import (
	"github.com/dkotelnikov/creditcore/internal/pg"
	eventrepo "github.com/dkotelnikov/creditcore/internal/repo/event-repo"
	identityrepo "github.com/dkotelnikov/creditcore/internal/repo/identity-repo"
	ledgerrepo "github.com/dkotelnikov/creditcore/internal/repo/ledger-repo"
	paymentrepo "github.com/dkotelnikov/creditcore/internal/repo/payment-repo"
	userrepo "github.com/dkotelnikov/creditcore/internal/repo/user-repo"
)

type Repositories struct {
	UserRepo     *userrepo.Repository
	IdentityRepo *identityrepo.Repository
	PaymentRepo  *paymentrepo.Repository
	LedgerRepo   *ledgerrepo.Repository
	EventRepo    *eventrepo.Repository
}

func New(conn pg.Database, txManager pg.TXManager) *Repositories {
	return &Repositories{
		UserRepo:     userrepo.New(conn),
		IdentityRepo: identityrepo.New(conn),
		PaymentRepo:  paymentrepo.New(conn, txManager),
		LedgerRepo:   ledgerrepo.New(conn, txManager),
		EventRepo:    eventrepo.New(conn),
	}
}
