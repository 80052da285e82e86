package resolverservice

import (
	"context"
	"strconv"
	"strings"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"go.uber.org/zap"
)

type UserRepo interface {
	FindByID(ctx context.Context, id int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	CreateOrFetch(ctx context.Context, email, displayName string) (*domain.User, error)
}

type IdentityRepo interface {
	FindUserID(ctx context.Context, provider, providerCustomerID string) (int64, error)
	Link(ctx context.Context, provider, providerCustomerID string, userID int64) error
}

// Input carries everything an event may offer for identification. Any field
// can hold provider-side placeholder junk; Resolve screens before trusting.
type Input struct {
	ProviderCustomerID string
	Email              string
	Metadata           map[string]string
}

type Service struct {
	userRepo     UserRepo
	identityRepo IdentityRepo
	provider     string

	// planNames holds price-table identifiers; a metadata value matching one
	// of them is a misplaced plan name, not a user identifier.
	planNames map[string]struct{}
}

func New(userRepo UserRepo, identityRepo IdentityRepo, provider string, planNames map[string]struct{}) *Service {
	if planNames == nil {
		planNames = map[string]struct{}{}
	}
	return &Service{
		userRepo:     userRepo,
		identityRepo: identityRepo,
		provider:     provider,
		planNames:    planNames,
	}
}

// Resolve maps event identifiers to an internal user without provisioning.
// Fallback order: identity cache, internal user id from metadata, email.
func (s *Service) Resolve(ctx context.Context, in Input) (int64, error) {
	return s.resolve(ctx, in, false)
}

// ResolveOrCreate is Resolve with provisioning: when nothing matches but a
// usable email is present, a user is provisioned idempotently by email.
func (s *Service) ResolveOrCreate(ctx context.Context, in Input) (int64, error) {
	return s.resolve(ctx, in, true)
}

func (s *Service) resolve(ctx context.Context, in Input, allowCreate bool) (int64, error) {
	customerID := s.clean(in.ProviderCustomerID)
	if customerID != "" {
		userID, err := s.identityRepo.FindUserID(ctx, s.provider, customerID)
		if err != nil {
			return 0, err
		}
		if userID != 0 {
			return userID, nil
		}
	}

	if userID, err := s.fromMetadata(ctx, in.Metadata); err != nil {
		return 0, err
	} else if userID != 0 {
		s.link(ctx, customerID, userID)
		return userID, nil
	}

	email := s.cleanEmail(in.Email)
	if email == "" {
		email = s.cleanEmail(in.Metadata["email"])
	}
	if email != "" {
		user, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return 0, err
		}
		if user != nil {
			s.link(ctx, customerID, user.ID)
			return user.ID, nil
		}

		if allowCreate {
			user, err := s.userRepo.CreateOrFetch(ctx, email, s.clean(in.Metadata["name"]))
			if err != nil {
				return 0, err
			}
			zap.L().Info("provisioned user from event", zap.Int64("userID", user.ID))
			s.link(ctx, customerID, user.ID)
			return user.ID, nil
		}
	}

	return 0, domain.ErrUnresolvableUser
}

// fromMetadata follows the internal user id embedded at checkout time, the
// primary path for first-time buyers. The id must point at a real user.
func (s *Service) fromMetadata(ctx context.Context, metadata map[string]string) (int64, error) {
	for _, key := range []string{"user_id", "internal_user_id"} {
		raw := s.clean(metadata[key])
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		user, err := s.userRepo.FindByID(ctx, id)
		if err != nil {
			return 0, err
		}
		if user != nil {
			return user.ID, nil
		}
		zap.L().Warn("metadata user id points at no user", zap.Int64("userID", id))
	}
	return 0, nil
}

func (s *Service) link(ctx context.Context, customerID string, userID int64) {
	if customerID == "" {
		return
	}
	// Cache miss on the next event is the only cost of a failed link.
	if err := s.identityRepo.Link(ctx, s.provider, customerID, userID); err != nil {
		zap.L().Warn("can't cache provider identity", zap.Error(err))
	}
}

var sentinelValues = map[string]struct{}{
	"null": {}, "none": {}, "nil": {}, "undefined": {},
	"test": {}, "example": {}, "user_id": {}, "email": {}, "name": {},
}

// clean screens placeholder values the provider dashboard and checkout
// templates are known to leak: template markers, bare unix timestamps and
// plan-name strings. Such values are treated as absent, never as identifiers.
func (s *Service) clean(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "{{") || strings.Contains(value, "}}") ||
		(strings.Contains(value, "<") && strings.Contains(value, ">")) {
		return ""
	}
	if _, ok := sentinelValues[strings.ToLower(value)]; ok {
		return ""
	}
	if _, ok := s.planNames[value]; ok {
		return ""
	}
	if looksLikeTimestamp(value) {
		return ""
	}
	return value
}

func (s *Service) cleanEmail(value string) string {
	value = s.clean(value)
	if value == "" || !strings.Contains(value, "@") {
		return ""
	}
	return strings.ToLower(value)
}

// looksLikeTimestamp flags all-digit strings in unix-seconds or
// unix-milliseconds range; internal user ids never reach ten digits.
func looksLikeTimestamp(value string) bool {
	if len(value) < 10 || len(value) > 13 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
