package authservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dkotelnikov/creditcore/internal/domain"
	"github.com/dkotelnikov/creditcore/pkg/auth"
	"go.uber.org/zap"
)

const tokenTTL = 24 * time.Hour

type Repo interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Anonymize(ctx context.Context, id int64) error
}

var (
	ErrEmailTaken         = errors.New("email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type Service struct {
	userRepo    Repo
	hashService auth.HashServiceInterface
	jwtService  auth.JWTServiceInterface
}

func New(repo Repo, hashService auth.HashServiceInterface, jwtService auth.JWTServiceInterface) *Service {
	return &Service{
		userRepo:    repo,
		hashService: hashService,
		jwtService:  jwtService,
	}
}

// Register provisions a user through the signup path. A user created here
// may later be matched by the resolver through the same email.
func (s *Service) Register(ctx context.Context, email, displayName, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existingUser, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		zap.L().Error("can't find user: ", zap.Error(err))
		return nil, err
	}
	if existingUser != nil {
		zap.L().Info("user already exists", zap.String("email", email))
		return nil, ErrEmailTaken
	}

	hashedPassword, err := s.hashService.HashPassword(password)
	if err != nil {
		zap.L().Error("can't hash password: ", zap.Error(err))
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hashedPassword,
	}
	newUser, err := s.userRepo.Create(ctx, user)
	if err != nil {
		zap.L().Error("can't create user: ", zap.Error(err))
		return nil, err
	}

	zap.L().Info("user successfully registered", zap.String("email", email))
	return newUser, nil
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil || user == nil {
		zap.L().Warn("invalid credentials", zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if ok := s.hashService.ComparePassword(user.PasswordHash, password); !ok {
		zap.L().Warn("invalid credentials", zap.String("email", email))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GenerateToken(userID int64) (string, error) {
	return s.jwtService.GenerateJWT(userID, time.Now().Add(tokenTTL))
}

// Anonymize scrubs the user's personal data while keeping the ledger intact.
func (s *Service) Anonymize(ctx context.Context, userID int64) error {
	if err := s.userRepo.Anonymize(ctx, userID); err != nil {
		zap.L().Error("can't anonymize user", zap.Error(err))
		return err
	}
	zap.L().Info("user anonymized", zap.Int64("userID", userID))
	return nil
}
