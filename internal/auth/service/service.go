package service

import (
	"context"
	"errors"

	"marketplace_backend/internal/auth/password"
	"marketplace_backend/internal/auth/repository"
	"marketplace_backend/internal/auth/token"
	"marketplace_backend/internal/events"
	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgDeactivated        = "Your account has been deactivated"
	msgInvalidRefresh     = "Invalid refresh token"
	msgEmailTaken         = "Email already registered"
	msgUserNotFound       = "User not found"
)

// TokenIssuer signs and verifies the token pair handed out at login.
type TokenIssuer interface {
	GenerateAccessToken(userID uuid.UUID, role string) (string, error)
	GenerateRefreshToken(userID uuid.UUID) (string, error)
	ParseRefreshToken(raw string) (uuid.UUID, error)
}

// RegisterInput is the data accepted by Register.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
}

// Session is a user with a freshly issued token pair.
type Session struct {
	User         repository.User
	AccessToken  string
	RefreshToken string
}

type Service struct {
	repo   repository.AuthRepository
	tokens TokenIssuer
	bus    events.Bus
	log    *logger.Logger
}

func New(repo repository.AuthRepository, tokens TokenIssuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, tokens: tokens, bus: bus, log: log}
}

// Register creates a customer account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	hash, err := password.Hash(in.Password)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "failed to hash password", err).WithOp("auth.Register")
	}

	user, err := s.repo.CreateUser(ctx, repository.CreateUserParams{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		Role:         repository.RoleCustomer,
	})
	if errors.Is(err, repository.ErrEmailTaken) {
		return Session{}, apperr.Conflict(msgEmailTaken)
	}
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("create_user", err)
		return Session{}, err
	}

	s.log.AuthEvent("register", user.Email, true, "")
	if s.bus != nil {
		s.bus.Publish(ctx, events.UserRegistered{
			BaseEvent: events.NewBaseEvent(),
			UserID:    user.ID,
			Email:     user.Email,
			Role:      user.Role,
		})
	}

	return s.issue(user)
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, plainPassword string) (Session, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.AuthEvent("login", email, false, "unknown email")
		return Session{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("get_user_by_email", err)
		return Session{}, err
	}

	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		s.log.AuthEvent("login", email, false, "wrong password")
		return Session{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !user.IsActive {
		s.log.AuthEvent("login", email, false, "deactivated")
		return Session{}, apperr.Unauthorized(msgDeactivated)
	}

	s.log.AuthEvent("login", email, true, "")
	return s.issue(user)
}

// Refresh exchanges a valid refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	userID, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return Session{}, apperr.Unauthorized(msgInvalidRefresh)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, apperr.Unauthorized(msgInvalidRefresh)
	}
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("get_user_by_id", err)
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, apperr.Unauthorized(msgDeactivated)
	}

	return s.issue(user)
}

// Profile returns the user behind an authenticated request.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (repository.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.User{}, apperr.NotFound(msgUserNotFound)
	}
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("get_user_by_id", err)
	}
	return user, err
}

func (s *Service) issue(user repository.User) (Session, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "failed to sign token", err)
	}
	refresh, err := s.tokens.GenerateRefreshToken(user.ID)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.KindInternal, "failed to sign token", err)
	}
	return Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

var _ TokenIssuer = (*token.Issuer)(nil)
