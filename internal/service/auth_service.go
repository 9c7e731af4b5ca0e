package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yakoovad/scrumboard/internal/auth"
	"github.com/yakoovad/scrumboard/internal/model"
	"github.com/yakoovad/scrumboard/internal/repository"
	"github.com/yakoovad/scrumboard/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

type AuthService struct {
	users repository.UserRepository

	tokenTTL   time.Duration
	bcryptCost int
}

func NewAuthService() *AuthService {
	return &AuthService{
		tokenTTL:   defaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// Signup registers a user and returns its id.
func (a *AuthService) Signup(ctx context.Context, email, username, password string) (string, *Error) {
	l := logger.FromContext(ctx)

	hash, err := auth.HashPassword(password, a.bcryptCost)
	if err != nil {
		l.Error("failed to hash password", zap.Error(err))
		return "", NewError(ErrorCodeUnspecified, "failed to create user")
	}

	user := &repository.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
	}

	err = a.users.Create(ctx, user)
	if errors.Is(err, repository.ErrAlreadyExists) {
		l.Warn("email already registered", zap.String("email", email))
		return "", NewError(ErrorCodeEmailExists, "E-Mail already exists. Please, try a different one.")
	}
	if err != nil {
		l.Error("failed to create user", zap.String("email", email), zap.Error(err))
		return "", NewError(ErrorCodeUnspecified, "failed to create user")
	}

	l.Info("user signed up", zap.String("user_id", user.ID))
	return user.ID, nil
}

// Login checks the credentials and issues a session token.
func (a *AuthService) Login(ctx context.Context, email, password string) (*model.Session, *Error) {
	l := logger.FromContext(ctx)

	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		l.Warn("login with unknown email", zap.String("email", email))
		return nil, NewError(ErrorCodeUnauthorized, "No user with this email found.")
	}
	if err != nil {
		l.Error("failed to get user", zap.String("email", email), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to get user")
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		l.Warn("login with wrong password", zap.String("user_id", user.ID))
		return nil, NewError(ErrorCodeUnauthorized, "Password is incorrect.")
	}

	token, err := auth.GenerateToken(user.ID, user.Email, a.tokenTTL)
	if err != nil {
		l.Error("failed to generate token", zap.String("user_id", user.ID), zap.Error(err))
		return nil, NewError(ErrorCodeUnspecified, "failed to generate token")
	}

	return &model.Session{
		Token:     token,
		ExpiresIn: a.tokenTTL.Milliseconds(),
		UserID:    user.ID,
	}, nil
}

func (a *AuthService) WithUserRepo(repo repository.UserRepository) *AuthService {
	a.users = repo
	return a
}

func (a *AuthService) WithTokenTTL(ttl time.Duration) *AuthService {
	a.tokenTTL = ttl
	return a
}

func (a *AuthService) WithBcryptCost(cost int) *AuthService {
	a.bcryptCost = cost
	return a
}
