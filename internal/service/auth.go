// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services accept plain values and the authenticated *model.User, never HTTP
// types, and return apperror values that the handlers translate into status
// codes. Every dependency is an interface or a small concrete helper passed
// in through a New function, so tests swap the database for in-memory fakes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/task-manager/internal/apperror"
	"github.com/sakif/task-manager/internal/auth"
	"github.com/sakif/task-manager/internal/model"
	"github.com/sakif/task-manager/internal/notify"
	"github.com/sakif/task-manager/internal/repository"
)

// Client-facing messages for authentication failures. Login uses one message
// for "no such email" and "wrong password" so callers cannot enumerate accounts.
const (
	msgLoginFailed  = "Unable to login"
	msgNotAuthentic = "Please authenticate."
)

// AuthService owns the session lifecycle: sign-up, login, token checks and
// revocation.
//
// A session is a signed JWT that is also recorded in the user's active token
// set. Signature checks alone are not enough: Authenticate also requires the
// token to still be in that set, which is what makes logout effective.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	mailer    notify.Mailer
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	mailer notify.Mailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		mailer:    mailer,
		logger:    logger,
	}
}

// AuthResult bundles the user with the session token just issued.
type AuthResult struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

// SignUpInput is the data needed to open an account.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Age      int
}

// SignUp validates the input, stores the account with a hashed password,
// opens the first session and sends the welcome email.
//
// If the session cannot be opened the new account is removed again, so the
// client can retry with the same email.
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput) (*AuthResult, error) {
	name, err := normalizeName(in.Name)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	password, err := normalizePassword(in.Password)
	if err != nil {
		return nil, err
	}
	if err := validateAge(in.Age); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.Internal("Unable to create account", err)
	}

	user := &model.User{
		Name:         name,
		Age:          in.Age,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.ValidationFailed("email", "Email is already in use")
		}
		return nil, apperror.Internal("Unable to create account", err)
	}

	token, err := s.issueToken(ctx, user)
	if err != nil {
		if delErr := s.users.DeleteUser(ctx, user.ID); delErr != nil {
			s.logger.Error("removing account after failed sign-up",
				slog.String("userID", user.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("user signed up", slog.String("userID", user.ID))

	if err := s.mailer.SendWelcome(ctx, user.Email, user.Name); err != nil {
		s.logger.Warn("welcome email failed",
			slog.String("userID", user.ID),
			slog.String("error", err.Error()),
		)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Login checks credentials and opens a new session. Earlier sessions stay
// valid.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeLogin(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgLoginFailed)
		}
		return nil, apperror.Internal(msgLoginFailed, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, strings.TrimSpace(password)); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, apperror.Unauthorized(msgLoginFailed)
		}
		return nil, apperror.Internal(msgLoginFailed, err)
	}

	token, err := s.issueToken(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in",
		slog.String("userID", user.ID),
		slog.Int("sessions", len(user.Tokens)),
	)
	return &AuthResult{User: user, Token: token}, nil
}

// Authenticate resolves a bearer token to its user. It fails when the
// signature is bad, the user is gone, or the token has been revoked.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		return nil, apperror.Unauthorized(msgNotAuthentic)
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgNotAuthentic)
		}
		return nil, apperror.Internal("Unable to authenticate", err)
	}

	if !user.HasToken(token) {
		return nil, apperror.Unauthorized(msgNotAuthentic)
	}
	return user, nil
}

// Logout revokes exactly one session. Revoking an absent token is a no-op.
func (s *AuthService) Logout(ctx context.Context, user *model.User, token string) error {
	if err := s.users.RemoveToken(ctx, user.ID, token); err != nil {
		return apperror.Internal("Unable to logout", err)
	}

	kept := make([]string, 0, len(user.Tokens))
	for _, t := range user.Tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	user.Tokens = kept

	s.logger.Info("user logged out", slog.String("userID", user.ID))
	return nil
}

// LogoutAll revokes every session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, user *model.User) error {
	if err := s.users.ClearTokens(ctx, user.ID); err != nil {
		return apperror.Internal("Unable to logout", err)
	}
	user.Tokens = nil

	s.logger.Info("user logged out everywhere", slog.String("userID", user.ID))
	return nil
}

// GetUser returns the profile of the given user.
func (s *AuthService) GetUser(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, apperror.Internal("Unable to load user", err)
	}
	return user, nil
}

// issueToken signs a new session token and appends it to the user's set.
func (s *AuthService) issueToken(ctx context.Context, user *model.User) (string, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", apperror.Internal("Unable to issue token", fmt.Errorf("signing: %w", err))
	}
	if err := s.users.AddToken(ctx, user.ID, token); err != nil {
		return "", apperror.Internal("Unable to issue token", err)
	}
	user.Tokens = append(user.Tokens, token)
	return token, nil
}

// normalizeLogin puts an email into its stored form without validating it;
// a malformed address simply finds no account.
func normalizeLogin(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
