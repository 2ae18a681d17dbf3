package services

import (
	"context"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

type AuthService struct {
	store  *repository.Store
	tokens *TokenService
	log    *zap.Logger
}

func NewAuthService(store *repository.Store, tokens *TokenService, log *zap.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, log: log}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*TokenResponse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Validation("name is required")
	}
	email := models.NormalizeEmail(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return nil, Validation("a valid email is required")
	}
	if err := utils.ValidatePassword(in.Password); err != nil {
		return nil, Validation("%v", err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Name:           name,
		Email:          email,
		PasswordHash:   hash,
		Role:           models.RoleUser,
		ProviderStatus: models.ProviderStatusNone,
		IsActive:       true,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		if repository.IsDuplicate(err) {
			return nil, Conflict("an account with this email already exists")
		}
		return nil, err
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return s.tokens.Issue(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	user, err := s.store.Users.FindByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, Unauthorized("invalid email or password")
		}
		return nil, err
	}
	if !utils.CheckPasswordHash(password, user.PasswordHash) {
		return nil, Unauthorized("invalid email or password")
	}
	if !user.IsActive {
		return nil, Forbidden("account is disabled")
	}
	return s.tokens.Issue(user)
}

// Resolve maps a bearer token to the current user record, so role changes apply without a new token.
func (s *AuthService) Resolve(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, Unauthorized("invalid or expired token")
	}
	user, err := s.store.Users.FindByID(ctx, claims.UserID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, Unauthorized("user no longer exists")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, Unauthorized("account is disabled")
	}
	return user, nil
}

func (s *AuthService) Me(ctx context.Context, actor Actor) (*models.User, error) {
	user, err := s.store.Users.FindByID(ctx, actor.ID)
	if err != nil {
		return nil, lookupErr(err, "user not found")
	}
	return user, nil
}

// SetRole is the admin override for a user's role.
func (s *AuthService) SetRole(ctx context.Context, actor Actor, userID uint, rawRole string) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only an admin can change roles")
	}
	role := models.UserRole(rawRole)
	if !models.IsValidRole(role) {
		return nil, Validation("role must be user, provider or admin")
	}
	user, err := s.store.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "user not found")
	}

	user.Role = role
	if role == models.RoleProvider {
		user.ProviderStatus = models.ProviderStatusApproved
	}
	if err := s.store.Users.Save(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user role changed",
		zap.Uint("user_id", user.ID),
		zap.String("role", string(role)),
		zap.Uint("admin_id", actor.ID))
	return user, nil
}
