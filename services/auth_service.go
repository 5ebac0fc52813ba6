package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pdfdesk/apperrors"
	"pdfdesk/models"
	"pdfdesk/repository"
	"pdfdesk/utils"
)

type AuthResponse struct {
	User   *models.User      `json:"user"`
	Tokens *models.TokenPair `json:"tokens"`
}

type AuthService struct {
	users  repository.UserRepository
	tokens *utils.TokenManager
	logger *logrus.Logger
}

func NewAuthService(users repository.UserRepository, tokens *utils.TokenManager, logger *logrus.Logger) *AuthService {
	return &AuthService{users: users, tokens: tokens, logger: logger}
}

// Register creates a new user account on the free plan
func (as *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*AuthResponse, error) {
	// Hash password
	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    req.Email,
		Password: hashed,
		Role:     "user",
		IsActive: true,
		Subscription: models.Subscription{
			PlanSlug:     models.FreePlanSlug,
			BillingCycle: models.BillingMonthly,
			Status:       models.SubscriptionInactive,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = as.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, apperrors.ErrEmailTaken
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	as.logger.WithField("user_id", user.ID.Hex()).Info("User registered")
	return as.issue(user)
}

// Login authenticates a user by email and password
func (as *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*AuthResponse, error) {
	user, err := as.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if !utils.CheckPasswordHash(req.Password, user.Password) {
		as.logger.WithField("user_id", user.ID.Hex()).Warn("Failed login attempt")
		return nil, apperrors.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled
	}

	// Last login is informational only
	if err := as.users.TouchLogin(ctx, user.ID, time.Now().UTC()); err != nil {
		as.logger.WithError(err).Warn("Failed to record login time")
	}
	return as.issue(user)
}

// Refresh exchanges a valid refresh token for a new token pair
func (as *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := as.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.ErrInvalidToken.WithError(err)
	}
	user, err := as.Me(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	return as.issue(user)
}

// Me loads an active user by id
func (as *AuthService) Me(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := as.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled
	}
	return user, nil
}

func (as *AuthService) issue(user *models.User) (*AuthResponse, error) {
	tokens, err := as.tokens.GenerateTokenPair(user)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}
	return &AuthResponse{User: user, Tokens: tokens}, nil
}
