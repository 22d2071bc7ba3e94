package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/repositories"
)

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Username  string `json:"username" validate:"required,min=3,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
}

// AuthService handles business logic for authentication and authorization.
type AuthService struct {
	store      repositories.Repositories
	jwtSecret  []byte
	tokenDurat time.Duration // Duration for which JWT is valid
	log        *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(store repositories.Repositories, jwtSecret string, log *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour, // Token valid for 24 hours
		log:        logger.OrNop(log).Named("auth"),
	}
}

// RegisterUser creates a user with a hashed password and links the customer
// record for the same email, creating it if needed.
func (s *AuthService) RegisterUser(ctx context.Context, in RegisterInput) (*models.User, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username: in.Username,
		Email:    in.Email,
		Password: string(hashedPassword),
	}
	err = s.store.WithinTransaction(ctx, func(tx repositories.Repositories) error {
		if _, err := tx.Users().GetByUsername(ctx, in.Username); err == nil {
			return models.ErrUserExists
		} else if !errors.Is(err, models.ErrUserNotFound) {
			return err
		}
		if _, err := tx.Users().GetByEmail(ctx, in.Email); err == nil {
			return models.ErrUserExists
		} else if !errors.Is(err, models.ErrUserNotFound) {
			return err
		}

		if err := tx.Users().Create(ctx, user); err != nil {
			return fmt.Errorf("failed to register user: %w", err)
		}
		return s.linkCustomer(ctx, tx, user, in)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	user.Password = ""
	return user, nil
}

func (s *AuthService) linkCustomer(ctx context.Context, tx repositories.Repositories, user *models.User, in RegisterInput) error {
	customer, err := tx.Customers().GetByEmail(ctx, user.Email)
	switch {
	case err == nil:
		if customer.UserID != nil {
			return models.ErrUserExists
		}
		return tx.Customers().LinkUser(ctx, customer.ID, user.ID)
	case !errors.Is(err, models.ErrCustomerNotFound):
		return err
	}

	firstName := in.FirstName
	if firstName == "" {
		firstName = user.Username
	}
	userID := user.ID
	return tx.Customers().Create(ctx, &models.Customer{
		UserID:    &userID,
		FirstName: firstName,
		LastName:  in.LastName,
		Email:     user.Email,
	})
}

// LoginUser authenticates a user and returns a JWT token if successful.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.Users().GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return "", models.ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", models.ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(s.tokenDurat).Unix(),
		"iat":      time.Now().Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.log.Debug("token validation failed", zap.Error(err))
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// UserIDFromClaims extracts the user_id claim. JSON numbers decode as float64.
func UserIDFromClaims(claims jwt.MapClaims) (uint, error) {
	switch v := claims["user_id"].(type) {
	case float64:
		if v >= 1 {
			return uint(v), nil
		}
	case uint:
		if v > 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("invalid token: missing user_id claim")
}
