package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"classifieds/internal/domain"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Claims is the JWT payload. Subject holds the user ID.
type Claims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller extracted from a token.
type Identity struct {
	UserID int64
	Role   domain.Role
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	ParseToken(token string) (*Identity, error)
	Me(ctx context.Context, userID int64) (*domain.User, error)
}

type authService struct {
	users    repository.UserRepository
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	metrics  *metrics.ServiceMetrics
	tracer   trace.Tracer
}

func NewAuthService(users repository.UserRepository, secret string, tokenTTL time.Duration, metrics *metrics.ServiceMetrics) AuthService {
	return &authService{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
		metrics:  metrics,
		tracer:   otel.Tracer("classifieds/service"),
	}
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Register")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("Register", &status, time.Now())

	if len(in.Password) < minPasswordLength {
		status = "invalid_input"
		return nil, ErrWeakPassword
	}

	email := domain.NormalizeEmail(in.Email)

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		status = "conflict"
		return nil, ErrEmailTaken
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fail(span, &status, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fail(span, &status, err)
	}

	user, err := s.users.Create(ctx, &domain.User{
		Email:        email,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			status = "conflict"
			return nil, ErrEmailTaken
		}
		return nil, fail(span, &status, err)
	}
	return user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Login")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("Login", &status, time.Now())

	user, err := s.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			status = "unauthorized"
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fail(span, &status, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		status = "unauthorized"
		return "", nil, ErrInvalidCredentials
	}
	if user.IsBanned() {
		status = "forbidden"
		return "", nil, ErrUserBanned
	}

	token, err := s.issue(user)
	if err != nil {
		return "", nil, fail(span, &status, err)
	}
	return token, user, nil
}

func (s *authService) issue(user *domain.User) (string, error) {
	now := s.now()
	claims := Claims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) ParseToken(token string) (*Identity, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: userID, Role: claims.Role}, nil
}

func (s *authService) Me(ctx context.Context, userID int64) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "Me")
	defer span.End()

	status := "success"
	defer s.metrics.Observe("Me", &status, time.Now())

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(span, &status, err, ErrUserNotFound)
	}
	return user, nil
}
