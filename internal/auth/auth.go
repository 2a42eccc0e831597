// Package auth issues and verifies login tokens for ledger accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/codepaste/typer/internal/db"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/models"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmptyPassword      = errors.New("password must not be empty")
)

// Session is the result of a successful signup or login.
type Session struct {
	Account *models.Account
	Token   string
}

// Service is the login boundary of the typer.
type Service interface {
	Signup(ctx context.Context, email, password string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	Authenticate(ctx context.Context, token string) (*models.Account, error)
}

// Store is the part of the account store auth reads.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// Opener creates accounts with their signup bonus.
type Opener interface {
	Open(ctx context.Context, email, passwordHash string) (*models.Account, error)
}

type service struct {
	store  Store
	opener Opener
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithBcryptCost overrides the bcrypt work factor.
func WithBcryptCost(cost int) Option {
	return func(s *service) { s.cost = cost }
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates an auth service signing HS256 tokens with secret.
func NewService(store Store, opener Opener, secret string, ttl time.Duration, opts ...Option) Service {
	s := &service{
		store:  store,
		opener: opener,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

// The ledger opens accounts in production.
var _ Opener = (*ledger.Ledger)(nil)

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (s *service) Signup(ctx context.Context, email, password string) (*Session, error) {
	email = db.NormalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc, err := s.opener.Open(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}

	token, err := s.issueToken(acc)
	if err != nil {
		return nil, err
	}

	logger.Info("signup", "account", acc.ID)
	return &Session{Account: acc, Token: token}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*Session, error) {
	acc, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !acc.IsActive {
		return nil, ErrUnauthorized
	}

	now := s.now()
	if err := s.store.TouchLastLogin(ctx, acc.ID, now); err != nil {
		logger.Warn("failed to record login", "account", acc.ID, "error", err)
	} else {
		acc.LastLogin = now.UTC().Truncate(time.Second)
	}

	token, err := s.issueToken(acc)
	if err != nil {
		return nil, err
	}
	return &Session{Account: acc, Token: token}, nil
}

func (s *service) Authenticate(ctx context.Context, token string) (*models.Account, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "Bearer ")
	if token == "" {
		return nil, ErrUnauthorized
	}

	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid || c.Subject == "" {
		return nil, ErrUnauthorized
	}

	acc, err := s.store.FindByID(ctx, c.Subject)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !acc.IsActive {
		return nil, fmt.Errorf("%w: account disabled", ErrUnauthorized)
	}
	return acc, nil
}

func (s *service) issueToken(acc *models.Account) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acc.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Email: acc.Email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
