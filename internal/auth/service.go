// Package auth issues and validates the bearer tokens that establish a
// caller identity. The identity is the credential id; every ledger address
// the caller owns is derived from it.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bountyboard/backend/internal/apperr"
	"github.com/bountyboard/backend/internal/config"
	"github.com/bountyboard/backend/internal/models"
	"github.com/bountyboard/backend/internal/store"
)

// ErrInvalidCredentials is returned by Login for an unknown handle or a
// wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Service interface {
	Register(ctx context.Context, handle, password string) (*models.Credential, error)
	Login(ctx context.Context, handle, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, error)
}

type service struct {
	store  store.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(st store.Store, cfg config.Auth) *service {
	return &service{
		store:  st,
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, handle, password string) (*models.Credential, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, apperr.InvalidInput("handle is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, apperr.InvalidInput("password: %v", err)
	}
	cred := &models.Credential{
		ID:           uuid.New(),
		Handle:       handle,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertCredential(ctx, cred)
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, apperr.New(apperr.CodeAlreadyExists, "handle %q already registered", handle)
	}
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}
	return cred, nil
}

func (s *service) Login(ctx context.Context, handle, password string) (string, error) {
	cred, err := s.store.GetCredentialByHandle(ctx, strings.ToLower(strings.TrimSpace(handle)))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(cred.ID)
}

func (s *service) issueToken(id uuid.UUID) (string, error) {
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   id.String(),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, err
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(c.Subject)
}
