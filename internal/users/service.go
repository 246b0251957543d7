// Package users registers customers and logs them in.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/ariefcatur/go-food-orders/internal/orders"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt input limit, in bytes
)

type Store interface {
	Create(ctx context.Context, u User) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

type TokenIssuer interface {
	Issue(userID, name, email string, admin bool) (string, error)
}

type Service struct {
	Store  Store
	Tokens TokenIssuer
	Log    *zap.Logger
	Cost   int // bcrypt cost, bcrypt.DefaultCost when zero
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return User{}, fmt.Errorf("%w: name is required", orders.ErrValidation)
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return User{}, fmt.Errorf("%w: email is invalid", orders.ErrValidation)
	}
	if len(req.Password) < minPasswordLen {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", orders.ErrValidation, minPasswordLen)
	}
	if len(req.Password) > maxPasswordLen {
		return User{}, fmt.Errorf("%w: password must be at most %d bytes", orders.ErrValidation, maxPasswordLen)
	}

	cost := s.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.Store.Create(ctx, User{Name: req.Name, Email: req.Email, PasswordHash: string(hash)})
	if err != nil {
		return User{}, err
	}
	s.Log.Info("user registered", zap.String("user_id", u.ID))
	return u, nil
}

// Login checks the password and issues a bearer token. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, req LoginRequest) (CurrentUser, error) {
	u, err := s.Store.FindByEmail(ctx, strings.TrimSpace(req.Email))
	if errors.Is(err, ErrNotFound) {
		return CurrentUser{}, ErrInvalidCredentials
	}
	if err != nil {
		return CurrentUser{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return CurrentUser{}, ErrInvalidCredentials
	}
	tok, err := s.Tokens.Issue(u.ID, u.Name, u.Email, u.IsAdmin)
	if err != nil {
		return CurrentUser{}, err
	}
	s.Log.Info("user logged in", zap.String("user_id", u.ID))
	return CurrentUser{ID: u.ID, Name: u.Name, Email: u.Email, IsAdmin: u.IsAdmin, Token: tok}, nil
}
