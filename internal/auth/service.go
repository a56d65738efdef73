package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/payables/internal/shared"
	"github.com/odyssey-erp/payables/internal/users"
)

// UserFinder is the slice of the users repository authentication needs.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
	GetUser(ctx context.Context, id int64) (users.User, error)
}

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service wraps authentication business rules.
type Service struct {
	users UserFinder
	audit AuditRecorder
}

// NewService constructs a new Service.
func NewService(finder UserFinder, audit AuditRecorder) *Service {
	return &Service{users: finder, audit: audit}
}

// Authenticate validates username/password credentials. Inactive accounts
// are rejected the same way as a wrong password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if user.Status != users.StatusActive {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			UserID: user.ID, Action: shared.AuditLogin, EntityType: "user", EntityID: user.ID,
			Details: "User logged in",
		})
	}
	return user, nil
}

// ResolveActor loads the account behind a session user id.
func (s *Service) ResolveActor(ctx context.Context, userID int64) (shared.Actor, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("auth: resolve actor: %w", err)
	}
	if user.Status != users.StatusActive {
		return shared.Actor{}, shared.ErrUnauthorized
	}
	return user.Actor(), nil
}
