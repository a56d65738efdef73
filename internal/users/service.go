package users

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/payables/internal/rbac"
	"github.com/odyssey-erp/payables/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) (int64, error)
	UpdateUser(ctx context.Context, u User) error
	DeleteUser(ctx context.Context, id int64) error
}

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditRecorder
	cost  int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditRecorder) *Service {
	return &Service{repo: repo, audit: audit, cost: bcrypt.DefaultCost}
}

// WithHashCost overrides the bcrypt cost, mainly for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// HashPassword returns the bcrypt hash of password.
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("users: hash password: %w", err)
	}
	return string(hash), nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context, actor shared.Actor) ([]User, error) {
	if err := rbac.Authorize(actor, shared.PermUsersManage); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if err := rbac.Authorize(actor, shared.PermUsersManage); err != nil {
		return User{}, err
	}
	return s.repo.GetUser(ctx, id)
}

// CreateUser validates req, hashes the password and stores the account.
func (s *Service) CreateUser(ctx context.Context, actor shared.Actor, req CreateUserRequest) (User, error) {
	if err := rbac.Authorize(actor, shared.PermUsersManage); err != nil {
		return User{}, err
	}
	return s.create(ctx, actor.UserID, req)
}

// Bootstrap creates an account without an acting user. It is used by the
// operator CLI to seed the first administrator.
func (s *Service) Bootstrap(ctx context.Context, req CreateUserRequest) (User, error) {
	return s.create(ctx, 0, req)
}

func (s *Service) create(ctx context.Context, actorID int64, req CreateUserRequest) (User, error) {
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return User{}, fmt.Errorf("%w: username required", shared.ErrValidation)
	}
	if len(req.Password) < 6 {
		return User{}, fmt.Errorf("%w: password must be at least 6 characters", shared.ErrValidation)
	}
	if !req.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, req.Role)
	}
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return User{}, err
	}
	u := User{
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Email:        strings.TrimSpace(req.Email),
		Role:         req.Role,
		Department:   strings.TrimSpace(req.Department),
		Status:       StatusActive,
	}
	id, err := s.repo.CreateUser(ctx, u)
	if err != nil {
		return User{}, err
	}
	u.ID = id
	s.record(ctx, actorID, shared.AuditCreated, id, "Created user "+u.Username)
	return u, nil
}

// UpdateUser changes profile, role and status, and the password when supplied.
func (s *Service) UpdateUser(ctx context.Context, actor shared.Actor, id int64, req UpdateUserRequest) (User, error) {
	if err := rbac.Authorize(actor, shared.PermUsersManage); err != nil {
		return User{}, err
	}
	if !req.Role.Valid() {
		return User{}, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, req.Role)
	}
	if req.Status != StatusActive && req.Status != StatusInactive {
		return User{}, fmt.Errorf("%w: unknown status %q", shared.ErrValidation, req.Status)
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	u.FullName = strings.TrimSpace(req.FullName)
	u.Email = strings.TrimSpace(req.Email)
	u.Role = req.Role
	u.Department = strings.TrimSpace(req.Department)
	u.Status = req.Status
	u.PasswordHash = ""
	if req.Password != "" {
		if len(req.Password) < 6 {
			return User{}, fmt.Errorf("%w: password must be at least 6 characters", shared.ErrValidation)
		}
		if u.PasswordHash, err = s.HashPassword(req.Password); err != nil {
			return User{}, err
		}
	}
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	u.PasswordHash = ""
	s.record(ctx, actor.UserID, shared.AuditUpdated, id, "Updated user "+u.Username)
	return u, nil
}

// DeleteUser removes an account. Users cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actor shared.Actor, id int64) error {
	if err := rbac.Authorize(actor, shared.PermUsersManage); err != nil {
		return err
	}
	if id == actor.UserID {
		return fmt.Errorf("%w: cannot delete the signed-in user", shared.ErrValidation)
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actor.UserID, shared.AuditDeleted, id, "Deleted user")
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, details string) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{UserID: actorID, Action: action, EntityType: "user", EntityID: id, Details: details})
}
