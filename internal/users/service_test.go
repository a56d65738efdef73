package users

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/payables/internal/shared"
)

type memoryRepo struct {
	users  map[int64]User
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]User{}, nextID: 1}
}

func (m *memoryRepo) ListUsers(context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memoryRepo) GetUser(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, shared.ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) FindByUsername(_ context.Context, username string) (User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (m *memoryRepo) CreateUser(_ context.Context, u User) (int64, error) {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return 0, fmt.Errorf("%w: duplicate", shared.ErrConflict)
		}
	}
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = u
	return u.ID, nil
}

func (m *memoryRepo) UpdateUser(_ context.Context, u User) error {
	existing, ok := m.users[u.ID]
	if !ok {
		return shared.ErrNotFound
	}
	if u.PasswordHash == "" {
		u.PasswordHash = existing.PasswordHash
	}
	m.users[u.ID] = u
	return nil
}

func (m *memoryRepo) DeleteUser(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type auditSink struct{ logs []shared.AuditLog }

func (a *auditSink) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

var admin = shared.Actor{UserID: 99, Username: "admin", Role: shared.RoleAdmin}

func newTestService() (*Service, *memoryRepo, *auditSink) {
	repo := newMemoryRepo()
	audit := &auditSink{}
	return NewService(repo, audit).WithHashCost(bcrypt.MinCost), repo, audit
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo, audit := newTestService()
	u, err := svc.CreateUser(context.Background(), admin, CreateUserRequest{
		Username: "alice", Password: "secret1", Role: shared.RoleAccountant,
	})
	require.NoError(t, err)
	stored := repo.users[u.ID]
	require.NotEqual(t, "secret1", stored.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))
	require.Equal(t, StatusActive, stored.Status)
	require.Len(t, audit.logs, 1)
	require.Equal(t, shared.AuditCreated, audit.logs[0].Action)
}

func TestCreateUserDuplicateUsername(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	req := CreateUserRequest{Username: "bob", Password: "secret1", Role: shared.RoleViewer}
	_, err := svc.CreateUser(ctx, admin, req)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, admin, req)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	_, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "x", Password: "short", Role: shared.RoleViewer})
	require.ErrorIs(t, err, shared.ErrValidation)
	_, err = svc.CreateUser(ctx, admin, CreateUserRequest{Username: "x", Password: "longenough", Role: "root"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateUserRequiresUsersManage(t *testing.T) {
	svc, _, _ := newTestService()
	accountant := shared.Actor{UserID: 5, Role: shared.RoleAccountant}
	_, err := svc.CreateUser(context.Background(), accountant, CreateUserRequest{Username: "x", Password: "secret1", Role: shared.RoleViewer})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestUpdateUserKeepsPasswordWhenEmpty(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()
	u, err := svc.CreateUser(ctx, admin, CreateUserRequest{Username: "carol", Password: "secret1", Role: shared.RoleViewer})
	require.NoError(t, err)
	before := repo.users[u.ID].PasswordHash

	updated, err := svc.UpdateUser(ctx, admin, u.ID, UpdateUserRequest{Role: shared.RoleApprover, Status: StatusInactive})
	require.NoError(t, err)
	require.Equal(t, shared.RoleApprover, updated.Role)
	require.Equal(t, before, repo.users[u.ID].PasswordHash)

	_, err = svc.UpdateUser(ctx, admin, u.ID, UpdateUserRequest{Role: shared.RoleApprover, Status: StatusActive, Password: "newsecret"})
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[u.ID].PasswordHash), []byte("newsecret")))
}

func TestDeleteUserRejectsSelf(t *testing.T) {
	svc, _, _ := newTestService()
	err := svc.DeleteUser(context.Background(), admin, admin.UserID)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, svc.DeleteUser(context.Background(), admin, 12345), shared.ErrNotFound)
}
