package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/shared"
)

func TestRoleMatrix(t *testing.T) {
	cases := []struct {
		role shared.Role
		perm string
		want bool
	}{
		{shared.RoleViewer, shared.PermDashboardView, true},
		{shared.RoleViewer, shared.PermReportsView, true},
		{shared.RoleViewer, shared.PermPaymentsView, false},
		{shared.RoleAccountant, shared.PermPaymentsRequest, true},
		{shared.RoleAccountant, shared.PermPaymentsApprove, false},
		{shared.RoleAccountant, shared.PermVendorDocumentsReview, false},
		{shared.RoleApprover, shared.PermPaymentsApprove, true},
		{shared.RoleApprover, shared.PermPaymentsRequest, false},
		{shared.RoleApprover, shared.PermVendorDocumentsReview, true},
		{shared.RoleApprover, shared.PermVendorDocumentsDelete, false},
		{shared.RoleAdmin, shared.PermVendorDocumentsDelete, true},
		{shared.RoleAdmin, shared.PermDataManage, true},
		{shared.Role("ghost"), shared.PermDashboardView, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Can(tc.role, tc.perm), "%s %s", tc.role, tc.perm)
	}
}

func TestAuthorize(t *testing.T) {
	require.ErrorIs(t, Authorize(shared.Actor{}, shared.PermDashboardView), shared.ErrUnauthorized)
	require.ErrorIs(t, Authorize(shared.Actor{UserID: 2, Role: shared.RoleViewer}, shared.PermPaymentsApprove), shared.ErrForbidden)
	require.NoError(t, Authorize(shared.Actor{UserID: 2, Role: shared.RoleApprover}, shared.PermPaymentsApprove))
}

func TestMiddlewareRequireAny(t *testing.T) {
	mw := Middleware{}
	handler := mw.RequireAny(shared.PermPaymentsApprove)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	ctx := shared.ContextWithActor(req.Context(), shared.Actor{UserID: 3, Role: shared.RoleAccountant})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusForbidden, rr.Code)

	ctx = shared.ContextWithActor(req.Context(), shared.Actor{UserID: 4, Role: shared.RoleApprover})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMatrixListsAllRoles(t *testing.T) {
	m := Matrix()
	require.Len(t, m, 4)
	require.Equal(t, shared.RoleAdmin, m[0].Role)
	require.Len(t, m[0].Permissions, len(shared.AllPermissions()))
}

func TestAuthorizeAny(t *testing.T) {
	approver := shared.Actor{UserID: 4, Role: shared.RoleApprover}
	require.NoError(t, AuthorizeAny(approver, shared.PermVendorsView, shared.PermVendorDocumentsReview))
	require.ErrorIs(t, AuthorizeAny(approver, shared.PermVendorsView, shared.PermInvoicesView), shared.ErrForbidden)
	require.ErrorIs(t, AuthorizeAny(shared.Actor{}, shared.PermVendorsView), shared.ErrUnauthorized)
}
