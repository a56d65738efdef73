package rbac

import (
	"fmt"
	"sort"

	"github.com/odyssey-erp/payables/internal/shared"
)

// grants is the fixed role to permission table.
var grants = map[shared.Role][]string{
	shared.RoleAdmin: shared.AllPermissions(),
	shared.RoleAccountant: {
		shared.PermDashboardView,
		shared.PermReportsView,
		shared.PermVendorsView,
		shared.PermVendorsEdit,
		shared.PermInvoicesView,
		shared.PermInvoicesEdit,
		shared.PermPaymentsView,
		shared.PermPaymentsRequest,
		shared.PermPaymentsAdvice,
		shared.PermERPSyncRun,
	},
	shared.RoleApprover: {
		shared.PermDashboardView,
		shared.PermReportsView,
		shared.PermVendorDocumentsReview,
		shared.PermPaymentsView,
		shared.PermPaymentsApprove,
	},
	shared.RoleViewer: {
		shared.PermDashboardView,
		shared.PermReportsView,
	},
}

// RolePermissions pairs a role with the permissions it grants.
type RolePermissions struct {
	Role        shared.Role `json:"role"`
	Permissions []string    `json:"permissions"`
}

// Permissions returns the sorted permissions granted to role.
func Permissions(role shared.Role) []string {
	perms := append([]string(nil), grants[role]...)
	sort.Strings(perms)
	return perms
}

// Matrix lists every role with its permissions.
func Matrix() []RolePermissions {
	out := make([]RolePermissions, 0, len(grants))
	for _, role := range shared.Roles() {
		out = append(out, RolePermissions{Role: role, Permissions: Permissions(role)})
	}
	return out
}

// Can reports whether role grants perm.
func Can(role shared.Role, perm string) bool {
	for _, p := range grants[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Authorize returns ErrForbidden unless actor holds perm.
func Authorize(actor shared.Actor, perm string) error {
	if actor.UserID == 0 {
		return shared.ErrUnauthorized
	}
	if !Can(actor.Role, perm) {
		return fmt.Errorf("%w: %s requires %s", shared.ErrForbidden, actor.Role, perm)
	}
	return nil
}

// AuthorizeAny returns ErrForbidden unless actor holds at least one of perms.
func AuthorizeAny(actor shared.Actor, perms ...string) error {
	if actor.UserID == 0 {
		return shared.ErrUnauthorized
	}
	for _, p := range perms {
		if Can(actor.Role, p) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s requires one of %v", shared.ErrForbidden, actor.Role, perms)
}
