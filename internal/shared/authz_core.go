package shared

// Role is one of the fixed user roles.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAccountant Role = "accountant"
	RoleApprover   Role = "approver"
	RoleViewer     Role = "viewer"
)

// Roles lists every role in display order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleAccountant, RoleApprover, RoleViewer}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAccountant, RoleApprover, RoleViewer:
		return true
	}
	return false
}

// Core platform permissions.
const (
	PermDashboardView = "dashboard.view"
	PermReportsView   = "reports.view"

	PermUsersManage  = "users.manage"
	PermDataManage   = "data.manage"
	PermSettingsView = "settings.view"
	PermAuditView    = "audit.view"
)

// Payables permissions.
const (
	PermVendorsView           = "vendors.view"
	PermVendorsEdit           = "vendors.edit"
	PermVendorDocumentsReview = "vendors.documents.review"
	PermVendorDocumentsDelete = "vendors.documents.delete"

	PermInvoicesView = "invoices.view"
	PermInvoicesEdit = "invoices.edit"

	PermPaymentsView    = "payments.view"
	PermPaymentsRequest = "payments.request"
	PermPaymentsApprove = "payments.approve"
	PermPaymentsAdvice  = "payments.advice"

	PermERPSyncRun = "erpsync.run"
)

// AllPermissions lists every permission known to the application.
func AllPermissions() []string {
	return []string{
		PermDashboardView,
		PermReportsView,
		PermUsersManage,
		PermDataManage,
		PermSettingsView,
		PermAuditView,
		PermVendorsView,
		PermVendorsEdit,
		PermVendorDocumentsReview,
		PermVendorDocumentsDelete,
		PermInvoicesView,
		PermInvoicesEdit,
		PermPaymentsView,
		PermPaymentsRequest,
		PermPaymentsApprove,
		PermPaymentsAdvice,
		PermERPSyncRun,
	}
}
