package datamanager

import (
	"fmt"

	"github.com/odyssey-erp/payables/internal/shared"
)

// Kind is the value type of a column.
type Kind string

const (
	KindInt       Kind = "int"
	KindText      Kind = "text"
	KindDecimal   Kind = "decimal"
	KindDate      Kind = "date"
	KindTimestamp Kind = "timestamp"
	KindBool      Kind = "bool"
)

// Column describes one editable column.
type Column struct {
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Primary    bool   `json:"primary,omitempty"`
	ReadOnly   bool   `json:"read_only,omitempty"`
	Required   bool   `json:"required,omitempty"`
	Secret     bool   `json:"secret,omitempty"`
	References string `json:"references,omitempty"`
	// ExclusiveWithin makes a true bool value unique among the rows that
	// share the named column. Writing true clears it on the other rows.
	ExclusiveWithin string `json:"exclusive_within,omitempty"`
}

// Table describes an editable table. Display names the column shown when
// another table references a row of this one. ReadOnly tables can be
// browsed and exported but never written through the editor.
type Table struct {
	Name     string   `json:"name"`
	Display  string   `json:"display"`
	ReadOnly bool     `json:"read_only,omitempty"`
	Columns  []Column `json:"columns"`
}

func id(name string) Column { return Column{Name: name, Kind: KindInt, Primary: true, ReadOnly: true} }

func ref(name, table string, required bool) Column {
	return Column{Name: name, Kind: KindInt, References: table, Required: required}
}

func text(name string, required bool) Column {
	return Column{Name: name, Kind: KindText, Required: required}
}

func typed(name string, kind Kind, required bool) Column {
	return Column{Name: name, Kind: kind, Required: required}
}

func auto(name string, kind Kind) Column { return Column{Name: name, Kind: kind, ReadOnly: true} }

var registry = []Table{
	{Name: "users", Display: "username", Columns: []Column{
		id("user_id"), text("username", true),
		{Name: "password_hash", Kind: KindText, Required: true, Secret: true},
		text("full_name", false), text("email", false), text("role", true), text("department", false),
		text("status", false), auto("created_at", KindTimestamp),
	}},
	{Name: "vendors", Display: "vendor_name", Columns: []Column{
		id("vendor_id"), text("vendor_name", true), text("contact_person", false), text("email", false),
		text("phone", false), text("address", false), text("tax_id", false), text("registration_number", false),
		text("status", false), text("external_ref", false), auto("created_at", KindTimestamp),
		auto("updated_at", KindTimestamp),
	}},
	{Name: "vendor_bank_details", Display: "bank_name", Columns: []Column{
		id("bank_id"), ref("vendor_id", "vendors", true), text("bank_name", true), text("account_number", true),
		text("ifsc_code", false), text("account_type", false), text("branch_name", false),
		{Name: "is_primary", Kind: KindBool, ExclusiveWithin: "vendor_id"}, auto("created_at", KindTimestamp),
	}},
	{Name: "vendor_documents", Display: "document_type", Columns: []Column{
		id("document_id"), ref("vendor_id", "vendors", true), text("document_type", true),
		text("document_path", true), text("status", false), auto("uploaded_at", KindTimestamp),
	}},
	{Name: "invoices", Display: "invoice_number", Columns: []Column{
		id("invoice_id"), ref("vendor_id", "vendors", true), text("invoice_number", true),
		typed("invoice_date", KindDate, true), typed("due_date", KindDate, true),
		typed("amount", KindDecimal, false), typed("tax_amount", KindDecimal, false),
		typed("total_amount", KindDecimal, false), text("description", false), text("status", false),
		text("invoice_file_path", false), text("external_ref", false), auto("created_at", KindTimestamp),
	}},
	{Name: "payment_requests", Display: "request_number", Columns: []Column{
		id("request_id"), text("request_number", true), ref("requested_by", "users", true),
		typed("requested_at", KindTimestamp, false), text("status", false), ref("approved_by", "users", false),
		typed("approved_at", KindTimestamp, false), text("rejection_reason", false), text("notes", false),
	}},
	{Name: "payment_request_items", Display: "item_id", Columns: []Column{
		id("item_id"), ref("request_id", "payment_requests", true), ref("invoice_id", "invoices", true),
	}},
	{Name: "payment_advices", Display: "advice_number", Columns: []Column{
		id("advice_id"), ref("request_id", "payment_requests", true), text("advice_number", true),
		typed("total_amount", KindDecimal, true), typed("generated_at", KindTimestamp, false),
		typed("payment_date", KindDate, false), text("status", false), text("advice_file_path", false),
	}},
	{Name: "audit_logs", Display: "action", ReadOnly: true, Columns: []Column{
		id("log_id"), ref("user_id", "users", false), text("action", true), text("entity_type", true),
		typed("entity_id", KindInt, false), text("details", false), typed("created_at", KindTimestamp, false),
	}},
}

var byName = func() map[string]Table {
	m := make(map[string]Table, len(registry))
	for _, t := range registry {
		m[t.Name] = t
	}
	return m
}()

// Lookup returns the registered table.
func Lookup(name string) (Table, error) {
	t, ok := byName[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: unknown table %q", shared.ErrNotFound, name)
	}
	return t, nil
}

// PrimaryKey returns the primary key column.
func (t Table) PrimaryKey() Column {
	for _, c := range t.Columns {
		if c.Primary {
			return c
		}
	}
	return t.Columns[0]
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Visible lists the columns returned by reads and exports.
func (t Table) Visible() []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.Secret {
			out = append(out, c)
		}
	}
	return out
}

// Writable lists the columns accepted on insert and update.
func (t Table) Writable() []Column {
	out := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !c.ReadOnly {
			out = append(out, c)
		}
	}
	return out
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
