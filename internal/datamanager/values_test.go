package datamanager

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/payables/internal/shared"
)

func TestConvertKinds(t *testing.T) {
	cases := []struct {
		col  Column
		raw  any
		want any
	}{
		{typed("n", KindInt, false), "12", int64(12)},
		{typed("n", KindInt, false), "12.0", int64(12)},
		{typed("n", KindInt, false), float64(7), int64(7)},
		{typed("n", KindInt, false), json.Number("9"), int64(9)},
		{typed("b", KindBool, false), "yes", true},
		{typed("b", KindBool, false), "FALSE", false},
		{typed("b", KindBool, false), float64(1), true},
		{text("s", false), json.Number("42"), "42"},
		{typed("d", KindDate, false), "2024-03-15T10:42:00Z", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{typed("ts", KindTimestamp, false), "2024-03-15 10:42:00", time.Date(2024, 3, 15, 10, 42, 0, 0, time.UTC)},
		{text("s", false), "  ", nil},
		{typed("n", KindInt, false), nil, nil},
	}
	for _, tc := range cases {
		got, err := convert(tc.col, tc.raw)
		require.NoError(t, err, "%v", tc.raw)
		require.Equal(t, tc.want, got, "%v", tc.raw)
	}

	d, err := convert(typed("amount", KindDecimal, false), "1,250.50")
	require.NoError(t, err)
	require.True(t, d.(decimal.Decimal).Equal(decimal.RequireFromString("1250.5")))
}

func TestConvertRejectsBadValues(t *testing.T) {
	bad := []struct {
		col Column
		raw any
	}{
		{typed("n", KindInt, false), "abc"},
		{typed("n", KindInt, false), float64(1.5)},
		{typed("d", KindDecimal, false), "ten"},
		{typed("dt", KindDate, false), "15/03/2024"},
		{typed("b", KindBool, false), "maybe"},
	}
	for _, tc := range bad {
		_, err := convert(tc.col, tc.raw)
		require.ErrorIs(t, err, shared.ErrValidation, "%v", tc.raw)
	}
}

func TestPrepareInsert(t *testing.T) {
	invoices, err := Lookup("invoices")
	require.NoError(t, err)

	p, err := prepare(invoices, Record{
		"invoice_id":     "99",
		"vendor_id":      "1",
		"invoice_number": "INV-9",
		"invoice_date":   "2024-03-01",
		"due_date":       "2024-03-31",
		"description":    "",
	}, true, false, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"vendor_id", "invoice_number", "invoice_date", "due_date"}, p.columns)

	_, err = prepare(invoices, Record{"vendor_id": "1"}, true, true, nil)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = prepare(invoices, Record{"bogus": "1", "vendor_id": "1"}, false, true, nil)
	require.ErrorContains(t, err, `unknown column "bogus"`)

	_, err = prepare(invoices, Record{"created_at": "2024-01-01"}, false, true, nil)
	require.ErrorContains(t, err, "read-only")

	p, err = prepare(invoices, Record{"description": ""}, false, true, nil)
	require.NoError(t, err)
	require.Equal(t, []any{nil}, p.args)

	_, err = prepare(invoices, Record{"invoice_number": ""}, false, true, nil)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPrepareHashesSecrets(t *testing.T) {
	users, err := Lookup("users")
	require.NoError(t, err)
	values := Record{"username": "ana", "password_hash": "s3cret", "role": "viewer"}

	_, err = prepare(users, values, true, true, nil)
	require.ErrorContains(t, err, "cannot be written")

	p, err := prepare(users, values, true, true, func(s string) (string, error) { return "hashed:" + s, nil })
	require.NoError(t, err)
	require.Equal(t, []any{"ana", "hashed:s3cret", "viewer"}, p.args)
}

func TestRegistryShape(t *testing.T) {
	require.Len(t, registry, 9)
	for _, tbl := range registry {
		require.True(t, tbl.PrimaryKey().Primary, tbl.Name)
		_, ok := tbl.Column(tbl.Display)
		require.True(t, ok, tbl.Name)
		for _, c := range tbl.Columns {
			if c.References != "" {
				_, err := Lookup(c.References)
				require.NoError(t, err, "%s.%s", tbl.Name, c.Name)
			}
		}
	}
	users, _ := Lookup("users")
	require.NotContains(t, columnNames(users.Visible()), "password_hash")

	_, err := Lookup("schema_migrations")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
