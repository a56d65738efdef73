package erpsync

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const ledgerXML = `<ENVELOPE><HEADER><STATUS>1</STATUS></HEADER><BODY><DESC></DESC><DATA><COLLECTION>
<LEDGER NAME="Acme Supplies"><PARENT>Sundry Creditors</PARENT><EMAIL>ap@acme.test</EMAIL><LEDGERPHONE>9876543210</LEDGERPHONE>
<LEDGERCONTACT>Ravi</LEDGERCONTACT><PARTYGSTIN>27AAAAA0000A1Z5</PARTYGSTIN>
<ADDRESS.LIST><ADDRESS>12 Park Road</ADDRESS><ADDRESS>Pune</ADDRESS></ADDRESS.LIST></LEDGER>
<LEDGER NAME="Office Rent"><PARENT>Indirect Expenses</PARENT></LEDGER>
<LEDGER NAME="Beta Traders"><PARENT>Sundry Creditors</PARENT><INCOMETAXNUMBER>ABCDE1234F</INCOMETAXNUMBER></LEDGER>
</COLLECTION></DATA></BODY></ENVELOPE>`

const billXML = `<ENVELOPE><BODY><DATA><COLLECTION>
<BILL><NAME>INV-001</NAME><PARTYNAME>Acme Supplies</PARTYNAME><BILLDATE>20240301</BILLDATE><BILLDUE>20240331</BILLDUE><CLOSINGBALANCE>-1,250.50</CLOSINGBALANCE></BILL>
</COLLECTION></DATA></BODY></ENVELOPE>`

func TestClientCreditors(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		require.Equal(t, http.MethodPost, r.Method)
		_, _ = io.WriteString(w, ledgerXML)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "Demo & Co", time.Second, nil)
	ledgers, err := c.Creditors(context.Background())
	require.NoError(t, err)
	require.Len(t, ledgers, 2)
	require.Equal(t, "Acme Supplies", ledgers[0].Name)
	require.Equal(t, []string{"12 Park Road", "Pune"}, ledgers[0].Address)
	require.Equal(t, "ABCDE1234F", ledgers[1].PAN)
	require.Contains(t, body, "<SVCURRENTCOMPANY>Demo &amp; Co</SVCURRENTCOMPANY>")
	require.Contains(t, body, "<CHILDOF>Sundry Creditors</CHILDOF>")
}

func TestClientPendingBills(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, billXML)
	}))
	defer srv.Close()

	bills, err := NewClient(srv.URL, "", time.Second, nil).PendingBills(context.Background())
	require.NoError(t, err)
	require.Len(t, bills, 1)
	require.Equal(t, "INV-001", bills[0].Name)
	require.Equal(t, "-1,250.50", bills[0].Closing)
}

func TestClientErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "company not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", time.Second, nil).Creditors(context.Background())
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "company not loaded"))
}

func TestParseAmountAndDate(t *testing.T) {
	d, err := parseAmount("-1,250.50")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("1250.50")))

	d, err = parseAmount("300.00 Cr")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.NewFromInt(300)))

	_, err = parseAmount("abc")
	require.Error(t, err)

	got, ok := parseTallyDate("20240301")
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
	got, ok = parseTallyDate("5-Mar-2024")
	require.True(t, ok)
	require.Equal(t, 5, got.Day())
	_, ok = parseTallyDate("")
	require.False(t, ok)
}
