package erpsync

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	creditorsGroup = "Sundry Creditors"
	tallyDate      = "20060102"
)

// Ledger is a party ledger exported from Tally.
type Ledger struct {
	Name    string   `xml:"NAME,attr"`
	Parent  string   `xml:"PARENT"`
	Email   string   `xml:"EMAIL"`
	Phone   string   `xml:"LEDGERPHONE"`
	Contact string   `xml:"LEDGERCONTACT"`
	PAN     string   `xml:"INCOMETAXNUMBER"`
	GSTIN   string   `xml:"PARTYGSTIN"`
	Address []string `xml:"ADDRESS.LIST>ADDRESS"`
}

// Bill is an outstanding payable bill exported from Tally.
type Bill struct {
	Name      string `xml:"NAME"`
	Party     string `xml:"PARTYNAME"`
	BillDate  string `xml:"BILLDATE"`
	DueDate   string `xml:"BILLDUE"`
	Closing   string `xml:"CLOSINGBALANCE"`
	Narration string `xml:"NARRATION"`
}

type exportResponse struct {
	Ledgers []Ledger `xml:"BODY>DATA>COLLECTION>LEDGER"`
	Bills   []Bill   `xml:"BODY>DATA>COLLECTION>BILL"`
}

// Client talks to the Tally XML gateway over HTTP.
type Client struct {
	baseURL string
	company string
	http    *http.Client
}

// NewClient builds a Tally client. A nil httpClient gets a client with timeout.
func NewClient(baseURL, company string, timeout time.Duration, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), company: company, http: httpClient}
}

// Creditors returns ledgers grouped under Sundry Creditors.
func (c *Client) Creditors(ctx context.Context) ([]Ledger, error) {
	var resp exportResponse
	if err := c.export(ctx, "PayablesCreditors", ledgerCollection, &resp); err != nil {
		return nil, err
	}
	out := make([]Ledger, 0, len(resp.Ledgers))
	for _, l := range resp.Ledgers {
		if strings.TrimSpace(l.Name) == "" {
			continue
		}
		if l.Parent != "" && !strings.EqualFold(strings.TrimSpace(l.Parent), creditorsGroup) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// PendingBills returns payable bills with an outstanding balance.
func (c *Client) PendingBills(ctx context.Context) ([]Bill, error) {
	var resp exportResponse
	if err := c.export(ctx, "PayablesBills", billCollection, &resp); err != nil {
		return nil, err
	}
	return resp.Bills, nil
}

const ledgerCollection = `<COLLECTION NAME="PayablesCreditors">
<TYPE>Ledger</TYPE>
<CHILDOF>Sundry Creditors</CHILDOF>
<BELONGSTO>Yes</BELONGSTO>
<NATIVEMETHOD>Name</NATIVEMETHOD>
<NATIVEMETHOD>Parent</NATIVEMETHOD>
<NATIVEMETHOD>Email</NATIVEMETHOD>
<NATIVEMETHOD>LedgerPhone</NATIVEMETHOD>
<NATIVEMETHOD>LedgerContact</NATIVEMETHOD>
<NATIVEMETHOD>IncomeTaxNumber</NATIVEMETHOD>
<NATIVEMETHOD>PartyGSTIN</NATIVEMETHOD>
<NATIVEMETHOD>Address</NATIVEMETHOD>
</COLLECTION>`

const billCollection = `<COLLECTION NAME="PayablesBills">
<TYPE>Bills</TYPE>
<CHILDOF>Sundry Creditors</CHILDOF>
<BELONGSTO>Yes</BELONGSTO>
<FILTERS>Outstanding</FILTERS>
<NATIVEMETHOD>Name</NATIVEMETHOD>
<NATIVEMETHOD>PartyName</NATIVEMETHOD>
<NATIVEMETHOD>BillDate</NATIVEMETHOD>
<NATIVEMETHOD>BillDue</NATIVEMETHOD>
<NATIVEMETHOD>ClosingBalance</NATIVEMETHOD>
<NATIVEMETHOD>Narration</NATIVEMETHOD>
</COLLECTION>
<SYSTEM TYPE="Formulae" NAME="Outstanding">NOT $$IsZero:$ClosingBalance</SYSTEM>`

func (c *Client) envelope(id, tdl string) []byte {
	var b strings.Builder
	b.WriteString("<ENVELOPE><HEADER><VERSION>1</VERSION><TALLYREQUEST>Export</TALLYREQUEST>")
	b.WriteString("<TYPE>Collection</TYPE><ID>" + id + "</ID></HEADER><BODY><DESC><STATICVARIABLES>")
	b.WriteString("<SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>")
	if c.company != "" {
		b.WriteString("<SVCURRENTCOMPANY>")
		_ = xml.EscapeText(&b, []byte(c.company))
		b.WriteString("</SVCURRENTCOMPANY>")
	}
	b.WriteString("</STATICVARIABLES><TDL><TDLMESSAGE>" + tdl + "</TDLMESSAGE></TDL></DESC></BODY></ENVELOPE>")
	return []byte(b.String())
}

func (c *Client) export(ctx context.Context, id, tdl string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(c.envelope(id, tdl)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("erpsync: tally request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("erpsync: tally status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("erpsync: decode tally response: %w", err)
	}
	return nil
}

func parseTallyDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{tallyDate, "2-Jan-2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseAmount reads a Tally balance such as "-1,250.00" or "1250.00 Cr".
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(strings.TrimSuffix(s, " Cr"), " Dr")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("erpsync: amount %q: %w", raw, err)
	}
	return d.Abs().Round(2), nil
}
