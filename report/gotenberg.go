package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// ErrRenderUnavailable wraps failures where Gotenberg could not be reached
// or answered with a server error.
var ErrRenderUnavailable = errors.New("report: pdf renderer unavailable")

// Paper describes the page setup sent with a conversion.
type Paper struct {
	Width     float64 // inches
	Height    float64 // inches
	Landscape bool
}

// A4Landscape is the page used for tabular reports.
var A4Landscape = Paper{Width: 8.27, Height: 11.7, Landscape: true}

// Client talks to the Gotenberg chromium HTML route.
type Client struct {
	baseURL    string
	httpClient *http.Client
	paper      Paper
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client with its 30s timeout.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithPaper changes the page setup.
func WithPaper(p Paper) ClientOption {
	return func(cl *Client) { cl.paper = p }
}

// NewClient returns a client for the Gotenberg instance at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		paper:      A4Landscape,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping calls the Gotenberg health route.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRenderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrRenderUnavailable, resp.StatusCode)
	}
	return nil
}

// RenderHTML converts a standalone HTML page into a PDF.
func (c *Client) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	body, contentType, err := c.form(html)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/forms/chromium/convert/html", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("render failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= http.StatusInternalServerError {
			err = fmt.Errorf("%w: %v", ErrRenderUnavailable, err)
		}
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// form builds the multipart body. Gotenberg expects the page as index.html.
func (c *Client) form(html string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.WriteString(part, html); err != nil {
		return nil, "", err
	}
	fields := [][2]string{
		{"paperWidth", fmt.Sprintf("%.2f", c.paper.Width)},
		{"paperHeight", fmt.Sprintf("%.2f", c.paper.Height)},
		{"landscape", fmt.Sprint(c.paper.Landscape)},
		{"printBackground", "true"},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}
