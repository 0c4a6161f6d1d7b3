// Package erp talks to the ERP backend: session login, job enqueue, and the
// status and result endpoints the tracker polls.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vrsandeep/bom-preview/internal/models"
	"github.com/vrsandeep/bom-preview/internal/payload"
	"golang.org/x/net/publicsuffix"
)

const (
	csrfHeader = "X-Frappe-CSRF-Token"

	loginPath      = "/api/method/login"
	logoutPath     = "/api/method/logout"
	loggedUserPath = "/api/method/frappe.auth.get_logged_user"
	csrfTokenPath  = "/api/method/frappe.sessions.get_csrf_token"
)

// Endpoints are the method paths backing one slot.
type Endpoints struct {
	Enqueue string
	Status  string
	Result  string
}

var (
	PreviewEndpoints = Endpoints{
		Enqueue: "/api/method/rbiiot.api.import_bom_api.handle_file_preview",
		Status:  "/api/method/rbiiot.api.import_bom_api.get_bom_preview_status",
		Result:  "/api/method/rbiiot.api.import_bom_api.get_bom_preview_result",
	}
	ImportEndpoints = Endpoints{
		Enqueue: "/api/method/rbiiot.api.upload_bom_api.import_bom_from_preview",
		Status:  "/api/method/rbiiot.api.upload_bom_api.get_bom_import_status",
		Result:  "/api/method/rbiiot.api.upload_bom_api.get_bom_import_result",
	}
)

// EndpointsFor returns the endpoints for a slot.
func EndpointsFor(slot models.Slot) (Endpoints, error) {
	switch slot {
	case models.SlotPreview:
		return PreviewEndpoints, nil
	case models.SlotImport:
		return ImportEndpoints, nil
	default:
		return Endpoints{}, fmt.Errorf("no endpoints for slot %q", slot)
	}
}

// Client is an HTTP client for the ERP backend. The session cookie set by
// Login is kept in its cookie jar and sent with every later call.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *TokenStore
}

// NewClient creates a client for baseURL using the process-wide token cache.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout, Jar: jar},
		tokens:  DefaultTokens,
	}, nil
}

// WithTokens makes the client use a private token cache.
func (c *Client) WithTokens(t *TokenStore) *Client {
	c.tokens = t
	return c
}

// Jar exposes the session cookies so the realtime connection can reuse them.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// BaseURL returns the backend origin.
func (c *Client) BaseURL() string { return c.baseURL }

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status >= 200 && r.status < 300 }

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, header http.Header) (response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	return response{status: resp.StatusCode, body: b}, nil
}

// get returns the body of a 2xx response and an *HTTPError otherwise.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, &HTTPError{StatusCode: resp.status, Body: string(resp.body)}
	}
	return resp.body, nil
}

// RefreshCSRFToken fetches a new token and caches it.
func (c *Client) RefreshCSRFToken(ctx context.Context) (string, error) {
	body, err := c.get(ctx, csrfTokenPath)
	if err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Message == "" {
		return "", fmt.Errorf("fetch csrf token: no token in response")
	}
	c.tokens.Set(out.Message)
	return out.Message, nil
}

// postWithCSRF sends a write with the cached token, and if the backend
// rejects it as a CSRF failure, refreshes the token and tries exactly once
// more. The retry is made even when the refresh fails.
func (c *Client) postWithCSRF(ctx context.Context, path string, build func() (io.Reader, string, error)) (response, error) {
	send := func(token string) (response, error) {
		body, contentType, err := build()
		if err != nil {
			return response{}, err
		}
		h := http.Header{}
		h.Set("Content-Type", contentType)
		if token != "" {
			h.Set(csrfHeader, token)
		}
		return c.do(ctx, http.MethodPost, path, body, h)
	}

	resp, err := send(c.tokens.Get())
	if err != nil {
		return response{}, err
	}
	if !looksLikeCSRF(resp.status, string(resp.body)) {
		return resp, nil
	}

	log.Printf("[erp] %s rejected (%d), refreshing csrf token", path, resp.status)
	token, err := c.RefreshCSRFToken(ctx)
	if err != nil {
		// The single retry still happens, with whatever token is cached.
		log.Printf("[erp] %v", err)
		token = c.tokens.Get()
	}
	return send(token)
}

// Login starts a session. The sid cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, usr, pwd string) error {
	if usr == "" || pwd == "" {
		return fmt.Errorf("%w: usr and pwd are required", ErrNotAuthenticated)
	}
	b, err := json.Marshal(map[string]string{"usr": usr, "pwd": pwd})
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, http.MethodPost, loginPath, bytes.NewReader(b), h)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if !resp.ok() || !c.hasSession() {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, loginMessage(resp.body))
	}
	return nil
}

func (c *Client) hasSession() bool {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return false
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == "sid" && ck.Value != "" && ck.Value != "Guest" {
			return true
		}
	}
	return false
}

func loginMessage(body []byte) string {
	var out struct {
		Message        any    `json:"message"`
		ServerMessages string `json:"_server_messages"`
		Exc            string `json:"exc"`
	}
	if err := json.Unmarshal(body, &out); err == nil {
		if s, ok := out.Message.(string); ok && s != "" {
			return s
		}
		if out.ServerMessages != "" {
			return out.ServerMessages
		}
		if out.Exc != "" {
			return out.Exc
		}
	}
	return "Login failed"
}

// LoggedUser returns the user owning the current session.
func (c *Client) LoggedUser(ctx context.Context) (string, error) {
	body, err := c.get(ctx, loggedUserPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Message == "" {
		return "", ErrNotAuthenticated
	}
	return out.Message, nil
}

// Logout ends the session; failures are ignored.
func (c *Client) Logout(ctx context.Context) {
	if _, err := c.do(ctx, http.MethodPost, logoutPath, nil, nil); err != nil {
		log.Printf("[erp] logout: %v", err)
	}
}

// EnqueuePreview uploads a workbook and queues a preview job. Transport and
// server failures come back as an error response, never as a Go error.
func (c *Client) EnqueuePreview(ctx context.Context, filename string, content []byte) models.EnqueueResponse {
	resp, err := c.postWithCSRF(ctx, PreviewEndpoints.Enqueue, func() (io.Reader, string, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(content); err != nil {
			return nil, "", err
		}
		if err := w.WriteField("preview", "1"); err != nil {
			return nil, "", err
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	})
	return enqueueResponse(resp, err)
}

// EnqueueImport queues an import job whose input is a preview result.
func (c *Client) EnqueueImport(ctx context.Context, previewResult []byte) models.EnqueueResponse {
	resp, err := c.postWithCSRF(ctx, ImportEndpoints.Enqueue, func() (io.Reader, string, error) {
		return bytes.NewReader(previewResult), "application/json", nil
	})
	return enqueueResponse(resp, err)
}

func enqueueResponse(resp response, err error) models.EnqueueResponse {
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "Network error"
		}
		return models.EnqueueResponse{Status: models.StatusError, Message: msg}
	}
	return payload.NormalizeEnqueue(resp.body)
}

// Status fetches the raw status body of a job.
func (c *Client) Status(ctx context.Context, ep Endpoints, jobID string) ([]byte, error) {
	return c.get(ctx, ep.Status+"?job_id="+url.QueryEscape(jobID))
}

// Result fetches a finished job's output with the envelope removed. A body
// that is not JSON is an error.
func (c *Client) Result(ctx context.Context, ep Endpoints, jobID string) (json.RawMessage, error) {
	body, err := c.get(ctx, ep.Result+"?job_id="+url.QueryEscape(jobID))
	if err != nil {
		return nil, err
	}
	inner := payload.UnwrapResult(body)
	if !json.Valid(inner) {
		return nil, fmt.Errorf("unparsable result body: %s", truncate(string(inner), 200))
	}
	return json.RawMessage(inner), nil
}
