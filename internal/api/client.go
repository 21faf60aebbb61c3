// Package api is the client for the canned-food backend. It builds requests
// from local query parameters and reshapes the backend payloads into the
// flat models used by the rest of the gateway.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wsx4588588/canlog-frontend/internal/models"
)

// DefaultTimeout bounds every backend call that has no earlier deadline.
const DefaultTimeout = 30 * time.Second

// ImageField is the multipart field the analyze endpoint reads.
const ImageField = "image"

// Client provides access to the canned-food backend API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cookies    []*http.Cookie
	logger     *zap.Logger
}

// ListParams selects a page of canned foods. Zero values are omitted from
// the request.
type ListParams struct {
	Search                  string
	BrandName               string
	MinPhosphorusPer100kcal *float64
	MaxPhosphorusPer100kcal *float64
	Page                    int
	Limit                   int
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("base URL must be an absolute http(s) URL: %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("api"),
	}, nil
}

// WithCookies returns a copy of the client that sends the browser's session
// cookies on credentialed calls. The receiver is left untouched.
func (c *Client) WithCookies(cookies []*http.Cookie) *Client {
	clone := *c
	clone.cookies = append([]*http.Cookie(nil), cookies...)
	return &clone
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// List fetches one page of canned foods.
func (c *Client) List(ctx context.Context, params ListParams) (*models.Page, error) {
	q := url.Values{}
	if params.Search != "" {
		q.Set("search", params.Search)
	}
	if params.BrandName != "" {
		q.Set("brandName", params.BrandName)
	}
	if params.MinPhosphorusPer100kcal != nil {
		q.Set("minPhosphorusPer100kcal", formatFloat(*params.MinPhosphorusPer100kcal))
	}
	if params.MaxPhosphorusPer100kcal != nil {
		q.Set("maxPhosphorusPer100kcal", formatFloat(*params.MaxPhosphorusPer100kcal))
	}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}

	body, err := c.do(ctx, http.MethodGet, c.endpoint(q, "api", "canned-foods"), nil, "", false, "Failed to fetch canned foods")
	if err != nil {
		return nil, err
	}

	page, err := decodePage(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse canned food list: %w", err)
	}
	return page, nil
}

// Get fetches a single canned food. A missing record yields ErrNotFound.
func (c *Client) Get(ctx context.Context, id int64) (*models.CannedFood, error) {
	endpoint := c.endpoint(nil, "api", "canned-foods", strconv.FormatInt(id, 10))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, "", false, "Failed to fetch canned food")
	if err != nil {
		return nil, err
	}

	food, err := decodeRecord(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse canned food: %w", err)
	}
	return food, nil
}

// Delete removes a canned food. Requires an admin session.
func (c *Client) Delete(ctx context.Context, id int64) error {
	endpoint := c.endpoint(nil, "api", "canned-foods", strconv.FormatInt(id, 10))
	_, err := c.do(ctx, http.MethodDelete, endpoint, nil, "", true, "Failed to delete canned food")
	return err
}

// Brands lists the distinct brand names known to the backend.
func (c *Client) Brands(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "canned-foods", "brands"), nil, "", false, "Failed to fetch brands")
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Brands []string `json:"brands"`
	}
	if err := json.Unmarshal(body, &wrapped); err == nil {
		return wrapped.Brands, nil
	}
	var bare []string
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("failed to parse brands: %w", err)
	}
	return bare, nil
}

// Analyze uploads a label image and returns the record the backend created
// from it. Requires an admin session.
func (c *Client) Analyze(ctx context.Context, filename, contentType string, image io.Reader) (*models.CannedFood, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ImageField, path.Base(filename)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	endpoint := c.endpoint(nil, "api", "canned-foods", "analyze")
	body, err := c.do(ctx, http.MethodPost, endpoint, &buf, mw.FormDataContentType(), true, "Failed to analyze image")
	if err != nil {
		return nil, err
	}

	food, err := decodeRecord(unwrapData(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis result: %w", err)
	}
	return food, nil
}

// Profile returns the user behind the session cookies, or nil when the
// backend reports no session.
func (c *Client) Profile(ctx context.Context) (*models.User, error) {
	body, err := c.do(ctx, http.MethodGet, c.endpoint(nil, "api", "auth", "profile"), nil, "", true, "Failed to fetch profile")
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil, nil
		}
		return nil, err
	}

	var user models.User
	if err := json.Unmarshal(unwrapData(body), &user); err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	return &user, nil
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, c.endpoint(nil, "api", "auth", "logout"), nil, "", true, "Failed to log out")
	return err
}

// GoogleLoginURL is where the browser goes to start a Google sign-in.
func (c *Client) GoogleLoginURL() string {
	return c.endpoint(nil, "api", "auth", "google")
}

// ImageURL resolves an image reference from a record. Absolute http(s)
// references are returned unchanged; anything else is resolved against
// the backend origin.
func (c *Client) ImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return ref
	}
	return c.baseURL.ResolveReference(u).String()
}

// do executes a request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, contentType string, credentialed bool, fallback string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if credentialed {
		for _, cookie := range c.cookies {
			req.AddCookie(cookie)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("Backend call",
		zap.String("method", method),
		zap.String("url", endpoint),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newError(resp.StatusCode, respBody, fallback)
		c.logger.Warn("Backend returned error",
			zap.String("method", method),
			zap.String("url", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.String("message", apiErr.Message))
		return nil, apiErr
	}

	return respBody, nil
}

// endpoint joins path segments onto the base URL.
func (c *Client) endpoint(query url.Values, segments ...string) string {
	u := *c.baseURL
	u.Path = path.Join(append([]string{"/", u.Path}, segments...)...)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
