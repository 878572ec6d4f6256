// Package igpsport implements the source platform client for iGPSport.
package igpsport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/activitysync/internal/adapters/platform"
	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/logging"
)

// Compile-time interface check.
var _ ports.SourcePlatform = (*Client)(nil)

// Client talks to the iGPSport web API. Each call makes a single attempt;
// retries belong to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	pageSize   int
	location   *time.Location
	logger     *logging.Logger

	mu       sync.Mutex
	token    string
	fitPaths map[string]string // Activity ID to FIT download URL, filled by ListActivities
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithPageSize sets the number of activities requested per page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithLocation sets the zone used for start times reported without an offset.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates an iGPSport client for the given account.
func NewClient(username, password string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		baseURL:    DefaultBaseURL,
		username:   username,
		password:   password,
		pageSize:   DefaultPageSize,
		location:   time.Local,
		logger:     logging.Discard(),
		fitPaths:   make(map[string]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Name returns the platform identifier.
func (c *Client) Name() string {
	return platformName
}

// Login exchanges the account credentials for an access token.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return domainErrors.NewError(domainErrors.CodeConfiguration, "igpsport credentials not set", domainErrors.ErrCredentialsMissing)
	}

	body, err := json.Marshal(loginRequest{Username: c.username, Password: c.password, AppID: AppID})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	var data loginData
	if err := c.call(ctx, "login", http.MethodPost, EndpointLogin, nil, body, false, &data); err != nil {
		if domainErrors.Is(err, domainErrors.ErrUnauthorized) || domainErrors.CodeOf(err) == domainErrors.CodePermanent {
			return domainErrors.NewError(domainErrors.CodeAuth, "igpsport login rejected", fmt.Errorf("%w: %v", domainErrors.ErrLoginRejected, err))
		}
		return err
	}
	if data.AccessToken == "" {
		return domainErrors.NewError(domainErrors.CodeAuth, "igpsport login returned no token", domainErrors.ErrLoginRejected)
	}

	c.mu.Lock()
	c.token = data.AccessToken
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "igpsport login succeeded")
	return nil
}

// ListActivities returns activities that started after since.
// The list is newest first; paging stops at the first page whose rows all
// fall on days before since. A ride recorded while paging shifts the list,
// so a row may show up on two pages; each ride is returned once.
func (c *Client) ListActivities(ctx context.Context, since time.Time) ([]activity.Activity, error) {
	var out []activity.Activity
	sinceDay := c.day(since)
	seen := make(map[int64]struct{})

	for page := 1; ; page++ {
		result, err := c.listPage(ctx, page)
		if err != nil {
			return nil, err
		}

		older, repeated := 0, 0
		for _, row := range result.Rows {
			if _, dup := seen[row.RideID]; dup {
				repeated++
				continue
			}
			seen[row.RideID] = struct{}{}

			if c.rowBefore(row, sinceDay) {
				older++
				continue
			}

			a, err := c.resolve(ctx, row)
			if err != nil {
				return nil, err
			}
			if !a.StartTime.After(since) {
				continue
			}
			out = append(out, a)
		}

		c.logger.DebugContext(ctx, "igpsport page listed",
			"page", page,
			"rows", len(result.Rows),
			"older", older,
			"repeated", repeated,
		)

		switch {
		case len(result.Rows) == 0,
			older+repeated == len(result.Rows),
			len(result.Rows) < c.pageSize,
			result.TotalPage > 0 && page >= result.TotalPage:
			return out, nil
		}
	}
}

// DownloadFile fetches the FIT recording of an activity seen by ListActivities.
func (c *Client) DownloadFile(ctx context.Context, activityID string) ([]byte, error) {
	c.mu.Lock()
	fitURL, ok := c.fitPaths[activityID]
	c.mu.Unlock()
	if !ok || fitURL == "" {
		return nil, domainErrors.NewError(domainErrors.CodePermanent,
			fmt.Sprintf("no FIT file for activity %s", activityID), domainErrors.ErrFileUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fitURL, nil)
	if err != nil {
		return nil, domainErrors.NewError(domainErrors.CodePermanent, "invalid FIT file URL", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, platform.TransportError("download", err)
	}
	if !platform.IsSuccess(resp.StatusCode) {
		return nil, platform.StatusError("download", resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, platform.TransportError("download", err)
	}
	if len(data) == 0 {
		return nil, domainErrors.NewError(domainErrors.CodePermanent,
			fmt.Sprintf("empty FIT file for activity %s", activityID), domainErrors.ErrFileUnavailable)
	}

	return data, nil
}

func (c *Client) listPage(ctx context.Context, page int) (*activityPage, error) {
	query := url.Values{}
	query.Set("pageNo", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(c.pageSize))
	query.Set("reqType", listRequestType)
	query.Set("sort", listSortNewFirst)

	var result activityPage
	if err := c.call(ctx, "list", http.MethodGet, EndpointList, query, nil, true, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// resolve fetches the detail for a list row and records its FIT URL.
func (c *Client) resolve(ctx context.Context, row activityRow) (activity.Activity, error) {
	id := strconv.FormatInt(row.RideID, 10)

	var detail activityDetail
	if err := c.call(ctx, "detail", http.MethodGet, EndpointDetail+url.PathEscape(id), nil, nil, true, &detail); err != nil {
		return activity.Activity{}, err
	}

	start, err := c.detailStart(detail.StartTime)
	if err != nil {
		return activity.Activity{}, platform.DecodeError("detail", fmt.Errorf("activity %s: %w", id, err))
	}

	a := activity.New(id, start, activity.PlatformSource)
	a.Duration = time.Duration(detail.TotalTime * float64(time.Second))
	a.Name = row.Title

	c.mu.Lock()
	c.fitPaths[id] = row.FitOssPath
	c.mu.Unlock()

	return a, nil
}

func (c *Client) detailStart(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return platform.ParseTimestamp(s, c.location)
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil && n != 0 {
		return platform.FromEpoch(n), nil
	}
	return time.Time{}, fmt.Errorf("unsupported startTime %s", string(raw))
}

// rowBefore reports whether a list row falls on a day before day.
// Rows with an unreadable date are never treated as older.
func (c *Client) rowBefore(row activityRow, day time.Time) bool {
	d, err := time.ParseInLocation(rowDateLayout, strings.TrimSpace(row.StartTime), c.location)
	if err != nil {
		return false
	}
	return d.Before(day)
}

func (c *Client) day(t time.Time) time.Time {
	t = t.In(c.location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.location)
}

// call performs a request and decodes the data field of the envelope into out.
func (c *Client) call(ctx context.Context, op, method, endpoint string, query url.Values, body []byte, auth bool, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, query, body, auth)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platform.TransportError(op, err)
	}
	if !platform.IsSuccess(resp.StatusCode) {
		return platform.StatusError(op, resp)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return platform.DecodeError(op, err)
	}
	if env.Code != 0 {
		msg := fmt.Sprintf("%s: code %d: %s", op, env.Code, env.Message)
		if env.Code == http.StatusUnauthorized {
			return domainErrors.NewError(domainErrors.CodeTransient, msg, domainErrors.ErrUnauthorized)
		}
		return domainErrors.NewError(domainErrors.CodePermanent, msg, domainErrors.ErrPlatformResponse)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return platform.DecodeError(op, fmt.Errorf("missing data"))
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return platform.DecodeError(op, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body []byte, auth bool) (*http.Request, error) {
	u := c.baseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", PassportOrigin)
	req.Header.Set("Referer", PassportOrigin+"/")

	if auth {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		if token == "" {
			return nil, domainErrors.NewError(domainErrors.CodeAuth, "igpsport session not established", domainErrors.ErrNotAuthenticated)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req, nil
}
