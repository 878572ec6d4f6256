// Package garmin implements the destination platform client for Garmin Connect.
//
// Login uses the OAuth2 resource owner password grant against a configurable
// token URL (destination.token_url). Garmin's public SSO does not offer that
// grant, so a deployment against garmin.com or garmin.cn needs a token
// endpoint that performs the SSO exchange and speaks plain OAuth2, such as a
// local bridge service. The search and upload calls only need the resulting
// bearer token.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/jbctechsolutions/activitysync/internal/adapters/platform"
	"github.com/jbctechsolutions/activitysync/internal/application/ports"
	"github.com/jbctechsolutions/activitysync/internal/domain/activity"
	domainErrors "github.com/jbctechsolutions/activitysync/internal/domain/errors"
	"github.com/jbctechsolutions/activitysync/internal/infrastructure/logging"
)

// Compile-time interface check.
var _ ports.DestinationPlatform = (*Client)(nil)

// Client talks to the Garmin Connect API with an OAuth2 bearer token.
// Each call makes a single attempt; retries belong to the caller.
type Client struct {
	httpClient *http.Client
	apiBase    string
	oauth      oauth2.Config
	email      string
	password   string
	pageSize   int
	session    *SessionCache
	logger     *logging.Logger

	mu    sync.Mutex
	token *oauth2.Token
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

// WithDomain points the client at connectapi.<domain>.
func WithDomain(domain string) Option {
	return func(c *Client) {
		c.apiBase = APIBaseURL(domain)
		c.oauth.Endpoint.TokenURL = c.apiBase + EndpointToken
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.apiBase = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithTokenURL overrides the OAuth2 token endpoint.
func WithTokenURL(tokenURL string) Option {
	return func(c *Client) {
		if tokenURL != "" {
			c.oauth.Endpoint.TokenURL = tokenURL
		}
	}
}

// WithClientID sets the OAuth2 client ID.
func WithClientID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.oauth.ClientID = id
		}
	}
}

// WithPageSize sets the number of activities requested per search page.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithSessionCache enables token reuse across runs.
func WithSessionCache(s *SessionCache) Option {
	return func(c *Client) {
		c.session = s
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

// NewClient creates a Garmin Connect client for the given account.
func NewClient(email, password string, opts ...Option) *Client {
	apiBase := APIBaseURL(DefaultDomain)
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		apiBase:    apiBase,
		oauth: oauth2.Config{
			ClientID: DefaultClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  apiBase + EndpointToken,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		email:    email,
		password: password,
		pageSize: DefaultPageSize,
		logger:   logging.Discard(),
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

// Login establishes a token. A cached token is reused while valid and
// refreshed when it carries a refresh token; otherwise the account
// credentials are exchanged for a new one.
func (c *Client) Login(ctx context.Context) error {
	if c.email == "" || c.password == "" {
		return domainErrors.NewError(domainErrors.CodeConfiguration, "garmin credentials not set", domainErrors.ErrCredentialsMissing)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	c.mu.Lock()
	current := c.token
	c.mu.Unlock()

	if current == nil && c.session != nil {
		cached, err := c.session.Load()
		if err != nil {
			c.logger.WarnContext(ctx, "garmin session cache unreadable", "error", err)
		}
		current = cached
	}

	if current != nil {
		if current.Valid() {
			c.setToken(current)
			c.logger.DebugContext(ctx, "garmin session reused", "expires", current.Expiry)
			return nil
		}
		if current.RefreshToken != "" {
			tok, err := c.oauth.TokenSource(ctx, current).Token()
			if err == nil {
				c.logger.DebugContext(ctx, "garmin session refreshed")
				return c.store(ctx, tok)
			}
			c.logger.DebugContext(ctx, "garmin token refresh failed", "error", err)
		}
	}

	tok, err := c.oauth.PasswordCredentialsToken(ctx, c.email, c.password)
	if err != nil {
		return classifyTokenError(err)
	}

	c.logger.DebugContext(ctx, "garmin login succeeded")
	return c.store(ctx, tok)
}

// ListActivities returns destination activities starting within [from, to].
// Garmin filters the search by calendar date in the account's zone, so the
// query is widened by a day on each side and the exact cut happens here.
func (c *Client) ListActivities(ctx context.Context, from, to time.Time) ([]activity.Activity, error) {
	window := activity.Window{From: from, To: to}
	startDate := from.UTC().Add(-searchDatePadding).Format(searchDateLayout)
	endDate := to.UTC().Add(searchDatePadding).Format(searchDateLayout)
	var out []activity.Activity

	for page, start := 0, 0; ; page, start = page+1, start+c.pageSize {
		if page >= maxSearchPages {
			return nil, domainErrors.NewError(domainErrors.CodePermanent,
				fmt.Sprintf("garmin search exceeded %d pages", maxSearchPages), domainErrors.ErrPlatformResponse)
		}

		query := url.Values{}
		query.Set("startDate", startDate)
		query.Set("endDate", endDate)
		query.Set("start", strconv.Itoa(start))
		query.Set("limit", strconv.Itoa(c.pageSize))

		req, err := c.newRequest(ctx, http.MethodGet, EndpointSearch+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}

		var page []searchResult
		if err := c.doJSON(req, "search", &page); err != nil {
			return nil, err
		}

		for _, r := range page {
			startTime, err := platform.ParseTimestamp(r.StartTimeGMT, time.UTC)
			if err != nil {
				c.logger.WarnContext(ctx, "garmin activity has unreadable start time",
					"activity_id", r.ActivityID,
					"start_time", r.StartTimeGMT,
				)
				continue
			}

			a := activity.New(strconv.FormatInt(r.ActivityID, 10), startTime, activity.PlatformDestination)
			a.Duration = time.Duration(r.Duration * float64(time.Second))
			a.Name = r.ActivityName
			if window.Contains(a.StartTime) {
				out = append(out, a)
			}
		}

		if len(page) < c.pageSize {
			return out, nil
		}
	}
}

// UploadFile submits a FIT file. HTTP 409 means Garmin already holds the
// recording and is reported as a duplicate, not an error.
func (c *Client) UploadFile(ctx context.Context, name string, data []byte) (ports.UploadResult, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return ports.UploadResult{}, fmt.Errorf("failed to create multipart body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return ports.UploadResult{}, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ports.UploadResult{}, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, EndpointUpload, body)
	if err != nil {
		return ports.UploadResult{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.UploadResult{}, platform.TransportError("upload", err)
	}

	duplicate := resp.StatusCode == http.StatusConflict
	if !duplicate && !platform.IsSuccess(resp.StatusCode) {
		return ports.UploadResult{}, c.statusError("upload", resp)
	}
	defer resp.Body.Close()

	result := ports.UploadResult{Duplicate: duplicate}

	// The body is informational; a missing or odd body does not fail the upload.
	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil {
		r := parsed.DetailedImportResult
		switch {
		case len(r.Successes) > 0 && r.Successes[0].InternalID != 0:
			result.UploadID = strconv.FormatInt(r.Successes[0].InternalID, 10)
		case len(r.Failures) > 0 && r.Failures[0].InternalID != 0:
			result.UploadID = strconv.FormatInt(r.Failures[0].InternalID, 10)
		case r.UploadID != 0:
			result.UploadID = strconv.FormatInt(r.UploadID, 10)
		}
	}

	return result, nil
}

func (c *Client) setToken(tok *oauth2.Token) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

// store adopts tok and writes it to the session cache. A cache write failure
// is logged; the token is still usable for this run.
func (c *Client) store(ctx context.Context, tok *oauth2.Token) error {
	c.setToken(tok)
	if c.session == nil {
		return nil
	}
	if err := c.session.Save(tok); err != nil {
		c.logger.WarnContext(ctx, "failed to cache garmin session", "error", err)
	}
	return nil
}

// invalidate drops the current token so the next Login starts over.
func (c *Client) invalidate(ctx context.Context) {
	c.setToken(nil)
	if c.session != nil {
		if err := c.session.Clear(); err != nil {
			c.logger.WarnContext(ctx, "failed to clear garmin session", "error", err)
		}
	}
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if tok == nil {
		return nil, domainErrors.NewError(domainErrors.CodeAuth, "garmin session not established", domainErrors.ErrNotAuthenticated)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *Client) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return platform.TransportError(op, err)
	}
	if !platform.IsSuccess(resp.StatusCode) {
		return c.statusError(op, resp)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return platform.DecodeError(op, err)
	}
	return nil
}

// statusError classifies a failed response and drops the token on 401.
func (c *Client) statusError(op string, resp *http.Response) error {
	err := platform.StatusError(op, resp)
	if errors.Is(err, domainErrors.ErrUnauthorized) {
		c.invalidate(resp.Request.Context())
	}
	return err
}

// classifyTokenError maps token endpoint failures. Rejected credentials are
// fatal; server and network trouble stays transient.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		code := re.Response.StatusCode
		if code == http.StatusTooManyRequests || code >= 500 {
			return domainErrors.NewError(domainErrors.CodeTransient, fmt.Sprintf("garmin login: HTTP %d", code), err)
		}
		return domainErrors.NewError(domainErrors.CodeAuth, "garmin login rejected",
			fmt.Errorf("%w: HTTP %d", domainErrors.ErrLoginRejected, code))
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domainErrors.NewError(domainErrors.CodeTransient, "garmin login failed", err)
}
