package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clodoaldo29/AzureBridge-sub001/internal/retry"
)

const (
	DefaultBaseURL    = "https://dev.azure.com"
	DefaultAPIVersion = "7.1"

	// MaxBatchIDs is the work items batch API limit
	MaxBatchIDs = 200

	// RevisionPageSize is the $top used when paging revisions
	RevisionPageSize = 200
)

var (
	ErrUnauthorized = errors.New("azure devops: unauthorized")
	ErrNotFound     = errors.New("azure devops: not found")
)

// Client is the read-only subset of the Azure DevOps REST API used by the sync
type Client interface {
	QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error)
	GetWorkItems(ctx context.Context, ids []int) ([]WorkItem, error)
	GetRevisions(ctx context.Context, id int) ([]Revision, error)
	ListIterations(ctx context.Context) ([]Iteration, error)
	GetIterationCapacity(ctx context.Context, iterationID string) ([]TeamMemberCapacity, error)
}

// Config configures the HTTP client
type Config struct {
	Organization      string
	Project           string
	Team              string
	PAT               string
	BaseURL           string
	APIVersion        string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Retry             retry.Policy
	RevisionPageSize  int // $top for revision paging, RevisionPageSize when zero
}

// StatusError is a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("azure devops: status %d: %s", e.StatusCode, body)
}

// Transient reports whether the request may succeed if repeated
func (e *StatusError) Transient() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// HTTPClient implements Client over the REST API with PAT authentication
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	mu      sync.Mutex
	retryAt time.Time
}

// NewHTTPClient creates a client for one organization, project and team
func NewHTTPClient(cfg Config, logger *zap.Logger) (*HTTPClient, error) {
	if cfg.Organization == "" || cfg.Project == "" {
		return nil, fmt.Errorf("azure devops: organization and project are required")
	}
	if cfg.PAT == "" {
		return nil, fmt.Errorf("azure devops: personal access token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Team == "" {
		cfg.Team = cfg.Project + " Team"
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RevisionPageSize <= 0 {
		cfg.RevisionPageSize = RevisionPageSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.Default()
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = retry.IsTransient
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:     logger,
	}, nil
}

// Project returns the configured project name
func (c *HTTPClient) Project() string {
	return c.cfg.Project
}

func (c *HTTPClient) projectURL(path string, query url.Values) string {
	return c.buildURL([]string{c.cfg.Organization, c.cfg.Project}, path, query)
}

func (c *HTTPClient) teamURL(path string, query url.Values) string {
	return c.buildURL([]string{c.cfg.Organization, c.cfg.Project, c.cfg.Team}, path, query)
}

func (c *HTTPClient) buildURL(segments []string, path string, query url.Values) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.cfg.APIVersion)
	return c.cfg.BaseURL + "/" + strings.Join(escaped, "/") + path + "?" + query.Encode()
}

// wait blocks for the token bucket and any server-requested backoff
func (c *HTTPClient) wait(ctx context.Context) error {
	c.mu.Lock()
	retryAt := c.retryAt
	c.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return c.limiter.Wait(ctx)
}

// recordRateLimit pauses every request until the server's Retry-After has passed
func (c *HTTPClient) recordRateLimit(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.retryAt = time.Now().Add(d)
	c.mu.Unlock()
}

// do sends one request with rate limiting and transient-error retry and
// returns the parsed JSON body
func (c *HTTPClient) do(ctx context.Context, method, rawURL string, body any) (gjson.Result, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
		}
	}

	return retry.DoValue(ctx, c.cfg.Retry, func(ctx context.Context) (gjson.Result, error) {
		if err := c.wait(ctx); err != nil {
			return gjson.Result{}, err
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("create request: %w", err)
		}
		req.SetBasicAuth("", c.cfg.PAT)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("api call: %w", err)
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			statusErr := &StatusError{
				StatusCode: resp.StatusCode,
				Body:       string(data),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				c.recordRateLimit(statusErr.RetryAfter)
			}
			c.logger.Warn("azure devops request failed",
				zap.String("method", method),
				zap.Int("status", resp.StatusCode),
				zap.Bool("transient", statusErr.Transient()))
			return gjson.Result{}, statusErr
		}

		if !gjson.ValidBytes(data) {
			return gjson.Result{}, fmt.Errorf("azure devops: invalid JSON response")
		}
		return gjson.ParseBytes(data), nil
	})
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// QueryWorkItemIDs runs a WIQL query and returns matching ids in result order
func (c *HTTPClient) QueryWorkItemIDs(ctx context.Context, wiql string) ([]int, error) {
	q := url.Values{}
	q.Set("timePrecision", "true")

	res, err := c.do(ctx, http.MethodPost, c.projectURL("/_apis/wit/wiql", q), map[string]string{"query": wiql})
	if err != nil {
		return nil, fmt.Errorf("wiql query: %w", err)
	}

	items := res.Get("workItems").Array()
	ids := make([]int, 0, len(items))
	for _, item := range items {
		if id := int(item.Get("id").Int()); id > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// GetWorkItems fetches work items in batches of MaxBatchIDs
func (c *HTTPClient) GetWorkItems(ctx context.Context, ids []int) ([]WorkItem, error) {
	out := make([]WorkItem, 0, len(ids))
	for start := 0; start < len(ids); start += MaxBatchIDs {
		end := start + MaxBatchIDs
		if end > len(ids) {
			end = len(ids)
		}

		body := map[string]any{
			"ids":         ids[start:end],
			"fields":      SyncedFields,
			"errorPolicy": "omit",
		}
		res, err := c.do(ctx, http.MethodPost, c.projectURL("/_apis/wit/workitemsbatch", nil), body)
		if err != nil {
			return nil, fmt.Errorf("work items batch %d-%d: %w", start, end, err)
		}
		for _, v := range res.Get("value").Array() {
			if v.Type == gjson.Null {
				continue // omitted by errorPolicy
			}
			out = append(out, decodeWorkItem(v))
		}
	}
	return out, nil
}

// GetRevisions pages through every revision of a work item
func (c *HTTPClient) GetRevisions(ctx context.Context, id int) ([]Revision, error) {
	var out []Revision
	pageSize := c.cfg.RevisionPageSize
	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		q.Set("$top", strconv.Itoa(pageSize))
		q.Set("$skip", strconv.Itoa(skip))

		res, err := c.do(ctx, http.MethodGet, c.projectURL(fmt.Sprintf("/_apis/wit/workItems/%d/revisions", id), q), nil)
		if err != nil {
			return nil, fmt.Errorf("revisions of %d: %w", id, err)
		}

		page := res.Get("value").Array()
		for _, v := range page {
			out = append(out, decodeRevision(v))
		}
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// ListIterations lists the team's iterations
func (c *HTTPClient) ListIterations(ctx context.Context) ([]Iteration, error) {
	res, err := c.do(ctx, http.MethodGet, c.teamURL("/_apis/work/teamsettings/iterations", nil), nil)
	if err != nil {
		return nil, fmt.Errorf("list iterations: %w", err)
	}

	values := res.Get("value").Array()
	out := make([]Iteration, 0, len(values))
	for _, v := range values {
		out = append(out, decodeIteration(v))
	}
	return out, nil
}

// GetIterationCapacity returns per-member capacity for an iteration. Both the
// current teamMembers envelope and the older value array are accepted.
func (c *HTTPClient) GetIterationCapacity(ctx context.Context, iterationID string) ([]TeamMemberCapacity, error) {
	path := "/_apis/work/teamsettings/iterations/" + url.PathEscape(iterationID) + "/capacities"
	res, err := c.do(ctx, http.MethodGet, c.teamURL(path, nil), nil)
	if err != nil {
		return nil, fmt.Errorf("iteration capacity %s: %w", iterationID, err)
	}

	members := res.Get("teamMembers")
	if !members.Exists() {
		members = res.Get("value")
	}

	out := make([]TeamMemberCapacity, 0)
	for _, v := range members.Array() {
		out = append(out, decodeCapacity(v))
	}
	return out, nil
}
