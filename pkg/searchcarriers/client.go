// Package searchcarriers is a client for the SearchCarriers insurance-data
// API. Calls are rate limited to one request per second, retried on
// transient failures, and guarded by a circuit breaker.
package searchcarriers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/HaulGuardAI/haulguard-mvp/pkg/fn"
	"github.com/HaulGuardAI/haulguard-mvp/pkg/resilience"
)

const (
	defaultBaseURL = "https://api.searchcarriers.com"
	perPage        = 100
)

// Client talks to the SearchCarriers API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   fn.RetryOpts
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetry overrides the retry policy.
func WithRetry(opts fn.RetryOpts) Option {
	return func(c *Client) { c.retry = opts }
}

// WithRate overrides the request rate limit.
func WithRate(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// New creates a SearchCarriers client with a Bearer token.
func New(token string, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		baseURL: defaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		retry: fn.RetryOpts{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     15 * time.Second,
			Jitter:      true,
		},
		log: log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// transientError marks status codes worth retrying.
type transientError struct {
	status int
}

func (e *transientError) Error() string {
	return fmt.Sprintf("searchcarriers: transient status %d", e.status)
}

// InsuranceHistory fetches every insurance record on file for a carrier,
// walking pagination. A 404 means the provider has nothing for this USDOT
// and returns an empty slice, not an error.
func (c *Client) InsuranceHistory(ctx context.Context, usdot int64) ([]InsuranceRecord, error) {
	var all []InsuranceRecord
	for page := 1; ; page++ {
		recs, err := c.historyPage(ctx, usdot, page)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
		if len(recs) < perPage {
			return all, nil
		}
	}
}

func (c *Client) historyPage(ctx context.Context, usdot int64, page int) ([]InsuranceRecord, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	endpoint := fmt.Sprintf("%s/v1/carriers/%d/insurance?%s", c.baseURL, usdot, q.Encode())

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[[]InsuranceRecord] {
		return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[[]InsuranceRecord] {
			return fn.FromPair(c.get(ctx, endpoint))
		})
	})
	recs, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("insurance history for %d page %d: %w", usdot, page, err)
	}
	return recs, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]InsuranceRecord, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		c.log.Warn("searchcarriers transient failure", "status", resp.StatusCode, "url", endpoint)
		return nil, &transientError{status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("searchcarriers: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page historyPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return page.Data, nil
}

// ComplianceCheck derives a carrier's current insurance standing from its
// history: no records at all, no currently active record, or active
// coverage under the federal floor.
func (c *Client) ComplianceCheck(ctx context.Context, usdot int64, minimum float64) (ComplianceResult, error) {
	recs, err := c.InsuranceHistory(ctx, usdot)
	if err != nil {
		return ComplianceResult{}, err
	}
	return CheckCompliance(usdot, recs, minimum, time.Now().UTC()), nil
}

// CheckCompliance is the pure derivation behind ComplianceCheck.
func CheckCompliance(usdot int64, recs []InsuranceRecord, minimum float64, now time.Time) ComplianceResult {
	result := ComplianceResult{CarrierUSDOT: usdot, Compliant: true}
	if len(recs) == 0 {
		result.Compliant = false
		result.Violations = append(result.Violations, ComplianceViolation{
			Code:   ViolationNoInsurance,
			Detail: "no insurance records on file",
		})
		return result
	}

	var bestActive float64
	active := false
	for _, r := range recs {
		if !recordActive(r, now) {
			continue
		}
		active = true
		if amt := CoverageAmount(r.MaxCovAmount); amt > bestActive {
			bestActive = amt
		}
	}

	if !active {
		result.Compliant = false
		result.Violations = append(result.Violations, ComplianceViolation{
			Code:   ViolationNoActiveInsurance,
			Detail: "no currently active policy",
		})
		return result
	}
	if bestActive < minimum {
		result.Compliant = false
		result.Violations = append(result.Violations, ComplianceViolation{
			Code:   ViolationUnderinsured,
			Detail: fmt.Sprintf("active coverage $%.0f below required $%.0f", bestActive, minimum),
		})
	}
	return result
}

func recordActive(r InsuranceRecord, now time.Time) bool {
	if strings.TrimSpace(r.CancellationDate) != "" {
		return false
	}
	exp, ok := ParseRecordDate(r.ExpirationDate)
	if !ok {
		return true
	}
	return exp.After(now)
}

// CoverageAmount parses the provider's coverage string, given in thousands
// of dollars, into a dollar amount. Unparseable input maps to zero.
func CoverageAmount(raw string) float64 {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	if raw == "" {
		return 0
	}
	thousands, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return thousands * 1000
}

var recordDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// ParseRecordDate parses the provider's date strings, which arrive in a
// couple of formats.
func ParseRecordDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range recordDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
