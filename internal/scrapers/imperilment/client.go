// client.go contains the transport side of talking to an imperilment instance, it knows
// nothing about games or answers, only how to carry a session between requests.

package imperilment

import (
	"context"
	"fmt"
	"imperilment-submitter/internal/components/assert"
	"imperilment-submitter/internal/components/telemetry"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_client_get  = "client.get"
	report_client_post = "client.post"
)

type ClientOptions struct {
	// BaseUrl is the host of the instance, `http://` is assumed when it has no scheme.
	BaseUrl string
	// RequestsPerSecond paces requests, 0 disables pacing.
	RequestsPerSecond float64
	// Timeout is the per-request timeout, 0 disables it.
	Timeout time.Duration
	// Output receives dumps of every HTTP exchange, it can be nil.
	Output telemetry.MessageOutput
}

// Client issues requests against an imperilment instance. It holds no cookies of its
// own, every call takes the Session to send and returns the Session to use next.
type Client struct {
	baseUrl string
	http    *resty.Client
	tel     telemetry.API
}

// NormalizeBaseUrl prefixes `host` with `http://` when it carries no scheme and
// drops any trailing slash.
func NormalizeBaseUrl(host string) (string, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	host = strings.TrimRight(host, "/")

	parsed, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("host %q has no hostname", host)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("host %q has unsupported scheme %q", host, parsed.Scheme)
	}
	return host, nil
}

func NewClient(opts ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("imperilment", tel)

	baseUrl, err := NormalizeBaseUrl(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	// cookies only travel through the Session passed to each call
	httpClient.SetCookieJar(nil)
	httpClient.SetBaseURL(baseUrl)
	httpClient.SetHeader("user-agent", "imperilment-submitter")
	// creation responses carry the new id in their Location header, so redirects
	// are handed back instead of followed.
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))
	if opts.Timeout > 0 {
		httpClient.SetTimeout(opts.Timeout)
	}

	if opts.RequestsPerSecond > 0 {
		rateLimiter := rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(httpClient, tel, opts.Output)

	return &Client{
		baseUrl: baseUrl,
		http:    httpClient,
		tel:     tel,
	}, nil
}

// BaseUrl returns the normalized base url all paths are resolved against.
func (c *Client) BaseUrl() string {
	return c.baseUrl
}

func (c *Client) request(ctx context.Context, session Session) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if !session.Empty() {
		req.SetHeader("Cookie", session.Header())
	}
	return req
}

// Get fetches `path` sending `session`, the returned session includes any cookie
// the response issued.
func (c *Client) Get(ctx context.Context, path string, session Session) (*resty.Response, Session, error) {
	res, err := c.request(ctx, session).Get(path)
	if err != nil {
		c.tel.ReportBroken(report_client_get, err, path)
		return nil, session, fmt.Errorf("%w: GET %s: %w", ErrTransport, path, err)
	}
	return res, session.With(res.Cookies()), nil
}

// Post submits `form` url-encoded to `path` sending `session`, the returned session
// includes any cookie the response issued.
func (c *Client) Post(ctx context.Context, path string, form url.Values, session Session) (*resty.Response, Session, error) {
	res, err := c.request(ctx, session).
		SetFormDataFromValues(form).
		Post(path)
	if err != nil {
		c.tel.ReportBroken(report_client_post, err, path)
		return nil, session, fmt.Errorf("%w: POST %s: %w", ErrTransport, path, err)
	}
	return res, session.With(res.Cookies()), nil
}

func isRedirect(res *resty.Response) bool {
	code := res.StatusCode()
	return code >= 300 && code < 400 && res.Header().Get("Location") != ""
}
