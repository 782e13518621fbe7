package fetch

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"recordcheck/internal/cache"
)

// #endregion

// #region config
// Config holds fetch wrapper parameters.
type Config struct {
	Timeout         time.Duration
	MaxContentChars int
	TrustedDomains  []string
	MaxAttempts     int           // total attempts for rate-limited requests
	BaseDelay       time.Duration // backoff is BaseDelay × 2^attempt
}

// DefaultConfig returns fetch defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         20 * time.Second,
		MaxContentChars: 20000,
		MaxAttempts:     3,
		BaseDelay:       5 * time.Second,
	}
}

// #endregion config

// #region doer
// Response is a raw fetched payload before normalization.
type Response struct {
	ContentType string
	Body        string
}

// Doer is the injected network client. Implementations classify
// failures into the typed error hierarchy (RateLimitError,
// NetworkError); the wrapper never inspects error text.
type Doer interface {
	Fetch(ctx context.Context, rawURL string) (Response, error)
}

// #endregion doer

// #region http-doer
// HTTPDoer fetches over net/http and classifies failures.
type HTTPDoer struct {
	client *http.Client
}

// NewHTTPDoer builds a Doer with the given request timeout.
func NewHTTPDoer(timeout time.Duration) *HTTPDoer {
	return &HTTPDoer{client: &http.Client{Timeout: timeout}}
}

// Fetch performs a GET and maps the outcome onto the typed errors:
// HTTP 429 and 503 become RateLimitError, transport failures and other
// non-2xx statuses become NetworkError.
func (d *HTTPDoer) Fetch(ctx context.Context, rawURL string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Response{}, &NetworkError{URL: rawURL, Err: err}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return Response{}, &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusServiceUnavailable:
		return Response{}, &RateLimitError{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Response{}, &NetworkError{URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &NetworkError{URL: rawURL, Err: err}
	}

	return Response{
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}, nil
}

// #endregion http-doer

// #region result
// Result is the outcome of one verification fetch.
type Result struct {
	Content    string
	Trusted    bool // allow-listed domain, treated as trivially verified
	FromCache  bool
	Failed     bool
	FailReason string
	Delays     []time.Duration // backoff delays taken, for observability
}

// envelope is the cached form of a fetch outcome. Failures are cached
// too so a dead endpoint is not hammered on every run.
type envelope struct {
	OK      bool   `json:"ok"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// #endregion result

// #region client
// Client is the networked-fetch wrapper used by networked validators:
// allow-list check, TTL cache, bounded backoff retry on rate limits,
// content normalization and truncation.
type Client struct {
	cfg   Config
	cache *cache.Cache
	doer  Doer
	sleep func(time.Duration)
}

// NewClient wires a fetch client over the given cache and Doer.
// A nil doer gets an HTTPDoer with the configured timeout.
func NewClient(cfg Config, c *cache.Cache, doer Doer) *Client {
	if doer == nil {
		doer = NewHTTPDoer(cfg.Timeout)
	}
	return &Client{
		cfg:   cfg,
		cache: c,
		doer:  doer,
		sleep: time.Sleep,
	}
}

// #endregion client

// #region verify
// Verify resolves one URL through the full wrapper pipeline. Classified
// failures come back in the Result; only programming errors return err.
func (c *Client) Verify(ctx context.Context, rawURL string) (Result, error) {
	if c.trusted(rawURL) {
		return Result{Trusted: true}, nil
	}

	key := cache.Key(rawURL)
	unlock := c.cache.LockKey(key)
	defer unlock()

	if payload, ok := c.cache.Get(key); ok {
		var env envelope
		if err := json.Unmarshal([]byte(payload), &env); err == nil {
			if env.OK {
				return Result{Content: env.Content, FromCache: true}, nil
			}
			return Result{Failed: true, FailReason: env.Reason, FromCache: true}, nil
		}
		// Unreadable envelope: fall through to a fresh fetch.
	}

	resp, delays, err := c.fetchWithRetry(ctx, rawURL)
	if err != nil {
		c.store(key, envelope{OK: false, Reason: err.Error()})
		return Result{Failed: true, FailReason: err.Error(), Delays: delays}, nil
	}

	content := Normalize(resp.Body, resp.ContentType, c.cfg.MaxContentChars)
	c.store(key, envelope{OK: true, Content: content})
	return Result{Content: content, Delays: delays}, nil
}

// fetchWithRetry performs the network call, retrying only rate-limit
// failures with exponential backoff. Returns the backoff delays taken.
func (c *Client) fetchWithRetry(ctx context.Context, rawURL string) (Response, []time.Duration, error) {
	var delays []time.Duration
	attempts := c.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.doer.Fetch(ctx, rawURL)
		if err == nil {
			return resp, delays, nil
		}

		if IsRateLimit(err) && attempt < attempts-1 {
			delay := c.cfg.BaseDelay * time.Duration(1<<attempt)
			delays = append(delays, delay)
			log.Printf("[FETCH] rate limited, retrying %s in %s", rawURL, delay)
			c.sleep(delay)
			continue
		}

		return Response{}, delays, err
	}
}

// #endregion verify

// #region helpers
func (c *Client) trusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range c.cfg.TrustedDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func (c *Client) store(key string, env envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, string(data)); err != nil {
		log.Printf("[FETCH] cache write failed: %v", err)
	}
}

// #endregion helpers
