package builtins

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"

	"github.com/conductor-html/conductor/internal/dispatch"
	"github.com/conductor-html/conductor/internal/logging"
)

const (
	// DefaultFetchTimeout bounds one fetch including retries.
	DefaultFetchTimeout = 30 * time.Second
	// maxFetchTimeout caps data-fetch-timeout overrides.
	maxFetchTimeout = 120 * time.Second
	// maxResponseSize caps the response body.
	maxResponseSize = 5 * 1024 * 1024
	// fetchMaxRetries is the retry ceiling for transient failures.
	fetchMaxRetries = 3
	// fetchRetryInitial is the first retry interval.
	fetchRetryInitial = 500 * time.Millisecond
	// fetchRetryMax caps the retry interval.
	fetchRetryMax = 5 * time.Second
)

// Fetcher implements the --fetch:get|post command: it retrieves a URL
// with exponential-backoff retries, optionally narrows the response to
// a selected fragment, and swaps the result into the target element.
//
// Attributes on the invoker (falling back to the target) steer it:
// data-select / data-select-all choose a fragment (select-all wins
// when both are present), data-swap picks the insertion mode
// (inner, append, prepend, outer, replace), data-fetch-timeout
// overrides the timeout in milliseconds, and data-fetch-body /
// data-fetch-content-type shape POST requests.
type Fetcher struct {
	client       *http.Client
	maxRetries   uint64
	retryInitial time.Duration
	retryMax     time.Duration
	allowedHosts []string
}

// FetchOption configures a Fetcher.
type FetchOption func(*Fetcher)

// WithClient substitutes the HTTP client.
func WithClient(client *http.Client) FetchOption {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithRetryPolicy adjusts the retry ceiling and interval bounds.
func WithRetryPolicy(maxRetries uint64, initial, max time.Duration) FetchOption {
	return func(f *Fetcher) {
		f.maxRetries = maxRetries
		if initial > 0 {
			f.retryInitial = initial
		}
		if max > 0 {
			f.retryMax = max
		}
	}
}

// WithAllowedHosts restricts fetch targets to the named hosts. Empty
// means any host.
func WithAllowedHosts(hosts []string) FetchOption {
	return func(f *Fetcher) { f.allowedHosts = hosts }
}

// NewFetcher creates a Fetcher with the default client and retry
// policy unless options override them.
func NewFetcher(opts ...FetchOption) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: DefaultFetchTimeout},
		maxRetries:   fetchMaxRetries,
		retryInitial: fetchRetryInitial,
		retryMax:     fetchRetryMax,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// retryBackoff builds an exponential backoff with jitter, bounded by
// the context and the retry ceiling.
func (f *Fetcher) retryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryInitial
	b.MaxInterval = f.retryMax
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, f.maxRetries), ctx)
}

// Command is the --fetch callback.
func (f *Fetcher) Command(ctx context.Context, ec *dispatch.ExecContext) error {
	method := strings.ToUpper(ec.Param(0))
	if method != http.MethodGet && method != http.MethodPost {
		return fmt.Errorf("unknown fetch method %q", ec.Param(0))
	}
	rawURL := restParams(ec.Params, 1)
	if rawURL == "" {
		return fmt.Errorf("fetch needs a url")
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return fmt.Errorf("fetch url %q must start with http:// or https://", rawURL)
	}
	if err := f.checkHost(rawURL); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeoutFor(ec))
	defer cancel()

	body := fetchAttr(ec, "data-fetch-body")
	contentType := fetchAttr(ec, "data-fetch-content-type")
	if contentType == "" {
		contentType = "application/json"
	}

	var payload []byte
	operation := func() error {
		var reader io.Reader
		if method == http.MethodPost {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, rawURL, reader)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "conductor/1.0")
		if method == http.MethodPost {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
		if err != nil {
			return err
		}
		if len(data) > maxResponseSize {
			return backoff.Permanent(fmt.Errorf("response exceeds %d bytes", maxResponseSize))
		}
		payload = data
		return nil
	}
	if err := backoff.Retry(operation, f.retryBackoff(reqCtx)); err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	content := string(payload)
	if selector := fetchAttr(ec, "data-select-all"); selector != "" {
		fragment, err := selectFragments(content, selector, true)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		content = fragment
	} else if selector := fetchAttr(ec, "data-select"); selector != "" {
		fragment, err := selectFragments(content, selector, false)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		content = fragment
	}

	return swapContent(ec, content)
}

// checkHost enforces the host allow-list when one is configured.
func (f *Fetcher) checkHost(rawURL string) error {
	if len(f.allowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("fetch url %q: %w", rawURL, err)
	}
	host := u.Hostname()
	for _, allowed := range f.allowedHosts {
		if strings.EqualFold(host, allowed) {
			return nil
		}
	}
	return fmt.Errorf("fetch host %q not in the allow-list", host)
}

// timeoutFor resolves the fetch timeout, honoring a
// data-fetch-timeout override in milliseconds.
func (f *Fetcher) timeoutFor(ec *dispatch.ExecContext) time.Duration {
	raw := fetchAttr(ec, "data-fetch-timeout")
	if raw == "" {
		return DefaultFetchTimeout
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms <= 0 {
		logging.Warn().
			Str("value", raw).
			Msg("invalid data-fetch-timeout ignored")
		return DefaultFetchTimeout
	}
	timeout := time.Duration(ms) * time.Millisecond
	if timeout > maxFetchTimeout {
		timeout = maxFetchTimeout
	}
	return timeout
}

// fetchAttr reads a steering attribute from the invoker, then the
// target.
func fetchAttr(ec *dispatch.ExecContext, name string) string {
	if ec.Invoker != nil {
		if v, ok := ec.Invoker.Attr(name); ok {
			return v
		}
	}
	if ec.Target != nil {
		if v, ok := ec.Target.Attr(name); ok {
			return v
		}
	}
	return ""
}

// selectFragments narrows fetched HTML to the elements matching
// selector: the first match, or every match concatenated in document
// order when all is set. No match yields an empty fragment.
func selectFragments(content, selector string, all bool) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parsing fetched document: %w", err)
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", nil
	}
	if !all {
		sel = sel.First()
	}

	var b strings.Builder
	var renderErr error
	sel.Each(func(_ int, s *goquery.Selection) {
		fragment, err := goquery.OuterHtml(s)
		if err != nil {
			if renderErr == nil {
				renderErr = err
			}
			return
		}
		b.WriteString(fragment)
	})
	if renderErr != nil {
		return "", fmt.Errorf("rendering selected fragment: %w", renderErr)
	}
	return b.String(), nil
}

// swapContent inserts content into the target per the data-swap mode.
// outer and replace are synonyms; both swap the target element itself.
func swapContent(ec *dispatch.ExecContext, content string) error {
	mode := fetchAttr(ec, "data-swap")
	if mode == "" {
		mode = "inner"
	}
	switch mode {
	case "inner":
		return ec.Target.SetInnerHTML(content)
	case "append":
		return ec.Target.AppendHTML(content)
	case "prepend":
		return ec.Target.PrependHTML(content)
	case "outer", "replace":
		return ec.Target.ReplaceWithHTML(content)
	default:
		return fmt.Errorf("unknown swap mode %q", mode)
	}
}
