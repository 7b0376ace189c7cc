package executor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/harrison/suitepilot/internal/models"
)

// DefaultHTTPTimeout bounds a single request when the client has no timeout.
const DefaultHTTPTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 10 << 20

// Task params understood by HTTPExecutor.
const (
	ParamURL          = "url"
	ParamMethod       = "method"
	ParamBody         = "body"
	ParamHeaderPrefix = "header."
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface for StatusError.
func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// HTTPExecutor fetches a JSON document described by the task params.
// The client is shared by every session.
type HTTPExecutor struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPExecutor creates an executor whose client times out after timeout.
func NewHTTPExecutor(timeout time.Duration) *HTTPExecutor {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPExecutor{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: "suitepilot",
	}
}

// Open validates the request parameters before the unit is timed against
// the network.
func (e *HTTPExecutor) Open(_ context.Context, unit models.Unit) (Session, error) {
	task := unit.Task()

	raw := task.Param(ParamURL, "")
	if raw == "" {
		return nil, fmt.Errorf("http task for %s has no %q param", unit.Name(), ParamURL)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("http task for %s: invalid url %q", unit.Name(), raw)
	}

	headers := make(map[string]string)
	for k, v := range task.Params {
		if name, ok := strings.CutPrefix(k, ParamHeaderPrefix); ok && name != "" {
			headers[name] = v
		}
	}

	return &httpSession{
		exec:    e,
		method:  strings.ToUpper(task.Param(ParamMethod, http.MethodGet)),
		url:     u.String(),
		body:    task.Param(ParamBody, ""),
		headers: headers,
	}, nil
}

type httpSession struct {
	exec    *HTTPExecutor
	method  string
	url     string
	body    string
	headers map[string]string
}

func (s *httpSession) Execute(ctx context.Context) ([]byte, error) {
	var body io.Reader
	if s.body != "" {
		body = strings.NewReader(s.body)
	}

	req, err := http.NewRequestWithContext(ctx, s.method, s.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.exec.UserAgent != "" {
		req.Header.Set("User-Agent", s.exec.UserAgent)
	}

	names := make([]string, 0, len(s.headers))
	for name := range s.headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		req.Header.Set(name, s.headers[name])
	}

	client := s.exec.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s %s: %w", s.method, s.url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     s.method,
			URL:        s.url,
			StatusCode: resp.StatusCode,
			Body:       tail(string(data), 200),
		}
	}
	return data, nil
}

func (s *httpSession) Close() error { return nil }
