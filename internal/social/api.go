package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/blacktop/socialcast/internal/logutil"
)

const maxErrorBody = 4 << 10

// DecodedError is what an ErrorDecoder recovers from a failed response body.
type DecodedError struct {
	Message    string
	RetryAfter *int
	// Status, when non-zero, replaces the HTTP status for classification.
	// Providers that report auth or throttling failures as 400 use it.
	Status int
}

// ErrorDecoder extracts provider error details from a non-2xx response body.
type ErrorDecoder func(status int, body []byte) DecodedError

// APIClient performs JSON requests against one provider REST surface and
// classifies failures.
type APIClient struct {
	Platform   Platform
	BaseURL    string
	HTTPClient *http.Client
	Header     http.Header
	DecodeErr  ErrorDecoder
}

// Call describes a single request.
type Call struct {
	Method string
	// Path is joined to BaseURL unless it is already absolute.
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON encoded unless Form or Raw is set.
	Body any
	Form url.Values
	// Raw is streamed as is with RawType as its content type.
	Raw     io.Reader
	RawType string
}

// Response is what Do hands back on success.
type Response struct {
	StatusCode int
	Header     http.Header
}

// Do executes c and decodes a successful JSON response into out (if non-nil).
func (a *APIClient) Do(ctx context.Context, c Call, out any) (*Response, error) {
	target := c.Path
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		target = strings.TrimRight(a.BaseURL, "/") + "/" + strings.TrimLeft(c.Path, "/")
	}
	if len(c.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + c.Query.Encode()
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case c.Raw != nil:
		body = c.Raw
		contentType = c.RawType
	case c.Form != nil:
		body = strings.NewReader(c.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case c.Body != nil:
		buf, err := json.Marshal(c.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
		contentType = "application/json"
	}

	method := c.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, vs := range a.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range c.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	logutil.Debugf("%s: %s %s", a.Platform, method, redactURL(req.URL))
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: a.Platform, Message: fmt.Sprintf("send request: %v", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		status := resp.StatusCode
		retryAfter := ParseRetryAfter(resp.Header)
		message := ""
		if a.DecodeErr != nil {
			d := a.DecodeErr(resp.StatusCode, respBody)
			message = d.Message
			if d.RetryAfter != nil {
				retryAfter = d.RetryAfter
			}
			if d.Status != 0 {
				status = d.Status
			}
		}
		if message == "" {
			message = strings.TrimSpace(string(truncateBytes(respBody, maxErrorBody)))
		}
		return nil, Classify(a.Platform, status, retryAfter, message)
	}

	if out != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header}, nil
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// redactURL strips query values and bot tokens from a URL before logging.
func redactURL(u *url.URL) string {
	clean := *u
	clean.RawQuery = ""
	path := clean.Path
	if i := strings.Index(path, "/bot"); i >= 0 {
		end := strings.Index(path[i+1:], "/")
		if end > 0 {
			path = path[:i] + "/bot****" + path[i+1+end:]
		}
	}
	if i := strings.Index(path, "/webhooks/"); i >= 0 {
		path = path[:i] + "/webhooks/****"
	}
	clean.Path = path
	clean.RawPath = ""
	return clean.String()
}

// FetchMedia downloads a remotely hosted attachment so it can be re-uploaded
// to providers that do not accept media by URL. The caller closes the body.
func FetchMedia(ctx context.Context, client *http.Client, p Platform, mediaURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, &ValidationError{Provider: p, Field: "media", Reason: fmt.Sprintf("invalid media url %q", mediaURL)}
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &ValidationError{Provider: p, Field: "media", Reason: fmt.Sprintf("fetch %q: status %d", mediaURL, resp.StatusCode)}
	}
	return resp.Body, nil
}
