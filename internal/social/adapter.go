package social

import (
	"context"
	"net/http"
	"time"
)

// Adapter is the uniform contract every platform implementation satisfies.
//
// Post never panics and never returns an error: every failure, including a
// request rejected by validation, comes back as a failed PostResponse.
// Authenticate, by contrast, returns classified errors to its caller.
type Adapter interface {
	Platform() Platform
	Authenticate(ctx context.Context) error
	ValidateCredentials(ctx context.Context) error
	TestConnection(ctx context.Context) bool
	Post(ctx context.Context, req PostRequest) PostResponse
	Capabilities() CapabilityDescriptor
	ConnectionStatus(ctx context.Context) ConnectionStatus
	RefreshToken(ctx context.Context) (bool, error)

	Credentials() Credentials
	UpdateCredentials(update Credentials)
	Settings() Settings
	UpdateSettings(o SettingsOverride)
}

// DefaultTimeout bounds each provider HTTP call.
const DefaultTimeout = 30 * time.Second

// Options carries construction-time dependencies shared by the adapters.
type Options struct {
	HTTPClient *http.Client
	// BaseURL overrides the provider API root. Empty means the public endpoint.
	BaseURL string
}

// Option configures Options.
type Option func(*Options)

// WithHTTPClient sets the HTTP client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Options) { o.HTTPClient = c }
}

// WithBaseURL points the adapter at a different API root.
func WithBaseURL(u string) Option {
	return func(o *Options) { o.BaseURL = u }
}

// BuildOptions applies opts over the defaults.
func BuildOptions(opts ...Option) Options {
	o := Options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return o
}

// BaseURLOr returns the configured base URL or def.
func (o Options) BaseURLOr(def string) string {
	if o.BaseURL != "" {
		return o.BaseURL
	}
	return def
}
