package twitter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
	"github.com/michimani/gotwi/user/userlookup"
	userlookuptypes "github.com/michimani/gotwi/user/userlookup/types"
)

const (
	providerName = social.Twitter

	// MaxTweetLength is the hard cap applied to the composed text.
	MaxTweetLength = 280
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for X (Twitter) using an OAuth 2.0 bearer
// token for the posting user.
type Client struct {
	*social.Base
	httpClient *http.Client
}

// New constructs a Twitter adapter. creds.AccessToken is sent as the bearer token.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		httpClient: o.HTTPClient,
	}
}

// api builds a gotwi client from the current credentials so that credential
// updates apply to the next call.
func (c *Client) api() (*gotwi.Client, error) {
	token := strings.TrimSpace(c.Credentials().AccessToken)
	if token == "" {
		return nil, social.MissingCredentialsError{Provider: providerName, Fields: []string{"access_token"}}
	}
	client, err := gotwi.NewClientWithAccessToken(&gotwi.NewClientWithAccessTokenInput{
		HTTPClient:  c.httpClient,
		AccessToken: token,
		Debug:       logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	return client, nil
}

// Authenticate looks up the user behind the bearer token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.me(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the authenticated user.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.me)
}

func (c *Client) me(ctx context.Context) (*social.AccountSummary, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	res, err := userlookup.GetMe(ctx, api, &userlookuptypes.GetMeInput{})
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", classify(err))
	}
	return &social.AccountSummary{
		ID:       gotwi.StringValue(res.Data.ID),
		Name:     gotwi.StringValue(res.Data.Name),
		Username: gotwi.StringValue(res.Data.Username),
	}, nil
}

// Post publishes a tweet. The composed text is cut to 280 characters.
//
// Media attached to the request is not uploaded: only the text is sent.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		api, err := c.api()
		if err != nil {
			return social.PostResponse{}, err
		}
		if len(req.Media) > 0 {
			logutil.Debugf("twitter: ignoring %d media attachment(s)", len(req.Media))
		}

		text := social.Truncate(c.ComposeText(req.Text, req.Hashtags, req.Link), MaxTweetLength)
		logutil.Debugf("posting tweet: chars=%d", len([]rune(text)))
		res, err := managetweet.Create(ctx, api, &managetweettypes.CreateInput{
			Text: gotwi.String(text),
		})
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("post tweet: %w", classify(err))
		}

		id := gotwi.StringValue(res.Data.ID)
		return social.Published(providerName, id, "https://x.com/i/web/status/"+id), nil
	})
}

// classify maps gotwi failures onto the shared taxonomy.
func classify(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil && gwErr.OnAPI {
		return social.Classify(providerName, gwErr.StatusCode, nil, summarizeGotwiError(gwErr))
	}
	return &social.ProviderError{Provider: providerName, Message: err.Error()}
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}
