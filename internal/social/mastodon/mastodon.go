package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
	mastodonapi "github.com/mattn/go-mastodon"
)

const providerName = social.Mastodon

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for a Mastodon account.
type Client struct {
	*social.Base
	server     string
	httpClient *http.Client
}

// New constructs a Mastodon adapter. The instance comes from creds.Server,
// falling back to the base URL option.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		server:     o.BaseURL,
		httpClient: o.HTTPClient,
	}
}

// api builds a go-mastodon client from the current credentials.
func (c *Client) api() (*mastodonapi.Client, error) {
	creds := c.Credentials()
	server := strings.TrimSpace(creds.Server)
	if server == "" {
		server = c.server
	}

	var missing []string
	if server == "" {
		missing = append(missing, "server")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return nil, social.MissingCredentialsError{Provider: providerName, Fields: missing}
	}

	client := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       server,
		AccessToken:  creds.AccessToken,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	})
	if c.httpClient != nil {
		client.Client = *c.httpClient
	} else {
		client.Timeout = social.DefaultTimeout
	}
	return client, nil
}

// Authenticate verifies the token against the current account.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.me(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the current account.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.me)
}

func (c *Client) me(ctx context.Context) (*social.AccountSummary, error) {
	client, err := c.api()
	if err != nil {
		return nil, err
	}
	acct, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", classify(err))
	}
	return &social.AccountSummary{
		ID:        string(acct.ID),
		Name:      acct.DisplayName,
		Username:  acct.Acct,
		Followers: acct.FollowersCount,
	}, nil
}

// Post publishes a status. Media is downloaded from its URL and uploaded to
// the instance before the status is created.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		client, err := c.api()
		if err != nil {
			return social.PostResponse{}, err
		}

		var mediaIDs []mastodonapi.ID
		for _, m := range req.Media {
			attachment, err := c.uploadMedia(ctx, client, m)
			if err != nil {
				return social.PostResponse{}, err
			}
			mediaIDs = append(mediaIDs, attachment.ID)
		}

		status, err := client.PostStatus(ctx, &mastodonapi.Toot{
			Status:      c.ComposeText(req.Text, req.Hashtags, req.Link),
			MediaIDs:    mediaIDs,
			Visibility:  visibilityFor(req.OptionString("visibility"), c.Settings().DefaultVisibility),
			Sensitive:   req.OptionBool("sensitive"),
			SpoilerText: req.OptionString("spoiler_text"),
			Language:    req.OptionString("language"),
		})
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("post status: %w", classify(err))
		}
		return social.Published(providerName, string(status.ID), status.URL), nil
	})
}

func (c *Client) uploadMedia(ctx context.Context, client *mastodonapi.Client, m social.Media) (*mastodonapi.Attachment, error) {
	body, err := social.FetchMedia(ctx, c.httpClient, providerName, m.URL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	attachment, err := client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        body,
		Description: m.AltText,
	})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", classify(err))
	}
	logutil.Debugf("mastodon: uploaded %s as %s", m.Type, attachment.ID)
	return attachment, nil
}

func visibilityFor(option, fallback string) string {
	for _, v := range []string{option, fallback} {
		switch strings.ToLower(v) {
		case "public", "unlisted", "private", "direct":
			return strings.ToLower(v)
		}
	}
	return "public"
}

// classify maps go-mastodon API errors onto the shared taxonomy.
func classify(err error) error {
	var apiErr *mastodonapi.APIError
	if errors.As(err, &apiErr) {
		return social.Classify(providerName, apiErr.StatusCode, nil, apiErr.Error())
	}
	return &social.ProviderError{Provider: providerName, Message: err.Error()}
}
