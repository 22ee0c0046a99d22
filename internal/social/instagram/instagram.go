package instagram

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/blacktop/socialcast/internal/social/graph"
)

const providerName = social.Instagram

var _ social.Adapter = (*Client)(nil)

// phase is the step of the container-then-publish sequence a failure occurred in.
type phase string

const (
	phaseContainer phase = "container"
	phasePublish   phase = "publish"
)

// Client implements social.Adapter for Instagram professional accounts.
type Client struct {
	*social.Base
	api *social.APIClient
}

// New constructs an Instagram adapter. creds needs the Instagram business
// account id and an access token.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base: social.NewBase(providerName, creds, settings),
		api:  graph.NewClient(providerName, o.BaseURL, o.HTTPClient),
	}
}

type accountResponse struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	FollowersCount int64  `json:"followers_count"`
}

// Authenticate reads the business account behind the token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.account(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the business account.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, func(ctx context.Context) (*social.AccountSummary, error) {
		a, err := c.account(ctx)
		if err != nil {
			return nil, err
		}
		return &social.AccountSummary{ID: a.ID, Name: a.Name, Username: a.Username, Followers: a.FollowersCount}, nil
	})
}

func (c *Client) account(ctx context.Context) (*accountResponse, error) {
	creds, err := c.requireCredentials()
	if err != nil {
		return nil, err
	}
	var a accountResponse
	_, err = c.api.Do(ctx, social.Call{
		Path: "/" + url.PathEscape(creds.AccountID),
		Query: url.Values{
			"fields":       {"id,username,name,followers_count"},
			"access_token": {creds.AccessToken},
		},
	}, &a)
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}
	return &a, nil
}

// Post creates a media container and then publishes it. Instagram has no
// text-only posts, so a request without media fails before any call.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if len(req.Media) == 0 {
			return social.PostResponse{}, &social.ValidationError{
				Provider: providerName,
				Field:    "media",
				Reason:   "instagram requires at least one image or video",
			}
		}
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		creds, err := c.requireCredentials()
		if err != nil {
			return social.PostResponse{}, err
		}

		caption := c.ComposeText(req.Text, req.Hashtags, "")
		containerID, err := c.createContainer(ctx, creds, req, caption)
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("%s: %w", phaseContainer, err)
		}
		logutil.Debugf("instagram: container created: id=%s", containerID)

		var published graph.IDResponse
		_, err = c.api.Do(ctx, social.Call{
			Method: "POST",
			Path:   "/" + url.PathEscape(creds.AccountID) + "/media_publish",
			Body: map[string]any{
				"creation_id":  containerID,
				"access_token": creds.AccessToken,
			},
		}, &published)
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("%s: %w", phasePublish, err)
		}

		return social.Published(providerName, published.ID, c.permalink(ctx, creds, published.ID)), nil
	})
}

func (c *Client) createContainer(ctx context.Context, creds social.Credentials, req social.PostRequest, caption string) (string, error) {
	payload := map[string]any{"access_token": creds.AccessToken}

	switch {
	case req.OptionBool("story"):
		setMedia(payload, req.Media[0], "STORIES")
	case len(req.Media) == 1:
		if req.Media[0].Type == social.MediaVideo {
			setMedia(payload, req.Media[0], "REELS")
		} else {
			setMedia(payload, req.Media[0], "")
		}
		payload["caption"] = caption
	default:
		children := make([]string, 0, len(req.Media))
		for i, m := range req.Media {
			child := map[string]any{
				"is_carousel_item": true,
				"access_token":     creds.AccessToken,
			}
			if m.Type == social.MediaVideo {
				setMedia(child, m, "VIDEO")
			} else {
				setMedia(child, m, "")
			}
			id, err := c.container(ctx, creds, child)
			if err != nil {
				return "", fmt.Errorf("carousel item %d: %w", i+1, err)
			}
			children = append(children, id)
		}
		payload["media_type"] = "CAROUSEL"
		payload["children"] = strings.Join(children, ",")
		payload["caption"] = caption
	}

	return c.container(ctx, creds, payload)
}

func (c *Client) container(ctx context.Context, creds social.Credentials, payload map[string]any) (string, error) {
	var out graph.IDResponse
	_, err := c.api.Do(ctx, social.Call{
		Method: "POST",
		Path:   "/" + url.PathEscape(creds.AccountID) + "/media",
		Body:   payload,
	}, &out)
	if err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &social.ProviderError{Provider: providerName, Message: "container response carried no id"}
	}
	return out.ID, nil
}

func setMedia(payload map[string]any, m social.Media, mediaType string) {
	if m.Type == social.MediaVideo {
		payload["video_url"] = m.URL
	} else {
		payload["image_url"] = m.URL
	}
	if mediaType != "" {
		payload["media_type"] = mediaType
	}
}

// permalink looks up the public URL of a published media object. Failures are
// not fatal: the post already exists.
func (c *Client) permalink(ctx context.Context, creds social.Credentials, mediaID string) string {
	var out struct {
		Permalink string `json:"permalink"`
	}
	_, err := c.api.Do(ctx, social.Call{
		Path: "/" + url.PathEscape(mediaID),
		Query: url.Values{
			"fields":       {"permalink"},
			"access_token": {creds.AccessToken},
		},
	}, &out)
	if err != nil {
		logutil.Debugf("instagram: permalink lookup failed: %v", err)
		return ""
	}
	return out.Permalink
}

func (c *Client) requireCredentials() (social.Credentials, error) {
	creds := c.Credentials()
	var missing []string
	if strings.TrimSpace(creds.AccountID) == "" {
		missing = append(missing, "account_id")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return creds, social.MissingCredentialsError{Provider: providerName, Fields: missing}
	}
	return creds, nil
}
