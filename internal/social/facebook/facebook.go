package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/blacktop/socialcast/internal/social/graph"
)

const providerName = social.Facebook

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for Facebook business pages.
type Client struct {
	*social.Base
	api *social.APIClient
}

// New constructs a Facebook adapter. creds needs a page id and a page access token.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base: social.NewBase(providerName, creds, settings),
		api:  graph.NewClient(providerName, o.BaseURL, o.HTTPClient),
	}
}

type pageResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	FanCount int64  `json:"fan_count"`
	Category string `json:"category"`
}

// Authenticate verifies the page token by reading the page itself.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.page(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the page.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, func(ctx context.Context) (*social.AccountSummary, error) {
		p, err := c.page(ctx)
		if err != nil {
			return nil, err
		}
		return &social.AccountSummary{ID: p.ID, Name: p.Name, Username: p.Username, Followers: p.FanCount}, nil
	})
}

func (c *Client) page(ctx context.Context) (*pageResponse, error) {
	creds, err := c.requireCredentials()
	if err != nil {
		return nil, err
	}
	var p pageResponse
	_, err = c.api.Do(ctx, social.Call{
		Path: "/" + url.PathEscape(creds.PageID),
		Query: url.Values{
			"fields":       {"id,name,username,fan_count,category"},
			"access_token": {creds.AccessToken},
		},
	}, &p)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	if p.ID == "" {
		return nil, &social.AuthenticationError{Provider: providerName, Message: "page lookup returned no id; a business page token is required"}
	}
	return &p, nil
}

// Post publishes to the page, routing by media type: text and links to the
// feed, a single image to photos, several images as an album post, video to
// videos.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		creds, err := c.requireCredentials()
		if err != nil {
			return social.PostResponse{}, err
		}

		message := c.ComposeText(req.Text, req.Hashtags, "")
		images, videos := req.Images(), req.Videos()

		var id string
		switch {
		case len(videos) > 0:
			id, err = c.postVideo(ctx, creds, req, message, videos[0])
		case len(images) == 1:
			id, err = c.postPhoto(ctx, creds, req, message, images[0])
		case len(images) > 1:
			id, err = c.postAlbum(ctx, creds, req, message, images)
		default:
			id, err = c.postFeed(ctx, creds, req, message, nil)
		}
		if err != nil {
			return social.PostResponse{}, err
		}

		postURL := "https://www.facebook.com/" + id
		if req.ScheduleAt != nil {
			return social.Scheduled(providerName, id, postURL), nil
		}
		return social.Published(providerName, id, postURL), nil
	})
}

func (c *Client) postFeed(ctx context.Context, creds social.Credentials, req social.PostRequest, message string, attached []string) (string, error) {
	payload := map[string]any{
		"message":      message,
		"access_token": creds.AccessToken,
	}
	if req.Link != "" {
		payload["link"] = req.Link
	}
	if targeting := targetingOption(req); targeting != nil {
		payload["targeting"] = targeting
	}
	if len(attached) > 0 {
		media := make([]map[string]string, 0, len(attached))
		for _, fbid := range attached {
			media = append(media, map[string]string{"media_fbid": fbid})
		}
		payload["attached_media"] = media
	}
	schedule(payload, req)

	var out graph.IDResponse
	if _, err := c.api.Do(ctx, social.Call{Method: "POST", Path: "/" + url.PathEscape(creds.PageID) + "/feed", Body: payload}, &out); err != nil {
		return "", fmt.Errorf("publish feed post: %w", err)
	}
	return firstNonEmpty(out.ID, out.PostID), nil
}

// postPhoto sends the text as the photo caption.
func (c *Client) postPhoto(ctx context.Context, creds social.Credentials, req social.PostRequest, message string, img social.Media) (string, error) {
	payload := map[string]any{
		"url":          img.URL,
		"caption":      withLink(message, req.Link),
		"access_token": creds.AccessToken,
	}
	schedule(payload, req)

	var out graph.IDResponse
	if _, err := c.api.Do(ctx, social.Call{Method: "POST", Path: "/" + url.PathEscape(creds.PageID) + "/photos", Body: payload}, &out); err != nil {
		return "", fmt.Errorf("publish photo: %w", err)
	}
	return firstNonEmpty(out.PostID, out.ID), nil
}

// postAlbum uploads every image unpublished and attaches them to one feed post.
func (c *Client) postAlbum(ctx context.Context, creds social.Credentials, req social.PostRequest, message string, images []social.Media) (string, error) {
	ids := make([]string, 0, len(images))
	for i, img := range images {
		payload := map[string]any{
			"url":          img.URL,
			"published":    false,
			"access_token": creds.AccessToken,
		}
		var out graph.IDResponse
		if _, err := c.api.Do(ctx, social.Call{Method: "POST", Path: "/" + url.PathEscape(creds.PageID) + "/photos", Body: payload}, &out); err != nil {
			return "", fmt.Errorf("upload photo %d: %w", i+1, err)
		}
		ids = append(ids, out.ID)
	}
	return c.postFeed(ctx, creds, req, message, ids)
}

// postVideo sends the text as the video description.
func (c *Client) postVideo(ctx context.Context, creds social.Credentials, req social.PostRequest, message string, video social.Media) (string, error) {
	payload := map[string]any{
		"file_url":     video.URL,
		"description":  withLink(message, req.Link),
		"access_token": creds.AccessToken,
	}
	if title := req.OptionString("title"); title != "" {
		payload["title"] = title
	}
	schedule(payload, req)

	var out graph.IDResponse
	if _, err := c.api.Do(ctx, social.Call{Method: "POST", Path: "/" + url.PathEscape(creds.PageID) + "/videos", Body: payload}, &out); err != nil {
		return "", fmt.Errorf("publish video: %w", err)
	}
	return out.ID, nil
}

func (c *Client) requireCredentials() (social.Credentials, error) {
	creds := c.Credentials()
	var missing []string
	if strings.TrimSpace(creds.PageID) == "" {
		missing = append(missing, "page_id")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return creds, social.MissingCredentialsError{Provider: providerName, Fields: missing}
	}
	return creds, nil
}

func schedule(payload map[string]any, req social.PostRequest) {
	if req.ScheduleAt == nil {
		return
	}
	payload["published"] = false
	payload["scheduled_publish_time"] = req.ScheduleAt.Unix()
}

// targetingOption accepts the audience targeting spec either as a map or as
// a JSON string and passes it through untouched.
func targetingOption(req social.PostRequest) any {
	switch v := req.Options["targeting"].(type) {
	case nil:
		return nil
	case string:
		var raw json.RawMessage
		if json.Unmarshal([]byte(v), &raw) == nil {
			return raw
		}
		return nil
	default:
		return v
	}
}

func withLink(message, link string) string {
	if link == "" {
		return message
	}
	if message == "" {
		return link
	}
	return message + "\n\n" + link
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
