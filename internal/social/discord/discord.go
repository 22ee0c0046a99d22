package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/socialcast/internal/social"
)

const (
	providerName   = social.Discord
	defaultBaseURL = "https://discord.com/api/v10"
	postIDPrefix   = "discord-"
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for Discord, either through a channel
// webhook or a bot token plus channel id.
type Client struct {
	*social.Base
	baseURL    string
	httpClient *http.Client
}

// New constructs a Discord adapter. A webhook URL takes precedence over a bot token.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		baseURL:    o.BaseURLOr(defaultBaseURL),
		httpClient: o.HTTPClient,
	}
}

func (c *Client) api(botToken string) *social.APIClient {
	api := &social.APIClient{
		Platform:   providerName,
		BaseURL:    c.baseURL,
		HTTPClient: c.httpClient,
		DecodeErr:  decodeError,
	}
	if botToken != "" {
		api.Header = http.Header{"Authorization": {"Bot " + botToken}}
	}
	return api
}

func decodeError(_ int, body []byte) social.DecodedError {
	var e struct {
		Message    string   `json:"message"`
		Code       int      `json:"code"`
		RetryAfter *float64 `json:"retry_after"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return social.DecodedError{}
	}
	d := social.DecodedError{Message: e.Message}
	if e.RetryAfter != nil {
		secs := int(math.Ceil(*e.RetryAfter))
		d.RetryAfter = &secs
	}
	return d
}

type discordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
}

// Authenticate treats a configured webhook as always valid without a call;
// a bot token is checked against the current-user endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.identity(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus reports the bot identity, or a webhook-only connection.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.identity)
}

func (c *Client) identity(ctx context.Context) (*social.AccountSummary, error) {
	creds := c.Credentials()
	if strings.TrimSpace(creds.WebhookURL) != "" {
		return &social.AccountSummary{Name: "webhook"}, nil
	}
	if strings.TrimSpace(creds.BotToken) == "" {
		return nil, social.MissingCredentialsError{Provider: providerName, Fields: []string{"webhook_url", "bot_token"}}
	}
	var u discordUser
	if _, err := c.api(creds.BotToken).Do(ctx, social.Call{Path: "/users/@me"}, &u); err != nil {
		return nil, fmt.Errorf("read bot user: %w", err)
	}
	return &social.AccountSummary{ID: u.ID, Name: u.GlobalName, Username: u.Username}, nil
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	URL         string      `json:"url,omitempty"`
	Color       int         `json:"color,omitempty"`
	Image       *embedImage `json:"image,omitempty"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

// messagePayload carries either Content or Embeds, never both.
type messagePayload struct {
	Content   string  `json:"content,omitempty"`
	Embeds    []embed `json:"embeds,omitempty"`
	Username  string  `json:"username,omitempty"`
	AvatarURL string  `json:"avatar_url,omitempty"`
}

type messageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

// Post sends a plain message, or a rich embed when the "embed" option is set.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		creds := c.Credentials()

		payload := c.buildPayload(req)
		var (
			out messageResponse
			err error
		)
		switch {
		case strings.TrimSpace(creds.WebhookURL) != "":
			payload.Username = req.OptionString("username")
			payload.AvatarURL = req.OptionString("avatar_url")
			_, err = c.api("").Do(ctx, social.Call{
				Method: "POST",
				Path:   creds.WebhookURL,
				Query:  url.Values{"wait": {"true"}},
				Body:   payload,
			}, &out)
		case strings.TrimSpace(creds.BotToken) != "" && strings.TrimSpace(creds.ChannelID) != "":
			_, err = c.api(creds.BotToken).Do(ctx, social.Call{
				Method: "POST",
				Path:   "/channels/" + url.PathEscape(creds.ChannelID) + "/messages",
				Body:   payload,
			}, &out)
		default:
			return social.PostResponse{}, social.MissingCredentialsError{Provider: providerName, Fields: []string{"webhook_url", "bot_token+channel_id"}}
		}
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("send message: %w", err)
		}

		id := out.ID
		if id == "" {
			id = strconv.FormatInt(time.Now().UnixMilli(), 10)
		}
		return social.Published(providerName, postIDPrefix+id, messageURL(out)), nil
	})
}

func (c *Client) buildPayload(req social.PostRequest) messagePayload {
	if !req.OptionBool("embed") {
		lines := []string{c.ComposeText(req.Text, req.Hashtags, req.Link)}
		for _, m := range req.Media {
			lines = append(lines, m.URL)
		}
		return messagePayload{Content: strings.TrimSpace(strings.Join(lines, "\n"))}
	}

	e := embed{
		Title:       req.OptionString("embed_title"),
		Description: c.ComposeText(req.Text, req.Hashtags, ""),
		URL:         req.Link,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if color, ok := colorOption(req.Options["embed_color"]); ok {
		e.Color = color
	}
	if images := req.Images(); len(images) > 0 {
		e.Image = &embedImage{URL: images[0].URL}
	}
	return messagePayload{Embeds: []embed{e}}
}

// colorOption accepts an int, a float (as decoded from JSON) or a "#rrggbb" string.
func colorOption(v any) (int, bool) {
	switch c := v.(type) {
	case int:
		return c, true
	case float64:
		return int(c), true
	case string:
		n, err := strconv.ParseInt(strings.TrimPrefix(c, "#"), 16, 32)
		if err != nil {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func messageURL(m messageResponse) string {
	if m.GuildID == "" || m.ChannelID == "" || m.ID == "" {
		return ""
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", m.GuildID, m.ChannelID, m.ID)
}
