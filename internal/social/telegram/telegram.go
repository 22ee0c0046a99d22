package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/blacktop/socialcast/internal/social"
)

const (
	providerName = social.Telegram

	defaultBaseURL   = "https://api.telegram.org"
	defaultParseMode = "HTML"
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for a Telegram bot posting to a chat or
// channel.
type Client struct {
	*social.Base
	baseURL    string
	httpClient *http.Client
}

// New constructs a Telegram adapter. creds needs the bot token and the
// destination chat id (numeric id or @channelname).
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		baseURL:    o.BaseURLOr(defaultBaseURL),
		httpClient: o.HTTPClient,
	}
}

// envelope is the Bot API response wrapper.
type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  struct {
		RetryAfter *int `json:"retry_after"`
	} `json:"parameters"`
}

type user struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	} `json:"chat"`
}

func decodeError(_ int, body []byte) social.DecodedError {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return social.DecodedError{}
	}
	return social.DecodedError{Message: env.Description, RetryAfter: env.Parameters.RetryAfter}
}

// api builds the client for the current bot token; the token is part of the path.
func (c *Client) api() (*social.APIClient, social.Credentials, error) {
	creds := c.Credentials()
	token := strings.TrimSpace(creds.BotToken)
	if token == "" {
		token = strings.TrimSpace(creds.AccessToken)
	}
	if token == "" {
		return nil, creds, social.MissingCredentialsError{Provider: providerName, Fields: []string{"bot_token"}}
	}
	return &social.APIClient{
		Platform:   providerName,
		BaseURL:    strings.TrimRight(c.baseURL, "/") + "/bot" + token,
		HTTPClient: c.httpClient,
		DecodeErr:  decodeError,
	}, creds, nil
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	api, _, err := c.api()
	if err != nil {
		return err
	}
	httpMethod := http.MethodPost
	if payload == nil {
		httpMethod = http.MethodGet
	}
	var env envelope
	if _, err := api.Do(ctx, social.Call{Method: httpMethod, Path: method, Body: payload}, &env); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !env.OK {
		return fmt.Errorf("%s: %w", method, social.Classify(providerName, env.ErrorCode, env.Parameters.RetryAfter, env.Description))
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s: parse result: %w", method, err)
		}
	}
	return nil
}

// Authenticate calls getMe with the bot token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.me(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the bot identity.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.me)
}

func (c *Client) me(ctx context.Context) (*social.AccountSummary, error) {
	var u user
	if err := c.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &social.AccountSummary{ID: strconv.FormatInt(u.ID, 10), Name: u.FirstName, Username: u.Username}, nil
}

// Post sends the message to the configured chat. A single image or video is
// sent with the text as caption; several attachments go out as a media group.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		creds := c.Credentials()
		chatID := strings.TrimSpace(creds.ChatID)
		if chatID == "" {
			chatID = strings.TrimSpace(creds.ChannelID)
		}
		if chatID == "" {
			return social.PostResponse{}, social.MissingCredentialsError{Provider: providerName, Fields: []string{"chat_id"}}
		}

		text := c.ComposeText(req.Text, req.Hashtags, req.Link)
		parseMode := req.OptionString("parse_mode")
		if parseMode == "" {
			parseMode = defaultParseMode
		}
		base := map[string]any{
			"chat_id":    chatID,
			"parse_mode": parseMode,
		}
		if req.OptionBool("disable_notification") {
			base["disable_notification"] = true
		}

		var (
			msg message
			err error
		)
		switch len(req.Media) {
		case 0:
			payload := with(base, "text", text)
			if req.OptionBool("disable_web_page_preview") {
				payload["disable_web_page_preview"] = true
			}
			err = c.call(ctx, "sendMessage", payload, &msg)
		case 1:
			m := req.Media[0]
			if m.Type == social.MediaVideo {
				err = c.call(ctx, "sendVideo", with(with(base, "video", m.URL), "caption", text), &msg)
			} else {
				err = c.call(ctx, "sendPhoto", with(with(base, "photo", m.URL), "caption", text), &msg)
			}
		default:
			var msgs []message
			err = c.call(ctx, "sendMediaGroup", with(base, "media", mediaGroup(req.Media, text, parseMode)), &msgs)
			if len(msgs) > 0 {
				msg = msgs[0]
			}
		}
		if err != nil {
			return social.PostResponse{}, err
		}

		id := strconv.FormatInt(msg.MessageID, 10)
		return social.Published(providerName, id, messageURL(chatID, msg)), nil
	})
}

type inputMedia struct {
	Type      string `json:"type"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
	ParseMode string `json:"parse_mode,omitempty"`
}

// mediaGroup attaches the caption to the first item, which is how Telegram
// displays a caption for the whole album.
func mediaGroup(media []social.Media, caption, parseMode string) []inputMedia {
	out := make([]inputMedia, 0, len(media))
	for i, m := range media {
		item := inputMedia{Type: "photo", Media: m.URL}
		if m.Type == social.MediaVideo {
			item.Type = "video"
		}
		if i == 0 {
			item.Caption = caption
			item.ParseMode = parseMode
		}
		out = append(out, item)
	}
	return out
}

func with(base map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(base)+1)
	for k, v := range base {
		out[k] = v
	}
	out[key] = value
	return out
}

// messageURL builds a t.me link for public channels; private chats have none.
func messageURL(chatID string, msg message) string {
	name := msg.Chat.Username
	if name == "" && strings.HasPrefix(chatID, "@") {
		name = strings.TrimPrefix(chatID, "@")
	}
	if name == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s/%d", name, msg.MessageID)
}
