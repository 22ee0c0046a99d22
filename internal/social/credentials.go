package social

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Credentials is the per-platform secret bundle. Adapters read only the fields
// their provider needs.
type Credentials struct {
	AccessToken    string            `json:"access_token,omitempty" yaml:"access_token,omitempty"`
	RefreshToken   string            `json:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	APIKey         string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APISecret      string            `json:"api_secret,omitempty" yaml:"api_secret,omitempty"`
	ClientID       string            `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret   string            `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	BotToken       string            `json:"bot_token,omitempty" yaml:"bot_token,omitempty"`
	WebhookURL     string            `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	PageID         string            `json:"page_id,omitempty" yaml:"page_id,omitempty"`
	AccountID      string            `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	ChannelID      string            `json:"channel_id,omitempty" yaml:"channel_id,omitempty"`
	ChatID         string            `json:"chat_id,omitempty" yaml:"chat_id,omitempty"`
	OrganizationID string            `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
	Handle         string            `json:"handle,omitempty" yaml:"handle,omitempty"`
	AppPassword    string            `json:"app_password,omitempty" yaml:"app_password,omitempty"`
	Server         string            `json:"server,omitempty" yaml:"server,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Extra          map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// Merge returns c with every non-empty field of update applied on top.
func (c Credentials) Merge(update Credentials) Credentials {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.AccessToken, update.AccessToken)
	set(&c.RefreshToken, update.RefreshToken)
	set(&c.APIKey, update.APIKey)
	set(&c.APISecret, update.APISecret)
	set(&c.ClientID, update.ClientID)
	set(&c.ClientSecret, update.ClientSecret)
	set(&c.BotToken, update.BotToken)
	set(&c.WebhookURL, update.WebhookURL)
	set(&c.PageID, update.PageID)
	set(&c.AccountID, update.AccountID)
	set(&c.ChannelID, update.ChannelID)
	set(&c.ChatID, update.ChatID)
	set(&c.OrganizationID, update.OrganizationID)
	set(&c.Handle, update.Handle)
	set(&c.AppPassword, update.AppPassword)
	set(&c.Server, update.Server)
	if update.ExpiresAt != nil {
		t := *update.ExpiresAt
		c.ExpiresAt = &t
	}
	if len(update.Extra) > 0 {
		extra := make(map[string]string, len(c.Extra)+len(update.Extra))
		for k, v := range c.Extra {
			extra[k] = v
		}
		for k, v := range update.Extra {
			extra[k] = v
		}
		c.Extra = extra
	}
	return c
}

// Set assigns a field by its wire name (as used by the CLI and env loading).
// Unknown keys land in Extra.
func (c *Credentials) Set(key, value string) {
	switch strings.ToLower(strings.ReplaceAll(key, "-", "_")) {
	case "access_token", "token":
		c.AccessToken = value
	case "refresh_token":
		c.RefreshToken = value
	case "api_key":
		c.APIKey = value
	case "api_secret":
		c.APISecret = value
	case "client_id":
		c.ClientID = value
	case "client_secret":
		c.ClientSecret = value
	case "bot_token":
		c.BotToken = value
	case "webhook_url", "webhook":
		c.WebhookURL = value
	case "page_id":
		c.PageID = value
	case "account_id":
		c.AccountID = value
	case "channel_id":
		c.ChannelID = value
	case "chat_id":
		c.ChatID = value
	case "organization_id", "org_id":
		c.OrganizationID = value
	case "handle":
		c.Handle = value
	case "app_password":
		c.AppPassword = value
	case "server":
		c.Server = value
	default:
		if c.Extra == nil {
			c.Extra = map[string]string{}
		}
		c.Extra[key] = value
	}
}

// String renders the bundle with every secret masked.
func (c Credentials) String() string {
	var parts []string
	add := func(name, v string, secret bool) {
		if v == "" {
			return
		}
		if secret {
			v = mask(v)
		}
		parts = append(parts, name+"="+v)
	}
	add("access_token", c.AccessToken, true)
	add("refresh_token", c.RefreshToken, true)
	add("api_key", c.APIKey, true)
	add("api_secret", c.APISecret, true)
	add("client_id", c.ClientID, false)
	add("client_secret", c.ClientSecret, true)
	add("bot_token", c.BotToken, true)
	add("webhook_url", c.WebhookURL, true)
	add("page_id", c.PageID, false)
	add("account_id", c.AccountID, false)
	add("channel_id", c.ChannelID, false)
	add("chat_id", c.ChatID, false)
	add("organization_id", c.OrganizationID, false)
	add("handle", c.Handle, false)
	add("app_password", c.AppPassword, true)
	add("server", c.Server, false)
	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, c.Extra[k], true)
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, " "))
}

func mask(v string) string {
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "****"
}
