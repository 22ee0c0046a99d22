package config

import (
	"os"
	"strings"

	"github.com/blacktop/socialcast/internal/social"
)

// credentialFields are the credential keys read from the environment.
var credentialFields = []string{
	"access_token",
	"refresh_token",
	"api_key",
	"api_secret",
	"client_id",
	"client_secret",
	"bot_token",
	"webhook_url",
	"page_id",
	"account_id",
	"channel_id",
	"chat_id",
	"organization_id",
	"handle",
	"app_password",
	"server",
}

// required lists, per platform, the credential groups that must be set. A
// group is satisfied when any one of its fields is present.
var required = map[social.Platform][][]string{
	social.Facebook:  {{"access_token"}, {"page_id"}},
	social.Instagram: {{"access_token"}, {"account_id"}},
	social.Twitter:   {{"access_token"}},
	social.Telegram:  {{"bot_token"}, {"chat_id", "channel_id"}},
	social.Discord:   {{"webhook_url", "bot_token"}},
	social.YouTube:   {{"access_token"}},
	social.LinkedIn:  {{"access_token"}, {"organization_id", "account_id"}},
	social.Mastodon:  {{"server"}, {"access_token"}},
	social.Bluesky:   {{"handle"}, {"app_password", "access_token"}},
}

// CredentialsFromEnv reads the credentials of p from SOCIALCAST_<PLATFORM>_<FIELD>
// variables. The returned MissingCredentialsError names the unset variables.
func CredentialsFromEnv(p social.Platform) (social.Credentials, error) {
	creds := readEnvCredentials(p)
	return creds, checkRequired(p, creds)
}

func readEnvCredentials(p social.Platform) social.Credentials {
	var creds social.Credentials
	for _, field := range credentialFields {
		if v := getEnv(envName(p, field)); v != "" {
			creds.Set(field, v)
		}
	}
	return creds
}

func checkRequired(p social.Platform, creds social.Credentials) error {
	set := fieldValues(creds)
	var missing []string
	for _, group := range required[p] {
		found := false
		names := make([]string, 0, len(group))
		for _, field := range group {
			if set[field] != "" {
				found = true
				break
			}
			names = append(names, EnvPrefix+envName(p, field))
		}
		if !found {
			missing = append(missing, strings.Join(names, " or "))
		}
	}
	if len(missing) > 0 {
		return social.MissingCredentialsError{Provider: p, Fields: missing}
	}
	return nil
}

func fieldValues(c social.Credentials) map[string]string {
	return map[string]string{
		"access_token":    c.AccessToken,
		"refresh_token":   c.RefreshToken,
		"api_key":         c.APIKey,
		"api_secret":      c.APISecret,
		"client_id":       c.ClientID,
		"client_secret":   c.ClientSecret,
		"bot_token":       c.BotToken,
		"webhook_url":     c.WebhookURL,
		"page_id":         c.PageID,
		"account_id":      c.AccountID,
		"channel_id":      c.ChannelID,
		"chat_id":         c.ChatID,
		"organization_id": c.OrganizationID,
		"handle":          c.Handle,
		"app_password":    c.AppPassword,
		"server":          c.Server,
	}
}

// envName returns the unprefixed variable name, e.g. DISCORD_WEBHOOK_URL.
func envName(p social.Platform, field string) string {
	return strings.ToUpper(string(p) + "_" + field)
}

func getEnv(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}
