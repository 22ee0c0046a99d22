package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestPost_WebhookHashtags(t *testing.T) {
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/webhooks/X/Y", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("wait"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello\n\n#promo", body["content"])
		assert.NotContains(t, body, "embeds")
		w.Write([]byte(`{"id":"1180000000000000000","channel_id":"55"}`))
	})

	c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})
	resp := c.Post(context.Background(), social.PostRequest{Text: "Hello", Hashtags: []string{"promo"}})

	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, social.StatusPublished, resp.Status)
	assert.True(t, strings.HasPrefix(resp.PostID, "discord-"))
	assert.Equal(t, "discord-1180000000000000000", resp.PostID)
	assert.Equal(t, social.Discord, resp.Platform)
}

func TestPost_WebhookWithoutBodyGetsFallbackID(t *testing.T) {
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{Text: "Hello"})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.True(t, strings.HasPrefix(resp.PostID, "discord-"))
	assert.Greater(t, len(resp.PostID), len("discord-"))
}

func TestPost_Embed(t *testing.T) {
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body messagePayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Empty(t, body.Content)
		if assert.Len(t, body.Embeds, 1) {
			e := body.Embeds[0]
			assert.Equal(t, "Launch", e.Title)
			assert.Equal(t, "We shipped\n\n#golang", e.Description)
			assert.Equal(t, "https://example.com", e.URL)
			assert.Equal(t, 0x5865F2, e.Color)
			if assert.NotNil(t, e.Image) {
				assert.Equal(t, "https://cdn.example.com/a.png", e.Image.URL)
			}
		}
		w.Write([]byte(`{"id":"9","channel_id":"55","guild_id":"77"}`))
	})
	c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:     "We shipped",
		Hashtags: []string{"golang"},
		Link:     "https://example.com",
		Media:    []social.Media{{Type: social.MediaImage, URL: "https://cdn.example.com/a.png"}},
		Options:  map[string]any{"embed": true, "embed_title": "Launch", "embed_color": "#5865F2"},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "https://discord.com/channels/77/55/9", resp.URL)
}

func TestPost_BotChannel(t *testing.T) {
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/55/messages", r.URL.Path)
		assert.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":"10","channel_id":"55"}`))
	})
	c := New(social.Credentials{BotToken: "bot-token", ChannelID: "55"}, social.SettingsOverride{}, social.WithBaseURL(server.URL))

	resp := c.Post(context.Background(), social.PostRequest{Text: "from the bot"})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "discord-10", resp.PostID)
}

func TestPost_RateLimited(t *testing.T) {
	server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"You are being rate limited.","retry_after":1.2,"global":false}`))
	})
	c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{Text: "x"})
	require.False(t, resp.Success)
	assert.Equal(t, social.CodePostFailed, resp.Error.Code)
	assert.Equal(t, "rate_limit", resp.Error.Details["kind"])
	assert.Equal(t, 2, resp.Error.Details["retry_after"])
}

func TestPost_TooLongTextIsRejectedLocally(t *testing.T) {
	server, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{Text: strings.Repeat("a", 2001)})
	assert.False(t, resp.Success)
	assert.Equal(t, "text", resp.Error.Details["field"])
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestAuthenticate(t *testing.T) {
	t.Run("webhook needs no call", func(t *testing.T) {
		server, calls := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
		c := New(social.Credentials{WebhookURL: server.URL + "/api/webhooks/X/Y"}, social.SettingsOverride{})
		require.NoError(t, c.Authenticate(context.Background()))
		assert.True(t, c.TestConnection(context.Background()))
		assert.Zero(t, atomic.LoadInt32(calls))
	})

	t.Run("bot token", func(t *testing.T) {
		server, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/users/@me", r.URL.Path)
			if r.Header.Get("Authorization") != "Bot good" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
				return
			}
			w.Write([]byte(`{"id":"1","username":"castbot","global_name":"Cast Bot"}`))
		})

		good := New(social.Credentials{BotToken: "good"}, social.SettingsOverride{}, social.WithBaseURL(server.URL))
		status := good.ConnectionStatus(context.Background())
		assert.Equal(t, social.HealthHealthy, status.Health)
		assert.Equal(t, "castbot", status.Account.Username)

		bad := New(social.Credentials{BotToken: "bad"}, social.SettingsOverride{}, social.WithBaseURL(server.URL))
		var authErr *social.AuthenticationError
		assert.ErrorAs(t, bad.Authenticate(context.Background()), &authErr)
		assert.False(t, bad.TestConnection(context.Background()))
	})

	t.Run("nothing configured", func(t *testing.T) {
		c := New(social.Credentials{}, social.SettingsOverride{})
		var mcErr social.MissingCredentialsError
		assert.ErrorAs(t, c.Authenticate(context.Background()), &mcErr)
	})
}
