package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, creds social.Credentials, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(creds, social.SettingsOverride{}, social.WithBaseURL(server.URL))
}

var channelCreds = social.Credentials{BotToken: "123:abc", ChatID: "@releases"}

func TestPost_SendMessage(t *testing.T) {
	c := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot123:abc/sendMessage", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "@releases", body["chat_id"])
		assert.Equal(t, "HTML", body["parse_mode"])
		assert.Equal(t, "v1.2 is out\n\n#release\n\nhttps://example.com/v1.2", body["text"])
		assert.Equal(t, true, body["disable_notification"])
		w.Write([]byte(`{"ok":true,"result":{"message_id":42,"chat":{"id":-100,"username":"releases"}}}`))
	})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:     "v1.2 is out",
		Hashtags: []string{"#release"},
		Link:     "https://example.com/v1.2",
		Options:  map[string]any{"disable_notification": true},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "42", resp.PostID)
	assert.Equal(t, "https://t.me/releases/42", resp.URL)
}

func TestPost_ParseModeOverride(t *testing.T) {
	c := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "MarkdownV2", body["parse_mode"])
		assert.NotContains(t, body, "disable_notification")
		w.Write([]byte(`{"ok":true,"result":{"message_id":1,"chat":{"id":5}}}`))
	})

	resp := c.Post(context.Background(), social.PostRequest{Text: "*bold*", Options: map[string]any{"parse_mode": "MarkdownV2"}})
	assert.True(t, resp.Success)
}

func TestPost_MediaRouting(t *testing.T) {
	tests := []struct {
		name   string
		media  []social.Media
		method string
	}{
		{"photo", []social.Media{{Type: social.MediaImage, URL: "https://cdn/a.jpg"}}, "sendPhoto"},
		{"video", []social.Media{{Type: social.MediaVideo, URL: "https://cdn/a.mp4"}}, "sendVideo"},
		{"album", []social.Media{{Type: social.MediaImage, URL: "https://cdn/a.jpg"}, {Type: social.MediaImage, URL: "https://cdn/b.jpg"}}, "sendMediaGroup"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/bot123:abc/"+tt.method, r.URL.Path)
				var body map[string]any
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				if tt.method == "sendMediaGroup" {
					media, _ := body["media"].([]any)
					assert.Len(t, media, 2)
					w.Write([]byte(`{"ok":true,"result":[{"message_id":7,"chat":{"id":1}},{"message_id":8,"chat":{"id":1}}]}`))
					return
				}
				assert.Equal(t, "caption text", body["caption"])
				w.Write([]byte(`{"ok":true,"result":{"message_id":7,"chat":{"id":1}}}`))
			})
			resp := c.Post(context.Background(), social.PostRequest{Text: "caption text", Media: tt.media})
			require.True(t, resp.Success, "%+v", resp.Error)
			assert.Equal(t, "7", resp.PostID)
		})
	}
}

func TestPost_ErrorsAreClassified(t *testing.T) {
	t.Run("flood wait", func(t *testing.T) {
		c := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 12","parameters":{"retry_after":12}}`))
		})
		resp := c.Post(context.Background(), social.PostRequest{Text: "x"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, "rate_limit", resp.Error.Details["kind"])
		assert.Equal(t, 12, resp.Error.Details["retry_after"])
	})

	t.Run("missing chat id", func(t *testing.T) {
		c := newTestClient(t, social.Credentials{BotToken: "123:abc"}, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})
		resp := c.Post(context.Background(), social.PostRequest{Text: "x"})
		assert.False(t, resp.Success)
		assert.Equal(t, "credentials", resp.Error.Details["kind"])
	})
}

func TestAuthenticate(t *testing.T) {
	c := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bot123:abc/getMe":
			w.Write([]byte(`{"ok":true,"result":{"id":99,"is_bot":true,"first_name":"Release Bot","username":"release_bot"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	require.NoError(t, c.Authenticate(context.Background()))
	status := c.ConnectionStatus(context.Background())
	assert.Equal(t, social.HealthHealthy, status.Health)
	assert.Equal(t, "release_bot", status.Account.Username)

	bad := newTestClient(t, channelCreds, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	})
	var authErr *social.AuthenticationError
	assert.ErrorAs(t, bad.Authenticate(context.Background()), &authErr)
	assert.False(t, bad.TestConnection(context.Background()))
}
