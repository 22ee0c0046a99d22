package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instance struct {
	*httptest.Server

	mu      sync.Mutex
	form    map[string][]string
	uploads int32
}

func newInstance(t *testing.T) *instance {
	t.Helper()
	in := &instance{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/accounts/verify_credentials", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"The access token is invalid"}`))
			return
		}
		w.Write([]byte(`{"id":"1","username":"dev","acct":"dev","display_name":"Dev","followers_count":42}`))
	})
	mux.HandleFunc("/api/v1/statuses", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		in.mu.Lock()
		in.form = r.PostForm
		in.mu.Unlock()
		w.Write([]byte(`{"id":"109","url":"https://mastodon.example/@dev/109","content":"<p>hi</p>"}`))
	})
	media := func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&in.uploads, 1)
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		w.Write([]byte(`{"id":"77","type":"image","url":"https://files.example/77.png"}`))
	}
	mux.HandleFunc("/api/v1/media", media)
	mux.HandleFunc("/api/v2/media", media)
	mux.HandleFunc("/files/cat.png", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	})
	in.Server = httptest.NewServer(mux)
	t.Cleanup(in.Close)
	return in
}

func TestPost_Status(t *testing.T) {
	in := newInstance(t)
	c := New(social.Credentials{Server: in.URL, AccessToken: "good"}, social.SettingsOverride{DefaultVisibility: social.String("unlisted")})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:     "Hello fediverse",
		Hashtags: []string{"golang"},
		Link:     "https://example.com",
		Options:  map[string]any{"spoiler_text": "release notes"},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "109", resp.PostID)
	assert.Equal(t, "https://mastodon.example/@dev/109", resp.URL)

	in.mu.Lock()
	defer in.mu.Unlock()
	assert.Equal(t, "Hello fediverse\n\n#golang\n\nhttps://example.com", first(in.form["status"]))
	assert.Equal(t, "unlisted", first(in.form["visibility"]))
	assert.Equal(t, "release notes", first(in.form["spoiler_text"]))
	assert.Zero(t, atomic.LoadInt32(&in.uploads))
}

func TestPost_UploadsMedia(t *testing.T) {
	in := newInstance(t)
	c := New(social.Credentials{Server: in.URL, AccessToken: "good"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:  "cat",
		Media: []social.Media{{Type: social.MediaImage, URL: in.URL + "/files/cat.png", AltText: "a cat"}},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&in.uploads))

	in.mu.Lock()
	defer in.mu.Unlock()
	assert.Equal(t, []string{"77"}, in.form["media_ids[]"])
}

func TestPost_ServerFromBaseURLOption(t *testing.T) {
	in := newInstance(t)
	c := New(social.Credentials{AccessToken: "good"}, social.SettingsOverride{}, social.WithBaseURL(in.URL))

	resp := c.Post(context.Background(), social.PostRequest{Text: "hi"})
	assert.True(t, resp.Success, "%+v", resp.Error)
}

func TestPost_Validation(t *testing.T) {
	c := New(social.Credentials{Server: "http://127.0.0.1:1", AccessToken: "good"}, social.SettingsOverride{})

	resp := c.Post(context.Background(), social.PostRequest{Text: strings.Repeat("x", 501)})
	assert.False(t, resp.Success)
	assert.Equal(t, "validation", resp.Error.Details["kind"])
	assert.Equal(t, "text", resp.Error.Details["field"])
}

func TestAuthenticate(t *testing.T) {
	in := newInstance(t)

	good := New(social.Credentials{Server: in.URL, AccessToken: "good"}, social.SettingsOverride{})
	status := good.ConnectionStatus(context.Background())
	require.True(t, status.Connected, status.Error)
	assert.Equal(t, int64(42), status.Account.Followers)

	bad := New(social.Credentials{Server: in.URL, AccessToken: "bad"}, social.SettingsOverride{})
	var authErr *social.AuthenticationError
	assert.ErrorAs(t, bad.Authenticate(context.Background()), &authErr)
	assert.False(t, bad.TestConnection(context.Background()))

	missing := New(social.Credentials{}, social.SettingsOverride{})
	var mcErr social.MissingCredentialsError
	require.ErrorAs(t, missing.Authenticate(context.Background()), &mcErr)
	assert.Equal(t, []string{"server", "access_token"}, mcErr.Fields)
}

func TestVisibilityFor(t *testing.T) {
	assert.Equal(t, "direct", visibilityFor("DIRECT", "public"))
	assert.Equal(t, "private", visibilityFor("", "private"))
	assert.Equal(t, "public", visibilityFor("everyone", "nobody"))
}

func first(v []string) string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
