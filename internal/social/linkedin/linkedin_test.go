package linkedin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, creds social.Credentials, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return New(creds, social.SettingsOverride{}, social.WithBaseURL(server.URL)), &calls
}

func created(w http.ResponseWriter, id string) {
	w.Header().Set("x-restli-id", id)
	w.WriteHeader(http.StatusCreated)
}

func TestPost_OrganizationArticle(t *testing.T) {
	c, _ := newTestClient(t, social.Credentials{AccessToken: "tok", OrganizationID: "2414183"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/posts", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, APIVersion, r.Header.Get("LinkedIn-Version"))
		assert.Equal(t, "2.0.0", r.Header.Get("X-Restli-Protocol-Version"))

		var body postBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:organization:2414183", body.Author)
		assert.Equal(t, "We are hiring \\(remote\\)\n\n#jobs", body.Commentary)
		assert.Equal(t, "PUBLIC", body.Visibility)
		assert.Equal(t, "PUBLISHED", body.LifecycleState)
		assert.Equal(t, "MAIN_FEED", body.Distribution.FeedDistribution)
		if assert.NotNil(t, body.Content) && assert.NotNil(t, body.Content.Article) {
			assert.Equal(t, "https://example.com/jobs", body.Content.Article.Source)
			assert.Equal(t, "Open roles", body.Content.Article.Title)
		}
		created(w, "urn:li:share:7000000000000000000")
	})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:     "We are hiring (remote)",
		Hashtags: []string{"jobs"},
		Link:     "https://example.com/jobs",
		Options:  map[string]any{"link_title": "Open roles"},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
	assert.Equal(t, "urn:li:share:7000000000000000000", resp.PostID)
	assert.Equal(t, "https://www.linkedin.com/feed/update/urn:li:share:7000000000000000000", resp.URL)
}

func TestPost_PersonMultiImage(t *testing.T) {
	c, _ := newTestClient(t, social.Credentials{AccessToken: "tok", AccountID: "abc123"}, func(w http.ResponseWriter, r *http.Request) {
		var body postBody
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "urn:li:person:abc123", body.Author)
		if assert.NotNil(t, body.Content) && assert.NotNil(t, body.Content.MultiImage) {
			assert.Len(t, body.Content.MultiImage.Images, 2)
			assert.Equal(t, "urn:li:image:1", body.Content.MultiImage.Images[0].ID)
			assert.Equal(t, "first", body.Content.MultiImage.Images[0].AltText)
		}
		created(w, "urn:li:share:1")
	})

	resp := c.Post(context.Background(), social.PostRequest{
		Text: "gallery",
		Media: []social.Media{
			{Type: social.MediaImage, URL: "urn:li:image:1", AltText: "first"},
			{Type: social.MediaImage, URL: "urn:li:image:2"},
		},
	})
	require.True(t, resp.Success, "%+v", resp.Error)
}

func TestPost_RejectsNonURNMedia(t *testing.T) {
	c, calls := newTestClient(t, social.Credentials{AccessToken: "tok", AccountID: "abc"}, func(w http.ResponseWriter, r *http.Request) {})

	resp := c.Post(context.Background(), social.PostRequest{
		Text:  "x",
		Media: []social.Media{{Type: social.MediaImage, URL: "https://cdn.example.com/a.png"}},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, "validation", resp.Error.Details["kind"])
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestPost_MissingAuthor(t *testing.T) {
	c, calls := newTestClient(t, social.Credentials{AccessToken: "tok"}, func(w http.ResponseWriter, r *http.Request) {})

	resp := c.Post(context.Background(), social.PostRequest{Text: "x"})
	assert.False(t, resp.Success)
	assert.Equal(t, "credentials", resp.Error.Details["kind"])
	assert.Zero(t, atomic.LoadInt32(calls))
}

func TestPost_ThrottledIsRateLimit(t *testing.T) {
	c, _ := newTestClient(t, social.Credentials{AccessToken: "tok", AccountID: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":429,"message":"Resource level throttle limit reached"}`))
	})

	resp := c.Post(context.Background(), social.PostRequest{Text: "x"})
	require.False(t, resp.Success)
	assert.Equal(t, "rate_limit", resp.Error.Details["kind"])
	assert.Equal(t, 60, resp.Error.Details["retry_after"])
}

func TestAuthenticate(t *testing.T) {
	c, _ := newTestClient(t, social.Credentials{AccessToken: "tok"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/userinfo", r.URL.Path)
		w.Write([]byte(`{"sub":"abc123","name":"Jane Dev","email":"jane@example.com"}`))
	})
	status := c.ConnectionStatus(context.Background())
	require.True(t, status.Connected, status.Error)
	assert.Equal(t, "abc123", status.Account.ID)

	bad, _ := newTestClient(t, social.Credentials{AccessToken: "expired"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"status":401,"serviceErrorCode":65601,"code":"REVOKED_ACCESS_TOKEN","message":"The token used in the request has been revoked by the user"}`))
	})
	var authErr *social.AuthenticationError
	assert.ErrorAs(t, bad.Authenticate(context.Background()), &authErr)
}

func TestEscapeCommentary(t *testing.T) {
	assert.Equal(t, `\@team ship it \(today\) #go`, EscapeCommentary("@team ship it (today) #go"))
	assert.Equal(t, `a\_b \*c\*`, EscapeCommentary("a_b *c*"))
}
