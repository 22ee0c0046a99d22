package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points config, store and home at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("SOCIALCAST_DB", filepath.Join(dir, "socialcast.db"))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func discordWebhook(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello\n\n#promo", body["content"])
		w.Write([]byte(`{"id":"42","channel_id":"1"}`))
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestParsePlatforms(t *testing.T) {
	got, err := parsePlatforms([]string{"mastodon,X", "discord", "mastodon"})
	require.NoError(t, err)
	assert.Equal(t, []social.Platform{social.Twitter, social.Discord, social.Mastodon}, got)

	got, err = parsePlatforms([]string{"discord", "all"})
	require.NoError(t, err)
	assert.Equal(t, social.Platforms(), got)

	got, err = parsePlatforms(nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = parsePlatforms([]string{"myspace"})
	assert.ErrorIs(t, err, social.ErrUnknownPlatform)
}

func TestResolveMessage(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(strings.NewReader(""))

	msg, err := resolveMessage(cmd, "", []string{"ship", "it"})
	require.NoError(t, err)
	assert.Equal(t, "ship it", msg)

	_, err = resolveMessage(cmd, "flag", []string{"arg"})
	assert.Error(t, err)

	msg, err = resolveMessage(cmd, "  from flag ", nil)
	require.NoError(t, err)
	assert.Equal(t, "from flag", msg)

	cmd.SetIn(strings.NewReader("piped message\n"))
	msg, err = resolveMessage(cmd, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "piped message", msg)

	cmd.SetIn(strings.NewReader("   "))
	_, err = resolveMessage(cmd, "", nil)
	assert.EqualError(t, err, "message is required")
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest("hi", &postOptions{
		images:   []string{"https://cdn.example.com/a.png"},
		videos:   []string{"https://cdn.example.com/v.mp4"},
		hashtags: []string{"go"},
		link:     " https://example.com ",
		schedule: "2026-12-01T10:00:00Z",
		options:  map[string]string{"privacy_status": "unlisted"},
	})
	require.NoError(t, err)
	require.Len(t, req.Media, 2)
	assert.Equal(t, defaultAltText, req.Media[0].AltText)
	assert.Equal(t, social.MediaVideo, req.Media[1].Type)
	assert.Equal(t, "https://example.com", req.Link)
	require.NotNil(t, req.ScheduleAt)
	assert.Equal(t, 2026, req.ScheduleAt.Year())
	assert.Equal(t, "unlisted", req.OptionString("privacy_status"))

	_, err = buildRequest("hi", &postOptions{schedule: "tomorrow"})
	assert.Error(t, err)
}

func TestPostToDiscordWebhook(t *testing.T) {
	dir := isolate(t)
	server, calls := discordWebhook(t)
	t.Setenv("SOCIALCAST_DISCORD_WEBHOOK_URL", server.URL+"/api/webhooks/X/Y")
	metricsFile := filepath.Join(dir, "socialcast.prom")

	out, err := execute(t, "", "post", "Hello", "--target", "discord", "--hashtag", "promo", "--metrics-file", metricsFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "discord-42")
	assert.Contains(t, out, "1 published, 0 scheduled, 0 failed")
	assert.EqualValues(t, 1, calls.Load())

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `socialcast_posts_total{platform="discord",status="published"} 1`)
}

func TestPostJSONFromStdin(t *testing.T) {
	isolate(t)
	server, _ := discordWebhook(t)
	t.Setenv("SOCIALCAST_DISCORD_WEBHOOK_URL", server.URL+"/api/webhooks/X/Y")

	out, err := execute(t, "Hello\n", "post", "-t", "discord", "--hashtag", "promo", "--json")
	require.NoError(t, err, out)

	var result social.BulkPostResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.RequestID)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "discord-42", result.Results[0].PostID)
	assert.Equal(t, social.BulkSummary{Total: 1, Successful: 1}, result.Summary)
}

func TestPostMissingCredentials(t *testing.T) {
	isolate(t)

	_, err := execute(t, "", "post", "Hello", "--target", "telegram")
	var mcErr social.MissingCredentialsError
	require.ErrorAs(t, err, &mcErr)
	assert.Equal(t, []string{"SOCIALCAST_TELEGRAM_BOT_TOKEN", "SOCIALCAST_TELEGRAM_CHAT_ID or SOCIALCAST_TELEGRAM_CHANNEL_ID"}, mcErr.Fields)
}

func TestPostDryRun(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "post", strings.Repeat("a", 300), "--target", "twitter,mastodon", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "[dry-run] would post to twitter")
	assert.Contains(t, out, "[dry-run] would post to mastodon")
	assert.Contains(t, out, "text is 300 characters, twitter allows 280")
	assert.NotContains(t, out, "mastodon allows")
}

func TestPostNoTargets(t *testing.T) {
	isolate(t)
	_, err := execute(t, "", "post", "Hello")
	assert.EqualError(t, err, "no targets selected")
}

func TestConnectThenHealth(t *testing.T) {
	isolate(t)
	server, calls := discordWebhook(t)
	t.Setenv("SOCIALCAST_DISCORD_WEBHOOK_URL", server.URL+"/api/webhooks/X/Y")

	out, err := execute(t, "", "connect", "discord")
	require.NoError(t, err, out)
	assert.Contains(t, out, "discord")
	assert.Contains(t, out, "healthy")
	assert.Zero(t, calls.Load(), "webhook connections are not probed over the network")

	// the stored connection is used without the environment
	t.Setenv("SOCIALCAST_DISCORD_WEBHOOK_URL", "")
	out, err = execute(t, "", "health", "--json")
	require.NoError(t, err, out)
	var report struct {
		Total   int `json:"total"`
		Healthy int `json:"healthy"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, 1, report.Healthy)

	out, err = execute(t, "", "test", "discord")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ discord")

	out, err = execute(t, "", "disconnect", "discord")
	require.NoError(t, err, out)
	assert.Contains(t, out, "disconnected discord")

	_, err = execute(t, "", "disconnect", "mastodon")
	assert.Error(t, err, "never connected")
}

func TestCapabilitiesCommand(t *testing.T) {
	out, err := execute(t, "", "capabilities", "facebook", "--json")
	require.NoError(t, err)

	var caps []social.CapabilityDescriptor
	require.NoError(t, json.Unmarshal([]byte(out), &caps))
	require.Len(t, caps, 1)
	assert.Equal(t, 63206, caps[0].Limits.TextLength)
	assert.True(t, caps[0].Features.Stories)

	out, err = execute(t, "", "caps")
	require.NoError(t, err)
	for _, p := range social.Platforms() {
		assert.Contains(t, out, string(p))
	}
}

func TestCompletion(t *testing.T) {
	out, err := execute(t, "", "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "socialcast")

	_, err = execute(t, "", "completion", "tcsh")
	assert.Error(t, err)
}
