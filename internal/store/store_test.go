package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/blacktop/socialcast/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "socialcast.db")
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestOpenCreatesSchema(t *testing.T) {
	st, path := openTestStore(t)
	assert.FileExists(t, path)

	var version string
	require.NoError(t, st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version))
	assert.Equal(t, "1", version)

	// reopening an existing database is a no-op migration
	require.NoError(t, st.Close())
	again, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestSaveGetRoundTrip(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	exp := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{
		UserID:   "u1",
		Platform: social.YouTube,
		Credentials: social.Credentials{
			AccessToken:  "ya29",
			RefreshToken: "1//r",
			ExpiresAt:    &exp,
		},
		Settings: social.SettingsOverride{HashtagLimit: social.Int(5)},
		Active:   true,
	}
	require.NoError(t, st.Save(ctx, rec))

	got, err := st.Get(ctx, "u1", social.YouTube)
	require.NoError(t, err)
	assert.Equal(t, "ya29", got.Credentials.AccessToken)
	require.NotNil(t, got.Credentials.ExpiresAt)
	assert.True(t, exp.Equal(*got.Credentials.ExpiresAt))
	require.NotNil(t, got.Settings.HashtagLimit)
	assert.Equal(t, 5, *got.Settings.HashtagLimit)
	assert.True(t, got.Active)
	assert.False(t, got.CreatedAt.IsZero())

	// upsert replaces credentials
	rec.Credentials = social.Credentials{AccessToken: "ya29.new"}
	require.NoError(t, st.Save(ctx, rec))
	got, err = st.Get(ctx, "u1", social.YouTube)
	require.NoError(t, err)
	assert.Equal(t, "ya29.new", got.Credentials.AccessToken)
	assert.Empty(t, got.Credentials.RefreshToken)
}

func TestSaveRejectsBadInput(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	assert.Error(t, st.Save(ctx, Record{Platform: social.Discord}))
	assert.ErrorIs(t, st.Save(ctx, Record{UserID: "u1", Platform: "myspace"}), social.ErrUnknownPlatform)
}

func TestGetAllOnlyActiveInPlatformOrder(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	for _, p := range []social.Platform{social.Bluesky, social.Discord, social.Facebook, social.Telegram} {
		require.NoError(t, st.Save(ctx, Record{UserID: "u1", Platform: p, Active: true}))
	}
	require.NoError(t, st.Save(ctx, Record{UserID: "u2", Platform: social.Twitter, Active: true}))
	require.NoError(t, st.Deactivate(ctx, "u1", social.Telegram))

	all, err := st.GetAll(ctx, "u1")
	require.NoError(t, err)
	var got []social.Platform
	for _, r := range all {
		got = append(got, r.Platform)
	}
	assert.Equal(t, []social.Platform{social.Facebook, social.Discord, social.Bluesky}, got)

	// deactivated records are still readable directly
	tg, err := st.Get(ctx, "u1", social.Telegram)
	require.NoError(t, err)
	assert.False(t, tg.Active)
}

func TestDeleteAndNotFound(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, Record{UserID: "u1", Platform: social.LinkedIn, Active: true}))
	require.NoError(t, st.Delete(ctx, "u1", social.LinkedIn))

	_, err := st.Get(ctx, "u1", social.LinkedIn)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, st.Delete(ctx, "u1", social.LinkedIn), ErrNotFound)
	assert.ErrorIs(t, st.Deactivate(ctx, "u1", social.LinkedIn), ErrNotFound)
}

func TestUpdateConnectionStatus(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, Record{UserID: "u1", Platform: social.Mastodon, Active: true}))
	checked := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	require.NoError(t, st.UpdateConnectionStatus(ctx, "u1", social.ConnectionStatus{
		Platform:    social.Mastodon,
		Connected:   false,
		Health:      social.HealthError,
		Error:       "token revoked",
		LastChecked: checked,
	}))

	got, err := st.Get(ctx, "u1", social.Mastodon)
	require.NoError(t, err)
	assert.Equal(t, social.HealthError, got.Health)
	assert.Equal(t, "token revoked", got.LastError)
	assert.True(t, checked.Equal(got.LastChecked))

	// a later Save keeps the recorded status
	require.NoError(t, st.Save(ctx, Record{UserID: "u1", Platform: social.Mastodon, Active: true}))
	got, err = st.Get(ctx, "u1", social.Mastodon)
	require.NoError(t, err)
	assert.Equal(t, social.HealthError, got.Health)

	err = st.UpdateConnectionStatus(ctx, "u1", social.ConnectionStatus{Platform: social.Bluesky})
	assert.ErrorIs(t, err, ErrNotFound)
}
