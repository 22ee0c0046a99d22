package social

import "time"

const (
	DefaultHashtagLimit = 10
	DefaultVisibility   = "public"
)

// Settings are the per-adapter policy knobs.
type Settings struct {
	HashtagLimit      int           `json:"hashtag_limit"`
	DefaultVisibility string        `json:"default_visibility"`
	AutoHashtags      bool          `json:"auto_hashtags"`
	MaxPostsPerHour   int           `json:"max_posts_per_hour,omitempty"`
	MinPostInterval   time.Duration `json:"min_post_interval,omitempty"`
}

// DefaultSettings returns the fixed defaults every adapter starts from.
func DefaultSettings() Settings {
	return Settings{
		HashtagLimit:      DefaultHashtagLimit,
		DefaultVisibility: DefaultVisibility,
		AutoHashtags:      true,
	}
}

// SettingsOverride carries caller supplied changes. Nil fields keep the
// current value.
type SettingsOverride struct {
	HashtagLimit      *int           `json:"hashtag_limit,omitempty" yaml:"hashtag_limit,omitempty"`
	DefaultVisibility *string        `json:"default_visibility,omitempty" yaml:"default_visibility,omitempty"`
	AutoHashtags      *bool          `json:"auto_hashtags,omitempty" yaml:"auto_hashtags,omitempty"`
	MaxPostsPerHour   *int           `json:"max_posts_per_hour,omitempty" yaml:"max_posts_per_hour,omitempty"`
	MinPostInterval   *time.Duration `json:"min_post_interval,omitempty" yaml:"min_post_interval,omitempty"`
}

// Apply returns s with the non-nil fields of o applied.
func (s Settings) Apply(o SettingsOverride) Settings {
	if o.HashtagLimit != nil && *o.HashtagLimit >= 0 {
		s.HashtagLimit = *o.HashtagLimit
	}
	if o.DefaultVisibility != nil && *o.DefaultVisibility != "" {
		s.DefaultVisibility = *o.DefaultVisibility
	}
	if o.AutoHashtags != nil {
		s.AutoHashtags = *o.AutoHashtags
	}
	if o.MaxPostsPerHour != nil {
		s.MaxPostsPerHour = *o.MaxPostsPerHour
	}
	if o.MinPostInterval != nil {
		s.MinPostInterval = *o.MinPostInterval
	}
	return s
}

// Int returns a pointer to v, for building overrides.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for building overrides.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building overrides.
func String(v string) *string { return &v }
