package social

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a supported social network.
type Platform string

const (
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	Telegram  Platform = "telegram"
	Discord   Platform = "discord"
	YouTube   Platform = "youtube"
	LinkedIn  Platform = "linkedin"
	Mastodon  Platform = "mastodon"
	Bluesky   Platform = "bluesky"
)

// Platforms lists every supported platform in canonical order.
func Platforms() []Platform {
	return []Platform{Facebook, Instagram, Twitter, Telegram, Discord, YouTube, LinkedIn, Mastodon, Bluesky}
}

// ParsePlatform resolves a user supplied name (case-insensitive, "x" is an
// alias for twitter) to a Platform.
func ParsePlatform(name string) (Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "x" {
		return Twitter, nil
	}
	for _, p := range Platforms() {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, name)
}

// Valid reports whether p is a member of the supported set.
func (p Platform) Valid() bool {
	for _, known := range Platforms() {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

// MediaType classifies a media attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Media is a remotely hosted attachment referenced by URL.
type Media struct {
	Type    MediaType `json:"type" yaml:"type"`
	URL     string    `json:"url" yaml:"url"`
	AltText string    `json:"alt_text,omitempty" yaml:"alt_text,omitempty"`
	// DurationSeconds and SizeBytes are optional; when set they are checked
	// against the platform limits.
	DurationSeconds int   `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	SizeBytes       int64 `json:"size_bytes,omitempty" yaml:"size_bytes,omitempty"`
}

// PostRequest is the payload dispatched to one or more platforms.
type PostRequest struct {
	Text       string         `json:"text"`
	Hashtags   []string       `json:"hashtags,omitempty"`
	Media      []Media        `json:"media,omitempty"`
	Link       string         `json:"link,omitempty"`
	Platforms  []Platform     `json:"platforms"`
	ScheduleAt *time.Time     `json:"schedule_at,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// Images returns the image attachments of the request.
func (r PostRequest) Images() []Media { return r.mediaOf(MediaImage) }

// Videos returns the video attachments of the request.
func (r PostRequest) Videos() []Media { return r.mediaOf(MediaVideo) }

func (r PostRequest) mediaOf(t MediaType) []Media {
	var out []Media
	for _, m := range r.Media {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// OptionString returns a string option, or "" when absent or of another type.
func (r PostRequest) OptionString(key string) string {
	if v, ok := r.Options[key].(string); ok {
		return v
	}
	return ""
}

// OptionBool returns a boolean option. String values "true"/"1"/"yes" count as true.
func (r PostRequest) OptionBool(key string) bool {
	switch v := r.Options[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

// PostStatus is the outcome state of a dispatch.
type PostStatus string

const (
	StatusPublished PostStatus = "published"
	StatusScheduled PostStatus = "scheduled"
	StatusFailed    PostStatus = "failed"
)

// PostError is the structured failure attached to a failed PostResponse.
type PostError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

const (
	CodePostFailed            = "POST_FAILED"
	CodePlatformNotRegistered = "PLATFORM_NOT_REGISTERED"
)

// PostResponse is the outcome of one dispatch to one platform.
type PostResponse struct {
	Platform  Platform   `json:"platform"`
	Success   bool       `json:"success"`
	Status    PostStatus `json:"status"`
	PostID    string     `json:"post_id,omitempty"`
	URL       string     `json:"url,omitempty"`
	Error     *PostError `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Published builds a successful response.
func Published(p Platform, id, url string) PostResponse {
	return PostResponse{Platform: p, Success: true, Status: StatusPublished, PostID: id, URL: url, Timestamp: time.Now().UTC()}
}

// Scheduled builds a successful response for a post queued by the provider.
func Scheduled(p Platform, id, url string) PostResponse {
	resp := Published(p, id, url)
	resp.Status = StatusScheduled
	return resp
}

// Failed builds a failed response with the given code.
func Failed(p Platform, code, message string, details map[string]any) PostResponse {
	return PostResponse{
		Platform:  p,
		Status:    StatusFailed,
		Error:     &PostError{Code: code, Message: message, Details: details},
		Timestamp: time.Now().UTC(),
	}
}

// Health is a coarse connection health bucket.
type Health string

const (
	HealthHealthy Health = "healthy"
	HealthWarning Health = "warning"
	HealthError   Health = "error"
)

// AccountSummary describes the account behind a set of credentials.
type AccountSummary struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Username  string `json:"username,omitempty"`
	Followers int64  `json:"followers,omitempty"`
}

// ConnectionStatus is a point-in-time health snapshot for one platform.
type ConnectionStatus struct {
	Platform    Platform        `json:"platform"`
	Connected   bool            `json:"connected"`
	Health      Health          `json:"health"`
	Account     *AccountSummary `json:"account,omitempty"`
	LastChecked time.Time       `json:"last_checked"`
	Error       string          `json:"error,omitempty"`
}

// BulkSummary holds the derived counts of a BulkPostResult.
type BulkSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

// BulkPostResult aggregates a multi-platform dispatch.
type BulkPostResult struct {
	RequestID string         `json:"request_id"`
	Timestamp time.Time      `json:"timestamp"`
	Results   []PostResponse `json:"results"`
	Summary   BulkSummary    `json:"summary"`
}

// Summarize derives counts from the given responses.
func Summarize(results []PostResponse) BulkSummary {
	s := BulkSummary{Total: len(results)}
	for _, r := range results {
		switch r.Status {
		case StatusPublished:
			s.Successful++
		case StatusScheduled:
			s.Pending++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}
