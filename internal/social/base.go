package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/blacktop/socialcast/internal/logutil"
)

// Base holds the mutable per-adapter state and implements the parts of the
// Adapter contract that do not depend on the provider. Adapters embed it.
type Base struct {
	platform Platform

	mu       sync.RWMutex
	creds    Credentials
	settings Settings
}

// NewBase builds the holder for p with settings merged onto the defaults.
func NewBase(p Platform, creds Credentials, o SettingsOverride) *Base {
	return &Base{
		platform: p,
		creds:    creds,
		settings: DefaultSettings().Apply(o),
	}
}

// Platform returns the provider identifier.
func (b *Base) Platform() Platform { return b.platform }

// Capabilities returns the static descriptor of the provider.
func (b *Base) Capabilities() CapabilityDescriptor {
	c, _ := CapabilitiesFor(b.platform)
	return c
}

// Credentials returns a copy of the held credentials.
func (b *Base) Credentials() Credentials {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.creds
}

// UpdateCredentials merges update into the held credentials.
func (b *Base) UpdateCredentials(update Credentials) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creds = b.creds.Merge(update)
}

// Settings returns a copy of the held settings.
func (b *Base) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// UpdateSettings applies o to the held settings.
func (b *Base) UpdateSettings(o SettingsOverride) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = b.settings.Apply(o)
}

// RefreshToken is not supported unless the adapter overrides it.
func (b *Base) RefreshToken(context.Context) (bool, error) { return false, nil }

// NormalizeHashtags trims tags, ensures the leading '#', drops empties and
// duplicates, and caps the list at the hashtag limit from the settings. A
// limit of 0 means no cap.
func (b *Base) NormalizeHashtags(tags []string) []string {
	limit := b.Settings().HashtagLimit
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		tag = strings.Join(strings.Fields(tag), "")
		tag = strings.TrimLeft(tag, "#")
		if tag == "" {
			continue
		}
		tag = "#" + tag
		key := strings.ToLower(tag)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tag)
		if len(out) == limit {
			break
		}
	}
	return out
}

// Validate checks req against the provider's declared limits.
func (b *Base) Validate(req PostRequest) error {
	caps := b.Capabilities()
	lim := caps.Limits

	if n := utf8.RuneCountInString(req.Text); lim.TextLength > 0 && n > lim.TextLength {
		return b.invalid("text", "text is %d characters, limit is %d", n, lim.TextLength)
	}
	if n := len(req.Hashtags); lim.HashtagsMax > 0 && n > lim.HashtagsMax {
		return b.invalid("hashtags", "%d hashtags given, limit is %d", n, lim.HashtagsMax)
	}
	if len(req.Images()) > 0 && !caps.Features.Images {
		return b.invalid("media", "images are not supported")
	}
	if n := len(req.Images()); lim.ImagesMax > 0 && n > lim.ImagesMax {
		return b.invalid("media", "%d images given, limit is %d", n, lim.ImagesMax)
	}
	for _, m := range req.Media {
		if m.Type != MediaImage && m.Type != MediaVideo {
			return b.invalid("media", "unsupported media type %q", m.Type)
		}
		if strings.TrimSpace(m.URL) == "" {
			return b.invalid("media", "media url is empty")
		}
		if m.Type == MediaVideo && lim.VideoMaxSeconds > 0 && m.DurationSeconds > lim.VideoMaxSeconds {
			return b.invalid("media", "video is %ds long, limit is %ds", m.DurationSeconds, lim.VideoMaxSeconds)
		}
		if lim.FileMaxMB > 0 && m.SizeBytes > int64(lim.FileMaxMB)<<20 {
			return b.invalid("media", "file is %d bytes, limit is %d MB", m.SizeBytes, lim.FileMaxMB)
		}
	}
	if req.ScheduleAt != nil && !caps.Features.Scheduling {
		return b.invalid("schedule_at", "scheduling is not supported")
	}
	return nil
}

func (b *Base) invalid(field, format string, args ...any) error {
	return &ValidationError{Provider: b.platform, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ComposeText joins the text with the normalized hashtags (when auto hashtags
// are enabled) and, if non-empty, the link.
func (b *Base) ComposeText(text string, hashtags []string, link string) string {
	parts := []string{}
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	if b.Settings().AutoHashtags {
		if tags := b.NormalizeHashtags(hashtags); len(tags) > 0 {
			parts = append(parts, strings.Join(tags, " "))
		}
	}
	if l := strings.TrimSpace(link); l != "" {
		parts = append(parts, l)
	}
	return strings.Join(parts, "\n\n")
}

// Guard is the outer boundary of Post. It converts any error or panic raised
// by fn into a failed response.
func (b *Base) Guard(ctx context.Context, fn func(ctx context.Context) (PostResponse, error)) (resp PostResponse) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logutil.Errorf("%s: post panicked: %v", b.platform, r)
			resp = Failed(b.platform, CodePostFailed, fmt.Sprintf("%s: internal error: %v", b.platform, r), map[string]any{"kind": "internal"})
		}
	}()

	resp, err := fn(ctx)
	if err != nil {
		logutil.Debugf("%s: post failed after %s: %v", b.platform, time.Since(start).Round(time.Millisecond), err)
		return FailedFromError(b.platform, err)
	}
	resp.Platform = b.platform
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now().UTC()
	}
	logutil.Debugf("%s: %s id=%s in %s", b.platform, resp.Status, resp.PostID, time.Since(start).Round(time.Millisecond))
	return resp
}

// FailedFromError converts err into a POST_FAILED response.
func FailedFromError(p Platform, err error) PostResponse {
	return Failed(p, CodePostFailed, err.Error(), Details(err))
}

// Validator is the subset of Adapter used by Reachable.
type Validator interface {
	ValidateCredentials(ctx context.Context) error
}

// Reachable reports whether v accepts its credentials. Errors and panics are
// swallowed to false.
func Reachable(ctx context.Context, v Validator) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return v.ValidateCredentials(ctx) == nil
}

// Probe builds a ConnectionStatus from an account lookup.
func Probe(ctx context.Context, p Platform, lookup func(ctx context.Context) (*AccountSummary, error)) (status ConnectionStatus) {
	status = ConnectionStatus{Platform: p, LastChecked: time.Now().UTC()}
	defer func() {
		if r := recover(); r != nil {
			status.Connected = false
			status.Health = HealthError
			status.Error = fmt.Sprint(r)
		}
	}()

	account, err := lookup(ctx)
	if err != nil {
		status.Error = err.Error()
		var (
			aErr  *AuthenticationError
			mcErr MissingCredentialsError
		)
		if errors.As(err, &aErr) || errors.As(err, &mcErr) {
			status.Health = HealthError
		} else {
			status.Health = HealthWarning
		}
		return status
	}
	status.Connected = true
	status.Health = HealthHealthy
	status.Account = account
	return status
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
