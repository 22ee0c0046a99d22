package manager

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/metrics"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/blacktop/socialcast/internal/social/bluesky"
	"github.com/blacktop/socialcast/internal/social/discord"
	"github.com/blacktop/socialcast/internal/social/facebook"
	"github.com/blacktop/socialcast/internal/social/instagram"
	"github.com/blacktop/socialcast/internal/social/linkedin"
	"github.com/blacktop/socialcast/internal/social/mastodon"
	"github.com/blacktop/socialcast/internal/social/telegram"
	"github.com/blacktop/socialcast/internal/social/twitter"
	"github.com/blacktop/socialcast/internal/social/youtube"
	"github.com/blacktop/socialcast/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Manager owns the registry of live adapters, one per platform, and fans
// posts out to them.
type Manager struct {
	mu       sync.RWMutex
	adapters map[social.Platform]social.Adapter

	httpClient *http.Client
	endpoints  map[social.Platform]string
	repo       store.Repository
	userID     string
	metrics    *metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client handed to every adapter.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithEndpoint overrides the API base URL of one platform.
func WithEndpoint(p social.Platform, baseURL string) Option {
	return func(m *Manager) { m.endpoints[p] = baseURL }
}

// WithStore persists connection state for userID through repo.
func WithStore(repo store.Repository, userID string) Option {
	return func(m *Manager) {
		m.repo = repo
		m.userID = userID
	}
}

// WithMetrics records post and connection metrics.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// New returns an empty Manager.
func New(opts ...Option) *Manager {
	m := &Manager{
		adapters:  map[social.Platform]social.Adapter{},
		endpoints: map[social.Platform]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewWithAdapters returns a Manager with the given adapters registered as
// is, bypassing the factory. Later adapters replace earlier ones for the same
// platform.
func NewWithAdapters(adapters []social.Adapter, opts ...Option) *Manager {
	m := New(opts...)
	for _, a := range adapters {
		m.adapters[a.Platform()] = a
	}
	return m
}

// newAdapter is the factory over the closed platform set.
func (m *Manager) newAdapter(p social.Platform, creds social.Credentials, o social.SettingsOverride) (social.Adapter, error) {
	opts := []social.Option{social.WithHTTPClient(m.httpClient)}
	if u := m.endpoints[p]; u != "" {
		opts = append(opts, social.WithBaseURL(u))
	}

	switch p {
	case social.Facebook:
		return facebook.New(creds, o, opts...), nil
	case social.Instagram:
		return instagram.New(creds, o, opts...), nil
	case social.Twitter:
		return twitter.New(creds, o, opts...), nil
	case social.Telegram:
		return telegram.New(creds, o, opts...), nil
	case social.Discord:
		return discord.New(creds, o, opts...), nil
	case social.YouTube:
		return youtube.New(creds, o, opts...), nil
	case social.LinkedIn:
		return linkedin.New(creds, o, opts...), nil
	case social.Mastodon:
		return mastodon.New(creds, o, opts...), nil
	case social.Bluesky:
		return bluesky.New(creds, o, opts...), nil
	}
	return nil, fmt.Errorf("%w: %q", social.ErrUnknownPlatform, p)
}

// RegisterPlatform constructs the adapter for p and installs it, replacing
// any adapter already registered for p.
func (m *Manager) RegisterPlatform(p social.Platform, creds social.Credentials, o social.SettingsOverride) error {
	a, err := m.newAdapter(p, creds, o)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.adapters[p] = a
	m.mu.Unlock()
	logutil.Debugf("registered %s: %s", p, creds)
	return nil
}

// UnregisterPlatform removes the adapter for p. It reports whether one was registered.
func (m *Manager) UnregisterPlatform(p social.Platform) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.adapters[p]
	delete(m.adapters, p)
	return ok
}

// IsPlatformRegistered reports whether p has an adapter.
func (m *Manager) IsPlatformRegistered(p social.Platform) bool {
	_, ok := m.adapter(p)
	return ok
}

// RegisteredPlatforms returns the registered platforms in enum order.
func (m *Manager) RegisteredPlatforms() []social.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]social.Platform, 0, len(m.adapters))
	for _, p := range social.Platforms() {
		if _, ok := m.adapters[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) adapter(p social.Platform) (social.Adapter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adapters[p]
	return a, ok
}

func (m *Manager) mustAdapter(p social.Platform) (social.Adapter, error) {
	a, ok := m.adapter(p)
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, social.ErrNotRegistered)
	}
	return a, nil
}

// PostToPlatform dispatches req to p. It never returns an error: an
// unregistered platform yields a PLATFORM_NOT_REGISTERED response and a
// panicking adapter a POST_FAILED one.
func (m *Manager) PostToPlatform(ctx context.Context, p social.Platform, req social.PostRequest) (resp social.PostResponse) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logutil.Errorf("%s: adapter panicked: %v", p, r)
			resp = social.Failed(p, social.CodePostFailed, fmt.Sprintf("%s: internal error: %v", p, r), map[string]any{"kind": "internal"})
		}
		m.metrics.ObservePost(string(p), string(resp.Status), time.Since(start))
	}()

	a, ok := m.adapter(p)
	if !ok {
		return social.Failed(p, social.CodePlatformNotRegistered, fmt.Sprintf("platform %s is not registered", p), nil)
	}
	resp = a.Post(ctx, req)
	resp.Platform = p
	return resp
}

// PostToMultiplePlatforms posts req to every platform in req.Platforms
// concurrently and waits for all of them. Result i belongs to req.Platforms[i].
func (m *Manager) PostToMultiplePlatforms(ctx context.Context, req social.PostRequest) social.BulkPostResult {
	result := social.BulkPostResult{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Results:   make([]social.PostResponse, len(req.Platforms)),
	}
	m.metrics.ObserveBulk()

	var g errgroup.Group
	for i, p := range req.Platforms {
		g.Go(func() error {
			result.Results[i] = m.PostToPlatform(ctx, p, req)
			return nil
		})
	}
	_ = g.Wait()

	result.Summary = social.Summarize(result.Results)
	logutil.Infof("bulk %s: %d published, %d scheduled, %d failed",
		result.RequestID, result.Summary.Successful, result.Summary.Pending, result.Summary.Failed)
	return result
}

// TestConnection reports whether p accepts its credentials. The outcome is
// written to the store when one is configured.
func (m *Manager) TestConnection(ctx context.Context, p social.Platform) bool {
	a, ok := m.adapter(p)
	if !ok {
		return false
	}
	connected := social.Reachable(ctx, a)
	status := social.ConnectionStatus{
		Platform:    p,
		Connected:   connected,
		Health:      social.HealthHealthy,
		LastChecked: time.Now().UTC(),
	}
	if !connected {
		status.Health = social.HealthError
		status.Error = "credentials rejected"
	}
	m.metrics.ObserveConnection(string(p), string(status.Health))
	m.saveStatus(ctx, status)
	return connected
}

// TestAllConnections tests every registered platform concurrently.
func (m *Manager) TestAllConnections(ctx context.Context) map[social.Platform]bool {
	platforms := m.RegisteredPlatforms()
	results := make([]bool, len(platforms))
	var g errgroup.Group
	for i, p := range platforms {
		g.Go(func() error {
			results[i] = m.TestConnection(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[social.Platform]bool, len(platforms))
	for i, p := range platforms {
		out[p] = results[i]
	}
	return out
}

// ConnectionStatus probes p.
func (m *Manager) ConnectionStatus(ctx context.Context, p social.Platform) (social.ConnectionStatus, error) {
	a, err := m.mustAdapter(p)
	if err != nil {
		return social.ConnectionStatus{}, err
	}
	status := probe(ctx, a)
	m.metrics.ObserveConnection(string(p), string(status.Health))
	return status, nil
}

// AllConnectionStatuses probes every registered platform concurrently and
// returns the statuses in enum order.
func (m *Manager) AllConnectionStatuses(ctx context.Context) []social.ConnectionStatus {
	platforms := m.RegisteredPlatforms()
	out := make([]social.ConnectionStatus, len(platforms))
	var g errgroup.Group
	for i, p := range platforms {
		g.Go(func() error {
			status, err := m.ConnectionStatus(ctx, p)
			if err != nil {
				// unregistered between the listing and the probe
				status = social.ConnectionStatus{Platform: p, Health: social.HealthError, Error: err.Error(), LastChecked: time.Now().UTC()}
			}
			out[i] = status
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func probe(ctx context.Context, a social.Adapter) (status social.ConnectionStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = social.ConnectionStatus{
				Platform:    a.Platform(),
				Health:      social.HealthError,
				Error:       fmt.Sprint(r),
				LastChecked: time.Now().UTC(),
			}
		}
	}()
	status = a.ConnectionStatus(ctx)
	status.Platform = a.Platform()
	return status
}

// Capabilities returns the static descriptor of p, registered or not.
func (m *Manager) Capabilities(p social.Platform) (social.CapabilityDescriptor, error) {
	c, ok := social.CapabilitiesFor(p)
	if !ok {
		return social.CapabilityDescriptor{}, fmt.Errorf("%w: %q", social.ErrUnknownPlatform, p)
	}
	return c, nil
}

// AllCapabilities returns the descriptors of the registered platforms.
func (m *Manager) AllCapabilities() map[social.Platform]social.CapabilityDescriptor {
	out := map[social.Platform]social.CapabilityDescriptor{}
	for _, p := range m.RegisteredPlatforms() {
		if a, ok := m.adapter(p); ok {
			out[p] = a.Capabilities()
		}
	}
	return out
}

// HealthReport aggregates connection statuses.
type HealthReport struct {
	Total     int                                         `json:"total"`
	Healthy   int                                         `json:"healthy"`
	Warning   int                                         `json:"warning"`
	Error     int                                         `json:"error"`
	Platforms map[social.Platform]social.ConnectionStatus `json:"platforms"`
}

// HealthStatus probes every registered platform and buckets the results.
func (m *Manager) HealthStatus(ctx context.Context) HealthReport {
	statuses := m.AllConnectionStatuses(ctx)
	report := HealthReport{
		Total:     len(statuses),
		Platforms: make(map[social.Platform]social.ConnectionStatus, len(statuses)),
	}
	for _, s := range statuses {
		report.Platforms[s.Platform] = s
		switch s.Health {
		case social.HealthHealthy:
			report.Healthy++
		case social.HealthWarning:
			report.Warning++
		default:
			report.Error++
		}
	}
	return report
}

// UpdateCredentials merges creds into the adapter of p.
func (m *Manager) UpdateCredentials(p social.Platform, creds social.Credentials) error {
	a, err := m.mustAdapter(p)
	if err != nil {
		return err
	}
	a.UpdateCredentials(creds)
	return nil
}

// UpdateSettings applies o to the adapter of p.
func (m *Manager) UpdateSettings(p social.Platform, o social.SettingsOverride) error {
	a, err := m.mustAdapter(p)
	if err != nil {
		return err
	}
	a.UpdateSettings(o)
	return nil
}

// Settings returns the effective settings of p.
func (m *Manager) Settings(p social.Platform) (social.Settings, error) {
	a, err := m.mustAdapter(p)
	if err != nil {
		return social.Settings{}, err
	}
	return a.Settings(), nil
}

// RefreshToken asks the adapter of p to renew its token. Renewed credentials
// are saved when a store is configured, creating the record if p was
// registered without one.
func (m *Manager) RefreshToken(ctx context.Context, p social.Platform) (bool, error) {
	a, err := m.mustAdapter(p)
	if err != nil {
		return false, err
	}
	ok, err := a.RefreshToken(ctx)
	if err != nil || !ok {
		return ok, err
	}
	if m.repo != nil {
		rec, err := m.repo.Get(ctx, m.userID, p)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// registered from the environment, never connected
			rec = store.Record{UserID: m.userID, Platform: p, Settings: overrideOf(a.Settings()), Active: true}
		case err != nil:
			return true, fmt.Errorf("load %s record: %w", p, err)
		}
		rec.Credentials = a.Credentials()
		if err := m.repo.Save(ctx, rec); err != nil {
			return true, fmt.Errorf("save refreshed %s credentials: %w", p, err)
		}
	}
	return true, nil
}

// Connect registers p, checks the connection and, with a store configured,
// saves the credentials and the resulting status.
func (m *Manager) Connect(ctx context.Context, p social.Platform, creds social.Credentials, o social.SettingsOverride) (social.ConnectionStatus, error) {
	if err := m.RegisterPlatform(p, creds, o); err != nil {
		return social.ConnectionStatus{}, err
	}
	if m.repo != nil {
		if err := m.repo.Save(ctx, store.Record{UserID: m.userID, Platform: p, Credentials: creds, Settings: o, Active: true}); err != nil {
			return social.ConnectionStatus{}, fmt.Errorf("save %s credentials: %w", p, err)
		}
	}
	status, err := m.ConnectionStatus(ctx, p)
	if err != nil {
		return status, err
	}
	m.saveStatus(ctx, status)
	return status, nil
}

// Disconnect unregisters p and deactivates its stored credentials.
func (m *Manager) Disconnect(ctx context.Context, p social.Platform) error {
	m.UnregisterPlatform(p)
	if m.repo == nil {
		return nil
	}
	if err := m.repo.Deactivate(ctx, m.userID, p); err != nil {
		return fmt.Errorf("deactivate %s: %w", p, err)
	}
	return nil
}

// LoadFromStore registers every active stored platform of the configured
// user. Stored settings are applied first, then overrides[p] on top.
func (m *Manager) LoadFromStore(ctx context.Context, overrides map[social.Platform]social.SettingsOverride) ([]social.Platform, error) {
	if m.repo == nil {
		return nil, errors.New("no credential store configured")
	}
	records, err := m.repo.GetAll(ctx, m.userID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	var (
		loaded []social.Platform
		errs   []error
	)
	for _, rec := range records {
		if err := m.RegisterPlatform(rec.Platform, rec.Credentials, rec.Settings); err != nil {
			errs = append(errs, err)
			continue
		}
		if o, ok := overrides[rec.Platform]; ok {
			_ = m.UpdateSettings(rec.Platform, o)
		}
		loaded = append(loaded, rec.Platform)
	}
	return loaded, errors.Join(errs...)
}

// saveStatus writes status to the store, if any. Callers observe the metric.
func (m *Manager) saveStatus(ctx context.Context, status social.ConnectionStatus) {
	if m.repo == nil {
		return
	}
	if err := m.repo.UpdateConnectionStatus(ctx, m.userID, status); err != nil {
		logutil.Warnf("%s: store connection status: %v", status.Platform, err)
	}
}

// overrideOf pins every field of s.
func overrideOf(s social.Settings) social.SettingsOverride {
	return social.SettingsOverride{
		HashtagLimit:      social.Int(s.HashtagLimit),
		DefaultVisibility: social.String(s.DefaultVisibility),
		AutoHashtags:      social.Bool(s.AutoHashtags),
		MaxPostsPerHour:   social.Int(s.MaxPostsPerHour),
		MinPostInterval:   &s.MinPostInterval,
	}
}
