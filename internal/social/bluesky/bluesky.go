package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	providerName   = social.Bluesky
	defaultPDSURL  = "https://bsky.social"
	postCollection = "app.bsky.feed.post"

	// MaxPostLength is the cap applied to the composed text.
	MaxPostLength = 300
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for Bluesky using an app password. The
// session is created on first use and kept until credentials change.
type Client struct {
	*social.Base
	pdsURL     string
	httpClient *http.Client

	mu   sync.Mutex
	auth *xrpc.AuthInfo
}

// New constructs a Bluesky adapter. The PDS comes from creds.Server, then the
// base URL option, then bsky.social.
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		pdsURL:     o.BaseURLOr(defaultPDSURL),
		httpClient: o.HTTPClient,
	}
}

// UpdateCredentials merges update and drops the cached session.
func (c *Client) UpdateCredentials(update social.Credentials) {
	c.Base.UpdateCredentials(update)
	c.mu.Lock()
	c.auth = nil
	c.mu.Unlock()
}

func (c *Client) xrpcClient(auth *xrpc.AuthInfo) *xrpc.Client {
	host := strings.TrimSpace(c.Credentials().Server)
	if host == "" {
		host = c.pdsURL
	}
	userAgent := "socialcast/1"
	return &xrpc.Client{
		Client:    c.httpClient,
		Host:      strings.TrimRight(host, "/"),
		UserAgent: &userAgent,
		Auth:      auth,
	}
}

// session returns an authenticated client, logging in if needed.
func (c *Client) session(ctx context.Context) (*xrpc.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth != nil {
		return c.xrpcClient(c.auth), nil
	}
	auth, err := c.login(ctx)
	if err != nil {
		return nil, err
	}
	c.auth = auth
	return c.xrpcClient(auth), nil
}

func (c *Client) login(ctx context.Context) (*xrpc.AuthInfo, error) {
	creds := c.Credentials()
	password := creds.AppPassword
	if password == "" {
		password = creds.AccessToken
	}
	var missing []string
	if strings.TrimSpace(creds.Handle) == "" {
		missing = append(missing, "handle")
	}
	if strings.TrimSpace(password) == "" {
		missing = append(missing, "app_password")
	}
	if len(missing) > 0 {
		return nil, social.MissingCredentialsError{Provider: providerName, Fields: missing}
	}

	out, err := atproto.ServerCreateSession(ctx, c.xrpcClient(nil), &atproto.ServerCreateSession_Input{
		Identifier: creds.Handle,
		Password:   password,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", classify(err))
	}
	return &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}, nil
}

// Authenticate logs in with the handle and app password.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus logs in and reads the profile.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.profile)
}

func (c *Client) profile(ctx context.Context) (*social.AccountSummary, error) {
	client, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	summary := &social.AccountSummary{ID: client.Auth.Did, Username: client.Auth.Handle}
	p, err := bsky.ActorGetProfile(ctx, client, client.Auth.Did)
	if err != nil {
		logutil.Debugf("bluesky: read profile: %v", err)
		return summary, nil
	}
	if p.DisplayName != nil {
		summary.Name = *p.DisplayName
	}
	if p.FollowersCount != nil {
		summary.Followers = *p.FollowersCount
	}
	return summary, nil
}

// RefreshToken exchanges the refresh JWT for a new session. Without a
// session it logs in.
func (c *Client) RefreshToken(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.auth == nil {
		auth, err := c.login(ctx)
		if err != nil {
			return false, err
		}
		c.auth = auth
		return true, nil
	}

	// refreshSession authenticates with the refresh JWT in place of the access JWT.
	refresh := *c.auth
	refresh.AccessJwt = refresh.RefreshJwt
	out, err := atproto.ServerRefreshSession(ctx, c.xrpcClient(&refresh))
	if err != nil {
		c.auth = nil
		return false, fmt.Errorf("refresh session: %w", classify(err))
	}
	c.auth = &xrpc.AuthInfo{
		AccessJwt:  out.AccessJwt,
		RefreshJwt: out.RefreshJwt,
		Handle:     out.Handle,
		Did:        out.Did,
	}
	return true, nil
}

// Post creates an app.bsky.feed.post record. Images are uploaded as blobs;
// a single video is embedded when there are no images; otherwise a link
// becomes an external card. Hashtags and the link get rich text facets.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		client, err := c.session(ctx)
		if err != nil {
			return social.PostResponse{}, err
		}

		text := social.Truncate(c.ComposeText(req.Text, req.Hashtags, req.Link), MaxPostLength)
		post := &bsky.FeedPost{
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
			Text:      text,
			Facets:    Facets(text, req.Link),
		}
		if lang := req.OptionString("language"); lang != "" {
			post.Langs = []string{lang}
		}

		embed, err := c.embed(ctx, client, req)
		if err != nil {
			return social.PostResponse{}, err
		}
		post.Embed = embed

		out, err := atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
			Collection: postCollection,
			Repo:       client.Auth.Did,
			Record:     &util.LexiconTypeDecoder{Val: post},
		})
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("create record: %w", classify(err))
		}
		return social.Published(providerName, out.Uri, postURL(client.Auth.Handle, out.Uri)), nil
	})
}

func (c *Client) embed(ctx context.Context, client *xrpc.Client, req social.PostRequest) (*bsky.FeedPost_Embed, error) {
	if images := req.Images(); len(images) > 0 {
		embed := &bsky.EmbedImages{}
		for _, img := range images {
			blob, err := c.uploadBlob(ctx, client, img.URL)
			if err != nil {
				return nil, err
			}
			embed.Images = append(embed.Images, &bsky.EmbedImages_Image{Alt: img.AltText, Image: blob})
		}
		return &bsky.FeedPost_Embed{EmbedImages: embed}, nil
	}
	if videos := req.Videos(); len(videos) > 0 {
		blob, err := c.uploadBlob(ctx, client, videos[0].URL)
		if err != nil {
			return nil, err
		}
		v := &bsky.EmbedVideo{Video: blob}
		if videos[0].AltText != "" {
			alt := videos[0].AltText
			v.Alt = &alt
		}
		return &bsky.FeedPost_Embed{EmbedVideo: v}, nil
	}
	if link := strings.TrimSpace(req.Link); link != "" {
		title := req.OptionString("link_title")
		if title == "" {
			title = link
		}
		return &bsky.FeedPost_Embed{EmbedExternal: &bsky.EmbedExternal{
			External: &bsky.EmbedExternal_External{
				Uri:         link,
				Title:       title,
				Description: req.OptionString("link_description"),
			},
		}}, nil
	}
	return nil, nil
}

func (c *Client) uploadBlob(ctx context.Context, client *xrpc.Client, mediaURL string) (*util.LexBlob, error) {
	body, err := social.FetchMedia(ctx, c.httpClient, providerName, mediaURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, body); err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	resp, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", classify(err))
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}

// Facets marks every #tag in text and the first occurrence of link. Offsets
// are UTF-8 byte positions.
func Facets(text, link string) []*bsky.RichtextFacet {
	var facets []*bsky.RichtextFacet
	offset := 0
	for _, word := range strings.SplitAfter(text, " ") {
		for _, line := range strings.SplitAfter(word, "\n") {
			start := offset
			offset += len(line)
			tag := strings.TrimRight(line, " \n")
			if len(tag) < 2 || tag[0] != '#' {
				continue
			}
			facets = append(facets, &bsky.RichtextFacet{
				Index: &bsky.RichtextFacet_ByteSlice{ByteStart: int64(start), ByteEnd: int64(start + len(tag))},
				Features: []*bsky.RichtextFacet_Features_Elem{
					{RichtextFacet_Tag: &bsky.RichtextFacet_Tag{Tag: tag[1:]}},
				},
			})
		}
	}
	if link != "" {
		if i := strings.Index(text, link); i >= 0 {
			facets = append(facets, &bsky.RichtextFacet{
				Index: &bsky.RichtextFacet_ByteSlice{ByteStart: int64(i), ByteEnd: int64(i + len(link))},
				Features: []*bsky.RichtextFacet_Features_Elem{
					{RichtextFacet_Link: &bsky.RichtextFacet_Link{Uri: link}},
				},
			})
		}
	}
	return facets
}

// postURL turns at://did/app.bsky.feed.post/rkey into a bsky.app link.
func postURL(handle, uri string) string {
	i := strings.LastIndex(uri, "/")
	if handle == "" || i < 0 {
		return ""
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, uri[i+1:])
}

// classify maps xrpc failures onto the shared taxonomy.
func classify(err error) error {
	var xErr *xrpc.Error
	if !errors.As(err, &xErr) {
		return &social.ProviderError{Provider: providerName, Message: err.Error()}
	}
	status := xErr.StatusCode
	var body *xrpc.XRPCError
	if errors.As(xErr.Wrapped, &body) {
		switch body.ErrStr {
		case "ExpiredToken", "InvalidToken", "AuthenticationRequired", "AuthFactorTokenRequired":
			status = http.StatusUnauthorized
		case "RateLimitExceeded":
			status = http.StatusTooManyRequests
		}
	}
	var retryAfter *int
	if xErr.Ratelimit != nil && !xErr.Ratelimit.Reset.IsZero() {
		secs := int(math.Ceil(time.Until(xErr.Ratelimit.Reset).Seconds()))
		if secs < 0 {
			secs = 0
		}
		retryAfter = &secs
	}
	return social.Classify(providerName, status, retryAfter, err.Error())
}
