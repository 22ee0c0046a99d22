package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blacktop/socialcast/internal/logutil"
	"github.com/blacktop/socialcast/internal/social"
)

const (
	providerName = social.YouTube

	defaultBaseURL  = "https://www.googleapis.com"
	defaultTokenURL = "https://oauth2.googleapis.com/token"

	// MaxTitleLength is the YouTube title limit in characters.
	MaxTitleLength  = 100
	defaultCategory = "22"
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for YouTube video uploads using an OAuth
// access token, refreshed with the client id/secret when it expires.
type Client struct {
	*social.Base
	baseURL    string
	tokenURL   string
	httpClient *http.Client
}

// New constructs a YouTube adapter. With a base URL override the token
// endpoint is served from "<base>/token".
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	tokenURL := defaultTokenURL
	if o.BaseURL != "" {
		tokenURL = strings.TrimRight(o.BaseURL, "/") + "/token"
	}
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		baseURL:    o.BaseURLOr(defaultBaseURL),
		tokenURL:   tokenURL,
		httpClient: o.HTTPClient,
	}
}

func (c *Client) api() (*social.APIClient, error) {
	token := strings.TrimSpace(c.Credentials().AccessToken)
	if token == "" {
		return nil, social.MissingCredentialsError{Provider: providerName, Fields: []string{"access_token"}}
	}
	return &social.APIClient{
		Platform:   providerName,
		BaseURL:    c.baseURL,
		HTTPClient: c.httpClient,
		Header:     http.Header{"Authorization": {"Bearer " + token}},
		DecodeErr:  decodeError,
	}, nil
}

// decodeError reads both the Data API error object and the OAuth token
// endpoint's flat {"error": "...", "error_description": "..."} form.
func decodeError(_ int, body []byte) social.DecodedError {
	var e struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &e); err != nil || len(e.Error) == 0 {
		return social.DecodedError{}
	}

	var code string
	if err := json.Unmarshal(e.Error, &code); err == nil {
		d := social.DecodedError{Message: strings.TrimSpace(code + ": " + e.ErrorDescription)}
		if code == "invalid_grant" || code == "invalid_client" {
			d.Status = http.StatusUnauthorized
		}
		return d
	}

	var apiErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(e.Error, &apiErr); err != nil {
		return social.DecodedError{}
	}
	d := social.DecodedError{Message: apiErr.Message}
	for _, r := range apiErr.Errors {
		switch r.Reason {
		case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
			d.Status = http.StatusTooManyRequests
		}
	}
	return d
}

type channelList struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title     string `json:"title"`
			CustomURL string `json:"customUrl"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Authenticate reads the channel owned by the token.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.channel(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the owned channel.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.channel)
}

func (c *Client) channel(ctx context.Context) (*social.AccountSummary, error) {
	api, err := c.api()
	if err != nil {
		return nil, err
	}
	var list channelList
	_, err = api.Do(ctx, social.Call{
		Path:  "/youtube/v3/channels",
		Query: url.Values{"part": {"snippet,statistics"}, "mine": {"true"}},
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("read channel: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, &social.AuthenticationError{Provider: providerName, Message: "token has no channel"}
	}
	ch := list.Items[0]
	subs, _ := strconv.ParseInt(ch.Statistics.SubscriberCount, 10, 64)
	return &social.AccountSummary{
		ID:        ch.ID,
		Name:      ch.Snippet.Title,
		Username:  ch.Snippet.CustomURL,
		Followers: subs,
	}, nil
}

type snippet struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"categoryId,omitempty"`
}

type status struct {
	PrivacyStatus           string `json:"privacyStatus"`
	PublishAt               string `json:"publishAt,omitempty"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type videoResource struct {
	ID      string  `json:"id,omitempty"`
	Snippet snippet `json:"snippet"`
	Status  status  `json:"status"`
}

// Post fetches the first video of the request from its URL and streams it to
// YouTube in a single multipart upload together with the metadata. The
// first line of the text becomes the title; the remainder, hashtags and link
// form the description. A future ScheduleAt uploads the video as private with
// publishAt set.
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		videos := req.Videos()
		if len(videos) == 0 {
			return social.PostResponse{}, &social.ValidationError{Provider: providerName, Field: "media", Reason: "youtube requires a video"}
		}
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		api, err := c.api()
		if err != nil {
			return social.PostResponse{}, err
		}

		meta := c.metadata(req)
		stream := c.streamClient()
		video, err := social.FetchMedia(ctx, stream, providerName, videos[0].URL)
		if err != nil {
			return social.PostResponse{}, err
		}
		defer video.Close()

		body, contentType := multipartBody(meta, video)
		api.HTTPClient = stream
		var uploaded videoResource
		_, err = api.Do(ctx, social.Call{
			Method:  "POST",
			Path:    "/upload/youtube/v3/videos",
			Query:   url.Values{"uploadType": {"multipart"}, "part": {"snippet,status"}},
			Raw:     body,
			RawType: contentType,
		}, &uploaded)
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("upload video: %w", err)
		}
		logutil.Debugf("youtube: uploaded video id=%s privacy=%s", uploaded.ID, meta.Status.PrivacyStatus)

		watch := "https://www.youtube.com/watch?v=" + uploaded.ID
		if meta.Status.PublishAt != "" {
			return social.Scheduled(providerName, uploaded.ID, watch), nil
		}
		return social.Published(providerName, uploaded.ID, watch), nil
	})
}

// streamClient is the HTTP client without its overall timeout, which would
// also cut off the streamed video body. ctx still bounds the transfer.
func (c *Client) streamClient() *http.Client {
	sc := *c.httpClient
	sc.Timeout = 0
	return &sc
}

func (c *Client) metadata(req social.PostRequest) videoResource {
	title, rest := splitTitle(req.Text)
	if t := req.OptionString("title"); t != "" {
		title, rest = t, strings.TrimSpace(req.Text)
	}
	if title == "" {
		title = "Untitled"
	}

	tags := make([]string, 0, len(req.Hashtags))
	for _, tag := range c.NormalizeHashtags(req.Hashtags) {
		tags = append(tags, strings.TrimPrefix(tag, "#"))
	}

	category := req.OptionString("category_id")
	if category == "" {
		category = defaultCategory
	}

	privacy := req.OptionString("privacy_status")
	if privacy == "" {
		privacy = privacyFor(c.Settings().DefaultVisibility)
	}
	st := status{PrivacyStatus: privacy, SelfDeclaredMadeForKids: req.OptionBool("made_for_kids")}
	if req.ScheduleAt != nil && req.ScheduleAt.After(time.Now()) {
		st.PrivacyStatus = "private"
		st.PublishAt = req.ScheduleAt.UTC().Format(time.RFC3339)
	}

	return videoResource{
		Snippet: snippet{
			Title:       social.Truncate(title, MaxTitleLength),
			Description: c.ComposeText(rest, req.Hashtags, req.Link),
			Tags:        tags,
			CategoryID:  category,
		},
		Status: st,
	}
}

// multipartBody streams a multipart/related body of the JSON metadata followed
// by the video bytes.
func multipartBody(meta videoResource, video io.Reader) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeParts(mw, meta, video)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()
	return pr, "multipart/related; boundary=" + mw.Boundary()
}

func writeParts(mw *multipart.Writer, meta videoResource, video io.Reader) error {
	part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(meta); err != nil {
		return err
	}
	part, err = mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"video/*"}})
	if err != nil {
		return err
	}
	_, err = io.Copy(part, video)
	return err
}

func splitTitle(text string) (string, string) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	return strings.TrimSpace(first), strings.TrimSpace(rest)
}

func privacyFor(visibility string) string {
	switch strings.ToLower(visibility) {
	case "private":
		return "private"
	case "unlisted":
		return "unlisted"
	default:
		return "public"
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken exchanges the refresh token for a new access token and stores
// it on the adapter.
func (c *Client) RefreshToken(ctx context.Context) (bool, error) {
	creds := c.Credentials()
	var missing []string
	if creds.RefreshToken == "" {
		missing = append(missing, "refresh_token")
	}
	if creds.ClientID == "" {
		missing = append(missing, "client_id")
	}
	if creds.ClientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if len(missing) > 0 {
		return false, social.MissingCredentialsError{Provider: providerName, Fields: missing}
	}

	api := &social.APIClient{Platform: providerName, HTTPClient: c.httpClient, DecodeErr: decodeError}
	var tok tokenResponse
	_, err := api.Do(ctx, social.Call{
		Method: "POST",
		Path:   c.tokenURL,
		Form: url.Values{
			"client_id":     {creds.ClientID},
			"client_secret": {creds.ClientSecret},
			"refresh_token": {creds.RefreshToken},
			"grant_type":    {"refresh_token"},
		},
	}, &tok)
	if err != nil {
		return false, fmt.Errorf("refresh token: %w", err)
	}
	if tok.AccessToken == "" {
		return false, &social.AuthenticationError{Provider: providerName, Message: "token endpoint returned no access token"}
	}

	update := social.Credentials{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if tok.ExpiresIn > 0 {
		exp := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
		update.ExpiresAt = &exp
	}
	c.UpdateCredentials(update)
	logutil.Infof("youtube: access token refreshed")
	return true, nil
}
