package linkedin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/blacktop/socialcast/internal/social"
)

const (
	providerName   = social.LinkedIn
	defaultBaseURL = "https://api.linkedin.com"

	// APIVersion is sent as the LinkedIn-Version header on /rest calls.
	APIVersion = "202405"

	urnPrefix = "urn:li:"
)

var _ social.Adapter = (*Client)(nil)

// Client implements social.Adapter for LinkedIn member or organization posts.
type Client struct {
	*social.Base
	baseURL    string
	httpClient *http.Client
}

// New constructs a LinkedIn adapter. creds needs an access token and either
// an organization id or the member id (AccountID).
func New(creds social.Credentials, settings social.SettingsOverride, opts ...social.Option) *Client {
	o := social.BuildOptions(opts...)
	return &Client{
		Base:       social.NewBase(providerName, creds, settings),
		baseURL:    o.BaseURLOr(defaultBaseURL),
		httpClient: o.HTTPClient,
	}
}

func (c *Client) api() (*social.APIClient, social.Credentials, error) {
	creds := c.Credentials()
	if strings.TrimSpace(creds.AccessToken) == "" {
		return nil, creds, social.MissingCredentialsError{Provider: providerName, Fields: []string{"access_token"}}
	}
	return &social.APIClient{
		Platform:   providerName,
		BaseURL:    c.baseURL,
		HTTPClient: c.httpClient,
		Header: http.Header{
			"Authorization":             {"Bearer " + creds.AccessToken},
			"LinkedIn-Version":          {APIVersion},
			"X-Restli-Protocol-Version": {"2.0.0"},
		},
		DecodeErr: decodeError,
	}, creds, nil
}

func decodeError(_ int, body []byte) social.DecodedError {
	var e struct {
		Status           int    `json:"status"`
		Message          string `json:"message"`
		ServiceErrorCode int    `json:"serviceErrorCode"`
		Code             string `json:"code"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return social.DecodedError{}
	}
	return social.DecodedError{Message: e.Message, Status: e.Status}
}

type userInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Authenticate reads the OpenID userinfo of the token owner.
func (c *Client) Authenticate(ctx context.Context) error {
	_, err := c.me(ctx)
	return err
}

// ValidateCredentials delegates to Authenticate.
func (c *Client) ValidateCredentials(ctx context.Context) error { return c.Authenticate(ctx) }

// TestConnection reports whether the credentials work, swallowing errors.
func (c *Client) TestConnection(ctx context.Context) bool { return social.Reachable(ctx, c) }

// ConnectionStatus probes the token owner.
func (c *Client) ConnectionStatus(ctx context.Context) social.ConnectionStatus {
	return social.Probe(ctx, providerName, c.me)
}

func (c *Client) me(ctx context.Context) (*social.AccountSummary, error) {
	api, _, err := c.api()
	if err != nil {
		return nil, err
	}
	var u userInfo
	if _, err := api.Do(ctx, social.Call{Path: "/v2/userinfo"}, &u); err != nil {
		return nil, fmt.Errorf("read userinfo: %w", err)
	}
	return &social.AccountSummary{ID: u.Sub, Name: u.Name, Username: u.Email}, nil
}

type distribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type mediaRef struct {
	ID      string `json:"id"`
	AltText string `json:"altText,omitempty"`
	Title   string `json:"title,omitempty"`
}

type article struct {
	Source      string `json:"source"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type multiImage struct {
	Images []mediaRef `json:"images"`
}

type content struct {
	Media      *mediaRef   `json:"media,omitempty"`
	MultiImage *multiImage `json:"multiImage,omitempty"`
	Article    *article    `json:"article,omitempty"`
}

type postBody struct {
	Author                    string       `json:"author"`
	Commentary                string       `json:"commentary"`
	Visibility                string       `json:"visibility"`
	Distribution              distribution `json:"distribution"`
	Content                   *content     `json:"content,omitempty"`
	LifecycleState            string       `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool         `json:"isReshareDisabledByAuthor"`
}

// Post creates a post through the versioned Posts API. Media must already be
// registered with LinkedIn and referenced by URN (urn:li:image:..., urn:li:video:...).
func (c *Client) Post(ctx context.Context, req social.PostRequest) social.PostResponse {
	return c.Guard(ctx, func(ctx context.Context) (social.PostResponse, error) {
		if err := c.Validate(req); err != nil {
			return social.PostResponse{}, err
		}
		for _, m := range req.Media {
			if !strings.HasPrefix(m.URL, urnPrefix) {
				return social.PostResponse{}, &social.ValidationError{
					Provider: providerName,
					Field:    "media",
					Reason:   fmt.Sprintf("media must be a LinkedIn URN, got %q", m.URL),
				}
			}
		}
		api, creds, err := c.api()
		if err != nil {
			return social.PostResponse{}, err
		}
		author, err := authorURN(creds)
		if err != nil {
			return social.PostResponse{}, err
		}

		body := c.buildBody(author, req)
		res, err := api.Do(ctx, social.Call{Method: "POST", Path: "/rest/posts", Body: body}, nil)
		if err != nil {
			return social.PostResponse{}, fmt.Errorf("create post: %w", err)
		}
		id := res.Header.Get("x-restli-id")
		if id == "" {
			id = res.Header.Get("X-LinkedIn-Id")
		}
		if id == "" {
			return social.PostResponse{}, &social.ProviderError{Provider: providerName, StatusCode: res.StatusCode, Message: "response has no post id"}
		}
		return social.Published(providerName, id, "https://www.linkedin.com/feed/update/"+id), nil
	})
}

func authorURN(creds social.Credentials) (string, error) {
	switch {
	case strings.TrimSpace(creds.OrganizationID) != "":
		return urnPrefix + "organization:" + strings.TrimPrefix(creds.OrganizationID, urnPrefix+"organization:"), nil
	case strings.TrimSpace(creds.AccountID) != "":
		return urnPrefix + "person:" + strings.TrimPrefix(creds.AccountID, urnPrefix+"person:"), nil
	}
	return "", social.MissingCredentialsError{Provider: providerName, Fields: []string{"organization_id", "account_id"}}
}

func (c *Client) buildBody(author string, req social.PostRequest) postBody {
	link := ""
	if len(req.Media) > 0 {
		link = req.Link
	}
	body := postBody{
		Author:     author,
		Commentary: EscapeCommentary(c.ComposeText(req.Text, req.Hashtags, link)),
		Visibility: visibilityFor(c.Settings().DefaultVisibility),
		Distribution: distribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}

	switch images := req.Images(); {
	case len(req.Videos()) > 0:
		v := req.Videos()[0]
		body.Content = &content{Media: &mediaRef{ID: v.URL, Title: req.OptionString("media_title")}}
	case len(images) == 1:
		body.Content = &content{Media: &mediaRef{ID: images[0].URL, AltText: images[0].AltText}}
	case len(images) > 1:
		multi := &multiImage{}
		for _, img := range images {
			multi.Images = append(multi.Images, mediaRef{ID: img.URL, AltText: img.AltText})
		}
		body.Content = &content{MultiImage: multi}
	case strings.TrimSpace(req.Link) != "":
		title := req.OptionString("link_title")
		if title == "" {
			title = req.Link
		}
		body.Content = &content{Article: &article{
			Source:      req.Link,
			Title:       title,
			Description: req.OptionString("link_description"),
		}}
	}
	return body
}

func visibilityFor(v string) string {
	switch strings.ToLower(v) {
	case "connections":
		return "CONNECTIONS"
	case "logged_in":
		return "LOGGED_IN"
	default:
		return "PUBLIC"
	}
}

var commentaryReplacer = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`@`, `\@`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`<`, `\<`,
	`>`, `\>`,
	`*`, `\*`,
	`_`, `\_`,
	`~`, `\~`,
)

// EscapeCommentary escapes the reserved characters of LinkedIn's "little"
// text format so they render literally. Hashtags are left as is.
func EscapeCommentary(s string) string {
	return commentaryReplacer.Replace(s)
}
