// Package graph holds the pieces shared by the Facebook and Instagram
// adapters, which both talk to the Meta Graph API.
package graph

import (
	"encoding/json"
	"net/http"

	"github.com/blacktop/socialcast/internal/social"
)

// DefaultBaseURL is the versioned Graph API root.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

type errorEnvelope struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// DecodeError reads the Graph error envelope. Graph reports expired tokens
// and throttling as HTTP 400, so the error code decides the classification.
func DecodeError(status int, body []byte) social.DecodedError {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Message == "" {
		return social.DecodedError{}
	}
	d := social.DecodedError{Message: env.Error.Message}
	switch env.Error.Code {
	case 102, 190:
		d.Status = http.StatusUnauthorized
	case 10, 200:
		d.Status = http.StatusForbidden
	case 4, 17, 32, 613:
		d.Status = http.StatusTooManyRequests
	}
	return d
}

// NewClient builds an APIClient for p rooted at baseURL.
func NewClient(p social.Platform, baseURL string, httpClient *http.Client) *social.APIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &social.APIClient{
		Platform:   p,
		BaseURL:    baseURL,
		HTTPClient: httpClient,
		DecodeErr:  DecodeError,
	}
}

// IDResponse is the common {"id": "..."} answer of Graph write calls.
type IDResponse struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}
