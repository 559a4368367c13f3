package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"semaphore/internal/platform"
)

// GatewayProvider resolves platform clients against the credential
// gateway, the collaborator that holds OAuth tokens and performs the
// actual platform API calls. This engine never touches tokens itself.
type GatewayProvider struct {
	baseURL string
	token   string
	client  *http.Client
}

type GatewayOption func(*GatewayProvider)

func NewGatewayProvider(baseURL, token string, opts ...GatewayOption) *GatewayProvider {
	p := &GatewayProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func WithHTTPClient(client *http.Client) GatewayOption {
	return func(p *GatewayProvider) {
		if client != nil {
			p.client = client
		}
	}
}

func (p *GatewayProvider) ClientFor(platformID platform.ID, accountID string) (PlatformClient, error) {
	if p.baseURL == "" {
		return nil, fmt.Errorf("credential gateway is not configured")
	}
	return &gatewayClient{provider: p, platformID: platformID, accountID: accountID}, nil
}

type gatewayClient struct {
	provider   *GatewayProvider
	platformID platform.ID
	accountID  string
}

type gatewayPostRequest struct {
	Action     string `json:"action"`
	Message    string `json:"message"`
	MediaURL   string `json:"mediaUrl,omitempty"`
	MediaKind  string `json:"mediaKind,omitempty"`
	RefEventID string `json:"refEventId,omitempty"`
}

type gatewayPostResponse struct {
	PostID string `json:"postId"`
	URL    string `json:"url,omitempty"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (c *gatewayClient) Publish(ctx context.Context, payload Payload) (*PublishResult, error) {
	body, err := json.Marshal(gatewayPostRequest{
		Action:     string(payload.Action),
		Message:    payload.Message,
		MediaURL:   payload.MediaURL,
		MediaKind:  string(payload.MediaKind),
		RefEventID: payload.RefEventID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal post request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/platforms/%s/accounts/%s/posts",
		c.provider.baseURL, url.PathEscape(string(c.platformID)), url.PathEscape(c.accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.provider.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.provider.token)
	}
	if payload.RequestID != "" {
		req.Header.Set("X-Request-ID", payload.RequestID)
	}

	resp, err := c.provider.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var decoded gatewayPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("decode gateway response: %w", err)
		}
		return nil, &PlatformError{
			Platform: c.platformID,
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  "gateway returned status " + resp.Status,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := decoded.Code
		if code == "" {
			code = strconv.Itoa(resp.StatusCode)
		}
		message := decoded.Error
		if message == "" {
			message = "gateway returned status " + resp.Status
		}
		return nil, &PlatformError{Platform: c.platformID, Code: code, Message: message}
	}

	return &PublishResult{PostID: decoded.PostID, URL: decoded.URL}, nil
}
