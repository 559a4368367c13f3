package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"semaphore/internal/trigger"
)

// GatewayEventSource fetches source-account events from the credential
// gateway's feed endpoint. Wrap it in a RetryingEventSource before
// handing it to poll runners.
type GatewayEventSource struct {
	provider *GatewayProvider
}

func NewGatewayEventSource(provider *GatewayProvider) *GatewayEventSource {
	return &GatewayEventSource{provider: provider}
}

type gatewayEvent struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	AuthorID  string    `json:"authorId"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Link      string    `json:"link"`
	MediaURL  string    `json:"mediaUrl"`
	Hashtags  []string  `json:"hashtags"`
	IsReply   bool      `json:"isReply"`
	IsRetweet bool      `json:"isRetweet"`
	IsQuote   bool      `json:"isQuote"`
	CreatedAt time.Time `json:"createdAt"`
}

func (s *GatewayEventSource) FetchSince(ctx context.Context, accountID string, cursor trigger.Cursor) ([]trigger.Event, error) {
	if s.provider.baseURL == "" {
		return nil, fmt.Errorf("credential gateway is not configured")
	}

	endpoint := fmt.Sprintf("%s/api/accounts/%s/events", s.provider.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	query := req.URL.Query()
	if cursor.LastEventID != "" {
		query.Set("sinceId", cursor.LastEventID)
	}
	if !cursor.LastSeenAt.IsZero() {
		query.Set("sinceTime", strconv.FormatInt(cursor.LastSeenAt.Unix(), 10))
	}
	req.URL.RawQuery = query.Encode()
	if s.provider.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.provider.token)
	}

	resp, err := s.provider.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed fetch for %s returned status %s", accountID, resp.Status)
	}

	var decoded struct {
		Events []gatewayEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode feed response: %w", err)
	}

	events := make([]trigger.Event, 0, len(decoded.Events))
	for _, ev := range decoded.Events {
		events = append(events, trigger.Event{
			ID:        ev.ID,
			Kind:      trigger.EventKind(ev.Kind),
			AuthorID:  ev.AuthorID,
			Username:  ev.Username,
			Name:      ev.Name,
			Text:      ev.Text,
			Link:      ev.Link,
			MediaURL:  ev.MediaURL,
			Hashtags:  ev.Hashtags,
			IsReply:   ev.IsReply,
			IsRetweet: ev.IsRetweet,
			IsQuote:   ev.IsQuote,
			CreatedAt: ev.CreatedAt,
		})
	}
	return events, nil
}
