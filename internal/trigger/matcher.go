package trigger

import (
	"fmt"
	"strings"
	"time"
)

// Type is an automation trigger type over source-account events.
type Type string

const (
	OnTweet   Type = "on_tweet"
	OnMention Type = "on_mention"
	OnKeyword Type = "on_keyword"
	OnHashtag Type = "on_hashtag"
	OnSearch  Type = "on_search"
	OnRetweet Type = "on_retweet"
	OnLike    Type = "on_like"
)

// ParseType validates a trigger type string from a task definition.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case OnTweet, OnMention, OnKeyword, OnHashtag, OnSearch, OnRetweet, OnLike:
		return t, nil
	default:
		return "", fmt.Errorf("unknown trigger type %q", s)
	}
}

// EventKind classifies a polled source event.
type EventKind string

const (
	KindPost    EventKind = "post"
	KindMention EventKind = "mention"
	KindLike    EventKind = "like"
)

// Event is one candidate event fetched from the source platform feed.
type Event struct {
	ID        string
	Kind      EventKind
	AuthorID  string
	Username  string
	Name      string
	Text      string
	Link      string
	MediaURL  string
	Hashtags  []string
	IsReply   bool
	IsRetweet bool
	IsQuote   bool
	CreatedAt time.Time
}

// Filters narrows which events fire a task. Evaluation order is fixed:
// originalOnly, excludeReplies, excludeRetweets, excludeQuotes, then
// the trigger-value match for keyword/hashtag/search triggers.
type Filters struct {
	OriginalOnly    bool   `json:"originalOnly"`
	ExcludeReplies  bool   `json:"excludeReplies"`
	ExcludeRetweets bool   `json:"excludeRetweets"`
	ExcludeQuotes   bool   `json:"excludeQuotes"`
	TriggerValue    string `json:"triggerValue,omitempty"`
}

// Matches decides whether an event fires a trigger of the given type
// with the given filters. Pure function, no hidden state.
func Matches(t Type, f Filters, ev Event) bool {
	if !typeMatches(t, ev) {
		return false
	}

	// on_retweet exists to detect retweets, so the retweet-excluding
	// filters are ignored for that trigger type.
	originalOnly := f.OriginalOnly && t != OnRetweet
	excludeRetweets := (f.ExcludeRetweets || originalOnly) && t != OnRetweet
	excludeReplies := f.ExcludeReplies || originalOnly

	if originalOnly && (ev.IsReply || ev.IsRetweet || ev.IsQuote) {
		return false
	}
	if excludeReplies && ev.IsReply {
		return false
	}
	if excludeRetweets && ev.IsRetweet {
		return false
	}
	if f.ExcludeQuotes && ev.IsQuote {
		return false
	}

	switch t {
	case OnKeyword:
		return containsKeyword(ev.Text, f.TriggerValue)
	case OnHashtag:
		return hasHashtag(ev, f.TriggerValue)
	case OnSearch:
		return matchesQuery(ev.Text, f.TriggerValue)
	}
	return true
}

func typeMatches(t Type, ev Event) bool {
	switch t {
	case OnTweet, OnKeyword, OnHashtag, OnSearch:
		return ev.Kind == KindPost
	case OnMention:
		return ev.Kind == KindMention
	case OnRetweet:
		return ev.Kind == KindPost && ev.IsRetweet
	case OnLike:
		return ev.Kind == KindLike
	}
	return false
}

func containsKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

func hasHashtag(ev Event, tag string) bool {
	if tag == "" {
		return false
	}
	tag = strings.TrimPrefix(strings.ToLower(tag), "#")
	for _, t := range ev.Hashtags {
		if strings.TrimPrefix(strings.ToLower(t), "#") == tag {
			return true
		}
	}
	return false
}

// matchesQuery implements a minimal search-query match: every
// whitespace-separated term must appear in the text.
func matchesQuery(text, query string) bool {
	if query == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range strings.Fields(strings.ToLower(query)) {
		if !strings.Contains(lower, term) {
			return false
		}
	}
	return true
}
