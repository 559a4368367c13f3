package trigger

import (
	"testing"
	"time"
)

func postEvent(text string) Event {
	return Event{ID: "ev-1", Kind: KindPost, Text: text, CreatedAt: time.Now()}
}

func TestMatchesTypePredicates(t *testing.T) {
	tests := []struct {
		name    string
		trigger Type
		event   Event
		want    bool
	}{
		{"tweet fires on post", OnTweet, Event{Kind: KindPost}, true},
		{"tweet ignores like", OnTweet, Event{Kind: KindLike}, false},
		{"mention fires on mention", OnMention, Event{Kind: KindMention}, true},
		{"mention ignores post", OnMention, Event{Kind: KindPost}, false},
		{"like fires on like", OnLike, Event{Kind: KindLike}, true},
		{"retweet needs retweet flag", OnRetweet, Event{Kind: KindPost}, false},
		{"retweet fires on retweet", OnRetweet, Event{Kind: KindPost, IsRetweet: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.trigger, Filters{}, tt.event); got != tt.want {
				t.Errorf("Matches(%s) = %v, want %v", tt.trigger, got, tt.want)
			}
		})
	}
}

func TestMatchesOriginalOnly(t *testing.T) {
	f := Filters{OriginalOnly: true}

	if Matches(OnTweet, f, Event{Kind: KindPost, IsReply: true}) {
		t.Errorf("originalOnly should reject replies")
	}
	if Matches(OnTweet, f, Event{Kind: KindPost, IsRetweet: true}) {
		t.Errorf("originalOnly should reject retweets")
	}
	if Matches(OnTweet, f, Event{Kind: KindPost, IsQuote: true}) {
		t.Errorf("originalOnly should reject quotes")
	}
	if !Matches(OnTweet, f, Event{Kind: KindPost}) {
		t.Errorf("originalOnly should pass original posts")
	}
}

func TestMatchesOriginalOnlyImpliesIndividualFilters(t *testing.T) {
	// originalOnly wins even when the individual settings are off.
	f := Filters{OriginalOnly: true, ExcludeReplies: false, ExcludeRetweets: false}
	if Matches(OnTweet, f, Event{Kind: KindPost, IsReply: true}) {
		t.Errorf("originalOnly must imply excludeReplies")
	}
	if Matches(OnTweet, f, Event{Kind: KindPost, IsRetweet: true}) {
		t.Errorf("originalOnly must imply excludeRetweets")
	}
}

func TestMatchesOnRetweetOverridesExclusions(t *testing.T) {
	f := Filters{OriginalOnly: true, ExcludeRetweets: true}
	ev := Event{Kind: KindPost, IsRetweet: true}
	if !Matches(OnRetweet, f, ev) {
		t.Fatalf("on_retweet must fire on retweets even with originalOnly set")
	}
}

func TestMatchesIndividualExclusions(t *testing.T) {
	if Matches(OnTweet, Filters{ExcludeReplies: true}, Event{Kind: KindPost, IsReply: true}) {
		t.Errorf("excludeReplies should reject replies")
	}
	if Matches(OnTweet, Filters{ExcludeRetweets: true}, Event{Kind: KindPost, IsRetweet: true}) {
		t.Errorf("excludeRetweets should reject retweets")
	}
	if Matches(OnTweet, Filters{ExcludeQuotes: true}, Event{Kind: KindPost, IsQuote: true}) {
		t.Errorf("excludeQuotes should reject quotes")
	}
}

func TestMatchesKeyword(t *testing.T) {
	f := Filters{TriggerValue: "Release"}
	if !Matches(OnKeyword, f, postEvent("big RELEASE today")) {
		t.Errorf("keyword match should be case-insensitive substring")
	}
	if Matches(OnKeyword, f, postEvent("nothing to see")) {
		t.Errorf("keyword should not match")
	}
	if Matches(OnKeyword, Filters{}, postEvent("anything")) {
		t.Errorf("empty keyword should never match")
	}
}

func TestMatchesHashtag(t *testing.T) {
	ev := postEvent("launch day")
	ev.Hashtags = []string{"GoLang", "release"}

	if !Matches(OnHashtag, Filters{TriggerValue: "#golang"}, ev) {
		t.Errorf("hashtag match should normalize # prefix and case")
	}
	if Matches(OnHashtag, Filters{TriggerValue: "rust"}, ev) {
		t.Errorf("hashtag should not match")
	}
}

func TestMatchesSearchQuery(t *testing.T) {
	ev := postEvent("the new release of our service is live")
	if !Matches(OnSearch, Filters{TriggerValue: "release live"}, ev) {
		t.Errorf("all query terms present should match")
	}
	if Matches(OnSearch, Filters{TriggerValue: "release beta"}, ev) {
		t.Errorf("missing term should not match")
	}
}
