package adapter

import (
	"strings"
	"testing"
	"time"

	"semaphore/internal/platform"
)

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestAdapter() *Adapter {
	return NewWithClock(platform.NewRegistry(), func() time.Time { return fixedNow })
}

func twitterTarget() Target {
	return Target{AccountID: "acc-1", PlatformID: platform.Twitter, AccountName: "@tester", Action: platform.ActionPost}
}

func mustAdapt(t *testing.T, a *Adapter, draft Draft, source Source, target Target, opts Options) AdaptedContent {
	t.Helper()
	content, err := a.Adapt(draft, source, target, opts)
	if err != nil {
		t.Fatalf("adapt: %v", err)
	}
	return content
}

func countLevel(content AdaptedContent, level IssueLevel) int {
	n := 0
	for _, issue := range content.Issues {
		if issue.Level == level {
			n++
		}
	}
	return n
}

func TestAdaptPlainText(t *testing.T) {
	a := newTestAdapter()
	content := mustAdapt(t, a, Draft{Text: "hello world"}, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if content.Message != "hello world" {
		t.Errorf("message = %q", content.Message)
	}
	if content.TextLength != 11 {
		t.Errorf("length = %d, want 11", content.TextLength)
	}
	if len(content.Issues) != 0 {
		t.Errorf("unexpected issues: %v", content.Issues)
	}
}

func TestAdaptOverflowExactlyOneError(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: strings.Repeat("x", 300)}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if got := countLevel(content, LevelError); got != 1 {
		t.Fatalf("error count = %d, want 1 (issues: %v)", got, content.Issues)
	}
	if got := countLevel(content, LevelWarning); got != 0 {
		t.Fatalf("warning count = %d, want 0", got)
	}
	if !strings.Contains(content.Issues[0].Message, "20") {
		t.Errorf("expected overflow amount in message, got %q", content.Issues[0].Message)
	}
}

func TestAdaptNearLimitWarns(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: strings.Repeat("x", 260)}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if got := countLevel(content, LevelError); got != 0 {
		t.Fatalf("error count = %d, want 0 (issues: %v)", got, content.Issues)
	}
	if got := countLevel(content, LevelWarning); got != 1 {
		t.Fatalf("warning count = %d, want 1", got)
	}
	if content.HasErrors() {
		t.Errorf("warning-only content must remain dispatchable")
	}
}

func TestAdaptEmptyDraft(t *testing.T) {
	a := newTestAdapter()
	content := mustAdapt(t, a, Draft{}, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if !content.HasErrors() {
		t.Fatalf("expected error for empty draft")
	}
	if !strings.Contains(content.Issues[0].Message, "add text or media") {
		t.Errorf("unexpected message: %q", content.Issues[0].Message)
	}
}

func TestAdaptMediaOnlyIsValid(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{MediaURL: "https://cdn.example.com/a.png", MediaKind: platform.MediaImage, IncludeMedia: true}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if content.HasErrors() {
		t.Fatalf("media-only draft should be valid, issues: %v", content.Issues)
	}
}

func TestAdaptKeepsAttachmentInContent(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "caption", MediaURL: "https://cdn.example.com/a.png", MediaKind: platform.MediaImage, IncludeMedia: true}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if content.MediaURL != draft.MediaURL || content.MediaKind != platform.MediaImage {
		t.Fatalf("content media = %q %q", content.MediaURL, content.MediaKind)
	}

	// A withheld attachment never reaches the rendered content.
	draft.IncludeMedia = false
	content = mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})
	if content.MediaURL != "" || content.MediaKind != "" {
		t.Fatalf("content media = %q %q, want empty", content.MediaURL, content.MediaKind)
	}
}

func TestAdaptRequiresMedia(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-2", PlatformID: platform.Instagram, Action: platform.ActionPost}
	content := mustAdapt(t, a, Draft{Text: "caption"}, Source{}, target, Options{Mode: ModeNow})

	if !content.HasErrors() {
		t.Fatalf("instagram without media should error")
	}
}

func TestAdaptDisallowedMediaKind(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-2", PlatformID: platform.Instagram, Action: platform.ActionPost}
	draft := Draft{Text: "caption", MediaURL: "https://example.com", MediaKind: platform.MediaLink, IncludeMedia: true}
	content := mustAdapt(t, a, draft, Source{}, target, Options{Mode: ModeNow})

	found := false
	for _, issue := range content.Issues {
		if issue.Level == LevelError && strings.Contains(issue.Message, "not supported") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected disallowed-media error, issues: %v", content.Issues)
	}
}

func TestAdaptScheduleUnsupportedPlatform(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-3", PlatformID: platform.Bluesky, Action: platform.ActionPost}
	opts := Options{Mode: ModeSchedule, ScheduledAt: fixedNow.Add(time.Hour)}
	content := mustAdapt(t, a, Draft{Text: "hi"}, Source{}, target, opts)

	if !content.HasErrors() {
		t.Fatalf("scheduling on bluesky should error")
	}
}

func TestAdaptScheduleInPast(t *testing.T) {
	a := newTestAdapter()
	opts := Options{Mode: ModeSchedule, ScheduledAt: fixedNow.Add(-time.Minute)}
	content := mustAdapt(t, a, Draft{Text: "hi"}, Source{}, twitterTarget(), opts)

	if !content.HasErrors() {
		t.Fatalf("past schedule should error")
	}
}

func TestAdaptScheduleLeadTooShort(t *testing.T) {
	a := newTestAdapter()
	opts := Options{Mode: ModeSchedule, ScheduledAt: fixedNow.Add(10 * time.Second)}
	content := mustAdapt(t, a, Draft{Text: "hi"}, Source{}, twitterTarget(), opts)

	if !content.HasErrors() {
		t.Fatalf("schedule inside minimum lead should error")
	}
}

func TestAdaptHashtagCapIsWarningOnly(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "hi", Hashtags: []string{"a", "b", "c", "d", "e", "f"}}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if content.HasErrors() {
		t.Fatalf("hashtag overflow must never be an error, issues: %v", content.Issues)
	}
	if got := countLevel(content, LevelWarning); got != 1 {
		t.Fatalf("warning count = %d, want 1 (issues: %v)", got, content.Issues)
	}
}

func TestAdaptHashtagDedup(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "hi", Hashtags: []string{"go", "#go", "news", "go"}}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if !strings.HasSuffix(content.Message, "#go #news") {
		t.Errorf("message = %q", content.Message)
	}
}

func TestAdaptTemplateExpansion(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{
		Text:     "fresh post",
		Template: "%username% says: %text% (%date%)",
	}
	source := Source{Username: "alice", Name: "Alice"}
	content := mustAdapt(t, a, draft, source, twitterTarget(), Options{Mode: ModeNow})

	want := "alice says: fresh post (Jun 15, 2025)"
	if content.Message != want {
		t.Errorf("message = %q, want %q", content.Message, want)
	}
}

func TestAdaptTemplateUnresolvedPlaceholderKept(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "body", Template: "%text% %link%"}
	content := mustAdapt(t, a, draft, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if !strings.Contains(content.Message, "%link%") {
		t.Errorf("unresolved placeholder should stay verbatim, got %q", content.Message)
	}
	if content.HasErrors() {
		t.Errorf("unresolved placeholder must not be an error")
	}
}

func TestAdaptOverrideWinsOverTemplate(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "body", Template: "%text%"}
	target := twitterTarget()
	target.OverrideMessage = "custom for this account"
	content := mustAdapt(t, a, draft, Source{}, target, Options{Mode: ModeNow})

	if content.Message != "custom for this account" {
		t.Errorf("message = %q", content.Message)
	}
}

func TestAdaptPrependAppendAttribution(t *testing.T) {
	a := newTestAdapter()
	draft := Draft{Text: "body", Prepend: "ICYMI:", Append: "(more soon)", IncludeSource: true}
	content := mustAdapt(t, a, draft, Source{Username: "alice"}, twitterTarget(), Options{Mode: ModeNow})

	want := "ICYMI:\n\nbody\n\n(more soon)\n\nvia @alice"
	if content.Message != want {
		t.Errorf("message = %q, want %q", content.Message, want)
	}
}

func TestAdaptUnsupportedAction(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-4", PlatformID: platform.Mastodon, Action: platform.ActionRetweet}
	content := mustAdapt(t, a, Draft{Text: "hi"}, Source{}, target, Options{Mode: ModeNow})

	if !content.HasErrors() {
		t.Fatalf("retweet on mastodon should error")
	}
}

func TestAdaptLengthCountsRunesNotBytes(t *testing.T) {
	a := newTestAdapter()
	content := mustAdapt(t, a, Draft{Text: "héllo 世界"}, Source{}, twitterTarget(), Options{Mode: ModeNow})

	if content.TextLength != 8 {
		t.Errorf("length = %d, want 8", content.TextLength)
	}
}

func TestAdaptUnknownPlatform(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-5", PlatformID: platform.ID("friendster")}
	if _, err := a.Adapt(Draft{Text: "hi"}, Source{}, target, Options{Mode: ModeNow}); err == nil {
		t.Fatalf("expected unknown platform error")
	}
}

func TestAdaptMultipleIssues(t *testing.T) {
	a := newTestAdapter()
	target := Target{AccountID: "acc-6", PlatformID: platform.Instagram, Action: platform.ActionPost}
	draft := Draft{Text: strings.Repeat("x", 2300)}
	content := mustAdapt(t, a, draft, Source{}, target, Options{Mode: ModeNow})

	if got := countLevel(content, LevelError); got < 2 {
		t.Fatalf("expected overflow plus requires-media errors, got %v", content.Issues)
	}
}
