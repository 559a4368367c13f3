package adapter

import (
	"fmt"
	"strings"
	"time"

	"semaphore/internal/platform"
)

// MinScheduleLead is how far in the future a scheduled dispatch must be.
const MinScheduleLead = 30 * time.Second

// IssueLevel separates blocking problems from advisories.
type IssueLevel string

const (
	LevelError   IssueLevel = "error"
	LevelWarning IssueLevel = "warning"
)

// Issue is one validation finding attached to a target. Issues are
// data, never Go errors; an error-level issue blocks only its target.
type Issue struct {
	Level   IssueLevel `json:"level"`
	Message string     `json:"message"`
}

// Mode selects immediate or scheduled dispatch.
type Mode string

const (
	ModeNow      Mode = "now"
	ModeSchedule Mode = "schedule"
)

// Draft is the canonical content before per-target adaptation.
type Draft struct {
	Text          string
	MediaURL      string
	MediaKind     platform.MediaKind
	Template      string
	Prepend       string
	Append        string
	Hashtags      []string
	IncludeSource bool
	IncludeMedia  bool
}

// HasMedia reports whether the draft carries a usable attachment.
func (d Draft) HasMedia() bool {
	return d.IncludeMedia && d.MediaURL != ""
}

// Source describes the account the content originated from, used for
// template placeholders and attribution.
type Source struct {
	// EventID is the originating event, carried through dispatch so
	// reply, quote, retweet and like actions can reference it.
	EventID  string
	Username string
	Name     string
	Link     string
}

// Target is one (account, action) pair selected for dispatch.
type Target struct {
	AccountID       string
	PlatformID      platform.ID
	AccountName     string
	Action          platform.Action
	OverrideMessage string
}

// AdaptedContent is the per-target rendered message, the attachment to
// publish with it, and the issue list.
type AdaptedContent struct {
	Message    string             `json:"message"`
	TextLength int                `json:"textLength"`
	MediaURL   string             `json:"mediaUrl,omitempty"`
	MediaKind  platform.MediaKind `json:"mediaKind,omitempty"`
	Issues     []Issue            `json:"issues"`
}

// HasErrors reports whether any issue is error-level. Content with
// errors is never dispatched.
func (a AdaptedContent) HasErrors() bool {
	for _, issue := range a.Issues {
		if issue.Level == LevelError {
			return true
		}
	}
	return false
}

// ErrorText joins the error-level issue messages for result reporting.
func (a AdaptedContent) ErrorText() string {
	var msgs []string
	for _, issue := range a.Issues {
		if issue.Level == LevelError {
			msgs = append(msgs, issue.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// Options carries the dispatch mode into validation.
type Options struct {
	Mode        Mode
	ScheduledAt time.Time
}

// Adapter renders a draft into per-target payloads and validates them
// against the capability registry. It performs no I/O.
type Adapter struct {
	registry *platform.Registry
	now      func() time.Time
}

// New creates an adapter backed by the given registry.
func New(registry *platform.Registry) *Adapter {
	return &Adapter{registry: registry, now: time.Now}
}

// NewWithClock creates an adapter with an injected clock for tests.
func NewWithClock(registry *platform.Registry, now func() time.Time) *Adapter {
	return &Adapter{registry: registry, now: now}
}

// Adapt renders and validates the draft for one target. The issue list
// is a pure function of (draft, source, target, options) plus the
// clock for the schedule lead check. An unknown platform is the only
// Go error; everything else is reported as issues.
func (a *Adapter) Adapt(draft Draft, source Source, target Target, opts Options) (AdaptedContent, error) {
	profile, err := a.registry.Profile(target.PlatformID)
	if err != nil {
		return AdaptedContent{}, err
	}

	message := a.render(draft, source, target)
	length := len([]rune(message))

	content := AdaptedContent{
		Message:    message,
		TextLength: length,
	}
	if draft.HasMedia() {
		content.MediaURL = draft.MediaURL
		content.MediaKind = draft.MediaKind
	}
	content.Issues = a.validate(draft, target, profile, message, length, opts)
	return content, nil
}

func (a *Adapter) render(draft Draft, source Source, target Target) string {
	body := draft.Text
	switch {
	case target.OverrideMessage != "":
		body = target.OverrideMessage
	case draft.Template != "":
		body = a.expandTemplate(draft.Template, draft, source)
	}

	var b strings.Builder
	if draft.Prepend != "" {
		b.WriteString(draft.Prepend)
		if body != "" {
			b.WriteString("\n\n")
		}
	}
	b.WriteString(body)
	if draft.Append != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(draft.Append)
	}

	if tags := formatHashtags(draft.Hashtags); tags != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(tags)
	}

	if draft.IncludeSource && source.Username != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("via @" + source.Username)
	}

	return b.String()
}

// expandTemplate substitutes the known placeholders. A placeholder with
// no value is left verbatim so the author can see what went unresolved.
func (a *Adapter) expandTemplate(template string, draft Draft, source Source) string {
	replacements := map[string]string{
		"%text%":     draft.Text,
		"%username%": source.Username,
		"%name%":     source.Name,
		"%date%":     a.now().Format("Jan 2, 2006"),
		"%link%":     source.Link,
		"%media%":    draft.MediaURL,
	}

	out := template
	for placeholder, value := range replacements {
		if value == "" {
			continue
		}
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}

// formatHashtags normalizes, dedupes (order-preserving) and joins tags.
func formatHashtags(tags []string) string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, "#"+tag)
	}
	return strings.Join(out, " ")
}

func (a *Adapter) validate(draft Draft, target Target, profile platform.Profile, message string, length int, opts Options) []Issue {
	var issues []Issue
	addError := func(format string, args ...interface{}) {
		issues = append(issues, Issue{Level: LevelError, Message: fmt.Sprintf(format, args...)})
	}
	addWarning := func(format string, args ...interface{}) {
		issues = append(issues, Issue{Level: LevelWarning, Message: fmt.Sprintf(format, args...)})
	}

	hasMedia := draft.HasMedia()

	if length == 0 && !hasMedia {
		addError("add text or media before publishing.")
	}

	if length > profile.MaxChars {
		addError("message exceeds the %d character limit for %s by %d characters",
			profile.MaxChars, profile.ID, length-profile.MaxChars)
	} else if length > 0 && float64(length) > 0.9*float64(profile.MaxChars) {
		addWarning("message length %d is near the %d character limit for %s",
			length, profile.MaxChars, profile.ID)
	}

	if profile.RequiresMedia && !hasMedia {
		addError("%s requires a media attachment", profile.ID)
	}

	if hasMedia && draft.MediaKind != "" && !profile.AllowsMedia(draft.MediaKind) {
		addError("%s attachments are not supported on %s", draft.MediaKind, profile.ID)
	}

	if target.Action != "" && !profile.AllowsAction(target.Action) {
		addError("action %q is not supported on %s", target.Action, profile.ID)
	}

	if opts.Mode == ModeSchedule {
		if !profile.SupportsScheduling {
			addError("%s does not support scheduled publishing", profile.ID)
		}
		if opts.ScheduledAt.Before(a.now().Add(MinScheduleLead)) {
			addError("scheduled time must be at least %s in the future", MinScheduleLead)
		}
	}

	// Hashtag caps are platform recommendations, never rejection rules.
	if profile.MaxHashtags > 0 {
		if count := countHashtags(message); count > profile.MaxHashtags {
			addWarning("message has %d hashtags; %s recommends at most %d",
				count, profile.ID, profile.MaxHashtags)
		}
	}

	return issues
}

// countHashtags counts #-prefixed tokens in the final message.
func countHashtags(message string) int {
	count := 0
	for _, field := range strings.Fields(message) {
		if len(field) > 1 && strings.HasPrefix(field, "#") {
			count++
		}
	}
	return count
}
