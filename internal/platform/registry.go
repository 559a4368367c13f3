package platform

import (
	"errors"
	"fmt"
)

// ID identifies a destination platform. The set is closed; adding a
// platform means adding a profile to the registry table below.
type ID string

const (
	Twitter   ID = "twitter"
	Mastodon  ID = "mastodon"
	Bluesky   ID = "bluesky"
	LinkedIn  ID = "linkedin"
	Facebook  ID = "facebook"
	Instagram ID = "instagram"
	Threads   ID = "threads"
	Discord   ID = "discord"
	Telegram  ID = "telegram"
)

// MediaKind classifies an attachment.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaLink  MediaKind = "link"
)

// Action is a platform-specific publish action.
type Action string

const (
	ActionPost        Action = "post"
	ActionReply       Action = "reply"
	ActionQuote       Action = "quote"
	ActionRetweet     Action = "retweet"
	ActionLike        Action = "like"
	ActionSendMessage Action = "send_message"
)

// ErrUnknownPlatform is returned for a registry miss. With a closed
// platform set this indicates a programmer error, not user input.
var ErrUnknownPlatform = errors.New("unknown platform")

// Profile is the immutable capability record for one platform.
type Profile struct {
	ID                 ID
	MaxChars           int
	RequiresMedia      bool
	AllowedMedia       map[MediaKind]bool
	MaxHashtags        int
	SupportsScheduling bool
	Actions            map[Action]bool
}

// AllowsMedia reports whether the platform accepts the given media kind.
func (p Profile) AllowsMedia(kind MediaKind) bool {
	return p.AllowedMedia[kind]
}

// AllowsAction reports whether the platform supports the given action.
func (p Profile) AllowsAction(a Action) bool {
	return p.Actions[a]
}

// Registry is the read-only capability table, loaded once at startup
// and safe for concurrent reads.
type Registry struct {
	profiles map[ID]Profile
}

// NewRegistry builds the default capability table.
func NewRegistry() *Registry {
	mediaAll := map[MediaKind]bool{MediaImage: true, MediaVideo: true, MediaLink: true}
	mediaVisual := map[MediaKind]bool{MediaImage: true, MediaVideo: true}
	postOnly := map[Action]bool{ActionPost: true}
	twitterActions := map[Action]bool{
		ActionPost: true, ActionReply: true, ActionQuote: true,
		ActionRetweet: true, ActionLike: true,
	}

	profiles := map[ID]Profile{
		Twitter: {
			ID: Twitter, MaxChars: 280, AllowedMedia: mediaAll,
			MaxHashtags: 5, SupportsScheduling: true, Actions: twitterActions,
		},
		Mastodon: {
			ID: Mastodon, MaxChars: 500, AllowedMedia: mediaAll,
			MaxHashtags: 10, SupportsScheduling: true, Actions: postOnly,
		},
		Bluesky: {
			ID: Bluesky, MaxChars: 300, AllowedMedia: mediaAll,
			MaxHashtags: 8, SupportsScheduling: false, Actions: postOnly,
		},
		LinkedIn: {
			ID: LinkedIn, MaxChars: 3000, AllowedMedia: mediaAll,
			MaxHashtags: 30, SupportsScheduling: true, Actions: postOnly,
		},
		Facebook: {
			ID: Facebook, MaxChars: 63206, AllowedMedia: mediaAll,
			MaxHashtags: 30, SupportsScheduling: true, Actions: postOnly,
		},
		Instagram: {
			ID: Instagram, MaxChars: 2200, RequiresMedia: true, AllowedMedia: mediaVisual,
			MaxHashtags: 30, SupportsScheduling: true, Actions: postOnly,
		},
		Threads: {
			ID: Threads, MaxChars: 500, AllowedMedia: mediaVisual,
			MaxHashtags: 10, SupportsScheduling: false, Actions: postOnly,
		},
		Discord: {
			ID: Discord, MaxChars: 2000, AllowedMedia: mediaAll,
			MaxHashtags: 0, SupportsScheduling: false,
			Actions: map[Action]bool{ActionPost: true, ActionSendMessage: true},
		},
		Telegram: {
			ID: Telegram, MaxChars: 4096, AllowedMedia: mediaAll,
			MaxHashtags: 0, SupportsScheduling: true,
			Actions: map[Action]bool{ActionPost: true, ActionSendMessage: true},
		},
	}

	return &Registry{profiles: profiles}
}

// Profile returns the capability record for a platform.
func (r *Registry) Profile(id ID) (Profile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, id)
	}
	return p, nil
}

// IDs returns all registered platform identifiers.
func (r *Registry) IDs() []ID {
	ids := make([]ID, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	return ids
}
