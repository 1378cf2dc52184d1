package domain

import "time"

// FeedType distinguishes how a feed's capability was produced.
type FeedType int

const (
	// FeedFixed feeds derive their capability from the member set; the same
	// group of identities always resolves to the same feed.
	FeedFixed FeedType = iota
	// FeedExpanding feeds carry a random capability so membership can grow
	// without the feed changing identity.
	FeedExpanding
	// FeedSystem feeds are the small set of built-in feeds with well-known
	// capabilities.
	FeedSystem
)

// Capability is the unguessable token that addresses a feed. Possession of
// the token grants access; there is no access-control list behind it.
type Capability = ContentHash

// Feed is a capability-addressed conversation. LatestRenderableID and
// NumUnread are denormalized display state maintained by the pipeline.
type Feed struct {
	ID              int64
	Type            FeedType
	Capability      Capability
	ShortCapability int64

	LatestRenderableID int64
	LatestRenderableAt time.Time
	NumUnread          int64

	Name     string
	Accepted bool
}

// FeedMember joins one identity into one feed. Unique per (feed, identity).
type FeedMember struct {
	ID         int64
	FeedID     int64
	IdentityID int64
}
